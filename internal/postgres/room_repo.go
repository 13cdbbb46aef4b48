package postgres

import (
	"context"
	"errors"

	"github.com/cwrk-planet/chat-service/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type RoomRepository struct {
	db *pgxpool.Pool
}

func NewRoomRepository(db *pgxpool.Pool) *RoomRepository {
	return &RoomRepository{db: db}
}

func (r *RoomRepository) FindByKey(ctx context.Context, key string) (*domain.ChatRoom, error) {
	return scanRoom(r.db.QueryRow(ctx, queryRoomByKey, key))
}

// Create relies on the participants_key constraint: the loser of a
// concurrent create reads back the winner's row.
func (r *RoomRepository) Create(ctx context.Context, room *domain.ChatRoom) (*domain.ChatRoom, bool, error) {
	tag, err := r.db.Exec(ctx, queryInsertRoom,
		room.ID,
		room.Name,
		room.Participants,
		room.ParticipantsKey,
		room.IsGroup,
		room.CreatedBy,
		room.CreatedAt,
		room.UpdatedAt,
	)
	if err != nil {
		return nil, false, err
	}
	stored, err := r.FindByKey(ctx, room.ParticipantsKey)
	if err != nil {
		return nil, false, err
	}
	return stored, tag.RowsAffected() == 1, nil
}

func (r *RoomRepository) Get(ctx context.Context, id string) (*domain.ChatRoom, error) {
	if uuid.Validate(id) != nil {
		return nil, domain.ErrRoomNotFound
	}
	return scanRoom(r.db.QueryRow(ctx, queryRoomByID, id))
}

func (r *RoomRepository) ListByParticipant(ctx context.Context, username string) ([]domain.ChatRoom, error) {
	rows, err := r.db.Query(ctx, queryRoomsByParticipant, username)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rooms []domain.ChatRoom
	for rows.Next() {
		room, err := scanRoom(rows)
		if err != nil {
			return nil, err
		}
		rooms = append(rooms, *room)
	}
	return rooms, rows.Err()
}

func scanRoom(row pgx.Row) (*domain.ChatRoom, error) {
	var rm domain.ChatRoom
	err := row.Scan(
		&rm.ID,
		&rm.Name,
		&rm.Participants,
		&rm.ParticipantsKey,
		&rm.IsGroup,
		&rm.CreatedBy,
		&rm.LastSeq,
		&rm.CreatedAt,
		&rm.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrRoomNotFound
		}
		return nil, err
	}
	return &rm, nil
}
