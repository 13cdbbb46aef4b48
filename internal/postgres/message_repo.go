package postgres

import (
	"context"
	"errors"
	"slices"

	"github.com/cwrk-planet/chat-service/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/lo"
)

type MessageRepository struct {
	db *pgxpool.Pool
}

func NewMessageRepository(db *pgxpool.Pool) *MessageRepository {
	return &MessageRepository{db: db}
}

// Append takes the room row lock first, so a retried send racing its
// original sees the committed copy instead of a unique violation.
func (r *MessageRepository) Append(ctx context.Context, msg *domain.Message) (*domain.Message, bool, error) {
	if uuid.Validate(msg.RoomID) != nil {
		return nil, false, domain.ErrRoomNotFound
	}

	var (
		stored    domain.Message
		duplicate bool
	)
	err := inTx(ctx, r.db, func(tx pgx.Tx) error {
		var seq int64
		if err := tx.QueryRow(ctx, queryNextSeq, msg.RoomID, msg.CreatedAt).Scan(&seq); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return domain.ErrRoomNotFound
			}
			return err
		}

		if msg.ClientMessageID != "" {
			dup, err := scanMessage(tx.QueryRow(ctx, queryMessageByClientID, msg.RoomID, msg.Sender, msg.ClientMessageID))
			switch {
			case err == nil:
				stored, duplicate = *dup, true
				// rolls back the sequence bump
				return errDuplicate
			case !errors.Is(err, pgx.ErrNoRows):
				return err
			}
		}

		stored = *msg
		stored.Seq = seq
		stored.IsRead = false
		_, err := tx.Exec(ctx, queryInsertMessage,
			stored.ID,
			stored.RoomID,
			stored.Seq,
			stored.Sender,
			stored.SenderFullName,
			stored.Body,
			stored.Timestamp,
			stored.CreatedAt,
			stored.ClientMessageID,
		)
		return err
	})
	if duplicate {
		return &stored, true, nil
	}
	if err != nil {
		return nil, false, err
	}
	return &stored, false, nil
}

var errDuplicate = errors.New("duplicate client message id")

func (r *MessageRepository) History(ctx context.Context, roomID string) ([]domain.Message, error) {
	if uuid.Validate(roomID) != nil {
		return nil, nil
	}
	return r.list(ctx, r.db, queryHistory, roomID)
}

func (r *MessageRepository) MessagesForUser(ctx context.Context, username string) ([]domain.Message, error) {
	return r.list(ctx, r.db, queryMessagesForUser, username)
}

func (r *MessageRepository) MarkRead(ctx context.Context, roomID, reader string) (domain.ReadResult, error) {
	if uuid.Validate(roomID) != nil {
		return domain.ReadResult{}, domain.ErrRoomNotFound
	}

	var res domain.ReadResult
	err := inTx(ctx, r.db, func(tx pgx.Tx) error {
		var last int64
		if err := tx.QueryRow(ctx, queryRoomLastSeq, roomID).Scan(&last); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return domain.ErrRoomNotFound
			}
			return err
		}
		if _, err := tx.Exec(ctx, queryEnsureCursor, roomID, reader); err != nil {
			return err
		}
		var prev int64
		if err := tx.QueryRow(ctx, queryLockCursor, roomID, reader).Scan(&prev); err != nil {
			return err
		}
		res.LastReadSeq = prev
		if last <= prev {
			return nil
		}

		rows, err := tx.Query(ctx, queryMarkMessagesRead, roomID, reader, prev, last)
		if err != nil {
			return err
		}
		senders, err := pgx.CollectRows(rows, pgx.RowTo[string])
		if err != nil {
			return err
		}
		res.Count = len(senders)
		res.Senders = lo.Uniq(senders)
		slices.Sort(res.Senders)

		if _, err := tx.Exec(ctx, queryAdvanceCursor, roomID, reader, last); err != nil {
			return err
		}
		res.LastReadSeq = last
		return nil
	})
	if err != nil {
		return domain.ReadResult{}, err
	}
	return res, nil
}

func (r *MessageRepository) UnreadCounts(ctx context.Context, username string, roomIDs []string) (map[string]int, error) {
	ids := lo.Filter(roomIDs, func(id string, _ int) bool { return uuid.Validate(id) == nil })
	out := make(map[string]int)
	if len(ids) == 0 {
		return out, nil
	}

	rows, err := r.db.Query(ctx, queryUnreadCounts, username, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id string
			n  int64
		)
		if err := rows.Scan(&id, &n); err != nil {
			return nil, err
		}
		if n > 0 {
			out[id] = int(n)
		}
	}
	return out, rows.Err()
}

func (r *MessageRepository) list(ctx context.Context, q querier, sql string, arg any) ([]domain.Message, error) {
	rows, err := q.Query(ctx, sql, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []domain.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, *m)
	}
	return msgs, rows.Err()
}

func scanMessage(row pgx.Row) (*domain.Message, error) {
	var m domain.Message
	err := row.Scan(
		&m.ID,
		&m.Seq,
		&m.RoomID,
		&m.Sender,
		&m.SenderFullName,
		&m.Body,
		&m.Timestamp,
		&m.CreatedAt,
		&m.IsRead,
		&m.ClientMessageID,
	)
	if err != nil {
		return nil, err
	}
	return &m, nil
}
