package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cwrk-planet/chat-service/internal/domain"

	"github.com/google/uuid"
)

type RoomService struct {
	rooms RoomStore
	now   func() time.Time
}

func NewRoomService(rooms RoomStore) *RoomService {
	return &RoomService{rooms: rooms, now: time.Now}
}

// FindOrCreate returns the room whose participant set equals participants,
// creating it on first use. Order and duplicates in participants are ignored.
func (s *RoomService) FindOrCreate(ctx context.Context, participants []string, createdBy, name string) (*domain.ChatRoom, error) {
	normalized, err := domain.NormalizeParticipants(participants)
	if err != nil {
		return nil, err
	}
	key := domain.ParticipantsKey(normalized)

	room, err := s.rooms.FindByKey(ctx, key)
	if err == nil {
		return room, nil
	}
	if !errors.Is(err, domain.ErrRoomNotFound) {
		return nil, fmt.Errorf("rooms.FindByKey: %w", err)
	}

	room = domain.NewChatRoom(uuid.NewString(), normalized, createdBy, name, s.now().UTC())
	// a concurrent creator with the same key wins; Create then returns its room
	stored, _, err := s.rooms.Create(ctx, room)
	if err != nil {
		return nil, fmt.Errorf("rooms.Create: %w", err)
	}
	return stored, nil
}

func (s *RoomService) Get(ctx context.Context, id string) (*domain.ChatRoom, error) {
	room, err := s.rooms.Get(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrRoomNotFound) {
			return nil, domain.ErrRoomNotFound
		}
		return nil, fmt.Errorf("rooms.Get: %w", err)
	}
	return room, nil
}

// ParticipantRoom returns the room only if username takes part in it.
func (s *RoomService) ParticipantRoom(ctx context.Context, id, username string) (*domain.ChatRoom, error) {
	room, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !room.HasParticipant(username) {
		return nil, domain.ErrNotParticipant
	}
	return room, nil
}

// ListForUser returns the rooms where username is a participant, most recently active first.
func (s *RoomService) ListForUser(ctx context.Context, username string) ([]domain.ChatRoom, error) {
	rooms, err := s.rooms.ListByParticipant(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("rooms.ListByParticipant: %w", err)
	}
	if rooms == nil {
		rooms = []domain.ChatRoom{}
	}
	return rooms, nil
}
