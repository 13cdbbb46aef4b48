//go:generate go run go.uber.org/mock/mockgen -source=store.go -destination=../mocks/mock_store.go -package=mocks
package service

import (
	"context"

	"github.com/cwrk-planet/chat-service/internal/domain"
)

// RoomStore persists chat rooms keyed by their normalized participant set.
type RoomStore interface {
	// FindByKey returns domain.ErrRoomNotFound when no room has the key.
	FindByKey(ctx context.Context, key string) (*domain.ChatRoom, error)
	// Create stores room unless a room with the same key exists, in which
	// case the existing room is returned and created is false.
	Create(ctx context.Context, room *domain.ChatRoom) (stored *domain.ChatRoom, created bool, err error)
	Get(ctx context.Context, id string) (*domain.ChatRoom, error)
	ListByParticipant(ctx context.Context, username string) ([]domain.ChatRoom, error)
}

// MessageStore is the message store gateway consumed by the chat core.
type MessageStore interface {
	// Append assigns id and per-room sequence. A message repeating
	// (room, sender, client message id) returns the stored one with duplicate=true.
	Append(ctx context.Context, msg *domain.Message) (stored *domain.Message, duplicate bool, err error)
	// History returns the room's messages ascending by sequence.
	History(ctx context.Context, roomID string) ([]domain.Message, error)
	// MarkRead advances reader's watermark to the room's last sequence and
	// flips isRead on newly covered messages authored by others.
	MarkRead(ctx context.Context, roomID, reader string) (domain.ReadResult, error)
	// UnreadCounts counts messages from others past the user's watermark.
	// Rooms without unread messages are omitted.
	UnreadCounts(ctx context.Context, username string, roomIDs []string) (map[string]int, error)
	// MessagesForUser returns every message of every room the user takes part in,
	// ascending by (room, sequence).
	MessagesForUser(ctx context.Context, username string) ([]domain.Message, error)
}

type UserStore interface {
	// CreateUser returns domain.ErrUserExists for a taken username.
	CreateUser(ctx context.Context, u *domain.User) error
	// GetByUsername returns domain.ErrUserNotFound for an unknown username.
	GetByUsername(ctx context.Context, username string) (*domain.User, error)
	ListUsers(ctx context.Context) ([]domain.User, error)
}

// Pinger reports store liveness.
type Pinger interface {
	Ping(ctx context.Context) error
}
