// Package session implements the per-connection chat state machine:
// login, room subscription, message fan-out, typing signals and read
// receipts, on top of the presence registry and the chat services.
package session

import (
	"context"
	"log/slog"

	"github.com/cwrk-planet/chat-service/internal/domain"
	"github.com/cwrk-planet/chat-service/internal/presence"
	"github.com/cwrk-planet/chat-service/internal/service"
)

type RoomSvc interface {
	ListForUser(ctx context.Context, username string) ([]domain.ChatRoom, error)
	ParticipantRoom(ctx context.Context, id, username string) (*domain.ChatRoom, error)
}

type ChatSvc interface {
	Send(ctx context.Context, in service.SendInput) (*service.Delivery, error)
	History(ctx context.Context, roomID, username string) ([]domain.Message, error)
	MarkRead(ctx context.Context, roomID, reader string) (*domain.ChatRoom, domain.ReadResult, error)
	HistoryByRoom(ctx context.Context, username string) (map[string][]domain.Message, error)
}

type UnreadSvc interface {
	Counts(ctx context.Context, username string, rooms []domain.ChatRoom) (map[string]int, error)
}

// Manager holds what every Session shares.
type Manager struct {
	rooms    RoomSvc
	chat     ChatSvc
	unread   UnreadSvc
	presence presence.Registry
}

func NewManager(rooms RoomSvc, chat ChatSvc, unread UnreadSvc, reg presence.Registry) *Manager {
	return &Manager{rooms: rooms, chat: chat, unread: unread, presence: reg}
}

// receiver is implemented by connections that keep per-session unread state.
type receiver interface {
	receive(msg *domain.Message)
}

// deliver routes ev to user's live connection, if any.
func (m *Manager) deliver(user string, ev domain.Event) {
	c, ok := m.presence.Lookup(user)
	if !ok {
		return
	}
	if err := c.Send(ev); err != nil {
		slog.Warn("session: deliver failed", "user", user, "event", ev.Type, "conn", c.ID(), "err", err)
	}
}

// fanOut hands msg to every online participant of room except its sender.
func (m *Manager) fanOut(room *domain.ChatRoom, msg *domain.Message) {
	for _, user := range room.Others(msg.Sender) {
		c, ok := m.presence.Lookup(user)
		if !ok {
			continue
		}
		if r, ok := c.(receiver); ok {
			r.receive(msg)
			continue
		}
		if err := c.Send(domain.Event{Type: domain.EventReceiveMessage, Payload: msg}); err != nil {
			slog.Warn("session: deliver failed", "user", user, "room", room.ID, "conn", c.ID(), "err", err)
		}
	}
}
