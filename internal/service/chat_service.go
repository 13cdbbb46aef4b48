package service

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/cwrk-planet/chat-service/internal/domain"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

const defaultMaxMessageLength = 4000

type ChatService struct {
	rooms    *RoomService
	messages MessageStore
	maxLen   int
	now      func() time.Time
}

func NewChatService(rooms *RoomService, messages MessageStore, maxLen int) *ChatService {
	if maxLen <= 0 {
		maxLen = defaultMaxMessageLength
	}
	return &ChatService{rooms: rooms, messages: messages, maxLen: maxLen, now: time.Now}
}

type SendInput struct {
	RoomID          string
	Sender          string
	SenderFullName  string
	Body            string
	Timestamp       time.Time
	ClientMessageID string
}

// Delivery is a persisted message together with the room it must be fanned out to.
type Delivery struct {
	Message   *domain.Message
	Room      *domain.ChatRoom
	Duplicate bool
}

// Send validates and persists a message. Fan-out is the caller's job.
func (s *ChatService) Send(ctx context.Context, in SendInput) (*Delivery, error) {
	body := strings.TrimSpace(in.Body)
	if body == "" {
		return nil, domain.ErrEmptyMessage
	}
	if utf8.RuneCountInString(body) > s.maxLen {
		return nil, domain.ErrMessageTooLong
	}

	room, err := s.rooms.ParticipantRoom(ctx, in.RoomID, in.Sender)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	ts := in.Timestamp
	if ts.IsZero() {
		ts = now
	}
	fullName := strings.TrimSpace(in.SenderFullName)
	if fullName == "" {
		fullName = in.Sender
	}

	stored, dup, err := s.messages.Append(ctx, &domain.Message{
		ID:              uuid.NewString(),
		RoomID:          room.ID,
		Sender:          in.Sender,
		SenderFullName:  fullName,
		Body:            body,
		Timestamp:       ts.UTC(),
		CreatedAt:       now,
		ClientMessageID: strings.TrimSpace(in.ClientMessageID),
	})
	if err != nil {
		return nil, fmt.Errorf("messages.Append: %w", err)
	}
	return &Delivery{Message: stored, Room: room, Duplicate: dup}, nil
}

// History returns the room's messages for a participant, ascending by sequence.
func (s *ChatService) History(ctx context.Context, roomID, username string) ([]domain.Message, error) {
	if _, err := s.rooms.ParticipantRoom(ctx, roomID, username); err != nil {
		return nil, err
	}
	msgs, err := s.messages.History(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("messages.History: %w", err)
	}
	if msgs == nil {
		msgs = []domain.Message{}
	}
	return msgs, nil
}

// MarkRead marks everything others wrote in the room as read by reader.
func (s *ChatService) MarkRead(ctx context.Context, roomID, reader string) (*domain.ChatRoom, domain.ReadResult, error) {
	room, err := s.rooms.ParticipantRoom(ctx, roomID, reader)
	if err != nil {
		return nil, domain.ReadResult{}, err
	}
	res, err := s.messages.MarkRead(ctx, roomID, reader)
	if err != nil {
		return nil, domain.ReadResult{}, fmt.Errorf("messages.MarkRead: %w", err)
	}
	// the reader never receives its own receipt
	res.Senders = lo.Without(res.Senders, reader)
	return room, res, nil
}

// HistoryByRoom loads every message of username's rooms grouped by room id.
func (s *ChatService) HistoryByRoom(ctx context.Context, username string) (map[string][]domain.Message, error) {
	msgs, err := s.messages.MessagesForUser(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("messages.MessagesForUser: %w", err)
	}
	return lo.GroupBy(msgs, func(m domain.Message) string { return m.RoomID }), nil
}
