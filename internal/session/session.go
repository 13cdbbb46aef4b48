package session

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/cwrk-planet/chat-service/internal/domain"
	"github.com/cwrk-planet/chat-service/internal/presence"
	"github.com/cwrk-planet/chat-service/internal/service"
)

type State int

const (
	StateAnonymous State = iota
	StateAuthenticated
	StateSubscribed
)

func (s State) String() string {
	switch s {
	case StateAuthenticated:
		return "authenticated"
	case StateSubscribed:
		return "subscribed"
	default:
		return "anonymous"
	}
}

// Session is one client connection. Events of a single session are expected
// to be handled one at a time; other sessions may deliver to it concurrently.
type Session struct {
	mgr  *Manager
	conn presence.Conn

	// bound is the identity proven at handshake; empty when not required.
	bound string

	mu     sync.Mutex
	user   string
	room   string
	closed bool

	unread *service.Ledger
}

// NewSession wraps conn. When boundUser is set, login only accepts that name.
func (m *Manager) NewSession(conn presence.Conn, boundUser string) *Session {
	return &Session{mgr: m, conn: conn, bound: boundUser, unread: service.NewLedger()}
}

func (s *Session) ID() string { return s.conn.ID() }

func (s *Session) Send(ev domain.Event) error { return s.conn.Send(ev) }

func (s *Session) User() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.user
}

// Room is the currently subscribed room, empty when none.
func (s *Session) Room() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.room
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.user == "" || s.closed:
		return StateAnonymous
	case s.room == "":
		return StateAuthenticated
	default:
		return StateSubscribed
	}
}

// Unread returns the session's counters.
func (s *Session) Unread() map[string]int {
	return s.unread.Snapshot()
}

func (s *Session) emit(typ string, payload any) {
	if err := s.conn.Send(domain.Event{Type: typ, Payload: payload}); err != nil {
		slog.Warn("session: send failed", "conn", s.ID(), "user", s.User(), "event", typ, "err", err)
	}
}

// Login authenticates the connection as username, registers presence and
// sends the bootstrap: room list, unread counts and full history.
func (s *Session) Login(ctx context.Context, username string) error {
	username = strings.TrimSpace(username)
	if username == "" {
		return fmt.Errorf("%w: username is required", domain.ErrInvalidInput)
	}
	if s.bound != "" && s.bound != username {
		return domain.ErrSenderMismatch
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return domain.ErrNotAuthenticated
	}
	prev := s.user
	s.user = username
	if prev != username {
		s.room = ""
	}
	s.mu.Unlock()

	if prev != "" && prev != username {
		s.mgr.presence.Unregister(prev, s)
	}
	s.mgr.presence.Register(username, s)
	slog.Info("session: login", "user", username, "conn", s.ID())

	rooms, err := s.mgr.rooms.ListForUser(ctx, username)
	if err != nil {
		return fmt.Errorf("list rooms: %w", err)
	}
	s.emit(domain.EventChatRoomList, rooms)

	if err := s.reconcile(ctx, username, rooms); err != nil {
		return err
	}

	history, err := s.mgr.chat.HistoryByRoom(ctx, username)
	if err != nil {
		return fmt.Errorf("bootstrap history: %w", err)
	}
	s.emit(domain.EventAllMessagesHistory, history)
	return nil
}

// RefreshUnread re-runs the bulk reconciliation and resends the counts.
func (s *Session) RefreshUnread(ctx context.Context) error {
	user, err := s.authenticated()
	if err != nil {
		return err
	}
	rooms, err := s.mgr.rooms.ListForUser(ctx, user)
	if err != nil {
		return fmt.Errorf("list rooms: %w", err)
	}
	return s.reconcile(ctx, user, rooms)
}

func (s *Session) reconcile(ctx context.Context, user string, rooms []domain.ChatRoom) error {
	counts, err := s.mgr.unread.Counts(ctx, user, rooms)
	if err != nil {
		return fmt.Errorf("unread counts: %w", err)
	}
	s.unread.Replace(counts)
	// the subscribed room is being looked at
	if room := s.Room(); room != "" {
		s.unread.Reset(room)
	}
	s.emit(domain.EventInitialUnreadCounts, s.unread.Snapshot())
	return nil
}

// SelectRoom subscribes the session to roomID, sends its history and zeroes
// the session counter. Persisted read state is left to MarkRead.
func (s *Session) SelectRoom(ctx context.Context, roomID string) error {
	user, err := s.authenticated()
	if err != nil {
		return err
	}
	history, err := s.mgr.chat.History(ctx, roomID, user)
	if err != nil {
		return fmt.Errorf("history %s: %w", roomID, err)
	}

	s.mu.Lock()
	s.room = roomID
	s.mu.Unlock()

	if s.unread.Reset(roomID) {
		s.emit(domain.EventUnreadCountUpdate, domain.UnreadCountPayload{RoomID: roomID, Count: 0})
	}
	s.emit(domain.EventChatHistory, history)
	return nil
}

type SendRequest struct {
	RoomID          string
	Sender          string
	SenderFullName  string
	Body            string
	Timestamp       time.Time
	ClientMessageID string
}

// SendMessage persists a message and delivers it to the other online
// participants. The sender gets a message_ack with the stored form.
func (s *Session) SendMessage(ctx context.Context, req SendRequest) (*domain.Message, error) {
	user, err := s.authenticated()
	if err != nil {
		return nil, err
	}
	if err := checkActor(user, req.Sender); err != nil {
		return nil, err
	}
	roomID := req.RoomID
	if roomID == "" {
		roomID = s.Room()
	}
	if roomID == "" {
		return nil, fmt.Errorf("%w: roomId is required", domain.ErrInvalidInput)
	}

	d, err := s.mgr.chat.Send(ctx, service.SendInput{
		RoomID:          roomID,
		Sender:          user,
		SenderFullName:  req.SenderFullName,
		Body:            req.Body,
		Timestamp:       req.Timestamp,
		ClientMessageID: req.ClientMessageID,
	})
	if err != nil {
		return nil, err
	}

	if d.Duplicate {
		slog.Debug("session: duplicate send", "user", user, "room", roomID, "msg_id", d.Message.ID)
	} else {
		s.mgr.fanOut(d.Room, d.Message)
	}
	s.emit(domain.EventMessageAck, d.Message)
	return d.Message, nil
}

// receive is called by other sessions' SendMessage.
func (s *Session) receive(msg *domain.Message) {
	s.emit(domain.EventReceiveMessage, msg)
	if s.Room() == msg.RoomID {
		return
	}
	n := s.unread.Increment(msg.RoomID)
	s.emit(domain.EventUnreadCountUpdate, domain.UnreadCountPayload{RoomID: msg.RoomID, Count: n})
}

// MarkRead marks everything others wrote in roomID as read by reader and
// sends messages_read to each online author of the newly read messages.
func (s *Session) MarkRead(ctx context.Context, roomID, reader string) (domain.ReadResult, error) {
	user, err := s.authenticated()
	if err != nil {
		return domain.ReadResult{}, err
	}
	if err := checkActor(user, reader); err != nil {
		return domain.ReadResult{}, err
	}

	_, res, err := s.mgr.chat.MarkRead(ctx, roomID, user)
	if err != nil {
		return domain.ReadResult{}, err
	}

	if s.unread.Reset(roomID) {
		s.emit(domain.EventUnreadCountUpdate, domain.UnreadCountPayload{RoomID: roomID, Count: 0})
	}
	if res.Count == 0 {
		return res, nil
	}
	receipt := domain.Event{
		Type:    domain.EventMessagesRead,
		Payload: domain.MessagesReadPayload{ReaderUsername: user, RoomID: roomID},
	}
	for _, sender := range res.Senders {
		s.mgr.deliver(sender, receipt)
	}
	return res, nil
}

// Typing forwards a typing start/stop signal to the other online participants.
func (s *Session) Typing(ctx context.Context, roomID, sender string, typing bool) error {
	user, err := s.authenticated()
	if err != nil {
		return err
	}
	if err := checkActor(user, sender); err != nil {
		return err
	}
	room, err := s.mgr.rooms.ParticipantRoom(ctx, roomID, user)
	if err != nil {
		return fmt.Errorf("room %s: %w", roomID, err)
	}

	typ := domain.EventUserStoppedTyping
	if typing {
		typ = domain.EventUserTyping
	}
	ev := domain.Event{Type: typ, Payload: domain.TypingPayload{Sender: user, RoomID: room.ID}}
	for _, other := range room.Others(user) {
		s.mgr.deliver(other, ev)
	}
	return nil
}

// Close drops presence if this session is still the user's registered one.
// It is safe to call more than once.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	user := s.user
	s.mu.Unlock()

	if user == "" {
		return
	}
	if s.mgr.presence.Unregister(user, s) {
		slog.Info("session: logout", "user", user, "conn", s.ID())
	}
}

func (s *Session) authenticated() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.user == "" || s.closed {
		return "", domain.ErrNotAuthenticated
	}
	return s.user, nil
}

// checkActor accepts an omitted claimed identity.
func checkActor(user, claimed string) error {
	claimed = strings.TrimSpace(claimed)
	if claimed != "" && claimed != user {
		return domain.ErrSenderMismatch
	}
	return nil
}
