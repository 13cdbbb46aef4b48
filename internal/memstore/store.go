// Package memstore keeps rooms, messages and users in process memory. It
// backs the "memory" storage driver and the tests of the chat core.
package memstore

import (
	"cmp"
	"context"
	"slices"
	"sync"

	"github.com/cwrk-planet/chat-service/internal/domain"
)

type Store struct {
	mu sync.RWMutex

	rooms    map[string]*domain.ChatRoom // id -> room
	roomKeys map[string]string           // participants key -> id

	messages map[string][]domain.Message // room id -> messages ascending by seq
	cursors  map[string]map[string]int64 // room id -> user -> last read seq

	users map[string]domain.User
}

func New() *Store {
	return &Store{
		rooms:    make(map[string]*domain.ChatRoom),
		roomKeys: make(map[string]string),
		messages: make(map[string][]domain.Message),
		cursors:  make(map[string]map[string]int64),
		users:    make(map[string]domain.User),
	}
}

func (s *Store) Ping(context.Context) error { return nil }

// --- rooms ---

func (s *Store) FindByKey(_ context.Context, key string) (*domain.ChatRoom, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.roomKeys[key]
	if !ok {
		return nil, domain.ErrRoomNotFound
	}
	return cloneRoom(s.rooms[id]), nil
}

func (s *Store) Create(_ context.Context, room *domain.ChatRoom) (*domain.ChatRoom, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.roomKeys[room.ParticipantsKey]; ok {
		return cloneRoom(s.rooms[id]), false, nil
	}
	stored := cloneRoom(room)
	s.rooms[stored.ID] = stored
	s.roomKeys[stored.ParticipantsKey] = stored.ID
	return cloneRoom(stored), true, nil
}

func (s *Store) Get(_ context.Context, id string) (*domain.ChatRoom, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rooms[id]
	if !ok {
		return nil, domain.ErrRoomNotFound
	}
	return cloneRoom(r), nil
}

func (s *Store) ListByParticipant(_ context.Context, username string) ([]domain.ChatRoom, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.ChatRoom
	for _, r := range s.rooms {
		if r.HasParticipant(username) {
			out = append(out, *cloneRoom(r))
		}
	}
	slices.SortFunc(out, func(a, b domain.ChatRoom) int {
		if c := b.UpdatedAt.Compare(a.UpdatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out, nil
}

// --- messages ---

func (s *Store) Append(_ context.Context, msg *domain.Message) (*domain.Message, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[msg.RoomID]
	if !ok {
		return nil, false, domain.ErrRoomNotFound
	}
	if msg.ClientMessageID != "" {
		for _, m := range s.messages[msg.RoomID] {
			if m.Sender == msg.Sender && m.ClientMessageID == msg.ClientMessageID {
				dup := m
				return &dup, true, nil
			}
		}
	}

	room.LastSeq++
	if msg.CreatedAt.After(room.UpdatedAt) {
		room.UpdatedAt = msg.CreatedAt
	}
	stored := *msg
	stored.Seq = room.LastSeq
	stored.IsRead = false
	s.messages[msg.RoomID] = append(s.messages[msg.RoomID], stored)
	return &stored, false, nil
}

func (s *Store) History(_ context.Context, roomID string) ([]domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.messages[roomID]), nil
}

func (s *Store) MarkRead(_ context.Context, roomID, reader string) (domain.ReadResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[roomID]
	if !ok {
		return domain.ReadResult{}, domain.ErrRoomNotFound
	}
	if s.cursors[roomID] == nil {
		s.cursors[roomID] = make(map[string]int64)
	}
	prev := s.cursors[roomID][reader]
	res := domain.ReadResult{LastReadSeq: prev}
	if room.LastSeq <= prev {
		return res, nil
	}

	msgs := s.messages[roomID]
	for i := range msgs {
		m := &msgs[i]
		if m.Seq <= prev || m.Seq > room.LastSeq || m.Sender == reader {
			continue
		}
		res.Count++
		m.IsRead = true
		if !slices.Contains(res.Senders, m.Sender) {
			res.Senders = append(res.Senders, m.Sender)
		}
	}
	slices.Sort(res.Senders)
	s.cursors[roomID][reader] = room.LastSeq
	res.LastReadSeq = room.LastSeq
	return res, nil
}

func (s *Store) UnreadCounts(_ context.Context, username string, roomIDs []string) (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]int)
	for _, id := range roomIDs {
		last := s.cursors[id][username]
		n := 0
		for _, m := range s.messages[id] {
			if m.Sender != username && m.Seq > last {
				n++
			}
		}
		if n > 0 {
			out[id] = n
		}
	}
	return out, nil
}

func (s *Store) MessagesForUser(_ context.Context, username string) ([]domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0)
	for id, r := range s.rooms {
		if r.HasParticipant(username) {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	var out []domain.Message
	for _, id := range ids {
		out = append(out, s.messages[id]...)
	}
	return out, nil
}

// --- users ---

func (s *Store) CreateUser(_ context.Context, u *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[u.Username]; ok {
		return domain.ErrUserExists
	}
	s.users[u.Username] = *u
	return nil
}

func (s *Store) GetByUsername(_ context.Context, username string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[username]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return &u, nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, u)
	}
	slices.SortFunc(out, func(a, b domain.User) int { return cmp.Compare(a.Username, b.Username) })
	return out, nil
}

func cloneRoom(r *domain.ChatRoom) *domain.ChatRoom {
	c := *r
	c.Participants = slices.Clone(r.Participants)
	return &c
}
