package service

import (
	"context"
	"fmt"
	"maps"
	"sync"

	"github.com/cwrk-planet/chat-service/internal/domain"

	"github.com/samber/lo"
)

// UnreadService runs the authoritative, store derived unread aggregation.
type UnreadService struct {
	messages MessageStore
}

func NewUnreadService(messages MessageStore) *UnreadService {
	return &UnreadService{messages: messages}
}

// Counts returns, per room, the number of messages from others that username
// has not read yet. Rooms with nothing unread are omitted.
func (s *UnreadService) Counts(ctx context.Context, username string, rooms []domain.ChatRoom) (map[string]int, error) {
	if len(rooms) == 0 {
		return map[string]int{}, nil
	}
	ids := lo.Map(rooms, func(r domain.ChatRoom, _ int) string { return r.ID })
	counts, err := s.messages.UnreadCounts(ctx, username, ids)
	if err != nil {
		return nil, fmt.Errorf("messages.UnreadCounts: %w", err)
	}
	return lo.OmitBy(counts, func(_ string, n int) bool { return n <= 0 }), nil
}

// Ledger holds one session's unread counters. It starts from a bulk
// reconciliation and is maintained incrementally afterwards.
// Safe for concurrent use.
type Ledger struct {
	mu     sync.Mutex
	counts map[string]int
}

func NewLedger() *Ledger {
	return &Ledger{counts: make(map[string]int)}
}

// Replace discards the current counters in favour of counts.
func (l *Ledger) Replace(counts map[string]int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.counts = make(map[string]int, len(counts))
	for room, n := range counts {
		if n > 0 {
			l.counts[room] = n
		}
	}
}

// Increment adds one unread message for room and returns the new count.
func (l *Ledger) Increment(room string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.counts[room]++
	return l.counts[room]
}

// Reset zeroes room and reports whether it had unread messages.
func (l *Ledger) Reset(room string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := l.counts[room]
	delete(l.counts, room)
	return n > 0
}

func (l *Ledger) Count(room string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.counts[room]
}

func (l *Ledger) Snapshot() map[string]int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return maps.Clone(l.counts)
}
