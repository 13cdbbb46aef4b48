// Package presence tracks which connection currently represents each user.
package presence

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/cwrk-planet/chat-service/internal/domain"
)

// Conn is a live client connection. Send must not block.
type Conn interface {
	ID() string
	Send(ev domain.Event) error
}

// Registry maps a username to its single live connection.
type Registry interface {
	// Register makes c the connection of user, replacing any previous one.
	Register(user string, c Conn)
	// Unregister removes user only while c is still its registered
	// connection and reports whether it did.
	Unregister(user string, c Conn) bool
	Lookup(user string) (Conn, bool)
	// Online returns the registered usernames in sorted order.
	Online() []string
}

// Mirror receives presence changes after they were applied locally.
type Mirror interface {
	Online(ctx context.Context, user string) error
	Offline(ctx context.Context, user string) error
	Publish(ctx context.Context, users []string) error
}

// Table is the in-process Registry. Every change is followed by an
// online_users_update broadcast to all registered connections.
type Table struct {
	mu    sync.RWMutex
	conns map[string]Conn

	mirror        Mirror
	mirrorTimeout time.Duration
}

type Option func(*Table)

// WithMirror copies presence changes to m, for example Redis. A zero
// timeout keeps the default of two seconds per change.
func WithMirror(m Mirror, timeout time.Duration) Option {
	return func(t *Table) {
		t.mirror = m
		if timeout > 0 {
			t.mirrorTimeout = timeout
		}
	}
}

func NewTable(opts ...Option) *Table {
	t := &Table{conns: make(map[string]Conn), mirrorTimeout: 2 * time.Second}
	for _, o := range opts {
		o(t)
	}
	return t
}

func (t *Table) Register(user string, c Conn) {
	t.mu.Lock()
	if prev, ok := t.conns[user]; ok && prev != c {
		slog.Info("presence: connection replaced", "user", user, "prev_conn", prev.ID(), "conn", c.ID())
	}
	t.conns[user] = c
	online := t.broadcastLocked()
	t.mu.Unlock()

	t.mirrorChange(user, true, online)
}

func (t *Table) Unregister(user string, c Conn) bool {
	t.mu.Lock()
	cur, ok := t.conns[user]
	if !ok || cur != c {
		t.mu.Unlock()
		slog.Debug("presence: stale unregister ignored", "user", user, "conn", c.ID())
		return false
	}
	delete(t.conns, user)
	online := t.broadcastLocked()
	t.mu.Unlock()

	t.mirrorChange(user, false, online)
	return true
}

func (t *Table) Lookup(user string) (Conn, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	c, ok := t.conns[user]
	return c, ok
}

func (t *Table) Online() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.onlineLocked()
}

func (t *Table) onlineLocked() []string {
	users := make([]string, 0, len(t.conns))
	for u := range t.conns {
		users = append(users, u)
	}
	slices.Sort(users)
	return users
}

// broadcastLocked sends the snapshot while the write lock is held so that
// clients never observe snapshots out of order.
func (t *Table) broadcastLocked() []string {
	online := t.onlineLocked()
	ev := domain.Event{Type: domain.EventOnlineUsersUpdate, Payload: online}
	for user, c := range t.conns {
		if err := c.Send(ev); err != nil {
			slog.Warn("presence: broadcast failed", "user", user, "conn", c.ID(), "err", err)
		}
	}
	return online
}

func (t *Table) mirrorChange(user string, online bool, snapshot []string) {
	if t.mirror == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), t.mirrorTimeout)
	defer cancel()

	var err error
	if online {
		err = t.mirror.Online(ctx, user)
	} else {
		err = t.mirror.Offline(ctx, user)
	}
	if err == nil {
		err = t.mirror.Publish(ctx, snapshot)
	}
	if err != nil {
		slog.Warn("presence: mirror update failed", "user", user, "online", online, "err", err)
	}
}
