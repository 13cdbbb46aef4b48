package postgres

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/cwrk-planet/chat-service/internal/domain"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN is not set")
	}
	ctx := context.Background()
	db, err := New(ctx, Config{DSN: dsn, ApplicationName: "chat-service-test"})
	require.NoError(t, err)
	t.Cleanup(db.Close)

	require.NoError(t, db.Migrate(ctx))
	require.NoError(t, db.Migrate(ctx))
	_, err = db.Pool.Exec(ctx, `TRUNCATE chat_read_cursors, chat_messages, chat_rooms, users`)
	require.NoError(t, err)
	return db
}

func newRoom(t *testing.T, rooms *RoomRepository, users ...string) *domain.ChatRoom {
	t.Helper()
	normalized, err := domain.NormalizeParticipants(users)
	require.NoError(t, err)
	room, created, err := rooms.Create(context.Background(),
		domain.NewChatRoom(uuid.NewString(), normalized, normalized[0], "", time.Now().UTC()))
	require.NoError(t, err)
	require.True(t, created)
	return room
}

func newMessage(room *domain.ChatRoom, sender, body, clientID string) *domain.Message {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &domain.Message{
		ID:              uuid.NewString(),
		RoomID:          room.ID,
		Sender:          sender,
		SenderFullName:  sender,
		Body:            body,
		Timestamp:       now,
		CreatedAt:       now,
		ClientMessageID: clientID,
	}
}

func TestRoomRepository_CreateIsKeyed(t *testing.T) {
	db := openTestDB(t)
	rooms := NewRoomRepository(db.Pool)
	ctx := context.Background()

	room := newRoom(t, rooms, "bob", "alice")

	normalized, _ := domain.NormalizeParticipants([]string{"alice", "bob"})
	again, created, err := rooms.Create(ctx, domain.NewChatRoom(uuid.NewString(), normalized, "bob", "", time.Now()))
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, room.ID, again.ID)

	got, err := rooms.Get(ctx, room.ID)
	require.NoError(t, err)
	require.Equal(t, []string{"alice", "bob"}, got.Participants)

	_, err = rooms.Get(ctx, "not-a-uuid")
	require.ErrorIs(t, err, domain.ErrRoomNotFound)
	_, err = rooms.Get(ctx, uuid.NewString())
	require.ErrorIs(t, err, domain.ErrRoomNotFound)

	list, err := rooms.ListByParticipant(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, list, 1)
}

func TestMessageRepository_AppendAndRead(t *testing.T) {
	db := openTestDB(t)
	rooms := NewRoomRepository(db.Pool)
	msgs := NewMessageRepository(db.Pool)
	ctx := context.Background()

	room := newRoom(t, rooms, "alice", "bob", "carol")

	first, dup, err := msgs.Append(ctx, newMessage(room, "alice", "hi", "c-1"))
	require.NoError(t, err)
	require.False(t, dup)
	require.EqualValues(t, 1, first.Seq)

	retry, dup, err := msgs.Append(ctx, newMessage(room, "alice", "hi", "c-1"))
	require.NoError(t, err)
	require.True(t, dup)
	require.Equal(t, first.ID, retry.ID)

	_, _, err = msgs.Append(ctx, newMessage(room, "carol", "yo", ""))
	require.NoError(t, err)
	third, _, err := msgs.Append(ctx, newMessage(room, "carol", "again", ""))
	require.NoError(t, err)
	require.EqualValues(t, 3, third.Seq)

	history, err := msgs.History(ctx, room.ID)
	require.NoError(t, err)
	require.Len(t, history, 3)
	require.Equal(t, "c-1", history[0].ClientMessageID)

	counts, err := msgs.UnreadCounts(ctx, "bob", []string{room.ID, "bogus"})
	require.NoError(t, err)
	require.Equal(t, map[string]int{room.ID: 3}, counts)

	res, err := msgs.MarkRead(ctx, room.ID, "bob")
	require.NoError(t, err)
	require.Equal(t, 3, res.Count)
	require.Equal(t, []string{"alice", "carol"}, res.Senders)
	require.EqualValues(t, 3, res.LastReadSeq)

	res, err = msgs.MarkRead(ctx, room.ID, "bob")
	require.NoError(t, err)
	require.Zero(t, res.Count)

	counts, err = msgs.UnreadCounts(ctx, "bob", []string{room.ID})
	require.NoError(t, err)
	require.Empty(t, counts)

	all, err := msgs.MessagesForUser(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.True(t, all[0].IsRead)

	_, err = msgs.MarkRead(ctx, uuid.NewString(), "bob")
	require.ErrorIs(t, err, domain.ErrRoomNotFound)
}

func TestMessageRepository_ConcurrentAppendIsGapFree(t *testing.T) {
	db := openTestDB(t)
	rooms := NewRoomRepository(db.Pool)
	msgs := NewMessageRepository(db.Pool)
	room := newRoom(t, rooms, "alice", "bob")

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := msgs.Append(context.Background(), newMessage(room, "alice", "x", ""))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	history, err := msgs.History(context.Background(), room.ID)
	require.NoError(t, err)
	require.Len(t, history, 20)
	for i, m := range history {
		require.EqualValues(t, i+1, m.Seq)
	}
}

func TestUserRepository(t *testing.T) {
	db := openTestDB(t)
	users := NewUserRepository(db.Pool)
	ctx := context.Background()

	u := &domain.User{Username: "alice", FullName: "Alice", PasswordHash: "h", CreatedAt: time.Now().UTC()}
	require.NoError(t, users.CreateUser(ctx, u))
	require.ErrorIs(t, users.CreateUser(ctx, u), domain.ErrUserExists)

	got, err := users.GetByUsername(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, "Alice", got.FullName)

	_, err = users.GetByUsername(ctx, "nobody")
	require.ErrorIs(t, err, domain.ErrUserNotFound)

	list, err := users.ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
}
