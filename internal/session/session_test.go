package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cwrk-planet/chat-service/internal/domain"
	"github.com/cwrk-planet/chat-service/internal/memstore"
	"github.com/cwrk-planet/chat-service/internal/presence"
	"github.com/cwrk-planet/chat-service/internal/service"

	"github.com/stretchr/testify/require"
)

type recConn struct {
	id string
	mu sync.Mutex
	ev []domain.Event
}

func (c *recConn) ID() string { return c.id }

func (c *recConn) Send(ev domain.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ev = append(c.ev, ev)
	return nil
}

func (c *recConn) of(typ string) []any {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []any
	for _, e := range c.ev {
		if e.Type == typ {
			out = append(out, e.Payload)
		}
	}
	return out
}

func (c *recConn) last(typ string) any {
	all := c.of(typ)
	if len(all) == 0 {
		return nil
	}
	return all[len(all)-1]
}

func (c *recConn) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ev = nil
}

type fixture struct {
	store *memstore.Store
	rooms *service.RoomService
	table *presence.Table
	mgr   *Manager
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memstore.New()
	rooms := service.NewRoomService(store)
	table := presence.NewTable()
	return &fixture{
		store: store,
		rooms: rooms,
		table: table,
		mgr:   NewManager(rooms, service.NewChatService(rooms, store, 0), service.NewUnreadService(store), table),
	}
}

func (f *fixture) room(t *testing.T, participants ...string) *domain.ChatRoom {
	t.Helper()
	r, err := f.rooms.FindOrCreate(context.Background(), participants, participants[0], "")
	require.NoError(t, err)
	return r
}

func (f *fixture) login(t *testing.T, user string) (*Session, *recConn) {
	t.Helper()
	c := &recConn{id: user + "-conn"}
	s := f.mgr.NewSession(c, "")
	require.NoError(t, s.Login(context.Background(), user))
	return s, c
}

func TestLogin_RegistersAndBootstraps(t *testing.T) {
	f := newFixture(t)
	r := f.room(t, "kim", "lee")

	s, c := f.login(t, "kim")
	require.Equal(t, StateAuthenticated, s.State())

	got, ok := f.table.Lookup("kim")
	require.True(t, ok)
	require.Same(t, s, got)

	require.Equal(t, []string{"kim"}, c.last(domain.EventOnlineUsersUpdate))
	rooms := c.last(domain.EventChatRoomList).([]domain.ChatRoom)
	require.Len(t, rooms, 1)
	require.Equal(t, r.ID, rooms[0].ID)
	require.Equal(t, map[string]int{}, c.last(domain.EventInitialUnreadCounts))
	require.NotNil(t, c.last(domain.EventAllMessagesHistory))
}

func TestLogin_Validation(t *testing.T) {
	f := newFixture(t)
	s := f.mgr.NewSession(&recConn{id: "c"}, "")
	require.ErrorIs(t, s.Login(context.Background(), "  "), domain.ErrInvalidInput)

	bound := f.mgr.NewSession(&recConn{id: "b"}, "kim")
	require.ErrorIs(t, bound.Login(context.Background(), "lee"), domain.ErrSenderMismatch)
	require.NoError(t, bound.Login(context.Background(), "kim"))
}

func TestUnreadBootstrapScenario(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	r := f.room(t, "kim", "lee")

	kim, _ := f.login(t, "kim")
	for _, body := range []string{"one", "two", "three"} {
		_, err := kim.SendMessage(ctx, SendRequest{RoomID: r.ID, Sender: "kim", Body: body})
		require.NoError(t, err)
	}

	lee, c := f.login(t, "lee")
	require.Equal(t, map[string]int{r.ID: 3}, c.last(domain.EventInitialUnreadCounts))
	history := c.last(domain.EventAllMessagesHistory).(map[string][]domain.Message)
	require.Len(t, history[r.ID], 3)

	require.NoError(t, lee.SelectRoom(ctx, r.ID))
	require.Equal(t, StateSubscribed, lee.State())
	require.Zero(t, lee.Unread()[r.ID])
	require.Equal(t, domain.UnreadCountPayload{RoomID: r.ID, Count: 0}, c.last(domain.EventUnreadCountUpdate))
	require.Len(t, c.last(domain.EventChatHistory).([]domain.Message), 3)

	// selecting a room does not touch persisted read state
	counts, err := f.store.UnreadCounts(ctx, "lee", []string{r.ID})
	require.NoError(t, err)
	require.Equal(t, map[string]int{r.ID: 3}, counts)
}

func TestLogin_Idempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	r := f.room(t, "kim", "lee")
	f.room(t, "kim", "park")
	kim, _ := f.login(t, "kim")
	_, err := kim.SendMessage(ctx, SendRequest{RoomID: r.ID, Body: "hi"})
	require.NoError(t, err)

	lee, c := f.login(t, "lee")
	firstRooms := c.last(domain.EventChatRoomList)
	firstCounts := c.last(domain.EventInitialUnreadCounts)

	c.reset()
	require.NoError(t, lee.Login(ctx, "lee"))
	require.Equal(t, firstRooms, c.last(domain.EventChatRoomList))
	require.Equal(t, firstCounts, c.last(domain.EventInitialUnreadCounts))
}

func TestSendMessage_DeliveryExclusivity(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	r := f.room(t, "a", "b", "c")
	f.room(t, "a", "d")

	a, ca := f.login(t, "a")
	_, cb := f.login(t, "b")
	_, cc := f.login(t, "c")
	_, cd := f.login(t, "d")

	msg, err := a.SendMessage(ctx, SendRequest{RoomID: r.ID, Sender: "a", SenderFullName: "Alice", Body: "hello"})
	require.NoError(t, err)
	require.Equal(t, "Alice", msg.SenderFullName)

	require.Equal(t, []any{msg}, cb.of(domain.EventReceiveMessage))
	require.Equal(t, []any{msg}, cc.of(domain.EventReceiveMessage))
	require.Empty(t, ca.of(domain.EventReceiveMessage))
	require.Empty(t, cd.of(domain.EventReceiveMessage))
	require.Equal(t, msg, ca.last(domain.EventMessageAck))
}

func TestSendMessage_Errors(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	r := f.room(t, "kim", "lee")

	anon := f.mgr.NewSession(&recConn{id: "x"}, "")
	_, err := anon.SendMessage(ctx, SendRequest{RoomID: r.ID, Body: "hi"})
	require.ErrorIs(t, err, domain.ErrNotAuthenticated)

	kim, c := f.login(t, "kim")
	_, err = kim.SendMessage(ctx, SendRequest{RoomID: r.ID, Sender: "lee", Body: "hi"})
	require.ErrorIs(t, err, domain.ErrSenderMismatch)

	_, err = kim.SendMessage(ctx, SendRequest{RoomID: r.ID, Body: " \n "})
	require.ErrorIs(t, err, domain.ErrEmptyMessage)

	_, err = kim.SendMessage(ctx, SendRequest{Body: "hi"})
	require.ErrorIs(t, err, domain.ErrInvalidInput)

	other := f.room(t, "lee", "park")
	_, err = kim.SendMessage(ctx, SendRequest{RoomID: other.ID, Body: "hi"})
	require.ErrorIs(t, err, domain.ErrNotParticipant)
	require.Empty(t, c.of(domain.EventMessageAck))

	// the subscribed room is the default target
	require.NoError(t, kim.SelectRoom(ctx, r.ID))
	msg, err := kim.SendMessage(ctx, SendRequest{Body: "hi"})
	require.NoError(t, err)
	require.Equal(t, r.ID, msg.RoomID)
}

func TestSendMessage_DuplicateNotFannedOut(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	r := f.room(t, "kim", "lee")
	kim, ck := f.login(t, "kim")
	_, cl := f.login(t, "lee")

	req := SendRequest{RoomID: r.ID, Body: "hi", ClientMessageID: "k-1"}
	first, err := kim.SendMessage(ctx, req)
	require.NoError(t, err)
	again, err := kim.SendMessage(ctx, req)
	require.NoError(t, err)
	require.Equal(t, first.ID, again.ID)

	require.Len(t, cl.of(domain.EventReceiveMessage), 1)
	require.Len(t, ck.of(domain.EventMessageAck), 2)
}

func TestIncrementalUnread(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	r := f.room(t, "kim", "lee")
	x := f.room(t, "lee", "park")

	kim, _ := f.login(t, "kim")
	lee, cl := f.login(t, "lee")
	require.NoError(t, lee.SelectRoom(ctx, x.ID))

	_, err := kim.SendMessage(ctx, SendRequest{RoomID: r.ID, Body: "1"})
	require.NoError(t, err)
	_, err = kim.SendMessage(ctx, SendRequest{RoomID: r.ID, Body: "2"})
	require.NoError(t, err)
	require.Equal(t, 2, lee.Unread()[r.ID])
	require.Equal(t, domain.UnreadCountPayload{RoomID: r.ID, Count: 2}, cl.last(domain.EventUnreadCountUpdate))

	// the counter matches the store derived aggregate
	counts, err := f.store.UnreadCounts(ctx, "lee", []string{r.ID, x.ID})
	require.NoError(t, err)
	require.Equal(t, lee.Unread(), counts)

	// a message into the subscribed room is not counted
	require.NoError(t, lee.SelectRoom(ctx, r.ID))
	_, err = kim.SendMessage(ctx, SendRequest{RoomID: r.ID, Body: "3"})
	require.NoError(t, err)
	require.Zero(t, lee.Unread()[r.ID])

	require.NoError(t, lee.RefreshUnread(ctx))
	require.Equal(t, map[string]int{}, cl.last(domain.EventInitialUnreadCounts))
}

func TestReadReceiptScenario(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	r := f.room(t, "a", "b")

	a, ca := f.login(t, "a")
	b, cb := f.login(t, "b")
	require.NoError(t, b.SelectRoom(ctx, r.ID))

	_, err := a.SendMessage(ctx, SendRequest{RoomID: r.ID, Sender: "a", Body: "hi", Timestamp: time.UnixMilli(1000)})
	require.NoError(t, err)
	require.Len(t, cb.of(domain.EventReceiveMessage), 1)

	res, err := b.MarkRead(ctx, r.ID, "b")
	require.NoError(t, err)
	require.Equal(t, 1, res.Count)
	require.Equal(t, domain.MessagesReadPayload{ReaderUsername: "b", RoomID: r.ID}, ca.last(domain.EventMessagesRead))
	require.Empty(t, cb.of(domain.EventMessagesRead))

	hist, err := f.store.History(ctx, r.ID)
	require.NoError(t, err)
	require.True(t, hist[0].IsRead)

	// nothing new to read: no second receipt
	_, err = b.MarkRead(ctx, r.ID, "")
	require.NoError(t, err)
	require.Len(t, ca.of(domain.EventMessagesRead), 1)

	_, err = b.MarkRead(ctx, r.ID, "a")
	require.ErrorIs(t, err, domain.ErrSenderMismatch)
}

func TestGroupReadReceipts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	g := f.room(t, "kim", "lee", "park")

	kim, ck := f.login(t, "kim")
	lee, cl := f.login(t, "lee")
	park, cp := f.login(t, "park")

	_, err := kim.SendMessage(ctx, SendRequest{RoomID: g.ID, Body: "k"})
	require.NoError(t, err)
	_, err = park.SendMessage(ctx, SendRequest{RoomID: g.ID, Body: "p"})
	require.NoError(t, err)
	require.Equal(t, 2, lee.Unread()[g.ID])

	_, err = lee.MarkRead(ctx, g.ID, "lee")
	require.NoError(t, err)
	require.Zero(t, lee.Unread()[g.ID])

	want := domain.MessagesReadPayload{ReaderUsername: "lee", RoomID: g.ID}
	require.Equal(t, []any{want}, ck.of(domain.EventMessagesRead))
	require.Equal(t, []any{want}, cp.of(domain.EventMessagesRead))
	require.Empty(t, cl.of(domain.EventMessagesRead))
}

func TestTyping(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	g := f.room(t, "kim", "lee", "park")

	kim, ck := f.login(t, "kim")
	_, cl := f.login(t, "lee")

	require.NoError(t, kim.Typing(ctx, g.ID, "kim", true))
	require.NoError(t, kim.Typing(ctx, g.ID, "", false))

	require.Equal(t, []any{domain.TypingPayload{Sender: "kim", RoomID: g.ID}}, cl.of(domain.EventUserTyping))
	require.Equal(t, []any{domain.TypingPayload{Sender: "kim", RoomID: g.ID}}, cl.of(domain.EventUserStoppedTyping))
	require.Empty(t, ck.of(domain.EventUserTyping))

	require.ErrorIs(t, kim.Typing(ctx, g.ID, "lee", true), domain.ErrSenderMismatch)
	require.ErrorIs(t, kim.Typing(ctx, "missing", "kim", true), domain.ErrRoomNotFound)
}

func TestClose_StaleConnection(t *testing.T) {
	f := newFixture(t)
	first, _ := f.login(t, "kim")
	second, c2 := f.login(t, "kim")
	_, cl := f.login(t, "lee")

	first.Close()
	got, ok := f.table.Lookup("kim")
	require.True(t, ok)
	require.Same(t, second, got)
	require.Equal(t, StateAnonymous, first.State())

	second.Close()
	second.Close()
	_, ok = f.table.Lookup("kim")
	require.False(t, ok)
	require.Equal(t, []string{"lee"}, cl.last(domain.EventOnlineUsersUpdate))
	require.NotEqual(t, []string{"lee"}, c2.last(domain.EventOnlineUsersUpdate))

	require.ErrorIs(t, second.Login(context.Background(), "kim"), domain.ErrNotAuthenticated)
}

func TestLogin_SwitchUser(t *testing.T) {
	f := newFixture(t)
	s, _ := f.login(t, "kim")
	require.NoError(t, s.Login(context.Background(), "lee"))

	_, ok := f.table.Lookup("kim")
	require.False(t, ok)
	got, ok := f.table.Lookup("lee")
	require.True(t, ok)
	require.Same(t, s, got)
}
