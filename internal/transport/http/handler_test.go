package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cwrk-planet/chat-service/internal/domain"
	"github.com/cwrk-planet/chat-service/internal/memstore"
	"github.com/cwrk-planet/chat-service/internal/mocks"
	"github.com/cwrk-planet/chat-service/internal/security"
	"github.com/cwrk-planet/chat-service/internal/service"
	"github.com/cwrk-planet/chat-service/pkg/httputil"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type fixture struct {
	router http.Handler
	users  *service.UserService
}

func newFixture(t *testing.T, requireAuth bool) *fixture {
	t.Helper()
	store := memstore.New()
	users := service.NewUserService(store, security.NewTokens("secret", "chat-service", time.Hour), security.BcryptConfig{Cost: 4})
	router := NewRouter(Deps{
		Handler:       NewHandler(service.NewRoomService(store), users),
		Auth:          users,
		RequireAuth:   requireAuth,
		Health:        store,
		AllowedOrigin: []string{"*"},
	})
	return &fixture{router: router, users: users}
}

func (f *fixture) do(t *testing.T, method, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func TestRouter_Healthz(t *testing.T) {
	f := newFixture(t, false)
	rec := f.do(t, http.MethodGet, "/healthz", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestRouter_FindOrCreateRoom(t *testing.T) {
	f := newFixture(t, false)

	rec := f.do(t, http.MethodPost, "/chat/room", CreateRoomRequest{Participants: []string{"bob", "alice"}, CreatedBy: "alice"}, "")
	require.Equal(t, http.StatusOK, rec.Code)
	first := decodeBody[domain.ChatRoom](t, rec)
	require.Equal(t, []string{"alice", "bob"}, first.Participants)
	require.False(t, first.IsGroup)

	rec = f.do(t, http.MethodPost, "/api/chat/room", CreateRoomRequest{Participants: []string{"alice", " bob ", "alice"}, CreatedBy: "bob"}, "")
	require.Equal(t, http.StatusOK, rec.Code)
	second := decodeBody[domain.ChatRoom](t, rec)
	require.Equal(t, first.ID, second.ID)

	rec = f.do(t, http.MethodGet, "/api/chat/room/"+first.ID, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/chat/rooms?username=alice", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, decodeBody[[]domain.ChatRoom](t, rec), 1)
}

func TestRouter_FindOrCreateRoom_Errors(t *testing.T) {
	f := newFixture(t, false)

	rec := f.do(t, http.MethodPost, "/chat/room", CreateRoomRequest{Participants: []string{"alice", "alice"}, CreatedBy: "alice"}, "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, domain.ErrInvalidParticipants.Error(), decodeBody[httputil.ErrorBody](t, rec).Error)

	req := httptest.NewRequest(http.MethodPost, "/chat/room", bytes.NewBufferString("{"))
	raw := httptest.NewRecorder()
	f.router.ServeHTTP(raw, req)
	require.Equal(t, http.StatusBadRequest, raw.Code)

	rec = f.do(t, http.MethodGet, "/api/chat/room/missing", nil, "")
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/chat/rooms", nil, "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRouter_SignupLoginAndAuth(t *testing.T) {
	f := newFixture(t, true)

	rec := f.do(t, http.MethodPost, "/api/signup", SignupRequest{Username: "alice", FullName: "Alice A", Password: "secret"}, "")
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/signup", SignupRequest{Username: "alice", FullName: "Alice A", Password: "secret"}, "")
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/login", LoginRequest{Username: "alice", Password: "wrong"}, "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/login", LoginRequest{Username: "alice", Password: "secret"}, "")
	require.Equal(t, http.StatusOK, rec.Code)
	login := decodeBody[LoginResponse](t, rec)
	require.NotEmpty(t, login.Token)
	require.Equal(t, "alice", login.User.Username)

	rec = f.do(t, http.MethodGet, "/api/users", nil, "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/users", nil, "garbage")
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/users", nil, login.Token)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, []UserItem{{Username: "alice", FullName: "Alice A"}}, decodeBody[[]UserItem](t, rec))

	// the token pins createdBy
	rec = f.do(t, http.MethodPost, "/chat/room", CreateRoomRequest{Participants: []string{"alice", "bob"}, CreatedBy: "mallory"}, login.Token)
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(t, http.MethodPost, "/chat/room", CreateRoomRequest{Participants: []string{"bob", "carol"}}, login.Token)
	require.Equal(t, http.StatusOK, rec.Code)
	room := decodeBody[domain.ChatRoom](t, rec)
	require.Equal(t, "alice", room.CreatedBy)

	// alice is not a participant of bob/carol
	rec = f.do(t, http.MethodGet, "/api/chat/room/"+room.ID, nil, login.Token)
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRouter_StoreFailureIsInternal(t *testing.T) {
	ctrl := gomock.NewController(t)
	rooms := mocks.NewMockRoomStore(ctrl)
	rooms.EXPECT().FindByKey(gomock.Any(), gomock.Any()).Return(nil, errors.New("connection refused"))

	users := service.NewUserService(memstore.New(), security.NewTokens("secret", "chat-service", time.Hour), security.BcryptConfig{Cost: 4})
	f := &fixture{router: NewRouter(Deps{Handler: NewHandler(service.NewRoomService(rooms), users), Auth: users})}

	rec := f.do(t, http.MethodPost, "/chat/room", CreateRoomRequest{Participants: []string{"alice", "bob"}, CreatedBy: "alice"}, "")
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Equal(t, "internal server error", decodeBody[httputil.ErrorBody](t, rec).Error)
}
