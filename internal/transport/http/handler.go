package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/cwrk-planet/chat-service/internal/domain"
	"github.com/cwrk-planet/chat-service/internal/service"
	httpmw "github.com/cwrk-planet/chat-service/internal/transport/http/middleware"
	"github.com/cwrk-planet/chat-service/pkg/httputil"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

type Handler struct {
	roomSvc *service.RoomService
	userSvc *service.UserService
}

func NewHandler(room *service.RoomService, user *service.UserService) *Handler {
	return &Handler{roomSvc: room, userSvc: user}
}

func writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	status := statusOf(err)
	if status >= http.StatusInternalServerError {
		httpmw.L(r.Context()).Error("handler."+op, "err", err)
		httputil.Error(w, status, "internal server error")
		return
	}
	httputil.Error(w, status, domain.PublicMessage(err))
}

func decodeJSON(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return fmt.Errorf("%w: invalid json", domain.ErrInvalidInput)
	}
	if err := validate.Struct(dst); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	return nil
}

// POST /api/signup
func (h *Handler) Signup(w http.ResponseWriter, r *http.Request) {
	var req SignupRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, "Signup", err)
		return
	}
	u, err := h.userSvc.Signup(r.Context(), req.Username, req.FullName, req.Password)
	if err != nil {
		writeError(w, r, "Signup", err)
		return
	}
	httputil.JSON(w, http.StatusCreated, UserItem{Username: u.Username, FullName: u.FullName})
}

// POST /api/login
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, "Login", err)
		return
	}
	res, err := h.userSvc.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		writeError(w, r, "Login", err)
		return
	}
	httputil.JSON(w, http.StatusOK, LoginResponse{Token: res.Token, ExpiresAt: res.ExpiresAt, User: *res.User})
}

// GET /api/users
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.userSvc.List(r.Context())
	if err != nil {
		writeError(w, r, "ListUsers", err)
		return
	}
	items := make([]UserItem, 0, len(users))
	for _, u := range users {
		items = append(items, UserItem{Username: u.Username, FullName: u.FullName})
	}
	httputil.JSON(w, http.StatusOK, items)
}

// POST /api/chat/room
func (h *Handler) FindOrCreateRoom(w http.ResponseWriter, r *http.Request) {
	var req CreateRoomRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, "FindOrCreateRoom", err)
		return
	}
	createdBy := strings.TrimSpace(req.CreatedBy)
	if user := httpmw.UserFromCtx(r.Context()); user != "" {
		if createdBy != "" && createdBy != user {
			writeError(w, r, "FindOrCreateRoom", domain.ErrSenderMismatch)
			return
		}
		createdBy = user
	}

	room, err := h.roomSvc.FindOrCreate(r.Context(), req.Participants, createdBy, req.Name)
	if err != nil {
		writeError(w, r, "FindOrCreateRoom", err)
		return
	}
	httputil.JSON(w, http.StatusOK, room)
}

// GET /api/chat/room/{id}
func (h *Handler) GetRoom(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var (
		room *domain.ChatRoom
		err  error
	)
	if user := httpmw.UserFromCtx(r.Context()); user != "" {
		room, err = h.roomSvc.ParticipantRoom(r.Context(), id, user)
	} else {
		room, err = h.roomSvc.Get(r.Context(), id)
	}
	if err != nil {
		writeError(w, r, "GetRoom", err)
		return
	}
	httputil.JSON(w, http.StatusOK, room)
}

// GET /api/chat/rooms?username=
func (h *Handler) ListRooms(w http.ResponseWriter, r *http.Request) {
	username := strings.TrimSpace(r.URL.Query().Get("username"))
	if user := httpmw.UserFromCtx(r.Context()); user != "" {
		if username != "" && username != user {
			writeError(w, r, "ListRooms", domain.ErrSenderMismatch)
			return
		}
		username = user
	}
	if username == "" {
		writeError(w, r, "ListRooms", fmt.Errorf("%w: username is required", domain.ErrInvalidInput))
		return
	}
	rooms, err := h.roomSvc.ListForUser(r.Context(), username)
	if err != nil {
		writeError(w, r, "ListRooms", err)
		return
	}
	httputil.JSON(w, http.StatusOK, rooms)
}
