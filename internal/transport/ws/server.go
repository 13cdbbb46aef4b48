package ws

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"runtime/debug"
	"slices"
	"strings"
	"time"

	"github.com/cwrk-planet/chat-service/internal/domain"
	"github.com/cwrk-planet/chat-service/internal/security"
	"github.com/cwrk-planet/chat-service/internal/session"
	httpmw "github.com/cwrk-planet/chat-service/internal/transport/http/middleware"

	"github.com/gorilla/websocket"
)

type Authenticator interface {
	Authenticate(raw string) (*security.Claims, error)
}

type Config struct {
	PingInterval   time.Duration
	PongWait       time.Duration
	WriteWait      time.Duration
	MaxMessageSize int64
	SendBuffer     int
	AllowedOrigins []string // empty: any origin
	// RequireAuth rejects the handshake without a valid access token.
	RequireAuth bool
	// EventTimeout bounds the store work of one inbound event.
	EventTimeout time.Duration
}

type Server struct {
	upgrader websocket.Upgrader
	sessions *session.Manager
	auth     Authenticator
	cfg      Config
}

func NewServer(sessions *session.Manager, auth Authenticator, cfg Config) *Server {
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 15 * time.Second
	}
	if cfg.PongWait <= cfg.PingInterval {
		cfg.PongWait = 2 * cfg.PingInterval
	}
	if cfg.WriteWait <= 0 {
		cfg.WriteWait = 5 * time.Second
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = 1 << 20
	}
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = 256
	}
	if cfg.EventTimeout <= 0 {
		cfg.EventTimeout = 10 * time.Second
	}

	s := &Server{sessions: sessions, auth: auth, cfg: cfg}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

func (s *Server) checkOrigin(r *http.Request) bool {
	if len(s.cfg.AllowedOrigins) == 0 || slices.Contains(s.cfg.AllowedOrigins, "*") {
		return true
	}
	return slices.Contains(s.cfg.AllowedOrigins, r.Header.Get("Origin"))
}

// HandleWS upgrades GET /ws. The access token, when present, comes from
// ?access_token= or the Authorization header and pins the login identity.
func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	bound, err := s.boundUser(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("ws upgrade failed", "err", err)
		return
	}

	c := newWsConn(conn, s.cfg.SendBuffer)
	sess := s.sessions.NewSession(c, bound)
	slog.Debug("ws connected", "conn", c.ID(), "remote", r.RemoteAddr, "bound_user", bound)

	go c.writeLoop(s.cfg.PingInterval, s.cfg.WriteWait)
	s.readLoop(r.Context(), c, sess)

	sess.Close()
	if err := c.Close(); err != nil {
		slog.Debug("ws close failed", "conn", c.ID(), "err", err)
	}
	slog.Debug("ws disconnected", "conn", c.ID(), "user", sess.User())
}

func (s *Server) boundUser(r *http.Request) (string, error) {
	token := strings.TrimSpace(r.URL.Query().Get("access_token"))
	if token == "" {
		token, _ = httpmw.BearerToken(r)
	}
	if token == "" {
		if s.cfg.RequireAuth {
			return "", errors.New("missing access_token")
		}
		return "", nil
	}
	if s.auth == nil {
		return "", nil
	}
	claims, err := s.auth.Authenticate(token)
	if err != nil {
		return "", err
	}
	return claims.Username, nil
}

func (s *Server) readLoop(ctx context.Context, c *wsConn, sess *session.Session) {
	c.conn.SetReadLimit(s.cfg.MaxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(s.cfg.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(s.cfg.PongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				slog.Debug("ws read failed", "conn", c.ID(), "err", err)
			}
			return
		}
		s.dispatch(ctx, sess, data)
	}
}

// dispatch runs one inbound event to completion. A failing event is
// logged and answered with operation_failed; it never ends the connection.
func (s *Server) dispatch(ctx context.Context, sess *session.Session, data []byte) {
	var in inbound
	defer func() {
		if r := recover(); r != nil {
			slog.Error("ws event panic", "event", in.Type, "conn", sess.ID(), "panic", r, "stack", string(debug.Stack()))
			s.fail(sess, in.Type, errors.New("internal error"))
		}
	}()

	if err := decodeFrame(data, &in); err != nil {
		s.fail(sess, "", err)
		return
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.EventTimeout)
	defer cancel()

	if err := s.handle(ctx, sess, in); err != nil {
		s.fail(sess, in.Type, err)
	}
}

func (s *Server) handle(ctx context.Context, sess *session.Session, in inbound) error {
	switch in.Type {
	case domain.EventLogin:
		username, err := decodeLogin(in.Payload)
		if err != nil {
			return err
		}
		return sess.Login(ctx, username)

	case domain.EventGetChatHistory:
		var p historyPayload
		if err := decode(in.Payload, &p); err != nil {
			return err
		}
		return sess.SelectRoom(ctx, pickRoom(p.RoomID, p.ChatRoomID))

	case domain.EventSendMessage:
		var p sendPayload
		if err := decode(in.Payload, &p); err != nil {
			return err
		}
		_, err := sess.SendMessage(ctx, session.SendRequest{
			RoomID:          pickRoom(p.RoomID, p.ChatRoomID),
			Sender:          p.Sender,
			SenderFullName:  p.SenderFullName,
			Body:            p.Message,
			Timestamp:       time.Time(p.Timestamp),
			ClientMessageID: p.ClientMessageID,
		})
		return err

	case domain.EventTypingStart, domain.EventTypingStop:
		var p typingPayload
		if err := decode(in.Payload, &p); err != nil {
			return err
		}
		return sess.Typing(ctx, pickRoom(p.RoomID, p.ChatRoomID), p.Sender, in.Type == domain.EventTypingStart)

	case domain.EventMarkAsRead:
		var p markReadPayload
		if err := decode(in.Payload, &p); err != nil {
			return err
		}
		_, err := sess.MarkRead(ctx, pickRoom(p.RoomID, p.ChatRoomID), p.ReaderUsername)
		return err

	case domain.EventGetUnreadCounts:
		return sess.RefreshUnread(ctx)

	default:
		return errUnknownEvent
	}
}

var errUnknownEvent = errors.New("unknown event")

func (s *Server) fail(sess *session.Session, event string, err error) {
	msg := domain.PublicMessage(err)
	switch {
	case errors.Is(err, errUnknownEvent):
		msg = err.Error()
		slog.Debug("ws unknown event", "event", event, "conn", sess.ID())
	case domain.IsClientError(err):
		slog.Warn("ws event rejected", "event", event, "conn", sess.ID(), "user", sess.User(), "err", err)
	default:
		slog.Error("ws event failed", "event", event, "conn", sess.ID(), "user", sess.User(), "err", err)
	}
	if sendErr := sess.Send(domain.Event{
		Type:    domain.EventOperationFailed,
		Payload: domain.OperationFailedPayload{Event: event, Error: msg},
	}); sendErr != nil {
		slog.Debug("ws send operation_failed", "conn", sess.ID(), "err", sendErr)
	}
}
