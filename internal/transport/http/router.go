package http

import (
	"context"
	"net/http"
	"time"

	"github.com/cwrk-planet/chat-service/internal/service"
	httpmw "github.com/cwrk-planet/chat-service/internal/transport/http/middleware"
	"github.com/cwrk-planet/chat-service/pkg/httputil"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

type Deps struct {
	Handler *Handler
	// WS serves the chat event channel.
	WS            http.HandlerFunc
	Auth          httpmw.Authenticator
	RequireAuth   bool
	Health        service.Pinger
	AllowedOrigin []string
	// RequestTimeout applies to REST routes only.
	RequestTimeout time.Duration
}

func NewRouter(d Deps) http.Handler {
	if d.RequestTimeout <= 0 {
		d.RequestTimeout = 30 * time.Second
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(httpmw.WithRequestLoggerCtx)
	r.Use(httpmw.RequestLogger)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   d.AllowedOrigin,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/healthz", healthz(d.Health))

	// long lived, so no request timeout
	if d.WS != nil {
		r.Get("/ws", d.WS)
		r.Get("/socket", d.WS)
	}

	h := d.Handler
	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(d.RequestTimeout))

		r.Route("/api", func(r chi.Router) {
			r.Post("/signup", h.Signup)
			r.Post("/login", h.Login)

			r.Group(func(r chi.Router) {
				r.Use(httpmw.Auth(d.Auth, d.RequireAuth))
				r.Get("/users", h.ListUsers)
				r.Post("/chat/room", h.FindOrCreateRoom)
				r.Get("/chat/room/{id}", h.GetRoom)
				r.Get("/chat/rooms", h.ListRooms)
			})
		})

		r.With(httpmw.Auth(d.Auth, d.RequireAuth)).Post("/chat/room", h.FindOrCreateRoom)
	})

	return r
}

func healthz(p service.Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if p != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := p.Ping(ctx); err != nil {
				httpmw.L(r.Context()).Warn("health check failed", "err", err)
				httputil.JSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		httputil.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
