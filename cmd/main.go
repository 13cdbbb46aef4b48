package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cwrk-planet/chat-service/config"
	"github.com/cwrk-planet/chat-service/internal/memstore"
	"github.com/cwrk-planet/chat-service/internal/postgres"
	"github.com/cwrk-planet/chat-service/internal/presence"
	"github.com/cwrk-planet/chat-service/internal/security"
	"github.com/cwrk-planet/chat-service/internal/service"
	"github.com/cwrk-planet/chat-service/internal/session"
	grpcx "github.com/cwrk-planet/chat-service/internal/transport/grpc"
	httpx "github.com/cwrk-planet/chat-service/internal/transport/http"
	"github.com/cwrk-planet/chat-service/internal/transport/ws"
	"github.com/cwrk-planet/chat-service/pkg/logger"

	"golang.org/x/sync/errgroup"
)

type stores struct {
	rooms    service.RoomStore
	messages service.MessageStore
	users    service.UserStore
	health   service.Pinger
	close    func()
}

func main() {
	// --- config ---
	cfg, err := config.LoadConfig()
	if err != nil {
		println("failed to load config:", err.Error())
		os.Exit(1)
	}

	logger.Init(logger.Config{
		Env:       logger.ParseEnv(cfg.Logging.Env),
		Service:   cfg.Logging.Service,
		Version:   cfg.Logging.Version,
		Backend:   logger.Backend(cfg.Logging.Backend),
		Level:     logger.ParseLevel(cfg.Logging.Level),
		AddSource: cfg.Logging.AddSource,
		Debug:     cfg.Logging.Debug,
	})
	slog.Info("starting chat-service",
		"env", cfg.Logging.Env, "version", cfg.Logging.Version, "storage", cfg.Storage.Driver)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("chat-service stopped with error", "err", err)
		os.Exit(1)
	}
	slog.Info("chat-service stopped")
}

func run(ctx context.Context, cfg *config.Config) error {
	// --- storage ---
	st, err := openStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.close()

	// --- presence ---
	var opts []presence.Option
	if cfg.Redis.Addr != "" {
		mirror, err := presence.NewRedisMirror(ctx, presence.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Prefix:   cfg.Redis.Prefix,
		})
		if err != nil {
			return err
		}
		defer func() { _ = mirror.Close() }()
		if err := mirror.Reset(ctx); err != nil {
			slog.Warn("presence mirror reset failed", "err", err)
		}
		opts = append(opts, presence.WithMirror(mirror, 2*time.Second))
		slog.Info("presence mirror enabled", "addr", cfg.Redis.Addr, "key", mirror.OnlineKey())
	}
	table := presence.NewTable(opts...)

	// --- services ---
	tokens := security.NewTokens(cfg.Security.JWTSecret, cfg.Security.JWTIssuer, cfg.Security.AccessTTL)
	roomSvc := service.NewRoomService(st.rooms)
	chatSvc := service.NewChatService(roomSvc, st.messages, cfg.Chat.MaxMessageLength)
	unreadSvc := service.NewUnreadService(st.messages)
	userSvc := service.NewUserService(st.users, tokens, security.BcryptConfig{
		Cost:      cfg.Security.BcryptCost,
		MinLength: cfg.Security.MinPasswordLength,
	})

	// --- sessions & WS ---
	sessions := session.NewManager(roomSvc, chatSvc, unreadSvc, table)
	wsServer := ws.NewServer(sessions, userSvc, ws.Config{
		PingInterval:   cfg.WebSocket.PingInterval,
		PongWait:       cfg.WebSocket.PongWait,
		WriteWait:      cfg.WebSocket.WriteWait,
		MaxMessageSize: cfg.WebSocket.MaxMessageSize,
		SendBuffer:     cfg.WebSocket.SendBuffer,
		AllowedOrigins: cfg.WebSocket.AllowedOrigins,
		RequireAuth:    cfg.Security.RequireAuth,
	})

	// --- HTTP ---
	router := httpx.NewRouter(httpx.Deps{
		Handler:        httpx.NewHandler(roomSvc, userSvc),
		WS:             wsServer.HandleWS,
		Auth:           userSvc,
		RequireAuth:    cfg.Security.RequireAuth,
		Health:         st.health,
		AllowedOrigin:  cfg.CORS.AllowedOrigins,
		RequestTimeout: cfg.HTTP.WriteTimeout,
	})
	httpSrv := httpx.NewServer(httpx.ServerConfig{
		Addr:        cfg.HTTP.Addr,
		ReadTimeout: cfg.HTTP.ReadTimeout,
		IdleTimeout: cfg.HTTP.IdleTimeout,
	}, router)

	// --- gRPC ---
	grpcSrv := grpcx.NewServer(grpcx.Config{Addr: cfg.GRPC.Addr}, st.health)

	// --- run ---
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("http listen", "addr", cfg.HTTP.Addr)
		return httpSrv.Run(gctx)
	})
	if cfg.GRPC.Addr != "" {
		g.Go(func() error {
			return grpcSrv.ListenAndRun(gctx)
		})
	}
	return g.Wait()
}

func openStores(ctx context.Context, cfg *config.Config) (*stores, error) {
	if cfg.Storage.Driver == config.DriverMemory {
		mem := memstore.New()
		slog.Warn("using in-memory storage, data is lost on restart")
		return &stores{rooms: mem, messages: mem, users: mem, health: mem, close: func() {}}, nil
	}

	db, err := postgres.New(ctx, postgres.Config{
		DSN:               cfg.Postgres.DSN,
		MaxConns:          cfg.Postgres.MaxConns,
		MinConns:          cfg.Postgres.MinConns,
		MaxConnLifetime:   cfg.Postgres.MaxConnLifetime,
		MaxConnIdleTime:   cfg.Postgres.MaxConnIdleTime,
		HealthCheckPeriod: cfg.Postgres.HealthCheckPeriod,
		ApplicationName:   cfg.Postgres.ApplicationName,
	})
	if err != nil {
		return nil, err
	}
	if cfg.Postgres.Migrate {
		if err := db.Migrate(ctx); err != nil {
			db.Close()
			return nil, err
		}
	}
	return &stores{
		rooms:    postgres.NewRoomRepository(db.Pool),
		messages: postgres.NewMessageRepository(db.Pool),
		users:    postgres.NewUserRepository(db.Pool),
		health:   db,
		close:    db.Close,
	}, nil
}
