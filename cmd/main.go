package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cwrk-planet/watchparty/config"
	"github.com/cwrk-planet/watchparty/internal/auth"
	"github.com/cwrk-planet/watchparty/internal/memstore"
	"github.com/cwrk-planet/watchparty/internal/postgres"
	"github.com/cwrk-planet/watchparty/internal/redisstate"
	"github.com/cwrk-planet/watchparty/internal/service"
	grpcx "github.com/cwrk-planet/watchparty/internal/transport/grpc"
	httpx "github.com/cwrk-planet/watchparty/internal/transport/http"
	"github.com/cwrk-planet/watchparty/internal/transport/ws"
	"github.com/cwrk-planet/watchparty/pkg/logger"

	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc/health"
)

func main() {
	// --- config ---
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
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
	logger.L().Info("starting watchparty",
		"env", cfg.Logging.Env, "version", cfg.Logging.Version, "storage", cfg.Storage)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logger.L().Error("watchparty stopped", "err", err)
		os.Exit(1)
	}
	logger.L().Info("stopped")
}

type stores struct {
	rooms        service.RoomStore
	participants service.ParticipantStore
	videos       service.VideoStore
	chat         service.ChatStore
	cache        service.PlaybackCache

	checks  []grpcx.Check
	closers []func()
}

func (s *stores) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

func openStores(ctx context.Context, cfg *config.Config) (*stores, error) {
	st := &stores{}

	switch cfg.Storage {
	case "memory":
		logger.L().Warn("in-memory storage: rooms and chat are lost on restart")
		st.rooms = memstore.NewRooms()
		st.participants = memstore.NewParticipants()
		st.videos = memstore.NewVideos(true)
		st.chat = memstore.NewChat()
	default:
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
			return nil, fmt.Errorf("postgres: %w", err)
		}
		st.closers = append(st.closers, db.Close)
		st.checks = append(st.checks, grpcx.Check{Name: "postgres", Fn: db.Ping})

		st.rooms = postgres.NewRoomRepository(db.Pool)
		st.participants = postgres.NewParticipantRepository(db.Pool)
		st.videos = postgres.NewVideoRepository(db.Pool)
		st.chat = postgres.NewChatRepository(db.Pool)
	}

	if cfg.Redis.Addr != "" {
		client, err := redisstate.New(ctx, redisstate.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			st.close()
			return nil, err
		}
		st.closers = append(st.closers, func() { _ = client.Close() })
		st.checks = append(st.checks, grpcx.Check{Name: "redis", Fn: func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		}})
		st.cache = redisstate.NewPlaybackRepository(client, cfg.Redis.KeyPrefix, cfg.Redis.TTL)
	} else {
		logger.L().Warn("redis disabled: playback position is not restored after restart")
	}
	return st, nil
}

func newResolver(cfg config.Auth) (auth.Resolver, error) {
	if cfg.Mode == "trust" {
		logger.L().Warn("auth mode trust: identities are taken from headers as is")
		return auth.TrustResolver{}, nil
	}
	pub, err := auth.LoadRSAPublicKeyFromPEM(cfg.PublicKeyPath)
	if err != nil {
		return nil, fmt.Errorf("load jwt public key: %w", err)
	}
	return auth.NewJWTResolver(pub, cfg.Issuer, cfg.Audience, cfg.ClockSkew), nil
}

func run(ctx context.Context, cfg *config.Config) error {
	// --- stores ---
	st, err := openStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.close()

	resolver, err := newResolver(cfg.Auth)
	if err != nil {
		return err
	}

	// --- services ---
	hub := ws.NewHub()
	reg := service.NewRegistry(st.rooms, st.participants, st.videos, st.cache, hub, service.Options{
		DefaultMaxParticipants: cfg.Party.DefaultMaxParticipants,
		MaxParticipantsLimit:   cfg.Party.MaxParticipantsLimit,
		CodeAttempts:           cfg.Party.CodeAttempts,
		PersistTimeout:         cfg.Party.PersistTimeout,
		PersistRetries:         cfg.Party.PersistRetries,
	})
	memberSvc := service.NewMemberService(reg)
	playbackSvc := service.NewPlaybackService(reg)
	chatSvc := service.NewChatService(reg, st.chat)

	// --- WS ---
	wsServer := ws.NewServer(hub, resolver, reg, memberSvc, playbackSvc, chatSvc, ws.Options{
		PingInterval:   cfg.Party.PingInterval,
		SendQueue:      cfg.Party.SendQueue,
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
	})

	// --- health ---
	hs := health.NewServer()
	probe := grpcx.NewHealthProbe(hs, 10*time.Second, st.checks...)

	// --- HTTP ---
	handler := httpx.NewHandler(reg, memberSvc, playbackSvc, chatSvc)
	httpSrv := &http.Server{
		Addr: cfg.HTTP.Addr,
		Handler: httpx.NewRouter(httpx.Deps{
			Handler:        handler,
			Resolver:       resolver,
			WS:             wsServer,
			Ready:          func(context.Context) error { return probe.Err() },
			AllowedOrigins: cfg.HTTP.AllowedOrigins,
		}),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	// --- gRPC ---
	grpcServer := grpcx.NewServer(hs)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.L().Info("http listen", "addr", cfg.HTTP.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		lis, err := net.Listen("tcp", cfg.GRPC.Addr)
		if err != nil {
			return fmt.Errorf("grpc listen: %w", err)
		}
		logger.L().Info("grpc listen", "addr", cfg.GRPC.Addr)
		return grpcServer.Serve(lis)
	})
	g.Go(func() error {
		return probe.Run(gctx)
	})
	g.Go(func() error {
		return reg.RunSweeper(gctx, cfg.Party.SweepInterval, cfg.Party.EndedRoomTTL, cfg.Party.IdleRoomTTL)
	})

	// --- graceful shutdown ---
	g.Go(func() error {
		<-gctx.Done()
		logger.L().Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()

		hub.CloseAll()
		grpcServer.GracefulStop()
		return httpSrv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
