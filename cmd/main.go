package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jamnotes/jam-service/config"
	"github.com/jamnotes/jam-service/internal/broadcast"
	"github.com/jamnotes/jam-service/internal/postgres"
	"github.com/jamnotes/jam-service/internal/security"
	"github.com/jamnotes/jam-service/internal/service"
	httpx "github.com/jamnotes/jam-service/internal/transport/http"
	httpmw "github.com/jamnotes/jam-service/internal/transport/http/middleware"
	"github.com/jamnotes/jam-service/internal/transport/ws"
	"github.com/jamnotes/jam-service/internal/worker"
	"github.com/jamnotes/jam-service/pkg/logger"

	"github.com/go-redis/redis/v8"
	"github.com/hibiken/asynq"
)

func main() {
	// --- config ---
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger.Init(logger.Config{
		Env:       logger.Env(cfg.Logging.Env),
		Service:   cfg.Logging.Service,
		Version:   cfg.Logging.Version,
		Backend:   logger.Backend(cfg.Logging.Backend),
		AddSource: cfg.Logging.AddSource,
		Debug:     cfg.Logging.Debug,
	})
	slog.Info("starting jam-service",
		"env", cfg.Logging.Env, "version", cfg.Logging.Version)

	// --- postgres ---
	ctx := context.Background()
	db, err := postgres.New(ctx, cfg.Postgres.DSN)
	if err != nil {
		log.Fatalf("postgres: %v", err)
	}
	defer db.Close()

	// --- redis (broadcast channel + worker queue) ---
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatalf("redis: %v", err)
	}
	defer rdb.Close()

	// --- repos ---
	roomRepo := postgres.NewRoomRepository(db.Pool)
	partRepo := postgres.NewParticipantRepository(db.Pool)
	msgRepo := postgres.NewMessageRepository(db.Pool)
	trackRepo := postgres.NewTrackRepository(db.Pool)

	// --- services ---
	bus := broadcast.NewPublisher(rdb, broadcast.DefaultPrefix)
	roomSvc := service.NewRoomService(roomRepo, partRepo, msgRepo, trackRepo, bus)
	chatSvc := service.NewChatService(msgRepo, partRepo, bus)
	playbackSvc := service.NewPlaybackService(roomRepo, partRepo, msgRepo, trackRepo, bus)
	trackSvc := service.NewTrackService(trackRepo)

	tokens := security.NewTokens(cfg.Auth.Secret, cfg.RTMTokenTTL())

	// --- WS hub & server ---
	hub := ws.NewHub()
	wsServer := ws.NewServer(hub, tokens, rdb, broadcast.DefaultPrefix,
		roomSvc, chatSvc, playbackSvc, partRepo, cfg.PollInterval(), cfg.Session.MessageHistory)

	// --- HTTP ---
	limiter := httpmw.NewRateLimiter(10, 30, 5*time.Minute)
	defer limiter.Stop()

	handler := httpx.NewHandler(roomSvc, chatSvc, playbackSvc, trackSvc, tokens)
	router := httpx.NewRouter(handler, tokens, partRepo, limiter, wsServer)
	httpSrv := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 2)

	go func() {
		slog.Info("http listen", "addr", cfg.HTTP.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// --- background sweeper ---
	var workerSrv *worker.Server
	if cfg.Worker.Enabled {
		sweep := worker.NewSweepHandler(partRepo, roomRepo, chatSvc, bus)
		workerSrv = worker.NewServer(asynq.RedisClientOpt{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}, sweep, cfg.Worker.SweepEvery, cfg.StaleAfter(), cfg.EmptyRoomAfter())

		go func() {
			if err := workerSrv.Start(); err != nil {
				errCh <- err
			}
		}()
	}

	// --- graceful shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("shutdown signal", "sig", sig)
	case err := <-errCh:
		slog.Error("server error", "err", err)
	}

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if workerSrv != nil {
		workerSrv.Shutdown()
	}
	slog.Info("draining ws connections", "count", hub.Count())
	hub.CloseAll()
	_ = httpSrv.Shutdown(ctxShutdown)
	slog.Info("stopped")
}
