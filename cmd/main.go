package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"roomchat/backend/internal/api/handler"
	"roomchat/backend/internal/auth"
	"roomchat/backend/internal/chat"
	"roomchat/backend/internal/chathub"
	"roomchat/backend/internal/config"
	"roomchat/backend/internal/storage"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := config.NewLogger(cfg.Logging())
	log.Info("starting roomchat backend", "addr", cfg.HTTPAddr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := storage.Open(cfg.DatabaseDSN, log)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	store := storage.NewStorageService(db)
	defer store.Close()
	if err := store.Migrate(ctx); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}

	svc := chat.NewService(store, log)
	verifier := auth.NewVerifier(cfg.JWTSecret)
	hub := chathub.NewHub(chathub.NewRegistry(), svc, verifier, log, chathub.Options{
		SendBufferSize:   cfg.SendBufferSize,
		MaxFrameBytes:    cfg.MaxFrameBytes,
		MaxMessageLength: cfg.MaxMessageLength,
		FrameTimeout:     cfg.RequestTimeout,
	})

	g, ctx := errgroup.WithContext(ctx)

	if cfg.RedisEnabled() {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		relay := chathub.NewRedisFanout(rdb, hub.Registry, cfg.RedisChannelPrefix, log)
		hub.SetFanout(relay)
		g.Go(func() error { return relay.Run(ctx) })
		log.Info("redis relay enabled", "addr", cfg.RedisAddr)
	}

	gin.SetMode(gin.ReleaseMode)
	h := handler.NewHandler(hub, svc, verifier, store, log, handler.Options{
		AllowedOrigins: cfg.Origins(),
		RequestTimeout: cfg.RequestTimeout,
	})
	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           h.NewRouter(),
		ReadHeaderTimeout: 10 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	g.Go(func() error {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		log.Info("shutting down")
		return shutdown(server, hub, cfg.ShutdownTimeout)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("stopped")
	return nil
}

// shutdown stops accepting connections before closing the live sessions, so
// no upgrade can register a session after the hub has been emptied.
func shutdown(server *http.Server, hub *chathub.Hub, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	err := server.Shutdown(ctx)
	hub.Shutdown()
	return err
}
