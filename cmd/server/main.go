package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/SirAlabar/StarCendence-sub002/internal/broadcast"
	"github.com/SirAlabar/StarCendence-sub002/internal/config"
	"github.com/SirAlabar/StarCendence-sub002/internal/events"
	"github.com/SirAlabar/StarCendence-sub002/internal/httpapi"
	"github.com/SirAlabar/StarCendence-sub002/internal/lobby"
	"github.com/SirAlabar/StarCendence-sub002/internal/persist"
	"github.com/SirAlabar/StarCendence-sub002/internal/pubsub"
	"github.com/SirAlabar/StarCendence-sub002/internal/racer"
	"github.com/SirAlabar/StarCendence-sub002/internal/session"
)

const (
	sessionReapEvery = 5 * time.Minute
	raceSweepEvery   = 10 * time.Minute
)

func main() {
	cfg := config.Load()

	logger, err := newLogger(cfg.Debug)
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Fatal("redis unreachable", zap.String("addr", cfg.RedisAddr), zap.Error(err))
	}

	repo, err := persist.Open(cfg.PostgresDSN)
	if err != nil {
		logger.Fatal("postgres unreachable", zap.Error(err))
	}

	broker := pubsub.NewRedis(rdb, logger)
	bc := broadcast.New(broker, logger)

	store := session.NewStore()
	sessions := session.NewManager(store, repo, bc, logger)
	races := racer.NewManager(bc, logger)
	lobbies := lobby.NewManager(lobby.NewRedisStore(rdb))
	subscriber := events.NewSubscriber(broker, bc, lobbies, sessions, races, logger)

	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: httpapi.SetupRoutes(store, lobbies),
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return subscriber.Run(ctx) })
	g.Go(func() error {
		logger.Info("listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		ticker := time.NewTicker(sessionReapEvery)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				sessions.Reap()
			}
		}
	})
	g.Go(func() error {
		ticker := time.NewTicker(raceSweepEvery)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				races.Cleanup()
			}
		}
	})

	if err := g.Wait(); err != nil && err != context.Canceled {
		logger.Fatal("server exited", zap.Error(err))
	}
}

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
