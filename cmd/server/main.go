// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jason-s-yu/arena/internal/auth"
	"github.com/jason-s-yu/arena/internal/cache"
	"github.com/jason-s-yu/arena/internal/config"
	"github.com/jason-s-yu/arena/internal/database"
	"github.com/jason-s-yu/arena/internal/engine"
	"github.com/jason-s-yu/arena/internal/game"
	"github.com/jason-s-yu/arena/internal/handlers"
	"github.com/jason-s-yu/arena/internal/monitor"
	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"
)

func main() {
	logger := logrus.New()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("config: %v", err)
	}
	logger.SetLevel(cfg.Level())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	keys, err := auth.LoadKeys(cfg.TokenPrivateKey, cfg.TokenPublicKey)
	if err != nil {
		logger.Fatalf("auth keys: %v", err)
	}
	if cfg.TokenPublicKey == "" {
		logger.Warn("no ARENA_TOKEN_PUBLIC_KEY set, using a generated key pair; externally issued tokens will be rejected")
	}

	pool, err := database.Connect(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		logger.Fatalf("database: %v", err)
	}
	defer pool.Close()
	if err := database.Migrate(ctx, pool); err != nil {
		logger.Fatalf("database: %v", err)
	}

	var recorder game.Recorder = database.NewMatchStore(pool)
	if cfg.HistoryBackend == config.HistoryRedis {
		rdb, err := cache.Connect(ctx, cfg.RedisAddr, cfg.RedisDB)
		if err != nil {
			logger.Fatalf("redis: %v", err)
		}
		defer rdb.Close()
		recorder = cache.NewMatchPublisher(rdb, cfg.HistoryQueue)
		logger.Infof("recording matches through redis list %s", cfg.HistoryQueue)
	}

	metrics := monitor.NewMetrics("arena")
	eng := engine.New(cfg.Engine(), database.NewUserStore(pool), recorder, metrics, logger)

	engineDone := make(chan struct{})
	go func() {
		eng.Run(ctx)
		close(engineDone)
	}()

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           handlers.NewRouter(logger, eng, auth.NewVerifier(keys.Public), metrics),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warnf("http shutdown: %v", err)
		}
	}()

	logger.Infof("Running on %s", cfg.Addr())
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatalf("server exited: %v", err)
	}
	<-engineDone
	logger.Info("server stopped")
}
