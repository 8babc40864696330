package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"calplan/internal/accounts"
	"calplan/internal/config"
	"calplan/internal/events"
	"calplan/internal/google"
	"calplan/internal/store"
	"calplan/internal/syncer"
	"calplan/internal/tasks"
	"calplan/internal/token"

	"github.com/go-redis/redis/v7"
	"gopkg.in/natefinch/lumberjack.v2"
)

// application is everything a command needs, wired once from Config.
type application struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *store.Store
	accounts *accounts.Service
	events   *events.Service
	syncer   *syncer.Orchestrator
	tasks    *tasks.Service
	closers  []func() error
}

func loadConfig() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(os.LookupEnv)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, setupLogger(cfg.LogLevel, cfg.LogFile), nil
}

func newApplication(cfg *config.Config, logger *slog.Logger) (*application, error) {
	db, err := store.Open(cfg, logger)
	if err != nil {
		return nil, err
	}
	if err := store.Migrate(db); err != nil {
		return nil, err
	}
	repo := store.New(db)
	app := &application{cfg: cfg, logger: logger, store: repo}
	if sqlDB, err := db.DB(); err == nil {
		app.closers = append(app.closers, sqlDB.Close)
	}

	if cfg.StateSecret == "" {
		cfg.StateSecret = randomSecret()
		logger.Warn("STATE_SECRET not set, using a random secret. Pending OAuth flows will not survive a restart.")
	}

	oauth := google.NewOAuth(cfg)
	guard := token.NewGuard(oauth, repo, logger, token.WithSkew(cfg.TokenRefreshSkew))
	factory := google.NewFactory(logger, cfg.ProviderTimeout)

	opts := []syncer.Option{syncer.WithWindow(cfg.SyncDaysBack, cfg.SyncDaysForward)}
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := client.Ping().Err(); err != nil {
			app.Close()
			return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.RedisAddr, err)
		}
		app.closers = append(app.closers, client.Close)
		opts = append(opts, syncer.WithLocker(syncer.NewRedisLocker(client, cfg.SyncLockTTL)))
		logger.Info("Using Redis sync lock", "addr", cfg.RedisAddr, "ttl", cfg.SyncLockTTL)
	}

	app.accounts = accounts.NewService(repo, oauth, cfg.StateSecret, logger)
	app.events = events.NewService(repo, guard, factory, logger)
	app.syncer = syncer.NewOrchestrator(repo, guard, factory, logger, opts...)
	app.tasks = tasks.NewService(repo, logger)
	return app, nil
}

func (a *application) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("Failed to release resource", "error", err)
		}
	}
	a.closers = nil
}

func (a *application) ping(ctx context.Context) error {
	return a.store.Ping(ctx)
}

func randomSecret() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b)
}

func setupLogger(level, file string) *slog.Logger {
	var logLevel slog.Level
	switch strings.ToLower(level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	var out io.Writer = os.Stderr
	if file != "" {
		out = io.MultiWriter(os.Stderr, &lumberjack.Logger{
			Filename:   file,
			MaxSize:    50,
			MaxBackups: 5,
			MaxAge:     28,
			Compress:   true,
		})
	}
	return slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: logLevel}))
}
