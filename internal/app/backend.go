package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/private-doc-vault/docvault-ocr-service/internal/config"
	"github.com/private-doc-vault/docvault-ocr-service/internal/platform/postgres"
	redisstore "github.com/private-doc-vault/docvault-ocr-service/internal/platform/redis"
	"github.com/private-doc-vault/docvault-ocr-service/internal/store"
)

const redisPingTimeout = 5 * time.Second

// Backend is the shared task store and queue selected by configuration.
type Backend struct {
	Name  string
	Store store.TaskStore
	Queue store.PriorityQueue

	ping  func(ctx context.Context) error
	close func() error
}

// BackendOptions controls OpenBackend.
type BackendOptions struct {
	// Migrate applies pending schema migrations for the postgres backend.
	Migrate bool
}

// OpenBackend connects to the configured backend and checks that it is
// reachable.
func OpenBackend(ctx context.Context, cfg *config.Config, opts BackendOptions, logger *slog.Logger) (*Backend, error) {
	switch cfg.Store.Backend {
	case "redis":
		return openRedis(ctx, cfg, logger)
	case "postgres":
		return openPostgres(ctx, cfg, opts, logger)
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}

func openRedis(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Backend, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Redis.Addr, err)
	}
	logger.Info("redis connection established", "addr", cfg.Redis.Addr, "db", cfg.Redis.DB)

	return &Backend{
		Name:  "redis",
		Store: redisstore.NewTaskStore(rdb, logger),
		Queue: redisstore.NewQueue(rdb, cfg.Queue.MaxDepth, logger),
		ping:  func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
		close: rdb.Close,
	}, nil
}

func openPostgres(ctx context.Context, cfg *config.Config, opts BackendOptions, logger *slog.Logger) (*Backend, error) {
	db, err := postgres.Open(ctx, cfg.Database.URL, logger)
	if err != nil {
		return nil, err
	}
	if opts.Migrate {
		if err := postgres.Migrate(ctx, db, logger); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	return postgresBackend(db, cfg.Queue.MaxDepth, logger), nil
}

func postgresBackend(db *sql.DB, maxDepth int64, logger *slog.Logger) *Backend {
	return &Backend{
		Name:  "postgres",
		Store: postgres.NewTaskStore(db, logger),
		Queue: postgres.NewQueue(db, maxDepth, logger),
		ping:  db.PingContext,
		close: db.Close,
	}
}

// Ping reports whether the backend is reachable.
func (b *Backend) Ping(ctx context.Context) error {
	return b.ping(ctx)
}

// Close releases the backend connection.
func (b *Backend) Close() error {
	return b.close()
}
