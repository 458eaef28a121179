package main

import (
	"context"
	"fmt"
	"log/slog"

	cfnats "github.com/Strob0t/conductor/internal/adapter/nats"
	"github.com/Strob0t/conductor/internal/adapter/natskv"
	"github.com/Strob0t/conductor/internal/adapter/postgres"
	"github.com/Strob0t/conductor/internal/adapter/ristretto"
	"github.com/Strob0t/conductor/internal/adapter/sqlite"
	"github.com/Strob0t/conductor/internal/adapter/tiered"
	"github.com/Strob0t/conductor/internal/config"
	"github.com/Strob0t/conductor/internal/port/cache"
	"github.com/Strob0t/conductor/internal/port/database"
	"github.com/Strob0t/conductor/internal/port/eventstore"
)

// storeSet is the persistence of one engine. Closing alerts releases the
// connection shared with events.
type storeSet struct {
	alerts database.Store
	events eventstore.Store
}

func openStores(ctx context.Context, cfg *config.Config) (storeSet, error) {
	switch cfg.Store.Driver {
	case "postgres":
		if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
			return storeSet{}, fmt.Errorf("migrations: %w", err)
		}
		pool, err := postgres.NewPool(ctx, cfg.Postgres)
		if err != nil {
			return storeSet{}, fmt.Errorf("postgres: %w", err)
		}
		slog.Info("postgres connected", "max_conns", cfg.Postgres.MaxConns)
		return storeSet{alerts: postgres.NewStore(pool), events: postgres.NewEventStore(pool)}, nil
	default:
		db, err := sqlite.Open(cfg.SQLite.Path)
		if err != nil {
			return storeSet{}, fmt.Errorf("sqlite: %w", err)
		}
		if err := db.Migrate(ctx); err != nil {
			_ = db.Close()
			return storeSet{}, fmt.Errorf("migrations: %w", err)
		}
		slog.Info("sqlite opened", "path", cfg.SQLite.Path)
		return storeSet{alerts: sqlite.NewStore(db), events: sqlite.NewEventStore(db)}, nil
	}
}

// openCache builds the snapshot and idempotency cache: ristretto in
// process, backed by a NATS KV bucket when NATS is configured.
func openCache(ctx context.Context, cfg *config.Config, queue *cfnats.Queue) (cache.Cache, func(), error) {
	l1, err := ristretto.New(int(cfg.Cache.L1MaxSizeMB))
	if err != nil {
		return nil, nil, fmt.Errorf("l1 cache: %w", err)
	}
	var l2 cache.Cache
	if queue != nil && cfg.Cache.L2Bucket != "" {
		kv, err := natskv.Open(ctx, queue.JetStream(), cfg.Cache.L2Bucket, cfg.Cache.TTL)
		if err != nil {
			slog.Warn("l2 cache disabled", "bucket", cfg.Cache.L2Bucket, "error", err)
		} else {
			l2 = kv
		}
	}
	return tiered.New(l1, l2, cfg.Cache.TTL), l1.Close, nil
}
