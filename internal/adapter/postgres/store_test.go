package postgres_test

import (
	"context"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"

	"github.com/Strob0t/conductor/internal/adapter/postgres"
	"github.com/Strob0t/conductor/internal/port/database"
	"github.com/Strob0t/conductor/internal/port/database/databasetest"
	"github.com/Strob0t/conductor/internal/port/eventstore"
)

// setupPool runs all migrations and returns a pool closed via t.Cleanup.
// Tests share one database, so every test uses unique ids.
func setupPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("requires DATABASE_URL")
	}

	ctx := context.Background()
	require.NoError(t, postgres.RunMigrations(ctx, dsn))

	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return pool
}

func TestStore(t *testing.T) {
	databasetest.RunStore(t, func(t *testing.T) database.Store {
		return postgres.NewStore(setupPool(t))
	})
}

func TestEventStore(t *testing.T) {
	databasetest.RunEventStore(t, func(t *testing.T) eventstore.Store {
		return postgres.NewEventStore(setupPool(t))
	})
}

func TestMigrationVersion(t *testing.T) {
	setupPool(t)
	v, err := postgres.MigrationVersion(context.Background(), os.Getenv("DATABASE_URL"))
	require.NoError(t, err)
	require.GreaterOrEqual(t, v, int64(1))
}
