// Package testkit starts throwaway PostgreSQL and Redis containers for
// integration tests. Tests using it are skipped under -short and when no
// container runtime is reachable.
package testkit

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
)

const (
	postgresImage = "postgres:17-alpine"
	redisImage    = "redis:7-alpine"
	startTimeout  = 2 * time.Minute
)

// MigrationsDir returns the absolute path of the repository migrations directory.
func MigrationsDir() string {
	_, file, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(file), "..", "..", "..", "migrations")
}

func skipUnlessIntegration(t *testing.T) {
	t.Helper()

	if testing.Short() {
		t.Skip("integration test skipped in -short mode")
	}
	if os.Getenv("GOTP_SKIP_CONTAINERS") != "" {
		t.Skip("integration test skipped by GOTP_SKIP_CONTAINERS")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)
}

// Postgres starts PostgreSQL with every *.up.sql migration applied and
// returns a connected pool. The container is removed when t finishes.
func Postgres(t *testing.T) *pgxpool.Pool {
	t.Helper()
	skipUnlessIntegration(t)

	ctx, cancel := context.WithTimeout(context.Background(), startTimeout)
	defer cancel()

	scripts, err := filepath.Glob(filepath.Join(MigrationsDir(), "*.up.sql"))
	if err != nil || len(scripts) == 0 {
		t.Fatalf("testkit: no migrations found in %s: %v", MigrationsDir(), err)
	}

	ctr, err := tcpostgres.Run(ctx, postgresImage,
		tcpostgres.WithDatabase("gotp"),
		tcpostgres.WithUsername("gotp"),
		tcpostgres.WithPassword("gotp"),
		tcpostgres.WithInitScripts(scripts...),
		tcpostgres.BasicWaitStrategies(),
	)
	testcontainers.CleanupContainer(t, ctr)
	if err != nil {
		t.Fatalf("testkit: start postgres: %v", err)
	}

	dsn, err := ctr.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("testkit: postgres dsn: %v", err)
	}

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		t.Fatalf("testkit: parse dsn: %v", err)
	}
	cfg.MaxConns = 60

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		t.Fatalf("testkit: connect postgres: %v", err)
	}
	t.Cleanup(pool.Close)

	if err := pool.Ping(ctx); err != nil {
		t.Fatalf("testkit: ping postgres: %v", err)
	}

	return pool
}

// Redis starts Redis and returns a connected client. The container is
// removed when t finishes.
func Redis(t *testing.T) *redis.Client {
	t.Helper()
	skipUnlessIntegration(t)

	ctx, cancel := context.WithTimeout(context.Background(), startTimeout)
	defer cancel()

	ctr, err := tcredis.Run(ctx, redisImage)
	testcontainers.CleanupContainer(t, ctr)
	if err != nil {
		t.Fatalf("testkit: start redis: %v", err)
	}

	uri, err := ctr.ConnectionString(ctx)
	if err != nil {
		t.Fatalf("testkit: redis uri: %v", err)
	}

	opt, err := redis.ParseURL(uri)
	if err != nil {
		t.Fatalf("testkit: parse redis uri: %v", err)
	}

	client := redis.NewClient(opt)
	t.Cleanup(func() { _ = client.Close() })

	if err := client.Ping(ctx).Err(); err != nil {
		t.Fatalf("testkit: ping redis: %v", err)
	}

	return client
}
