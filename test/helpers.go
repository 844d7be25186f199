// Package test holds integration tests that need PostgreSQL and Redis.
// They skip unless TEST_DATABASE_URL is set (and Redis answers on
// TEST_REDIS_ADDR, default localhost:6380).
package test

import (
	"context"
	"os"
	"testing"
	"time"

	"ecoquote/internal/db"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func getRedisAddr() string {
	if addr := os.Getenv("TEST_REDIS_ADDR"); addr != "" {
		return addr
	}
	return "localhost:6380"
}

// setupTestDB connects, migrates and empties the test database
func setupTestDB(t *testing.T) *db.Pool {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test")
	}
	databaseURL := os.Getenv("TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("Skipping integration test: TEST_DATABASE_URL not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	pool, err := db.NewPool(ctx, databaseURL, zap.NewNop())
	if err != nil {
		t.Skipf("Skipping integration test: database not available: %v", err)
	}
	if err := db.Migrate(databaseURL); err != nil {
		pool.Close()
		t.Fatalf("failed to migrate: %v", err)
	}

	_, err = pool.Exec(ctx, `TRUNCATE quotation_responses, permit_requests, quotations, permit_types, agencies, staff CASCADE`)
	if err != nil {
		pool.Close()
		t.Fatalf("failed to clean database: %v", err)
	}
	t.Cleanup(pool.Close)
	return pool
}

// setupRedis returns a flushed Redis client or skips
func setupRedis(t *testing.T) *redis.Client {
	t.Helper()
	rdb := redis.NewClient(&redis.Options{Addr: getRedisAddr()})
	ctx := context.Background()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		t.Skipf("Skipping integration test: Redis not available: %v", err)
	}
	rdb.FlushDB(ctx)
	t.Cleanup(func() { rdb.Close() })
	return rdb
}
