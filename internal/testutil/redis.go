// Package testutil provides shared helpers for tests: a Redis harness that skips
// when Redis is unavailable, and an in-process fake of the resident REST backend.
package testutil

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// TestingTB is an interface that covers both *testing.T and *testing.B.
type TestingTB interface {
	Helper()
	Skip(args ...any)
	Skipf(format string, args ...any)
	Fatal(args ...any)
	Fatalf(format string, args ...any)
	Logf(format string, args ...any)
}

// envBool parses common truthy values from env vars.
func envBool(key string) bool {
	v := strings.ToLower(os.Getenv(key))
	return v == "1" || v == "true" || v == "yes" || v == "y"
}

func requireRedis() bool { return envBool("TEST_REQUIRE_REDIS") || envBool("TEST_REQUIRE_INFRA") }

// FixedTimeFunc returns a function that always returns the same time.
func FixedTimeFunc(t time.Time) func() time.Time {
	return func() time.Time {
		return t
	}
}

// TestTime returns a fixed time for testing.
func TestTime() time.Time {
	return time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
}

// redisCandidates are tried in order when REDIS_ADDR is unset: the compose
// service name, a default local install, then the dev compose port mapping.
var redisCandidates = []string{"redis:6379", "localhost:6379", "localhost:56379"}

// RedisAddr returns the first reachable Redis address and whether one was found.
func RedisAddr(t TestingTB) (string, bool) {
	t.Helper()
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		return addr, pingRedis(t, addr, 0)
	}
	for _, addr := range redisCandidates {
		if pingRedis(t, addr, 0) {
			return addr, true
		}
	}
	return "", false
}

func pingRedis(t TestingTB, addr string, db int) bool {
	client := redis.NewClient(&redis.Options{Addr: addr, DB: db})
	defer func() {
		if err := client.Close(); err != nil {
			t.Logf("warning: failed to close redis client: %v", err)
		}
	}()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Logf("redis not available at %s: %v", addr, err)
		return false
	}
	return true
}

// reserveDB picks a DB index so packages running in parallel don't flush each
// other. TEST_REDIS_DB wins; otherwise a lock key in DB 0 claims one of 1..15.
func reserveDB(t TestingTB, addr string) int {
	if v := os.Getenv("TEST_REDIS_DB"); v != "" {
		if i, err := strconv.Atoi(v); err == nil && i >= 0 {
			return i
		}
		t.Logf("invalid TEST_REDIS_DB=%q, auto-selecting", v)
	}

	meta := redis.NewClient(&redis.Options{Addr: addr})
	defer meta.Close()

	owner := fmt.Sprintf("%d:%d", os.Getpid(), time.Now().UnixNano())
	for i := 1; i <= 15; i++ {
		lock := fmt.Sprintf("portal:testutil:db_lock:%d", i)
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		ok, err := meta.SetNX(ctx, lock, owner, 30*time.Minute).Result()
		cancel()
		if err != nil || !ok {
			continue
		}
		if c, ok := any(t).(interface{ Cleanup(func()) }); ok {
			c.Cleanup(func() { releaseDB(t, addr, lock) })
		}
		return i
	}
	t.Logf("no free redis db, falling back to DB=1")
	return 1
}

func releaseDB(t TestingTB, addr, lock string) {
	c := redis.NewClient(&redis.Options{Addr: addr})
	defer c.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.Del(ctx, lock).Err(); err != nil {
		t.Logf("warning: failed to release %s: %v", lock, err)
	}
}

// SetupTestRedis returns a client on a freshly flushed, reserved DB. The test
// is skipped when no Redis is reachable unless TEST_REQUIRE_REDIS is set.
func SetupTestRedis(t TestingTB) *redis.Client {
	t.Helper()

	addr, ok := RedisAddr(t)
	if !ok {
		if requireRedis() {
			t.Fatal("redis not available for testing")
		}
		t.Skip("redis not available for testing")
	}

	client := redis.NewClient(&redis.Options{Addr: addr, DB: reserveDB(t, addr)})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.FlushDB(ctx).Err(); err != nil {
		_ = client.Close()
		if requireRedis() {
			t.Fatalf("redis flush failed at %s: %v", addr, err)
		}
		t.Skipf("redis not usable at %s: %v", addr, err)
	}
	if c, ok := any(t).(interface{ Cleanup(func()) }); ok {
		c.Cleanup(func() { _ = client.Close() })
	}
	return client
}
