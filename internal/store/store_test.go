package store

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"ipcat/internal/localdb"
	"ipcat/internal/migrate"
	"ipcat/internal/utils"
)

var sample = []localdb.Record{
	{Start: 167772160, End: 167772415, Owner: "Acme", URL: "https://acme.example/"},
	{Start: 3232235520, End: 3232301055, Owner: "Private"},
}

// 需要真实 Redis：设置 REDIS_TEST_ADDR 后运行
func TestRedisSnapshotRoundTrip(t *testing.T) {
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR not set")
	}
	ctx := context.Background()
	rdb := utils.OpenRedis(addr, os.Getenv("REDIS_TEST_PASS"))
	defer rdb.Close()
	key := "ipcat:test:" + time.Now().Format("150405.000000")
	defer rdb.Del(ctx, key)

	s := NewRedis(rdb, key, time.Minute)
	rows, savedAt, err := s.LoadSnapshot(ctx)
	if err != nil || rows != nil || !savedAt.IsZero() {
		t.Fatalf("empty LoadSnapshot = %v, %v, %v", rows, savedAt, err)
	}
	if err := s.SaveSnapshot(ctx, "test", sample); err != nil {
		t.Fatalf("SaveSnapshot error = %v", err)
	}
	rows, savedAt, err = s.LoadSnapshot(ctx)
	if err != nil {
		t.Fatalf("LoadSnapshot error = %v", err)
	}
	if len(rows) != len(sample) || rows[0] != sample[0] || rows[1] != sample[1] {
		t.Fatalf("rows = %+v", rows)
	}
	if time.Since(savedAt) > time.Minute {
		t.Fatalf("savedAt = %v", savedAt)
	}
}

func TestRedisUnreachable(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 100 * time.Millisecond, MaxRetries: -1})
	defer rdb.Close()
	s := NewRedis(rdb, "", 0)
	if s.key != DefaultSnapshotKey {
		t.Fatalf("key = %q", s.key)
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.SaveSnapshot(ctx, "test", sample); err == nil {
		t.Fatal("expected error from unreachable redis")
	}
}

// 需要真实 PostgreSQL：设置 PG_TEST_DSN 后运行
func TestPostgresSnapshotAndStats(t *testing.T) {
	dsn := os.Getenv("PG_TEST_DSN")
	if dsn == "" {
		t.Skip("PG_TEST_DSN not set")
	}
	ctx := context.Background()
	s, err := Open(dsn)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	if err := migrate.EnsureSchema(ctx, s.DB()); err != nil {
		t.Fatalf("EnsureSchema error = %v", err)
	}

	if err := s.SaveSnapshot(ctx, "test", sample); err != nil {
		t.Fatalf("SaveSnapshot error = %v", err)
	}
	rows, savedAt, err := s.LoadSnapshot(ctx)
	if err != nil {
		t.Fatalf("LoadSnapshot error = %v", err)
	}
	if len(rows) != 2 || rows[0] != sample[0] || rows[1] != sample[1] || savedAt.IsZero() {
		t.Fatalf("LoadSnapshot = %+v, %v", rows, savedAt)
	}

	before, err := s.GetTotals(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.IncrStats(ctx, true, true); err != nil {
		t.Fatal(err)
	}
	if err := s.IncrStats(ctx, false, false); err != nil {
		t.Fatal(err)
	}
	after, err := s.GetTotals(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if after.Total-before.Total != 2 || after.TotalHits-before.TotalHits != 1 || after.TotalVisitors-before.TotalVisitors != 1 {
		t.Fatalf("totals before=%+v after=%+v", before, after)
	}
}
