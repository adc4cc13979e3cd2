package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"ipcat/internal/localdb"
	"ipcat/internal/logger"
)

const DefaultSnapshotKey = "ipcat:snapshot"

type redisSnapshot struct {
	Source  string       `json:"source"`
	SavedAt time.Time    `json:"saved_at"`
	Ranges  []redisRange `json:"ranges"`
}

type redisRange struct {
	Start uint32 `json:"s"`
	End   uint32 `json:"e"`
	Owner string `json:"o"`
	URL   string `json:"u,omitempty"`
}

// 文档注释：Redis 快照存储
// 背景：多副本部署时共享最近一次成功的数据集；新副本在上游不可达时也能以该快照就绪。
// 约束：整个快照存为单个 JSON 值，SET 天然原子；TTL<=0 表示不过期。
type Redis struct {
	rdb *redis.Client
	key string
	ttl time.Duration
}

func NewRedis(rdb *redis.Client, key string, ttl time.Duration) *Redis {
	if key == "" {
		key = DefaultSnapshotKey
	}
	return &Redis{rdb: rdb, key: key, ttl: ttl}
}

func (s *Redis) Name() string { return "redis" }

func (s *Redis) SaveSnapshot(ctx context.Context, source string, rows []localdb.Record) error {
	snap := redisSnapshot{Source: source, SavedAt: time.Now().UTC(), Ranges: make([]redisRange, len(rows))}
	for i, r := range rows {
		snap.Ranges[i] = redisRange{Start: r.Start, End: r.End, Owner: r.Owner, URL: r.URL}
	}
	b, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	if err := s.rdb.Set(ctx, s.key, b, s.ttl).Err(); err != nil {
		return err
	}
	logger.L().Debug("redis_snapshot_saved", "key", s.key, "records", len(rows), "bytes", len(b))
	return nil
}

// LoadSnapshot: 键不存在时返回空集与零时间
func (s *Redis) LoadSnapshot(ctx context.Context) ([]localdb.Record, time.Time, error) {
	b, err := s.rdb.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, time.Time{}, nil
	}
	if err != nil {
		return nil, time.Time{}, err
	}
	var snap redisSnapshot
	if err := json.Unmarshal(b, &snap); err != nil {
		return nil, time.Time{}, &localdb.MalformedDatasetError{Where: "snapshot", Reason: err.Error()}
	}
	out := make([]localdb.Record, len(snap.Ranges))
	for i, r := range snap.Ranges {
		out[i] = localdb.Record{Start: r.Start, End: r.End, Owner: r.Owner, URL: r.URL}
	}
	logger.L().Debug("redis_snapshot_loaded", "key", s.key, "records", len(out), "source", snap.Source)
	return out, snap.SavedAt, nil
}
