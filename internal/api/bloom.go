package api

import (
	"context"
	"hash/fnv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	visitorBits   uint32 = 1 << 22
	visitorHashes        = 4
	visitorTTL           = 48 * time.Hour
)

// bloomPositions 以 FNV64a 加索引扰动生成 k 个位图位置
func bloomPositions(data []byte, m uint32, k int) []int64 {
	pos := make([]int64, k)
	for i := 0; i < k; i++ {
		h := fnv.New64a()
		h.Write([]byte{byte(i)})
		h.Write(data)
		pos[i] = int64(h.Sum64() % uint64(m))
	}
	return pos
}

// 文档注释：当日访客去重（Redis 位图布隆过滤器）
// 背景：/stats 的访客数只需近似值；按天分键，多副本共享同一位图。
// 返回：true 表示当日首次见到该访客；rc 为 nil 或 Redis 出错时返回 false，只影响访客计数。
func firstVisitToday(ctx context.Context, rc *redis.Client, visitor string, now time.Time) (bool, error) {
	if rc == nil || visitor == "" {
		return false, nil
	}
	key := "ipcat:visitors:" + now.UTC().Format("20060102")
	positions := bloomPositions([]byte(visitor), visitorBits, visitorHashes)

	pipe := rc.Pipeline()
	cmds := make([]*redis.IntCmd, len(positions))
	for i, p := range positions {
		cmds[i] = pipe.SetBit(ctx, key, p, 1)
	}
	pipe.Expire(ctx, key, visitorTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, err
	}
	// SETBIT 返回旧值；任一位原本为 0 即为新访客
	for _, c := range cmds {
		if c.Val() == 0 {
			return true, nil
		}
	}
	return false, nil
}
