package utils

import (
	"ipcat/internal/logger"
	"os"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// OpenRedis：直接按地址与密码打开客户端，供测试与手工注入使用
func OpenRedis(addr, pass string) *redis.Client {
	if addr == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{Addr: addr, Password: pass})
}

// 文档注释：按环境变量打开 Redis 客户端
// 背景：Redis 仅用于多副本共享最近一次成功的数据集快照，属于可选组件。
// 约束：REDIS_ENABLE 非 true 时返回 nil；REDIS_URL 优先于 REDIS_HOST/PORT；REDIS_DB 解析失败回退 0。
func OpenRedisFromEnv() *redis.Client {
	if !EnvBool("REDIS_ENABLE", false) {
		return nil
	}
	if u := os.Getenv("REDIS_URL"); u != "" {
		opt, err := redis.ParseURL(u)
		if err == nil {
			logger.L().Debug("redis_env", "url", opt.Addr, "db", opt.DB)
			return redis.NewClient(opt)
		}
		logger.L().Warn("redis_url_invalid", "err", err)
	}
	addr := EnvString("REDIS_HOST", "127.0.0.1") + ":" + EnvString("REDIS_PORT", "6379")
	db := 0
	if v := os.Getenv("REDIS_DB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			db = n
		}
	}
	logger.L().Debug("redis_env", "addr", addr, "db", db)
	return redis.NewClient(&redis.Options{Addr: addr, Password: os.Getenv("REDIS_PASS"), DB: db})
}
