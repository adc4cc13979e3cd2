// 包 utils：环境变量读取与外部连接（PostgreSQL/Redis/TLS）工具
package utils

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// EnvString 返回环境变量值，未设置或为空时返回 def
func EnvString(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

// EnvBool：仅 "true"/"1" 视为开启；未设置时返回 def
func EnvBool(key string, def bool) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if v == "" {
		return def
	}
	return v == "true" || v == "1"
}

// EnvInt：解析失败或非正数时回退默认值
func EnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && n > 0 {
			return n
		}
	}
	return def
}

// 文档注释：读取时长配置
// 背景：兼容 Go 时长写法（"30s"、"24h"）与纯秒数（"86400"，沿用 cachelimit 的历史习惯）。
// 约束：解析失败或非正数时回退默认值。
func EnvDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil && d > 0 {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil && n > 0 {
		return time.Duration(n) * time.Second
	}
	return def
}
