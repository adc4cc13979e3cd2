// 包 logger：统一初始化进程级 slog 日志器；级别与格式由环境变量控制
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

var (
	mu            sync.Mutex
	defaultLogger *slog.Logger
)

// 文档注释：初始化默认日志器
// 背景：各入口（服务、CLI）共享同一套配置；同时设置为 slog 默认日志器，第三方调用 slog.Info 也会走同一出口。
// 约束：LOG_LEVEL 取 debug/info/warn/error，LOG_FORMAT=json 时输出 JSON，否则文本；输出固定为标准错误。
func Setup() *slog.Logger {
	return SetupWriter(os.Stderr)
}

// SetupWriter 与 Setup 相同，但允许指定输出目标（CLI 输出到 stdout 时避免混流，测试时可丢弃）
func SetupWriter(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(os.Getenv("LOG_LEVEL"))}
	var h slog.Handler
	if strings.EqualFold(os.Getenv("LOG_FORMAT"), "json") {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	l := slog.New(h)
	mu.Lock()
	defaultLogger = l
	mu.Unlock()
	slog.SetDefault(l)
	return l
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// L：获取默认日志器；未初始化时回退到 Setup
func L() *slog.Logger {
	mu.Lock()
	l := defaultLogger
	mu.Unlock()
	if l == nil {
		return Setup()
	}
	return l
}
