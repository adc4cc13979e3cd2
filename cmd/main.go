// 程序入口：仅负责读取配置、初始化依赖并启动服务；API 注册在 internal/api 以便扩展
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"ipcat/internal/api"
	"ipcat/internal/enrich"
	"ipcat/internal/ingest"
	"ipcat/internal/localdb"
	"ipcat/internal/logger"
	"ipcat/internal/lookup"
	"ipcat/internal/metrics"
	"ipcat/internal/middleware"
	"ipcat/internal/migrate"
	"ipcat/internal/store"
	"ipcat/internal/utils"
)

func main() {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join("data", "env", ".env"))
	l := logger.Setup()
	l.Debug("log_init_ok")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	apiBase := utils.EnvString("API_BASE", "/api")
	l.Debug("config_api_base", "base", apiBase)

	var (
		sinks   []ingest.SnapshotSink
		loaders []ingest.SnapshotLoader
		stats   api.StatsStore
	)

	// PostgreSQL（可选）：快照落盘、冷启动回退与查询统计
	db, err := utils.OpenPostgresFromEnv()
	if err != nil {
		l.Error("db_open_error", "err", err)
		os.Exit(1)
	}
	if db != nil {
		defer db.Close()
		if err := db.PingContext(ctx); err != nil {
			l.Error("db_ping_error", "err", err)
		} else {
			l.Info("db_ping_ok")
		}
		if err := migrate.EnsureSchema(ctx, db); err != nil {
			l.Error("schema_error", "err", err)
			os.Exit(1)
		}
		pg := store.AttachDB(db)
		sinks = append(sinks, pg)
		loaders = append(loaders, pg)
		stats = pg
	} else {
		l.Info("db_disabled")
	}

	// Redis（可选）：多副本共享快照与访客去重
	rc := utils.OpenRedisFromEnv()
	if rc == nil {
		l.Info("redis_disabled")
	} else {
		defer rc.Close()
		if err := rc.Ping(ctx).Err(); err != nil {
			l.Error("redis_ping_error", "err", err)
		} else {
			l.Info("redis_ping_ok")
		}
		rs := store.NewRedis(rc, utils.EnvString("REDIS_SNAPSHOT_KEY", store.DefaultSnapshotKey), utils.EnvDuration("REDIS_SNAPSHOT_TTL", 7*24*time.Hour))
		sinks = append(sinks, rs)
		loaders = append(loaders, rs)
	}

	idx := localdb.NewIndex()
	refresher := ingest.NewRefresher(ingest.ProviderFromEnv(nil), idx,
		ingest.WithTimeout(utils.EnvDuration("REFRESH_TIMEOUT", ingest.DefaultRefreshTimeout)),
		ingest.WithRetryBackoff(utils.EnvDuration("REFRESH_RETRY_BACKOFF", ingest.DefaultRetryBackoff)),
		ingest.WithSinks(sinks...),
		ingest.WithLogger(l),
	)
	// 首次加载失败不退出：服务以未就绪状态启动，查询返回 503，后续查询或周期任务会再次尝试
	if err := refresher.WarmStart(ctx, loaders...); err != nil {
		l.Error("warm_start_error", "err", err)
	} else {
		l.Info("table_ready", "records", idx.Get().Len(), "refreshed_at", idx.RefreshedAt())
	}
	ingest.StartPeriodic(ctx, refresher, utils.EnvDuration("REFRESH_INTERVAL", 0))

	en := enrich.FromEnv()
	defer en.Close()

	svc := lookup.NewService(refresher, utils.EnvDuration("MAX_AGE", lookup.DefaultMaxAge))
	apiMux := api.BuildRoutes(api.Deps{
		Service:    svc,
		Stats:      stats,
		Redis:      rc,
		Enricher:   en,
		AdminToken: os.Getenv("ADMIN_TOKEN"),
	})
	mux := http.NewServeMux()
	mux.Handle(apiBase+"/", http.StripPrefix(apiBase, apiMux))
	mux.Handle(apiBase+"/metrics", metrics.Handler())

	addr := utils.EnvString("ADDR", ":8080")
	handler := logger.AccessMiddleware(l)(mux)
	handler = middleware.Wrap(handler)
	s := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		l.Info("shutdown_begin")
		_ = s.Shutdown(shutdownCtx)
	}()

	if utils.EnvBool("TLS_ENABLE", false) {
		certPath := utils.EnvString("TLS_CERT_PATH", filepath.Join("data", "certs", "server.crt"))
		keyPath := utils.EnvString("TLS_KEY_PATH", filepath.Join("data", "certs", "server.key"))
		if err := utils.EnsureSelfSignedCert(certPath, keyPath, "ipcat.local"); err != nil {
			l.Error("tls_cert_error", "err", err)
			os.Exit(1)
		}
		l.Info("listening_tls", "addr", addr, "cert", certPath)
		err = s.ListenAndServeTLS(certPath, keyPath)
	} else {
		l.Info("listening", "addr", addr)
		err = s.ListenAndServe()
	}
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		l.Error("server_error", "err", err)
		os.Exit(1)
	}
	l.Info("shutdown_done")
}
