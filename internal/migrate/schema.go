package migrate

import (
	"context"
	"database/sql"

	"ipcat/internal/logger"
)

// 背景：首次运行自动创建快照与统计所需表，保障后续持久化与查询计数
// 约束：使用 IF NOT EXISTS 避免与既有结构冲突；仅创建最小必需结构
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS _ipcat_ranges (
            start_int BIGINT PRIMARY KEY,
            end_int BIGINT NOT NULL,
            owner TEXT NOT NULL,
            url TEXT NOT NULL DEFAULT ''
        )`,
		`CREATE TABLE IF NOT EXISTS _ipcat_refresh_log (
            id BIGSERIAL PRIMARY KEY,
            source TEXT NOT NULL,
            records INT NOT NULL,
            saved_at TIMESTAMPTZ NOT NULL DEFAULT now()
        )`,
		`CREATE INDEX IF NOT EXISTS idx_refresh_log_saved ON _ipcat_refresh_log(saved_at DESC)`,
		`CREATE TABLE IF NOT EXISTS _ipcat_stats_total (
            id INT PRIMARY KEY,
            total_queries BIGINT NOT NULL DEFAULT 0,
            total_hits BIGINT NOT NULL DEFAULT 0,
            total_visitors BIGINT NOT NULL DEFAULT 0
        )`,
		`CREATE TABLE IF NOT EXISTS _ipcat_stats_daily (
            day DATE PRIMARY KEY,
            queries BIGINT NOT NULL DEFAULT 0,
            hits BIGINT NOT NULL DEFAULT 0,
            visitors BIGINT NOT NULL DEFAULT 0
        )`,
		`INSERT INTO _ipcat_stats_total(id, total_queries, total_hits)
         VALUES(1, 0, 0)
         ON CONFLICT (id) DO NOTHING`,
	}
	for i, s := range stmts {
		logger.L().Debug("schema_exec", "idx", i)
		if _, err := db.ExecContext(ctx, s); err != nil {
			return err
		}
	}
	logger.L().Debug("schema_done")
	return nil
}
