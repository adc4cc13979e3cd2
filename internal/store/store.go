// 包 store: 数据集快照的持久化（PostgreSQL/Redis）与查询统计读写
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"ipcat/internal/localdb"
	"ipcat/internal/logger"
)

// Postgres: 数据库访问入口，持有连接池；作为快照落盘目标与统计存储
type Postgres struct {
	db *sql.DB
}

func AttachDB(db *sql.DB) *Postgres { return &Postgres{db: db} }

// Open: 使用 DSN 打开数据库连接并配置连接池参数
func Open(dsn string) (*Postgres, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	return &Postgres{db: db}, nil
}

func (s *Postgres) Close() error { return s.db.Close() }

func (s *Postgres) DB() *sql.DB { return s.db }

func (s *Postgres) Name() string { return "postgres" }

// 文档注释：整体替换快照
// 背景：在单个事务内清空并重写 _ipcat_ranges，同时写入一条刷新日志；读方只会看到完整的旧快照或新快照。
// 约束：rows 需为已构建表导出的记录（start 唯一）；任何一步失败整体回滚。
func (s *Postgres) SaveSnapshot(ctx context.Context, source string, rows []localdb.Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM _ipcat_ranges`); err != nil {
		return fmt.Errorf("clear ranges: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO _ipcat_ranges(start_int, end_int, owner, url) VALUES($1,$2,$3,$4)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, r := range rows {
		if _, err := stmt.ExecContext(ctx, int64(r.Start), int64(r.End), r.Owner, r.URL); err != nil {
			return fmt.Errorf("insert range %s: %w", localdb.FormatIPv4(r.Start), err)
		}
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO _ipcat_refresh_log(source, records) VALUES($1,$2)`, source, len(rows)); err != nil {
		return fmt.Errorf("refresh log: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	logger.L().Debug("pg_snapshot_saved", "source", source, "records", len(rows))
	return nil
}

// LoadSnapshot: 读取快照及最近一次写入时间；从未写入时返回空集
func (s *Postgres) LoadSnapshot(ctx context.Context) ([]localdb.Record, time.Time, error) {
	var savedAt time.Time
	err := s.db.QueryRowContext(ctx, `SELECT saved_at FROM _ipcat_refresh_log ORDER BY saved_at DESC LIMIT 1`).Scan(&savedAt)
	if err == sql.ErrNoRows {
		return nil, time.Time{}, nil
	}
	if err != nil {
		return nil, time.Time{}, err
	}
	rows, err := s.db.QueryContext(ctx, `SELECT start_int, end_int, owner, url FROM _ipcat_ranges ORDER BY start_int`)
	if err != nil {
		return nil, time.Time{}, err
	}
	defer rows.Close()
	var out []localdb.Record
	for rows.Next() {
		var start, end int64
		var r localdb.Record
		if err := rows.Scan(&start, &end, &r.Owner, &r.URL); err != nil {
			return nil, time.Time{}, err
		}
		r.Start, r.End = uint32(start), uint32(end)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, time.Time{}, err
	}
	logger.L().Debug("pg_snapshot_loaded", "records", len(out), "saved_at", savedAt)
	return out, savedAt, nil
}

// IncrStats: 每次有效查询后递增总计与当日计数；命中数据中心时递增命中计数，当日首次出现的访客递增访客计数
func (s *Postgres) IncrStats(ctx context.Context, hit, newVisitor bool) error {
	h, v := b2i(hit), b2i(newVisitor)
	if _, err := s.db.ExecContext(ctx, "UPDATE _ipcat_stats_total SET total_queries=total_queries+1, total_hits=total_hits+$1, total_visitors=total_visitors+$2 WHERE id=1", h, v); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO _ipcat_stats_daily(day, queries, hits, visitors) VALUES(current_date, 1, $1, $2)
        ON CONFLICT (day) DO UPDATE SET queries=_ipcat_stats_daily.queries+1, hits=_ipcat_stats_daily.hits+EXCLUDED.hits, visitors=_ipcat_stats_daily.visitors+EXCLUDED.visitors`, h, v)
	return err
}

func b2i(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Totals: 统计返回结构，包含累计与当日的查询/命中/访客数
type Totals struct {
	Total         int64 `json:"total"`
	TotalHits     int64 `json:"total_hits"`
	TotalVisitors int64 `json:"total_visitors"`
	Today         int64 `json:"today"`
	TodayHits     int64 `json:"today_hits"`
	TodayVisitors int64 `json:"today_visitors"`
}

// GetTotals: 读取累计与当日计数；当日尚无记录时为 0
func (s *Postgres) GetTotals(ctx context.Context) (*Totals, error) {
	var t Totals
	if err := s.db.QueryRowContext(ctx, "SELECT total_queries, total_hits, total_visitors FROM _ipcat_stats_total WHERE id=1").Scan(&t.Total, &t.TotalHits, &t.TotalVisitors); err != nil && err != sql.ErrNoRows {
		return nil, err
	}
	if err := s.db.QueryRowContext(ctx, "SELECT queries, hits, visitors FROM _ipcat_stats_daily WHERE day=current_date").Scan(&t.Today, &t.TodayHits, &t.TodayVisitors); err != nil && err != sql.ErrNoRows {
		return nil, err
	}
	logger.L().Debug("stats_totals", "total", t.Total, "today", t.Today)
	return &t, nil
}
