// 包 lookup：面向请求的查询入口，决定是否需要刷新并在当前表上查找
package lookup

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"ipcat/internal/ingest"
	"ipcat/internal/localdb"
	"ipcat/internal/logger"
	"ipcat/internal/metrics"
)

const DefaultMaxAge = 24 * time.Hour

// ErrNotReady：尚无可用的范围表（首次加载失败且没有快照）
var ErrNotReady = errors.New("ipcat: service not ready, no dataset loaded")

// Result 为一次查询的结果；Found 为 false 时 Record 为零值
type Result struct {
	Addr         string
	Record       localdb.Record
	Found        bool
	TableBuiltAt time.Time
}

type Service struct {
	index         *localdb.Index
	refresher     *ingest.Refresher
	defaultMaxAge time.Duration
	l             *slog.Logger
}

func NewService(r *ingest.Refresher, defaultMaxAge time.Duration) *Service {
	if defaultMaxAge <= 0 {
		defaultMaxAge = DefaultMaxAge
	}
	return &Service{index: r.Index(), refresher: r, defaultMaxAge: defaultMaxAge, l: logger.L()}
}

func (s *Service) Index() *localdb.Index { return s.index }

func (s *Service) Refresher() *ingest.Refresher { return s.refresher }

func (s *Service) DefaultMaxAge() time.Duration { return s.defaultMaxAge }

// 文档注释：查询单个 IPv4 的数据中心归属
// 背景：地址非法直接返回；尚无表时同步刷新一次（失败即 ErrNotReady，失败后 backoff 内直接返回 ErrNotReady，不再访问数据源）；表过期时在后台触发一次去抖刷新，本次仍使用旧表。
// 约束：刷新错误不会传给查询方，只记录日志与指标；maxAge<=0 使用默认值。
func (s *Service) Lookup(ctx context.Context, addr string, maxAge time.Duration) (Result, error) {
	v, err := localdb.ParseIPv4(addr)
	if err != nil {
		metrics.LookupsTotal.WithLabelValues("invalid").Inc()
		return Result{}, err
	}
	if maxAge <= 0 {
		maxAge = s.defaultMaxAge
	}

	tbl := s.index.Get()
	if tbl == nil {
		if s.refresher.InBackoff() {
			metrics.LookupsTotal.WithLabelValues("not_ready").Inc()
			return Result{}, ErrNotReady
		}
		if _, err := s.refresher.Refresh(ctx); err != nil {
			metrics.LookupsTotal.WithLabelValues("not_ready").Inc()
			s.l.Warn("lookup_not_ready", "err", err)
			return Result{}, ErrNotReady
		}
		tbl = s.index.Get()
	} else if s.index.NeedsRefresh(maxAge) {
		if s.refresher.TryRefreshAsync() {
			s.l.Info("refresh_triggered", "max_age", maxAge, "refreshed_at", s.index.RefreshedAt())
		}
	}

	res := Result{Addr: addr, TableBuiltAt: tbl.BuiltAt()}
	res.Record, res.Found = tbl.Find(v)
	if res.Found {
		metrics.LookupsTotal.WithLabelValues("hit").Inc()
	} else {
		metrics.LookupsTotal.WithLabelValues("miss").Inc()
	}
	return res, nil
}
