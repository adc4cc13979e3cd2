package ingest

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"ipcat/internal/localdb"
	"ipcat/internal/logger"
	"ipcat/internal/metrics"
)

const (
	DefaultRefreshTimeout = 30 * time.Second
	DefaultRetryBackoff   = 30 * time.Second
	snapshotTimeout       = 15 * time.Second
)

// SnapshotSink 持久化最近一次成功构建的数据集（Postgres/Redis）
type SnapshotSink interface {
	Name() string
	SaveSnapshot(ctx context.Context, source string, rows []localdb.Record) error
}

// SnapshotLoader 读取持久化快照及其保存时间，用于冷启动
type SnapshotLoader interface {
	Name() string
	LoadSnapshot(ctx context.Context) ([]localdb.Record, time.Time, error)
}

// 文档注释：范围表刷新器
// 背景：拉取 -> 构建 -> 原子发布，三步全部在读路径之外完成；任何一步失败都保留当前表。
// 约束：同一时刻最多一个构建在进行（singleflight 合并并发调用）；单次刷新受 timeout 约束。
type Refresher struct {
	provider Provider
	index    *localdb.Index
	timeout  time.Duration
	backoff  time.Duration
	sinks    []SnapshotSink
	l        *slog.Logger

	group       singleflight.Group
	running     atomic.Bool
	lastFailure atomic.Int64
}

type Option func(*Refresher)

func WithTimeout(d time.Duration) Option {
	return func(r *Refresher) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithRetryBackoff：失败后多久内不再由查询触发异步刷新
func WithRetryBackoff(d time.Duration) Option {
	return func(r *Refresher) {
		if d >= 0 {
			r.backoff = d
		}
	}
}

func WithSinks(sinks ...SnapshotSink) Option {
	return func(r *Refresher) { r.sinks = append(r.sinks, sinks...) }
}

func WithLogger(l *slog.Logger) Option {
	return func(r *Refresher) {
		if l != nil {
			r.l = l
		}
	}
}

func NewRefresher(p Provider, idx *localdb.Index, opts ...Option) *Refresher {
	r := &Refresher{
		provider: p,
		index:    idx,
		timeout:  DefaultRefreshTimeout,
		backoff:  DefaultRetryBackoff,
		l:        logger.L(),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

func (r *Refresher) Index() *localdb.Index { return r.index }

// 文档注释：同步刷新
// 背景：并发调用共享同一次构建结果；调用方 ctx 取消不会中断进行中的刷新（其他等待者依赖同一结果），时长由 timeout 兜底。
// 返回：新发布的表；失败时为 *ProviderUnavailableError、*localdb.MalformedDatasetError 或 *RefreshTimeoutError，索引保持不变。
func (r *Refresher) Refresh(ctx context.Context) (*localdb.Table, error) {
	v, err, shared := r.group.Do("refresh", func() (interface{}, error) {
		return r.doRefresh(ctx)
	})
	if shared {
		r.l.Debug("refresh_shared")
	}
	if err != nil {
		return nil, err
	}
	return v.(*localdb.Table), nil
}

func (r *Refresher) doRefresh(parent context.Context) (*localdb.Table, error) {
	begin := time.Now()
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), r.timeout)
	defer cancel()

	r.l.Debug("refresh_begin", "provider", r.provider.Name())
	rows, err := r.provider.Fetch(ctx)
	var tbl *localdb.Table
	if err == nil {
		tbl, err = localdb.Build(rows)
	}
	metrics.RefreshDurationMs.Observe(float64(time.Since(begin).Milliseconds()))
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			err = &RefreshTimeoutError{Timeout: r.timeout, Err: err}
		}
		r.lastFailure.Store(time.Now().UnixNano())
		metrics.RefreshTotal.WithLabelValues(resultLabel(err)).Inc()
		r.l.Error("refresh_error", "provider", r.provider.Name(), "err", err, "serving_records", r.index.Get().Len())
		return nil, err
	}

	r.index.Swap(tbl)
	r.lastFailure.Store(0)
	metrics.RefreshTotal.WithLabelValues("ok").Inc()
	metrics.TableRecords.Set(float64(tbl.Len()))
	metrics.LastRefreshTimestamp.Set(float64(r.index.RefreshedAt().Unix()))
	r.l.Info("refresh_done", "provider", r.provider.Name(), "rows", len(rows), "records", tbl.Len(), "duration_ms", time.Since(begin).Milliseconds())

	r.persist(tbl)
	return tbl, nil
}

// persist 写入快照；失败只记录，不影响已发布的表
func (r *Refresher) persist(tbl *localdb.Table) {
	if len(r.sinks) == 0 {
		return
	}
	records := tbl.Records()
	for _, s := range r.sinks {
		ctx, cancel := context.WithTimeout(context.Background(), snapshotTimeout)
		err := s.SaveSnapshot(ctx, r.provider.Name(), records)
		cancel()
		if err != nil {
			metrics.SnapshotSaveFailTotal.WithLabelValues(s.Name()).Inc()
			r.l.Warn("snapshot_save_error", "store", s.Name(), "err", err)
			continue
		}
		r.l.Debug("snapshot_saved", "store", s.Name(), "records", len(records))
	}
}

// 文档注释：后台触发一次刷新（去抖）
// 背景：多个查询同时发现表已过期时只有一个真正触发，其余直接使用旧表；失败后 backoff 内不再触发，避免压垮数据源。
// 返回：本次是否启动了刷新。
func (r *Refresher) TryRefreshAsync() bool {
	if r.InBackoff() {
		return false
	}
	if !r.running.CompareAndSwap(false, true) {
		return false
	}
	go func() {
		defer r.running.Store(false)
		_, _ = r.Refresh(context.Background())
	}()
	return true
}

// InBackoff reports whether the last refresh failed less than the retry backoff ago.
func (r *Refresher) InBackoff() bool {
	last := r.lastFailure.Load()
	return last != 0 && time.Since(time.Unix(0, last)) < r.backoff
}

// Running reports whether a background refresh started by TryRefreshAsync is in flight.
func (r *Refresher) Running() bool { return r.running.Load() }

// 文档注释：启动时加载
// 背景：优先从数据源刷新；失败时读取全部持久化快照，发布其中保存时间最新且能通过构建校验的一份，使服务在上游不可达时仍能以旧数据就绪。
// 约束：快照以其保存时间发布，过期后查询会照常触发刷新；全部失败时返回数据源错误，服务保持未就绪。
func (r *Refresher) WarmStart(ctx context.Context, loaders ...SnapshotLoader) error {
	_, err := r.Refresh(ctx)
	if err == nil {
		return nil
	}
	var (
		best     *localdb.Table
		bestAt   time.Time
		bestFrom string
	)
	for _, ld := range loaders {
		rows, savedAt, lerr := ld.LoadSnapshot(ctx)
		if lerr != nil {
			r.l.Warn("snapshot_load_error", "store", ld.Name(), "err", lerr)
			continue
		}
		if len(rows) == 0 {
			continue
		}
		if best != nil && !savedAt.After(bestAt) {
			r.l.Debug("snapshot_older", "store", ld.Name(), "saved_at", savedAt)
			continue
		}
		tbl, berr := localdb.Build(rows)
		if berr != nil {
			r.l.Warn("snapshot_invalid", "store", ld.Name(), "err", berr)
			continue
		}
		best, bestAt, bestFrom = tbl, savedAt, ld.Name()
	}
	if best == nil {
		return err
	}
	r.index.SwapAt(best, bestAt)
	metrics.TableRecords.Set(float64(best.Len()))
	metrics.LastRefreshTimestamp.Set(float64(bestAt.Unix()))
	r.l.Warn("snapshot_warm_start", "store", bestFrom, "records", best.Len(), "saved_at", bestAt, "refresh_err", err)
	return nil
}

func resultLabel(err error) string {
	var (
		pue *ProviderUnavailableError
		rte *RefreshTimeoutError
		mde *localdb.MalformedDatasetError
	)
	switch {
	case errors.As(err, &rte):
		return "timeout"
	case errors.As(err, &pue):
		return "provider_error"
	case errors.As(err, &mde):
		return "malformed"
	}
	return "error"
}
