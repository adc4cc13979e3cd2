// 包 api：集中注册 HTTP API 路由以解耦主入口，便于后续扩展与替换
package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"ipcat/internal/enrich"
	"ipcat/internal/localdb"
	"ipcat/internal/logger"
	"ipcat/internal/lookup"
	"ipcat/internal/metrics"
	"ipcat/internal/store"
	"ipcat/internal/utils"
)

const defaultTopOwners = 20

// StatsStore 为查询计数的持久化；PG 关闭时为 nil
type StatsStore interface {
	IncrStats(ctx context.Context, hit, newVisitor bool) error
	GetTotals(ctx context.Context) (*store.Totals, error)
}

// Deps 汇总路由依赖；除 Service 外均可为空
type Deps struct {
	Service    *lookup.Service
	Stats      StatsStore
	Redis      *redis.Client
	Enricher   *enrich.Enricher
	AdminToken string
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("content-type", "application/json; charset=utf-8")
	w.Header().Set("cache-control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResult{Error: err.Error()})
}

// parseCacheLimit 解析 cachelimit（秒）；缺省返回 0 表示使用服务默认值
func parseCacheLimit(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n < 0 {
		return 0, errors.New("cachelimit must be a non-negative number of seconds")
	}
	return time.Duration(n) * time.Second, nil
}

// 构建并返回 API 路由：独立 ServeMux 便于在主入口挂载到 API_BASE 前缀
func BuildRoutes(d Deps) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/ipcat", d.handleLookup)
	mux.HandleFunc("/stats", d.handleStats)
	mux.HandleFunc("/ready", d.handleReady)
	mux.HandleFunc("/refresh", d.handleRefresh)
	return mux
}

// 文档注释：数据中心归属查询
// 背景：ip 缺省时查询访问者自身地址；cachelimit 为可接受的最大表龄（秒），超过时后台刷新，本次仍返回旧表结果。
// 约束：地址非法 400；尚无数据 503；统计与补充信息失败不影响主结果。
func (d Deps) handleLookup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
		return
	}
	begin := time.Now()
	defer func() { metrics.RequestDurationMs.Observe(float64(time.Since(begin).Milliseconds())) }()

	ctx := r.Context()
	visitor := utils.ClientIP(r)
	ip := r.URL.Query().Get("ip")
	if ip == "" {
		ip = visitor
	}
	maxAge, err := parseCacheLimit(r.URL.Query().Get("cachelimit"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	res, err := d.Service.Lookup(ctx, ip, maxAge)
	if err != nil {
		var iae *localdb.InvalidAddressError
		switch {
		case errors.As(err, &iae):
			writeError(w, http.StatusBadRequest, err)
		case errors.Is(err, lookup.ErrNotReady):
			writeError(w, http.StatusServiceUnavailable, err)
		default:
			logger.L().Error("lookup_error", "ip", ip, "err", err)
			writeError(w, http.StatusInternalServerError, err)
		}
		return
	}

	out := newQueryResult(res.Addr, res.Record, res.Found)
	out.Info = d.Enricher.Lookup(res.Addr)
	d.recordStats(ctx, res.Found, visitor)
	writeJSON(w, http.StatusOK, out)
}

func (d Deps) recordStats(ctx context.Context, hit bool, visitor string) {
	if d.Stats == nil {
		return
	}
	first, err := firstVisitToday(ctx, d.Redis, visitor, time.Now())
	if err != nil {
		logger.L().Debug("visitor_bloom_error", "err", err)
	}
	if err := d.Stats.IncrStats(ctx, hit, first); err != nil {
		logger.L().Debug("stats_incr_error", "err", err)
	}
}

// handleStats：当前表概况、按覆盖地址数排序的归属方与查询计数
func (d Deps) handleStats(w http.ResponseWriter, r *http.Request) {
	idx := d.Service.Index()
	tbl := idx.Get()
	if tbl == nil {
		writeError(w, http.StatusServiceUnavailable, lookup.ErrNotReady)
		return
	}
	top := defaultTopOwners
	if v := r.URL.Query().Get("top"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			top = n
		}
	}
	ranked := tbl.RankBySize()
	res := statsResult{
		Records:     tbl.Len(),
		Owners:      len(ranked),
		BuiltAt:     tbl.BuiltAt(),
		RefreshedAt: idx.RefreshedAt(),
		Stale:       idx.NeedsRefresh(d.Service.DefaultMaxAge()),
		TopOwners:   ranked[:min(top, len(ranked))],
	}
	if d.Stats != nil {
		t, err := d.Stats.GetTotals(r.Context())
		if err != nil {
			logger.L().Warn("stats_totals_error", "err", err)
		} else {
			res.Queries = t
		}
	}
	writeJSON(w, http.StatusOK, res)
}

func (d Deps) handleReady(w http.ResponseWriter, r *http.Request) {
	idx := d.Service.Index()
	if !idx.Ready() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"ready": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ready":        true,
		"records":      idx.Get().Len(),
		"refreshed_at": idx.RefreshedAt(),
	})
}

// 文档注释：手动触发同步刷新（运维入口）
// 约束：仅 POST；ADMIN_TOKEN 未配置时接口关闭（404）；令牌不符 401；刷新失败 502 且当前表保持不变。
func (d Deps) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if d.AdminToken == "" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
		return
	}
	if subtle.ConstantTimeCompare([]byte(r.Header.Get("x-admin-token")), []byte(d.AdminToken)) != 1 {
		writeError(w, http.StatusUnauthorized, errors.New("invalid admin token"))
		return
	}
	if _, err := d.Service.Refresher().Refresh(r.Context()); err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
