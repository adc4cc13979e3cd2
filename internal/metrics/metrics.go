package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	LookupsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ipcat_lookups_total",
		Help: "Total lookups by result (hit, miss, invalid, not_ready)",
	}, []string{"result"})
	RequestDurationMs = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "ipcat_request_duration_ms",
		Help:    "HTTP lookup request duration in milliseconds",
		Buckets: []float64{1, 5, 10, 20, 50, 100, 200, 500, 1000},
	})
	RefreshTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ipcat_refresh_total",
		Help: "Total dataset refreshes by result (ok, provider_error, malformed, timeout, error)",
	}, []string{"result"})
	RefreshDurationMs = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "ipcat_refresh_duration_ms",
		Help:    "Dataset refresh duration in milliseconds",
		Buckets: []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000},
	})
	TableRecords = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "ipcat_table_records",
		Help: "Number of ranges in the published table",
	})
	LastRefreshTimestamp = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "ipcat_last_refresh_timestamp_seconds",
		Help: "Unix time of the last successful table swap",
	})
	SnapshotSaveFailTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ipcat_snapshot_save_fail_total",
		Help: "Snapshot persistence failures by store",
	}, []string{"store"})
	RateLimitedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ipcat_rate_limited_total",
		Help: "Requests rejected by the rate limiter",
	})
)

func init() {
	prometheus.MustRegister(LookupsTotal)
	prometheus.MustRegister(RequestDurationMs)
	prometheus.MustRegister(RefreshTotal)
	prometheus.MustRegister(RefreshDurationMs)
	prometheus.MustRegister(TableRecords)
	prometheus.MustRegister(LastRefreshTimestamp)
	prometheus.MustRegister(SnapshotSaveFailTotal)
	prometheus.MustRegister(RateLimitedTotal)
}

// 文档注释：返回 Prometheus 指标处理器，挂载在 {API_BASE}/metrics
func Handler() http.Handler { return promhttp.Handler() }
