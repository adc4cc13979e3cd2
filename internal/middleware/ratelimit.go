package middleware

import (
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"ipcat/internal/logger"
	"ipcat/internal/metrics"
	"ipcat/internal/utils"
)

const visitorIdleTTL = 10 * time.Minute

// 文档注释：令牌桶限流中间件
// 背景：在流量峰值时对入口整体限速，并可选按访问者 IP 单独限速，避免单一来源占满整体配额。
// 约束：不做排队，超限直接返回 429；按访问者的限速器闲置超过 visitorIdleTTL 后回收。
type Limiter struct {
	global   *rate.Limiter
	perQPS   rate.Limit
	perBurst int

	mu       sync.Mutex
	visitors map[string]*visitor
	lastGC   time.Time
}

type visitor struct {
	lim  *rate.Limiter
	seen time.Time
}

// NewLimiter：qps<=0 关闭整体限速；perVisitorQPS<=0 关闭按访问者限速
func NewLimiter(qps, perVisitorQPS int) *Limiter {
	l := &Limiter{visitors: map[string]*visitor{}, lastGC: time.Now()}
	if qps > 0 {
		l.global = rate.NewLimiter(rate.Limit(qps), qps)
	}
	if perVisitorQPS > 0 {
		l.perQPS = rate.Limit(perVisitorQPS)
		l.perBurst = perVisitorQPS
	}
	return l
}

func (l *Limiter) Allow(visitorIP string) bool {
	if l.global != nil && !l.global.Allow() {
		return false
	}
	if l.perQPS == 0 || visitorIP == "" {
		return true
	}
	return l.visitor(visitorIP).Allow()
}

func (l *Limiter) visitor(ip string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := time.Now()
	if now.Sub(l.lastGC) > visitorIdleTTL {
		for k, v := range l.visitors {
			if now.Sub(v.seen) > visitorIdleTTL {
				delete(l.visitors, k)
			}
		}
		l.lastGC = now
	}
	v, ok := l.visitors[ip]
	if !ok {
		v = &visitor{lim: rate.NewLimiter(l.perQPS, l.perBurst)}
		l.visitors[ip] = v
	}
	v.seen = now
	return v.lim
}

func (l *Limiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := utils.ClientIP(r)
		if !l.Allow(ip) {
			metrics.RateLimitedTotal.Inc()
			logger.L().Debug("rate_limited", "ip", ip, "path", r.URL.Path)
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Wrap：按 RATE_LIMIT_ENABLED / RATE_LIMIT_QPS / RATE_LIMIT_PER_IP_QPS 包装处理器；未开启时原样返回
func Wrap(next http.Handler) http.Handler {
	if !utils.EnvBool("RATE_LIMIT_ENABLED", false) {
		return next
	}
	qps := utils.EnvInt("RATE_LIMIT_QPS", 200)
	per := utils.EnvInt("RATE_LIMIT_PER_IP_QPS", 0)
	logger.L().Info("rate_limit_enabled", "qps", qps, "per_ip_qps", per)
	return NewLimiter(qps, per).Middleware(next)
}
