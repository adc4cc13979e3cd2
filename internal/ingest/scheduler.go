package ingest

import (
	"context"
	"time"
)

// 文档注释：服务进程内的周期刷新
// 背景：查询路径只在表过期时触发刷新；周期任务让低流量实例同样保持数据新鲜。
// 约束：interval<=0 时不启动；错误由 Refresher 记录日志，任务继续调度；ctx 取消后退出。
func StartPeriodic(ctx context.Context, r *Refresher, interval time.Duration) {
	if r == nil || interval <= 0 {
		return
	}
	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				r.l.Info("refresh_scheduled", "interval", interval)
				_, _ = r.Refresh(ctx)
			}
		}
	}()
}
