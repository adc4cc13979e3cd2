package localdb

import (
	"sync"
	"sync/atomic"
	"time"
)

// snapshot 将“当前表 + 刷新时间”作为一个整体发布，读方不会看到二者错配
type snapshot struct {
	table       *Table
	refreshedAt time.Time
}

// 文档注释：范围表的原子发布容器
// 背景：通过 atomic.Value 提供无锁读；写方仅在替换指针时持有互斥锁，重建表在锁外完成。
// 约束：Swap 只接受已构建完成的 *Table；发布后的表不得再修改。
type Index struct {
	v   atomic.Value
	mu  sync.Mutex
	now func() time.Time
}

// NewIndex 返回空容器；零值同样可用
func NewIndex() *Index { return &Index{now: time.Now} }

func (x *Index) clock() time.Time {
	if x.now == nil {
		return time.Now()
	}
	return x.now()
}

func (x *Index) load() snapshot {
	s, _ := x.v.Load().(snapshot)
	return s
}

// Get 返回调用时刻已发布的表；首次 Swap 之前为 nil
func (x *Index) Get() *Table { return x.load().table }

// 文档注释：发布新表（写路径）
// 背景：与刷新时间一起原子替换；进行中的 Get 要么看到旧表全貌，要么看到新表全貌。
func (x *Index) Swap(t *Table) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.v.Store(snapshot{table: t, refreshedAt: x.clock()})
}

// SwapAt 以指定时间发布；用于从持久化快照恢复，保留快照原始时间以免掩盖陈旧程度
func (x *Index) SwapAt(t *Table, refreshedAt time.Time) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.v.Store(snapshot{table: t, refreshedAt: refreshedAt})
}

func (x *Index) RefreshedAt() time.Time { return x.load().refreshedAt }

// Ready reports whether a table has been published.
func (x *Index) Ready() bool { return x.load().table != nil }

// NeedsRefresh：当前表已存活超过 maxAge；从未刷新过时恒为 true
func (x *Index) NeedsRefresh(maxAge time.Duration) bool {
	s := x.load()
	if s.table == nil {
		return true
	}
	return x.clock().Sub(s.refreshedAt) > maxAge
}
