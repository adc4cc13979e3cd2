package localdb

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestIndexEmpty(t *testing.T) {
	var x Index
	if x.Get() != nil || x.Ready() {
		t.Fatal("zero Index reports a table")
	}
	if !x.NeedsRefresh(time.Hour) {
		t.Fatal("zero Index does not need refresh")
	}
}

func TestIndexStalenessBound(t *testing.T) {
	clk := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	x := NewIndex()
	x.now = clk.Now
	maxAge := 24 * time.Hour

	x.Swap(mustBuild(t, nil))
	if x.NeedsRefresh(maxAge) {
		t.Fatal("NeedsRefresh true right after Swap")
	}
	clk.Advance(maxAge)
	if x.NeedsRefresh(maxAge) {
		t.Fatal("NeedsRefresh true at exactly maxAge")
	}
	clk.Advance(time.Nanosecond)
	if !x.NeedsRefresh(maxAge) {
		t.Fatal("NeedsRefresh false after maxAge elapsed")
	}
	x.Swap(mustBuild(t, nil))
	if x.NeedsRefresh(maxAge) {
		t.Fatal("NeedsRefresh true after second Swap")
	}
	if !x.RefreshedAt().Equal(clk.Now()) {
		t.Fatalf("RefreshedAt() = %v, want %v", x.RefreshedAt(), clk.Now())
	}
}

// 并发读者在写者反复 Swap 时只能看到某一代完整的表
func TestIndexSwapIsAtomicForReaders(t *testing.T) {
	const (
		generations = 200
		perTable    = 64
		readers     = 8
	)
	tables := make([]*Table, generations)
	for g := range tables {
		rows := make([]Record, perTable)
		owner := FormatIPv4(uint32(g))
		for i := range rows {
			rows[i] = Record{Start: uint32(i * 10), End: uint32(i*10 + 5), Owner: owner}
		}
		tables[g] = mustBuild(t, rows)
	}

	x := NewIndex()
	x.Swap(tables[0])

	var stop atomic.Bool
	var wg sync.WaitGroup
	errs := make(chan string, readers)
	for r := 0; r < readers; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for !stop.Load() {
				tbl := x.Get()
				first, ok := tbl.Find(0)
				if !ok {
					errs <- "missing first record"
					return
				}
				for i := 1; i < perTable; i++ {
					rec, ok := tbl.Find(uint32(i * 10))
					if !ok || rec.Owner != first.Owner {
						errs <- "mixed generations in one table: " + first.Owner + " vs " + rec.Owner
						return
					}
				}
			}
		}()
	}
	for g := 1; g < generations; g++ {
		x.Swap(tables[g])
	}
	stop.Store(true)
	wg.Wait()
	close(errs)
	for e := range errs {
		t.Fatal(e)
	}
	if x.Get() != tables[generations-1] {
		t.Fatal("last Swap not visible")
	}
}
