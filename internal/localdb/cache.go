package localdb

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Record：一条已归属的 IPv4 闭区间 [Start, End]
type Record struct {
	Start uint32
	End   uint32
	Owner string
	URL   string
}

// Contains reports whether addr lies within [Start, End].
func (r Record) Contains(addr uint32) bool { return addr >= r.Start && addr <= r.End }

// Size 返回区间内地址数量；全量 0.0.0.0-255.255.255.255 会超出 uint32，故用 uint64
func (r Record) Size() uint64 { return uint64(r.End) - uint64(r.Start) + 1 }

// MalformedDatasetError：数据集中出现 start > end、重叠区间或无法解析的行
// 约束：Line 为源数据行号（CSV 解析阶段）或输入下标（Build 阶段，从 0 起），由 Where 区分。
type MalformedDatasetError struct {
	Where  string
	Line   int
	Reason string
}

func (e *MalformedDatasetError) Error() string {
	if e.Where == "" {
		return "malformed dataset: " + e.Reason
	}
	return fmt.Sprintf("malformed dataset at %s %d: %s", e.Where, e.Line, e.Reason)
}

// Table：按 Start 升序、互不重叠的只读范围表
// 背景：每次刷新整体重建，发布后不再修改；读路径无需加锁。
type Table struct {
	records []Record
	builtAt time.Time
}

// 文档注释：从原始行构建范围表
// 背景：按输入顺序稳定排序后，相同 Start 以最后出现者为准（等价于按起始地址建键的映射逐行覆盖）。
// 约束：任一行 Start > End 即失败；相邻区间重叠同样失败，不在查找侧兜底。
// 返回：构建好的 Table；异常为 *MalformedDatasetError。
func Build(rows []Record) (*Table, error) {
	for i, r := range rows {
		if r.Start > r.End {
			return nil, &MalformedDatasetError{
				Where:  "row",
				Line:   i,
				Reason: fmt.Sprintf("start %s > end %s", FormatIPv4(r.Start), FormatIPv4(r.End)),
			}
		}
	}
	sorted := make([]Record, len(rows))
	copy(sorted, rows)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })

	out := make([]Record, 0, len(sorted))
	for _, r := range sorted {
		if n := len(out); n > 0 && out[n-1].Start == r.Start {
			out[n-1] = r
			continue
		}
		out = append(out, r)
	}
	for i := 1; i < len(out); i++ {
		prev, cur := out[i-1], out[i]
		if prev.End >= cur.Start {
			return nil, &MalformedDatasetError{
				Where: "record",
				Line:  i,
				Reason: fmt.Sprintf("overlapping ranges %s-%s (%s) and %s-%s (%s)",
					FormatIPv4(prev.Start), FormatIPv4(prev.End), prev.Owner,
					FormatIPv4(cur.Start), FormatIPv4(cur.End), cur.Owner),
			}
		}
	}
	return &Table{records: out, builtAt: time.Now()}, nil
}

// 文档注释：二分查找地址所在区间
// 背景：low/high/mid 闭区间二分；表不可变，查找过程无锁。
// 返回：命中的 Record 与 true；未命中或表为空返回 false。
func (t *Table) Find(addr uint32) (Record, bool) {
	if t == nil {
		return Record{}, false
	}
	low, high := 0, len(t.records)-1
	for low <= high {
		mid := (low + high) / 2
		r := &t.records[mid]
		if r.Start > addr {
			high = mid - 1
		} else if r.End < addr {
			low = mid + 1
		} else {
			return *r, true
		}
	}
	return Record{}, false
}

func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.records)
}

func (t *Table) BuiltAt() time.Time {
	if t == nil {
		return time.Time{}
	}
	return t.builtAt
}

// Records 返回副本，调用方修改不会影响已发布的表
func (t *Table) Records() []Record {
	if t == nil {
		return nil
	}
	out := make([]Record, len(t.records))
	copy(out, t.records)
	return out
}

// OwnerSize：某归属方名下的地址总量
type OwnerSize struct {
	Owner string `json:"owner"`
	Size  uint64 `json:"size"`
}

// 文档注释：按归属方统计地址总量并排序
// 背景：用于 /stats 与 CLI 统计输出；先按数量降序，数量相同时按名称（忽略大小写）升序。
// 约束：表内区间互不重叠，总量不超过 2^32，uint64 足够。
func (t *Table) RankBySize() []OwnerSize {
	if t == nil {
		return nil
	}
	counts := make(map[string]uint64)
	for _, r := range t.records {
		counts[r.Owner] += r.Size()
	}
	out := make([]OwnerSize, 0, len(counts))
	for k, v := range counts {
		out = append(out, OwnerSize{Owner: k, Size: v})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Size != out[j].Size {
			return out[i].Size > out[j].Size
		}
		return strings.ToLower(out[i].Owner) < strings.ToLower(out[j].Owner)
	})
	return out
}
