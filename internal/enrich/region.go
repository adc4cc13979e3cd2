package enrich

import (
	"fmt"
	"strings"

	"github.com/lionsoul2014/ip2region/binding/golang/xdb"
)

// Region 为 ip2region 的解析结果，未知字段为空串
type Region struct {
	Country  string `json:"country,omitempty"`
	Province string `json:"province,omitempty"`
	City     string `json:"city,omitempty"`
	ISP      string `json:"isp,omitempty"`
}

func (r Region) Empty() bool { return r == Region{} }

// RegionDB：ip2region xdb（v4）
// 约束：整个文件读入内存后以缓冲模式查询；缓冲模式只读，可被多个请求协程共享，文件模式的 Searcher 不可并发使用。
type RegionDB struct {
	v4 *xdb.Searcher
}

func OpenRegion(v4Path string) (*RegionDB, error) {
	buf, err := xdb.LoadContentFromFile(v4Path)
	if err != nil {
		return nil, err
	}
	return openRegionBuffer(buf)
}

func openRegionBuffer(buf []byte) (*RegionDB, error) {
	if len(buf) < xdb.HeaderInfoLength+xdb.VectorIndexRows*xdb.VectorIndexCols*xdb.VectorIndexSize {
		return nil, fmt.Errorf("ip2region: content too short (%d bytes)", len(buf))
	}
	s, err := xdb.NewWithBuffer(xdb.IPv4, buf)
	if err != nil {
		return nil, err
	}
	return &RegionDB{v4: s}, nil
}

func (d *RegionDB) Lookup(ip string) (Region, bool) {
	if d == nil || d.v4 == nil || ip == "" {
		return Region{}, false
	}
	raw, err := d.v4.SearchByStr(ip)
	if err != nil || raw == "" {
		return Region{}, false
	}
	r := parseRegion(raw)
	return r, !r.Empty()
}

func (d *RegionDB) Close() {
	if d != nil && d.v4 != nil {
		d.v4.Close()
	}
}

// parseRegion 解析 "国家|区域|省份|城市|ISP"；较新的数据文件省略区域列，只有四段
func parseRegion(s string) Region {
	parts := strings.Split(s, "|")
	if len(parts) == 4 {
		parts = append(parts[:1], append([]string{""}, parts[1:]...)...)
	}
	var r Region
	if len(parts) > 0 {
		r.Country = safe(parts[0])
	}
	if len(parts) > 2 {
		r.Province = safe(parts[2])
	}
	if len(parts) > 3 {
		r.City = safe(parts[3])
	}
	if len(parts) > 4 {
		r.ISP = safe(parts[4])
	}
	return r
}

func safe(s string) string {
	if s == "0" || s == "" || strings.EqualFold(s, "unknown") {
		return ""
	}
	return s
}
