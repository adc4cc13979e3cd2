package api

import (
	"time"

	"ipcat/internal/enrich"
	"ipcat/internal/localdb"
	"ipcat/internal/store"
)

// 文档注释：查询返回结构（对外）
// 背景：未命中时只返回 ip 与 found=false；补充字段（asn/asn_org/region）仅在对应数据文件加载后出现。
// 约束：字段稳定；新增字段需评估兼容性与调用方依赖。
type queryResult struct {
	IP    string `json:"ip"`
	Found bool   `json:"found"`
	Start string `json:"start,omitempty"`
	End   string `json:"end,omitempty"`
	Owner string `json:"owner,omitempty"`
	URL   string `json:"url,omitempty"`
	enrich.Info
}

func newQueryResult(ip string, rec localdb.Record, found bool) queryResult {
	res := queryResult{IP: ip, Found: found}
	if found {
		res.Start = localdb.FormatIPv4(rec.Start)
		res.End = localdb.FormatIPv4(rec.End)
		res.Owner = rec.Owner
		res.URL = rec.URL
	}
	return res
}

type statsResult struct {
	Records     int                 `json:"records"`
	Owners      int                 `json:"owners"`
	BuiltAt     time.Time           `json:"built_at"`
	RefreshedAt time.Time           `json:"refreshed_at"`
	Stale       bool                `json:"stale"`
	TopOwners   []localdb.OwnerSize `json:"top_owners"`
	Queries     *store.Totals       `json:"queries,omitempty"`
}

type errorResult struct {
	Error string `json:"error"`
}
