package enrich

import (
	"ipcat/internal/logger"
	"ipcat/internal/utils"
)

// Info 为附加到查询结果上的补充字段
type Info struct {
	ASN
	Region *Region `json:"region,omitempty"`
}

// 文档注释：补充信息聚合
// 背景：ASN 与地域库互相独立，任一缺失只影响对应字段；nil *Enricher 表示关闭补充。
type Enricher struct {
	asn    *ASNDB
	region *RegionDB
}

func New(asn *ASNDB, region *RegionDB) *Enricher {
	if asn == nil && region == nil {
		return nil
	}
	return &Enricher{asn: asn, region: region}
}

// FromEnv：按 ASN_MMDB_PATH / IP2REGION_V4_PATH 打开数据文件；打开失败记录告警并跳过该项
func FromEnv() *Enricher {
	var a *ASNDB
	var r *RegionDB
	if p := utils.EnvString("ASN_MMDB_PATH", ""); p != "" {
		db, err := OpenASN(p)
		if err != nil {
			logger.L().Warn("asn_db_open_error", "path", p, "err", err)
		} else {
			a = db
		}
	}
	if p := utils.EnvString("IP2REGION_V4_PATH", ""); p != "" {
		db, err := OpenRegion(p)
		if err != nil {
			logger.L().Warn("ip2region_open_error", "path", p, "err", err)
		} else {
			r = db
		}
	}
	return New(a, r)
}

func (e *Enricher) Lookup(ip string) Info {
	var out Info
	if e == nil {
		return out
	}
	if a, ok := e.asn.Lookup(ip); ok {
		out.ASN = a
	}
	if r, ok := e.region.Lookup(ip); ok {
		out.Region = &r
	}
	return out
}

func (e *Enricher) Close() {
	if e == nil {
		return
	}
	_ = e.asn.Close()
	e.region.Close()
}
