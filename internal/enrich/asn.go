// 包 enrich：为查询结果补充 ASN 与地域信息（可选，数据文件缺失时整体跳过）
package enrich

import (
	"net"

	"github.com/oschwald/geoip2-golang"
)

// ASN 为 GeoLite2-ASN 的命中结果
type ASN struct {
	Number uint   `json:"asn,omitempty"`
	Org    string `json:"asn_org,omitempty"`
}

type ASNDB struct {
	r *geoip2.Reader
}

func OpenASN(path string) (*ASNDB, error) {
	r, err := geoip2.Open(path)
	if err != nil {
		return nil, err
	}
	return &ASNDB{r: r}, nil
}

func (d *ASNDB) Lookup(ip string) (ASN, bool) {
	if d == nil || d.r == nil {
		return ASN{}, false
	}
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return ASN{}, false
	}
	rec, err := d.r.ASN(parsed)
	if err != nil || rec.AutonomousSystemNumber == 0 {
		return ASN{}, false
	}
	return ASN{Number: rec.AutonomousSystemNumber, Org: rec.AutonomousSystemOrganization}, true
}

func (d *ASNDB) Close() error {
	if d == nil || d.r == nil {
		return nil
	}
	return d.r.Close()
}
