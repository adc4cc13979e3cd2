package localdb

import (
	"fmt"
	"net/netip"
	"strings"
)

// InvalidAddressError：查询输入不是点分十进制 IPv4 字面量
type InvalidAddressError struct {
	Input string
}

func (e *InvalidAddressError) Error() string {
	return fmt.Sprintf("invalid ipv4 address %q", e.Input)
}

// 文档注释：IPv4 文本转无符号整数（网络序大端解释）
// 背景：范围匹配基于整数比较；查询与导入共用同一转换，保证边界一致。
// 约束：仅接受 a.b.c.d 形式；IPv6、IPv4-mapped IPv6、带前导零或空白的输入均视为非法。
func ParseIPv4(s string) (uint32, error) {
	if s == "" || strings.TrimSpace(s) != s {
		return 0, &InvalidAddressError{Input: s}
	}
	a, err := netip.ParseAddr(s)
	if err != nil || !a.Is4() {
		return 0, &InvalidAddressError{Input: s}
	}
	return addrToUint32(a), nil
}

// FormatIPv4 is the inverse of ParseIPv4.
func FormatIPv4(v uint32) string {
	return netip.AddrFrom4([4]byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)}).String()
}

// 文档注释：CIDR 转闭区间
// 背景：云厂商以 CIDR 发布网段（AWS/Cloudflare），入表前统一展开为 [start,end]。
// 约束：仅支持 IPv4 前缀；主机位会被清零后再计算。
func CIDRRange(cidr string) (uint32, uint32, error) {
	p, err := netip.ParsePrefix(strings.TrimSpace(cidr))
	if err != nil {
		return 0, 0, err
	}
	if !p.Addr().Is4() {
		return 0, 0, fmt.Errorf("not an ipv4 prefix: %s", cidr)
	}
	p = p.Masked()
	start := addrToUint32(p.Addr())
	hostBits := 32 - p.Bits()
	var span uint32
	if hostBits == 32 {
		span = ^uint32(0)
	} else {
		span = uint32(1)<<uint(hostBits) - 1
	}
	return start, start + span, nil
}

func addrToUint32(a netip.Addr) uint32 {
	v := a.As4()
	return uint32(v[0])<<24 | uint32(v[1])<<16 | uint32(v[2])<<8 | uint32(v[3])
}
