package types

import (
	"fmt"
	"net/netip"
)

// DefaultPort 默认 UDP 端口
const DefaultPort = 27980

// Endpoint 网络端点（IPv4 或 IPv6 地址 + 端口）
type Endpoint = netip.AddrPort

// ParseEndpoint 解析 "host:port" 形式的端点
//
// 省略端口时使用 DefaultPort。IPv4 映射的 IPv6 地址会被还原为 IPv4。
func ParseEndpoint(s string) (Endpoint, error) {
	if ep, err := netip.ParseAddrPort(s); err == nil {
		return NormalizeEndpoint(ep), nil
	}
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return Endpoint{}, fmt.Errorf("%w: %q", ErrInvalidEndpoint, s)
	}
	return NormalizeEndpoint(netip.AddrPortFrom(addr, DefaultPort)), nil
}

// NormalizeEndpoint 去掉 IPv4 映射前缀和 zone
func NormalizeEndpoint(ep Endpoint) Endpoint {
	return netip.AddrPortFrom(ep.Addr().Unmap().WithZone(""), ep.Port())
}

// ============================================================================
//                              Peer - 节点
// ============================================================================

// Peer 标识符与网络端点的组合
//
// 端点不要求唯一，唯一性由路由表按标识符保证。
type Peer struct {
	ID       ID
	Endpoint Endpoint
}

// String 返回节点的字符串表示
func (p Peer) String() string {
	return p.ID.ShortString() + "@" + p.Endpoint.String()
}

