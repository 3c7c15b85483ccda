package allocation

import (
	"net/netip"
	"time"
)

// ClientKey 客户端 UDP 端点（源地址 + 源端口）
type ClientKey netip.AddrPort

// NewClientKey 从端点创建 ClientKey，IPv4-mapped 地址会被还原为 IPv4
func NewClientKey(ap netip.AddrPort) ClientKey {
	return ClientKey(netip.AddrPortFrom(ap.Addr().Unmap(), ap.Port()))
}

// AddrPort 返回底层端点
func (k ClientKey) AddrPort() netip.AddrPort {
	return netip.AddrPort(k)
}

func (k ClientKey) String() string {
	return netip.AddrPort(k).String()
}

// PeerKey 对端 UDP 端点
type PeerKey netip.AddrPort

// NewPeerKey 从端点创建 PeerKey
func NewPeerKey(ap netip.AddrPort) PeerKey {
	return PeerKey(netip.AddrPortFrom(ap.Addr().Unmap(), ap.Port()))
}

// AddrPort 返回底层端点
func (k PeerKey) AddrPort() netip.AddrPort {
	return netip.AddrPort(k)
}

func (k PeerKey) String() string {
	return netip.AddrPort(k).String()
}

// Allocation 中继分配
//
// Store 对外只返回副本，修改副本不影响分配表。
type Allocation struct {
	// ID 用于日志关联
	ID string

	ClientKey ClientKey
	RelayPort uint16
	Username  string

	CreatedAt time.Time
	ExpiresAt time.Time

	// Lifetime 最近一次授予的生命周期
	Lifetime time.Duration
}

// Expired 在 now 时刻是否已过期（ExpiresAt 严格早于 now）
func (a Allocation) Expired(now time.Time) bool {
	return a.ExpiresAt.Before(now)
}

// Remaining 剩余生命周期
func (a Allocation) Remaining(now time.Time) time.Duration {
	if d := a.ExpiresAt.Sub(now); d > 0 {
		return d
	}
	return 0
}

// 分配销毁原因
const (
	ReasonRefresh  = "refresh"
	ReasonExpired  = "expired"
	ReasonDestroy  = "destroy"
	ReasonShutdown = "shutdown"
)

// Observer 分配生命周期观察者
//
// 回调在释放锁之后调用，可以安全地访问 Store。
type Observer interface {
	AllocationCreated()
	AllocationDestroyed(reason string)
}

type noopObserver struct{}

func (noopObserver) AllocationCreated()          {}
func (noopObserver) AllocationDestroyed(string) {}
