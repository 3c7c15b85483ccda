package allocation

import (
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"

	"github.com/dep2p/go-natrelay/config"
	"github.com/dep2p/go-natrelay/internal/util/logger"
)

var log = logger.Logger("allocation")

// Config 分配表配置
type Config struct {
	// PortMin/PortMax 中继端口范围（含两端）
	PortMin int
	PortMax int

	// MaxAllocations 活跃分配（含预留）上限，0 表示只受端口范围限制
	MaxAllocations int
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		PortMin: config.DefaultRelayPortMin,
		PortMax: config.DefaultRelayPortMax,
	}
}

// ConfigFromUnified 从统一配置创建分配表配置
func ConfigFromUnified(cfg *config.Config) Config {
	if cfg == nil {
		return DefaultConfig()
	}
	return Config{
		PortMin:        cfg.Relay.PortMin,
		PortMax:        cfg.Relay.PortMax,
		MaxAllocations: cfg.Relay.MaxAllocations,
	}
}

// Store 中继分配表
type Store struct {
	cfg      Config
	clock    clock.Clock
	observer Observer

	mu          sync.Mutex
	allocations map[ClientKey]*Allocation
	ports       map[uint16]*Allocation
	permissions map[ClientKey]map[PeerKey]struct{}
	closed      bool
}

// NewStore 创建分配表，clk 为 nil 时使用系统时钟
func NewStore(cfg Config, clk clock.Clock) *Store {
	if clk == nil {
		clk = clock.New()
	}
	return &Store{
		cfg:         cfg,
		clock:       clk,
		observer:    noopObserver{},
		allocations: make(map[ClientKey]*Allocation),
		ports:       make(map[uint16]*Allocation),
		permissions: make(map[ClientKey]map[PeerKey]struct{}),
	}
}

// SetObserver 设置生命周期观察者
func (s *Store) SetObserver(o Observer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if o == nil {
		o = noopObserver{}
	}
	s.observer = o
}

// Now 返回分配表使用的当前时间
func (s *Store) Now() time.Time {
	return s.clock.Now()
}

// ============================================================================
//                              端口预留
// ============================================================================

// ReserveRelayPort 按升序扫描端口范围，预留第一个空闲端口
//
// 端口范围耗尽或达到 MaxAllocations 时返回 false。
// 预留的端口必须随后通过 Create 绑定或通过 ReleaseRelayPort 释放。
func (s *Store) ReserveRelayPort() (uint16, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, false
	}
	if s.cfg.MaxAllocations > 0 && len(s.ports) >= s.cfg.MaxAllocations {
		log.Debug("分配数达到上限", "max", s.cfg.MaxAllocations)
		return 0, false
	}

	for p := s.cfg.PortMin; p <= s.cfg.PortMax; p++ {
		port := uint16(p) // #nosec G115 -- 范围在配置校验中限制为 1-65535
		if _, used := s.ports[port]; !used {
			s.ports[port] = nil
			return port, true
		}
	}

	log.Warn("中继端口耗尽", "min", s.cfg.PortMin, "max", s.cfg.PortMax)
	return 0, false
}

// ReleaseRelayPort 释放尚未绑定分配的预留端口
//
// 已绑定分配的端口只能随分配一起销毁，此时调用无效果。
func (s *Store) ReleaseRelayPort(port uint16) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if a, ok := s.ports[port]; ok && a == nil {
		delete(s.ports, port)
	}
}

// ============================================================================
//                              分配
// ============================================================================

// Create 在预留端口上为 key 创建分配
func (s *Store) Create(key ClientKey, username string, port uint16, lifetime time.Duration) (Allocation, error) {
	s.mu.Lock()

	if s.closed {
		s.mu.Unlock()
		return Allocation{}, ErrStoreClosed
	}
	if _, exists := s.allocations[key]; exists {
		s.mu.Unlock()
		return Allocation{}, ErrAllocationExists
	}
	if owner, reserved := s.ports[port]; !reserved || owner != nil {
		s.mu.Unlock()
		return Allocation{}, ErrPortNotReserved
	}

	now := s.clock.Now()
	a := &Allocation{
		ID:        uuid.NewString(),
		ClientKey: key,
		RelayPort: port,
		Username:  username,
		CreatedAt: now,
		ExpiresAt: now.Add(lifetime),
		Lifetime:  lifetime,
	}
	s.allocations[key] = a
	s.ports[port] = a
	s.permissions[key] = make(map[PeerKey]struct{})
	observer := s.observer
	s.mu.Unlock()

	observer.AllocationCreated()
	log.Debug("创建分配",
		"id", a.ID,
		"client", key.String(),
		"port", port,
		"lifetime", lifetime)
	return *a, nil
}

// Lookup 返回 key 的分配副本
func (s *Store) Lookup(key ClientKey) (Allocation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.allocations[key]
	if !ok {
		return Allocation{}, false
	}
	return *a, true
}

// Refresh 将分配的过期时间设置为 now + lifetime
//
// lifetime <= 0 时销毁分配，返回的副本 Lifetime 为 0。
func (s *Store) Refresh(key ClientKey, lifetime time.Duration) (Allocation, error) {
	s.mu.Lock()

	a, ok := s.allocations[key]
	if !ok {
		s.mu.Unlock()
		return Allocation{}, ErrNoAllocation
	}

	if lifetime <= 0 {
		out := *a
		out.Lifetime = 0
		out.ExpiresAt = s.clock.Now()
		s.destroyLocked(key)
		observer := s.observer
		s.mu.Unlock()

		observer.AllocationDestroyed(ReasonRefresh)
		log.Debug("刷新销毁分配", "id", out.ID, "client", key.String())
		return out, nil
	}

	a.ExpiresAt = s.clock.Now().Add(lifetime)
	a.Lifetime = lifetime
	out := *a
	s.mu.Unlock()

	log.Debug("刷新分配", "id", out.ID, "client", key.String(), "lifetime", lifetime)
	return out, nil
}

// Destroy 销毁 key 的分配，释放端口并清空许可集合
//
// 没有分配时无效果，返回 false。
func (s *Store) Destroy(key ClientKey) bool {
	s.mu.Lock()
	_, ok := s.allocations[key]
	if ok {
		s.destroyLocked(key)
	}
	observer := s.observer
	s.mu.Unlock()

	if ok {
		observer.AllocationDestroyed(ReasonDestroy)
	}
	return ok
}

func (s *Store) destroyLocked(key ClientKey) {
	a := s.allocations[key]
	delete(s.allocations, key)
	delete(s.ports, a.RelayPort)
	delete(s.permissions, key)
}

// ============================================================================
//                              许可
// ============================================================================

// AddPermission 为 key 的分配添加对端许可（幂等）
//
// 所有对端在同一临界区内写入。
func (s *Store) AddPermission(key ClientKey, peers ...PeerKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	set, ok := s.permissions[key]
	if !ok {
		return ErrNoAllocation
	}
	for _, p := range peers {
		set[p] = struct{}{}
	}
	return nil
}

// HasPermission key 的分配是否允许与 peer 通信
func (s *Store) HasPermission(key ClientKey, peer PeerKey) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.permissions[key][peer]
	return ok
}

// Permissions 返回 key 的许可对端列表
func (s *Store) Permissions(key ClientKey) []PeerKey {
	s.mu.Lock()
	defer s.mu.Unlock()

	set := s.permissions[key]
	out := make([]PeerKey, 0, len(set))
	for p := range set {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].AddrPort().Compare(out[j].AddrPort()) < 0
	})
	return out
}

// ============================================================================
//                              清理
// ============================================================================

// SweepExpired 销毁所有 ExpiresAt 严格早于 now 的分配
func (s *Store) SweepExpired(now time.Time) []ClientKey {
	s.mu.Lock()
	var expired []ClientKey
	for key, a := range s.allocations {
		if a.Expired(now) {
			expired = append(expired, key)
		}
	}
	for _, key := range expired {
		log.Debug("移除过期分配",
			"id", s.allocations[key].ID,
			"client", key.String(),
			"port", s.allocations[key].RelayPort)
		s.destroyLocked(key)
	}
	observer := s.observer
	s.mu.Unlock()

	for range expired {
		observer.AllocationDestroyed(ReasonExpired)
	}
	return expired
}

// Len 返回活跃分配数
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.allocations)
}

// Allocations 返回所有活跃分配的副本，按中继端口排序
func (s *Store) Allocations() []Allocation {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Allocation, 0, len(s.allocations))
	for _, a := range s.allocations {
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RelayPort < out[j].RelayPort })
	return out
}

// Close 销毁所有分配并拒绝新的预留
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	n := len(s.allocations)
	s.allocations = make(map[ClientKey]*Allocation)
	s.ports = make(map[uint16]*Allocation)
	s.permissions = make(map[ClientKey]map[PeerKey]struct{})
	observer := s.observer
	s.mu.Unlock()

	for i := 0; i < n; i++ {
		observer.AllocationDestroyed(ReasonShutdown)
	}
	if n > 0 {
		log.Info("关闭分配表", "destroyed", n)
	}
	return nil
}
