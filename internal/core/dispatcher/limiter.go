package dispatcher

import (
	"net/netip"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"

	"github.com/dep2p/go-natrelay/config"
)

// sourceLimiter 按来源 IP 的令牌桶限流
//
// 只跟踪最近活跃的 MaxSources 个来源，超出后淘汰最久未活动的来源。
type sourceLimiter struct {
	limit rate.Limit
	burst int

	mu      sync.Mutex
	sources *lru.Cache[netip.Addr, *rate.Limiter]
}

// newSourceLimiter 创建限流器，未启用时返回 nil
func newSourceLimiter(cfg config.RateLimitConfig) (*sourceLimiter, error) {
	if !cfg.Enabled() {
		return nil, nil
	}
	cache, err := lru.New[netip.Addr, *rate.Limiter](cfg.MaxSources)
	if err != nil {
		return nil, err
	}
	return &sourceLimiter{
		limit:   rate.Limit(cfg.RequestsPerSecond),
		burst:   cfg.Burst,
		sources: cache,
	}, nil
}

// Allow 是否允许来自 addr 的一个数据报
func (l *sourceLimiter) Allow(addr netip.Addr) bool {
	if l == nil {
		return true
	}

	l.mu.Lock()
	lim, ok := l.sources.Get(addr)
	if !ok {
		lim = rate.NewLimiter(l.limit, l.burst)
		l.sources.Add(addr, lim)
	}
	l.mu.Unlock()

	return lim.Allow()
}

// Len 返回跟踪的来源数
func (l *sourceLimiter) Len() int {
	if l == nil {
		return 0
	}
	return l.sources.Len()
}
