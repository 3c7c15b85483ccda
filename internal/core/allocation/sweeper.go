package allocation

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// Sweeper 周期性清理过期分配
type Sweeper struct {
	store    *Store
	clock    clock.Clock
	interval time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewSweeper 创建清理器，clk 为 nil 时使用系统时钟
func NewSweeper(store *Store, clk clock.Clock, interval time.Duration) *Sweeper {
	if clk == nil {
		clk = clock.New()
	}
	return &Sweeper{
		store:    store,
		clock:    clk,
		interval: interval,
	}
}

// Start 启动清理循环
//
// ticker 在返回前创建，之后推进时钟即可触发清理。
func (s *Sweeper) Start(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		return ErrSweeperRunning
	}

	ctx, cancel := context.WithCancel(context.Background())
	ticker := s.clock.Ticker(s.interval)
	s.cancel = cancel
	s.done = make(chan struct{})

	go s.loop(ctx, ticker, s.done)

	log.Debug("清理器已启动", "interval", s.interval)
	return nil
}

func (s *Sweeper) loop(ctx context.Context, ticker *clock.Ticker, done chan struct{}) {
	defer close(done)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Tick()
		}
	}
}

// Tick 立即执行一次清理
func (s *Sweeper) Tick() []ClientKey {
	expired := s.store.SweepExpired(s.clock.Now())
	if len(expired) > 0 {
		log.Info("清理过期分配", "count", len(expired), "remaining", s.store.Len())
	}
	return expired
}

// Stop 停止清理循环并等待其退出
func (s *Sweeper) Stop() error {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	return nil
}
