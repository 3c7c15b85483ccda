package allocation

import (
	"context"

	"github.com/benbjohnson/clock"
	"go.uber.org/fx"
	"go.uber.org/multierr"

	"github.com/dep2p/go-natrelay/config"
)

// Params 分配模块依赖
type Params struct {
	fx.In

	Config   *config.Config `optional:"true"`
	Clock    clock.Clock    `optional:"true"`
	Observer Observer       `optional:"true"`
}

// Result 分配模块输出
type Result struct {
	fx.Out

	Store   *Store
	Sweeper *Sweeper
}

// Provide 创建分配表与清理器
func Provide(p Params) Result {
	store := NewStore(ConfigFromUnified(p.Config), p.Clock)
	if p.Observer != nil {
		store.SetObserver(p.Observer)
	}

	interval := config.DefaultSweepInterval
	if p.Config != nil {
		interval = p.Config.Relay.SweepInterval.Duration()
	}

	return Result{
		Store:   store,
		Sweeper: NewSweeper(store, p.Clock, interval),
	}
}

// Module 返回 Fx 模块
func Module() fx.Option {
	return fx.Module("allocation",
		fx.Provide(Provide),
		fx.Invoke(registerLifecycle),
	)
}

// registerLifecycle 注册清理器生命周期，停止时销毁所有分配
func registerLifecycle(lc fx.Lifecycle, store *Store, sweeper *Sweeper) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return sweeper.Start(ctx)
		},
		OnStop: func(_ context.Context) error {
			return multierr.Combine(sweeper.Stop(), store.Close())
		},
	})
}
