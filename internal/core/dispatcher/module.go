package dispatcher

import (
	"context"

	"go.uber.org/fx"

	"github.com/dep2p/go-natrelay/config"
	"github.com/dep2p/go-natrelay/internal/core/metrics"
)

// Params 调度器依赖
type Params struct {
	fx.In

	Config  *config.Config   `optional:"true"`
	Metrics *metrics.Metrics `optional:"true"`
}

// Result 调度器输出
type Result struct {
	fx.Out

	Dispatcher *Dispatcher
	Registrar  Registrar
}

// Provide 创建调度器
func Provide(p Params) (Result, error) {
	d, err := New(ConfigFromUnified(p.Config), p.Metrics)
	if err != nil {
		return Result{}, err
	}
	return Result{Dispatcher: d, Registrar: d}, nil
}

// Module 返回 Fx 模块
func Module() fx.Option {
	return fx.Module("dispatcher",
		fx.Provide(Provide),
		fx.Invoke(registerLifecycle),
	)
}

// registerLifecycle 注册调度器生命周期
//
// 处理器在 fx.Invoke 阶段注册，早于 OnStart 绑定套接字。
func registerLifecycle(lc fx.Lifecycle, d *Dispatcher) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return d.Start(ctx)
		},
		OnStop: func(_ context.Context) error {
			return d.Close()
		},
	})
}
