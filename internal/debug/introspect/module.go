package introspect

import (
	"context"

	"go.uber.org/fx"

	"github.com/dep2p/go-natrelay/config"
	"github.com/dep2p/go-natrelay/internal/core/allocation"
	"github.com/dep2p/go-natrelay/internal/core/dispatcher"
	"github.com/dep2p/go-natrelay/internal/core/metrics"
)

// Module 返回自省服务 Fx 模块
func Module() fx.Option {
	return fx.Module("introspect",
		fx.Provide(NewFromParams),
		fx.Invoke(registerLifecycle),
	)
}

// Params 自省服务依赖参数
type Params struct {
	fx.In

	UnifiedCfg *config.Config         `optional:"true"`
	Dispatcher *dispatcher.Dispatcher `optional:"true"`
	Store      *allocation.Store      `optional:"true"`
	Metrics    *metrics.Metrics       `optional:"true"`
}

// Output 自省服务输出
type Output struct {
	fx.Out

	Server *Server `optional:"true"`
}

// ConfigFromUnified 从统一配置创建自省服务配置，未启用时返回 nil
func ConfigFromUnified(cfg *config.Config) *Config {
	if cfg == nil || !cfg.Diagnostics.EnableIntrospect {
		return nil
	}
	addr := cfg.Diagnostics.IntrospectAddr
	if addr == "" {
		addr = DefaultAddr
	}
	return &Config{
		Addr: addr,
		Mode: string(cfg.Listen.Mode),
	}
}

// NewFromParams 从参数创建自省服务
func NewFromParams(p Params) Output {
	cfg := ConfigFromUnified(p.UnifiedCfg)
	if cfg == nil {
		return Output{}
	}

	if p.Dispatcher != nil {
		cfg.Listener = p.Dispatcher
	}
	if p.Store != nil {
		cfg.Allocations = p.Store
	}
	if p.Metrics != nil {
		cfg.Rate = p.Metrics
	}
	return Output{Server: New(*cfg)}
}

// registerLifecycle 注册生命周期钩子
func registerLifecycle(lc fx.Lifecycle, server *Server) {
	if server == nil {
		return
	}
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return server.Start(ctx)
		},
		OnStop: func(_ context.Context) error {
			return server.Stop()
		},
	})
}
