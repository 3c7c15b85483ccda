package metrics

import (
	"context"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/fx"

	"github.com/dep2p/go-natrelay/config"
)

// Config 指标配置
type Config struct {
	// Enabled 是否启用指标收集
	Enabled bool

	// Address /metrics 监听地址，空表示不暴露
	Address string
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		Enabled: true,
	}
}

// ConfigFromUnified 从统一配置创建指标配置
func ConfigFromUnified(cfg *config.Config) Config {
	if cfg == nil {
		return DefaultConfig()
	}
	return Config{
		Enabled: cfg.Metrics.Enabled,
		Address: cfg.Metrics.Address,
	}
}

// Params Metrics 依赖参数
type Params struct {
	fx.In

	UnifiedCfg *config.Config `optional:"true"`
	Clock      clock.Clock    `optional:"true"`
}

// Result Metrics 输出
type Result struct {
	fx.Out

	Metrics  *Metrics
	Registry *prometheus.Registry
}

// Module 是 metrics 的 Fx 模块
var Module = fx.Module("metrics",
	fx.Provide(NewFromParams),
	fx.Invoke(registerLifecycle),
)

// NewFromParams 为每个应用创建独立的注册器与指标
//
// 关闭指标收集时 Metrics 为 nil。
func NewFromParams(p Params) Result {
	reg := prometheus.NewRegistry()
	cfg := ConfigFromUnified(p.UnifiedCfg)
	if !cfg.Enabled {
		return Result{Registry: reg}
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return Result{
		Metrics:  NewMetricsWithRegistry(reg, p.Clock),
		Registry: reg,
	}
}

type lifecycleInput struct {
	fx.In

	LC         fx.Lifecycle
	UnifiedCfg *config.Config `optional:"true"`
	Metrics    *Metrics
	Registry   *prometheus.Registry
}

// registerLifecycle 配置了监听地址时启动 /metrics 服务
func registerLifecycle(in lifecycleInput) {
	cfg := ConfigFromUnified(in.UnifiedCfg)
	if in.Metrics == nil || cfg.Address == "" {
		return
	}

	srv := NewServer(cfg.Address, in.Registry)
	in.LC.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			return srv.Start()
		},
		OnStop: func(_ context.Context) error {
			return srv.Stop()
		},
	})
}
