package natrelay

import (
	"fmt"

	"github.com/benbjohnson/clock"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/dep2p/go-natrelay/config"
	"github.com/dep2p/go-natrelay/internal/core/allocation"
	"github.com/dep2p/go-natrelay/internal/core/binding"
	"github.com/dep2p/go-natrelay/internal/core/dispatcher"
	"github.com/dep2p/go-natrelay/internal/core/metrics"
	"github.com/dep2p/go-natrelay/internal/core/relay"
	"github.com/dep2p/go-natrelay/internal/debug/introspect"
	"github.com/dep2p/go-natrelay/internal/util/logger"
)

var fxLogger = logger.Logger("natrelay/fx")

// buildFxApp 构建 Fx 应用
//
// 加载顺序（按依赖）：
//  1. 配置与时钟
//  2. Metrics（可关闭，关闭时 *metrics.Metrics 为 nil）
//  3. Dispatcher
//  4. Binding 处理器（总是加载）
//  5. Allocation + Relay 处理器（仅 relay 模式）
//  6. Introspect（config.Diagnostics.EnableIntrospect）
//
// 处理器在 fx.Invoke 阶段注册到 Dispatcher，Dispatcher 在 OnStart 中绑定套接字，
// 因此第一个数据报到达时所有处理器都已就绪。
func buildFxApp(cfg *config.Config, o *options, s *Server) (*fx.App, error) {
	// ════════════════════════════════════════════════════════════════════════
	// 1. 配置验证（前置）
	// ════════════════════════════════════════════════════════════════════════
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	clk := o.clock
	if clk == nil {
		clk = clock.New()
	}

	// ════════════════════════════════════════════════════════════════════════
	// 2. 基础模块
	// ════════════════════════════════════════════════════════════════════════
	modules := []fx.Option{
		fx.Supply(cfg),
		fx.Provide(func() clock.Clock { return clk }),

		metrics.Module,
		dispatcher.Module(),
		binding.Module(),
		introspect.Module(),

		fx.Populate(&s.dispatcher, &s.registry, &s.metrics),
	}

	// ════════════════════════════════════════════════════════════════════════
	// 3. 中继模块（仅 relay 模式）
	// ════════════════════════════════════════════════════════════════════════
	if cfg.IsRelay() {
		modules = append(modules,
			fx.Provide(provideObserver),
			allocation.Module(),
			relay.Module(),
			fx.Populate(&s.store),
		)
		if o.credStore != nil {
			creds := o.credStore
			modules = append(modules, fx.Provide(func() relay.CredentialStore { return creds }))
		}
		fxLogger.Debug("已加载中继模块")
	}

	// ════════════════════════════════════════════════════════════════════════
	// 4. 用户扩展
	// ════════════════════════════════════════════════════════════════════════
	modules = append(modules, o.fxOptions...)

	modules = append(modules, fx.WithLogger(func() fxevent.Logger {
		if cfg.Log.FxEvents {
			if l, err := zap.NewDevelopment(); err == nil {
				return &fxevent.ZapLogger{Logger: l}
			}
		}
		return &fxevent.ZapLogger{Logger: zap.NewNop()}
	}))

	app := fx.New(modules...)
	if err := app.Err(); err != nil {
		return nil, fmt.Errorf("build fx app: %w", err)
	}
	return app, nil
}

// provideObserver 将分配生命周期事件接入 Metrics
func provideObserver(m *metrics.Metrics) allocation.Observer {
	if m == nil {
		return nil
	}
	return m
}
