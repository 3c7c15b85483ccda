package natrelay

import (
	"context"
	"fmt"
	"net/netip"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"

	"github.com/dep2p/go-natrelay/config"
	"github.com/dep2p/go-natrelay/internal/core/allocation"
	"github.com/dep2p/go-natrelay/internal/core/dispatcher"
	"github.com/dep2p/go-natrelay/internal/core/metrics"
	"github.com/dep2p/go-natrelay/internal/util/logger"
)

// Version 版本号
const Version = "v0.3.0"

var log = logger.Logger("natrelay")

const (
	// startTimeout 调用方未设置截止时间时的启动超时
	startTimeout = 15 * time.Second

	// stopTimeout 调用方未设置截止时间时的停止超时
	stopTimeout = 10 * time.Second
)

// State 服务状态
type State int

const (
	// StateIdle 已创建，未启动
	StateIdle State = iota

	// StateRunning 正在监听
	StateRunning

	// StateStopped 已停止，不能再次启动
	StateStopped
)

// String 返回状态名
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Server Binding / 中继服务
type Server struct {
	cfg *config.Config
	app *fx.App

	// 由 Fx 填充
	dispatcher *dispatcher.Dispatcher
	store      *allocation.Store
	metrics    *metrics.Metrics
	registry   *prometheus.Registry

	mu    sync.Mutex
	state State
}

// New 创建服务（不启动）
//
// 配置无效时返回包装了 ErrInvalidConfig 的错误。
func New(opts ...Option) (*Server, error) {
	o := &options{}
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, err
		}
	}

	cfg := o.resolve()
	logger.Configure(cfg.Log.Level)

	s := &Server{cfg: cfg}
	app, err := buildFxApp(cfg, o, s)
	if err != nil {
		return nil, err
	}
	s.app = app
	return s, nil
}

// Start 绑定套接字并开始服务
//
// 端口被占用时返回包装了 ErrBind 的错误，此时服务进入停止状态。
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateRunning:
		return ErrAlreadyStarted
	case StateStopped:
		return ErrServerClosed
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, startTimeout)
		defer cancel()
	}

	if err := s.app.Start(ctx); err != nil {
		// Fx 已回滚启动成功的组件
		s.state = StateStopped
		return fmt.Errorf("start: %w", err)
	}
	s.state = StateRunning

	log.Info("服务已启动",
		"mode", string(s.cfg.Listen.Mode),
		"addr", s.dispatcher.LocalAddr().String(),
		"version", Version)
	return nil
}

// Stop 停止服务，销毁所有分配并关闭套接字
//
// 未启动时返回 ErrNotStarted；重复调用返回 nil。
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateIdle:
		return ErrNotStarted
	case StateStopped:
		return nil
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, stopTimeout)
		defer cancel()
	}

	s.state = StateStopped
	if err := s.app.Stop(ctx); err != nil {
		return fmt.Errorf("stop: %w", err)
	}
	log.Info("服务已停止")
	return nil
}

// State 返回当前状态
func (s *Server) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Addr 返回实际监听地址，未启动时返回零值
func (s *Server) Addr() netip.AddrPort {
	return s.dispatcher.LocalAddr()
}

// Mode 返回服务模式
func (s *Server) Mode() Mode {
	return s.cfg.Listen.Mode
}

// Config 返回脱敏后的配置副本
func (s *Server) Config() *config.Config {
	return s.cfg.Redacted()
}

// AllocationCount 返回当前活跃分配数，binding 模式恒为 0
func (s *Server) AllocationCount() int {
	if s.store == nil {
		return 0
	}
	return s.store.Len()
}

// Gatherer 返回本服务的 Prometheus 指标源
func (s *Server) Gatherer() prometheus.Gatherer {
	return s.registry
}
