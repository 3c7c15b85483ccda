// Package logger 提供 natrelay 的统一日志系统
//
// 基于标准库 log/slog，支持：
//   - 按子系统配置日志级别
//   - 环境变量配置（NATRELAY_LOG_LEVEL, NATRELAY_LOG_FORMAT）
//   - 配置文件覆盖（Configure）
//   - 结构化日志
//
// 使用示例:
//
//	package relay
//
//	import "github.com/dep2p/go-natrelay/internal/util/logger"
//
//	var log = logger.Logger("relay")
//
//	func foo() {
//	    log.Info("分配已创建", "client", key, "port", port)
//	    log.Debug("丢弃消息", "reason", reason)
//	}
package logger

import (
	"io"
	"log/slog"
	"sync"
)

var (
	// loggers 缓存各子系统的 Logger
	loggers sync.Map // map[string]*slog.Logger

	// handlers 缓存各子系统的 Handler（用于动态调整级别）
	handlers sync.Map // map[string]*subsystemHandler

	// configMu 保护 ConfigFromEnv 返回的缓存配置
	configMu sync.RWMutex
)

// Logger 获取指定子系统的 Logger
//
// 同一子系统多次调用返回相同的实例。
func Logger(subsystem string) *slog.Logger {
	if l, ok := loggers.Load(subsystem); ok {
		return l.(*slog.Logger)
	}

	cfg := ConfigFromEnv()
	configMu.RLock()
	h := newHandler(subsystem, cfg.LevelForSubsystem(subsystem), cfg.Format, cfg.AddSource)
	configMu.RUnlock()

	actual, loaded := loggers.LoadOrStore(subsystem, slog.New(h))
	if !loaded {
		handlers.Store(subsystem, h)
	}
	return actual.(*slog.Logger)
}

// Configure 使用级别配置字符串覆盖当前设置
//
// 格式同 NATRELAY_LOG_LEVEL。已创建的 Logger 立即生效。
func Configure(levelSpec string) {
	if levelSpec == "" {
		return
	}

	cfg := ConfigFromEnv()
	configMu.Lock()
	ParseLevelSpec(cfg, levelSpec)
	configMu.Unlock()

	configMu.RLock()
	defer configMu.RUnlock()
	handlers.Range(func(key, value any) bool {
		value.(*subsystemHandler).SetLevel(cfg.LevelForSubsystem(key.(string)))
		return true
	})
}

// SetLevel 动态设置子系统的日志级别
func SetLevel(subsystem string, level slog.Level) {
	if h, ok := handlers.Load(subsystem); ok {
		h.(*subsystemHandler).SetLevel(level)
	}
}

// SetGlobalLevel 设置所有已创建子系统的日志级别
func SetGlobalLevel(level slog.Level) {
	handlers.Range(func(_, value any) bool {
		value.(*subsystemHandler).SetLevel(level)
		return true
	})
}

// Discard 返回一个丢弃所有日志的 Logger
func Discard() *slog.Logger {
	return slog.New(DiscardHandler())
}

// SetOutput 设置全局日志输出目标
//
// 对已创建的 Logger 同样生效。
func SetOutput(w io.Writer) {
	globalOutputMu.Lock()
	globalOutput = w
	globalOutputMu.Unlock()
}
