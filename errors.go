package natrelay

import (
	"errors"

	"github.com/dep2p/go-natrelay/config"
	"github.com/dep2p/go-natrelay/internal/core/dispatcher"
)

// 公共错误定义
var (
	// ────────────────────────────────────────────────────────────────────────
	// 服务生命周期错误
	// ────────────────────────────────────────────────────────────────────────

	// ErrNotStarted 服务未启动
	ErrNotStarted = errors.New("server not started")

	// ErrAlreadyStarted 服务已启动
	ErrAlreadyStarted = errors.New("server already started")

	// ErrServerClosed 服务已关闭，不能再次启动
	ErrServerClosed = errors.New("server closed")

	// ────────────────────────────────────────────────────────────────────────
	// 配置与网络错误
	// ────────────────────────────────────────────────────────────────────────

	// ErrInvalidConfig 配置无效
	ErrInvalidConfig = config.ErrInvalidConfig

	// ErrBind 无法绑定监听端口
	ErrBind = dispatcher.ErrBind
)
