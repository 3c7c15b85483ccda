package dispatcher

import (
	"errors"
	"fmt"
	"net/netip"
)

var (
	// ErrBind 监听套接字绑定失败
	ErrBind = errors.New("dispatcher: bind failed")

	// ErrNotStarted 调度器尚未启动
	ErrNotStarted = errors.New("dispatcher: not started")

	// ErrClosed 调度器已关闭
	ErrClosed = errors.New("dispatcher: closed")

	// ErrAlreadyStarted 调度器已启动
	ErrAlreadyStarted = errors.New("dispatcher: already started")
)

// SendError 发送数据报失败
type SendError struct {
	To  netip.AddrPort
	Err error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("dispatcher: send to %s: %v", e.To, e.Err)
}

// Unwrap 解包错误
func (e *SendError) Unwrap() error {
	return e.Err
}
