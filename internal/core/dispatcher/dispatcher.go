package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"sync"

	"github.com/dep2p/go-natrelay/config"
	"github.com/dep2p/go-natrelay/internal/core/metrics"
	"github.com/dep2p/go-natrelay/internal/core/stun"
	"github.com/dep2p/go-natrelay/internal/util/logger"
)

var log = logger.Logger("dispatcher")

// ============================================================================
//                              处理器
// ============================================================================

// Datagram 待发送的数据报
type Datagram struct {
	To      netip.AddrPort
	Payload []byte
}

// Outcome 处理器对一条消息的处理结果
//
// Reply 发回消息来源；Forward 发往对端；Drop 非空时表示静默丢弃及原因。
type Outcome struct {
	Reply   *stun.Message
	Forward *Datagram
	Drop    string
}

// Dropped 创建丢弃结果
func Dropped(reason string) Outcome {
	return Outcome{Drop: reason}
}

// Replied 创建响应结果
func Replied(reply *stun.Message) Outcome {
	return Outcome{Reply: reply}
}

// HandlerFunc 消息处理函数
//
// 在读循环中同步调用，不得阻塞。
type HandlerFunc func(msg *stun.Message, src netip.AddrPort) Outcome

// Registrar 按消息类型注册处理器
type Registrar interface {
	Register(t stun.MessageType, h HandlerFunc)
}

// ============================================================================
//                              Dispatcher
// ============================================================================

// Config 调度器配置
type Config struct {
	Address        string
	Port           int
	ReadBufferSize int
	RateLimit      config.RateLimitConfig
}

// ConfigFromUnified 从统一配置创建调度器配置
func ConfigFromUnified(cfg *config.Config) Config {
	if cfg == nil {
		cfg = config.NewConfig()
	}
	return Config{
		Address:        cfg.Listen.Address,
		Port:           cfg.Listen.Port,
		ReadBufferSize: cfg.Listen.ReadBufferSize,
		RateLimit:      cfg.RateLimit,
	}
}

// Dispatcher 持有唯一的 UDP 套接字，按消息类型分发
//
// 每个数据报在读取下一个之前被完整处理（解码 → 处理 → 响应）。
type Dispatcher struct {
	cfg     Config
	metrics *metrics.Metrics
	limiter *sourceLimiter

	mu       sync.RWMutex
	handlers map[stun.MessageType]HandlerFunc
	conn     *net.UDPConn
	done     chan struct{}
	closed   bool
}

var _ Registrar = (*Dispatcher)(nil)

// New 创建调度器，m 可以为 nil
func New(cfg Config, m *metrics.Metrics) (*Dispatcher, error) {
	if cfg.ReadBufferSize <= 0 {
		cfg.ReadBufferSize = config.DefaultReadBufferSize
	}
	limiter, err := newSourceLimiter(cfg.RateLimit)
	if err != nil {
		return nil, fmt.Errorf("dispatcher: rate limiter: %w", err)
	}
	return &Dispatcher{
		cfg:      cfg,
		metrics:  m,
		limiter:  limiter,
		handlers: make(map[stun.MessageType]HandlerFunc),
	}, nil
}

// Register 注册消息类型的处理器，重复注册覆盖之前的处理器
func (d *Dispatcher) Register(t stun.MessageType, h HandlerFunc) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[t] = h
	log.Debug("注册处理器", "type", t.String())
}

// Start 绑定套接字并启动读循环
//
// 绑定失败返回包装了 ErrBind 的错误。
func (d *Dispatcher) Start(_ context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrClosed
	}
	if d.conn != nil {
		return ErrAlreadyStarted
	}

	laddr, err := d.listenAddr()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrBind, err)
	}
	conn, err := net.ListenUDP("udp4", laddr)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrBind, err)
	}

	d.conn = conn
	d.done = make(chan struct{})
	go d.readLoop(conn, d.done)

	log.Info("监听已启动", "addr", conn.LocalAddr().String())
	return nil
}

func (d *Dispatcher) listenAddr() (*net.UDPAddr, error) {
	addr := netip.IPv4Unspecified()
	if d.cfg.Address != "" {
		a, err := netip.ParseAddr(d.cfg.Address)
		if err != nil {
			return nil, err
		}
		addr = a.Unmap()
	}
	if d.cfg.Port < 0 || d.cfg.Port > 65535 {
		return nil, fmt.Errorf("port %d out of range", d.cfg.Port)
	}
	return net.UDPAddrFromAddrPort(netip.AddrPortFrom(addr, uint16(d.cfg.Port))), nil // #nosec G115 -- 已检查范围
}

// Close 关闭套接字并等待读循环退出
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	conn, done := d.conn, d.done
	d.mu.Unlock()

	if conn == nil {
		return nil
	}
	err := conn.Close()
	<-done
	log.Info("监听已关闭")
	return err
}

// LocalAddr 返回实际监听地址，未启动时返回零值
func (d *Dispatcher) LocalAddr() netip.AddrPort {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.conn == nil {
		return netip.AddrPort{}
	}
	ap := d.conn.LocalAddr().(*net.UDPAddr).AddrPort()
	return netip.AddrPortFrom(ap.Addr().Unmap(), ap.Port())
}

// Send 向 to 发送一个数据报
//
// 失败时返回 *SendError，由调用方决定记录或上报，不重试。
func (d *Dispatcher) Send(to netip.AddrPort, payload []byte) error {
	d.mu.RLock()
	conn, closed := d.conn, d.closed
	d.mu.RUnlock()

	switch {
	case closed:
		return &SendError{To: to, Err: ErrClosed}
	case conn == nil:
		return &SendError{To: to, Err: ErrNotStarted}
	}

	if _, err := conn.WriteToUDPAddrPort(payload, to); err != nil {
		return &SendError{To: to, Err: err}
	}
	return nil
}

// ============================================================================
//                              读循环
// ============================================================================

func (d *Dispatcher) readLoop(conn *net.UDPConn, done chan struct{}) {
	defer close(done)

	buf := make([]byte, d.cfg.ReadBufferSize)
	for {
		n, src, err := conn.ReadFromUDPAddrPort(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			log.Warn("读取数据报失败", "error", err)
			continue
		}

		src = netip.AddrPortFrom(src.Addr().Unmap(), src.Port())
		d.HandleDatagram(buf[:n], src)
	}
}

// HandleDatagram 处理一个数据报并发送处理结果
func (d *Dispatcher) HandleDatagram(b []byte, src netip.AddrPort) {
	if !d.limiter.Allow(src.Addr()) {
		d.drop(metrics.DropRateLimited, src, "超出来源限流")
		return
	}

	msg, err := stun.Decode(b)
	if err != nil {
		d.drop(metrics.DropMalformed, src, "消息格式错误", "error", err)
		return
	}

	d.mu.RLock()
	h, ok := d.handlers[msg.Type]
	d.mu.RUnlock()
	if !ok {
		d.drop(metrics.DropUnsupported, src, "不支持的消息类型", "type", msg.Type.String())
		return
	}

	d.metrics.RecordTransaction(msg.Type.String())
	d.deliver(h(msg, src), msg, src)
}

func (d *Dispatcher) deliver(out Outcome, msg *stun.Message, src netip.AddrPort) {
	if out.Drop != "" {
		d.drop(out.Drop, src, "处理器丢弃消息", "type", msg.Type.String())
	}

	if out.Reply != nil {
		if out.Reply.Type.IsError() {
			if code, _, err := out.Reply.ErrorCode(); err == nil {
				d.metrics.RecordErrorResponse(int(code))
			}
		}
		if err := d.Send(src, out.Reply.Encode()); err != nil {
			d.metrics.RecordSendFailure()
			log.Warn("发送响应失败", "type", out.Reply.Type.String(), "error", err)
		}
	}

	if out.Forward != nil {
		if err := d.Send(out.Forward.To, out.Forward.Payload); err != nil {
			d.metrics.RecordSendFailure()
			log.Warn("转发数据失败", "from", src.String(), "error", err)
			return
		}
		d.metrics.RecordRelay(len(out.Forward.Payload))
	}
}

func (d *Dispatcher) drop(reason string, src netip.AddrPort, msg string, args ...any) {
	d.metrics.RecordDrop(reason)
	log.Debug(msg, append([]any{"src", src.String(), "reason", reason}, args...)...)
}
