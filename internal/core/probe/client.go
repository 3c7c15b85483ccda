// Package probe 提供 Binding 探测客户端
//
// 客户端使用独立的 STUN 实现（github.com/pion/stun）构造请求与解析响应，
// 用于 `natrelay probe` 子命令以及对服务端的互操作测试。
package probe

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"strings"
	"time"

	"github.com/pion/stun"

	"github.com/dep2p/go-natrelay/internal/util/logger"
)

var log = logger.Logger("probe")

const (
	defaultTimeout = 3 * time.Second
	defaultRetries = 2
	defaultBackoff = 500 * time.Millisecond
)

// Result 单次探测结果
type Result struct {
	// Server 应答的服务器
	Server string

	// Mapped 服务器观察到的本地地址
	Mapped netip.AddrPort

	// Software 服务器的 SOFTWARE 属性，可能为空
	Software string

	// RTT 往返时间
	RTT time.Duration
}

// Client Binding 探测客户端
type Client struct {
	servers []string
	timeout time.Duration
	retries int
	backoff time.Duration
}

// Option 客户端选项
type Option func(*Client)

// WithTimeout 设置单次请求超时
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithRetries 设置每个服务器的尝试次数
func WithRetries(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.retries = n
		}
	}
}

// WithBackoff 设置重试的初始退避时间
func WithBackoff(d time.Duration) Option {
	return func(c *Client) { c.backoff = d }
}

// NewClient 创建探测客户端
func NewClient(servers []string, opts ...Option) *Client {
	c := &Client{
		servers: normalizeServers(servers),
		timeout: defaultTimeout,
		retries: defaultRetries,
		backoff: defaultBackoff,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// normalizeServers 将 "stun:host:port" / "stun://host:port" 等写法归一化为 "host:port"
func normalizeServers(in []string) []string {
	out := make([]string, 0, len(in))
	for _, raw := range in {
		s := strings.TrimSpace(raw)
		if i := strings.Index(s, "://"); i >= 0 {
			s = s[i+3:]
		} else {
			s = strings.TrimPrefix(s, "stun:")
			s = strings.TrimPrefix(s, "stuns:")
		}
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Servers 返回归一化后的服务器列表
func (c *Client) Servers() []string {
	return append([]string(nil), c.servers...)
}

// MappedAddress 依次查询服务器，返回第一个成功的结果
//
// 每个服务器最多尝试 retries 次，两次尝试之间指数退避。
func (c *Client) MappedAddress(ctx context.Context) (Result, error) {
	if len(c.servers) == 0 {
		return Result{}, ErrNoServers
	}

	var lastErr error
	for _, server := range c.servers {
		for attempt := 0; attempt < c.retries; attempt++ {
			res, err := c.Query(ctx, server)
			if err == nil {
				return res, nil
			}
			lastErr = err
			log.Debug("探测失败", "server", server, "attempt", attempt+1, "error", err)

			if attempt+1 == c.retries {
				break
			}
			select {
			case <-ctx.Done():
				return Result{}, ctx.Err()
			case <-time.After(c.backoff << attempt):
			}
		}
	}
	return Result{}, lastErr
}

// Query 向单个服务器发送一次 Binding Request
func (c *Client) Query(ctx context.Context, server string) (Result, error) {
	fail := func(op string, err error) (Result, error) {
		return Result{}, &ProbeError{Server: server, Op: op, Cause: err}
	}

	raddr, err := net.ResolveUDPAddr("udp4", server)
	if err != nil {
		return fail("resolve", err)
	}
	conn, err := net.DialUDP("udp4", nil, raddr)
	if err != nil {
		return fail("dial", err)
	}
	defer conn.Close()

	// 上下文取消时立即中断读取
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return fail("deadline", err)
	}

	req, err := stun.Build(stun.TransactionID, stun.BindingRequest, stun.Fingerprint)
	if err != nil {
		return fail("build", err)
	}

	start := time.Now()
	if _, err := req.WriteTo(conn); err != nil {
		return fail("send", err)
	}

	buf := make([]byte, 1500)
	n, err := conn.Read(buf)
	if err != nil {
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		return fail("read", err)
	}
	rtt := time.Since(start)

	res := new(stun.Message)
	res.Raw = buf[:n]
	if err := res.Decode(); err != nil {
		return fail("decode", err)
	}
	if res.TransactionID != req.TransactionID {
		return fail("decode", ErrTransactionMismatch)
	}

	if res.Type.Class == stun.ClassErrorResponse {
		var code stun.ErrorCodeAttribute
		if err := code.GetFrom(res); err != nil {
			return fail("response", ErrErrorResponse)
		}
		return fail("response", fmt.Errorf("%w: %d %s", ErrErrorResponse, code.Code, code.Reason))
	}

	mapped, err := mappedAddress(res)
	if err != nil {
		return fail("response", err)
	}

	out := Result{Server: server, Mapped: mapped, RTT: rtt}
	var sw stun.Software
	if err := sw.GetFrom(res); err == nil {
		out.Software = sw.String()
	}
	return out, nil
}

// mappedAddress 优先读取 XOR-MAPPED-ADDRESS，回退到 MAPPED-ADDRESS
func mappedAddress(m *stun.Message) (netip.AddrPort, error) {
	var (
		ip   net.IP
		port int
	)

	var xor stun.XORMappedAddress
	if err := xor.GetFrom(m); err == nil {
		ip, port = xor.IP, xor.Port
	} else {
		var plain stun.MappedAddress
		if err := plain.GetFrom(m); err != nil {
			return netip.AddrPort{}, ErrNoMappedAddress
		}
		ip, port = plain.IP, plain.Port
	}

	addr, ok := netip.AddrFromSlice(ip)
	if !ok {
		return netip.AddrPort{}, ErrNoMappedAddress
	}
	return netip.AddrPortFrom(addr.Unmap(), uint16(port)), nil // #nosec G115 -- 端口来自 16 位字段
}
