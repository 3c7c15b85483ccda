package natrelay

import (
	"context"
	"net"
	"net/netip"
	"testing"
	"time"

	pion "github.com/pion/stun"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-natrelay/config"
	"github.com/dep2p/go-natrelay/internal/core/stun"
)

var loopback = netip.MustParseAddr("127.0.0.1")

func startServer(t *testing.T, opts ...Option) *Server {
	t.Helper()
	opts = append([]Option{WithListenAddress("127.0.0.1"), WithListenPort(0)}, opts...)
	s, err := New(opts...)
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))
	t.Cleanup(func() { _ = s.Stop(context.Background()) })
	return s
}

// client 回环 UDP 客户端
type client struct {
	t    *testing.T
	conn *net.UDPConn
	to   netip.AddrPort
}

func newClient(t *testing.T, server netip.AddrPort) *client {
	t.Helper()
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return &client{t: t, conn: conn, to: server}
}

func (c *client) addr() netip.AddrPort {
	return c.conn.LocalAddr().(*net.UDPAddr).AddrPort()
}

func (c *client) send(m *stun.Message) {
	c.t.Helper()
	_, err := c.conn.WriteToUDPAddrPort(m.Encode(), c.to)
	require.NoError(c.t, err)
}

func (c *client) roundTrip(m *stun.Message) *stun.Message {
	c.t.Helper()
	c.send(m)
	require.NoError(c.t, c.conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	buf := make([]byte, 1500)
	n, err := c.conn.Read(buf)
	require.NoError(c.t, err)
	resp, err := stun.Decode(buf[:n])
	require.NoError(c.t, err)
	require.Equal(c.t, m.TransactionID, resp.TransactionID)
	return resp
}

func newRequest(t *testing.T, typ stun.MessageType) *stun.Message {
	t.Helper()
	tid, err := stun.NewTransactionID()
	require.NoError(t, err)
	return &stun.Message{Type: typ, TransactionID: tid}
}

func allocate(t *testing.T, username string) *stun.Message {
	t.Helper()
	m := newRequest(t, stun.TypeAllocateRequest)
	m.Add(stun.AttrUsername, []byte(username))
	m.Add(stun.AttrRequestedTransport, stun.RequestedTransportValue(stun.ProtoUDP))
	return m
}

func errorCode(t *testing.T, m *stun.Message) stun.ErrorCode {
	t.Helper()
	require.True(t, m.Type.IsError(), "expected error response, got %s", m.Type)
	code, _, err := m.ErrorCode()
	require.NoError(t, err)
	return code
}

// ============================================================================
//                              生命周期
// ============================================================================

func TestServer_Lifecycle(t *testing.T) {
	s, err := New(WithListenAddress("127.0.0.1"), WithListenPort(0))
	require.NoError(t, err)
	assert.Equal(t, StateIdle, s.State())
	assert.False(t, s.Addr().IsValid())
	assert.ErrorIs(t, s.Stop(context.Background()), ErrNotStarted)

	require.NoError(t, s.Start(context.Background()))
	assert.Equal(t, StateRunning, s.State())
	assert.Equal(t, loopback, s.Addr().Addr())
	assert.NotZero(t, s.Addr().Port())
	assert.ErrorIs(t, s.Start(context.Background()), ErrAlreadyStarted)

	require.NoError(t, s.Stop(context.Background()))
	assert.Equal(t, StateStopped, s.State())
	assert.NoError(t, s.Stop(context.Background()))
	assert.ErrorIs(t, s.Start(context.Background()), ErrServerClosed)
}

func TestNew_InvalidConfig(t *testing.T) {
	_, err := New(WithListenAddress("::1"))
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = New(WithListenPort(70000))
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = New(WithMode("proxy"))
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = New(WithConfig(nil))
	assert.Error(t, err)
}

func TestStart_PortInUse(t *testing.T) {
	first := startServer(t)

	second, err := New(WithListenAddress("127.0.0.1"), WithListenPort(int(first.Addr().Port())))
	require.NoError(t, err)
	err = second.Start(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBind)
	assert.Equal(t, StateStopped, second.State())
}

func TestOptions_Resolve(t *testing.T) {
	o := &options{}
	for _, opt := range []Option{
		WithMode(ModeRelay),
		WithListenPort(4000),
		WithCredentials(map[string]string{"alice": "pw"}),
	} {
		require.NoError(t, opt(o))
	}
	cfg := o.resolve()
	assert.Equal(t, ModeRelay, cfg.Listen.Mode)
	assert.Equal(t, 4000, cfg.Listen.Port)
	assert.Equal(t, "pw", cfg.Credentials["alice"])
	assert.Equal(t, config.DefaultRelayConfig(), cfg.Relay)

	base := config.NewConfig()
	base.Software = "custom"
	o = &options{}
	require.NoError(t, WithConfig(base)(o))
	require.NoError(t, WithMode(ModeRelay)(o))
	cfg = o.resolve()
	assert.Equal(t, "custom", cfg.Software)
	assert.True(t, cfg.IsRelay())
}

// ============================================================================
//                              Binding
// ============================================================================

func TestBinding_EndToEnd(t *testing.T) {
	s := startServer(t)
	assert.Equal(t, ModeBinding, s.Mode())
	c := newClient(t, s.Addr())

	req, err := pion.Build(pion.TransactionID, pion.BindingRequest, pion.Fingerprint)
	require.NoError(t, err)
	_, err = c.conn.WriteToUDPAddrPort(req.Raw, s.Addr())
	require.NoError(t, err)

	require.NoError(t, c.conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	buf := make([]byte, 1500)
	n, err := c.conn.Read(buf)
	require.NoError(t, err)

	resp := &pion.Message{Raw: buf[:n]}
	require.NoError(t, resp.Decode())
	assert.Equal(t, pion.BindingSuccess, resp.Type)
	assert.Equal(t, req.TransactionID, resp.TransactionID)

	var xor pion.XORMappedAddress
	require.NoError(t, xor.GetFrom(resp))
	assert.True(t, xor.IP.Equal(net.IPv4(127, 0, 0, 1)))
	assert.Equal(t, int(c.addr().Port()), xor.Port)

	var sw pion.Software
	require.NoError(t, sw.GetFrom(resp))
	assert.Equal(t, config.DefaultSoftware, sw.String())

	// Binding 模式不处理 Allocate
	c.send(allocate(t, "alice"))
	require.NoError(t, c.conn.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	_, err = c.conn.Read(buf)
	assert.Error(t, err)
	assert.Zero(t, s.AllocationCount())
}

// ============================================================================
//                              中继
// ============================================================================

func TestRelay_EndToEnd(t *testing.T) {
	s := startServer(t,
		WithMode(ModeRelay),
		WithCredentials(map[string]string{"alice": "secret"}))
	c := newClient(t, s.Addr())

	peer, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	defer peer.Close()
	peerAddr := peer.LocalAddr().(*net.UDPAddr).AddrPort()

	// Allocate
	resp := c.roundTrip(allocate(t, "alice"))
	require.Equal(t, stun.TypeAllocateResponse, resp.Type)
	relayed, err := resp.XORAddress(stun.AttrXORRelayedAddress)
	require.NoError(t, err)
	assert.Equal(t, uint16(config.DefaultRelayPortMin), relayed.Port())
	lifetime, err := resp.Lifetime()
	require.NoError(t, err)
	assert.Equal(t, uint32(config.DefaultLifetime/time.Second), lifetime)
	assert.Equal(t, 1, s.AllocationCount())

	// 重复 Allocate → 437
	resp = c.roundTrip(allocate(t, "alice"))
	assert.Equal(t, stun.CodeAllocationMismatch, errorCode(t, resp))

	// 未授权的对端不会收到数据
	send := newRequest(t, stun.TypeSendIndication)
	require.NoError(t, send.AddXORAddress(stun.AttrXORPeerAddress, peerAddr))
	send.Add(stun.AttrData, []byte{0x01, 0x02, 0x03})
	c.send(send)

	// CreatePermission
	perm := newRequest(t, stun.TypeCreatePermissionRequest)
	require.NoError(t, perm.AddXORAddress(stun.AttrXORPeerAddress, peerAddr))
	resp = c.roundTrip(perm)
	assert.Equal(t, stun.TypeCreatePermissionResponse, resp.Type)

	// Send → 对端收到原始负载
	c.send(send)
	require.NoError(t, peer.SetReadDeadline(time.Now().Add(2*time.Second)))
	buf := make([]byte, 1500)
	n, from, err := peer.ReadFromUDPAddrPort(buf)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x01, 0x02, 0x03}, buf[:n])
	assert.Equal(t, s.Addr().Port(), from.Port())

	// 第一次 Send 在许可之前，只有第二次被转发
	require.NoError(t, peer.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	_, _, err = peer.ReadFromUDPAddrPort(buf)
	assert.Error(t, err)

	// Refresh(0) 释放分配
	refresh := newRequest(t, stun.TypeRefreshRequest)
	refresh.AddLifetime(0)
	resp = c.roundTrip(refresh)
	require.Equal(t, stun.TypeRefreshResponse, resp.Type)
	lifetime, err = resp.Lifetime()
	require.NoError(t, err)
	assert.Zero(t, lifetime)
	assert.Zero(t, s.AllocationCount())

	count, err := testutil.GatherAndCount(s.Gatherer(),
		"natrelay_relayed_packets_total",
		"natrelay_allocations_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestRelay_Unauthorized(t *testing.T) {
	s := startServer(t,
		WithMode(ModeRelay),
		WithCredentials(map[string]string{"alice": "secret"}))
	c := newClient(t, s.Addr())

	resp := c.roundTrip(allocate(t, "mallory"))
	assert.Equal(t, stun.CodeUnauthorized, errorCode(t, resp))
	assert.Zero(t, s.AllocationCount())
}

type credFunc func(string) (string, bool)

func (f credFunc) Lookup(username string) (string, bool) { return f(username) }

func TestRelay_CredentialStore(t *testing.T) {
	s := startServer(t,
		WithMode(ModeRelay),
		WithCredentialStore(credFunc(func(u string) (string, bool) {
			return "x", u == "dynamic"
		})))
	c := newClient(t, s.Addr())

	resp := c.roundTrip(allocate(t, "dynamic"))
	assert.Equal(t, stun.TypeAllocateResponse, resp.Type)
}

func TestRelay_StopReleasesAllocations(t *testing.T) {
	s, err := New(
		WithListenAddress("127.0.0.1"),
		WithListenPort(0),
		WithMode(ModeRelay),
		WithCredentials(map[string]string{"alice": "secret"}))
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))

	c := newClient(t, s.Addr())
	resp := c.roundTrip(allocate(t, "alice"))
	require.Equal(t, stun.TypeAllocateResponse, resp.Type)
	require.Equal(t, 1, s.AllocationCount())

	require.NoError(t, s.Stop(context.Background()))
	assert.Zero(t, s.AllocationCount())
}

func TestServer_ConfigRedacted(t *testing.T) {
	s, err := New(
		WithMode(ModeRelay),
		WithCredentials(map[string]string{"alice": "secret"}))
	require.NoError(t, err)

	cfg := s.Config()
	assert.NotEqual(t, "secret", cfg.Credentials["alice"])
}
