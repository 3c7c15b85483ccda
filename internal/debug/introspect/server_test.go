package introspect

import (
	"context"
	"encoding/json"
	"net/http"
	"net/netip"
	"strings"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"

	"github.com/dep2p/go-natrelay/config"
	"github.com/dep2p/go-natrelay/internal/core/allocation"
)

type fixedListener netip.AddrPort

func (l fixedListener) LocalAddr() netip.AddrPort { return netip.AddrPort(l) }

type fixedRate float64

func (r fixedRate) RelayRate() float64 { return float64(r) }

func startServer(t *testing.T, cfg Config) *Server {
	t.Helper()
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:0"
	}
	server := New(cfg)
	require.NoError(t, server.Start(context.Background()))
	t.Cleanup(func() { _ = server.Stop() })
	return server
}

func getJSON(t *testing.T, url string, v any) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusOK && v != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
	}
	return resp.StatusCode
}

// newStore 创建带一个分配和一个许可的分配表
func newStore(t *testing.T) *allocation.Store {
	t.Helper()
	store := allocation.NewStore(allocation.DefaultConfig(), clock.NewMock())
	client := allocation.NewClientKey(netip.MustParseAddrPort("198.51.100.7:5000"))
	port, ok := store.ReserveRelayPort()
	require.True(t, ok)
	_, err := store.Create(client, "alice", port, 10*time.Minute)
	require.NoError(t, err)
	require.NoError(t, store.AddPermission(client,
		allocation.NewPeerKey(netip.MustParseAddrPort("203.0.113.5:9000"))))
	return store
}

func TestNew(t *testing.T) {
	server := New(Config{})
	assert.Equal(t, DefaultAddr, server.config.Addr)

	server = New(Config{Addr: "127.0.0.1:8080"})
	assert.Equal(t, "127.0.0.1:8080", server.config.Addr)
}

func TestServer_StartStop(t *testing.T) {
	server := New(Config{Addr: "127.0.0.1:0"})

	require.NoError(t, server.Start(context.Background()))
	assert.True(t, server.running)
	assert.NotEqual(t, "127.0.0.1:0", server.Addr())

	// 重复启动应该无效
	require.NoError(t, server.Start(context.Background()))

	require.NoError(t, server.Stop())
	assert.False(t, server.running)
	require.NoError(t, server.Stop())
}

func TestServer_Health(t *testing.T) {
	degraded := startServer(t, Config{})
	var health HealthResponse
	require.Equal(t, http.StatusOK, getJSON(t, "http://"+degraded.Addr()+"/health", &health))
	assert.Equal(t, "degraded", health.Status)

	ok := startServer(t, Config{Listener: fixedListener(netip.MustParseAddrPort("127.0.0.1:3478"))})
	require.Equal(t, http.StatusOK, getJSON(t, "http://"+ok.Addr()+"/health", &health))
	assert.Equal(t, "ok", health.Status)
	assert.NotEmpty(t, health.Uptime)
}

func TestServer_Introspect(t *testing.T) {
	server := startServer(t, Config{
		Mode:        "relay",
		Listener:    fixedListener(netip.MustParseAddrPort("127.0.0.1:3479")),
		Allocations: newStore(t),
		Rate:        fixedRate(42),
	})

	var resp IntrospectResponse
	require.Equal(t, http.StatusOK, getJSON(t, "http://"+server.Addr()+"/debug/introspect", &resp))
	assert.Equal(t, "relay", resp.Server.Mode)
	assert.Equal(t, "127.0.0.1:3479", resp.Server.Addr)
	assert.Equal(t, 1, resp.Server.AllocationCount)
	assert.Equal(t, 42.0, resp.Server.RelayBytesPerSecond)
	require.NotNil(t, resp.Runtime)
	assert.NotEmpty(t, resp.Runtime.GoVersion)

	require.Len(t, resp.Allocations, 1)
	a := resp.Allocations[0]
	assert.Equal(t, "198.51.100.7:5000", a.Client)
	assert.Equal(t, uint16(config.DefaultRelayPortMin), a.RelayPort)
	assert.Equal(t, "alice", a.Username)
	assert.Equal(t, []string{"203.0.113.5:9000"}, a.Permissions)
	assert.NotEmpty(t, a.ID)
}

func TestServer_AllocationsEndpoint(t *testing.T) {
	binding := startServer(t, Config{Mode: "binding"})
	assert.Equal(t, http.StatusServiceUnavailable,
		getJSON(t, "http://"+binding.Addr()+"/debug/introspect/allocations", nil))

	relay := startServer(t, Config{Mode: "relay", Allocations: newStore(t)})
	var allocs []AllocationInfo
	require.Equal(t, http.StatusOK,
		getJSON(t, "http://"+relay.Addr()+"/debug/introspect/allocations", &allocs))
	assert.Len(t, allocs, 1)
}

func TestServer_RuntimeEndpoint(t *testing.T) {
	server := startServer(t, Config{})

	var info RuntimeInfo
	require.Equal(t, http.StatusOK, getJSON(t, "http://"+server.Addr()+"/debug/introspect/runtime", &info))
	assert.NotEmpty(t, info.GoVersion)
	assert.Greater(t, info.NumGoroutine, 0)
	assert.Greater(t, info.NumCPU, 0)
}

func TestServer_MethodNotAllowed(t *testing.T) {
	server := startServer(t, Config{})

	resp, err := http.Post("http://"+server.Addr()+"/health", "application/json", strings.NewReader("{}"))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestModule_Disabled(t *testing.T) {
	var server *Server
	app := fxtest.New(t,
		fx.Supply(config.NewConfig()),
		Module(),
		fx.Populate(&server),
	)
	app.RequireStart()
	defer app.RequireStop()

	assert.Nil(t, server)
}

func TestModule_Enabled(t *testing.T) {
	cfg := config.NewRelayConfig()
	cfg.Diagnostics.EnableIntrospect = true
	cfg.Diagnostics.IntrospectAddr = "127.0.0.1:0"

	var server *Server
	app := fxtest.New(t,
		fx.Supply(cfg),
		fx.Provide(func() *allocation.Store { return newStore(t) }),
		Module(),
		fx.Populate(&server),
	)
	app.RequireStart()
	defer app.RequireStop()

	require.NotNil(t, server)
	var allocs []AllocationInfo
	require.Equal(t, http.StatusOK,
		getJSON(t, "http://"+server.Addr()+"/debug/introspect/allocations", &allocs))
	assert.Len(t, allocs, 1)
	assert.Equal(t, "relay", server.config.Mode)
}
