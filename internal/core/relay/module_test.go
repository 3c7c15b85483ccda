package relay

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"

	"github.com/dep2p/go-natrelay/config"
	"github.com/dep2p/go-natrelay/internal/core/allocation"
	"github.com/dep2p/go-natrelay/internal/core/dispatcher"
	"github.com/dep2p/go-natrelay/internal/core/stun"
)

type recordingRegistrar struct {
	types []stun.MessageType
}

func (r *recordingRegistrar) Register(t stun.MessageType, _ dispatcher.HandlerFunc) {
	r.types = append(r.types, t)
}

func TestModule_RegistersRelayTypes(t *testing.T) {
	cfg := config.NewRelayConfig()
	cfg.Credentials["alice"] = "pw"
	cfg.Relay.RelayAddress = "192.0.2.7"
	reg := &recordingRegistrar{}

	var h *Handler
	app := fxtest.New(t,
		fx.Supply(cfg),
		fx.Provide(func() dispatcher.Registrar { return reg }),
		allocation.Module(),
		Module(),
		fx.Populate(&h),
	)
	app.RequireStart()
	defer app.RequireStop()

	assert.ElementsMatch(t, []stun.MessageType{
		stun.TypeAllocateRequest,
		stun.TypeRefreshRequest,
		stun.TypeCreatePermissionRequest,
		stun.TypeSendIndication,
	}, reg.types)

	assert.Equal(t, netip.MustParseAddr("192.0.2.7"), h.cfg.RelayIP)
	_, ok := h.creds.Lookup("alice")
	assert.True(t, ok)
	_, ok = h.creds.Lookup("bob")
	assert.False(t, ok)
}

func TestModule_InjectedCredentials(t *testing.T) {
	var h *Handler
	app := fxtest.New(t,
		fx.Supply(config.NewRelayConfig()),
		fx.Provide(
			func() dispatcher.Registrar { return &recordingRegistrar{} },
			func() CredentialStore { return StaticCredentials{"carol": "x"} },
		),
		allocation.Module(),
		Module(),
		fx.Populate(&h),
	)
	app.RequireStart()
	defer app.RequireStop()

	_, ok := h.creds.Lookup("carol")
	require.True(t, ok)
}

func TestStaticCredentials_Copies(t *testing.T) {
	src := map[string]string{"user": "a"}
	creds := NewStaticCredentials(src)
	src["user"] = "b"
	src["other"] = "c"

	secret, ok := creds.Lookup("user")
	require.True(t, ok)
	assert.Equal(t, "a", secret)
	_, ok = creds.Lookup("other")
	assert.False(t, ok)
}
