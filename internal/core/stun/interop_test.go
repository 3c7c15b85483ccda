package stun

import (
	"net"
	"net/netip"
	"testing"

	pion "github.com/pion/stun"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 使用 pion/stun 作为独立实现交叉验证编解码

func TestInterop_DecodePionBindingRequest(t *testing.T) {
	req, err := pion.Build(pion.TransactionID, pion.BindingRequest, pion.NewSoftware("pion-client"))
	require.NoError(t, err)

	msg, err := Decode(req.Raw)
	require.NoError(t, err)

	assert.Equal(t, TypeBindingRequest, msg.Type)
	assert.Equal(t, TransactionID(req.TransactionID), msg.TransactionID)

	sw, ok := msg.Get(AttrSoftware)
	require.True(t, ok)
	assert.Equal(t, "pion-client", string(sw.Value))
}

func TestInterop_PionDecodesBindingResponse(t *testing.T) {
	src := netip.MustParseAddrPort("198.51.100.20:61000")
	req := &Message{Type: TypeBindingRequest, TransactionID: TransactionID{1, 2, 3}}

	resp := NewResponse(req, TypeBindingResponse)
	require.NoError(t, resp.AddXORAddress(AttrXORMappedAddress, src))
	resp.AddSoftware("natrelay")

	m := new(pion.Message)
	m.Raw = resp.Encode()
	require.NoError(t, m.Decode())

	assert.Equal(t, pion.BindingSuccess, m.Type)
	assert.Equal(t, [TransactionIDSize]byte(req.TransactionID), m.TransactionID)

	var xor pion.XORMappedAddress
	require.NoError(t, xor.GetFrom(m))
	assert.True(t, xor.IP.Equal(net.ParseIP("198.51.100.20")))
	assert.Equal(t, 61000, xor.Port)

	var sw pion.Software
	require.NoError(t, sw.GetFrom(m))
	assert.Equal(t, "natrelay", sw.String())
}

func TestInterop_PionDecodesRelayedAddress(t *testing.T) {
	relayed := netip.MustParseAddrPort("127.0.0.1:49152")
	req := &Message{Type: TypeAllocateRequest}

	resp := NewResponse(req, TypeAllocateResponse)
	require.NoError(t, resp.AddXORAddress(AttrXORRelayedAddress, relayed))
	resp.AddLifetime(600)

	m := new(pion.Message)
	m.Raw = resp.Encode()
	require.NoError(t, m.Decode())

	var xor pion.XORMappedAddress
	require.NoError(t, xor.GetFromAs(m, pion.AttrXORRelayedAddress))
	assert.True(t, xor.IP.Equal(net.ParseIP("127.0.0.1")))
	assert.Equal(t, 49152, xor.Port)

	lt, err := m.Get(pion.AttrLifetime)
	require.NoError(t, err)
	v, err := ParseLifetime(lt)
	require.NoError(t, err)
	assert.Equal(t, uint32(600), v)
}

func TestInterop_PionErrorCode(t *testing.T) {
	req := &Message{Type: TypeAllocateRequest}
	resp := NewErrorResponse(req, CodeUnsupportedTransport, "")

	m := new(pion.Message)
	m.Raw = resp.Encode()
	require.NoError(t, m.Decode())

	var ec pion.ErrorCodeAttribute
	require.NoError(t, ec.GetFrom(m))
	assert.Equal(t, pion.ErrorCode(442), ec.Code)
	assert.Equal(t, "Unsupported Transport Protocol", string(ec.Reason))
}
