package stun

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
//                              头部解码
// ============================================================================

func TestDecodeHeader_TooShort(t *testing.T) {
	for _, n := range []int{0, 1, 19} {
		_, err := DecodeHeader(make([]byte, n))
		assert.ErrorIs(t, err, ErrMalformedMessage, "len=%d", n)
	}
}

func TestDecodeHeader_BadCookie(t *testing.T) {
	b := EncodeMessage(TypeBindingRequest, TransactionID{1}, nil)
	b[4] ^= 0xFF

	_, err := DecodeHeader(b)
	assert.ErrorIs(t, err, ErrMalformedMessage)

	_, err = Decode(b)
	assert.ErrorIs(t, err, ErrMalformedMessage)
}

func TestDecodeHeader_Fields(t *testing.T) {
	tid := TransactionID{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}
	b := EncodeMessage(TypeAllocateRequest, tid, []Attribute{
		{Type: AttrRequestedTransport, Value: RequestedTransportValue(ProtoUDP)},
	})

	h, err := DecodeHeader(b)
	require.NoError(t, err)
	assert.Equal(t, TypeAllocateRequest, h.Type)
	assert.Equal(t, uint16(8), h.Length)
	assert.Equal(t, tid, h.TransactionID)
}

// ============================================================================
//                              编码
// ============================================================================

func TestEncodeMessage_Padding(t *testing.T) {
	b := EncodeMessage(TypeBindingResponse, TransactionID{}, []Attribute{
		{Type: AttrSoftware, Value: []byte("abcde")},
	})

	// 头部 length 为填充后长度：4 + 8
	require.Len(t, b, HeaderSize+12)
	assert.Equal(t, uint16(12), binary.BigEndian.Uint16(b[2:4]))
	assert.Equal(t, MagicCookie, binary.BigEndian.Uint32(b[4:8]))

	// 属性 length 为未填充长度
	assert.Equal(t, uint16(AttrSoftware), binary.BigEndian.Uint16(b[20:22]))
	assert.Equal(t, uint16(5), binary.BigEndian.Uint16(b[22:24]))
	assert.Equal(t, []byte("abcde"), b[24:29])

	// 填充为零
	assert.Equal(t, []byte{0, 0, 0}, b[29:32])
}

func TestEncodeMessage_AlignedValueHasNoPadding(t *testing.T) {
	b := EncodeMessage(TypeRefreshResponse, TransactionID{}, []Attribute{
		{Type: AttrLifetime, Value: LifetimeValue(600)},
	})
	assert.Len(t, b, HeaderSize+8)
}

func TestEncodeMessage_Empty(t *testing.T) {
	b := EncodeMessage(TypeCreatePermissionResponse, TransactionID{9}, nil)
	require.Len(t, b, HeaderSize)
	assert.Equal(t, uint16(0), binary.BigEndian.Uint16(b[2:4]))
}

// ============================================================================
//                              属性解码
// ============================================================================

func TestDecode_RoundTrip(t *testing.T) {
	tid, err := NewTransactionID()
	require.NoError(t, err)

	cases := [][]Attribute{
		nil,
		{{Type: AttrUsername, Value: []byte("user")}},
		{
			{Type: AttrUsername, Value: []byte("u")},
			{Type: AttrRequestedTransport, Value: RequestedTransportValue(ProtoUDP)},
			{Type: AttrData, Value: []byte{0x01, 0x02, 0x03}},
			{Type: AttrSoftware, Value: []byte("natrelay/1.0")},
			{Type: AttrData, Value: []byte{}},
		},
	}

	for _, attrs := range cases {
		in := &Message{Type: TypeSendIndication, TransactionID: tid, Attributes: attrs}
		out, err := Decode(in.Encode())
		require.NoError(t, err)

		assert.Equal(t, in.Type, out.Type)
		assert.Equal(t, in.TransactionID, out.TransactionID)
		require.Len(t, out.Attributes, len(attrs))
		for i := range attrs {
			assert.Equal(t, attrs[i].Type, out.Attributes[i].Type)
			assert.Equal(t, len(attrs[i].Value), len(out.Attributes[i].Value))
			if len(attrs[i].Value) > 0 {
				assert.Equal(t, attrs[i].Value, out.Attributes[i].Value)
			}
		}
	}
}

func TestDecodeAttributes_TruncatedStopsDecoding(t *testing.T) {
	b := EncodeMessage(TypeAllocateRequest, TransactionID{}, []Attribute{
		{Type: AttrUsername, Value: []byte("user")},
		{Type: AttrSoftware, Value: []byte("0123456789")},
	})

	// 截断第二个属性的值
	truncated := b[:len(b)-6]
	msg, err := Decode(truncated)
	require.NoError(t, err)
	require.Len(t, msg.Attributes, 1)
	assert.Equal(t, AttrUsername, msg.Attributes[0].Type)
}

func TestDecodeAttributes_OverlongDeclaredLength(t *testing.T) {
	body := make([]byte, 8)
	binary.BigEndian.PutUint16(body[0:2], uint16(AttrData))
	binary.BigEndian.PutUint16(body[2:4], 100)

	assert.Empty(t, DecodeAttributes(body, len(body)))
}

func TestDecodeAttributes_RespectsLength(t *testing.T) {
	b := EncodeMessage(TypeBindingRequest, TransactionID{}, []Attribute{
		{Type: AttrSoftware, Value: []byte("abcd")},
		{Type: AttrUsername, Value: []byte("efgh")},
	})

	// 只消费第一个属性
	attrs := DecodeAttributes(b[HeaderSize:], 8)
	require.Len(t, attrs, 1)
	assert.Equal(t, AttrSoftware, attrs[0].Type)
}

func TestDecodeAttributes_ValueIsCopied(t *testing.T) {
	b := EncodeMessage(TypeBindingRequest, TransactionID{}, []Attribute{
		{Type: AttrData, Value: []byte{1, 2, 3, 4}},
	})
	msg, err := Decode(b)
	require.NoError(t, err)

	b[HeaderSize+4] = 0xFF
	assert.Equal(t, []byte{1, 2, 3, 4}, msg.Attributes[0].Value)
}

// ============================================================================
//                              类型与属性辅助
// ============================================================================

func TestMessageType_Classes(t *testing.T) {
	assert.True(t, TypeBindingRequest.IsRequest())
	assert.True(t, TypeSendIndication.IsIndication())
	assert.True(t, TypeDataIndication.IsIndication())
	assert.True(t, TypeAllocateResponse.IsSuccess())
	assert.True(t, TypeAllocateError.IsError())

	assert.Equal(t, TypeBindingResponse, TypeBindingRequest.SuccessResponse())
	assert.Equal(t, TypeAllocateResponse, TypeAllocateRequest.SuccessResponse())
	assert.Equal(t, TypeAllocateError, TypeAllocateRequest.ErrorResponse())
	assert.Equal(t, TypeRefreshResponse, TypeRefreshRequest.SuccessResponse())
	assert.Equal(t, TypeRefreshError, TypeRefreshRequest.ErrorResponse())
	assert.Equal(t, TypeCreatePermissionResponse, TypeCreatePermissionRequest.SuccessResponse())
	assert.Equal(t, TypeCreatePermissionError, TypeCreatePermissionRequest.ErrorResponse())

	assert.Equal(t, "Allocate Request", TypeAllocateRequest.String())
	assert.Equal(t, "0x0abc", MessageType(0x0abc).String())
}

func TestAttributeHelpers(t *testing.T) {
	msg := &Message{Type: TypeAllocateRequest}

	_, err := msg.Username()
	assert.ErrorIs(t, err, ErrAttributeNotFound)
	_, err = msg.Lifetime()
	assert.ErrorIs(t, err, ErrAttributeNotFound)
	_, err = msg.RequestedTransport()
	assert.ErrorIs(t, err, ErrAttributeNotFound)

	msg.Add(AttrUsername, []byte("alice"))
	msg.AddLifetime(3600)
	msg.Add(AttrRequestedTransport, RequestedTransportValue(ProtoUDP))
	msg.AddSoftware("")

	name, err := msg.Username()
	require.NoError(t, err)
	assert.Equal(t, "alice", name)

	lt, err := msg.Lifetime()
	require.NoError(t, err)
	assert.Equal(t, uint32(3600), lt)

	proto, err := msg.RequestedTransport()
	require.NoError(t, err)
	assert.Equal(t, ProtoUDP, proto)

	assert.False(t, msg.Contains(AttrSoftware))
}

func TestParseLifetime_BadLength(t *testing.T) {
	_, err := ParseLifetime([]byte{0, 0, 1})
	assert.ErrorIs(t, err, ErrBadAttribute)
}

// ============================================================================
//                              ERROR-CODE
// ============================================================================

func TestErrorCodeValue(t *testing.T) {
	v := ErrorCodeValue(CodeAllocationMismatch, "Allocation Mismatch")
	assert.Equal(t, byte(4), v[2])
	assert.Equal(t, byte(37), v[3])

	code, reason, err := ParseErrorCode(v)
	require.NoError(t, err)
	assert.Equal(t, CodeAllocationMismatch, code)
	assert.Equal(t, "Allocation Mismatch", reason)

	v = ErrorCodeValue(CodeInsufficientCapacity, "")
	assert.Equal(t, byte(5), v[2])
	assert.Equal(t, byte(8), v[3])
}

func TestNewErrorResponse(t *testing.T) {
	req := &Message{Type: TypeAllocateRequest, TransactionID: TransactionID{7}}
	resp := NewErrorResponse(req, CodeUnauthorized, "")

	assert.Equal(t, TypeAllocateError, resp.Type)
	assert.Equal(t, req.TransactionID, resp.TransactionID)

	decoded, err := Decode(resp.Encode())
	require.NoError(t, err)
	code, reason, err := decoded.ErrorCode()
	require.NoError(t, err)
	assert.Equal(t, CodeUnauthorized, code)
	assert.Equal(t, "Unauthorized", reason)
}

func TestErrorCodeError(t *testing.T) {
	cause := errors.New("no such user")
	err := NewError(CodeUnauthorized, "", cause)

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "401")
	assert.Contains(t, err.Error(), "Unauthorized")

	var target *ErrorCodeError
	require.ErrorAs(t, error(err), &target)
	assert.Equal(t, CodeUnauthorized, target.Code)
}
