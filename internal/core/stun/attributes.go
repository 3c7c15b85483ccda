package stun

import (
	"encoding/binary"
	"fmt"

	"github.com/dep2p/go-natrelay/internal/util/logger"
)

var log = logger.Logger("stun")

// AttrType 属性类型
type AttrType uint16

// STUN 属性 (RFC 5389) 与 TURN 属性 (RFC 5766)
const (
	AttrMappedAddress      AttrType = 0x0001
	AttrUsername           AttrType = 0x0006
	AttrErrorCode          AttrType = 0x0009
	AttrLifetime           AttrType = 0x000D
	AttrXORPeerAddress     AttrType = 0x0012
	AttrData               AttrType = 0x0013
	AttrXORRelayedAddress  AttrType = 0x0016
	AttrRequestedTransport AttrType = 0x0019
	AttrXORMappedAddress   AttrType = 0x0020
	AttrSoftware           AttrType = 0x8022
)

// ProtoUDP REQUESTED-TRANSPORT 中 UDP 的协议号
const ProtoUDP byte = 17

func (t AttrType) String() string {
	switch t {
	case AttrMappedAddress:
		return "MAPPED-ADDRESS"
	case AttrUsername:
		return "USERNAME"
	case AttrErrorCode:
		return "ERROR-CODE"
	case AttrLifetime:
		return "LIFETIME"
	case AttrXORPeerAddress:
		return "XOR-PEER-ADDRESS"
	case AttrData:
		return "DATA"
	case AttrXORRelayedAddress:
		return "XOR-RELAYED-ADDRESS"
	case AttrRequestedTransport:
		return "REQUESTED-TRANSPORT"
	case AttrXORMappedAddress:
		return "XOR-MAPPED-ADDRESS"
	case AttrSoftware:
		return "SOFTWARE"
	default:
		return fmt.Sprintf("0x%04x", uint16(t))
	}
}

// ============================================================================
//                              属性值编码
// ============================================================================

// LifetimeValue 编码 LIFETIME（秒）
func LifetimeValue(seconds uint32) []byte {
	v := make([]byte, 4)
	binary.BigEndian.PutUint32(v, seconds)
	return v
}

// ParseLifetime 解码 LIFETIME
func ParseLifetime(v []byte) (uint32, error) {
	if len(v) != 4 {
		return 0, fmt.Errorf("%w: LIFETIME length %d", ErrBadAttribute, len(v))
	}
	return binary.BigEndian.Uint32(v), nil
}

// RequestedTransportValue 编码 REQUESTED-TRANSPORT（协议号 + 3 字节 RFFU）
func RequestedTransportValue(proto byte) []byte {
	return []byte{proto, 0, 0, 0}
}

// ParseRequestedTransport 解码 REQUESTED-TRANSPORT
func ParseRequestedTransport(v []byte) (byte, error) {
	if len(v) != 4 {
		return 0, fmt.Errorf("%w: REQUESTED-TRANSPORT length %d", ErrBadAttribute, len(v))
	}
	return v[0], nil
}

// ============================================================================
//                              Message 便捷方法
// ============================================================================

// AddSoftware 追加 SOFTWARE 属性，空字符串忽略
func (m *Message) AddSoftware(software string) {
	if software == "" {
		return
	}
	m.Add(AttrSoftware, []byte(software))
}

// AddLifetime 追加 LIFETIME 属性
func (m *Message) AddLifetime(seconds uint32) {
	m.Add(AttrLifetime, LifetimeValue(seconds))
}

// Username 返回 USERNAME 属性
func (m *Message) Username() (string, error) {
	a, ok := m.Get(AttrUsername)
	if !ok {
		return "", ErrAttributeNotFound
	}
	return string(a.Value), nil
}

// Lifetime 返回 LIFETIME 属性
func (m *Message) Lifetime() (uint32, error) {
	a, ok := m.Get(AttrLifetime)
	if !ok {
		return 0, ErrAttributeNotFound
	}
	return ParseLifetime(a.Value)
}

// RequestedTransport 返回 REQUESTED-TRANSPORT 属性中的协议号
func (m *Message) RequestedTransport() (byte, error) {
	a, ok := m.Get(AttrRequestedTransport)
	if !ok {
		return 0, ErrAttributeNotFound
	}
	return ParseRequestedTransport(a.Value)
}

// Data 返回 DATA 属性
func (m *Message) Data() ([]byte, error) {
	a, ok := m.Get(AttrData)
	if !ok {
		return nil, ErrAttributeNotFound
	}
	return a.Value, nil
}
