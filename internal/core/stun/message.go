package stun

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"fmt"
)

// ============================================================================
//                              常量定义
// ============================================================================

const (
	// MagicCookie 固定 Magic Cookie (RFC 5389)
	MagicCookie uint32 = 0x2112A442

	// HeaderSize 消息头部长度
	HeaderSize = 20

	// TransactionIDSize 事务 ID 长度
	TransactionIDSize = 12

	attrHeaderSize = 4
)

// MessageType 消息类型（方法 + 类别）
type MessageType uint16

const (
	TypeBindingRequest  MessageType = 0x0001
	TypeBindingResponse MessageType = 0x0101
	TypeBindingError    MessageType = 0x0111

	TypeAllocateRequest  MessageType = 0x0003
	TypeAllocateResponse MessageType = 0x0103
	TypeAllocateError    MessageType = 0x0113

	TypeRefreshRequest  MessageType = 0x0004
	TypeRefreshResponse MessageType = 0x0104
	TypeRefreshError    MessageType = 0x0114

	TypeSendIndication MessageType = 0x0016
	TypeDataIndication MessageType = 0x0017

	TypeCreatePermissionRequest  MessageType = 0x0008
	TypeCreatePermissionResponse MessageType = 0x0108
	TypeCreatePermissionError    MessageType = 0x0118
)

// 类别位 C1(0x0100) C0(0x0010)
const (
	classMask       MessageType = 0x0110
	classRequest    MessageType = 0x0000
	classIndication MessageType = 0x0010
	classSuccess    MessageType = 0x0100
	classError      MessageType = 0x0110
)

// Method 返回去掉类别位的方法编号
func (t MessageType) Method() MessageType {
	return t &^ classMask
}

// IsRequest 是否为请求
func (t MessageType) IsRequest() bool {
	return t&classMask == classRequest
}

// IsIndication 是否为指示
func (t MessageType) IsIndication() bool {
	return t&classMask == classIndication
}

// IsSuccess 是否为成功响应
func (t MessageType) IsSuccess() bool {
	return t&classMask == classSuccess
}

// IsError 是否为错误响应
func (t MessageType) IsError() bool {
	return t&classMask == classError
}

// SuccessResponse 返回同一方法的成功响应类型
func (t MessageType) SuccessResponse() MessageType {
	return t.Method() | classSuccess
}

// ErrorResponse 返回同一方法的错误响应类型
func (t MessageType) ErrorResponse() MessageType {
	return t.Method() | classError
}

func (t MessageType) String() string {
	switch t {
	case TypeBindingRequest:
		return "Binding Request"
	case TypeBindingResponse:
		return "Binding Response"
	case TypeBindingError:
		return "Binding Error"
	case TypeAllocateRequest:
		return "Allocate Request"
	case TypeAllocateResponse:
		return "Allocate Response"
	case TypeAllocateError:
		return "Allocate Error"
	case TypeRefreshRequest:
		return "Refresh Request"
	case TypeRefreshResponse:
		return "Refresh Response"
	case TypeRefreshError:
		return "Refresh Error"
	case TypeSendIndication:
		return "Send Indication"
	case TypeDataIndication:
		return "Data Indication"
	case TypeCreatePermissionRequest:
		return "CreatePermission Request"
	case TypeCreatePermissionResponse:
		return "CreatePermission Response"
	case TypeCreatePermissionError:
		return "CreatePermission Error"
	default:
		return fmt.Sprintf("0x%04x", uint16(t))
	}
}

// TransactionID 12 字节事务 ID
type TransactionID [TransactionIDSize]byte

// NewTransactionID 生成随机事务 ID
func NewTransactionID() (TransactionID, error) {
	var tid TransactionID
	if _, err := rand.Read(tid[:]); err != nil {
		return tid, fmt.Errorf("生成 transaction ID 失败: %w", err)
	}
	return tid, nil
}

func (tid TransactionID) String() string {
	return hex.EncodeToString(tid[:])
}

// ============================================================================
//                              消息结构
// ============================================================================

// Header 解码后的消息头部
type Header struct {
	Type          MessageType
	Length        uint16
	TransactionID TransactionID
}

// Attribute TLV 属性，Value 不含填充字节
type Attribute struct {
	Type  AttrType
	Value []byte
}

// Message STUN 消息
type Message struct {
	Type          MessageType
	TransactionID TransactionID
	Attributes    []Attribute
}

// NewResponse 创建与请求共享事务 ID 的响应
func NewResponse(req *Message, t MessageType, attrs ...Attribute) *Message {
	return &Message{
		Type:          t,
		TransactionID: req.TransactionID,
		Attributes:    attrs,
	}
}

// Add 追加属性
func (m *Message) Add(t AttrType, value []byte) {
	m.Attributes = append(m.Attributes, Attribute{Type: t, Value: value})
}

// Get 返回第一个指定类型的属性
func (m *Message) Get(t AttrType) (Attribute, bool) {
	for _, a := range m.Attributes {
		if a.Type == t {
			return a, true
		}
	}
	return Attribute{}, false
}

// GetAll 返回所有指定类型的属性（按出现顺序）
func (m *Message) GetAll(t AttrType) []Attribute {
	var out []Attribute
	for _, a := range m.Attributes {
		if a.Type == t {
			out = append(out, a)
		}
	}
	return out
}

// Contains 消息是否包含指定类型的属性
func (m *Message) Contains(t AttrType) bool {
	_, ok := m.Get(t)
	return ok
}

// Encode 编码为线上格式
func (m *Message) Encode() []byte {
	return EncodeMessage(m.Type, m.TransactionID, m.Attributes)
}

func (m *Message) String() string {
	return fmt.Sprintf("%s tid=%s attrs=%d", m.Type, m.TransactionID, len(m.Attributes))
}

// ============================================================================
//                              编解码
// ============================================================================

// padded 返回 n 向上对齐到 4 的长度
func padded(n int) int {
	return (n + 3) &^ 3
}

// DecodeHeader 解码 20 字节头部
//
// 长度不足或 Magic Cookie 不匹配时返回 ErrMalformedMessage。
func DecodeHeader(b []byte) (Header, error) {
	if len(b) < HeaderSize {
		return Header{}, fmt.Errorf("%w: %d bytes", ErrMalformedMessage, len(b))
	}

	if cookie := binary.BigEndian.Uint32(b[4:8]); cookie != MagicCookie {
		return Header{}, fmt.Errorf("%w: magic cookie 0x%08x", ErrMalformedMessage, cookie)
	}

	h := Header{
		Type:   MessageType(binary.BigEndian.Uint16(b[0:2])),
		Length: binary.BigEndian.Uint16(b[2:4]),
	}
	copy(h.TransactionID[:], b[8:HeaderSize])
	return h, nil
}

// DecodeAttributes 解码头部之后的属性区
//
// 最多消费 length 字节。声明长度越界的属性被丢弃并停止解码。
func DecodeAttributes(b []byte, length int) []Attribute {
	end := min(length, len(b))

	var attrs []Attribute
	for off := 0; off+attrHeaderSize <= end; {
		t := AttrType(binary.BigEndian.Uint16(b[off : off+2]))
		n := int(binary.BigEndian.Uint16(b[off+2 : off+4]))

		start := off + attrHeaderSize
		if start+n > end {
			log.Debug("属性长度越界，停止解码",
				"type", t.String(),
				"declared", n,
				"available", end-start)
			break
		}

		value := make([]byte, n)
		copy(value, b[start:start+n])
		attrs = append(attrs, Attribute{Type: t, Value: value})

		off = start + padded(n)
	}
	return attrs
}

// Decode 解码完整消息
func Decode(b []byte) (*Message, error) {
	h, err := DecodeHeader(b)
	if err != nil {
		return nil, err
	}

	return &Message{
		Type:          h.Type,
		TransactionID: h.TransactionID,
		Attributes:    DecodeAttributes(b[HeaderSize:], int(h.Length)),
	}, nil
}

// EncodeMessage 编码消息
//
// 头部 length 为所有属性填充后的总长度；每个属性写入未填充的长度，
// 填充字节为零。
func EncodeMessage(t MessageType, tid TransactionID, attrs []Attribute) []byte {
	size := 0
	for _, a := range attrs {
		size += attrHeaderSize + padded(len(a.Value))
	}

	buf := make([]byte, HeaderSize+size)
	binary.BigEndian.PutUint16(buf[0:2], uint16(t))
	binary.BigEndian.PutUint16(buf[2:4], uint16(size))
	binary.BigEndian.PutUint32(buf[4:8], MagicCookie)
	copy(buf[8:HeaderSize], tid[:])

	off := HeaderSize
	for _, a := range attrs {
		binary.BigEndian.PutUint16(buf[off:off+2], uint16(a.Type))
		binary.BigEndian.PutUint16(buf[off+2:off+4], uint16(len(a.Value)))
		copy(buf[off+attrHeaderSize:], a.Value)
		off += attrHeaderSize + padded(len(a.Value))
	}
	return buf
}
