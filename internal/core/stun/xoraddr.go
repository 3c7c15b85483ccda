package stun

import (
	"encoding/binary"
	"fmt"
	"net/netip"
)

// FamilyIPv4 地址族
const FamilyIPv4 uint16 = 0x01

// addressSize IPv4 地址属性体长度：保留(1) 族(1) 端口(2) 地址(4)
const addressSize = 8

// Obfuscate 以 cookie 对地址与端口做 XOR 变换
//
// 端口与 cookie 高 16 位异或，地址与整个 cookie 异或。变换自逆。
func Obfuscate(addr uint32, port uint16, cookie uint32) (uint32, uint16) {
	return addr ^ cookie, port ^ uint16(cookie>>16)
}

// ipv4 取出 IPv4 地址的数值形式
func ipv4(ap netip.AddrPort) (uint32, error) {
	addr := ap.Addr().Unmap()
	if !addr.Is4() {
		return 0, fmt.Errorf("%w: %s", ErrUnsupportedFamily, ap)
	}
	b := addr.As4()
	return binary.BigEndian.Uint32(b[:]), nil
}

func encodeAddress(addr uint32, port uint16) []byte {
	v := make([]byte, addressSize)
	binary.BigEndian.PutUint16(v[0:2], FamilyIPv4)
	binary.BigEndian.PutUint16(v[2:4], port)
	binary.BigEndian.PutUint32(v[4:8], addr)
	return v
}

func decodeAddress(v []byte) (uint32, uint16, error) {
	if len(v) < 4 {
		return 0, 0, fmt.Errorf("%w: address length %d", ErrBadAttribute, len(v))
	}
	if family := binary.BigEndian.Uint16(v[0:2]); family != FamilyIPv4 {
		return 0, 0, fmt.Errorf("%w: family 0x%02x", ErrUnsupportedFamily, family)
	}
	if len(v) != addressSize {
		return 0, 0, fmt.Errorf("%w: IPv4 address length %d", ErrBadAttribute, len(v))
	}
	return binary.BigEndian.Uint32(v[4:8]), binary.BigEndian.Uint16(v[2:4]), nil
}

func addrPort(addr uint32, port uint16) netip.AddrPort {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], addr)
	return netip.AddrPortFrom(netip.AddrFrom4(b), port)
}

// EncodeXORAddress 编码 XOR-*-ADDRESS 属性体
func EncodeXORAddress(ap netip.AddrPort) ([]byte, error) {
	addr, err := ipv4(ap)
	if err != nil {
		return nil, err
	}
	xaddr, xport := Obfuscate(addr, ap.Port(), MagicCookie)
	return encodeAddress(xaddr, xport), nil
}

// DecodeXORAddress 解码 XOR-*-ADDRESS 属性体
func DecodeXORAddress(v []byte) (netip.AddrPort, error) {
	xaddr, xport, err := decodeAddress(v)
	if err != nil {
		return netip.AddrPort{}, err
	}
	addr, port := Obfuscate(xaddr, xport, MagicCookie)
	return addrPort(addr, port), nil
}

// EncodeAddress 编码明文 MAPPED-ADDRESS 属性体
func EncodeAddress(ap netip.AddrPort) ([]byte, error) {
	addr, err := ipv4(ap)
	if err != nil {
		return nil, err
	}
	return encodeAddress(addr, ap.Port()), nil
}

// DecodeAddress 解码明文 MAPPED-ADDRESS 属性体
func DecodeAddress(v []byte) (netip.AddrPort, error) {
	addr, port, err := decodeAddress(v)
	if err != nil {
		return netip.AddrPort{}, err
	}
	return addrPort(addr, port), nil
}

// AddXORAddress 追加 XOR 地址属性
func (m *Message) AddXORAddress(t AttrType, ap netip.AddrPort) error {
	v, err := EncodeXORAddress(ap)
	if err != nil {
		return err
	}
	m.Add(t, v)
	return nil
}

// XORAddress 返回第一个指定类型的 XOR 地址属性
func (m *Message) XORAddress(t AttrType) (netip.AddrPort, error) {
	a, ok := m.Get(t)
	if !ok {
		return netip.AddrPort{}, ErrAttributeNotFound
	}
	return DecodeXORAddress(a.Value)
}
