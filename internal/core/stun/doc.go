// Package stun 实现 STUN/TURN 消息的二进制编解码
//
// 本包是 binding 与 relay 两类处理器共享的编解码层，不持有任何状态：
//
//   - 20 字节固定头部：类型(2) 长度(2) Magic Cookie(4) 事务 ID(12)
//   - TLV 属性列表，每个属性按 4 字节对齐，填充字节写零
//   - XOR 地址变换（XOR-MAPPED/XOR-RELAYED/XOR-PEER-ADDRESS）
//   - ERROR-CODE、LIFETIME、REQUESTED-TRANSPORT 等属性的值编码
//
// 仅支持 IPv4 地址族。
//
// # 使用示例
//
//	msg, err := stun.Decode(buf)
//	if err != nil {
//	    // stun.ErrMalformedMessage，丢弃
//	}
//	resp := stun.NewResponse(msg, msg.Type.SuccessResponse())
//	resp.AddXORAddress(stun.AttrXORMappedAddress, src)
//	out := resp.Encode()
package stun
