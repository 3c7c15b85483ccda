// Package dispatcher 实现 UDP 传输调度
//
// Dispatcher 持有一个绑定的 UDP 套接字。对每个收到的数据报：
//
//	来源限流 → 解码（失败则丢弃）→ 按消息类型查找处理器（未注册则丢弃）
//	→ 调用处理器 → 发送 Reply 到来源 / 发送 Forward 到对端
//
// 处理器通过 Registrar 注册，返回 Outcome 而不直接写套接字；
// 发送失败只记录日志与指标，不重试。
package dispatcher
