// Package relay 实现中继分配的请求处理
//
// # 状态机
//
//	none ──Allocate──▶ pending ──Create──▶ allocated ──Refresh(0) / 过期──▶ destroyed
//
// # 处理器
//
//	Allocate          437 已有分配 → 401 用户名 → 442 传输协议 → 508 端口 → 成功
//	Refresh           437 无分配 → clamp(LIFETIME 或默认值, 0, MaxLifetime)，0 即销毁
//	CreatePermission  437 无分配 → 400 对端地址缺失/无效 → 成功（无属性）
//	Send              无响应；无分配、缺少属性或对端未获许可时丢弃，否则转发 DATA
//
// 处理器返回 dispatcher.Outcome，由调度器负责实际收发。
//
// # 安全边界
//
// Allocate 只检查 USERNAME 是否存在于静态凭据表，不校验 MESSAGE-INTEGRITY。
// Send 的许可检查是防止中继被用作开放 UDP 反射器的唯一关口。
package relay
