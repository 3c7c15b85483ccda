// Package allocation 维护中继分配表
//
// # 数据结构
//
// Store 持有三张表，全部由同一把互斥锁保护：
//
//	allocations   ClientKey → *Allocation      每个客户端端点至多一个活跃分配
//	ports         relayPort → *Allocation      中继端口反向索引（nil 表示已预留未绑定）
//	permissions   ClientKey → set(PeerKey)     每个分配允许通信的对端
//
// 三者同生同灭：分配销毁时同时释放端口并清空许可集合。
//
// # 分配流程
//
//	port, ok := store.ReserveRelayPort()   // none → pending
//	alloc, err := store.Create(key, user, port, lifetime)  // pending → allocated
//	if err != nil {
//	    store.ReleaseRelayPort(port)       // 放弃预留
//	}
//
// # 过期清理
//
// Sweeper 基于可注入的 clock.Clock 周期性调用 SweepExpired，
// 测试中使用 clock.NewMock() 推进虚拟时间。
package allocation
