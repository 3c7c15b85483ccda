// Package metrics 提供 Prometheus 监控指标
//
// 指标按事务、分配、中继三类组织：
//   - natrelay_transactions_total{type}       已路由的消息
//   - natrelay_error_responses_total{code}    错误响应
//   - natrelay_dropped_messages_total{reason} 静默丢弃的数据报
//   - natrelay_allocations_active             活跃分配
//   - natrelay_relayed_bytes_total            转发字节
//   - natrelay_relay_bytes_per_second         最近一分钟转发速率
//
// # 快速开始
//
//	reg := prometheus.NewRegistry()
//	m := metrics.NewMetricsWithRegistry(reg, nil)
//
//	m.RecordTransaction("AllocateRequest")
//	m.RecordRelay(1200)
//
// *Metrics 实现 allocation.Observer，由 Fx 注入分配表。
package metrics
