package metrics

import (
	"strconv"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/dep2p/go-natrelay/internal/util/logger"
)

var log = logger.Logger("metrics")

const namespace = "natrelay"

// 丢弃原因
const (
	DropMalformed   = "malformed"
	DropUnsupported = "unsupported"
	DropRateLimited = "rate_limited"
	DropNoAlloc     = "no_allocation"
	DropBadRequest  = "bad_request"
	DropNoPerm      = "no_permission"
)

// Metrics 服务器 Prometheus 指标
//
// 所有 Record 方法对 nil 接收者安全，关闭指标时传递 nil 即可。
type Metrics struct {
	// 事务
	Transactions   *prometheus.CounterVec
	ErrorResponses *prometheus.CounterVec
	Drops          *prometheus.CounterVec

	// 分配
	AllocationsActive    prometheus.Gauge
	AllocationsTotal     prometheus.Counter
	AllocationsDestroyed *prometheus.CounterVec

	// 中继
	RelayedPackets prometheus.Counter
	RelayedBytes   prometheus.Counter
	SendFailures   prometheus.Counter

	relayRate *RateMeter
}

// NewMetrics 使用默认注册器创建指标
func NewMetrics() *Metrics {
	return NewMetricsWithRegistry(prometheus.DefaultRegisterer, nil)
}

// NewMetricsWithRegistry 使用指定注册器创建指标
func NewMetricsWithRegistry(reg prometheus.Registerer, clk clock.Clock) *Metrics {
	factory := promauto.With(reg)

	m := &Metrics{
		Transactions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transactions_total",
			Help:      "Total messages handled by message type",
		}, []string{"type"}),
		ErrorResponses: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "error_responses_total",
			Help:      "Total error responses by error code",
		}, []string{"code"}),
		Drops: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dropped_messages_total",
			Help:      "Total datagrams dropped without a response by reason",
		}, []string{"reason"}),

		AllocationsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "allocations_active",
			Help:      "Number of live relay allocations",
		}),
		AllocationsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "allocations_total",
			Help:      "Total relay allocations created",
		}),
		AllocationsDestroyed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "allocations_destroyed_total",
			Help:      "Total relay allocations destroyed by reason",
		}, []string{"reason"}),

		RelayedPackets: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relayed_packets_total",
			Help:      "Total datagrams forwarded to peers",
		}),
		RelayedBytes: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relayed_bytes_total",
			Help:      "Total payload bytes forwarded to peers",
		}),
		SendFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "send_failures_total",
			Help:      "Total outbound datagrams that failed to send",
		}),

		relayRate: NewRateMeter(clk),
	}

	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "relay_bytes_per_second",
		Help:      "Average relayed payload bytes per second over the last minute",
	}, m.relayRate.Rate)

	return m
}

// ============================================================================
//                              记录
// ============================================================================

// RecordTransaction 记录一条已路由的消息
func (m *Metrics) RecordTransaction(msgType string) {
	if m == nil {
		return
	}
	m.Transactions.WithLabelValues(msgType).Inc()
}

// RecordErrorResponse 记录一条错误响应
func (m *Metrics) RecordErrorResponse(code int) {
	if m == nil {
		return
	}
	m.ErrorResponses.WithLabelValues(strconv.Itoa(code)).Inc()
}

// RecordDrop 记录一条被丢弃的数据报
func (m *Metrics) RecordDrop(reason string) {
	if m == nil {
		return
	}
	m.Drops.WithLabelValues(reason).Inc()
}

// RecordRelay 记录一次成功转发
func (m *Metrics) RecordRelay(bytes int) {
	if m == nil {
		return
	}
	m.RelayedPackets.Inc()
	m.RelayedBytes.Add(float64(bytes))
	m.relayRate.Add(int64(bytes))
}

// RecordSendFailure 记录一次发送失败
func (m *Metrics) RecordSendFailure() {
	if m == nil {
		return
	}
	m.SendFailures.Inc()
}

// RelayRate 返回最近一分钟的平均转发速率（字节/秒）
func (m *Metrics) RelayRate() float64 {
	if m == nil {
		return 0
	}
	return m.relayRate.Rate()
}

// AllocationCreated 实现 allocation.Observer
func (m *Metrics) AllocationCreated() {
	if m == nil {
		return
	}
	m.AllocationsTotal.Inc()
	m.AllocationsActive.Inc()
}

// AllocationDestroyed 实现 allocation.Observer
func (m *Metrics) AllocationDestroyed(reason string) {
	if m == nil {
		return
	}
	m.AllocationsActive.Dec()
	m.AllocationsDestroyed.WithLabelValues(reason).Inc()
}
