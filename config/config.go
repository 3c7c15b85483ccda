// Package config 提供 natrelay 的统一配置
//
// 主 Config 结构体嵌入所有子配置，支持：
//   - 默认配置（binding 模式 / relay 模式）
//   - 从 JSON 或 YAML 加载，值中可引用环境变量 ${VAR} / ${VAR:-default}
//   - 校验（Validate）
//
// 使用示例：
//
//	cfg := config.NewRelayConfig()
//	cfg.Credentials["alice"] = "secret"
//
//	cfg, err := config.LoadFile("/etc/natrelay.yaml")
package config

import (
	"net/netip"
	"time"
)

// Mode 服务模式
type Mode string

const (
	// ModeBinding 仅提供 Binding（地址发现）服务
	ModeBinding Mode = "binding"

	// ModeRelay 同时提供 Binding 与中继分配服务
	ModeRelay Mode = "relay"
)

// 默认值
const (
	DefaultBindingPort    = 3478
	DefaultRelayPort      = 3479
	DefaultLifetime       = 600 * time.Second
	DefaultMaxLifetime    = 3600 * time.Second
	DefaultRelayPortMin   = 49152
	DefaultRelayPortMax   = 65535
	DefaultSweepInterval  = 60 * time.Second
	DefaultSoftware       = "go-natrelay"
	DefaultRelayAddress   = "127.0.0.1"
	DefaultReadBufferSize = 64 * 1024
)

// Config 完整配置
type Config struct {
	// Listen 监听配置
	Listen ListenConfig `json:"listen" yaml:"listen"`

	// Binding Binding 服务配置
	Binding BindingConfig `json:"binding" yaml:"binding"`

	// Relay 中继分配配置
	Relay RelayConfig `json:"relay" yaml:"relay"`

	// Credentials 静态用户名 → 密钥表
	Credentials map[string]string `json:"credentials" yaml:"credentials"`

	// Software 响应中 SOFTWARE 属性的值，空字符串不发送
	Software string `json:"software" yaml:"software"`

	// RateLimit 按来源地址限流
	RateLimit RateLimitConfig `json:"rate_limit" yaml:"rate_limit"`

	// Metrics Prometheus 指标
	Metrics MetricsConfig `json:"metrics" yaml:"metrics"`

	// Log 日志
	Log LogConfig `json:"log" yaml:"log"`

	// Diagnostics 本地诊断服务
	Diagnostics DiagnosticsConfig `json:"diagnostics" yaml:"diagnostics"`
}

// ListenConfig 监听配置
type ListenConfig struct {
	// Address 绑定的 IPv4 地址
	Address string `json:"address" yaml:"address"`

	// Port UDP 端口，0 表示由系统分配
	Port int `json:"port" yaml:"port"`

	// Mode binding 或 relay
	Mode Mode `json:"mode" yaml:"mode"`

	// ReadBufferSize 单个数据报读缓冲大小
	ReadBufferSize int `json:"read_buffer_size" yaml:"read_buffer_size"`
}

// BindingConfig Binding 服务配置
type BindingConfig struct {
	// IncludeMappedAddress 响应中额外携带明文 MAPPED-ADDRESS
	IncludeMappedAddress bool `json:"include_mapped_address" yaml:"include_mapped_address"`
}

// RelayConfig 中继分配配置
type RelayConfig struct {
	// DefaultLifetime 分配与未指定 LIFETIME 的刷新使用的生命周期
	DefaultLifetime Duration `json:"default_lifetime" yaml:"default_lifetime"`

	// MaxLifetime 刷新可请求的最大生命周期
	MaxLifetime Duration `json:"max_lifetime" yaml:"max_lifetime"`

	// PortMin/PortMax 中继端口范围（含两端）
	PortMin int `json:"port_min" yaml:"port_min"`
	PortMax int `json:"port_max" yaml:"port_max"`

	// RelayAddress XOR-RELAYED-ADDRESS 中通告的 IPv4 地址
	RelayAddress string `json:"relay_address" yaml:"relay_address"`

	// SweepInterval 过期分配清理周期
	SweepInterval Duration `json:"sweep_interval" yaml:"sweep_interval"`

	// MaxAllocations 活跃分配上限，0 表示只受端口范围限制
	MaxAllocations int `json:"max_allocations" yaml:"max_allocations"`
}

// RateLimitConfig 按来源 IP 的令牌桶限流，RequestsPerSecond 为 0 时关闭
type RateLimitConfig struct {
	RequestsPerSecond float64 `json:"requests_per_second" yaml:"requests_per_second"`
	Burst             int     `json:"burst" yaml:"burst"`

	// MaxSources 同时跟踪的来源数，超出后淘汰最久未活动的来源
	MaxSources int `json:"max_sources" yaml:"max_sources"`
}

// Enabled 是否启用限流
func (c RateLimitConfig) Enabled() bool {
	return c.RequestsPerSecond > 0
}

// MetricsConfig 指标配置
type MetricsConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled"`

	// Address /metrics HTTP 监听地址，空表示不暴露
	Address string `json:"address" yaml:"address"`
}

// DiagnosticsConfig 诊断配置
type DiagnosticsConfig struct {
	// EnableIntrospect 启用自省 HTTP 服务（分配表、运行时、pprof）
	EnableIntrospect bool `json:"enable_introspect" yaml:"enable_introspect"`

	// IntrospectAddr 自省服务监听地址，默认 127.0.0.1:6060
	IntrospectAddr string `json:"introspect_addr" yaml:"introspect_addr"`
}

// LogConfig 日志配置
type LogConfig struct {
	// Level 格式同 NATRELAY_LOG_LEVEL，例如 "relay=debug,info"
	Level string `json:"level" yaml:"level"`

	// FxEvents 输出依赖注入框架的事件日志
	FxEvents bool `json:"fx_events" yaml:"fx_events"`
}

// ============================================================================
//                              默认配置
// ============================================================================

// NewConfig 返回 binding 模式的默认配置
func NewConfig() *Config {
	return &Config{
		Listen: ListenConfig{
			Address:        "0.0.0.0",
			Port:           DefaultBindingPort,
			Mode:           ModeBinding,
			ReadBufferSize: DefaultReadBufferSize,
		},
		Relay:       DefaultRelayConfig(),
		Credentials: make(map[string]string),
		Software:    DefaultSoftware,
		RateLimit: RateLimitConfig{
			MaxSources: 10000,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

// NewRelayConfig 返回 relay 模式的默认配置
func NewRelayConfig() *Config {
	cfg := NewConfig()
	cfg.Listen.Port = DefaultRelayPort
	cfg.Listen.Mode = ModeRelay
	return cfg
}

// DefaultRelayConfig 返回默认中继配置
func DefaultRelayConfig() RelayConfig {
	return RelayConfig{
		DefaultLifetime: Duration(DefaultLifetime),
		MaxLifetime:     Duration(DefaultMaxLifetime),
		PortMin:         DefaultRelayPortMin,
		PortMax:         DefaultRelayPortMax,
		RelayAddress:    DefaultRelayAddress,
		SweepInterval:   Duration(DefaultSweepInterval),
	}
}

// RelayIP 解析 RelayAddress
func (c RelayConfig) RelayIP() (netip.Addr, error) {
	addr, err := netip.ParseAddr(c.RelayAddress)
	if err != nil {
		return netip.Addr{}, err
	}
	return addr.Unmap(), nil
}

// IsRelay 是否为 relay 模式
func (c *Config) IsRelay() bool {
	return c.Listen.Mode == ModeRelay
}
