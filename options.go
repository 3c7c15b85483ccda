package natrelay

import (
	"errors"
	"fmt"

	"github.com/benbjohnson/clock"
	"go.uber.org/fx"

	"github.com/dep2p/go-natrelay/config"
)

// Mode 服务模式
type Mode = config.Mode

const (
	// ModeBinding 仅提供 Binding 服务
	ModeBinding = config.ModeBinding

	// ModeRelay 同时提供 Binding 与中继分配服务
	ModeRelay = config.ModeRelay
)

// CredentialStore 用户名查询接口
//
// Allocate 只检查用户名是否存在，secret 保留给完整认证实现。
type CredentialStore interface {
	Lookup(username string) (secret string, ok bool)
}

// Option 用户配置选项函数
type Option func(*options) error

// options 内部选项结构
type options struct {
	// 基础配置，为空时按模式生成默认配置
	config *config.Config

	// 以下字段覆盖 config 中的对应项
	mode        *Mode
	listenAddr  *string
	listenPort  *int
	credentials map[string]string

	// 依赖注入
	clock     clock.Clock
	credStore CredentialStore
	fxOptions []fx.Option
}

// WithConfig 使用完整配置
//
// 后续的 WithMode / WithListenPort 等选项仍会覆盖其中的字段。
func WithConfig(cfg *config.Config) Option {
	return func(o *options) error {
		if cfg == nil {
			return errors.New("config is nil")
		}
		o.config = cfg
		return nil
	}
}

// WithConfigFile 从 YAML 或 JSON 文件加载配置
func WithConfigFile(path string) Option {
	return func(o *options) error {
		cfg, err := config.LoadFile(path)
		if err != nil {
			return fmt.Errorf("load config %s: %w", path, err)
		}
		o.config = cfg
		return nil
	}
}

// WithMode 设置服务模式
func WithMode(mode Mode) Option {
	return func(o *options) error {
		if mode != ModeBinding && mode != ModeRelay {
			return fmt.Errorf("%w: unknown mode %q", ErrInvalidConfig, mode)
		}
		o.mode = &mode
		return nil
	}
}

// WithListenAddress 设置监听 IPv4 地址
func WithListenAddress(addr string) Option {
	return func(o *options) error {
		o.listenAddr = &addr
		return nil
	}
}

// WithListenPort 设置监听端口，0 表示由系统分配
func WithListenPort(port int) Option {
	return func(o *options) error {
		if port < 0 || port > 65535 {
			return fmt.Errorf("%w: port %d out of range", ErrInvalidConfig, port)
		}
		o.listenPort = &port
		return nil
	}
}

// WithCredentials 设置静态凭据表（用户名 → secret）
func WithCredentials(creds map[string]string) Option {
	return func(o *options) error {
		o.credentials = make(map[string]string, len(creds))
		for k, v := range creds {
			o.credentials[k] = v
		}
		return nil
	}
}

// WithCredentialStore 注入自定义凭据查询，优先于静态凭据表
func WithCredentialStore(store CredentialStore) Option {
	return func(o *options) error {
		o.credStore = store
		return nil
	}
}

// WithClock 注入时钟，测试中可使用 clock.NewMock()
func WithClock(clk clock.Clock) Option {
	return func(o *options) error {
		o.clock = clk
		return nil
	}
}

// WithFxOptions 追加额外的 Fx 选项
func WithFxOptions(opts ...fx.Option) Option {
	return func(o *options) error {
		o.fxOptions = append(o.fxOptions, opts...)
		return nil
	}
}

// resolve 合并选项，生成最终配置
func (o *options) resolve() *config.Config {
	cfg := o.config
	if cfg == nil {
		cfg = config.NewConfig()
		if o.mode != nil && *o.mode == ModeRelay {
			cfg = config.NewRelayConfig()
		}
	}

	if o.mode != nil {
		cfg.Listen.Mode = *o.mode
	}
	if o.listenAddr != nil {
		cfg.Listen.Address = *o.listenAddr
	}
	if o.listenPort != nil {
		cfg.Listen.Port = *o.listenPort
	}
	if o.credentials != nil {
		cfg.Credentials = o.credentials
	}
	return cfg
}
