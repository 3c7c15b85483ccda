package relay

import (
	"go.uber.org/fx"

	"github.com/dep2p/go-natrelay/config"
	"github.com/dep2p/go-natrelay/internal/core/allocation"
	"github.com/dep2p/go-natrelay/internal/core/dispatcher"
)

// Params 中继模块依赖
type Params struct {
	fx.In

	Config      *config.Config `optional:"true"`
	Store       *allocation.Store
	Credentials CredentialStore `optional:"true"`
}

// ProvideHandler 提供中继处理器
//
// 未注入 CredentialStore 时使用配置中的静态凭据表。
func ProvideHandler(p Params) (*Handler, error) {
	cfg, err := ConfigFromUnified(p.Config)
	if err != nil {
		return nil, err
	}

	creds := p.Credentials
	if creds == nil && p.Config != nil {
		creds = NewStaticCredentials(p.Config.Credentials)
	}
	return NewHandler(cfg, p.Store, creds), nil
}

// Module 返回 Fx 模块
func Module() fx.Option {
	return fx.Module("relay",
		fx.Provide(ProvideHandler),
		fx.Invoke(func(h *Handler, r dispatcher.Registrar) {
			h.Register(r)
		}),
	)
}
