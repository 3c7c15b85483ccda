package binding

import (
	"go.uber.org/fx"

	"github.com/dep2p/go-natrelay/config"
	"github.com/dep2p/go-natrelay/internal/core/dispatcher"
)

// Params Binding 模块依赖
type Params struct {
	fx.In

	Config *config.Config `optional:"true"`
}

// ProvideHandler 提供 Binding 处理器
func ProvideHandler(p Params) *Handler {
	return NewHandler(ConfigFromUnified(p.Config))
}

// Module 返回 Fx 模块
func Module() fx.Option {
	return fx.Module("binding",
		fx.Provide(ProvideHandler),
		fx.Invoke(func(h *Handler, r dispatcher.Registrar) {
			h.Register(r)
		}),
	)
}
