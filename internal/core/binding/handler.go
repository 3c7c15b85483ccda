// Package binding 实现无状态的 Binding（地址发现）服务
//
// 对每个 Binding Request 返回 Binding Success Response，
// 携带请求来源的 XOR-MAPPED-ADDRESS 与 SOFTWARE 属性。
package binding

import (
	"net/netip"

	"github.com/dep2p/go-natrelay/config"
	"github.com/dep2p/go-natrelay/internal/core/dispatcher"
	"github.com/dep2p/go-natrelay/internal/core/metrics"
	"github.com/dep2p/go-natrelay/internal/core/stun"
	"github.com/dep2p/go-natrelay/internal/util/logger"
)

var log = logger.Logger("binding")

// Config Binding 服务配置
type Config struct {
	// Software SOFTWARE 属性值，空字符串不发送
	Software string

	// IncludeMappedAddress 额外携带明文 MAPPED-ADDRESS
	IncludeMappedAddress bool
}

// ConfigFromUnified 从统一配置创建
func ConfigFromUnified(cfg *config.Config) Config {
	if cfg == nil {
		return Config{Software: config.DefaultSoftware}
	}
	return Config{
		Software:             cfg.Software,
		IncludeMappedAddress: cfg.Binding.IncludeMappedAddress,
	}
}

// Handler Binding 处理器
type Handler struct {
	cfg Config
}

// NewHandler 创建 Binding 处理器
func NewHandler(cfg Config) *Handler {
	return &Handler{cfg: cfg}
}

// Register 向调度器注册 Binding Request
func (h *Handler) Register(r dispatcher.Registrar) {
	r.Register(stun.TypeBindingRequest, h.Handle)
}

// Handle 处理一条消息
//
// 非 Binding Request 的消息与无法编码的来源地址被丢弃，不发送响应。
func (h *Handler) Handle(msg *stun.Message, src netip.AddrPort) dispatcher.Outcome {
	if msg.Type != stun.TypeBindingRequest {
		log.Debug("忽略非 Binding 请求", "type", msg.Type.String(), "src", src.String())
		return dispatcher.Dropped(metrics.DropUnsupported)
	}

	resp, err := h.Response(msg, src)
	if err != nil {
		log.Debug("无法编码来源地址", "src", src.String(), "error", err)
		return dispatcher.Dropped(metrics.DropUnsupported)
	}
	return dispatcher.Replied(resp)
}

// Response 构造 Binding Success Response
func (h *Handler) Response(req *stun.Message, src netip.AddrPort) (*stun.Message, error) {
	resp := stun.NewResponse(req, stun.TypeBindingResponse)
	if err := resp.AddXORAddress(stun.AttrXORMappedAddress, src); err != nil {
		return nil, err
	}
	if h.cfg.IncludeMappedAddress {
		v, err := stun.EncodeAddress(src)
		if err != nil {
			return nil, err
		}
		resp.Add(stun.AttrMappedAddress, v)
	}
	resp.AddSoftware(h.cfg.Software)
	return resp, nil
}
