package relay

import (
	"errors"
	"fmt"
	"net/netip"
	"time"

	"github.com/dep2p/go-natrelay/config"
	"github.com/dep2p/go-natrelay/internal/core/allocation"
	"github.com/dep2p/go-natrelay/internal/core/dispatcher"
	"github.com/dep2p/go-natrelay/internal/core/metrics"
	"github.com/dep2p/go-natrelay/internal/core/stun"
	"github.com/dep2p/go-natrelay/internal/util/logger"
)

var log = logger.Logger("relay")

// Config 中继处理器配置
type Config struct {
	DefaultLifetime time.Duration
	MaxLifetime     time.Duration

	// RelayIP XOR-RELAYED-ADDRESS 中通告的地址
	RelayIP netip.Addr

	Software string
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		DefaultLifetime: config.DefaultLifetime,
		MaxLifetime:     config.DefaultMaxLifetime,
		RelayIP:         netip.MustParseAddr(config.DefaultRelayAddress),
		Software:        config.DefaultSoftware,
	}
}

// ConfigFromUnified 从统一配置创建
func ConfigFromUnified(cfg *config.Config) (Config, error) {
	if cfg == nil {
		return DefaultConfig(), nil
	}
	ip, err := cfg.Relay.RelayIP()
	if err != nil {
		return Config{}, fmt.Errorf("relay: relay address: %w", err)
	}
	return Config{
		DefaultLifetime: cfg.Relay.DefaultLifetime.Duration(),
		MaxLifetime:     cfg.Relay.MaxLifetime.Duration(),
		RelayIP:         ip,
		Software:        cfg.Software,
	}, nil
}

// Handler 处理 Allocate / Refresh / CreatePermission / Send
//
// 所有状态保存在注入的 allocation.Store 中。
type Handler struct {
	cfg   Config
	store *allocation.Store
	creds CredentialStore
}

// NewHandler 创建中继处理器
func NewHandler(cfg Config, store *allocation.Store, creds CredentialStore) *Handler {
	if creds == nil {
		creds = StaticCredentials{}
	}
	return &Handler{
		cfg:   cfg,
		store: store,
		creds: creds,
	}
}

// Register 向调度器注册中继消息类型
func (h *Handler) Register(r dispatcher.Registrar) {
	r.Register(stun.TypeAllocateRequest, h.HandleAllocate)
	r.Register(stun.TypeRefreshRequest, h.HandleRefresh)
	r.Register(stun.TypeCreatePermissionRequest, h.HandleCreatePermission)
	r.Register(stun.TypeSendIndication, h.HandleSend)
}

// reply 将处理结果转换为 Outcome
//
// *stun.ErrorCodeError 编码为错误响应，其他错误静默丢弃。
func (h *Handler) reply(req *stun.Message, src netip.AddrPort, resp *stun.Message, err error) dispatcher.Outcome {
	if err == nil {
		return dispatcher.Replied(resp)
	}

	var se *stun.ErrorCodeError
	if errors.As(err, &se) {
		log.Debug("请求失败",
			"type", req.Type.String(),
			"src", src.String(),
			"code", int(se.Code),
			"error", err)
		return dispatcher.Replied(stun.NewErrorResponse(req, se.Code, se.Reason))
	}

	log.Warn("无法处理请求", "type", req.Type.String(), "src", src.String(), "error", err)
	return dispatcher.Dropped(metrics.DropBadRequest)
}

// ============================================================================
//                              Allocate
// ============================================================================

// HandleAllocate 处理 Allocate Request
func (h *Handler) HandleAllocate(msg *stun.Message, src netip.AddrPort) dispatcher.Outcome {
	resp, err := h.allocate(msg, src)
	return h.reply(msg, src, resp, err)
}

func (h *Handler) allocate(msg *stun.Message, src netip.AddrPort) (*stun.Message, error) {
	key := allocation.NewClientKey(src)

	// 1. 已有分配
	if _, ok := h.store.Lookup(key); ok {
		return nil, stun.NewError(stun.CodeAllocationMismatch, reasonAllocationExists, allocation.ErrAllocationExists)
	}

	// 2. 用户名检查（仅检查是否存在于凭据表）
	username, err := msg.Username()
	if err != nil {
		return nil, stun.NewError(stun.CodeUnauthorized, "", ErrMissingUsername)
	}
	if _, ok := h.creds.Lookup(username); !ok {
		return nil, stun.NewError(stun.CodeUnauthorized, "", fmt.Errorf("%w: %q", ErrUnknownUsername, username))
	}

	// 3. 传输协议，缺失视为非 UDP
	if proto, err := msg.RequestedTransport(); err != nil || proto != stun.ProtoUDP {
		return nil, stun.NewError(stun.CodeUnsupportedTransport, "", ErrUnsupportedTransport)
	}

	// 4. 预留中继端口
	port, ok := h.store.ReserveRelayPort()
	if !ok {
		return nil, stun.NewError(stun.CodeInsufficientCapacity, "", ErrNoRelayPort)
	}

	// 5. 创建分配
	a, err := h.store.Create(key, username, port, h.cfg.DefaultLifetime)
	if err != nil {
		h.store.ReleaseRelayPort(port)
		if errors.Is(err, allocation.ErrAllocationExists) {
			return nil, stun.NewError(stun.CodeAllocationMismatch, reasonAllocationExists, err)
		}
		return nil, stun.NewError(stun.CodeInsufficientCapacity, "", err)
	}

	// 6. 成功响应
	resp := stun.NewResponse(msg, stun.TypeAllocateResponse)
	if err := resp.AddXORAddress(stun.AttrXORRelayedAddress, netip.AddrPortFrom(h.cfg.RelayIP, a.RelayPort)); err != nil {
		h.store.Destroy(key)
		return nil, err
	}
	resp.AddLifetime(seconds(a.Lifetime))
	if err := resp.AddXORAddress(stun.AttrXORMappedAddress, key.AddrPort()); err != nil {
		log.Debug("省略 XOR-MAPPED-ADDRESS", "src", src.String(), "error", err)
	}
	resp.AddSoftware(h.cfg.Software)

	log.Info("分配成功",
		"id", a.ID,
		"client", key.String(),
		"user", username,
		"port", a.RelayPort,
		"lifetime", a.Lifetime)
	return resp, nil
}

// ============================================================================
//                              Refresh
// ============================================================================

// HandleRefresh 处理 Refresh Request
func (h *Handler) HandleRefresh(msg *stun.Message, src netip.AddrPort) dispatcher.Outcome {
	resp, err := h.refresh(msg, src)
	return h.reply(msg, src, resp, err)
}

func (h *Handler) refresh(msg *stun.Message, src netip.AddrPort) (*stun.Message, error) {
	key := allocation.NewClientKey(src)

	if _, ok := h.store.Lookup(key); !ok {
		return nil, stun.NewError(stun.CodeAllocationMismatch, "", allocation.ErrNoAllocation)
	}

	lifetime, err := h.requestedLifetime(msg)
	if err != nil {
		return nil, stun.NewError(stun.CodeBadRequest, "", err)
	}

	// 与清理器并发时分配可能已被移除
	a, err := h.store.Refresh(key, lifetime)
	if err != nil {
		return nil, stun.NewError(stun.CodeAllocationMismatch, "", err)
	}

	resp := stun.NewResponse(msg, stun.TypeRefreshResponse)
	resp.AddLifetime(seconds(a.Lifetime))
	resp.AddSoftware(h.cfg.Software)

	if lifetime == 0 {
		log.Info("分配已释放", "id", a.ID, "client", key.String())
	}
	return resp, nil
}

// requestedLifetime 返回 clamp(请求值或默认值, 0, MaxLifetime)
func (h *Handler) requestedLifetime(msg *stun.Message) (time.Duration, error) {
	secs, err := msg.Lifetime()
	switch {
	case errors.Is(err, stun.ErrAttributeNotFound):
		return min(h.cfg.DefaultLifetime, h.cfg.MaxLifetime), nil
	case err != nil:
		return 0, fmt.Errorf("%w: %w", ErrBadLifetime, err)
	}
	return min(time.Duration(secs)*time.Second, h.cfg.MaxLifetime), nil
}

// ============================================================================
//                              CreatePermission
// ============================================================================

// HandleCreatePermission 处理 CreatePermission Request
//
// 同一请求中的多个 XOR-PEER-ADDRESS 要么全部生效，要么全部不生效。
func (h *Handler) HandleCreatePermission(msg *stun.Message, src netip.AddrPort) dispatcher.Outcome {
	resp, err := h.createPermission(msg, src)
	return h.reply(msg, src, resp, err)
}

func (h *Handler) createPermission(msg *stun.Message, src netip.AddrPort) (*stun.Message, error) {
	key := allocation.NewClientKey(src)

	if _, ok := h.store.Lookup(key); !ok {
		return nil, stun.NewError(stun.CodeAllocationMismatch, "", allocation.ErrNoAllocation)
	}

	attrs := msg.GetAll(stun.AttrXORPeerAddress)
	if len(attrs) == 0 {
		return nil, stun.NewError(stun.CodeBadRequest, "", ErrMissingPeer)
	}
	peers := make([]allocation.PeerKey, 0, len(attrs))
	for _, a := range attrs {
		ap, err := stun.DecodeXORAddress(a.Value)
		if err != nil {
			return nil, stun.NewError(stun.CodeBadRequest, "", err)
		}
		peers = append(peers, allocation.NewPeerKey(ap))
	}

	if err := h.store.AddPermission(key, peers...); err != nil {
		return nil, stun.NewError(stun.CodeAllocationMismatch, "", err)
	}

	log.Debug("添加许可", "client", key.String(), "peers", len(peers))
	return stun.NewResponse(msg, stun.TypeCreatePermissionResponse), nil
}

// ============================================================================
//                              Send
// ============================================================================

// HandleSend 处理 Send Indication
//
// 从不响应；只有已获许可的对端才会收到转发的数据。
func (h *Handler) HandleSend(msg *stun.Message, src netip.AddrPort) dispatcher.Outcome {
	key := allocation.NewClientKey(src)

	if _, ok := h.store.Lookup(key); !ok {
		log.Debug("丢弃 Send：没有分配", "client", key.String())
		return dispatcher.Dropped(metrics.DropNoAlloc)
	}

	peer, err := msg.XORAddress(stun.AttrXORPeerAddress)
	if err != nil {
		log.Debug("丢弃 Send：对端地址无效", "client", key.String(), "error", err)
		return dispatcher.Dropped(metrics.DropBadRequest)
	}
	data, err := msg.Data()
	if err != nil {
		log.Debug("丢弃 Send：缺少 DATA", "client", key.String())
		return dispatcher.Dropped(metrics.DropBadRequest)
	}

	if !h.store.HasPermission(key, allocation.NewPeerKey(peer)) {
		log.Debug("丢弃 Send：对端未获许可", "client", key.String(), "peer", peer.String())
		return dispatcher.Dropped(metrics.DropNoPerm)
	}

	return dispatcher.Outcome{
		Forward: &dispatcher.Datagram{To: peer, Payload: data},
	}
}

// seconds 将生命周期转换为 LIFETIME 属性的秒数
func seconds(d time.Duration) uint32 {
	if d <= 0 {
		return 0
	}
	return uint32(d / time.Second) // #nosec G115 -- 生命周期受 MaxLifetime 限制
}
