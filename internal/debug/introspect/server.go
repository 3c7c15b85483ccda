package introspect

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/pprof"
	"net/netip"
	"runtime"
	"sync"
	"time"

	"github.com/dep2p/go-natrelay/internal/core/allocation"
	"github.com/dep2p/go-natrelay/internal/util/logger"
)

var log = logger.Logger("introspect")

// DefaultAddr 默认监听地址
const DefaultAddr = "127.0.0.1:6060"

// ============================================================================
//                              配置
// ============================================================================

// Listener 提供实际监听地址
type Listener interface {
	LocalAddr() netip.AddrPort
}

// AllocationSource 分配表快照
type AllocationSource interface {
	Allocations() []allocation.Allocation
	Permissions(key allocation.ClientKey) []allocation.PeerKey
}

// RateSource 中继吞吐量
type RateSource interface {
	RelayRate() float64
}

// Config 服务配置
type Config struct {
	// Addr 监听地址，默认 "127.0.0.1:6060"
	Addr string

	// Mode 服务模式，仅用于展示
	Mode string

	// Listener 可选的 UDP 监听器
	Listener Listener

	// Allocations 可选的分配表，binding 模式下为空
	Allocations AllocationSource

	// Rate 可选的吞吐量来源
	Rate RateSource
}

// ============================================================================
//                              Server
// ============================================================================

// Server 本地自省 HTTP 服务
type Server struct {
	config Config

	server   *http.Server
	listener net.Listener

	running   bool
	startTime time.Time

	mu sync.Mutex
}

// New 创建自省服务
func New(cfg Config) *Server {
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	return &Server{config: cfg}
}

// Start 启动服务
func (s *Server) Start(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/debug/introspect", s.handleIntrospect)
	mux.HandleFunc("/debug/introspect/allocations", s.handleAllocations)
	mux.HandleFunc("/debug/introspect/runtime", s.handleRuntime)

	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	mux.HandleFunc("/health", s.handleHealth)

	listener, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return err
	}
	s.listener = listener
	s.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
	}

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("自省服务异常退出", "error", err)
		}
	}()

	s.running = true
	s.startTime = time.Now()
	log.Info("自省服务已启动", "addr", listener.Addr().String())
	return nil
}

// Stop 停止服务
func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		log.Error("关闭自省服务失败", "error", err)
		return err
	}

	s.running = false
	log.Info("自省服务已停止")
	return nil
}

// Addr 返回实际监听地址
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.config.Addr
}

// ============================================================================
//                              响应结构
// ============================================================================

// IntrospectResponse 完整诊断响应
type IntrospectResponse struct {
	Timestamp   time.Time        `json:"timestamp"`
	Uptime      string           `json:"uptime"`
	Server      ServerInfo       `json:"server"`
	Allocations []AllocationInfo `json:"allocations,omitempty"`
	Runtime     *RuntimeInfo     `json:"runtime,omitempty"`
}

// ServerInfo 服务信息
type ServerInfo struct {
	Mode                string  `json:"mode"`
	Addr                string  `json:"addr,omitempty"`
	AllocationCount     int     `json:"allocation_count"`
	RelayBytesPerSecond float64 `json:"relay_bytes_per_second"`
}

// AllocationInfo 单个分配
type AllocationInfo struct {
	ID          string    `json:"id"`
	Client      string    `json:"client"`
	RelayPort   uint16    `json:"relay_port"`
	Username    string    `json:"username"`
	CreatedAt   time.Time `json:"created_at"`
	ExpiresAt   time.Time `json:"expires_at"`
	Permissions []string  `json:"permissions"`
}

// RuntimeInfo 运行时信息
type RuntimeInfo struct {
	GoVersion    string `json:"go_version"`
	NumGoroutine int    `json:"num_goroutine"`
	NumCPU       int    `json:"num_cpu"`
	MemAlloc     uint64 `json:"mem_alloc"`
	MemSys       uint64 `json:"mem_sys"`
	NumGC        uint32 `json:"num_gc"`
}

// HealthResponse 健康检查响应
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Uptime    string    `json:"uptime,omitempty"`
}

// ============================================================================
//                              HTTP 处理器
// ============================================================================

// handleIntrospect 处理完整诊断请求
func (s *Server) handleIntrospect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	allocs := s.collectAllocations()
	s.writeJSON(w, IntrospectResponse{
		Timestamp:   time.Now(),
		Uptime:      time.Since(s.startTime).String(),
		Server:      s.collectServerInfo(len(allocs)),
		Allocations: allocs,
		Runtime:     collectRuntimeInfo(),
	})
}

// handleAllocations 处理分配列表请求
func (s *Server) handleAllocations(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.config.Allocations == nil {
		http.Error(w, "Relay not enabled", http.StatusServiceUnavailable)
		return
	}
	s.writeJSON(w, s.collectAllocations())
}

// handleRuntime 处理运行时信息请求
func (s *Server) handleRuntime(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.writeJSON(w, collectRuntimeInfo())
}

// handleHealth 处理健康检查请求
//
// UDP 套接字未绑定时状态为 degraded。
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	health := HealthResponse{
		Status:    "ok",
		Timestamp: time.Now(),
		Uptime:    time.Since(s.startTime).String(),
	}
	if s.config.Listener == nil || !s.config.Listener.LocalAddr().IsValid() {
		health.Status = "degraded"
	}
	s.writeJSON(w, health)
}

// ============================================================================
//                              数据收集
// ============================================================================

func (s *Server) collectServerInfo(count int) ServerInfo {
	info := ServerInfo{
		Mode:            s.config.Mode,
		AllocationCount: count,
	}
	if s.config.Listener != nil {
		if addr := s.config.Listener.LocalAddr(); addr.IsValid() {
			info.Addr = addr.String()
		}
	}
	if s.config.Rate != nil {
		info.RelayBytesPerSecond = s.config.Rate.RelayRate()
	}
	return info
}

// collectAllocations 收集分配快照，按中继端口排序
func (s *Server) collectAllocations() []AllocationInfo {
	if s.config.Allocations == nil {
		return nil
	}

	allocs := s.config.Allocations.Allocations()
	out := make([]AllocationInfo, 0, len(allocs))
	for _, a := range allocs {
		perms := s.config.Allocations.Permissions(a.ClientKey)
		peers := make([]string, len(perms))
		for i, p := range perms {
			peers[i] = p.String()
		}
		out = append(out, AllocationInfo{
			ID:          a.ID,
			Client:      a.ClientKey.String(),
			RelayPort:   a.RelayPort,
			Username:    a.Username,
			CreatedAt:   a.CreatedAt,
			ExpiresAt:   a.ExpiresAt,
			Permissions: peers,
		})
	}
	return out
}

func collectRuntimeInfo() *RuntimeInfo {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return &RuntimeInfo{
		GoVersion:    runtime.Version(),
		NumGoroutine: runtime.NumGoroutine(),
		NumCPU:       runtime.NumCPU(),
		MemAlloc:     m.Alloc,
		MemSys:       m.Sys,
		NumGC:        m.NumGC,
	}
}

// writeJSON 写入 JSON 响应
func (s *Server) writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(data); err != nil {
		log.Error("编码 JSON 响应失败", "error", err)
	}
}
