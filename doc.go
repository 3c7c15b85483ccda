// Package natrelay 提供 STUN Binding 与 TURN 风格的 UDP 中继服务
//
// 服务以两种模式之一运行：
//
//   - binding: 仅应答 Binding Request，返回客户端被观察到的公网地址
//   - relay:   额外处理 Allocate / Refresh / CreatePermission / Send
//
// # 快速开始
//
//	import "github.com/dep2p/go-natrelay"
//
//	srv, err := natrelay.New(
//	    natrelay.WithMode(natrelay.ModeRelay),
//	    natrelay.WithCredentials(map[string]string{"alice": "secret"}),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := srv.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer srv.Stop(context.Background())
//
// # 组件
//
//	┌──────────────────────────────────────────────────────┐
//	│  dispatcher   UDP 套接字、限速、按消息类型分派            │
//	├──────────────────────────────────────────────────────┤
//	│  binding      Binding Request → XOR-MAPPED-ADDRESS    │
//	│  relay        Allocate / Refresh / Permission / Send  │
//	├──────────────────────────────────────────────────────┤
//	│  allocation   分配表、许可表、过期清理                   │
//	│  stun         消息编解码、XOR 地址变换                   │
//	│  metrics      Prometheus 指标                         │
//	└──────────────────────────────────────────────────────┘
//
// 各组件通过 go.uber.org/fx 组装，见 fx.go。
package natrelay
