// Package main 提供 natrelay 命令行入口
//
// 使用方法:
//
//	natrelay serve --mode relay --config natrelay.yaml
//	natrelay probe --server 127.0.0.1:3478
//	natrelay config --mode relay
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dep2p/go-natrelay"
	"github.com/dep2p/go-natrelay/internal/util/logger"
)

var log = logger.Logger("natrelay/cmd")

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "natrelay",
		Short: "STUN Binding 与 UDP 中继服务",
		Long: `natrelay 在单个 UDP 端口上提供 STUN Binding 服务，
relay 模式下额外提供 TURN 风格的 Allocate / Refresh / CreatePermission / Send。`,
		Version:       natrelay.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(serveCmd())
	root.AddCommand(probeCmd())
	root.AddCommand(configCmd())
	root.AddCommand(versionCmd())
	return root
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "打印版本号",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "natrelay %s\n", natrelay.Version)
		},
	}
}
