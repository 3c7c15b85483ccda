package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dep2p/go-natrelay"
	"github.com/dep2p/go-natrelay/config"
)

// serveFlags serve 子命令参数
//
// 命令行参数只覆盖配置文件中的对应项，未显式设置的参数不生效。
type serveFlags struct {
	configPath string
	mode       string
	address    string
	port       int
	logLevel   string
}

func serveCmd() *cobra.Command {
	var f serveFlags

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "启动服务",
		Long:  "按配置文件与命令行参数启动 Binding 或中继服务，收到 SIGINT/SIGTERM 后优雅退出。",
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts, err := f.options(cmd)
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVarP(&f.configPath, "config", "c", "", "配置文件路径（YAML 或 JSON）")
	cmd.Flags().StringVarP(&f.mode, "mode", "m", string(config.ModeBinding), "服务模式 (binding/relay)")
	cmd.Flags().StringVarP(&f.address, "address", "a", "", "监听 IPv4 地址")
	cmd.Flags().IntVarP(&f.port, "port", "p", 0, "监听端口（默认按模式取 3478 或 3479）")
	cmd.Flags().StringVar(&f.logLevel, "log-level", "", "日志级别，例如 \"relay=debug,info\"")
	return cmd
}

// options 将参数转换为服务选项
func (f *serveFlags) options(cmd *cobra.Command) ([]natrelay.Option, error) {
	cfg := config.NewConfig()
	if f.configPath != "" {
		loaded, err := config.LoadFile(f.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	} else if config.Mode(f.mode) == config.ModeRelay {
		cfg = config.NewRelayConfig()
	}

	flags := cmd.Flags()
	if flags.Changed("mode") {
		cfg.Listen.Mode = config.Mode(f.mode)
		if f.configPath == "" && !flags.Changed("port") {
			cfg.Listen.Port = defaultPort(cfg.Listen.Mode)
		}
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = f.logLevel
	}

	opts := []natrelay.Option{natrelay.WithConfig(cfg)}
	if flags.Changed("address") {
		opts = append(opts, natrelay.WithListenAddress(f.address))
	}
	if flags.Changed("port") {
		opts = append(opts, natrelay.WithListenPort(f.port))
	}
	return opts, nil
}

func defaultPort(mode config.Mode) int {
	if mode == config.ModeRelay {
		return config.DefaultRelayPort
	}
	return config.DefaultBindingPort
}

func runServe(ctx context.Context, opts []natrelay.Option) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv, err := natrelay.New(opts...)
	if err != nil {
		return fmt.Errorf("创建服务失败: %w", err)
	}
	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("启动服务失败: %w", err)
	}

	fmt.Printf("natrelay %s\n", natrelay.Version)
	fmt.Printf("模式: %s\n", srv.Mode())
	fmt.Printf("监听: %s\n", srv.Addr())

	<-ctx.Done()
	log.Info("收到退出信号，正在关闭")

	stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Stop(stopCtx); err != nil {
		return fmt.Errorf("关闭服务失败: %w", err)
	}
	fmt.Println("服务已停止")
	return nil
}
