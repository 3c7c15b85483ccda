package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/dep2p/go-natrelay/internal/core/probe"
)

func probeCmd() *cobra.Command {
	var (
		servers []string
		timeout time.Duration
		retries int
	)

	cmd := &cobra.Command{
		Use:   "probe",
		Short: "查询本机的公网映射地址",
		Long:  "向一个或多个 STUN 服务器发送 Binding Request，打印第一个成功应答中的映射地址。",
		RunE: func(cmd *cobra.Command, _ []string) error {
			client := probe.NewClient(servers,
				probe.WithTimeout(timeout),
				probe.WithRetries(retries))

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			res, err := client.MappedAddress(ctx)
			if err != nil {
				return fmt.Errorf("探测失败: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "服务器: %s\n", res.Server)
			fmt.Fprintf(cmd.OutOrStdout(), "映射地址: %s\n", res.Mapped)
			fmt.Fprintf(cmd.OutOrStdout(), "RTT: %s\n", res.RTT.Round(time.Microsecond))
			if res.Software != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "SOFTWARE: %s\n", res.Software)
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVarP(&servers, "server", "s", []string{"127.0.0.1:3478"}, "STUN 服务器，可重复指定")
	cmd.Flags().DurationVar(&timeout, "timeout", 3*time.Second, "单次请求超时")
	cmd.Flags().IntVar(&retries, "retries", 2, "每个服务器的尝试次数")
	return cmd
}
