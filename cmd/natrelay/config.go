package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dep2p/go-natrelay/config"
)

func configCmd() *cobra.Command {
	var (
		mode       string
		configPath string
	)

	cmd := &cobra.Command{
		Use:   "config",
		Short: "打印配置",
		Long:  "打印默认配置，或校验并打印指定的配置文件。凭据 secret 始终被隐藏。",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var cfg *config.Config
			switch {
			case configPath != "":
				loaded, err := config.LoadFile(configPath)
				if err != nil {
					return err
				}
				cfg = loaded
			case config.Mode(mode) == config.ModeRelay:
				cfg = config.NewRelayConfig()
			case config.Mode(mode) == config.ModeBinding:
				cfg = config.NewConfig()
			default:
				return fmt.Errorf("%w: unknown mode %q", config.ErrInvalidConfig, mode)
			}

			fmt.Fprint(cmd.OutOrStdout(), cfg.String())
			return nil
		},
	}

	cmd.Flags().StringVarP(&mode, "mode", "m", string(config.ModeBinding), "默认配置的模式 (binding/relay)")
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "要校验的配置文件")
	return cmd
}
