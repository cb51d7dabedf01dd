// Package cmd contains the command line applications for the project.
package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/yeisme/sourcelens/pkg/configs"
	"github.com/yeisme/sourcelens/pkg/log"
)

var (
	cfgPath string
	debug   bool

	rootCmd = &cobra.Command{
		Use:           configs.AppName,
		Short:         "Store JavaScript source maps and map minified stack traces back to source",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := configs.InitConfig(cfgPath); err != nil {
				return err
			}

			if debug {
				configs.GetConfig().Server.Debug = true
			}

			log.Init()

			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", ".", "config file or directory")
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "enable debug mode")

	registerServeCommands()
	registerConfigsCommands()
	registerDBCommands()
	registerKVCommands()
	registerMQCommands()
	registerSourceMapCommands()
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.ExecuteContext(context.Background())
}

// backendsCmd 列出编译进二进制的后端，当前配置使用的那个以 * 标记.
func backendsCmd[T ~string](kind string, registered func() []T, active func(*configs.AppConfig) T) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Short:   "list compiled-in " + kind + " backends",
		Aliases: []string{"ls", "l"},
		Args:    cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			current := active(configs.GetConfig())

			for _, t := range registered() {
				mark := " "
				if t == current {
					mark = "*"
				}

				fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", mark, t)
			}
		},
	}
}
