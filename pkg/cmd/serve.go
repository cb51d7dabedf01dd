package cmd

import (
	"github.com/spf13/cobra"

	"github.com/yeisme/sourcelens/pkg/app"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	Short:   "start the http server",
	Aliases: []string{"server", "run"},
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := app.NewApp(cfgPath)
		if err != nil {
			return err
		}

		return a.Run()
	},
}

// registerServeCommands 注册服务启动命令.
func registerServeCommands() {
	rootCmd.AddCommand(serveCmd)
}
