package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/yeisme/sourcelens/pkg/app"
	"github.com/yeisme/sourcelens/pkg/configs"
	"github.com/yeisme/sourcelens/pkg/internal/storage"
	"github.com/yeisme/sourcelens/pkg/internal/storage/db"
)

var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Database related commands",
}

// 建表与索引，serve 在 db.auto_migrate 开启时也会执行.
var dbMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "create or update sourcemap tables",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg := configs.GetConfig()
		if cfg.SourceMap.Store == "memory" {
			fmt.Fprintln(cmd.OutOrStdout(), "sourcemap.store is memory, nothing to migrate")
			return nil
		}

		ctx := cmd.Context()

		mgr, err := storage.Init(ctx, cfg)
		if err != nil {
			return err
		}
		defer mgr.Close()

		if _, _, err := app.OpenStores(ctx, cfg, mgr, true); err != nil {
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout(), "migration completed")

		return nil
	},
}

var dbPingCmd = &cobra.Command{
	Use:   "ping",
	Short: "connect to the configured database and report latency",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg := &configs.GetConfig().DB
		start := time.Now()

		client, err := db.New(cmd.Context(), cfg, false)
		if err != nil {
			return err
		}
		defer client.Close()

		fmt.Fprintf(cmd.OutOrStdout(), "%s ok (%s)\n", cfg.Driver(), time.Since(start).Round(time.Millisecond))

		return nil
	},
}

func registerDBCommands() {
	rootCmd.AddCommand(dbCmd)

	dbCmd.AddCommand(
		backendsCmd("database", db.GetRegisteredDBTypes, func(c *configs.AppConfig) configs.DBType { return c.DB.Driver() }),
		dbMigrateCmd,
		dbPingCmd,
	)
}
