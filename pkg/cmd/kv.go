package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/yeisme/sourcelens/pkg/cache"
	"github.com/yeisme/sourcelens/pkg/configs"
	kv "github.com/yeisme/sourcelens/pkg/internal/storage/kv"
)

const defaultKeyPattern = "sl:*"

var (
	kvCmd = &cobra.Command{
		Use:     "kv",
		Short:   "Key-Value store related commands",
		Aliases: []string{"keyvalue"},
	}

	// 查看位置缓存与响应缓存的键.
	kvKeysCmd = &cobra.Command{
		Use:   "keys [pattern]",
		Short: "list cached keys, default pattern " + defaultKeyPattern,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := kv.NewKVClient(cmd.Context(), &configs.GetConfig().KV)
			if err != nil {
				return err
			}
			defer client.Close()

			keys, err := client.Keys(cmd.Context(), patternArg(args))
			if err != nil {
				return err
			}

			for _, k := range keys {
				fmt.Fprintln(cmd.OutOrStdout(), k)
			}

			return nil
		},
	}

	kvPurgeCmd = &cobra.Command{
		Use:   "purge [pattern]",
		Short: "delete cached keys matching pattern, default " + defaultKeyPattern,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := kv.NewKVClient(cmd.Context(), &configs.GetConfig().KV)
			if err != nil {
				return err
			}
			defer client.Close()

			n, err := cache.NewCache(client).DeleteMatching(cmd.Context(), patternArg(args))
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "deleted %d keys\n", n)

			return nil
		},
	}
)

func patternArg(args []string) string {
	if len(args) > 0 && args[0] != "" {
		return args[0]
	}

	return defaultKeyPattern
}

func registerKVCommands() {
	rootCmd.AddCommand(kvCmd)
	kvCmd.AddCommand(
		backendsCmd("kv", kv.GetRegisteredKVTypes, func(c *configs.AppConfig) kv.KVType { return kv.KVType(c.KV.Type) }),
		kvKeysCmd,
		kvPurgeCmd,
	)
}
