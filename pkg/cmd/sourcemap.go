package cmd

import (
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/yeisme/sourcelens/pkg/configs"
	"github.com/yeisme/sourcelens/pkg/internal/service"
	"github.com/yeisme/sourcelens/pkg/internal/sourcemap"
)

var (
	resolveMapFiles []string
	resolveStack    string
	resolveVersion  string

	sourcemapCmd = &cobra.Command{
		Use:     "sourcemap",
		Short:   "Offline source map tools",
		Aliases: []string{"sm"},
	}

	// 不依赖服务端，直接用本地 .map 文件还原堆栈.
	sourcemapResolveCmd = &cobra.Command{
		Use:   "resolve",
		Short: "map a minified stack trace with local source map files",
		Example: configs.AppName + ` sourcemap resolve -m dist/app.min.js.map -s stack.txt
cat stack.txt | ` + configs.AppName + ` sourcemap resolve -m dist/app.min.js.map`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(resolveMapFiles) == 0 {
				return fmt.Errorf("at least one --map is required")
			}

			candidates := make([]sourcemap.Artifact, 0, len(resolveMapFiles))

			for _, p := range resolveMapFiles {
				data, err := os.ReadFile(p)
				if err != nil {
					return fmt.Errorf("read map %s: %w", p, err)
				}

				candidates = append(candidates, sourcemap.Artifact{
					Version:  resolveVersion,
					Filename: filepath.Base(p),
					Content:  base64.StdEncoding.EncodeToString(data),
				})
			}

			stack, err := readStack(cmd, resolveStack)
			if err != nil {
				return err
			}

			cfg := configs.GetConfig().SourceMap
			resolver := sourcemap.NewResolver(
				sourcemap.NewDecodeCache(cfg.DecodeCache.Size, cfg.DecodeCache.TTL),
				sourcemap.WithBias(sourcemap.ParseBias(cfg.Bias)),
			)
			mapper := sourcemap.NewMapper(resolver, cfg.ParallelFrames)

			fmt.Fprintln(cmd.OutOrStdout(), mapper.MapStack(cmd.Context(), stack, resolveVersion, candidates))

			return nil
		},
	}

	sourcemapBumpCmd = &cobra.Command{
		Use:   "bump <version>",
		Short: "print the next patch version",
		Args:  cobra.MaximumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			current := ""
			if len(args) > 0 {
				current = args[0]
			}

			fmt.Fprintln(cmd.OutOrStdout(), service.BumpPatch(current))
		},
	}
)

// readStack 从文件读取堆栈，路径为空或 "-" 时读取标准输入.
func readStack(cmd *cobra.Command, path string) (string, error) {
	if path == "" || path == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}

		return string(data), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read stack %s: %w", path, err)
	}

	return string(data), nil
}

// registerSourceMapCommands 注册离线 SourceMap 工具命令.
func registerSourceMapCommands() {
	sourcemapResolveCmd.Flags().StringSliceVarP(&resolveMapFiles, "map", "m", nil, "source map file, repeatable")
	sourcemapResolveCmd.Flags().StringVarP(&resolveStack, "stack", "s", "-", "stack trace file, - for stdin")
	sourcemapResolveCmd.Flags().StringVar(&resolveVersion, "version", "", "release version used for matching")

	sourcemapCmd.AddCommand(sourcemapResolveCmd)
	sourcemapCmd.AddCommand(sourcemapBumpCmd)

	rootCmd.AddCommand(sourcemapCmd)
}
