package cmd

import (
	"fmt"
	"slices"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/spf13/cobra"

	"github.com/yeisme/sourcelens/pkg/configs"
)

const redacted = "******"

// 输出配置时隐藏的键片段.
var secretKeyParts = []string{"password", "secret", "token", "nkey", "jwt"}

var (
	configCmd = &cobra.Command{
		Use:     "config",
		Short:   "inspect the effective configuration",
		Aliases: []string{"cfg"},
	}

	configPathCmd = &cobra.Command{
		Use:   "path",
		Short: "print the config file in use",
		Run: func(cmd *cobra.Command, args []string) {
			file := configs.GetViper().ConfigFileUsed()
			if file == "" {
				file = "(none, defaults and " + configs.EnvPrefix + "_* environment only)"
			}

			fmt.Fprintln(cmd.OutOrStdout(), file)
		},
	}

	showSecrets bool

	// 合并默认值、配置文件与环境变量后的结果，敏感字段默认打码.
	configShowCmd = &cobra.Command{
		Use:     "show [section]",
		Short:   "print the effective config as JSON",
		Aliases: []string{"debug"},
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v := configs.GetViper()
			if debug {
				v.Debug()
			}

			var settings any = v.AllSettings()
			if len(args) == 1 {
				settings = v.Get(args[0])
				if settings == nil {
					return fmt.Errorf("unknown config section %q", args[0])
				}
			}

			if !showSecrets {
				settings = redact(settings)
			}

			b, err := sonic.ConfigStd.MarshalIndent(settings, "", "  ")
			if err != nil {
				return fmt.Errorf("encode config: %w", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), string(b))

			return nil
		},
	}

	// 加载本身已经做过校验，这里只负责给出明确的结论.
	configValidateCmd = &cobra.Command{
		Use:   "validate",
		Short: "check that the config loads and passes validation",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "config ok")
		},
	}
)

// redact 递归替换敏感键的值.
func redact(v any) any {
	m, ok := v.(map[string]any)
	if !ok {
		return v
	}

	out := make(map[string]any, len(m))

	for k, val := range m {
		lk := strings.ToLower(k)
		if slices.ContainsFunc(secretKeyParts, func(p string) bool { return strings.Contains(lk, p) }) {
			out[k] = redacted
			continue
		}

		out[k] = redact(val)
	}

	return out
}

func registerConfigsCommands() {
	configShowCmd.Flags().BoolVar(&showSecrets, "show-secrets", false, "print passwords and tokens in clear text")

	configCmd.AddCommand(configPathCmd, configShowCmd, configValidateCmd)
	rootCmd.AddCommand(configCmd)
}
