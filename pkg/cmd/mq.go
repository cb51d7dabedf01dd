package cmd

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/yeisme/sourcelens/pkg/configs"
	mq "github.com/yeisme/sourcelens/pkg/internal/storage/mq"
	"github.com/yeisme/sourcelens/pkg/queue"
)

var (
	mqCmd = &cobra.Command{
		Use:     "mq",
		Short:   "Message queue related commands",
		Aliases: []string{"messagequeue"},
	}

	mqTopicsCmd = &cobra.Command{
		Use:   "topics",
		Short: "list domain event topics",
		Run: func(cmd *cobra.Command, args []string) {
			groups := []struct {
				name   string
				topics []string
			}{
				{"sourcemap", queue.SourceMapTopics},
				{"version", queue.VersionTopics},
				{"report", queue.ReportTopics},
			}

			for _, g := range groups {
				fmt.Fprintln(cmd.OutOrStdout(), g.name+":")
				for _, t := range g.topics {
					fmt.Fprintln(cmd.OutOrStdout(), "   - "+t)
				}
			}
		},
	}

	// 订阅事件并逐行打印，调试事件消费方时使用.
	mqTailCmd = &cobra.Command{
		Use:   "tail [topic...]",
		Short: "print domain events as they are published",
		RunE: func(cmd *cobra.Command, args []string) error {
			topics := args
			if len(topics) == 0 {
				topics = append(append(append([]string{}, queue.SourceMapTopics...), queue.VersionTopics...), queue.ReportTopics...)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			cfg := configs.GetConfig()

			client, err := mq.New(ctx, &cfg.MQ, false)
			if err != nil {
				return err
			}
			defer client.Close()

			for _, topic := range topics {
				msgs, err := client.Subscribe(ctx, topic)
				if err != nil {
					return fmt.Errorf("subscribe %s: %w", topic, err)
				}

				go func() {
					for msg := range msgs {
						fmt.Fprintf(cmd.OutOrStdout(), "%s %s %s\n", topic, msg.UUID, msg.Payload)
						msg.Ack()
					}
				}()
			}

			<-ctx.Done()

			return nil
		},
	}
)

func registerMQCommands() {
	rootCmd.AddCommand(mqCmd)
	mqCmd.AddCommand(
		backendsCmd("mq", mq.RegisteredTypes, func(c *configs.AppConfig) configs.MQType { return c.MQ.Type }),
		mqTopicsCmd,
		mqTailCmd,
	)
}
