package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/absmach/fedcoord/pkg/events"
	"github.com/absmach/fedcoord/pkg/mqtt"
	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

// NewWatchCmd follows round events published by the coordinator.
func NewWatchCmd() *cobra.Command {
	cfg := mqtt.Config{
		URL:     "tcp://localhost:1883",
		QoS:     1,
		Timeout: 30 * time.Second,
	}
	var domainID, channelID string

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow round events",
		Long:  `Subscribe to the coordinator's MQTT topics and print round and evaluation events as they arrive.`,
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) != 0 {
				logUsageCmd(*cmd, cmd.Use)

				return
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			cfg.ClientID = "fedcoord-cli-" + uuid.NewString()
			logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: slog.LevelWarn}))
			ps, err := mqtt.NewPubSub(cfg, logger)
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}

			topic := events.NewTopicBuilder(domainID, channelID).AllTopic()
			if err := ps.Subscribe(ctx, topic, func(topic string, msg map[string]any) error {
				fmt.Fprintln(cmd.OutOrStdout(), color.CyanString(topic))
				logJSONCmd(*cmd, msg)

				return nil
			}); err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logSuccessCmd(*cmd, "Watching "+topic)

			<-ctx.Done()

			disconnectCtx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
			defer cancel()
			if err := ps.Unsubscribe(disconnectCtx, topic); err != nil {
				logErrorCmd(*cmd, err)
			}
			if err := ps.Disconnect(disconnectCtx); err != nil {
				logErrorCmd(*cmd, err)
			}
		},
	}

	cmd.Flags().StringVar(&cfg.URL, "broker", cfg.URL, "MQTT broker URL")
	cmd.Flags().StringVar(&cfg.Username, "username", "", "MQTT username")
	cmd.Flags().StringVar(&cfg.Password, "password", "", "MQTT password")
	cmd.Flags().StringVar(&domainID, "domain", "", "Domain ID of the coordinator topics")
	cmd.Flags().StringVar(&channelID, "channel", "", "Channel ID of the coordinator topics")

	return cmd
}
