package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"sitegrade/internal/daemon"
	"sitegrade/internal/notifications"
)

func newTestNotifyCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "test-notify",
		Short: "Send a test notification to the configured channels",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if cfg.Notifications.NtfyTopic == "" && cfg.Notifications.DiscordChannel == "" {
				fmt.Fprintln(cmd.OutOrStdout(), "No notification channels configured")
				return nil
			}
			return ctx.withRuntime(func(rt *daemon.Runtime) error {
				if err := rt.Notifier.Publish(cmd.Context(), notifications.EventTest, nil); err != nil {
					return fmt.Errorf("send test notification: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Test notification sent")
				return nil
			})
		},
	}
}
