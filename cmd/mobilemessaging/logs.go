package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/tinywideclouds/go-mobilemessaging-bridge/internal/logging"
	"github.com/tinywideclouds/go-mobilemessaging-bridge/internal/native"
	"github.com/tinywideclouds/go-mobilemessaging-bridge/internal/storage/memory"
)

func newLogsCommand(rootOpts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "logs",
		Short: "Print the log export bundle",
		Long: `Print the log export bundle for the configured logging outputs: the
client identifier and, when file output is active, the current log file.
A running host serves the same bundle on GET /api/v1/logs/export.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(rootOpts, bootstrapLogger())
			if err != nil {
				return fmt.Errorf("config failed: %w", err)
			}
			logs, err := newLogs(cfg.Logging)
			if err != nil {
				return fmt.Errorf("logging setup failed: %w", err)
			}
			defer logs.Close()

			device, err := native.New(native.Options{Platform: cfg.Bridge.Platform, DefaultStore: memory.NewMessageStore()}, logs.Slog())
			if err != nil {
				return err
			}
			defer device.Close()

			return logs.SendLogs(cmd.Context(), device, logging.WriterShareTarget{W: cmd.OutOrStdout()})
		},
	}
}
