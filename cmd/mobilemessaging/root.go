package main

import (
	_ "embed"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/tinywideclouds/go-mobilemessaging-bridge/internal/logging"
	"github.com/tinywideclouds/go-mobilemessaging-bridge/mobilemessaging/config"
	"gopkg.in/yaml.v3"
)

//go:embed local.yaml
var configFile []byte

// rootOptions holds flags shared by every command.
type rootOptions struct {
	ConfigPath string
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "mobilemessaging",
		Short: "Host the mobile messaging bridge",
		Long: `Host the mobile messaging bridge against an in-process device.

The run command starts the bridge, optionally consumes push requests from
Pub/Sub and serves the diagnostics API. The push command sends a single
message through FCM or APNs.`,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "YAML config file (defaults to the embedded local.yaml)")

	cmd.AddCommand(newRunCommand(opts))
	cmd.AddCommand(newPushCommand(opts))
	cmd.AddCommand(newLogsCommand(opts))
	return cmd
}

// loadConfig reads the YAML config and applies environment overrides.
func loadConfig(opts *rootOptions, logger *slog.Logger) (*config.Config, error) {
	raw := configFile
	if opts.ConfigPath != "" {
		b, err := os.ReadFile(opts.ConfigPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", opts.ConfigPath, err)
		}
		raw = b
	}

	var yamlCfg config.YamlConfig
	if err := yaml.Unmarshal(raw, &yamlCfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal yaml config: %w", err)
	}
	baseCfg, err := config.NewConfigFromYaml(&yamlCfg, logger)
	if err != nil {
		return nil, err
	}
	return config.UpdateConfigWithEnvOverrides(baseCfg, logger)
}

// newLogs builds the logging shim the bridge and its diagnostics export use.
func newLogs(cfg config.LoggingConfig) (*logging.Logger, error) {
	opts := logging.DefaultOptions(cfg.DebugBuild, cfg.Directory)
	if len(cfg.Outputs) > 0 {
		out, err := logging.ParseOutputs(cfg.Outputs)
		if err != nil {
			return nil, err
		}
		opts.Output = out
	}
	if cfg.Level != "" {
		lv, err := logging.ParseLevel(cfg.Level)
		if err != nil {
			return nil, err
		}
		opts.Level = lv
	}
	return logging.New(opts)
}

// bootstrapLogger is used until the configured shim exists.
func bootstrapLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})).
		With("service", "go-mobilemessaging-bridge")
}
