package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tinywideclouds/go-mobilemessaging-bridge/internal/logging"
	"github.com/tinywideclouds/go-mobilemessaging-bridge/mobilemessaging/config"
	"github.com/tinywideclouds/go-mobilemessaging-bridge/pkg/bridge"
)

func TestLoadConfig(t *testing.T) {
	logger := bootstrapLogger()

	t.Run("Success - embedded local.yaml", func(t *testing.T) {
		cfg, err := loadConfig(&rootOptions{}, logger)
		require.NoError(t, err)
		assert.Equal(t, "local-application-code", cfg.Bridge.ApplicationCode)
		assert.Equal(t, bridge.PlatformAndroid, cfg.Bridge.Platform)
		assert.True(t, cfg.Bridge.DefaultMessageStorage)
		assert.False(t, cfg.IngestionEnabled())
	})

	t.Run("Success - env override wins over file", func(t *testing.T) {
		t.Setenv("MM_APPLICATION_CODE", "from-env")
		cfg, err := loadConfig(&rootOptions{}, logger)
		require.NoError(t, err)
		assert.Equal(t, "from-env", cfg.Bridge.ApplicationCode)
	})

	t.Run("Success - explicit config file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "cfg.yaml")
		require.NoError(t, os.WriteFile(path, []byte("bridge:\n  application_code: file-app\n  platform: ios\n"), 0o600))
		cfg, err := loadConfig(&rootOptions{ConfigPath: path}, logger)
		require.NoError(t, err)
		assert.Equal(t, "file-app", cfg.Bridge.ApplicationCode)
		assert.Equal(t, bridge.PlatformIOS, cfg.Bridge.Platform)
	})

	t.Run("Failure - missing config file", func(t *testing.T) {
		_, err := loadConfig(&rootOptions{ConfigPath: filepath.Join(t.TempDir(), "nope.yaml")}, logger)
		assert.Error(t, err)
	})
}

func TestNewLogs(t *testing.T) {
	t.Run("Success - outputs and level from config", func(t *testing.T) {
		logs, err := newLogs(config.LoggingConfig{Outputs: []string{"file"}, Level: "debug", Directory: t.TempDir()})
		require.NoError(t, err)
		t.Cleanup(func() { _ = logs.Close() })
		assert.Equal(t, logging.OutputFile, logs.Output())
		assert.Equal(t, logging.LevelDebug, logs.Level())
		assert.NotEmpty(t, logs.LogFilePath())
	})

	t.Run("Failure - unknown output", func(t *testing.T) {
		_, err := newLogs(config.LoggingConfig{Outputs: []string{"pager"}})
		assert.Error(t, err)
	})
}

func TestNewSender_UnknownTransport(t *testing.T) {
	_, err := newSender(context.Background(), "carrier-pigeon", &config.Config{}, bootstrapLogger())
	assert.ErrorContains(t, err, "unknown transport")
}

func TestRootCommand_Subcommands(t *testing.T) {
	root := newRootCommand()
	for _, name := range []string{"run", "push", "logs"} {
		cmd, _, err := root.Find([]string{name})
		require.NoError(t, err)
		assert.Equal(t, name, cmd.Name())
	}
}

func TestLogsCommand(t *testing.T) {
	t.Setenv("MM_LOG_OUTPUTS", "file")
	t.Setenv("MM_LOG_DIR", t.TempDir())

	root := newRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"logs"})
	require.NoError(t, root.Execute())

	assert.Contains(t, out.String(), "MobileMessaging-Bridge (android)")
	assert.Contains(t, out.String(), "file://")
}
