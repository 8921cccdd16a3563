package mobilemessaging_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tinywideclouds/go-mobilemessaging-bridge/internal/logging"
	"github.com/tinywideclouds/go-mobilemessaging-bridge/mobilemessaging"
	"github.com/tinywideclouds/go-mobilemessaging-bridge/mobilemessaging/config"
	"github.com/tinywideclouds/go-mobilemessaging-bridge/pkg/bridge"
)

func newShim(t *testing.T) *logging.Logger {
	t.Helper()
	shim, err := logging.New(logging.Options{Output: logging.OutputConsole, Level: logging.LevelWarning, Console: io.Discard})
	require.NoError(t, err)
	t.Cleanup(func() { _ = shim.Close() })
	return shim
}

func startHost(t *testing.T, cfg *config.Config) (*mobilemessaging.Host, func(*http.Request) *httptest.ResponseRecorder) {
	t.Helper()
	device := newNative(t, cfg.Bridge.Platform)
	host, err := mobilemessaging.NewHost(cfg, device, nil, newShim(t), newTestLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = host.Start(ctx) }()
	t.Cleanup(func() { _ = host.Shutdown(context.Background()) })

	require.Eventually(t, func() bool {
		_, ok := device.Configuration()
		return ok
	}, 2*time.Second, 5*time.Millisecond)

	serve := func(req *http.Request) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		host.Mux().ServeHTTP(w, req)
		return w
	}
	return host, serve
}

func TestHost_Diagnostics(t *testing.T) {
	cfg := &config.Config{
		ListenAddr: ":0",
		Bridge: config.BridgeConfig{
			ApplicationCode:       "app",
			Platform:              bridge.PlatformAndroid,
			DefaultMessageStorage: true,
		},
	}
	host, serve := startHost(t, cfg)

	_, ok := host.Bridge().DefaultMessageStorage()
	assert.True(t, ok)

	body, _ := json.Marshal(map[string]any{"messageId": "m-1", "title": "Hi", "body": "from the api"})
	w := serve(httptest.NewRequest(http.MethodPost, "/api/v1/messages", bytes.NewReader(body)))
	require.Equal(t, http.StatusAccepted, w.Code)

	w = serve(httptest.NewRequest(http.MethodGet, "/api/v1/messages/m-1", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var msg bridge.Message
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &msg))
	assert.Equal(t, "from the api", msg.Body)

	w = serve(httptest.NewRequest(http.MethodGet, "/api/v1/logs/export", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var bundle logging.Bundle
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &bundle))
	assert.NotEmpty(t, bundle.RegistrationID)
}

func TestHost_AppScript(t *testing.T) {
	dir := t.TempDir()
	scriptPath := filepath.Join(dir, "app.js")
	require.NoError(t, os.WriteFile(scriptPath, []byte(`
		var inbox = {};
		MobileMessaging.init({
			applicationCode: "scripted",
			messageStorage: {
				start: function() {},
				stop: function() {},
				save: function(messages) { messages.forEach(function(m) { inbox[m.messageId] = m; }); },
				find: function(id, callback) { callback(inbox[id] || null); },
				findAll: function(callback) { callback([]); }
			}
		}, function(err) { console.error(err); });
	`), 0o600))

	cfg := &config.Config{
		ListenAddr: ":0",
		ScriptPath: scriptPath,
		Bridge:     config.BridgeConfig{ApplicationCode: "ignored", Platform: bridge.PlatformIOS},
	}
	_, serve := startHost(t, cfg)

	body, _ := json.Marshal(map[string]any{"messageId": "s-1", "body": "kept by the script"})
	require.Equal(t, http.StatusAccepted, serve(httptest.NewRequest(http.MethodPost, "/api/v1/messages", bytes.NewReader(body))).Code)

	require.Eventually(t, func() bool {
		w := serve(httptest.NewRequest(http.MethodGet, "/api/v1/messages/s-1", nil))
		return w.Code == http.StatusOK && bytes.Contains(w.Body.Bytes(), []byte("kept by the script"))
	}, 2*time.Second, 10*time.Millisecond)
}

func TestNewHost_BadScriptPath(t *testing.T) {
	cfg := &config.Config{
		ListenAddr: ":0",
		ScriptPath: filepath.Join(t.TempDir(), "missing.js"),
		Bridge:     config.BridgeConfig{ApplicationCode: "app", Platform: bridge.PlatformAndroid},
	}
	_, err := mobilemessaging.NewHost(cfg, newNative(t, bridge.PlatformAndroid), nil, newShim(t), newTestLogger())
	assert.Error(t, err)
}
