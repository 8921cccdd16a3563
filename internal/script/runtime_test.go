package script_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/dop251/goja"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tinywideclouds/go-mobilemessaging-bridge/internal/native"
	"github.com/tinywideclouds/go-mobilemessaging-bridge/internal/script"
	"github.com/tinywideclouds/go-mobilemessaging-bridge/internal/storage/memory"
	"github.com/tinywideclouds/go-mobilemessaging-bridge/mobilemessaging"
	"github.com/tinywideclouds/go-mobilemessaging-bridge/pkg/bridge"
)

type harness struct {
	device  *native.Runtime
	js      *script.Runtime
	reports chan any
}

func newHarness(t *testing.T, platform bridge.Platform) *harness {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx := context.Background()

	device, err := native.New(native.Options{Platform: platform, DefaultStore: memory.NewMessageStore()}, logger)
	require.NoError(t, err)
	js := script.New(ctx, mobilemessaging.New(device, logger), logger)
	t.Cleanup(func() {
		_ = device.Close()
		js.Close()
	})

	h := &harness{device: device, js: js, reports: make(chan any, 32)}
	require.NoError(t, js.Do(ctx, func(vm *goja.Runtime) error {
		return vm.Set("report", func(call goja.FunctionCall) goja.Value {
			h.reports <- call.Argument(0).Export()
			return goja.Undefined()
		})
	}))
	return h
}

func (h *harness) run(t *testing.T, src string) {
	t.Helper()
	require.NoError(t, h.js.RunScript(context.Background(), t.Name()+".js", src))
}

func (h *harness) next(t *testing.T) any {
	t.Helper()
	select {
	case v := <-h.reports:
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("script never reported")
		return nil
	}
}

func (h *harness) none(t *testing.T) {
	t.Helper()
	select {
	case v := <-h.reports:
		t.Fatalf("unexpected report %v", v)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestScript_Init(t *testing.T) {
	t.Run("Failure - missing application code", func(t *testing.T) {
		h := newHarness(t, bridge.PlatformAndroid)
		h.run(t, `MobileMessaging.init({}, function(err) { report(err); });`)
		assert.Equal(t, "no application code provided", h.next(t))
		_, initialized := h.device.Configuration()
		assert.False(t, initialized)
	})

	t.Run("Failure - storage without find", func(t *testing.T) {
		h := newHarness(t, bridge.PlatformAndroid)
		h.run(t, `
			MobileMessaging.init({
				applicationCode: "app",
				messageStorage: {
					start: function() {}, stop: function() {}, save: function() {},
					findAll: function(cb) { cb([]); }
				}
			}, function(err) { report(err); });
		`)
		assert.Contains(t, h.next(t), "missing messageStorage.find function definition")
	})

	t.Run("Success - configuration reaches the native layer", func(t *testing.T) {
		h := newHarness(t, bridge.PlatformIOS)
		h.run(t, `
			MobileMessaging.init({
				applicationCode: "app",
				geofencingEnabled: true,
				ios: { notificationTypes: ["alert", "sound"] }
			}, function(err) { report(err); });
		`)
		require.Eventually(t, func() bool {
			_, ok := h.device.Configuration()
			return ok
		}, 2*time.Second, 5*time.Millisecond)

		cfg, _ := h.device.Configuration()
		assert.True(t, cfg.GeofencingEnabled)
		require.NotNil(t, cfg.IOS)
		assert.Equal(t, []string{"alert", "sound"}, cfg.IOS.NotificationTypes)
		h.none(t)
	})
}

func TestScript_Events(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, bridge.PlatformAndroid)
	h.run(t, `
		var first = function(m) { report("first:" + m.body); };
		var second = function(m) { report("second:" + m.body); };
		MobileMessaging.register("messageReceived", first);
		MobileMessaging.register("messageReceived", second);
		MobileMessaging.init({ applicationCode: "app" }, function(err) { report(err); });
	`)
	require.Eventually(t, func() bool {
		_, ok := h.device.Configuration()
		return ok
	}, 2*time.Second, 5*time.Millisecond)

	_, err := h.device.Deliver(ctx, bridge.Message{Body: "one"})
	require.NoError(t, err)
	assert.Equal(t, "first:one", h.next(t))
	assert.Equal(t, "second:one", h.next(t))

	h.run(t, `
		MobileMessaging.unregister("messageReceived", function() {});
		MobileMessaging.unregister("messageReceived", first);
	`)
	_, err = h.device.Deliver(ctx, bridge.Message{Body: "two"})
	require.NoError(t, err)
	assert.Equal(t, "second:two", h.next(t))
	h.none(t)
}

func TestScript_CustomStorage(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, bridge.PlatformAndroid)
	h.run(t, `
		var kept = {};
		MobileMessaging.init({
			applicationCode: "app",
			messageStorage: {
				start: function() { report("started"); },
				stop: function() {},
				save: function(messages) {
					messages.forEach(function(m) { kept[m.messageId] = m; });
				},
				find: function(id, callback) { callback(kept[id] || null); },
				findAll: function(callback) {
					callback(Object.keys(kept).map(function(k) { return kept[k]; }));
				}
			}
		}, function(err) { report(err); });
	`)
	assert.Equal(t, "started", h.next(t))

	delivered, err := h.device.Deliver(ctx, bridge.Message{MessageID: "m-1", Body: "kept in script"})
	require.NoError(t, err)

	var found *bridge.Message
	require.Eventually(t, func() bool {
		found, err = h.device.RequestStoredMessage(ctx, delivered.MessageID)
		return err == nil && found != nil
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "kept in script", found.Body)

	all, err := h.device.RequestAllStoredMessages(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestScript_UserDataAndDefaultStorage(t *testing.T) {
	ctx := context.Background()

	t.Run("Success - default storage is undefined unless enabled", func(t *testing.T) {
		h := newHarness(t, bridge.PlatformAndroid)
		h.run(t, `
			MobileMessaging.init({ applicationCode: "app" }, function(err) { report(err); });
			report(MobileMessaging.defaultMessageStorage() === undefined);
		`)
		assert.Equal(t, true, h.next(t))
	})

	t.Run("Success - default storage and user data", func(t *testing.T) {
		h := newHarness(t, bridge.PlatformAndroid)
		h.run(t, `MobileMessaging.init({ applicationCode: "app", defaultMessageStorage: true }, function(err) { report(err); });`)
		require.Eventually(t, func() bool {
			_, ok := h.device.Configuration()
			return ok
		}, 2*time.Second, 5*time.Millisecond)

		_, err := h.device.Deliver(ctx, bridge.Message{MessageID: "m-7", Body: "stored natively"})
		require.NoError(t, err)

		h.run(t, `
			MobileMessaging.defaultMessageStorage().find("m-7", function(m) { report(m.body); });
			MobileMessaging.syncUserData({ firstName: "Ada" }, function(u) { report(u.firstName); }, function(e) { report(e); });
			MobileMessaging.markMessagesSeen(["m-7"], function(ids) { report(ids[0]); }, function(e) { report(e); });
		`)
		got := []any{h.next(t), h.next(t), h.next(t)}
		assert.ElementsMatch(t, []any{"stored natively", "Ada", "m-7"}, got)
	})
}

func TestScript_Close(t *testing.T) {
	h := newHarness(t, bridge.PlatformAndroid)
	h.js.Close()
	err := h.js.RunScript(context.Background(), "late.js", `report(1);`)
	assert.ErrorIs(t, err, script.ErrClosed)
}

func TestScript_Timers(t *testing.T) {
	t.Run("Success - setTimeout fires after the script returns", func(t *testing.T) {
		h := newHarness(t, bridge.PlatformAndroid)
		h.run(t, `
			setTimeout(function() { report("later"); }, 10);
			report("now");
		`)
		assert.Equal(t, "now", h.next(t))
		assert.Equal(t, "later", h.next(t))
	})

	t.Run("Success - cleared timers never fire", func(t *testing.T) {
		h := newHarness(t, bridge.PlatformAndroid)
		h.run(t, `
			var id = setTimeout(function() { report("cancelled"); }, 10);
			clearTimeout(id);
		`)
		h.none(t)
	})

	t.Run("Success - listener schedules work from a delivery", func(t *testing.T) {
		h := newHarness(t, bridge.PlatformAndroid)
		h.run(t, `
			MobileMessaging.init({applicationCode: "app"}, function(err) { report(err); });
			MobileMessaging.register("messageReceived", function(msg) {
				setTimeout(function() { report(msg.body); }, 5);
			});
		`)
		require.Eventually(t, func() bool {
			_, ok := h.device.Configuration()
			return ok
		}, 2*time.Second, 5*time.Millisecond)

		_, err := h.device.Deliver(context.Background(), bridge.Message{Body: "deferred"})
		require.NoError(t, err)
		assert.Equal(t, "deferred", h.next(t))
	})
}

func TestScript_CloseInterruptsRunningScript(t *testing.T) {
	h := newHarness(t, bridge.PlatformAndroid)

	errs := make(chan error, 1)
	go func() { errs <- h.js.RunScript(context.Background(), "spin.js", `report("spinning"); for (;;) {}`) }()
	assert.Equal(t, "spinning", h.next(t))

	h.js.Close()
	select {
	case err := <-errs:
		assert.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("running script was not interrupted")
	}
}
