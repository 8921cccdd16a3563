// Package mobilemessaging is the scripting-facing surface of the bridge. A
// Bridge validates and dispatches commands to the native layer, keeps the
// event listeners and plugs a custom message storage in during init.
package mobilemessaging

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/tinywideclouds/go-mobilemessaging-bridge/internal/dispatch"
	"github.com/tinywideclouds/go-mobilemessaging-bridge/internal/events"
	"github.com/tinywideclouds/go-mobilemessaging-bridge/internal/storage"
	"github.com/tinywideclouds/go-mobilemessaging-bridge/pkg/bridge"
)

type (
	// Listener receives the payload of one native event.
	Listener = events.Listener
	// SubscriptionID identifies a listener for Unregister.
	SubscriptionID = events.SubscriptionID
)

// Bridge is the consumer's handle on the native messaging layer.
type Bridge struct {
	commands *dispatch.Dispatcher
	registry *events.Registry
	logger   *slog.Logger

	// mu orders init and the opening and closing of native event channels.
	mu sync.Mutex
	// cfg is set once the native layer has accepted init; initializing covers
	// the time the command is in flight.
	cfg          *bridge.Configuration
	initializing bool
	adapter      *storage.Adapter
	defStor      *storage.DefaultStorage
}

// New creates a Bridge over boundary. A nil boundary gives a bridge whose
// commands all fail with bridge.ErrBoundaryUnavailable.
func New(boundary bridge.Boundary, logger *slog.Logger) *Bridge {
	commands := dispatch.New(boundary, logger)
	return &Bridge{
		commands: commands,
		registry: events.NewRegistry(logger),
		logger:   logger.With("component", "Bridge"),
		defStor:  storage.NewDefaultStorage(commands),
	}
}

// Init validates cfg and starts the messaging session. Validation failures are
// reported through onFailure before anything crosses the boundary. A custom
// storage is registered before the init command is sent; the storage itself
// never crosses. The bridge counts as initialized only once the native layer
// accepts init: after a native failure the storage is detached again and Init
// may be called anew.
func (b *Bridge) Init(ctx context.Context, cfg bridge.Configuration, onSuccess bridge.SuccessFunc, onFailure bridge.FailureFunc) {
	fail := func(err error) {
		b.logger.Error("Init rejected", "err", err)
		if onFailure != nil {
			onFailure(err)
		}
	}

	if err := cfg.Validate(); err != nil {
		fail(err)
		return
	}

	b.mu.Lock()
	if b.cfg != nil || b.initializing {
		b.mu.Unlock()
		fail(bridge.ErrAlreadyInitialized)
		return
	}
	var adapter *storage.Adapter
	if cfg.HasCustomStorage() {
		adapter = storage.NewAdapter(b.commands, cfg.MessageStorage, b.logger)
		if err := adapter.Register(ctx); err != nil {
			b.mu.Unlock()
			fail(err)
			return
		}
	}
	b.initializing = true
	b.adapter = adapter
	b.mu.Unlock()

	held := cfg
	wire := cfg
	wire.MessageStorage = nil
	b.commands.Dispatch(ctx, bridge.ActionInit, []any{wire},
		func(payload any) {
			b.mu.Lock()
			b.initializing = false
			b.cfg = &held
			b.mu.Unlock()
			if onSuccess != nil {
				onSuccess(payload)
			}
		},
		func(err error) {
			b.mu.Lock()
			b.initializing = false
			b.adapter = nil
			b.mu.Unlock()
			if adapter != nil {
				adapter.Unregister(ctx)
			}
			b.logger.Warn("Native init failed", "err", err)
			if onFailure != nil {
				onFailure(err)
			}
		},
	)
}

// Register adds listener to event. The first listener of a known event opens
// the native channel for it; events the native layer does not know are kept
// locally and never fire.
func (b *Bridge) Register(ctx context.Context, event bridge.Event, listener Listener) (SubscriptionID, error) {
	if listener == nil {
		return 0, fmt.Errorf("%w: nil listener for %s", bridge.ErrInvalidArguments, event)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	id, first := b.registry.Subscribe(event, listener)
	if !first || !event.Known() {
		return id, nil
	}
	err := b.commands.Attach(ctx, bridge.ActionRegister, []any{string(event)}, func(payload any) {
		b.registry.Fire(event, payload)
	})
	if err != nil {
		b.registry.Unsubscribe(event, id)
		return 0, err
	}
	b.logger.Debug("Native event channel opened", "event", event)
	return id, nil
}

// Unregister removes a listener. Removing one that is not registered is a
// no-op and reports false. When the last listener of a known event leaves, the
// native channel is closed.
func (b *Bridge) Unregister(ctx context.Context, event bridge.Event, id SubscriptionID) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	removed, last := b.registry.Unsubscribe(event, id)
	if !last || !event.Known() {
		return removed
	}
	b.commands.Dispatch(ctx, bridge.ActionUnregister, []any{string(event)},
		func(any) { b.logger.Debug("Native event channel closed", "event", event) },
		func(err error) { b.logger.Warn("Failed to close native event channel", "event", event, "err", err) },
	)
	return removed
}

// Listeners reports how many listeners event has.
func (b *Bridge) Listeners(event bridge.Event) int {
	return b.registry.Count(event)
}

// SyncUserData sends data to the backend; onSuccess receives the merged profile.
func (b *Bridge) SyncUserData(ctx context.Context, data bridge.UserData, onSuccess func(bridge.UserData), onFailure bridge.FailureFunc) {
	b.commands.Dispatch(ctx, bridge.ActionSyncUserData, []any{data}, userDataReply(onSuccess, onFailure), onFailure)
}

// FetchUserData reads the profile from the backend.
func (b *Bridge) FetchUserData(ctx context.Context, onSuccess func(bridge.UserData), onFailure bridge.FailureFunc) {
	b.commands.Dispatch(ctx, bridge.ActionFetchUserData, nil, userDataReply(onSuccess, onFailure), onFailure)
}

// MarkMessagesSeen marks the given messages as seen. The ids are the argument
// list itself, not a single list argument.
func (b *Bridge) MarkMessagesSeen(ctx context.Context, messageIDs []string, onSuccess func([]string), onFailure bridge.FailureFunc) {
	args := make([]any, len(messageIDs))
	for i, id := range messageIDs {
		args[i] = id
	}
	b.commands.Dispatch(ctx, bridge.ActionMarkMessagesSeen, args,
		func(payload any) {
			if onSuccess != nil {
				onSuccess(stringList(payload, messageIDs))
			}
		},
		onFailure,
	)
}

// DefaultMessageStorage returns the built-in storage and true when init enabled
// it. Otherwise it reports false; that is not an error.
func (b *Bridge) DefaultMessageStorage() (bridge.DefaultStorage, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cfg == nil || !b.cfg.DefaultMessageStorage {
		return nil, false
	}
	return b.defStor, true
}

// InFlight reports how many commands are waiting for the native layer.
func (b *Bridge) InFlight() int64 {
	return b.commands.InFlight()
}

// Wait blocks until the custom storage has returned from every request it was
// handed. Call it after the native layer has stopped.
func (b *Bridge) Wait() {
	b.mu.Lock()
	adapter := b.adapter
	b.mu.Unlock()
	if adapter != nil {
		adapter.Wait()
	}
}

func userDataReply(onSuccess func(bridge.UserData), onFailure bridge.FailureFunc) bridge.SuccessFunc {
	return func(payload any) {
		data, err := bridge.DecodeUserData(payload)
		if err != nil {
			if onFailure != nil {
				onFailure(err)
			}
			return
		}
		if onSuccess != nil {
			onSuccess(data)
		}
	}
}

// stringList reads the ids echoed by the native layer, falling back to the
// ids that were sent.
func stringList(payload any, fallback []string) []string {
	switch v := payload.(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return fallback
}
