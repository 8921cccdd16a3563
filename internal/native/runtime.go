// Package native is an in-process stand-in for the mobile messaging SDK. It
// implements bridge.Boundary so the bridge can be run end to end without a
// device: it keeps registration state, persists messages to a default store,
// emits events and calls back into custom storage targets.
package native

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v4"
	"github.com/tinywideclouds/go-mobilemessaging-bridge/pkg/bridge"
)

// Options configure a Runtime.
type Options struct {
	Platform bridge.Platform
	// ClientID is the user agent style string reported in log exports.
	ClientID string
	// DefaultStore backs defaultMessageStorage and, when no custom storage is
	// registered, persists received messages. Required.
	DefaultStore bridge.MessageStore
}

// Runtime serves boundary calls. Every continuation and event is delivered on a
// single delivery goroutine, in the order it was queued. Queueing never blocks,
// so callbacks running on that goroutine may issue further commands.
type Runtime struct {
	opts   Options
	logger *slog.Logger

	qmu      sync.Mutex
	queue    []func()
	draining bool
	wake     chan struct{}

	done      chan struct{}
	closed    atomic.Bool
	closeOnce sync.Once
	loopDone  chan struct{}

	mu        sync.Mutex
	cfg       *bridge.Configuration
	listeners map[bridge.Event][]bridge.Callbacks
	targets   map[bridge.StorageTarget]bridge.Callbacks
	userData  bridge.UserData
	install   installation

	// pending holds lookups sent to custom storage, keyed by request id.
	pending *xsync.Map[string, chan any]
}

// New starts the delivery goroutine.
func New(opts Options, logger *slog.Logger) (*Runtime, error) {
	if opts.DefaultStore == nil {
		return nil, fmt.Errorf("native runtime requires a default message store")
	}
	if opts.Platform == "" {
		opts.Platform = bridge.PlatformAndroid
	}
	if opts.ClientID == "" {
		opts.ClientID = fmt.Sprintf("MobileMessaging-Bridge (%s)", opts.Platform)
	}

	r := &Runtime{
		opts:      opts,
		logger:    logger.With("component", "NativeRuntime", "platform", opts.Platform),
		wake:      make(chan struct{}, 1),
		done:      make(chan struct{}),
		loopDone:  make(chan struct{}),
		listeners: make(map[bridge.Event][]bridge.Callbacks),
		targets:   make(map[bridge.StorageTarget]bridge.Callbacks),
		pending:   xsync.NewMap[string, chan any](),
	}
	go r.loop()
	return r, nil
}

var _ bridge.Boundary = (*Runtime)(nil)

// Exec implements bridge.Boundary. It never waits for the work itself.
func (r *Runtime) Exec(ctx context.Context, action bridge.Action, args []any, cb bridge.Callbacks) error {
	if r.closed.Load() {
		return bridge.ErrBoundaryUnavailable
	}

	switch action {
	case bridge.ActionInit:
		r.execInit(ctx, args, cb)
	case bridge.ActionRegister:
		r.execRegister(args, cb)
	case bridge.ActionUnregister:
		r.execUnregister(args, cb)
	case bridge.ActionSyncUserData:
		r.execSyncUserData(args, cb)
	case bridge.ActionFetchUserData:
		r.execFetchUserData(cb)
	case bridge.ActionMarkMessagesSeen:
		r.execMarkMessagesSeen(ctx, args, cb)
	case bridge.ActionMessageStorageRegister:
		r.execStorageRegister(args, cb)
	case bridge.ActionMessageStorageUnregister:
		r.execStorageUnregister(args, cb)
	case bridge.ActionDefaultStorageFind,
		bridge.ActionDefaultStorageFindAll,
		bridge.ActionDefaultStorageDelete,
		bridge.ActionDefaultStorageDeleteAll:
		r.execDefaultStorage(ctx, action, args, cb)
	case bridge.ActionMessageStorageFindResult, bridge.ActionMessageStorageFindAllResult:
		r.execStorageResult(action, args, cb)
	default:
		return fmt.Errorf("%w: %s", bridge.ErrUnknownAction, action)
	}
	return nil
}

// Close stops the custom storage, runs what is already queued and stops the
// delivery goroutine. Exec fails with bridge.ErrBoundaryUnavailable afterwards.
func (r *Runtime) Close() error {
	r.closeOnce.Do(func() {
		if stop, ok := r.target(bridge.TargetStop); ok {
			r.enqueue(func() { stop.OnSuccess(bridge.StorageRequest{}) })
		}
		r.closed.Store(true)

		// let already queued deliveries run, then stop
		r.qmu.Lock()
		r.draining = true
		r.qmu.Unlock()
		r.signal()
		<-r.loopDone
		close(r.done)
	})
	return nil
}

// Configuration is the configuration init was called with, if any.
func (r *Runtime) Configuration() (bridge.Configuration, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cfg == nil {
		return bridge.Configuration{}, false
	}
	return *r.cfg, true
}

func (r *Runtime) loop() {
	defer close(r.loopDone)
	for {
		<-r.wake
		for {
			r.qmu.Lock()
			if len(r.queue) == 0 {
				draining := r.draining
				r.qmu.Unlock()
				if draining {
					return
				}
				break
			}
			fn := r.queue[0]
			r.queue[0] = nil
			r.queue = r.queue[1:]
			r.qmu.Unlock()
			r.run(fn)
		}
	}
}

func (r *Runtime) run(fn func()) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("Bridge callback panicked", "panic", rec)
		}
	}()
	fn()
}

// enqueue hands fn to the delivery goroutine without waiting. After Close it
// is dropped.
func (r *Runtime) enqueue(fn func()) {
	r.qmu.Lock()
	if r.draining {
		r.qmu.Unlock()
		return
	}
	r.queue = append(r.queue, fn)
	r.qmu.Unlock()
	r.signal()
}

func (r *Runtime) signal() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

func (r *Runtime) succeed(cb bridge.Callbacks, payload any) {
	r.enqueue(func() {
		if cb.OnSuccess != nil {
			cb.OnSuccess(payload)
		}
	})
}

func (r *Runtime) fail(cb bridge.Callbacks, err error) {
	r.enqueue(func() {
		if cb.OnFailure != nil {
			cb.OnFailure(err)
		}
	})
}

func (r *Runtime) initialized() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cfg != nil
}

func (r *Runtime) execInit(ctx context.Context, args []any, cb bridge.Callbacks) {
	if len(args) == 0 {
		r.fail(cb, fmt.Errorf("%w: init expects a configuration", bridge.ErrInvalidArguments))
		return
	}
	cfg, err := bridge.DecodeConfiguration(args[0])
	if err != nil {
		r.fail(cb, err)
		return
	}
	if cfg.ApplicationCode == "" {
		r.fail(cb, bridge.ErrMissingApplicationCode)
		return
	}

	r.mu.Lock()
	r.cfg = &cfg
	r.mu.Unlock()

	r.logger.Info("Initialized", "application_code", cfg.ApplicationCode,
		"geofencing", cfg.GeofencingEnabled, "default_storage", cfg.DefaultMessageStorage)
	r.succeed(cb, nil)

	if start, ok := r.target(bridge.TargetStart); ok {
		r.enqueue(func() { start.OnSuccess(bridge.StorageRequest{}) })
	}
	r.ensureRegistration(ctx)
}

func (r *Runtime) execRegister(args []any, cb bridge.Callbacks) {
	event, err := eventArg(args)
	if err != nil {
		r.fail(cb, err)
		return
	}
	if !event.Known() {
		r.fail(cb, fmt.Errorf("%w: unknown event %s", bridge.ErrInvalidArguments, event))
		return
	}
	r.mu.Lock()
	r.listeners[event] = append(r.listeners[event], cb)
	r.mu.Unlock()
}

func (r *Runtime) execUnregister(args []any, cb bridge.Callbacks) {
	event, err := eventArg(args)
	if err != nil {
		r.fail(cb, err)
		return
	}
	r.mu.Lock()
	delete(r.listeners, event)
	r.mu.Unlock()
	r.succeed(cb, nil)
}

func (r *Runtime) execSyncUserData(args []any, cb bridge.Callbacks) {
	if !r.initialized() {
		r.fail(cb, bridge.ErrNotInitialized)
		return
	}
	var payload any
	if len(args) > 0 {
		payload = args[0]
	}
	data, err := bridge.DecodeUserData(payload)
	if err != nil {
		r.fail(cb, fmt.Errorf("%w: %w", bridge.ErrInvalidArguments, err))
		return
	}
	r.mu.Lock()
	r.userData = r.userData.Merge(data)
	merged := r.userData
	r.mu.Unlock()
	r.succeed(cb, merged)
}

func (r *Runtime) execFetchUserData(cb bridge.Callbacks) {
	if !r.initialized() {
		r.fail(cb, bridge.ErrNotInitialized)
		return
	}
	r.mu.Lock()
	data := r.userData
	r.mu.Unlock()
	r.succeed(cb, data)
}

func (r *Runtime) execMarkMessagesSeen(ctx context.Context, args []any, cb bridge.Callbacks) {
	if !r.initialized() {
		r.fail(cb, bridge.ErrNotInitialized)
		return
	}
	ids := make([]string, 0, len(args))
	for _, a := range args {
		id, ok := a.(string)
		if !ok {
			r.fail(cb, fmt.Errorf("%w: message ids must be strings, got %T", bridge.ErrInvalidArguments, a))
			return
		}
		ids = append(ids, id)
	}
	go func() {
		if err := r.opts.DefaultStore.MarkSeen(context.WithoutCancel(ctx), ids...); err != nil {
			r.fail(cb, err)
			return
		}
		r.succeed(cb, ids)
	}()
}

func (r *Runtime) execStorageRegister(args []any, cb bridge.Callbacks) {
	if len(args) == 0 {
		r.fail(cb, fmt.Errorf("%w: messageStorage_register expects a target", bridge.ErrInvalidArguments))
		return
	}
	name, _ := args[0].(string)
	target := bridge.StorageTarget(name)
	switch target {
	case bridge.TargetStart, bridge.TargetStop, bridge.TargetSave, bridge.TargetFind, bridge.TargetFindAll:
	default:
		r.fail(cb, fmt.Errorf("%w: unknown storage target %q", bridge.ErrInvalidArguments, name))
		return
	}
	r.mu.Lock()
	r.targets[target] = cb
	r.mu.Unlock()
}

func (r *Runtime) execStorageUnregister(args []any, cb bridge.Callbacks) {
	if len(args) == 0 {
		r.fail(cb, fmt.Errorf("%w: messageStorage_unregister expects a target", bridge.ErrInvalidArguments))
		return
	}
	name, _ := args[0].(string)
	r.mu.Lock()
	delete(r.targets, bridge.StorageTarget(name))
	r.mu.Unlock()
	r.succeed(cb, nil)
}

func (r *Runtime) target(t bridge.StorageTarget) (bridge.Callbacks, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cb, ok := r.targets[t]
	return cb, ok
}

// fire delivers payload to every channel registered for event.
func (r *Runtime) fire(event bridge.Event, payload any) {
	r.mu.Lock()
	channels := append([]bridge.Callbacks(nil), r.listeners[event]...)
	r.mu.Unlock()
	if len(channels) == 0 {
		return
	}
	r.enqueue(func() {
		for _, cb := range channels {
			if cb.OnSuccess != nil {
				cb.OnSuccess(payload)
			}
		}
	})
}

func eventArg(args []any) (bridge.Event, error) {
	if len(args) == 0 {
		return "", fmt.Errorf("%w: expected an event name", bridge.ErrInvalidArguments)
	}
	name, ok := args[0].(string)
	if !ok {
		if ev, isEvent := args[0].(bridge.Event); isEvent {
			return ev, nil
		}
		return "", fmt.Errorf("%w: event name must be a string, got %T", bridge.ErrInvalidArguments, args[0])
	}
	return bridge.Event(name), nil
}
