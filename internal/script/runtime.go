// Package script runs hybrid-app JavaScript against the bridge. Scripts see a
// global MobileMessaging object with the plugin's surface, plus setTimeout and
// setInterval. The VM is owned by a goja_nodejs event loop; native callbacks are
// queued to it.
package script

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/eventloop"
	"github.com/tinywideclouds/go-mobilemessaging-bridge/internal/events"
	"github.com/tinywideclouds/go-mobilemessaging-bridge/pkg/bridge"
)

// ErrClosed is returned for work submitted after Close.
var ErrClosed = errors.New("script runtime closed")

// Messaging is the bridge surface exposed to scripts.
type Messaging interface {
	Init(ctx context.Context, cfg bridge.Configuration, onSuccess bridge.SuccessFunc, onFailure bridge.FailureFunc)
	Register(ctx context.Context, event bridge.Event, listener events.Listener) (events.SubscriptionID, error)
	Unregister(ctx context.Context, event bridge.Event, id events.SubscriptionID) bool
	SyncUserData(ctx context.Context, data bridge.UserData, onSuccess func(bridge.UserData), onFailure bridge.FailureFunc)
	FetchUserData(ctx context.Context, onSuccess func(bridge.UserData), onFailure bridge.FailureFunc)
	MarkMessagesSeen(ctx context.Context, messageIDs []string, onSuccess func([]string), onFailure bridge.FailureFunc)
	DefaultMessageStorage() (bridge.DefaultStorage, bool)
}

type subscription struct {
	fn goja.Value
	id events.SubscriptionID
}

// Runtime is a JavaScript VM bound to a Messaging implementation.
type Runtime struct {
	loop      *eventloop.EventLoop
	messaging Messaging
	logger    *slog.Logger
	ctx       context.Context

	// vm and subs are only touched on the loop, apart from vm.Interrupt.
	vm   *goja.Runtime
	subs map[bridge.Event][]subscription

	closed    atomic.Bool
	closeOnce sync.Once
	done      chan struct{}
}

// New starts the event loop and installs the globals on it. ctx is carried into
// every bridge call made by scripts.
func New(ctx context.Context, messaging Messaging, logger *slog.Logger) *Runtime {
	r := &Runtime{
		loop:      eventloop.NewEventLoop(eventloop.EnableConsole(false)),
		messaging: messaging,
		logger:    logger.With("component", "ScriptRuntime"),
		ctx:       context.WithoutCancel(ctx),
		subs:      make(map[bridge.Event][]subscription),
		done:      make(chan struct{}),
	}
	r.loop.Start()

	ready := make(chan struct{})
	r.loop.RunOnLoop(func(vm *goja.Runtime) {
		r.vm = vm
		r.installConsole()
		r.installMessaging()
		close(ready)
	})
	<-ready
	return r
}

// RunScript evaluates src on the loop and waits for it to finish. Timers it
// starts keep running afterwards.
func (r *Runtime) RunScript(ctx context.Context, name, src string) error {
	return r.Do(ctx, func(vm *goja.Runtime) error {
		if _, err := vm.RunScript(name, src); err != nil {
			return fmt.Errorf("script %s: %w", name, err)
		}
		return nil
	})
}

// Do runs fn on the loop and waits for its result. It must not be called from
// the loop itself.
func (r *Runtime) Do(ctx context.Context, fn func(vm *goja.Runtime) error) error {
	if r.closed.Load() {
		return ErrClosed
	}
	result := make(chan error, 1)
	r.loop.RunOnLoop(func(vm *goja.Runtime) {
		result <- r.guard(func() error { return fn(vm) })
	})
	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-r.done:
		return ErrClosed
	}
}

// Close interrupts running script and stops the loop. Pending timers and
// queued callbacks never run. It must not be called from the loop.
func (r *Runtime) Close() {
	r.closeOnce.Do(func() {
		r.closed.Store(true)
		r.vm.Interrupt(ErrClosed)
		r.loop.Stop()
		close(r.done)
	})
}

// guard runs fn, turning a panic into an error so one bad job cannot take the
// loop down.
func (r *Runtime) guard(fn func() error) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("Script job panicked", "panic", rec)
			err = fmt.Errorf("script job panicked: %v", rec)
		}
	}()
	return fn()
}

// post queues j for the loop. It never blocks, so callbacks fired on the loop
// may post further work. Work posted after Close is dropped.
func (r *Runtime) post(j func(vm *goja.Runtime)) {
	if r.closed.Load() {
		return
	}
	r.loop.RunOnLoop(func(vm *goja.Runtime) {
		_ = r.guard(func() error {
			j(vm)
			return nil
		})
	})
}

// callback queues a call of fn with args. Exceptions thrown by the script are
// logged, never propagated.
func (r *Runtime) callback(fn goja.Value, args ...func(vm *goja.Runtime) goja.Value) {
	call, ok := goja.AssertFunction(fn)
	if !ok {
		return
	}
	r.post(func(vm *goja.Runtime) {
		values := make([]goja.Value, len(args))
		for i, a := range args {
			values[i] = a(vm)
		}
		if _, err := call(goja.Undefined(), values...); err != nil {
			r.logger.Error("Script callback threw", "err", err)
		}
	})
}

// await queues a call of fn and waits for it to return. It is used by storage
// operations, which are served on their own goroutines.
func (r *Runtime) await(ctx context.Context, fn goja.Value, args ...func(vm *goja.Runtime) goja.Value) error {
	call, ok := goja.AssertFunction(fn)
	if !ok {
		return fmt.Errorf("%w: not a function", bridge.ErrInvalidArguments)
	}
	return r.Do(ctx, func(vm *goja.Runtime) error {
		values := make([]goja.Value, len(args))
		for i, a := range args {
			values[i] = a(vm)
		}
		_, err := call(goja.Undefined(), values...)
		return err
	})
}

func (r *Runtime) installConsole() {
	console := r.vm.NewObject()
	logAt := func(level slog.Level) func(goja.FunctionCall) goja.Value {
		return func(call goja.FunctionCall) goja.Value {
			parts := make([]string, 0, len(call.Arguments))
			for _, a := range call.Arguments {
				parts = append(parts, a.String())
			}
			r.logger.Log(r.ctx, level, strings.Join(parts, " "), "source", "script")
			return goja.Undefined()
		}
	}
	_ = console.Set("log", logAt(slog.LevelInfo))
	_ = console.Set("info", logAt(slog.LevelInfo))
	_ = console.Set("debug", logAt(slog.LevelDebug))
	_ = console.Set("warn", logAt(slog.LevelWarn))
	_ = console.Set("error", logAt(slog.LevelError))
	_ = r.vm.Set("console", console)
}
