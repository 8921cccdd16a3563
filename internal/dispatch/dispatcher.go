// Package dispatch sends named commands across the native boundary and routes
// the single asynchronous result of each to exactly one continuation.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/tinywideclouds/go-mobilemessaging-bridge/pkg/bridge"
)

// Dispatcher is the command path into the native layer. It holds no state
// besides a counter of commands still waiting for their result.
type Dispatcher struct {
	boundary bridge.Boundary
	logger   *slog.Logger
	inflight atomic.Int64
}

// New creates a Dispatcher. A nil boundary is allowed: every command then fails
// immediately with bridge.ErrBoundaryUnavailable.
func New(boundary bridge.Boundary, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		boundary: boundary,
		logger:   logger.With("component", "Dispatcher"),
	}
}

// Dispatch sends action with args. Exactly one of onSuccess and onFailure is
// invoked exactly once; a native layer answering twice, or answering both ways,
// is logged and ignored. Either continuation may be nil.
func (d *Dispatcher) Dispatch(ctx context.Context, action bridge.Action, args []any, onSuccess bridge.SuccessFunc, onFailure bridge.FailureFunc) {
	var once sync.Once
	d.inflight.Add(1)

	settle := func(fire func()) {
		fired := false
		once.Do(func() {
			fired = true
			d.inflight.Add(-1)
			fire()
		})
		if !fired {
			d.logger.Warn("Dropped duplicate result from native layer", "action", action)
		}
	}

	cb := bridge.Callbacks{
		OnSuccess: func(payload any) {
			settle(func() {
				if onSuccess != nil {
					onSuccess(payload)
				}
			})
		},
		OnFailure: func(err error) {
			settle(func() {
				d.logger.Debug("Command failed", "action", action, "err", err)
				if onFailure != nil {
					onFailure(err)
				}
			})
		},
	}

	if d.boundary == nil {
		cb.OnFailure(fmt.Errorf("%s: %w", action, bridge.ErrBoundaryUnavailable))
		return
	}
	if err := d.boundary.Exec(ctx, action, args, cb); err != nil {
		// Exec refused the call, so no continuation is pending on the native side.
		cb.OnFailure(unavailable(action, err))
	}
}

// Attach opens a channel the native layer answers any number of times, as for
// register and messageStorage_register. onEach receives every payload; failures
// after the channel is open are logged. The returned error reports a channel that
// could not be opened.
func (d *Dispatcher) Attach(ctx context.Context, action bridge.Action, args []any, onEach bridge.SuccessFunc) error {
	if d.boundary == nil {
		return fmt.Errorf("%s: %w", action, bridge.ErrBoundaryUnavailable)
	}
	cb := bridge.Callbacks{
		OnSuccess: func(payload any) {
			if onEach != nil {
				onEach(payload)
			}
		},
		OnFailure: func(err error) {
			d.logger.Warn("Native channel reported failure", "action", action, "args", args, "err", err)
		},
	}
	if err := d.boundary.Exec(ctx, action, args, cb); err != nil {
		return unavailable(action, err)
	}
	return nil
}

// InFlight reports how many dispatched commands have not been answered yet.
func (d *Dispatcher) InFlight() int64 {
	return d.inflight.Load()
}

func unavailable(action bridge.Action, err error) error {
	if errors.Is(err, bridge.ErrBoundaryUnavailable) || errors.Is(err, bridge.ErrUnknownAction) {
		return fmt.Errorf("%s: %w", action, err)
	}
	return fmt.Errorf("%s: %w: %w", action, bridge.ErrBoundaryUnavailable, err)
}
