package native

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/tinywideclouds/go-mobilemessaging-bridge/pkg/bridge"
)

// ErrNoStorage is returned by lookups when neither custom nor default storage
// is active.
var ErrNoStorage = errors.New("no message storage configured")

func (r *Runtime) execDefaultStorage(ctx context.Context, action bridge.Action, args []any, cb bridge.Callbacks) {
	if !r.defaultStorageEnabled() {
		r.fail(cb, fmt.Errorf("%s: default message storage is not enabled", action))
		return
	}
	store := r.opts.DefaultStore
	ctx = context.WithoutCancel(ctx)

	var id string
	if action == bridge.ActionDefaultStorageFind || action == bridge.ActionDefaultStorageDelete {
		if len(args) == 0 {
			r.fail(cb, fmt.Errorf("%w: %s expects a message id", bridge.ErrInvalidArguments, action))
			return
		}
		s, ok := args[0].(string)
		if !ok {
			r.fail(cb, fmt.Errorf("%w: message id must be a string, got %T", bridge.ErrInvalidArguments, args[0]))
			return
		}
		id = s
	}

	go func() {
		var (
			result any
			err    error
		)
		switch action {
		case bridge.ActionDefaultStorageFind:
			var msg *bridge.Message
			msg, err = store.Find(ctx, id)
			if msg != nil {
				result = *msg
			}
		case bridge.ActionDefaultStorageFindAll:
			result, err = store.FindAll(ctx)
		case bridge.ActionDefaultStorageDelete:
			err = store.Delete(ctx, id)
		case bridge.ActionDefaultStorageDeleteAll:
			err = store.DeleteAll(ctx)
		}
		if err != nil {
			r.fail(cb, err)
			return
		}
		r.succeed(cb, result)
	}()
}

// execStorageResult routes the second hop of a custom storage lookup to the
// request waiting for it.
func (r *Runtime) execStorageResult(action bridge.Action, args []any, cb bridge.Callbacks) {
	if len(args) < 2 {
		r.fail(cb, fmt.Errorf("%w: %s expects [requestId, result]", bridge.ErrInvalidArguments, action))
		return
	}
	id, _ := args[0].(string)
	ch, ok := r.pending.LoadAndDelete(id)
	if !ok {
		r.logger.Warn("Storage result for unknown request", "action", action, "request_id", id)
		r.fail(cb, fmt.Errorf("%w: no pending request %q", bridge.ErrInvalidArguments, id))
		return
	}
	ch <- args[1]
	r.succeed(cb, nil)
}

// RequestStoredMessage looks a message up the way the SDK does: through the
// custom storage round trip when one is registered, otherwise in the default
// store. A nil message means not found.
func (r *Runtime) RequestStoredMessage(ctx context.Context, messageID string) (*bridge.Message, error) {
	if find, ok := r.target(bridge.TargetFind); ok {
		payload, err := r.roundTrip(ctx, find, bridge.StorageRequest{MessageID: messageID})
		if err != nil {
			return nil, err
		}
		return bridge.DecodeMessage(payload)
	}
	if r.defaultStorageEnabled() {
		return r.opts.DefaultStore.Find(ctx, messageID)
	}
	return nil, ErrNoStorage
}

// RequestAllStoredMessages is RequestStoredMessage for the whole store.
func (r *Runtime) RequestAllStoredMessages(ctx context.Context) ([]bridge.Message, error) {
	if findAll, ok := r.target(bridge.TargetFindAll); ok {
		payload, err := r.roundTrip(ctx, findAll, bridge.StorageRequest{})
		if err != nil {
			return nil, err
		}
		return bridge.DecodeMessages(payload)
	}
	if r.defaultStorageEnabled() {
		return r.opts.DefaultStore.FindAll(ctx)
	}
	return nil, ErrNoStorage
}

// roundTrip sends req to a storage target and waits for the matching result
// call. Only the caller waits; the delivery goroutine never does.
func (r *Runtime) roundTrip(ctx context.Context, target bridge.Callbacks, req bridge.StorageRequest) (any, error) {
	if r.closed.Load() {
		return nil, bridge.ErrBoundaryUnavailable
	}
	req.RequestID = uuid.NewString()
	ch := make(chan any, 1)
	r.pending.Store(req.RequestID, ch)

	r.enqueue(func() { target.OnSuccess(req) })

	select {
	case payload := <-ch:
		return payload, nil
	case <-ctx.Done():
		r.pending.Delete(req.RequestID)
		return nil, fmt.Errorf("storage request %s: %w", req.RequestID, ctx.Err())
	case <-r.done:
		r.pending.Delete(req.RequestID)
		return nil, bridge.ErrBoundaryUnavailable
	}
}
