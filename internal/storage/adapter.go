// Package storage plugs a consumer supplied message storage into the native
// layer and proxies the built-in default storage.
package storage

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v4"
	"github.com/tinywideclouds/go-mobilemessaging-bridge/pkg/bridge"
)

// Commander is the part of the dispatcher the storage layer drives.
type Commander interface {
	Dispatch(ctx context.Context, action bridge.Action, args []any, onSuccess bridge.SuccessFunc, onFailure bridge.FailureFunc)
	Attach(ctx context.Context, action bridge.Action, args []any, onEach bridge.SuccessFunc) error
}

type pendingRequest struct {
	target    bridge.StorageTarget
	messageID string
	issuedAt  time.Time
}

// Adapter registers the five operations of a custom storage as targets the
// native layer calls by name, and carries find/findAll answers back over the
// result channels.
//
// Lookups are a two-hop round trip: the native layer sends a one-way request,
// the consumer answers through its reply callback, and the adapter sends exactly
// one result call back. Requests are correlated by id so concurrent lookups
// cannot be answered with each other's results.
type Adapter struct {
	commands Commander
	storage  bridge.MessageStorage
	pending  *xsync.Map[string, pendingRequest]
	logger   *slog.Logger
	wg       sync.WaitGroup

	// registered is only touched by Register and Unregister, which the bridge
	// serializes.
	registered []bridge.StorageTarget
	detached   atomic.Bool
}

// NewAdapter binds storage to commands. storage must already be validated.
func NewAdapter(commands Commander, storage bridge.MessageStorage, logger *slog.Logger) *Adapter {
	return &Adapter{
		commands: commands,
		storage:  storage,
		pending:  xsync.NewMap[string, pendingRequest](),
		logger:   logger.With("component", "StorageAdapter"),
	}
}

// Register attaches every storage target. Requests keep being served after ctx
// is done; only its values are carried over. If a target cannot be attached,
// the ones attached before it are detached again.
func (a *Adapter) Register(ctx context.Context) error {
	serveCtx := context.WithoutCancel(ctx)
	for _, target := range bridge.StorageTargets {
		target := target
		err := a.commands.Attach(ctx, bridge.ActionMessageStorageRegister, []any{string(target)}, func(payload any) {
			if a.detached.Load() {
				a.logger.Warn("Dropped storage request after detach", "target", target)
				return
			}
			a.wg.Add(1)
			go func() {
				defer a.wg.Done()
				a.serve(serveCtx, target, payload)
			}()
		})
		if err != nil {
			a.Unregister(ctx)
			return fmt.Errorf("failed to register storage target %s: %w", target, err)
		}
		a.registered = append(a.registered, target)
	}
	a.logger.Debug("Custom message storage registered")
	return nil
}

// Unregister detaches every target attached so far. Requests the native layer
// still sends afterwards are dropped.
func (a *Adapter) Unregister(ctx context.Context) {
	a.detached.Store(true)
	for _, target := range a.registered {
		target := target
		a.commands.Dispatch(ctx, bridge.ActionMessageStorageUnregister, []any{string(target)}, nil, func(err error) {
			a.logger.Warn("Failed to detach storage target", "target", target, "err", err)
		})
	}
	if len(a.registered) > 0 {
		a.logger.Debug("Custom message storage detached", "targets", len(a.registered))
	}
	a.registered = nil
}

// Pending reports how many lookups are waiting for the consumer's reply.
func (a *Adapter) Pending() int {
	return a.pending.Size()
}

// Wait blocks until every request handed to the consumer so far has returned.
func (a *Adapter) Wait() {
	a.wg.Wait()
}

func (a *Adapter) serve(ctx context.Context, target bridge.StorageTarget, payload any) {
	req, err := bridge.DecodeStorageRequest(payload)
	if err != nil {
		a.logger.Error("Dropped malformed storage request", "target", target, "err", err)
		return
	}

	defer func() {
		if rec := recover(); rec != nil {
			a.logger.Error("Message storage panicked", "target", target, "panic", rec)
			if req.RequestID != "" {
				a.pending.Delete(req.RequestID)
			}
		}
	}()

	switch target {
	case bridge.TargetStart:
		err = a.storage.Start(ctx)
	case bridge.TargetStop:
		err = a.storage.Stop(ctx)
	case bridge.TargetSave:
		err = a.storage.Save(ctx, req.Messages)
	case bridge.TargetFind:
		a.find(ctx, &req)
	case bridge.TargetFindAll:
		a.findAll(ctx, &req)
	default:
		err = fmt.Errorf("%w: storage target %s", bridge.ErrUnknownAction, target)
	}
	if err != nil {
		a.logger.Error("Message storage operation failed", "target", target, "err", err)
	}
}

func (a *Adapter) find(ctx context.Context, req *bridge.StorageRequest) {
	id := a.track(req, bridge.TargetFind)
	a.storage.Find(ctx, req.MessageID, func(msg *bridge.Message) {
		var result any
		if msg != nil {
			result = *msg
		}
		a.reply(ctx, id, bridge.ActionMessageStorageFindResult, result)
	})
}

func (a *Adapter) findAll(ctx context.Context, req *bridge.StorageRequest) {
	id := a.track(req, bridge.TargetFindAll)
	a.storage.FindAll(ctx, func(msgs []bridge.Message) {
		if msgs == nil {
			msgs = []bridge.Message{}
		}
		a.reply(ctx, id, bridge.ActionMessageStorageFindAllResult, msgs)
	})
}

// track opens the correlation entry for req, giving it an id if it has none.
func (a *Adapter) track(req *bridge.StorageRequest, target bridge.StorageTarget) string {
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}
	a.pending.Store(req.RequestID, pendingRequest{target: target, messageID: req.MessageID, issuedAt: time.Now()})
	return req.RequestID
}

// reply sends the result for id unless it has been answered already.
func (a *Adapter) reply(ctx context.Context, id string, action bridge.Action, result any) {
	pr, ok := a.pending.LoadAndDelete(id)
	if !ok {
		a.logger.Warn("Dropped storage reply for unknown or answered request", "request_id", id, "action", action)
		return
	}
	a.commands.Dispatch(ctx, action, []any{id, result}, nil, func(err error) {
		a.logger.Error("Failed to deliver storage result",
			"request_id", id,
			"target", pr.target,
			"message_id", pr.messageID,
			"elapsed", time.Since(pr.issuedAt),
			"err", err)
	})
}
