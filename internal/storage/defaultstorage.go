package storage

import (
	"context"

	"github.com/tinywideclouds/go-mobilemessaging-bridge/pkg/bridge"
)

// DefaultStorage proxies the built-in native persistence. Every call is one
// dispatched command; results come back through the given callback.
type DefaultStorage struct {
	commands Commander
}

// NewDefaultStorage creates the proxy.
func NewDefaultStorage(commands Commander) *DefaultStorage {
	return &DefaultStorage{commands: commands}
}

var _ bridge.DefaultStorage = (*DefaultStorage)(nil)

func (s *DefaultStorage) Find(ctx context.Context, messageID string, reply func(*bridge.Message, error)) {
	s.commands.Dispatch(ctx, bridge.ActionDefaultStorageFind, []any{messageID},
		func(payload any) {
			msg, err := bridge.DecodeMessage(payload)
			call2(reply, msg, err)
		},
		func(err error) { call2(reply, nil, err) },
	)
}

func (s *DefaultStorage) FindAll(ctx context.Context, reply func([]bridge.Message, error)) {
	s.commands.Dispatch(ctx, bridge.ActionDefaultStorageFindAll, nil,
		func(payload any) {
			msgs, err := bridge.DecodeMessages(payload)
			call2(reply, msgs, err)
		},
		func(err error) { call2(reply, nil, err) },
	)
}

func (s *DefaultStorage) Delete(ctx context.Context, messageID string, done func(error)) {
	s.commands.Dispatch(ctx, bridge.ActionDefaultStorageDelete, []any{messageID},
		func(any) { call1(done, nil) },
		func(err error) { call1(done, err) },
	)
}

func (s *DefaultStorage) DeleteAll(ctx context.Context, done func(error)) {
	s.commands.Dispatch(ctx, bridge.ActionDefaultStorageDeleteAll, nil,
		func(any) { call1(done, nil) },
		func(err error) { call1(done, err) },
	)
}

func call1(fn func(error), err error) {
	if fn != nil {
		fn(err)
	}
}

func call2[T any](fn func(T, error), v T, err error) {
	if fn != nil {
		fn(v, err)
	}
}
