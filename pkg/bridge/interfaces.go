// --- File: pkg/bridge/interfaces.go ---
// Package bridge contains the public contracts shared by the scripting-facing
// bridge and the native messaging layer it talks to.
package bridge

import (
	"context"
)

// SuccessFunc receives the payload of a successful boundary call.
type SuccessFunc func(payload any)

// FailureFunc receives the error of a failed boundary call.
type FailureFunc func(err error)

// Callbacks is the continuation pair handed across the boundary with every call.
type Callbacks struct {
	OnSuccess SuccessFunc
	OnFailure FailureFunc
}

// Boundary is the native side of the bridge.
//
// Exec must not block waiting for the native work to finish: results are
// delivered later through cb on a goroutine owned by the native layer. A non-nil
// return means the call never crossed (boundary closed, unknown action) and no
// continuation will fire for it.
//
// For actions that open a channel (register, messageStorage_register) the native
// layer keeps cb and may call OnSuccess any number of times.
type Boundary interface {
	Exec(ctx context.Context, action Action, args []any, cb Callbacks) error
}

// MessageStorage is the storage capability a consumer can plug into the native
// layer. The native side invokes it indirectly through the bridge.
type MessageStorage interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Save(ctx context.Context, messages []Message) error
	// Find answers through reply; a nil message means "not found".
	Find(ctx context.Context, messageID string, reply func(*Message))
	FindAll(ctx context.Context, reply func([]Message))
}

// DefaultStorage is the built-in storage that proxies to native persistence.
type DefaultStorage interface {
	Find(ctx context.Context, messageID string, reply func(*Message, error))
	FindAll(ctx context.Context, reply func([]Message, error))
	Delete(ctx context.Context, messageID string, done func(error))
	DeleteAll(ctx context.Context, done func(error))
}

// MessageStore is native-side persistence for received messages.
// Find returns (nil, nil) when the message does not exist.
type MessageStore interface {
	Save(ctx context.Context, messages ...Message) error
	Find(ctx context.Context, messageID string) (*Message, error)
	FindAll(ctx context.Context) ([]Message, error)
	Delete(ctx context.Context, messageID string) error
	DeleteAll(ctx context.Context) error
	MarkSeen(ctx context.Context, messageIDs ...string) error
}
