package bridge

import (
	"context"
	"fmt"
)

// StorageFuncs builds a MessageStorage out of individual functions. It is the
// shape duck-typed consumers (script objects) are converted into; a nil field
// means the consumer did not provide that operation.
type StorageFuncs struct {
	StartFunc   func(ctx context.Context) error
	StopFunc    func(ctx context.Context) error
	SaveFunc    func(ctx context.Context, messages []Message) error
	FindFunc    func(ctx context.Context, messageID string, reply func(*Message))
	FindAllFunc func(ctx context.Context, reply func([]Message))
}

func (f StorageFuncs) Start(ctx context.Context) error { return f.StartFunc(ctx) }
func (f StorageFuncs) Stop(ctx context.Context) error  { return f.StopFunc(ctx) }

func (f StorageFuncs) Save(ctx context.Context, messages []Message) error {
	return f.SaveFunc(ctx, messages)
}

func (f StorageFuncs) Find(ctx context.Context, messageID string, reply func(*Message)) {
	f.FindFunc(ctx, messageID, reply)
}

func (f StorageFuncs) FindAll(ctx context.Context, reply func([]Message)) {
	f.FindAllFunc(ctx, reply)
}

// MissingOperations lists the targets with no function behind them.
func (f StorageFuncs) MissingOperations() []StorageTarget {
	var missing []StorageTarget
	if f.StartFunc == nil {
		missing = append(missing, TargetStart)
	}
	if f.StopFunc == nil {
		missing = append(missing, TargetStop)
	}
	if f.SaveFunc == nil {
		missing = append(missing, TargetSave)
	}
	if f.FindFunc == nil {
		missing = append(missing, TargetFind)
	}
	if f.FindAllFunc == nil {
		missing = append(missing, TargetFindAll)
	}
	return missing
}

// ValidateStorage rejects a storage capability with missing operations. Statically
// typed implementations are always complete; partial ones are detected through
// MissingOperations.
func ValidateStorage(s MessageStorage) error {
	partial, ok := s.(interface{ MissingOperations() []StorageTarget })
	if !ok {
		return nil
	}
	if missing := partial.MissingOperations(); len(missing) > 0 {
		return fmt.Errorf("%w: missing %s function definition", ErrIncompleteStorage, missing[0])
	}
	return nil
}

// StoreStorage exposes a MessageStore as a MessageStorage so Go consumers can
// plug any native-side store in as their custom storage.
type StoreStorage struct {
	Store MessageStore
	// OnError is told about lookups that failed; the reply then carries a miss.
	OnError func(op StorageTarget, err error)
}

func (s StoreStorage) Start(context.Context) error { return nil }
func (s StoreStorage) Stop(context.Context) error  { return nil }

func (s StoreStorage) Save(ctx context.Context, messages []Message) error {
	return s.Store.Save(ctx, messages...)
}

func (s StoreStorage) Find(ctx context.Context, messageID string, reply func(*Message)) {
	msg, err := s.Store.Find(ctx, messageID)
	if err != nil {
		s.report(TargetFind, err)
		reply(nil)
		return
	}
	reply(msg)
}

func (s StoreStorage) FindAll(ctx context.Context, reply func([]Message)) {
	msgs, err := s.Store.FindAll(ctx)
	if err != nil {
		s.report(TargetFindAll, err)
		reply(nil)
		return
	}
	reply(msgs)
}

func (s StoreStorage) report(op StorageTarget, err error) {
	if s.OnError != nil {
		s.OnError(op, err)
	}
}
