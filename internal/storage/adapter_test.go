package storage_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/tinywideclouds/go-mobilemessaging-bridge/internal/storage"
	"github.com/tinywideclouds/go-mobilemessaging-bridge/pkg/bridge"
)

type dispatched struct {
	action bridge.Action
	args   []any
}

// fakeCommander keeps the attached channels so a test can play the native side.
type fakeCommander struct {
	mu        sync.Mutex
	channels  map[bridge.StorageTarget]bridge.SuccessFunc
	attachErr error
	// failAfter makes attaches fail once this many succeeded; 0 disables it.
	failAfter int
	sent      chan dispatched
}

func newFakeCommander() *fakeCommander {
	return &fakeCommander{
		channels: make(map[bridge.StorageTarget]bridge.SuccessFunc),
		sent:     make(chan dispatched, 16),
	}
}

func (f *fakeCommander) Attach(_ context.Context, action bridge.Action, args []any, onEach bridge.SuccessFunc) error {
	if f.attachErr != nil {
		return f.attachErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAfter > 0 && len(f.channels) >= f.failAfter {
		return bridge.ErrBoundaryUnavailable
	}
	f.channels[bridge.StorageTarget(args[0].(string))] = onEach
	return nil
}

func (f *fakeCommander) Dispatch(_ context.Context, action bridge.Action, args []any, onSuccess bridge.SuccessFunc, _ bridge.FailureFunc) {
	f.sent <- dispatched{action: action, args: args}
	if onSuccess != nil {
		onSuccess(nil)
	}
}

func (f *fakeCommander) request(target bridge.StorageTarget, req bridge.StorageRequest) {
	f.mu.Lock()
	ch := f.channels[target]
	f.mu.Unlock()
	ch(req)
}

// MockStorage is a consumer storage whose find replies are driven by the test.
type MockStorage struct {
	mock.Mock
	findReplies    chan func(*bridge.Message)
	findAllReplies chan func([]bridge.Message)
}

func newMockStorage() *MockStorage {
	return &MockStorage{
		findReplies:    make(chan func(*bridge.Message), 4),
		findAllReplies: make(chan func([]bridge.Message), 4),
	}
}

func (m *MockStorage) Start(ctx context.Context) error { return m.Called(ctx).Error(0) }
func (m *MockStorage) Stop(ctx context.Context) error  { return m.Called(ctx).Error(0) }

func (m *MockStorage) Save(ctx context.Context, messages []bridge.Message) error {
	return m.Called(ctx, messages).Error(0)
}

func (m *MockStorage) Find(_ context.Context, messageID string, reply func(*bridge.Message)) {
	m.Called(messageID)
	m.findReplies <- reply
}

func (m *MockStorage) FindAll(_ context.Context, reply func([]bridge.Message)) {
	m.Called()
	m.findAllReplies <- reply
}

func waitSent(t *testing.T, f *fakeCommander) dispatched {
	t.Helper()
	select {
	case d := <-f.sent:
		return d
	case <-time.After(2 * time.Second):
		t.Fatal("no result was sent back to the native layer")
		return dispatched{}
	}
}

func assertNothingSent(t *testing.T, f *fakeCommander) {
	t.Helper()
	select {
	case d := <-f.sent:
		t.Fatalf("unexpected dispatch %s %v", d.action, d.args)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestAdapter_Register(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx := context.Background()

	t.Run("Success - attaches all five targets", func(t *testing.T) {
		cmd := newFakeCommander()
		a := storage.NewAdapter(cmd, newMockStorage(), logger)

		require.NoError(t, a.Register(ctx))
		for _, target := range bridge.StorageTargets {
			assert.Contains(t, cmd.channels, target)
		}
	})

	t.Run("Failure - attach error is reported", func(t *testing.T) {
		cmd := newFakeCommander()
		cmd.attachErr = bridge.ErrBoundaryUnavailable
		a := storage.NewAdapter(cmd, newMockStorage(), logger)

		err := a.Register(ctx)
		assert.ErrorIs(t, err, bridge.ErrBoundaryUnavailable)
		assertNothingSent(t, cmd)
	})

	t.Run("Failure - partial attach detaches the targets already attached", func(t *testing.T) {
		cmd := newFakeCommander()
		cmd.failAfter = 3
		a := storage.NewAdapter(cmd, newMockStorage(), logger)

		err := a.Register(ctx)
		require.ErrorIs(t, err, bridge.ErrBoundaryUnavailable)
		assert.Contains(t, err.Error(), string(bridge.TargetFind))

		for _, target := range bridge.StorageTargets[:3] {
			d := waitSent(t, cmd)
			assert.Equal(t, bridge.ActionMessageStorageUnregister, d.action)
			assert.Equal(t, []any{string(target)}, d.args)
		}
		assertNothingSent(t, cmd)
	})
}

func TestAdapter_Unregister(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx := context.Background()

	cmd := newFakeCommander()
	st := newMockStorage()
	a := storage.NewAdapter(cmd, st, logger)
	require.NoError(t, a.Register(ctx))

	a.Unregister(ctx)
	for range bridge.StorageTargets {
		assert.Equal(t, bridge.ActionMessageStorageUnregister, waitSent(t, cmd).action)
	}

	t.Run("Success - requests after detach never reach the storage", func(t *testing.T) {
		cmd.request(bridge.TargetFind, bridge.StorageRequest{RequestID: "r-1", MessageID: "m-1"})
		a.Wait()
		assertNothingSent(t, cmd)
		st.AssertNotCalled(t, "Find", mock.Anything)
	})

	t.Run("Success - second unregister is a no-op", func(t *testing.T) {
		a.Unregister(ctx)
		assertNothingSent(t, cmd)
	})
}

func TestAdapter_FindRoundTrip(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx := context.Background()

	t.Run("Success - exactly one findResult carrying the record", func(t *testing.T) {
		cmd := newFakeCommander()
		store := newMockStorage()
		store.On("Find", "m-1").Return()
		a := storage.NewAdapter(cmd, store, logger)
		require.NoError(t, a.Register(ctx))

		cmd.request(bridge.TargetFind, bridge.StorageRequest{RequestID: "r-1", MessageID: "m-1"})
		reply := <-store.findReplies
		assert.Equal(t, 1, a.Pending())

		reply(&bridge.Message{MessageID: "m-1", Body: "hello"})
		reply(&bridge.Message{MessageID: "m-1", Body: "second answer"})

		got := waitSent(t, cmd)
		assert.Equal(t, bridge.ActionMessageStorageFindResult, got.action)
		assert.Equal(t, []any{"r-1", bridge.Message{MessageID: "m-1", Body: "hello"}}, got.args)
		assertNothingSent(t, cmd)
		assert.Equal(t, 0, a.Pending())
		store.AssertExpectations(t)
	})

	t.Run("Success - miss is answered with nil", func(t *testing.T) {
		cmd := newFakeCommander()
		store := newMockStorage()
		store.On("Find", "missing").Return()
		a := storage.NewAdapter(cmd, store, logger)
		require.NoError(t, a.Register(ctx))

		cmd.request(bridge.TargetFind, bridge.StorageRequest{RequestID: "r-2", MessageID: "missing"})
		(<-store.findReplies)(nil)

		got := waitSent(t, cmd)
		assert.Equal(t, []any{"r-2", nil}, got.args)
	})

	t.Run("Success - concurrent finds keep their own results", func(t *testing.T) {
		cmd := newFakeCommander()
		store := newMockStorage()
		store.On("Find", mock.Anything).Return()
		a := storage.NewAdapter(cmd, store, logger)
		require.NoError(t, a.Register(ctx))

		cmd.request(bridge.TargetFind, bridge.StorageRequest{RequestID: "r-a", MessageID: "a"})
		replyA := <-store.findReplies
		cmd.request(bridge.TargetFind, bridge.StorageRequest{RequestID: "r-b", MessageID: "b"})
		replyB := <-store.findReplies

		// answered out of order
		replyB(&bridge.Message{MessageID: "b"})
		first := waitSent(t, cmd)
		replyA(&bridge.Message{MessageID: "a"})
		second := waitSent(t, cmd)

		assert.Equal(t, []any{"r-b", bridge.Message{MessageID: "b"}}, first.args)
		assert.Equal(t, []any{"r-a", bridge.Message{MessageID: "a"}}, second.args)
	})

	t.Run("Success - request without id gets one", func(t *testing.T) {
		cmd := newFakeCommander()
		store := newMockStorage()
		store.On("FindAll").Return()
		a := storage.NewAdapter(cmd, store, logger)
		require.NoError(t, a.Register(ctx))

		cmd.request(bridge.TargetFindAll, bridge.StorageRequest{})
		(<-store.findAllReplies)(nil)

		got := waitSent(t, cmd)
		assert.Equal(t, bridge.ActionMessageStorageFindAllResult, got.action)
		require.Len(t, got.args, 2)
		assert.NotEmpty(t, got.args[0])
		assert.Equal(t, []bridge.Message{}, got.args[1])
	})
}

func TestAdapter_LifecycleTargets(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx := context.Background()

	cmd := newFakeCommander()
	store := newMockStorage()
	msgs := []bridge.Message{{MessageID: "m-1"}}
	store.On("Start", mock.Anything).Return(nil)
	store.On("Save", mock.Anything, msgs).Return(errors.New("disk full"))
	store.On("Stop", mock.Anything).Return(nil)

	a := storage.NewAdapter(cmd, store, logger)
	require.NoError(t, a.Register(ctx))

	cmd.request(bridge.TargetStart, bridge.StorageRequest{})
	cmd.request(bridge.TargetSave, bridge.StorageRequest{Messages: msgs})
	cmd.request(bridge.TargetStop, bridge.StorageRequest{})
	a.Wait()

	store.AssertExpectations(t)
	assertNothingSent(t, cmd)
}
