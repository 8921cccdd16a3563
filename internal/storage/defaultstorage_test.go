package storage_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/tinywideclouds/go-mobilemessaging-bridge/internal/storage"
	"github.com/tinywideclouds/go-mobilemessaging-bridge/pkg/bridge"
)

type MockCommander struct {
	mock.Mock
}

func (m *MockCommander) Dispatch(ctx context.Context, action bridge.Action, args []any, onSuccess bridge.SuccessFunc, onFailure bridge.FailureFunc) {
	m.Called(ctx, action, args, onSuccess, onFailure)
}

func (m *MockCommander) Attach(ctx context.Context, action bridge.Action, args []any, onEach bridge.SuccessFunc) error {
	return m.Called(ctx, action, args, onEach).Error(0)
}

func answerWith(payload any) func(mock.Arguments) {
	return func(args mock.Arguments) {
		args.Get(3).(bridge.SuccessFunc)(payload)
	}
}

func failWith(err error) func(mock.Arguments) {
	return func(args mock.Arguments) {
		args.Get(4).(bridge.FailureFunc)(err)
	}
}

func TestDefaultStorage(t *testing.T) {
	ctx := context.Background()

	t.Run("Success - find decodes the native record", func(t *testing.T) {
		cmd := new(MockCommander)
		cmd.On("Dispatch", ctx, bridge.ActionDefaultStorageFind, []any{"m-1"}, mock.Anything, mock.Anything).
			Run(answerWith(map[string]any{"messageId": "m-1", "body": "hi"}))
		s := storage.NewDefaultStorage(cmd)

		var got *bridge.Message
		var gotErr error
		s.Find(ctx, "m-1", func(m *bridge.Message, err error) { got, gotErr = m, err })

		require.NoError(t, gotErr)
		require.NotNil(t, got)
		assert.Equal(t, "hi", got.Body)
		cmd.AssertExpectations(t)
	})

	t.Run("Success - find miss", func(t *testing.T) {
		cmd := new(MockCommander)
		cmd.On("Dispatch", ctx, bridge.ActionDefaultStorageFind, []any{"nope"}, mock.Anything, mock.Anything).
			Run(answerWith(nil))
		s := storage.NewDefaultStorage(cmd)

		called := false
		s.Find(ctx, "nope", func(m *bridge.Message, err error) {
			called = true
			assert.Nil(t, m)
			assert.NoError(t, err)
		})
		assert.True(t, called)
	})

	t.Run("Success - findAll", func(t *testing.T) {
		cmd := new(MockCommander)
		cmd.On("Dispatch", ctx, bridge.ActionDefaultStorageFindAll, []any(nil), mock.Anything, mock.Anything).
			Run(answerWith([]bridge.Message{{MessageID: "a"}, {MessageID: "b"}}))
		s := storage.NewDefaultStorage(cmd)

		var got []bridge.Message
		s.FindAll(ctx, func(m []bridge.Message, err error) {
			require.NoError(t, err)
			got = m
		})
		assert.Len(t, got, 2)
	})

	t.Run("Failure - delete reports the native error", func(t *testing.T) {
		cmd := new(MockCommander)
		nativeErr := errors.New("locked")
		cmd.On("Dispatch", ctx, bridge.ActionDefaultStorageDelete, []any{"m-1"}, mock.Anything, mock.Anything).
			Run(failWith(nativeErr))
		s := storage.NewDefaultStorage(cmd)

		var gotErr error
		s.Delete(ctx, "m-1", func(err error) { gotErr = err })
		assert.ErrorIs(t, gotErr, nativeErr)
	})

	t.Run("Success - deleteAll with no callback", func(t *testing.T) {
		cmd := new(MockCommander)
		cmd.On("Dispatch", ctx, bridge.ActionDefaultStorageDeleteAll, []any(nil), mock.Anything, mock.Anything).
			Run(answerWith(nil))
		s := storage.NewDefaultStorage(cmd)

		assert.NotPanics(t, func() { s.DeleteAll(ctx, nil) })
		cmd.AssertExpectations(t)
	})
}
