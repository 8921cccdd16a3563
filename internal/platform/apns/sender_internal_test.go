package apns

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"testing"

	"github.com/sideshow/apns2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/tinywideclouds/go-mobilemessaging-bridge/pkg/bridge"
)

type MockAPNSClient struct {
	mock.Mock
}

func (m *MockAPNSClient) PushWithContext(ctx apns2.Context, n *apns2.Notification) (*apns2.Response, error) {
	args := m.Called(ctx, n)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*apns2.Response), args.Error(1)
}

func TestSend_Internal(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx := context.Background()
	msg := bridge.Message{MessageID: "123", Title: "Hello iOS", Body: "Body"}

	t.Run("Happy Path - Success", func(t *testing.T) {
		mockClient := new(MockAPNSClient)
		sender := newSender(mockClient, "com.test.app", logger)

		mockClient.On("PushWithContext", ctx, mock.MatchedBy(func(n *apns2.Notification) bool {
			return n.DeviceToken == "token-1" && n.Topic == "com.test.app" && n.PushType == apns2.PushTypeAlert
		})).Return(&apns2.Response{StatusCode: http.StatusOK}, nil)

		receipt, invalid, err := sender.Send(ctx, []string{"token-1"}, msg)

		require.NoError(t, err)
		assert.Empty(t, invalid)
		assert.Contains(t, receipt, "success:1")
		mockClient.AssertExpectations(t)
	})

	t.Run("Silent message is a background push", func(t *testing.T) {
		mockClient := new(MockAPNSClient)
		sender := newSender(mockClient, "com.test.app", logger)

		mockClient.On("PushWithContext", ctx, mock.MatchedBy(func(n *apns2.Notification) bool {
			return n.PushType == apns2.PushTypeBackground && n.Priority == apns2.PriorityLow
		})).Return(&apns2.Response{StatusCode: http.StatusOK}, nil)

		_, _, err := sender.Send(ctx, []string{"token-1"}, bridge.Message{MessageID: "s", Silent: true})
		require.NoError(t, err)
		mockClient.AssertExpectations(t)
	})

	t.Run("Bad Device Token is reported", func(t *testing.T) {
		mockClient := new(MockAPNSClient)
		sender := newSender(mockClient, "com.test.app", logger)

		mockClient.On("PushWithContext", ctx, mock.Anything).Return(&apns2.Response{
			StatusCode: http.StatusBadRequest,
			Reason:     apns2.ReasonBadDeviceToken,
		}, nil)

		_, invalid, err := sender.Send(ctx, []string{"bad-token"}, msg)

		require.NoError(t, err)
		assert.Equal(t, []string{"bad-token"}, invalid)
	})

	t.Run("Transport Failure is counted", func(t *testing.T) {
		mockClient := new(MockAPNSClient)
		sender := newSender(mockClient, "com.test.app", logger)
		mockClient.On("PushWithContext", ctx, mock.Anything).Return(nil, errors.New("connection refused"))

		receipt, invalid, err := sender.Send(ctx, []string{"token-1"}, msg)

		require.NoError(t, err)
		assert.Empty(t, invalid)
		assert.Contains(t, receipt, "total_fail:1")
	})
}
