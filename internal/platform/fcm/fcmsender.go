// Package fcm sends test pushes through Firebase Cloud Messaging.
package fcm

import (
	"context"
	"fmt"
	"log/slog"

	"firebase.google.com/go/v4/messaging"
	"github.com/tinywideclouds/go-mobilemessaging-bridge/internal/platform"
	"github.com/tinywideclouds/go-mobilemessaging-bridge/pkg/bridge"
)

// MessagingClient defines the subset of the Firebase Messaging API we use.
// *messaging.Client satisfies it.
type MessagingClient interface {
	SendEachForMulticast(ctx context.Context, msg *messaging.MulticastMessage) (*messaging.BatchResponse, error)
}

type Sender struct {
	client MessagingClient
	logger *slog.Logger
}

func NewSender(client MessagingClient, logger *slog.Logger) *Sender {
	return &Sender{
		client: client,
		logger: logger.With("component", "FCMSender"),
	}
}

var _ platform.Sender = (*Sender)(nil)

// Send pushes msg to every token in one multicast batch. Silent messages go out
// data-only so the app handles them without a visible notification.
func (s *Sender) Send(ctx context.Context, tokens []string, msg bridge.Message) (string, []string, error) {
	if len(tokens) == 0 {
		return "skipped: no tokens", nil, nil
	}

	mm := &messaging.MulticastMessage{
		Tokens: tokens,
		Data:   platform.DataPayload(msg),
		Android: &messaging.AndroidConfig{
			Priority: "high",
		},
	}
	if !msg.Silent {
		mm.Notification = &messaging.Notification{
			Title: msg.Title,
			Body:  msg.Body,
		}
		if msg.Sound != "" {
			mm.Android.Notification = &messaging.AndroidNotification{Sound: msg.Sound}
		}
	}

	br, err := s.client.SendEachForMulticast(ctx, mm)
	if err != nil {
		if messaging.IsInvalidArgument(err) {
			s.logger.Error("FCM rejected batch as InvalidArgument", "err", err)
			return "skipped: invalid_argument", nil, nil
		}
		return "", nil, fmt.Errorf("fcm transport failed: %w", err)
	}

	var invalidTokens []string
	retryableErrors := 0
	if br.FailureCount > 0 {
		for idx, resp := range br.Responses {
			if resp.Success {
				continue
			}
			if messaging.IsInvalidArgument(resp.Error) || messaging.IsRegistrationTokenNotRegistered(resp.Error) {
				invalidTokens = append(invalidTokens, tokens[idx])
				continue
			}
			retryableErrors++
		}
	}

	if retryableErrors > 0 {
		return "", invalidTokens, fmt.Errorf("batch had %d retryable errors", retryableErrors)
	}

	receipt := fmt.Sprintf("success:%d invalid:%d", br.SuccessCount, len(invalidTokens))
	return receipt, invalidTokens, nil
}
