// Package apns sends test pushes through the Apple Push Notification Service.
package apns

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sideshow/apns2"
	"github.com/sideshow/apns2/payload"
	"github.com/sideshow/apns2/token"
	"github.com/tinywideclouds/go-mobilemessaging-bridge/internal/platform"
	"github.com/tinywideclouds/go-mobilemessaging-bridge/pkg/bridge"
)

// APNSClient defines the subset of the apns2.Client methods we use.
type APNSClient interface {
	PushWithContext(ctx apns2.Context, n *apns2.Notification) (*apns2.Response, error)
}

type Sender struct {
	client APNSClient
	topic  string // the app bundle id
	logger *slog.Logger
}

// Config holds the credentials required to sign APNs tokens.
type Config struct {
	KeyID    string
	TeamID   string
	BundleID string
	// P8KeyContent is the raw content of the .p8 file
	P8KeyContent string
	// Development targets the sandbox gateway, as debug builds register there.
	Development bool
}

// NewSender parses the P8 key immediately to fail fast on bad credentials.
func NewSender(cfg Config, logger *slog.Logger) (*Sender, error) {
	authKey, err := token.AuthKeyFromBytes([]byte(cfg.P8KeyContent))
	if err != nil {
		return nil, fmt.Errorf("failed to parse APNs P8 key: %w", err)
	}

	client := apns2.NewTokenClient(&token.Token{
		AuthKey: authKey,
		KeyID:   cfg.KeyID,
		TeamID:  cfg.TeamID,
	})
	if cfg.Development {
		client = client.Development()
	} else {
		client = client.Production()
	}

	return newSender(client, cfg.BundleID, logger), nil
}

func newSender(client APNSClient, topic string, logger *slog.Logger) *Sender {
	return &Sender{
		client: client,
		topic:  topic,
		logger: logger.With("component", "APNSSender"),
	}
}

var _ platform.Sender = (*Sender)(nil)

// Send pushes msg to each token in turn; APNs has no multicast endpoint.
// Transport failures are logged and counted, dead tokens are returned.
func (s *Sender) Send(ctx context.Context, tokens []string, msg bridge.Message) (string, []string, error) {
	if len(tokens) == 0 {
		return "skipped: no tokens", nil, nil
	}

	builder := payload.NewPayload()
	if msg.Silent {
		builder.ContentAvailable()
	} else {
		builder.AlertTitle(msg.Title).AlertBody(msg.Body)
		if msg.Sound != "" {
			builder.Sound(msg.Sound)
		}
	}
	for k, v := range platform.DataPayload(msg) {
		builder.Custom(k, v)
	}

	pushType := apns2.PushTypeAlert
	priority := apns2.PriorityHigh
	if msg.Silent {
		pushType = apns2.PushTypeBackground
		priority = apns2.PriorityLow
	}

	var invalidTokens []string
	successCount, failureCount := 0, 0

	for _, deviceToken := range tokens {
		n := &apns2.Notification{
			DeviceToken: deviceToken,
			Topic:       s.topic,
			Payload:     builder,
			PushType:    pushType,
			Priority:    priority,
			CollapseID:  msg.MessageID,
		}

		res, err := s.client.PushWithContext(ctx, n)
		if err != nil {
			s.logger.Error("APNs transport failed", "token", deviceToken, "err", err)
			failureCount++
			continue
		}

		if res.Sent() {
			successCount++
			continue
		}
		failureCount++
		switch res.Reason {
		case apns2.ReasonBadDeviceToken, apns2.ReasonUnregistered, apns2.ReasonDeviceTokenNotForTopic:
			invalidTokens = append(invalidTokens, deviceToken)
		default:
			// the token may be fine; our configuration is not
			s.logger.Warn("APNs rejected notification", "reason", res.Reason, "status", res.StatusCode)
		}
	}

	receipt := fmt.Sprintf("success:%d invalid:%d total_fail:%d", successCount, len(invalidTokens), failureCount)
	return receipt, invalidTokens, nil
}
