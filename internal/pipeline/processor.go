package pipeline

import (
	"context"
	"log/slog"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/tinywideclouds/go-mobilemessaging-bridge/internal/platform"
	"github.com/tinywideclouds/go-mobilemessaging-bridge/pkg/bridge"
	urn "github.com/tinywideclouds/go-platform/pkg/net/v1"
	"github.com/tinywideclouds/go-platform/pkg/notification/v1"
)

// Receiver is the device side a push lands on.
type Receiver interface {
	Deliver(ctx context.Context, msg bridge.Message) (bridge.Message, error)
}

// NewProcessor creates the stage that hands each request to the receiver. When
// recipient is set, requests for anyone else are acknowledged and dropped.
func NewProcessor(
	receiver Receiver,
	recipient *urn.URN,
	logger *slog.Logger,
) messagepipeline.StreamProcessor[notification.NotificationRequest] {
	logger = logger.With("component", "PushProcessor")
	var filter string
	if recipient != nil {
		filter = recipient.String()
	}

	return func(ctx context.Context, original messagepipeline.Message, request *notification.NotificationRequest) error {
		procLogger := logger.With(
			"recipient_id", request.RecipientID.String(),
			"pubsub_msg_id", original.ID,
		)

		if filter != "" && request.RecipientID.String() != filter {
			procLogger.Debug("Push is for another recipient; dropping")
			return nil
		}

		msg := ToMessage(original.ID, request)
		delivered, err := receiver.Deliver(ctx, msg)
		if err != nil {
			procLogger.Error("Failed to deliver push to device", "err", err)
			return err // Retryable
		}
		procLogger.Info("Push delivered", "message_id", delivered.MessageID)
		return nil
	}
}

// ToMessage maps a push request onto the message shape the bridge exposes.
// The message id comes from the data payload, else from the Pub/Sub message;
// other data entries become the custom payload.
func ToMessage(pubsubID string, request *notification.NotificationRequest) bridge.Message {
	msg := bridge.Message{
		MessageID: pubsubID,
		Title:     request.Content.Title,
		Body:      request.Content.Body,
		Sound:     request.Content.Sound,
	}
	msg.CustomPayload = platform.MessageFromData(&msg, request.DataPayload)
	return msg
}
