// Package pipeline turns push requests arriving on Pub/Sub into messages
// delivered to the device side of the bridge.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/tinywideclouds/go-platform/pkg/notification/v1"
)

var (
	// ErrMissingRecipient marks a push request with no recipient URN.
	ErrMissingRecipient = errors.New("push request has no recipient")
	// ErrEmptyPush marks a push request that would show the user nothing:
	// no title, no body and no data payload.
	ErrEmptyPush = errors.New("push request has no content")
)

// NotificationRequestTransformer is a dataflow Transformer that turns a raw
// Pub/Sub payload into a push request the device can show. Requests that do
// not parse, or that have no recipient or nothing to deliver, are skipped so
// the StreamingService Nacks them towards the DLQ instead of retrying.
func NotificationRequestTransformer(
	_ context.Context,
	msg *messagepipeline.Message,
) (*notification.NotificationRequest, bool, error) {
	var req notification.NotificationRequest
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		return nil, true, fmt.Errorf("failed to unmarshal notification request from message %s: %w", msg.ID, err)
	}
	if err := validatePush(&req); err != nil {
		return nil, true, fmt.Errorf("rejected notification request from message %s: %w", msg.ID, err)
	}
	return &req, false, nil
}

func validatePush(req *notification.NotificationRequest) error {
	if req.RecipientID.IsZero() {
		return ErrMissingRecipient
	}
	if req.Content.Title == "" && req.Content.Body == "" && len(req.DataPayload) == 0 {
		return ErrEmptyPush
	}
	return nil
}
