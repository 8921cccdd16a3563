// Package platform holds what the push transports share: the sender contract
// and the data payload keys a message travels with.
package platform

import (
	"context"
	"strconv"

	"github.com/tinywideclouds/go-mobilemessaging-bridge/pkg/bridge"
)

// Data payload keys with a meaning of their own.
const (
	DataKeyMessageID = "messageId"
	DataKeySilent    = "silent"
)

// Sender pushes a message to device tokens through one transport. It returns
// a receipt for logs and the tokens the transport reported as dead.
type Sender interface {
	Send(ctx context.Context, tokens []string, msg bridge.Message) (string, []string, error)
}

// DataPayload flattens a message's id, silent flag and custom payload into the
// string map push transports carry.
func DataPayload(msg bridge.Message) map[string]string {
	data := make(map[string]string, len(msg.CustomPayload)+2)
	for k, v := range msg.CustomPayload {
		data[k] = v
	}
	if msg.MessageID != "" {
		data[DataKeyMessageID] = msg.MessageID
	}
	if msg.Silent {
		data[DataKeySilent] = strconv.FormatBool(true)
	}
	return data
}

// MessageFromData is the inverse of DataPayload for the reserved keys: it sets
// the id and silent flag on msg and returns the remaining custom entries.
func MessageFromData(msg *bridge.Message, data map[string]string) map[string]string {
	var custom map[string]string
	for k, v := range data {
		switch k {
		case DataKeyMessageID:
			if v != "" {
				msg.MessageID = v
			}
		case DataKeySilent:
			msg.Silent, _ = strconv.ParseBool(v)
		default:
			if custom == nil {
				custom = make(map[string]string, len(data))
			}
			custom[k] = v
		}
	}
	return custom
}
