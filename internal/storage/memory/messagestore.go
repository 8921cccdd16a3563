// Package memory is an in-process MessageStore, the default persistence of the
// reference native runtime.
package memory

import (
	"context"
	"sort"

	"github.com/puzpuzpuz/xsync/v4"
	"github.com/tinywideclouds/go-mobilemessaging-bridge/pkg/bridge"
)

// MessageStore keeps messages in a concurrent map keyed by message id.
type MessageStore struct {
	messages *xsync.Map[string, bridge.Message]
}

func NewMessageStore() *MessageStore {
	return &MessageStore{messages: xsync.NewMap[string, bridge.Message]()}
}

var _ bridge.MessageStore = (*MessageStore)(nil)

func (s *MessageStore) Save(_ context.Context, messages ...bridge.Message) error {
	for _, m := range messages {
		s.messages.Store(m.MessageID, m)
	}
	return nil
}

func (s *MessageStore) Find(_ context.Context, messageID string) (*bridge.Message, error) {
	m, ok := s.messages.Load(messageID)
	if !ok {
		return nil, nil
	}
	return &m, nil
}

// FindAll returns every message, oldest first.
func (s *MessageStore) FindAll(_ context.Context) ([]bridge.Message, error) {
	out := make([]bridge.Message, 0, s.messages.Size())
	s.messages.Range(func(_ string, m bridge.Message) bool {
		out = append(out, m)
		return true
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].ReceivedAt.Equal(out[j].ReceivedAt) {
			return out[i].MessageID < out[j].MessageID
		}
		return out[i].ReceivedAt.Before(out[j].ReceivedAt)
	})
	return out, nil
}

func (s *MessageStore) Delete(_ context.Context, messageID string) error {
	s.messages.Delete(messageID)
	return nil
}

func (s *MessageStore) DeleteAll(_ context.Context) error {
	s.messages.Clear()
	return nil
}

// MarkSeen flags the given messages; unknown ids are skipped.
func (s *MessageStore) MarkSeen(_ context.Context, messageIDs ...string) error {
	for _, id := range messageIDs {
		s.messages.Compute(id, func(m bridge.Message, loaded bool) (bridge.Message, xsync.ComputeOp) {
			if !loaded {
				return m, xsync.CancelOp
			}
			m.Seen = true
			return m, xsync.UpdateOp
		})
	}
	return nil
}
