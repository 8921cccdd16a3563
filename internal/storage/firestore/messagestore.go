package firestore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/tinywideclouds/go-mobilemessaging-bridge/pkg/bridge"
)

// MessageStore implements bridge.MessageStore using Google Cloud Firestore.
// Messages live under installations/{applicationCode}/messages.
type MessageStore struct {
	client          *firestore.Client
	applicationCode string
}

func NewMessageStore(client *firestore.Client, applicationCode string) *MessageStore {
	return &MessageStore{client: client, applicationCode: applicationCode}
}

var _ bridge.MessageStore = (*MessageStore)(nil)

// messageRecord is the internal DB representation.
type messageRecord struct {
	MessageID     string            `firestore:"message_id"`
	Title         string            `firestore:"title,omitempty"`
	Body          string            `firestore:"body"`
	Sound         string            `firestore:"sound,omitempty"`
	Silent        bool              `firestore:"silent"`
	CustomPayload map[string]string `firestore:"custom_payload,omitempty"`
	ReceivedAt    time.Time         `firestore:"received_at"`
	Seen          bool              `firestore:"seen"`
}

func toRecord(m bridge.Message) messageRecord {
	return messageRecord{
		MessageID:     m.MessageID,
		Title:         m.Title,
		Body:          m.Body,
		Sound:         m.Sound,
		Silent:        m.Silent,
		CustomPayload: m.CustomPayload,
		ReceivedAt:    m.ReceivedAt,
		Seen:          m.Seen,
	}
}

func (r messageRecord) message() bridge.Message {
	return bridge.Message{
		MessageID:     r.MessageID,
		Title:         r.Title,
		Body:          r.Body,
		Sound:         r.Sound,
		Silent:        r.Silent,
		CustomPayload: r.CustomPayload,
		ReceivedAt:    r.ReceivedAt,
		Seen:          r.Seen,
	}
}

func (s *MessageStore) Save(ctx context.Context, messages ...bridge.Message) error {
	if len(messages) == 1 {
		_, err := s.messageRef(messages[0].MessageID).Set(ctx, toRecord(messages[0]))
		return err
	}

	bw := s.client.BulkWriter(ctx)
	jobs := make([]*firestore.BulkWriterJob, 0, len(messages))
	for _, m := range messages {
		job, err := bw.Set(s.messageRef(m.MessageID), toRecord(m))
		if err != nil {
			bw.End()
			return fmt.Errorf("failed to queue message %s: %w", m.MessageID, err)
		}
		jobs = append(jobs, job)
	}
	bw.End()

	for i, job := range jobs {
		if _, err := job.Results(); err != nil {
			return fmt.Errorf("failed to save message %s: %w", messages[i].MessageID, err)
		}
	}
	return nil
}

func (s *MessageStore) Find(ctx context.Context, messageID string) (*bridge.Message, error) {
	doc, err := s.messageRef(messageID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get message %s: %w", messageID, err)
	}

	var record messageRecord
	if err := doc.DataTo(&record); err != nil {
		return nil, fmt.Errorf("failed to decode message %s: %w", messageID, err)
	}
	m := record.message()
	return &m, nil
}

// FindAll returns every message, oldest first.
func (s *MessageStore) FindAll(ctx context.Context) ([]bridge.Message, error) {
	iter := s.messagesCollection().OrderBy("received_at", firestore.Asc).Documents(ctx)
	defer iter.Stop()

	out := make([]bridge.Message, 0)
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("firestore iteration failed: %w", err)
		}

		var record messageRecord
		if err := doc.DataTo(&record); err != nil {
			// skip corrupt rows
			continue
		}
		out = append(out, record.message())
	}
	return out, nil
}

func (s *MessageStore) Delete(ctx context.Context, messageID string) error {
	_, err := s.messageRef(messageID).Delete(ctx)
	return err
}

func (s *MessageStore) DeleteAll(ctx context.Context) error {
	refs, err := s.messagesCollection().DocumentRefs(ctx).GetAll()
	if err != nil {
		return fmt.Errorf("failed to list messages: %w", err)
	}
	if len(refs) == 0 {
		return nil
	}

	bw := s.client.BulkWriter(ctx)
	for _, ref := range refs {
		if _, err := bw.Delete(ref); err != nil {
			bw.End()
			return fmt.Errorf("failed to queue delete of %s: %w", ref.ID, err)
		}
	}
	bw.End()
	return nil
}

// MarkSeen flags the given messages; ids with no document are skipped.
func (s *MessageStore) MarkSeen(ctx context.Context, messageIDs ...string) error {
	for _, id := range messageIDs {
		_, err := s.messageRef(id).Update(ctx, []firestore.Update{{Path: "seen", Value: true}})
		if err != nil && status.Code(err) != codes.NotFound {
			return fmt.Errorf("failed to mark message %s seen: %w", id, err)
		}
	}
	return nil
}

// --- Helpers ---

// messageRef: installations/{applicationCode}/messages/{messageHash}
func (s *MessageStore) messageRef(messageID string) *firestore.DocumentRef {
	return s.messagesCollection().Doc(hashID(messageID))
}

func (s *MessageStore) messagesCollection() *firestore.CollectionRef {
	return s.client.Collection("installations").Doc(s.applicationCode).Collection("messages")
}

// hashID keeps arbitrary message ids (which may contain '/') usable as doc IDs.
func hashID(id string) string {
	sum := sha256.Sum256([]byte(id))
	return hex.EncodeToString(sum[:])
}
