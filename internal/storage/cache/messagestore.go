package cache

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tinywideclouds/go-mobilemessaging-bridge/pkg/bridge"
)

// CacheClient defines the subset of Redis commands we need.
type CacheClient interface {
	// Get returns the value or ErrMiss if not found.
	Get(ctx context.Context, key string, dest any) error
	// Set stores the value with a TTL.
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	// Del removes the keys.
	Del(ctx context.Context, keys ...string) error
}

// CachedMessageStore is a Decorator that adds Read-Aside caching to any
// bridge.MessageStore. Writes go to the real store first, then invalidate.
type CachedMessageStore struct {
	realStore bridge.MessageStore
	cache     CacheClient
	ttl       time.Duration
	prefix    string
	logger    *slog.Logger
}

// NewCachedMessageStore creates the decorator. Keys are scoped by applicationCode.
func NewCachedMessageStore(realStore bridge.MessageStore, cache CacheClient, ttl time.Duration, applicationCode string, logger *slog.Logger) *CachedMessageStore {
	return &CachedMessageStore{
		realStore: realStore,
		cache:     cache,
		ttl:       ttl,
		prefix:    fmt.Sprintf("mm:%s:", applicationCode),
		logger:    logger.With("component", "CachedMessageStore"),
	}
}

var _ bridge.MessageStore = (*CachedMessageStore)(nil)

// --- READ PATHS (Read-Aside) ---

func (s *CachedMessageStore) Find(ctx context.Context, messageID string) (*bridge.Message, error) {
	key := s.messageKey(messageID)

	var cached bridge.Message
	if err := s.cache.Get(ctx, key, &cached); err == nil {
		return &cached, nil
	} else if !IsMiss(err) {
		s.logger.Debug("Cache read failed, serving from store", "key", key, "err", err)
	}

	fresh, err := s.realStore.Find(ctx, messageID)
	if err != nil {
		return nil, err
	}
	// misses are not cached so a later Save is visible immediately
	if fresh != nil {
		_ = s.cache.Set(ctx, key, fresh, s.ttl)
	}
	return fresh, nil
}

func (s *CachedMessageStore) FindAll(ctx context.Context) ([]bridge.Message, error) {
	key := s.listKey()

	var cached []bridge.Message
	if err := s.cache.Get(ctx, key, &cached); err == nil {
		return cached, nil
	}

	fresh, err := s.realStore.FindAll(ctx)
	if err != nil {
		return nil, err
	}
	_ = s.cache.Set(ctx, key, fresh, s.ttl)
	return fresh, nil
}

// --- WRITE PATHS (Invalidate-on-Write) ---

func (s *CachedMessageStore) Save(ctx context.Context, messages ...bridge.Message) error {
	if err := s.realStore.Save(ctx, messages...); err != nil {
		return err
	}
	return s.invalidate(ctx, idsOf(messages)...)
}

func (s *CachedMessageStore) Delete(ctx context.Context, messageID string) error {
	if err := s.realStore.Delete(ctx, messageID); err != nil {
		return err
	}
	return s.invalidate(ctx, messageID)
}

// DeleteAll cannot enumerate cached message keys, so it relies on the list key
// plus TTL expiry for per-message entries it did not see.
func (s *CachedMessageStore) DeleteAll(ctx context.Context) error {
	all, err := s.realStore.FindAll(ctx)
	if err != nil {
		return err
	}
	if err := s.realStore.DeleteAll(ctx); err != nil {
		return err
	}
	return s.invalidate(ctx, idsOf(all)...)
}

func (s *CachedMessageStore) MarkSeen(ctx context.Context, messageIDs ...string) error {
	if err := s.realStore.MarkSeen(ctx, messageIDs...); err != nil {
		return err
	}
	return s.invalidate(ctx, messageIDs...)
}

// --- Helpers ---

func (s *CachedMessageStore) invalidate(ctx context.Context, messageIDs ...string) error {
	keys := make([]string, 0, len(messageIDs)+1)
	keys = append(keys, s.listKey())
	for _, id := range messageIDs {
		keys = append(keys, s.messageKey(id))
	}
	return s.cache.Del(ctx, keys...)
}

func (s *CachedMessageStore) messageKey(messageID string) string {
	return s.prefix + "message:" + messageID
}

func (s *CachedMessageStore) listKey() string {
	return s.prefix + "messages"
}

func idsOf(messages []bridge.Message) []string {
	ids := make([]string, len(messages))
	for i, m := range messages {
		ids[i] = m.MessageID
	}
	return ids
}
