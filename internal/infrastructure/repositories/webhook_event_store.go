package repositories

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// WebhookEventStore records processed provider event keys in Redis.
// SET NX is the atomic check-and-insert: exactly one delivery of a
// given event wins, every redelivery observes the existing key.
type WebhookEventStore struct {
	client *redis.Client
}

// NewWebhookEventStore creates a Redis-backed webhook event store.
func NewWebhookEventStore(client *redis.Client) *WebhookEventStore {
	return &WebhookEventStore{client: client}
}

// MarkProcessed atomically claims the event key. Returns true if the
// key already existed (the event was handled before).
func (s *WebhookEventStore) MarkProcessed(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, "webhook:event:"+key, time.Now().UTC().Format(time.RFC3339), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to claim webhook event key: %w", err)
	}
	return !ok, nil
}

// Release drops a claimed key so the provider's redelivery of the
// event is accepted again.
func (s *WebhookEventStore) Release(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, "webhook:event:"+key).Err(); err != nil {
		return fmt.Errorf("failed to release webhook event key: %w", err)
	}
	return nil
}

// InMemoryWebhookEventStore is a process-local store used in tests and
// single-node development setups.
type InMemoryWebhookEventStore struct {
	mu   sync.Mutex
	seen map[string]time.Time
}

// NewInMemoryWebhookEventStore creates an in-memory webhook event store.
func NewInMemoryWebhookEventStore() *InMemoryWebhookEventStore {
	return &InMemoryWebhookEventStore{seen: make(map[string]time.Time)}
}

// MarkProcessed claims the key in memory.
func (s *InMemoryWebhookEventStore) MarkProcessed(_ context.Context, key string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if expiry, ok := s.seen[key]; ok && now.Before(expiry) {
		return true, nil
	}
	s.seen[key] = now.Add(ttl)
	return false, nil
}

// Release drops a claimed key from memory.
func (s *InMemoryWebhookEventStore) Release(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.seen, key)
	return nil
}
