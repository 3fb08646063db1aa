package redis

import (
	"context"
	"errors"
	"time"
)

// WebhookGuard deduplicates at-least-once supplier callback deliveries by
// event id. The guard is a first line of defense only; the reconciler's merges
// stay idempotent because guard entries expire.
type WebhookGuard struct {
	store cmdable
	ttl   time.Duration
}

// NewWebhookGuard builds a guard keyed under the webhook namespace.
func NewWebhookGuard(client *Client, ttl time.Duration) (*WebhookGuard, error) {
	if client == nil {
		return nil, errors.New("redis client required")
	}
	if ttl <= 0 {
		ttl = 72 * time.Hour
	}
	return &WebhookGuard{store: client.store, ttl: ttl}, nil
}

// CheckAndMark returns true when the event id was already processed. Unseen
// ids are marked atomically so a concurrent duplicate delivery loses the race.
func (g *WebhookGuard) CheckAndMark(ctx context.Context, provider, eventID string) (bool, error) {
	if eventID == "" {
		return false, errors.New("event id required")
	}
	key := buildKey(webhookPrefix, provider, eventID)
	set, err := g.store.SetNX(ctx, key, 1, g.ttl).Result()
	if err != nil {
		return false, err
	}
	return !set, nil
}

// Delete releases the mark so the supplier's redelivery can be reprocessed
// after a handler failure.
func (g *WebhookGuard) Delete(ctx context.Context, provider, eventID string) error {
	key := buildKey(webhookPrefix, provider, eventID)
	return g.store.Del(ctx, key).Err()
}
