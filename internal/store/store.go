package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"push-dispatch-go/internal/models"

	"github.com/redis/go-redis/v9"
)

const dispatchChannel = "push_dispatch_events"

// SubscriptionStore holds push endpoints keyed by (user_id, endpoint) (PostgreSQL)
type SubscriptionStore interface {
	ListSubscriptions(ctx context.Context, userID string) ([]models.Subscription, error)
	DeleteSubscriptions(ctx context.Context, userID string, endpoints []string) error
	UpsertSubscription(ctx context.Context, sub models.Subscription) error
	DeleteSubscription(ctx context.Context, userID, endpoint string) error
}

// NotificationStore reads notification rows written by the rest of the app (PostgreSQL)
type NotificationStore interface {
	ListPendingNotifications(ctx context.Context, filter models.NotificationFilter) ([]models.Notification, error)
	MarkNotificationsDispatched(ctx context.Context, ids []string) error
}

// RedisStore backs the shared dedup window and the dispatch event feed.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(opts *redis.Options) *RedisStore {
	rdb := redis.NewClient(opts)
	return &RedisStore{client: rdb}
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

// MarkSeen sets key only if absent, expiring after ttl. It reports whether the
// key was newly created.
func (s *RedisStore) MarkSeen(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return s.client.SetNX(ctx, key, time.Now().UnixMilli(), ttl).Result()
}

func (s *RedisStore) PublishDispatch(ctx context.Context, ev models.DispatchEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if err := s.client.Publish(ctx, dispatchChannel, data).Err(); err != nil {
		return fmt.Errorf("publish dispatch event: %w", err)
	}
	return nil
}

func (s *RedisStore) Subscribe(ctx context.Context) *redis.PubSub {
	return s.client.Subscribe(ctx, dispatchChannel)
}
