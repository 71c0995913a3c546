package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/patrickwarner/creativeloop/internal/models"
)

// RedisStore wraps a redis client and context for operations. It holds the
// render event handoff records and publishes a change message for every write.
type RedisStore struct {
	Client *redis.Client
	Ctx    context.Context
	// EventTTL bounds the lifetime of event records; zero keeps them forever.
	EventTTL time.Duration
}

// InitRedis initializes a Redis client and returns a RedisStore.
func InitRedis(addr string, eventTTL time.Duration) (*RedisStore, error) {
	rs := &RedisStore{
		Client:   redis.NewClient(&redis.Options{Addr: addr}),
		Ctx:      context.Background(),
		EventTTL: eventTTL,
	}

	// Add OpenTelemetry instrumentation to Redis client
	if err := redisotel.InstrumentTracing(rs.Client); err != nil {
		return nil, fmt.Errorf("failed to instrument redis tracing: %w", err)
	}

	if err := rs.Client.Ping(rs.Ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	zap.L().Info("Connected to Redis", zap.String("addr", addr))
	return rs, nil
}

// eventChannel is the pub/sub channel carrying changes to the event at key.
func eventChannel(key string) string {
	return "events:" + key
}

// CreateEvent writes ev only if no event exists under its key and publishes it.
// It reports whether the event was written. A webhook that completed the event
// first is therefore never overwritten by a PENDING write.
func (r *RedisStore) CreateEvent(ctx context.Context, ev models.Event) (bool, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return false, fmt.Errorf("marshal event %s: %w", ev.Key, err)
	}
	created, err := r.Client.SetNX(ctx, ev.Key, data, r.EventTTL).Result()
	if err != nil {
		return false, fmt.Errorf("create event %s: %w", ev.Key, err)
	}
	if !created {
		return false, nil
	}
	if err := r.Client.Publish(ctx, eventChannel(ev.Key), data).Err(); err != nil {
		return true, fmt.Errorf("publish event %s: %w", ev.Key, err)
	}
	return true, nil
}

// CompleteEvent overwrites the event at ev.Key and publishes the change.
func (r *RedisStore) CompleteEvent(ctx context.Context, ev models.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event %s: %w", ev.Key, err)
	}
	if err := r.Client.Set(ctx, ev.Key, data, r.EventTTL).Err(); err != nil {
		return fmt.Errorf("write event %s: %w", ev.Key, err)
	}
	if err := r.Client.Publish(ctx, eventChannel(ev.Key), data).Err(); err != nil {
		return fmt.Errorf("publish event %s: %w", ev.Key, err)
	}
	return nil
}

// GetEvent reads the event at key. Missing events return models.ErrNotFound.
func (r *RedisStore) GetEvent(ctx context.Context, key string) (*models.Event, error) {
	data, err := r.Client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get event %s: %w", key, err)
	}
	var ev models.Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, fmt.Errorf("decode event %s: %w", key, err)
	}
	return &ev, nil
}

// SubscribeEvent streams every change written to the event at key. The
// subscription is confirmed before returning, so writes after the call are
// never missed. Call unsubscribe to release it.
func (r *RedisStore) SubscribeEvent(ctx context.Context, key string) (<-chan models.Event, func(), error) {
	ps := r.Client.Subscribe(ctx, eventChannel(key))
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, nil, fmt.Errorf("subscribe event %s: %w", key, err)
	}

	out := make(chan models.Event, 1)
	done := make(chan struct{})
	msgs := ps.Channel()
	go func() {
		defer close(out)
		for {
			select {
			case <-done:
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var ev models.Event
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					zap.L().Warn("discarding malformed event message", zap.String("key", key), zap.Error(err))
					continue
				}
				select {
				case out <- ev:
				case <-done:
					return
				}
			}
		}
	}()

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			close(done)
			if err := ps.Close(); err != nil {
				zap.L().Debug("pubsub close", zap.String("key", key), zap.Error(err))
			}
		})
	}
	return out, unsubscribe, nil
}

// ScanEvents returns the keys of stored events matching prefix.
func (r *RedisStore) ScanEvents(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	iter := r.Client.Scan(ctx, 0, prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan events: %w", err)
	}
	return keys, nil
}

// Close shuts down the Redis client.
func (r *RedisStore) Close() {
	if r != nil && r.Client != nil {
		if err := r.Client.Close(); err != nil {
			zap.L().Error("redis close", zap.Error(err))
		}
	}
}
