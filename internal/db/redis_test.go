package db

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patrickwarner/creativeloop/internal/models"
)

// setupTestRedis spins up an in-memory Redis and returns a store pointed at it.
func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *RedisStore) {
	s, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(s.Close)
	store := &RedisStore{
		Client:   redis.NewClient(&redis.Options{Addr: s.Addr()}),
		Ctx:      context.Background(),
		EventTTL: time.Hour,
	}
	t.Cleanup(store.Close)
	return s, store
}

func pendingEvent(renderID string) models.Event {
	return models.Event{
		Key:     models.RenderEventKey(renderID),
		Status:  models.EventPending,
		Payload: models.RenderPayload{RenderID: renderID, BaseAdName: "Ad", HookName: "Question", FBAdID: "ad1"},
	}
}

func TestCreateEvent_IfAbsent(t *testing.T) {
	ms, store := setupTestRedis(t)
	ctx := context.Background()

	created, err := store.CreateEvent(ctx, pendingEvent("r1"))
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, time.Hour, ms.TTL("creatomate_render:r1"))

	done := pendingEvent("r1")
	done.Status = models.EventSuccess
	done.Payload.URL = "https://cdn/r1.mp4"
	require.NoError(t, store.CompleteEvent(ctx, done))

	// a late PENDING write never clobbers the completed event
	created, err = store.CreateEvent(ctx, pendingEvent("r1"))
	require.NoError(t, err)
	assert.False(t, created)

	ev, err := store.GetEvent(ctx, "creatomate_render:r1")
	require.NoError(t, err)
	assert.Equal(t, models.EventSuccess, ev.Status)
	assert.Equal(t, "https://cdn/r1.mp4", ev.Payload.URL)
}

func TestGetEvent_NotFound(t *testing.T) {
	_, store := setupTestRedis(t)
	_, err := store.GetEvent(context.Background(), "creatomate_render:missing")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestSubscribeEvent_ReceivesCompletion(t *testing.T) {
	_, store := setupTestRedis(t)
	ctx := context.Background()

	events, unsubscribe, err := store.SubscribeEvent(ctx, "creatomate_render:r2")
	require.NoError(t, err)
	defer unsubscribe()

	done := pendingEvent("r2")
	done.Status = models.EventFailure
	require.NoError(t, store.CompleteEvent(ctx, done))

	select {
	case ev := <-events:
		assert.Equal(t, models.EventFailure, ev.Status)
		assert.Equal(t, "r2", ev.Payload.RenderID)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}

	unsubscribe()
	unsubscribe()
}

func TestScanEvents(t *testing.T) {
	_, store := setupTestRedis(t)
	ctx := context.Background()
	for _, id := range []string{"a", "b"} {
		_, err := store.CreateEvent(ctx, pendingEvent(id))
		require.NoError(t, err)
	}
	require.NoError(t, store.Client.Set(ctx, "other", "x", 0).Err())

	keys, err := store.ScanEvents(ctx, models.RenderEventPrefix)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"creatomate_render:a", "creatomate_render:b"}, keys)
}

func TestRedisLock(t *testing.T) {
	ms, store := setupTestRedis(t)
	ctx := context.Background()

	first := NewRedisLock(store.Client, "engine-run", time.Minute)
	second := NewRedisLock(store.Client, "engine-run", time.Minute)

	require.NoError(t, first.Acquire(ctx))
	assert.ErrorIs(t, second.Acquire(ctx), ErrLockHeld)

	// only the owner can release
	require.NoError(t, second.Release(ctx))
	assert.True(t, ms.Exists("lock:engine-run"))

	require.NoError(t, first.Extend(ctx, 2*time.Minute))
	assert.ErrorIs(t, second.Extend(ctx, time.Minute), ErrLockHeld)

	require.NoError(t, first.Release(ctx))
	assert.False(t, ms.Exists("lock:engine-run"))
	require.NoError(t, second.Acquire(ctx))
}

func TestRedisLock_Expires(t *testing.T) {
	ms, store := setupTestRedis(t)
	ctx := context.Background()

	lock := NewRedisLock(store.Client, "engine-run", time.Minute)
	require.NoError(t, lock.Acquire(ctx))
	ms.FastForward(2 * time.Minute)

	assert.NoError(t, NewRedisLock(store.Client, "engine-run", time.Minute).Acquire(ctx))
}
