package cache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/fiscal-extractor/constants"
	"github.com/joseph-ayodele/fiscal-extractor/internal/entity"
)

func sample() entity.AcquiredText {
	conf := 0.87
	return entity.AcquiredText{
		Kind:          constants.IMAGE,
		Text:          "TOTAL $116.00",
		Method:        entity.AcquiredFromOCR,
		OCRConfidence: &conf,
		Pages:         1,
		Warnings:      []string{"converted HEIC to PNG before OCR"},
	}
}

func TestMemoryTextCache_GetSet(t *testing.T) {
	c := NewMemoryTextCache(0, 0)
	ctx := context.Background()

	_, ok, err := c.Get(ctx, "doc")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, "doc", sample()))
	got, ok, err := c.Get(ctx, "doc")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, sample(), got)
}

func TestMemoryTextCache_Expiry(t *testing.T) {
	c := NewMemoryTextCache(time.Minute, 0)
	now := time.Date(2024, 3, 5, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "doc", sample()))
	now = now.Add(59 * time.Second)
	_, ok, _ := c.Get(ctx, "doc")
	assert.True(t, ok)

	now = now.Add(time.Second)
	_, ok, _ = c.Get(ctx, "doc")
	assert.False(t, ok)
	assert.Zero(t, c.Len())
}

func TestMemoryTextCache_EvictsOldest(t *testing.T) {
	c := NewMemoryTextCache(0, 2)
	now := time.Date(2024, 3, 5, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { now = now.Add(time.Second); return now }
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "a", sample()))
	require.NoError(t, c.Set(ctx, "b", sample()))
	require.NoError(t, c.Set(ctx, "c", sample()))

	assert.Equal(t, 2, c.Len())
	_, ok, _ := c.Get(ctx, "a")
	assert.False(t, ok)
	_, ok, _ = c.Get(ctx, "c")
	assert.True(t, ok)
}

type fakeKV struct {
	mu   sync.Mutex
	data map[string][]byte
	ttls map[string]time.Duration
	err  error
}

func (f *fakeKV) Get(ctx context.Context, key string) *redis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return redis.NewStringResult("", f.err)
	}
	b, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(string(b), nil)
}

func (f *fakeKV) Set(ctx context.Context, key string, value any, ttl time.Duration) *redis.StatusCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return redis.NewStatusResult("", f.err)
	}
	f.data[key] = value.([]byte)
	f.ttls[key] = ttl
	return redis.NewStatusResult("OK", nil)
}

func TestRedisTextCache_RoundTrip(t *testing.T) {
	kv := &fakeKV{data: map[string][]byte{}, ttls: map[string]time.Duration{}}
	c := &RedisTextCache{client: kv, ttl: time.Hour}
	ctx := context.Background()

	_, ok, err := c.Get(ctx, "doc")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, "doc", sample()))
	assert.Equal(t, time.Hour, kv.ttls[keyPrefix+"doc"])

	got, ok, err := c.Get(ctx, "doc")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, sample(), got)
}

func TestRedisTextCache_Errors(t *testing.T) {
	boom := errors.New("connection refused")
	c := &RedisTextCache{client: &fakeKV{err: boom}}

	_, _, err := c.Get(context.Background(), "doc")
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, c.Set(context.Background(), "doc", sample()), boom)

	corrupt := &fakeKV{data: map[string][]byte{keyPrefix + "doc": []byte("{not json")}, ttls: map[string]time.Duration{}}
	_, ok, err := (&RedisTextCache{client: corrupt}).Get(context.Background(), "doc")
	assert.Error(t, err)
	assert.False(t, ok)
}
