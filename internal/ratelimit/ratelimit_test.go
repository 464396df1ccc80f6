package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_DisabledIsNil(t *testing.T) {
	l := New(Config{})
	assert.Nil(t, l)
	assert.True(t, l.Allow())
	require.NoError(t, l.Wait(context.Background()))
	l.Penalize(time.Second)
}

func TestLimiter_Burst(t *testing.T) {
	l := New(Config{RequestsPerSecond: 0.001, Burst: 2})
	assert.True(t, l.Allow())
	assert.True(t, l.Allow())
	assert.False(t, l.Allow())
}

func TestLimiter_PenaltyBlocksAllow(t *testing.T) {
	l := New(Config{RequestsPerSecond: 100, Burst: 10})
	l.Penalize(time.Hour)
	assert.False(t, l.Allow())
}

func TestLimiter_WaitHonorsContext(t *testing.T) {
	l := New(Config{RequestsPerSecond: 100, Burst: 10})
	l.Penalize(time.Hour)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, l.Wait(ctx), context.DeadlineExceeded)
}
