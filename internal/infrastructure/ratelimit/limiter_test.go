package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestLimiter_MinIntervalSerializesCalls(t *testing.T) {
	l := New(map[string]Policy{"nordic": {MinInterval: 20 * time.Millisecond}}, nil, zap.NewNop())

	start := time.Now()
	for i := 0; i < 3; i++ {
		assert.NoError(t, l.Acquire(context.Background(), "nordic"))
	}
	elapsed := time.Since(start)

	assert.GreaterOrEqual(t, elapsed, 30*time.Millisecond)
}

func TestLimiter_ObserveRetryAfterDelaysNextAcquire(t *testing.T) {
	l := New(map[string]Policy{"global": {MinInterval: time.Microsecond}}, nil, zap.NewNop())

	assert.NoError(t, l.Acquire(context.Background(), "global"))
	assert.NoError(t, l.ObserveRetryAfter(context.Background(), "global", 30*time.Millisecond))

	start := time.Now()
	assert.NoError(t, l.Acquire(context.Background(), "global"))
	elapsed := time.Since(start)

	assert.GreaterOrEqual(t, elapsed, 25*time.Millisecond)
}

func TestLimiter_CancellationReleasesWaiterWithoutGrantingSlot(t *testing.T) {
	l := New(map[string]Policy{"nordic": {MinInterval: time.Hour}}, nil, zap.NewNop())

	assert.NoError(t, l.Acquire(context.Background(), "nordic"))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := l.Acquire(ctx, "nordic")
	assert.Error(t, err)
}

func TestLimiter_ReadyReflectsArmedRetryAfter(t *testing.T) {
	l := New(map[string]Policy{"nordic": {MinInterval: time.Microsecond}}, nil, zap.NewNop())

	assert.True(t, l.Ready("nordic"))

	assert.NoError(t, l.ObserveRetryAfter(context.Background(), "nordic", 50*time.Millisecond))
	assert.False(t, l.Ready("nordic"))

	time.Sleep(60 * time.Millisecond)
	assert.True(t, l.Ready("nordic"))
}

func TestLimiter_IndependentProvidersDoNotBlockEachOther(t *testing.T) {
	l := New(map[string]Policy{
		"nordic": {MinInterval: time.Hour},
		"global": {MinInterval: time.Microsecond},
	}, nil, zap.NewNop())

	assert.NoError(t, l.Acquire(context.Background(), "nordic"))

	start := time.Now()
	assert.NoError(t, l.Acquire(context.Background(), "global"))
	assert.Less(t, time.Since(start), 50*time.Millisecond)
}
