package timing

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameRate(t *testing.T) {
	assert.InDelta(t, 59.7275, FrameRate(), 0.0001)
	assert.InDelta(t, 16742706, float64(FrameDuration()), 1000)
}

func TestNoOpLimiter(t *testing.T) {
	l := NewLimiter(false)
	defer l.Stop()

	start := time.Now()
	for i := 0; i < 100; i++ {
		require.NoError(t, l.Wait(context.Background()))
	}
	assert.Less(t, time.Since(start), 50*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, l.Wait(ctx), context.Canceled)
}

func TestTickerLimiter(t *testing.T) {
	l := NewTickerLimiter(2 * time.Millisecond)
	defer l.Stop()

	start := time.Now()
	for i := 0; i < 5; i++ {
		require.NoError(t, l.Wait(context.Background()))
	}
	assert.GreaterOrEqual(t, time.Since(start), 8*time.Millisecond)

	slow := NewTickerLimiter(time.Hour)
	defer slow.Stop()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, slow.Wait(ctx), context.Canceled)
}
