package timing

import (
	"context"
	"time"
)

// TickerLimiter paces frames with a time.Ticker. Ticks missed while the host
// was busy are dropped, so a slow frame is not followed by a burst.
type TickerLimiter struct {
	period time.Duration
	ticker *time.Ticker
}

func NewTickerLimiter(period time.Duration) *TickerLimiter {
	return &TickerLimiter{
		period: period,
		ticker: time.NewTicker(period),
	}
}

func (t *TickerLimiter) Wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.ticker.C:
		return nil
	}
}

func (t *TickerLimiter) Reset() {
	t.ticker.Reset(t.period)
}

func (t *TickerLimiter) Stop() {
	t.ticker.Stop()
}
