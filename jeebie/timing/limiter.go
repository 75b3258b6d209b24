package timing

import (
	"context"
	"time"

	"github.com/valerio/jeebie-core/jeebie/video"
)

// ClockHz is the DMG master clock: one tick is one dot.
const ClockHz = 4194304

// Limiter paces a host loop to the DMG frame rate.
type Limiter interface {
	// Wait blocks until the next frame is due or ctx is done.
	Wait(ctx context.Context) error
	// Reset restarts the schedule, useful after a pause.
	Reset()
	Stop()
}

// FrameRate is the exact DMG refresh rate, about 59.73 Hz.
func FrameRate() float64 {
	return float64(ClockHz) / float64(video.DotsPerFrame)
}

// FrameDuration returns the length of a single frame.
func FrameDuration() time.Duration {
	return time.Duration(float64(time.Second) / FrameRate())
}

// NewLimiter returns a real-time limiter, or one that never waits when
// realtime is false (headless runs).
func NewLimiter(realtime bool) Limiter {
	if !realtime {
		return noOpLimiter{}
	}
	return NewTickerLimiter(FrameDuration())
}

type noOpLimiter struct{}

func (noOpLimiter) Wait(ctx context.Context) error { return ctx.Err() }
func (noOpLimiter) Reset()                         {}
func (noOpLimiter) Stop()                          {}
