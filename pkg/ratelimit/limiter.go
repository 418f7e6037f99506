package ratelimit

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter gates outbound requests
type Limiter interface {
	// Wait blocks until a request may proceed or ctx is done
	Wait(ctx context.Context) error
}

// RequestLimiter is a token bucket over golang.org/x/time/rate
type RequestLimiter struct {
	limiter *rate.Limiter
}

// NewRequestLimiter allows perMinute requests per minute with a burst of
// burst. perMinute <= 0 disables limiting.
func NewRequestLimiter(perMinute, burst int) *RequestLimiter {
	if perMinute <= 0 {
		return &RequestLimiter{limiter: rate.NewLimiter(rate.Inf, 0)}
	}
	if burst <= 0 {
		burst = 1
	}
	every := time.Minute / time.Duration(perMinute)
	return &RequestLimiter{limiter: rate.NewLimiter(rate.Every(every), burst)}
}

func (l *RequestLimiter) Wait(ctx context.Context) error {
	return l.limiter.Wait(ctx)
}

// SleepFunc waits for d or until ctx is done
type SleepFunc func(ctx context.Context, d time.Duration) error

// Pacer spaces out sequential page requests by a random delay in
// [Min, Max]. It is not a token bucket: every call waits.
type Pacer struct {
	Min   time.Duration
	Max   time.Duration
	sleep SleepFunc

	mu  sync.Mutex
	rng *rand.Rand
}

// NewPacer creates a pacer. A nil sleep uses a context-aware timer.
func NewPacer(min, max time.Duration, sleep SleepFunc) *Pacer {
	if max < min {
		max = min
	}
	if sleep == nil {
		sleep = sleepCtx
	}
	return &Pacer{
		Min:   min,
		Max:   max,
		sleep: sleep,
		rng:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Next returns the next random delay without sleeping
func (p *Pacer) Next() time.Duration {
	if p.Max <= p.Min {
		return p.Min
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Min + time.Duration(p.rng.Int63n(int64(p.Max-p.Min)+1))
}

// Pause sleeps for a random delay and returns it
func (p *Pacer) Pause(ctx context.Context) (time.Duration, error) {
	d := p.Next()
	return d, p.sleep(ctx, d)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
