package ratelimit

import (
	"context"
	"testing"
	"time"
)

func waitWithin(l *RequestLimiter, d time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	return l.Wait(ctx)
}

func TestRequestLimiterBurst(t *testing.T) {
	l := NewRequestLimiter(60, 3)

	for i := 0; i < 3; i++ {
		if err := waitWithin(l, 20*time.Millisecond); err != nil {
			t.Errorf("Expected request %d to pass within burst: %v", i+1, err)
		}
	}

	if err := waitWithin(l, 20*time.Millisecond); err == nil {
		t.Error("Expected request to wait once the burst is spent")
	}
}

func TestRequestLimiterUnlimited(t *testing.T) {
	l := NewRequestLimiter(0, 0)

	for i := 0; i < 1000; i++ {
		if err := waitWithin(l, time.Second); err != nil {
			t.Fatalf("Unlimited limiter should never block: %v", err)
		}
	}
}

func TestPacerRange(t *testing.T) {
	p := NewPacer(3*time.Second, 6*time.Second, nil)

	for i := 0; i < 200; i++ {
		d := p.Next()
		if d < 3*time.Second || d > 6*time.Second {
			t.Fatalf("Delay %v outside [3s, 6s]", d)
		}
	}
}

func TestPacerPauseUsesSleeper(t *testing.T) {
	var slept []time.Duration
	p := NewPacer(time.Second, time.Second, func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	})

	d, err := p.Pause(context.Background())
	if err != nil {
		t.Fatalf("Pause failed: %v", err)
	}
	if d != time.Second || len(slept) != 1 || slept[0] != time.Second {
		t.Errorf("Expected a single 1s sleep, got %v", slept)
	}
}

func TestPacerPauseCancelled(t *testing.T) {
	p := NewPacer(time.Hour, time.Hour, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := p.Pause(ctx); err == nil {
		t.Error("Expected cancelled context to abort the pause")
	}
}
