package ratelimit

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Brickmii/team-table/pkg/errors"
)

func TestAllowUpToLimit(t *testing.T) {
	limiter := New(time.Minute, 30)
	for i := 0; i < 30; i++ {
		if err := limiter.Allow("spammer"); err != nil {
			t.Fatalf("attempt %d rejected: %v", i, err)
		}
	}
	err := limiter.Allow("spammer")
	if err == nil {
		t.Fatalf("31st attempt must be rejected")
	}
	if !errors.Is(err, errors.CodeRateLimit) {
		t.Fatalf("expected RATE_LIMITED, got %v", err)
	}
}

func TestPerSenderIsolation(t *testing.T) {
	limiter := New(time.Minute, 30)
	for i := 0; i < 30; i++ {
		if err := limiter.Allow("alice"); err != nil {
			t.Fatalf("alice attempt %d rejected: %v", i, err)
		}
	}
	if err := limiter.Allow("bob"); err != nil {
		t.Fatalf("bob must not share alice's window: %v", err)
	}
}

func TestWindowSlides(t *testing.T) {
	current := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	limiter := New(time.Minute, 2)
	limiter.SetClock(func() time.Time { return current })

	if err := limiter.Allow("alice"); err != nil {
		t.Fatalf("first: %v", err)
	}
	if err := limiter.Allow("alice"); err != nil {
		t.Fatalf("second: %v", err)
	}
	if err := limiter.Allow("alice"); err == nil {
		t.Fatalf("third within window must fail")
	}

	current = current.Add(61 * time.Second)
	if err := limiter.Allow("alice"); err != nil {
		t.Fatalf("attempt after window must pass: %v", err)
	}
}

func TestRejectedAttemptNotRecorded(t *testing.T) {
	current := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	limiter := New(time.Minute, 1)
	limiter.SetClock(func() time.Time { return current })

	if err := limiter.Allow("alice"); err != nil {
		t.Fatalf("first: %v", err)
	}
	for i := 0; i < 5; i++ {
		if err := limiter.Allow("alice"); err == nil {
			t.Fatalf("expected rejection")
		}
	}
	// Only the accepted attempt ages out; the rejections left no trace.
	current = current.Add(61 * time.Second)
	if err := limiter.Allow("alice"); err != nil {
		t.Fatalf("expected recovery after window: %v", err)
	}
}

func TestReset(t *testing.T) {
	limiter := New(time.Minute, 1)
	if err := limiter.Allow("alice"); err != nil {
		t.Fatalf("first: %v", err)
	}
	if err := limiter.Allow("alice"); err == nil {
		t.Fatalf("expected rejection")
	}
	limiter.Reset()
	if err := limiter.Allow("alice"); err != nil {
		t.Fatalf("expected allowance after reset: %v", err)
	}
}

func TestReconfigure(t *testing.T) {
	limiter := New(time.Minute, 1)
	if err := limiter.Allow("alice"); err != nil {
		t.Fatalf("first: %v", err)
	}
	if err := limiter.Allow("alice"); err == nil {
		t.Fatalf("expected rejection at cap 1")
	}

	// Raising the cap applies to attempts already in the window.
	limiter.Reconfigure(time.Minute, 3)
	if err := limiter.Allow("alice"); err != nil {
		t.Fatalf("expected allowance after raising cap: %v", err)
	}

	// Non-positive values fall back to the defaults.
	limiter.Reconfigure(0, 0)
	if limiter.window != DefaultWindow || limiter.limit != DefaultLimit {
		t.Fatalf("defaults not applied: window=%v limit=%d", limiter.window, limiter.limit)
	}
}

func TestConcurrentSenders(t *testing.T) {
	limiter := New(time.Minute, 30)
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			sender := fmt.Sprintf("agent-%d", n)
			for j := 0; j < 30; j++ {
				if err := limiter.Allow(sender); err != nil {
					t.Errorf("%s attempt %d rejected: %v", sender, j, err)
					return
				}
			}
			if err := limiter.Allow(sender); err == nil {
				t.Errorf("%s over-cap attempt allowed", sender)
			}
		}(i)
	}
	wg.Wait()
}
