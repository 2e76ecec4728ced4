package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestLimiterUnlimitedDimensionsNeverBlock(t *testing.T) {
	lim := NewLimiter(Limits{})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	release, err := lim.Acquire(ctx)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	release()

	if err := lim.Charge(ctx, 1<<20); err != nil {
		t.Fatalf("Charge: %v", err)
	}
}

func TestLimiterRequestBucketThrottles(t *testing.T) {
	lim := NewLimiter(Limits{RequestsPerMin: 60}) // 1/sec, burst 60
	ctx := context.Background()

	for i := 0; i < 60; i++ {
		release, err := lim.Acquire(ctx)
		if err != nil {
			t.Fatalf("acquire %d: %v", i, err)
		}
		release()
	}

	// Bucket should now be empty; a short-deadline ctx should time out
	// waiting for the next token (refill is ~1/sec).
	short, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
	defer cancel()
	if _, err := lim.Acquire(short); err == nil {
		t.Fatalf("expected timeout once burst is exhausted")
	}
}

func TestLimiterConcurrencyCapsInFlight(t *testing.T) {
	lim := NewLimiter(Limits{Concurrency: 2})
	ctx := context.Background()

	rel1, err := lim.Acquire(ctx)
	if err != nil {
		t.Fatalf("acquire 1: %v", err)
	}
	rel2, err := lim.Acquire(ctx)
	if err != nil {
		t.Fatalf("acquire 2: %v", err)
	}

	short, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	if _, err := lim.Acquire(short); err == nil {
		t.Fatalf("expected third acquire to block past the concurrency cap")
	}

	rel1()
	rel2()
}

func TestLimiterAcquireReleaseIsIdempotent(t *testing.T) {
	lim := NewLimiter(Limits{Concurrency: 1})
	ctx := context.Background()

	release, err := lim.Acquire(ctx)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	release()
	release() // must not panic or double-release the semaphore

	if _, err := lim.Acquire(ctx); err != nil {
		t.Fatalf("acquire after release: %v", err)
	}
}

func TestLimiterContextCancelDuringAcquireReleasesNothing(t *testing.T) {
	lim := NewLimiter(Limits{Concurrency: 1})
	ctx := context.Background()

	release, err := lim.Acquire(ctx)
	if err != nil {
		t.Fatalf("first acquire: %v", err)
	}
	defer release()

	cctx, cancel := context.WithCancel(ctx)
	cancel()
	if _, err := lim.Acquire(cctx); err == nil {
		t.Fatalf("expected acquire to fail on an already-cancelled context")
	}
}

func TestManagerForSourceIsStablePerSource(t *testing.T) {
	m := NewManager()
	a := m.ForSource("kexp", Limits{RequestsPerMin: 10})
	b := m.ForSource("kexp", Limits{RequestsPerMin: 9999})
	if a != b {
		t.Fatalf("expected same *Limiter instance for repeated calls with the same source id")
	}

	var wg sync.WaitGroup
	ids := []string{"a", "b", "c", "d"}
	for _, id := range ids {
		id := id
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.ForSource(id, Limits{Concurrency: 1})
		}()
	}
	wg.Wait()

	for _, id := range ids {
		if m.ForSource(id, Limits{}) == nil {
			t.Fatalf("expected limiter for %s", id)
		}
	}
}
