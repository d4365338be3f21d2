package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestMemoryAdmitWithinLimit(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	lim := NewMemory(3, time.Minute, WithClock(func() time.Time { return now }))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		d, err := lim.Admit(ctx, "id-1")
		if err != nil {
			t.Fatalf("Admit: %v", err)
		}
		if !d.Allowed {
			t.Fatalf("request %d denied", i+1)
		}
		if d.Remaining != 2-i {
			t.Fatalf("Remaining = %d, want %d", d.Remaining, 2-i)
		}
	}

	d, err := lim.Admit(ctx, "id-1")
	if err != nil {
		t.Fatalf("Admit: %v", err)
	}
	if d.Allowed {
		t.Fatal("fourth request admitted over a ceiling of 3")
	}
	if d.RetryAfter <= 0 || d.RetryAfter > time.Minute {
		t.Fatalf("RetryAfter = %v, want in (0, window]", d.RetryAfter)
	}
}

func TestMemoryAdmitAfterRetryAfter(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	lim := NewMemory(2, time.Minute, WithClock(func() time.Time { return now }))
	ctx := context.Background()

	lim.Admit(ctx, "id-1")
	now = now.Add(10 * time.Second)
	lim.Admit(ctx, "id-1")

	d, _ := lim.Admit(ctx, "id-1")
	if d.Allowed {
		t.Fatal("over-limit request admitted")
	}
	// The oldest hit leaves the window 50s from now.
	if d.RetryAfter != 50*time.Second {
		t.Fatalf("RetryAfter = %v, want 50s", d.RetryAfter)
	}

	now = now.Add(d.RetryAfter + time.Millisecond)
	d, _ = lim.Admit(ctx, "id-1")
	if !d.Allowed {
		t.Fatal("request after RetryAfter still denied")
	}
}

func TestMemoryKeysAreIndependent(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	lim := NewMemory(1, time.Minute, WithClock(func() time.Time { return now }))
	ctx := context.Background()

	if d, _ := lim.Admit(ctx, "id-1"); !d.Allowed {
		t.Fatal("first id-1 request denied")
	}
	if d, _ := lim.Admit(ctx, "id-1"); d.Allowed {
		t.Fatal("second id-1 request admitted over ceiling of 1")
	}
	if d, _ := lim.Admit(ctx, "id-2"); !d.Allowed {
		t.Fatal("id-2 should not share id-1's window")
	}
}

func TestMemoryConcurrentAdmissionIsExact(t *testing.T) {
	lim := NewMemory(10, time.Minute)
	ctx := context.Background()

	var (
		admitted int64
		wg       sync.WaitGroup
	)
	wg.Add(50)
	for i := 0; i < 50; i++ {
		go func() {
			defer wg.Done()
			if d, _ := lim.Admit(ctx, "id-1"); d.Allowed {
				atomic.AddInt64(&admitted, 1)
			}
		}()
	}
	wg.Wait()
	if admitted != 10 {
		t.Fatalf("admitted = %d, want exactly 10", admitted)
	}
}
