package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ifuryst/quillflow/internal/models"
)

func TestQuotaReserveGrantsRemainder(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	r, err := env.quota.Reserve(ctx, models.QuotaIdea, 3)
	if err != nil || r.Granted != 3 {
		t.Fatalf("first reserve = %d, %v", r.Granted, err)
	}
	r, err = env.quota.Reserve(ctx, models.QuotaIdea, 3)
	if err != nil || r.Granted != 2 {
		t.Fatalf("second reserve should be capped at the remaining 2, got %d, %v", r.Granted, err)
	}

	_, err = env.quota.Reserve(ctx, models.QuotaIdea, 1)
	var quotaErr *QuotaExceededError
	if !errors.As(err, &quotaErr) || quotaErr.Limit != 5 {
		t.Fatalf("expected QuotaExceededError, got %v", err)
	}

	// Draft units are counted separately.
	if r, err := env.quota.Reserve(ctx, models.QuotaDraft, 1); err != nil || r.Granted != 1 {
		t.Fatalf("draft reserve = %d, %v", r.Granted, err)
	}
}

func TestQuotaReleaseReturnsUnits(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	r, err := env.quota.Reserve(ctx, models.QuotaIdea, 5)
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if err := env.quota.Release(ctx, r, 2); err != nil {
		t.Fatalf("release: %v", err)
	}
	usage, err := env.quota.Usage(ctx)
	if err != nil {
		t.Fatalf("usage: %v", err)
	}
	if usage.Ideas != 3 || usage.IdeaLimit != 5 || usage.Unlimited {
		t.Fatalf("unexpected usage: %#v", usage)
	}

	// Releasing more than was granted never goes negative.
	if err := env.quota.Release(ctx, r, 10); err != nil {
		t.Fatalf("release: %v", err)
	}
	if usage, _ := env.quota.Usage(ctx); usage.Ideas != 0 {
		t.Fatalf("ideas = %d, want 0", usage.Ideas)
	}
}

func TestQuotaConcurrentReserveNeverOvershoots(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		total int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r, err := env.quota.Reserve(ctx, models.QuotaIdea, 1)
			if err != nil {
				return
			}
			mu.Lock()
			total += r.Granted
			mu.Unlock()
		}()
	}
	wg.Wait()

	if total != 5 {
		t.Fatalf("granted %d units in total, want exactly the limit of 5", total)
	}
	usage, err := env.quota.Usage(ctx)
	if err != nil {
		t.Fatalf("usage: %v", err)
	}
	if usage.Ideas != 5 {
		t.Fatalf("counter = %d, want 5", usage.Ideas)
	}
}

func TestQuotaProIsUnlimited(t *testing.T) {
	env := newTestEnv(t)
	env.pro.pro = true
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if r, err := env.quota.Reserve(ctx, models.QuotaDraft, 2); err != nil || r.Granted != 2 {
			t.Fatalf("pro reserve = %d, %v", r.Granted, err)
		}
	}
}

func TestQuotaResetStartsNewPeriod(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.quota.now = fixedClock(time.Date(2025, 1, 20, 0, 0, 0, 0, time.UTC))
	if _, err := env.quota.Reserve(ctx, models.QuotaIdea, 5); err != nil {
		t.Fatalf("reserve: %v", err)
	}

	env.quota.now = fixedClock(time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC))
	if err := env.quota.Reset(ctx); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if n := env.count(t, &models.QuotaCounter{}, "period = ?", "2025-01"); n != 0 {
		t.Fatalf("old period should be removed, found %d rows", n)
	}
	if r, err := env.quota.Reserve(ctx, models.QuotaIdea, 5); err != nil || r.Granted != 5 {
		t.Fatalf("reserve after reset = %d, %v", r.Granted, err)
	}
	if n := env.count(t, &models.ActivityLogEntry{}, "type = ?", models.ActivityQuotaReset); n != 1 {
		t.Fatalf("expected one quota_reset activity, got %d", n)
	}
}

func TestQuotaReleaseAfterRolloverKeepsNewPeriod(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.quota.now = fixedClock(time.Date(2025, 1, 31, 23, 59, 0, 0, time.UTC))
	january, err := env.quota.Reserve(ctx, models.QuotaIdea, 3)
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if january.Period != "2025-01" {
		t.Fatalf("period = %q, want 2025-01", january.Period)
	}

	env.quota.now = fixedClock(time.Date(2025, 2, 1, 0, 1, 0, 0, time.UTC))
	if _, err := env.quota.Reserve(ctx, models.QuotaIdea, 2); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if err := env.quota.Release(ctx, january, 3); err != nil {
		t.Fatalf("release: %v", err)
	}

	usage, err := env.quota.Usage(ctx)
	if err != nil {
		t.Fatalf("usage: %v", err)
	}
	if usage.Period != "2025-02" || usage.Ideas != 2 {
		t.Fatalf("february usage = %#v, want 2 ideas", usage)
	}
	var old models.QuotaCounter
	if err := env.db.Where("period = ?", "2025-01").First(&old).Error; err != nil {
		t.Fatalf("load january: %v", err)
	}
	if old.IdeaCount != 0 {
		t.Fatalf("january ideas = %d, want 0", old.IdeaCount)
	}
}

func TestPeriod(t *testing.T) {
	loc := time.FixedZone("UTC+9", 9*3600)
	if got := Period(time.Date(2025, 3, 1, 2, 0, 0, 0, loc)); got != "2025-02" {
		t.Fatalf("Period = %q, want 2025-02", got)
	}
}
