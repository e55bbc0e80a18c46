package service

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/ifuryst/quillflow/internal/config"
	"github.com/ifuryst/quillflow/internal/models"
	"github.com/ifuryst/quillflow/internal/service/ai"
	"github.com/ifuryst/quillflow/pkg/lock"
)

func newTestScheduler(env *testEnv, locker lock.Locker) *Scheduler {
	cfg := &config.SchedulerConfig{
		StyleRefresh:    "@every 168h",
		IdeasSemi:       "@every 24h",
		IdeasFull:       "@every 6h",
		FullCycle:       "@every 12h",
		QuotaReset:      "@monthly",
		LicenseVerify:   "@every 12h",
		BacklogLowWater: 3,
		LockTTL:         "5m",
	}
	s := NewScheduler(cfg, zap.NewNop(), SchedulerDeps{
		Settings:  env.settings,
		Ideas:     env.ideas,
		Drafts:    env.drafts,
		Publisher: env.publisher,
		Style:     env.style,
		Quota:     env.quota,
		Activity:  env.activity,
		Locker:    locker,
	})
	env.settings.OnChange(s.Reinitialize)
	return s
}

func TestSchedulerReinitializeIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	s := newTestScheduler(env, nil)
	ctx := context.Background()

	env.updateSettings(t, func(cfg *models.AutomationConfig) {
		cfg.WorkingMode = models.ModeFullAutomatic
	})
	if err := s.Reinitialize(ctx); err != nil {
		t.Fatalf("Reinitialize: %v", err)
	}
	if err := s.Reinitialize(ctx); err != nil {
		t.Fatalf("Reinitialize: %v", err)
	}

	want := []string{JobFullCycle, JobIdeaGeneration, JobLicenseVerify, JobQuotaReset, JobStyleRefresh}
	if got := s.Jobs(); !reflect.DeepEqual(got, want) {
		t.Fatalf("jobs = %v, want %v", got, want)
	}
	if n := len(s.cron.Entries()); n != len(want) {
		t.Fatalf("cron holds %d entries, want %d", n, len(want))
	}
}

func TestSchedulerFollowsWorkingMode(t *testing.T) {
	env := newTestEnv(t)
	s := newTestScheduler(env, nil)

	cases := []struct {
		mode models.WorkingMode
		want []string
	}{
		{models.ModeSemiAutomatic, []string{JobIdeaGeneration, JobLicenseVerify, JobQuotaReset, JobStyleRefresh}},
		{models.ModeManual, []string{JobLicenseVerify, JobQuotaReset, JobStyleRefresh}},
		{models.ModeFullAutomatic, []string{JobFullCycle, JobIdeaGeneration, JobLicenseVerify, JobQuotaReset, JobStyleRefresh}},
	}
	for _, tc := range cases {
		// Update triggers Reinitialize through the settings hook.
		env.updateSettings(t, func(cfg *models.AutomationConfig) {
			cfg.WorkingMode = tc.mode
		})
		if got := s.Jobs(); !reflect.DeepEqual(got, tc.want) {
			t.Fatalf("mode %s: jobs = %v, want %v", tc.mode, got, tc.want)
		}
		if s.Mode() != tc.mode {
			t.Fatalf("mode = %s, want %s", s.Mode(), tc.mode)
		}
		if n := len(s.cron.Entries()); n != len(tc.want) {
			t.Fatalf("mode %s: cron holds %d entries", tc.mode, n)
		}
	}
}

func TestSchedulerRejectsBadSpec(t *testing.T) {
	env := newTestEnv(t)
	s := newTestScheduler(env, nil)
	s.config.QuotaReset = "not a schedule"

	if err := s.Reinitialize(context.Background()); err == nil {
		t.Fatalf("expected invalid schedule error")
	}
}

func TestFullCycleFromEmptyBacklog(t *testing.T) {
	env := newTestEnv(t).withStyleGuide(t)
	s := newTestScheduler(env, nil)
	ctx := context.Background()

	env.updateSettings(t, func(cfg *models.AutomationConfig) {
		cfg.WorkingMode = models.ModeFullAutomatic
		cfg.GenerationLimit = 5
		cfg.AutoPublish = false
	})
	env.gen.on(ai.OpGenerateIdeas, `{"ideas":["One","Two","Three","Four","Five","Six"]}`)
	env.gen.on(ai.OpWriteDraft, validDraft)

	report, err := s.RunFullCycle(ctx)
	if err != nil {
		t.Fatalf("RunFullCycle: %v", err)
	}
	if len(report.Failures) != 0 {
		t.Fatalf("unexpected failures: %v", report.Failures)
	}
	if report.IdeasCreated != 5 || report.DraftID == nil || report.PublishedID != nil {
		t.Fatalf("unexpected report: %#v", report)
	}

	if n := env.count(t, &models.Idea{}, ""); n != 5 {
		t.Fatalf("ideas = %d, want 5", n)
	}
	if n := env.count(t, &models.Idea{}, "status = ?", models.IdeaStatusDrafted); n != 1 {
		t.Fatalf("drafted ideas = %d, want 1", n)
	}
	if n := env.count(t, &models.Post{}, "status = ?", models.PostStatusDraft); n != 1 {
		t.Fatalf("draft posts = %d, want 1", n)
	}
	if n := env.count(t, &models.Post{}, "status = ?", models.PostStatusPublished); n != 0 {
		t.Fatalf("nothing may be published without auto publish, got %d", n)
	}
}

func TestFullCycleStepsAreIsolated(t *testing.T) {
	env := newTestEnv(t).withStyleGuide(t)
	s := newTestScheduler(env, nil)
	ctx := context.Background()

	env.updateSettings(t, func(cfg *models.AutomationConfig) {
		cfg.WorkingMode = models.ModeFullAutomatic
		cfg.AutoPublish = true
	})
	if _, err := env.ideas.AddManual(ctx, "Hand picked idea"); err != nil {
		t.Fatalf("AddManual: %v", err)
	}
	env.gen.fail(ai.OpGenerateIdeas, errors.New("model overloaded"))
	env.gen.on(ai.OpWriteDraft, validDraft)

	report, err := s.RunFullCycle(ctx)
	if err != nil {
		t.Fatalf("RunFullCycle: %v", err)
	}
	if _, failed := report.Failures["top-up"]; !failed {
		t.Fatalf("top-up failure not reported: %#v", report)
	}
	if report.DraftID == nil || report.PublishedID == nil || *report.DraftID != *report.PublishedID {
		t.Fatalf("draft and publish should still run: %#v", report)
	}

	post, err := env.publisher.Publish(ctx, *report.PublishedID)
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if post.Permalink != "https://blog.example/hand-picked-idea" {
		t.Fatalf("permalink = %q", post.Permalink)
	}
	if n := env.count(t, &models.ActivityLogEntry{}, "type = ?", models.ActivityCycleStepFailed); n != 1 {
		t.Fatalf("expected one cycle_step_failed entry, got %d", n)
	}
}

func TestFullCycleIsNotReentrant(t *testing.T) {
	env := newTestEnv(t).withStyleGuide(t)
	locker := lock.NewMemoryLocker()
	s := newTestScheduler(env, locker)
	ctx := context.Background()

	release, err := locker.TryLock(ctx, JobFullCycle, time.Minute)
	if err != nil {
		t.Fatalf("TryLock: %v", err)
	}
	if _, err := s.RunFullCycle(ctx); !errors.Is(err, ErrCycleInProgress) {
		t.Fatalf("expected ErrCycleInProgress, got %v", err)
	}
	release()

	if _, err := s.RunFullCycle(ctx); err != nil {
		t.Fatalf("cycle should run once the lock is free: %v", err)
	}
}

func TestFullCycleTopUpYieldsToIdeaGeneration(t *testing.T) {
	env := newTestEnv(t).withStyleGuide(t)
	locker := lock.NewMemoryLocker()
	s := newTestScheduler(env, locker)
	ctx := context.Background()

	env.gen.on(ai.OpGenerateIdeas, `{"ideas":["One","Two"]}`)

	release, err := locker.TryLock(ctx, JobIdeaGeneration, time.Minute)
	if err != nil {
		t.Fatalf("TryLock: %v", err)
	}
	defer release()

	report, err := s.RunFullCycle(ctx)
	if err != nil {
		t.Fatalf("RunFullCycle: %v", err)
	}
	if len(report.Failures) != 0 || report.IdeasCreated != 0 {
		t.Fatalf("unexpected report: %#v", report)
	}
	if env.gen.callCount(ai.OpGenerateIdeas) != 0 {
		t.Fatalf("top-up must not generate while idea generation holds the lock")
	}
}

func TestSchedulerRunsInQuotaTimezone(t *testing.T) {
	s := newTestScheduler(newTestEnv(t), nil)
	if loc := s.cron.Location(); loc != time.UTC {
		t.Fatalf("cron location = %v, want UTC like quota periods", loc)
	}
}
