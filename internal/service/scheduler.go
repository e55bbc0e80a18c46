package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/ifuryst/quillflow/internal/config"
	"github.com/ifuryst/quillflow/internal/models"
	"github.com/ifuryst/quillflow/pkg/lock"
	"github.com/ifuryst/quillflow/pkg/util"
)

// Job names, also used as lock names.
const (
	JobStyleRefresh   = "style-refresh"
	JobIdeaGeneration = "idea-generation"
	JobFullCycle      = "full-cycle"
	JobQuotaReset     = "quota-reset"
	JobLicenseVerify  = "license-verify"
)

// ErrCycleInProgress is returned when another full cycle holds the lock.
var ErrCycleInProgress = errors.New("a full cycle is already running")

// CycleReport summarizes one full-automatic cycle.
type CycleReport struct {
	IdeasCreated int               `json:"ideas_created"`
	DraftID      *uint             `json:"draft_id,omitempty"`
	PublishedID  *uint             `json:"published_id,omitempty"`
	Failures     map[string]string `json:"failures,omitempty"`
}

// Scheduler is the automation controller. The active triggers depend on the
// working mode and are rebuilt from scratch by Reinitialize.
type Scheduler struct {
	config    *config.SchedulerConfig
	logger    *zap.Logger
	settings  *SettingsService
	ideas     *IdeaService
	drafts    *DraftService
	publisher *PublisherService
	style     *StyleService
	quota     *QuotaService
	license   *LicenseService
	activity  *ActivityService
	locker    lock.Locker
	lockTTL   time.Duration

	mu      sync.Mutex
	cron    *cron.Cron
	entries map[string]cron.EntryID
	mode    models.WorkingMode
	baseCtx context.Context
	started bool
}

type scheduledJob struct {
	spec string
	run  func(ctx context.Context)
}

type SchedulerDeps struct {
	Settings  *SettingsService
	Ideas     *IdeaService
	Drafts    *DraftService
	Publisher *PublisherService
	Style     *StyleService
	Quota     *QuotaService
	License   *LicenseService
	Activity  *ActivityService
	Locker    lock.Locker
}

func NewScheduler(cfg *config.SchedulerConfig, logger *zap.Logger, deps SchedulerDeps) *Scheduler {
	s := &Scheduler{
		config:    cfg,
		logger:    logger,
		settings:  deps.Settings,
		ideas:     deps.Ideas,
		drafts:    deps.Drafts,
		publisher: deps.Publisher,
		style:     deps.Style,
		quota:     deps.Quota,
		license:   deps.License,
		activity:  deps.Activity,
		locker:    deps.Locker,
		lockTTL:   util.ParseDuration(cfg.LockTTL, 30*time.Minute),
		cron:      cron.New(cron.WithLocation(time.UTC), cron.WithLogger(cronLogger{logger.Sugar()})),
		entries:   make(map[string]cron.EntryID),
		baseCtx:   context.Background(),
	}
	if s.locker == nil {
		s.locker = lock.NewMemoryLocker()
	}
	return s
}

func (s *Scheduler) Start(ctx context.Context) error {
	if s.config.Disabled {
		s.logger.Info("Scheduler is disabled")
		return nil
	}

	s.mu.Lock()
	s.baseCtx = ctx
	s.mu.Unlock()

	if err := s.Reinitialize(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	s.cron.Start()
	s.started = true
	s.mu.Unlock()

	s.logger.Info("Scheduler started", zap.String("mode", string(s.Mode())))
	return nil
}

func (s *Scheduler) Stop() {
	s.mu.Lock()
	started := s.started
	s.started = false
	s.mu.Unlock()
	if !started {
		return
	}

	// Wait for running jobs, but not forever.
	select {
	case <-s.cron.Stop().Done():
	case <-time.After(30 * time.Second):
		s.logger.Warn("Timed out waiting for running jobs")
	}
	s.logger.Info("Scheduler shutdown completed")
}

// Reinitialize drops every registered trigger and registers the ones the
// current working mode needs. Calling it repeatedly is safe.
func (s *Scheduler) Reinitialize(ctx context.Context) error {
	cfg, err := s.settings.Load(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for name, id := range s.entries {
		s.cron.Remove(id)
		delete(s.entries, name)
	}
	s.mode = cfg.WorkingMode

	jobs := map[string]scheduledJob{
		JobStyleRefresh:  {s.config.StyleRefresh, s.runStyleRefresh},
		JobQuotaReset:    {s.config.QuotaReset, s.runQuotaReset},
		JobLicenseVerify: {s.config.LicenseVerify, s.runLicenseVerify},
	}
	switch cfg.WorkingMode {
	case models.ModeSemiAutomatic:
		jobs[JobIdeaGeneration] = scheduledJob{s.config.IdeasSemi, s.runIdeaGeneration}
	case models.ModeFullAutomatic:
		jobs[JobIdeaGeneration] = scheduledJob{s.config.IdeasFull, s.runIdeaGeneration}
		jobs[JobFullCycle] = scheduledJob{s.config.FullCycle, s.runFullCycle}
	}

	for name, job := range jobs {
		if err := s.register(name, job.spec, job.run); err != nil {
			return err
		}
	}

	s.logger.Info("Scheduler initialized",
		zap.String("mode", string(cfg.WorkingMode)),
		zap.Strings("jobs", s.jobNamesLocked()))
	return nil
}

// register adds one trigger. Callers hold s.mu.
func (s *Scheduler) register(name, spec string, run func(ctx context.Context)) error {
	wrapped := cron.NewChain(
		cron.Recover(cronLogger{s.logger.Sugar()}),
		cron.SkipIfStillRunning(cronLogger{s.logger.Sugar()}),
	).Then(cron.FuncJob(func() {
		s.mu.Lock()
		ctx := s.baseCtx
		s.mu.Unlock()

		start := time.Now()
		s.logger.Info("Running scheduled job", zap.String("job", name))
		run(ctx)
		s.logger.Info("Scheduled job finished", zap.String("job", name), zap.Duration("duration", time.Since(start)))
	}))

	id, err := s.cron.AddJob(spec, wrapped)
	if err != nil {
		return fmt.Errorf("invalid schedule %q for %s: %w", spec, name, err)
	}
	s.entries[name] = id
	return nil
}

func (s *Scheduler) Mode() models.WorkingMode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// Jobs lists the registered trigger names, sorted.
func (s *Scheduler) Jobs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jobNamesLocked()
}

func (s *Scheduler) jobNamesLocked() []string {
	names := make([]string, 0, len(s.entries))
	for name := range s.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NextRuns returns the next fire time of every registered trigger.
func (s *Scheduler) NextRuns() map[string]time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := make(map[string]time.Time, len(s.entries))
	for name, id := range s.entries {
		next[name] = s.cron.Entry(id).Next
	}
	return next
}

// RunFullCycle tops up the backlog, drafts one idea and optionally publishes
// the oldest draft. Each step runs even if an earlier one failed.
func (s *Scheduler) RunFullCycle(ctx context.Context) (*CycleReport, error) {
	release, err := s.locker.TryLock(ctx, JobFullCycle, s.lockTTL)
	if errors.Is(err, lock.ErrNotAcquired) {
		s.logger.Info("Skipping full cycle, another one is running")
		return nil, ErrCycleInProgress
	}
	if err != nil {
		return nil, err
	}
	defer release()

	cfg, err := s.settings.Load(ctx)
	if err != nil {
		return nil, err
	}

	report := &CycleReport{Failures: map[string]string{}}

	s.step(ctx, report, "top-up", func() error {
		count, err := s.ideas.BacklogCount(ctx)
		if err != nil {
			return err
		}
		if count >= int64(s.config.BacklogLowWater) {
			return nil
		}
		release, err := s.locker.TryLock(ctx, JobIdeaGeneration, s.lockTTL)
		if errors.Is(err, lock.ErrNotAcquired) {
			s.logger.Info("Skipping backlog top-up, idea generation is running")
			return nil
		}
		if err != nil {
			return err
		}
		defer release()

		created, err := s.ideas.Generate(ctx, cfg.GenerationLimit, "")
		report.IdeasCreated = len(created)
		return err
	})

	s.step(ctx, report, "draft", func() error {
		idea, err := s.ideas.NextForDraft(ctx)
		if err != nil || idea == nil {
			return err
		}
		post, err := s.drafts.Write(ctx, idea.ID)
		if err != nil {
			return err
		}
		report.DraftID = &post.ID
		return nil
	})

	if cfg.AutoPublish {
		s.step(ctx, report, "publish", func() error {
			post, err := s.publisher.PublishOldestDraft(ctx)
			if err != nil || post == nil {
				return err
			}
			report.PublishedID = &post.ID
			return nil
		})
	}

	s.logger.Info("Full cycle finished",
		zap.Int("ideas_created", report.IdeasCreated),
		zap.Bool("drafted", report.DraftID != nil),
		zap.Bool("published", report.PublishedID != nil),
		zap.Int("failures", len(report.Failures)))
	return report, nil
}

func (s *Scheduler) step(ctx context.Context, report *CycleReport, name string, fn func() error) {
	err := fn()
	if err == nil {
		return
	}

	report.Failures[name] = err.Error()
	cycleStepFailuresCounter.WithLabelValues(name).Inc()

	var quotaErr *QuotaExceededError
	if errors.As(err, &quotaErr) {
		s.logger.Info("Cycle step skipped, quota exhausted", zap.String("step", name), zap.Error(err))
	} else {
		s.logger.Error("Cycle step failed", zap.String("step", name), zap.Error(err))
	}
	_ = s.activity.Record(ctx, models.ActivityCycleStepFailed,
		fmt.Sprintf("Automation step %s failed: %v", name, err))
}

func (s *Scheduler) runFullCycle(ctx context.Context) {
	if _, err := s.RunFullCycle(ctx); err != nil && !errors.Is(err, ErrCycleInProgress) {
		s.logger.Error("Full cycle failed", zap.Error(err))
	}
}

func (s *Scheduler) runIdeaGeneration(ctx context.Context) {
	release, err := s.locker.TryLock(ctx, JobIdeaGeneration, s.lockTTL)
	if err != nil {
		s.logger.Info("Skipping idea generation", zap.Error(err))
		return
	}
	defer release()

	cfg, err := s.settings.Load(ctx)
	if err != nil {
		s.logger.Error("Failed to load settings", zap.Error(err))
		return
	}
	if _, err := s.ideas.Generate(ctx, cfg.GenerationLimit, ""); err != nil {
		cycleStepFailuresCounter.WithLabelValues(JobIdeaGeneration).Inc()
		s.logger.Warn("Scheduled idea generation failed", zap.Error(err))
		_ = s.activity.Record(ctx, models.ActivityCycleStepFailed,
			fmt.Sprintf("Scheduled idea generation failed: %v", err))
	}
}

func (s *Scheduler) runStyleRefresh(ctx context.Context) {
	if err := s.style.Refresh(ctx); err != nil {
		s.logger.Warn("Style refresh failed", zap.Error(err))
		_ = s.activity.Record(ctx, models.ActivityCycleStepFailed,
			fmt.Sprintf("Style refresh failed: %v", err))
	}
}

func (s *Scheduler) runQuotaReset(ctx context.Context) {
	if err := s.quota.Reset(ctx); err != nil {
		s.logger.Error("Quota reset failed", zap.Error(err))
	}
}

func (s *Scheduler) runLicenseVerify(ctx context.Context) {
	if _, err := s.license.Verify(ctx); err != nil {
		s.logger.Warn("License verification failed", zap.Error(err))
	}
}

// cronLogger routes cron's own messages through zap.
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}
