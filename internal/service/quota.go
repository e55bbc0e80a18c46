package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ifuryst/quillflow/internal/models"
)

const maxQuotaAttempts = 8

// ProChecker reports whether the installation runs on the pro tier.
type ProChecker interface {
	IsPro(ctx context.Context) bool
}

// QuotaService enforces the free-tier monthly ceilings. Counters are updated
// with a compare-and-swap so concurrent callers, including other processes
// sharing the database, never overshoot the ceiling.
type QuotaService struct {
	db       *gorm.DB
	logger   *zap.Logger
	settings *SettingsService
	license  ProChecker
	activity *ActivityService

	mu  sync.Mutex
	now func() time.Time
}

func NewQuotaService(db *gorm.DB, logger *zap.Logger, settings *SettingsService, license ProChecker, activity *ActivityService) *QuotaService {
	return &QuotaService{
		db:       db,
		logger:   logger,
		settings: settings,
		license:  license,
		activity: activity,
		now:      time.Now,
	}
}

// Period returns the quota period key for t.
func Period(t time.Time) string {
	return t.UTC().Format("2006-01")
}

type QuotaUsage struct {
	Period     string `json:"period"`
	Ideas      int    `json:"ideas"`
	Drafts     int    `json:"drafts"`
	IdeaLimit  int    `json:"idea_limit"`
	DraftLimit int    `json:"draft_limit"`
	Unlimited  bool   `json:"unlimited"`
}

// Reservation records the units granted by Reserve and the period they were
// charged to.
type Reservation struct {
	Kind    models.QuotaKind
	Period  string
	Granted int
}

// Reserve claims up to n units of kind for the current period. It grants
// min(n, remaining) and fails with QuotaExceededError only when nothing is left.
// Unused units should be handed back with Release.
func (q *QuotaService) Reserve(ctx context.Context, kind models.QuotaKind, n int) (Reservation, error) {
	period := Period(q.now())
	if n <= 0 {
		return Reservation{Kind: kind, Period: period}, nil
	}

	cfg, err := q.settings.Load(ctx)
	if err != nil {
		return Reservation{}, err
	}
	pro := q.license.IsPro(ctx)
	limit := limitFor(cfg, kind)

	q.mu.Lock()
	defer q.mu.Unlock()

	column := kind.Column()

	for attempt := 0; attempt < maxQuotaAttempts; attempt++ {
		counter, err := q.counter(ctx, period)
		if err != nil {
			return Reservation{}, err
		}

		used := counter.Count(kind)
		granted := n
		if !pro {
			remaining := limit - used
			if remaining <= 0 {
				return Reservation{}, &QuotaExceededError{Kind: kind, Limit: limit}
			}
			if granted > remaining {
				granted = remaining
			}
		}

		res := q.db.WithContext(ctx).Model(&models.QuotaCounter{}).
			Where("period = ? AND "+column+" = ?", period, used).
			Update(column, used+granted)
		if res.Error != nil {
			return Reservation{}, fmt.Errorf("failed to update %s quota: %w", kind, res.Error)
		}
		if res.RowsAffected == 1 {
			q.logger.Debug("Quota reserved",
				zap.String("kind", string(kind)),
				zap.Int("requested", n),
				zap.Int("granted", granted),
				zap.Int("used", used+granted),
				zap.Bool("pro", pro))
			return Reservation{Kind: kind, Period: period, Granted: granted}, nil
		}
	}

	return Reservation{}, fmt.Errorf("failed to reserve %s quota: counter kept changing", kind)
}

// Release hands n units of r back to the period they were charged to. A
// period dropped by Reset in the meantime is left alone.
func (q *QuotaService) Release(ctx context.Context, r Reservation, n int) error {
	if n <= 0 {
		return nil
	}
	if n > r.Granted {
		n = r.Granted
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	kind := r.Kind
	column := kind.Column()
	err := q.db.WithContext(ctx).Model(&models.QuotaCounter{}).
		Where("period = ?", r.Period).
		Update(column, gorm.Expr("CASE WHEN "+column+" >= ? THEN "+column+" - ? ELSE 0 END", n, n)).Error
	if err != nil {
		return fmt.Errorf("failed to release %s quota: %w", kind, err)
	}
	return nil
}

func (q *QuotaService) Usage(ctx context.Context) (*QuotaUsage, error) {
	cfg, err := q.settings.Load(ctx)
	if err != nil {
		return nil, err
	}

	period := Period(q.now())
	counter, err := q.counter(ctx, period)
	if err != nil {
		return nil, err
	}

	return &QuotaUsage{
		Period:     period,
		Ideas:      counter.IdeaCount,
		Drafts:     counter.DraftCount,
		IdeaLimit:  cfg.FreeIdeaLimit,
		DraftLimit: cfg.FreeDraftLimit,
		Unlimited:  q.license.IsPro(ctx),
	}, nil
}

// Reset drops the counters of past periods and makes sure the current one exists.
func (q *QuotaService) Reset(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	period := Period(q.now())
	res := q.db.WithContext(ctx).Where("period <> ?", period).Delete(&models.QuotaCounter{})
	if res.Error != nil {
		return fmt.Errorf("failed to reset quota counters: %w", res.Error)
	}
	if _, err := q.counter(ctx, period); err != nil {
		return err
	}

	q.logger.Info("Quota counters reset", zap.String("period", period), zap.Int64("removed", res.RowsAffected))
	_ = q.activity.Record(ctx, models.ActivityQuotaReset, fmt.Sprintf("Monthly quota reset for %s", period))
	return nil
}

// counter loads the row of period, creating it on first use.
func (q *QuotaService) counter(ctx context.Context, period string) (*models.QuotaCounter, error) {
	db := q.db.WithContext(ctx)
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.QuotaCounter{Period: period}).Error; err != nil {
		return nil, fmt.Errorf("failed to create quota counter: %w", err)
	}

	var counter models.QuotaCounter
	if err := db.Where("period = ?", period).First(&counter).Error; err != nil {
		return nil, fmt.Errorf("failed to load quota counter: %w", err)
	}
	return &counter, nil
}

func limitFor(cfg models.AutomationConfig, kind models.QuotaKind) int {
	if kind == models.QuotaDraft {
		return cfg.FreeDraftLimit
	}
	return cfg.FreeIdeaLimit
}
