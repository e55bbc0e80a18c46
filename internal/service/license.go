package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/ifuryst/quillflow/internal/config"
	"github.com/ifuryst/quillflow/internal/models"
	"github.com/ifuryst/quillflow/internal/service/authority"
	"github.com/ifuryst/quillflow/pkg/util"
)

// LicenseService caches the pro-license verdict. The authority is consulted
// at most once per TTL; when it cannot be reached the previous verdict stays
// in force and the next attempt waits for the retry delay.
type LicenseService struct {
	db         *gorm.DB
	logger     *zap.Logger
	client     authority.Client
	activity   *ActivityService
	seedKey    string
	ttl        time.Duration
	retryAfter time.Duration

	mu  sync.Mutex
	now func() time.Time
}

func NewLicenseService(cfg *config.LicenseConfig, db *gorm.DB, client authority.Client, logger *zap.Logger, activity *ActivityService) *LicenseService {
	return &LicenseService{
		db:         db,
		logger:     logger,
		client:     client,
		activity:   activity,
		seedKey:    strings.TrimSpace(cfg.Key),
		ttl:        util.ParseDuration(cfg.TTL, 24*time.Hour),
		retryAfter: util.ParseDuration(cfg.RetryAfter, time.Hour),
		now:        time.Now,
	}
}

// IsPro never blocks longer than one authority call and never fails; errors
// fall back to the cached status.
func (l *LicenseService) IsPro(ctx context.Context) bool {
	state, err := l.refresh(ctx, false)
	if err != nil {
		var checkErr *LicenseCheckError
		if !errors.As(err, &checkErr) {
			l.logger.Error("Failed to read license state", zap.Error(err))
		}
	}
	if state == nil || state.CachedStatus != models.LicenseValid {
		return false
	}
	return state.Expiry == nil || l.now().Before(*state.Expiry)
}

// Verify forces a round trip to the authority regardless of the TTL.
func (l *LicenseService) Verify(ctx context.Context) (*models.LicenseState, error) {
	state, err := l.refresh(ctx, true)
	if err != nil {
		return state, err
	}

	_ = l.activity.Record(ctx, models.ActivityLicenseVerified,
		fmt.Sprintf("License status: %s", state.CachedStatus))
	return state, nil
}

// Activate stores a new key and verifies it immediately.
func (l *LicenseService) Activate(ctx context.Context, key string) (*models.LicenseState, error) {
	key = strings.TrimSpace(key)

	l.mu.Lock()
	state, err := l.load(ctx)
	if err == nil {
		state.LicenseKey = key
		state.CachedStatus = models.LicenseUnknown
		state.LastCheckedAt = nil
		state.RetryAfter = nil
		err = l.db.WithContext(ctx).Save(state).Error
	}
	l.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("failed to store license key: %w", err)
	}

	return l.Verify(ctx)
}

// State returns the cached state without contacting the authority.
func (l *LicenseService) State(ctx context.Context) (*models.LicenseState, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.load(ctx)
}

func (l *LicenseService) refresh(ctx context.Context, force bool) (*models.LicenseState, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	state, err := l.load(ctx)
	if err != nil {
		return nil, err
	}

	now := l.now()
	if state.LicenseKey == "" {
		if state.CachedStatus != models.LicenseInvalid {
			state.CachedStatus = models.LicenseInvalid
			state.LastCheckedAt = &now
			if err := l.db.WithContext(ctx).Save(state).Error; err != nil {
				return state, fmt.Errorf("failed to save license state: %w", err)
			}
		}
		return state, nil
	}

	if !force {
		fresh := state.LastCheckedAt != nil && now.Sub(*state.LastCheckedAt) < l.ttl
		backingOff := state.RetryAfter != nil && now.Before(*state.RetryAfter)
		if fresh || backingOff {
			return state, nil
		}
	}

	verdict, verifyErr := l.client.Verify(ctx, state.LicenseKey)
	if verifyErr != nil {
		retry := now.Add(l.retryAfter)
		state.RetryAfter = &retry
		if err := l.db.WithContext(ctx).Save(state).Error; err != nil {
			l.logger.Error("Failed to save license retry time", zap.Error(err))
		}
		l.logger.Warn("License authority unreachable, keeping cached status",
			zap.String("status", string(state.CachedStatus)),
			zap.Time("retry_after", retry),
			zap.Error(verifyErr))
		return state, &LicenseCheckError{Err: verifyErr}
	}

	state.CachedStatus = models.LicenseInvalid
	if verdict.Valid {
		state.CachedStatus = models.LicenseValid
	}
	state.Expiry = verdict.ExpiresAt
	state.LastCheckedAt = &now
	state.RetryAfter = nil
	if verdict.Raw != nil {
		if b, err := json.Marshal(verdict.Raw); err == nil {
			state.Metadata = datatypes.JSON(b)
		}
	}

	if err := l.db.WithContext(ctx).Save(state).Error; err != nil {
		return state, fmt.Errorf("failed to save license state: %w", err)
	}

	l.logger.Info("License verified", zap.String("status", string(state.CachedStatus)))
	return state, nil
}

// load returns the singleton row, seeding the key from config on first use.
// Callers hold l.mu.
func (l *LicenseService) load(ctx context.Context) (*models.LicenseState, error) {
	var state models.LicenseState
	err := l.db.WithContext(ctx).First(&state, models.SettingsID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &models.LicenseState{
			ID:           models.SettingsID,
			LicenseKey:   l.seedKey,
			CachedStatus: models.LicenseUnknown,
		}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load license state: %w", err)
	}
	return &state, nil
}
