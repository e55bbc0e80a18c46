package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/ifuryst/quillflow/internal/models"
)

// ActivityService appends entries to the user-visible activity log.
type ActivityService struct {
	db     *gorm.DB
	logger *zap.Logger
	now    func() time.Time
}

func NewActivityService(db *gorm.DB, logger *zap.Logger) *ActivityService {
	return &ActivityService{
		db:     db,
		logger: logger,
		now:    time.Now,
	}
}

// ActivityOption decorates an entry before it is written.
type ActivityOption func(*models.ActivityLogEntry)

func WithIdea(ideaID uint) ActivityOption {
	return func(e *models.ActivityLogEntry) {
		e.IdeaID = &ideaID
	}
}

func WithPost(postID uint) ActivityOption {
	return func(e *models.ActivityLogEntry) {
		e.PostID = &postID
	}
}

func WithIcon(icon string) ActivityOption {
	return func(e *models.ActivityLogEntry) {
		e.Icon = icon
	}
}

// WithContext attaches structured details
func WithContext(context map[string]interface{}) ActivityOption {
	return func(e *models.ActivityLogEntry) {
		if b, err := json.Marshal(context); err == nil {
			e.Context = datatypes.JSON(b)
		}
	}
}

// Record writes one entry. A failure to write is logged and returned; callers
// in the pipeline treat it as non-fatal.
func (a *ActivityService) Record(ctx context.Context, kind models.ActivityType, details string, options ...ActivityOption) error {
	entry := &models.ActivityLogEntry{
		Timestamp: a.now(),
		Type:      kind,
		Details:   details,
		Icon:      defaultIcon(kind),
	}
	for _, option := range options {
		option(entry)
	}

	if err := a.db.WithContext(ctx).Create(entry).Error; err != nil {
		a.logger.Warn("Failed to record activity",
			zap.String("type", string(kind)),
			zap.String("details", details),
			zap.Error(err))
		return fmt.Errorf("failed to record activity: %w", err)
	}
	return nil
}

// Recent returns the newest entries first.
func (a *ActivityService) Recent(ctx context.Context, limit int) ([]models.ActivityLogEntry, error) {
	var entries []models.ActivityLogEntry
	err := a.db.WithContext(ctx).
		Order("timestamp desc, id desc").
		Limit(limit).
		Find(&entries).Error
	return entries, err
}

func defaultIcon(kind models.ActivityType) string {
	switch kind {
	case models.ActivityIdeasGenerated, models.ActivityIdeaAdded:
		return "lightbulb"
	case models.ActivityDraftWritten:
		return "edit"
	case models.ActivityPostPublished:
		return "upload"
	case models.ActivityStyleRefreshed, models.ActivityStyleUpdated:
		return "palette"
	case models.ActivityEnrichment, models.ActivityCycleStepFailed, models.ActivityDraftFailed, models.ActivityGenerationFailed:
		return "warning"
	default:
		return "info"
	}
}
