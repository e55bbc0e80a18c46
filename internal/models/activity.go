package models

import (
	"time"

	"gorm.io/datatypes"
)

type ActivityType string

const (
	ActivityIdeasGenerated   ActivityType = "ideas_generated"
	ActivityIdeaAdded        ActivityType = "idea_added"
	ActivityDraftWritten     ActivityType = "draft_written"
	ActivityDraftFailed      ActivityType = "draft_failed"
	ActivityEnrichment       ActivityType = "enrichment_warning"
	ActivityPostPublished    ActivityType = "post_published"
	ActivityStyleRefreshed   ActivityType = "style_refreshed"
	ActivityStyleUpdated     ActivityType = "style_updated"
	ActivityCycleStepFailed  ActivityType = "cycle_step_failed"
	ActivityQuotaReset       ActivityType = "quota_reset"
	ActivityLicenseVerified  ActivityType = "license_verified"
	ActivitySettingsUpdated  ActivityType = "settings_updated"
	ActivityGenerationFailed ActivityType = "generation_failed"
)

// ActivityLogEntry is append-only.
type ActivityLogEntry struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	Timestamp time.Time      `gorm:"not null;index" json:"timestamp"`
	Type      ActivityType   `gorm:"size:50;not null;index" json:"type"`
	Details   string         `gorm:"type:text;not null" json:"details"`
	Icon      string         `gorm:"size:50" json:"icon"`
	IdeaID    *uint          `gorm:"index" json:"idea_id"`
	PostID    *uint          `gorm:"index" json:"post_id"`
	Context   datatypes.JSON `json:"context"`
	CreatedAt time.Time      `gorm:"autoCreateTime" json:"created_at"`
}

func (ActivityLogEntry) TableName() string { return "activity_log" }
