package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// StringArray is stored as a JSON encoded text column so it round-trips on
// both postgres and sqlite.
type StringArray []string

// Scan implements the sql.Scanner interface
func (s *StringArray) Scan(value interface{}) error {
	if value == nil {
		*s = StringArray{}
		return nil
	}

	var raw []byte
	switch v := value.(type) {
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("cannot scan %T into StringArray", value)
	}

	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "{}" || trimmed == "null" {
		*s = StringArray{}
		return nil
	}

	var arr []string
	if err := json.Unmarshal(raw, &arr); err != nil {
		return fmt.Errorf("failed to decode string array: %w", err)
	}
	*s = arr
	return nil
}

// Value implements the driver.Valuer interface
func (s StringArray) Value() (driver.Value, error) {
	if len(s) == 0 {
		return "[]", nil
	}
	b, err := json.Marshal([]string(s))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

type PostStatus string

const (
	PostStatusDraft     PostStatus = "draft"
	PostStatusScheduled PostStatus = "scheduled"
	PostStatusPublished PostStatus = "published"
)

// Post is both a draft and, once published, a linking target for new drafts.
type Post struct {
	ID               uint           `gorm:"primaryKey" json:"id"`
	Title            string         `gorm:"not null;size:500" json:"title"`
	Slug             string         `gorm:"size:255;index" json:"slug"`
	Content          string         `gorm:"type:text" json:"content"`
	MetaTitle        string         `gorm:"size:500" json:"meta_title"`
	MetaDescription  string         `gorm:"type:text" json:"meta_description"`
	FocusKeywords    StringArray    `gorm:"type:text" json:"focus_keywords"`
	FeaturedImageRef *string        `gorm:"size:1000" json:"featured_image_ref"`
	Status           PostStatus     `gorm:"size:20;default:'draft';index" json:"status"`
	ScheduledFor     *time.Time     `json:"scheduled_for"`
	PublishedAt      *time.Time     `json:"published_at"`
	Permalink        string         `gorm:"size:1000" json:"permalink"`
	SourceIdeaID     *uint          `gorm:"index" json:"source_idea_id"`
	PlagiarismReport datatypes.JSON `json:"plagiarism_report"`
	CreatedAt        time.Time      `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt        time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt        gorm.DeletedAt `gorm:"index" json:"deleted_at"`
}
