package models

import (
	"time"

	"gorm.io/gorm"
)

type IdeaStatus string

const (
	IdeaStatusNew      IdeaStatus = "new"
	IdeaStatusPending  IdeaStatus = "pending"
	IdeaStatusDrafted  IdeaStatus = "drafted"
	IdeaStatusRejected IdeaStatus = "rejected"
)

type IdeaSource string

const (
	IdeaSourceAI           IdeaSource = "ai"
	IdeaSourceManual       IdeaSource = "manual"
	IdeaSourceSimilar      IdeaSource = "similar"
	IdeaSourceSearchSignal IdeaSource = "search-signal"
)

// BacklogStatuses are the statuses an idea can be drafted from.
var BacklogStatuses = []IdeaStatus{IdeaStatusNew, IdeaStatusPending}

type Idea struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	Title     string         `gorm:"not null;size:500" json:"title"`
	Status    IdeaStatus     `gorm:"size:20;default:'new';index" json:"status"`
	Source    IdeaSource     `gorm:"size:20;default:'ai'" json:"source"`
	Feedback  *int           `json:"feedback"` // -1, 0 or 1
	CreatedAt time.Time      `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at"`
}

func (i *Idea) InBacklog() bool {
	for _, s := range BacklogStatuses {
		if i.Status == s {
			return true
		}
	}
	return false
}
