package models

import "time"

type QuotaKind string

const (
	QuotaIdea  QuotaKind = "idea"
	QuotaDraft QuotaKind = "draft"
)

// QuotaCounter holds the usage of one calendar month, keyed "2006-01".
type QuotaCounter struct {
	Period     string    `gorm:"primaryKey;size:7" json:"period"`
	IdeaCount  int       `gorm:"not null;default:0" json:"idea_count"`
	DraftCount int       `gorm:"not null;default:0" json:"draft_count"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (c *QuotaCounter) Count(kind QuotaKind) int {
	if kind == QuotaDraft {
		return c.DraftCount
	}
	return c.IdeaCount
}

// Column returns the counter column for kind.
func (k QuotaKind) Column() string {
	if k == QuotaDraft {
		return "draft_count"
	}
	return "idea_count"
}
