package models

import (
	"time"

	"gorm.io/datatypes"
)

type LicenseStatus string

const (
	LicenseValid   LicenseStatus = "valid"
	LicenseInvalid LicenseStatus = "invalid"
	LicenseUnknown LicenseStatus = "unknown"
)

// LicenseState is a singleton row caching the last verdict of the license authority.
type LicenseState struct {
	ID            uint           `gorm:"primaryKey" json:"id"`
	LicenseKey    string         `gorm:"size:255" json:"-"`
	CachedStatus  LicenseStatus  `gorm:"size:20;default:'unknown'" json:"cached_status"`
	Expiry        *time.Time     `json:"expiry"`
	LastCheckedAt *time.Time     `json:"last_checked_at"`
	RetryAfter    *time.Time     `json:"retry_after"`
	Metadata      datatypes.JSON `json:"metadata"`
	UpdatedAt     time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

func (LicenseState) TableName() string { return "license_state" }
