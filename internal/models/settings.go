package models

import "time"

type WorkingMode string

const (
	ModeManual        WorkingMode = "manual"
	ModeSemiAutomatic WorkingMode = "semi-automatic"
	ModeFullAutomatic WorkingMode = "full-automatic"
)

func (m WorkingMode) Valid() bool {
	switch m {
	case ModeManual, ModeSemiAutomatic, ModeFullAutomatic:
		return true
	}
	return false
}

type ImageProvider string

const (
	ImageProviderNone     ImageProvider = "none"
	ImageProviderOpenAI   ImageProvider = "openai"
	ImageProviderUnsplash ImageProvider = "unsplash"
	ImageProviderPexels   ImageProvider = "pexels"
)

func (p ImageProvider) Valid() bool {
	switch p {
	case ImageProviderNone, ImageProviderOpenAI, ImageProviderUnsplash, ImageProviderPexels:
		return true
	}
	return false
}

// SettingsID is the primary key of every singleton row.
const SettingsID = 1

// AutomationConfig is a singleton row.
type AutomationConfig struct {
	ID               uint          `gorm:"primaryKey" json:"id"`
	WorkingMode      WorkingMode   `gorm:"size:20;not null" json:"working_mode"`
	GenerationLimit  int           `gorm:"not null" json:"generation_limit"`
	AutoPublish      bool          `gorm:"not null" json:"auto_publish"`
	ImageProvider    ImageProvider `gorm:"size:20;not null" json:"image_provider"`
	InternalLinksMax int           `gorm:"not null" json:"internal_links_max"`
	FreeIdeaLimit    int           `gorm:"not null" json:"free_idea_limit"`
	FreeDraftLimit   int           `gorm:"not null" json:"free_draft_limit"`
	PlagiarismCheck  bool          `gorm:"not null" json:"plagiarism_check"`
	DataSection      bool          `gorm:"not null" json:"data_section"`
	UpdatedAt        time.Time     `gorm:"autoUpdateTime" json:"updated_at"`
}

func (AutomationConfig) TableName() string { return "automation_config" }

// DefaultAutomationConfig is used until settings are saved for the first time.
func DefaultAutomationConfig() AutomationConfig {
	return AutomationConfig{
		ID:               SettingsID,
		WorkingMode:      ModeManual,
		GenerationLimit:  5,
		ImageProvider:    ImageProviderNone,
		InternalLinksMax: 3,
		FreeIdeaLimit:    5,
		FreeDraftLimit:   2,
	}
}

// StyleGuide is a singleton row, overwritten in place by style refresh.
type StyleGuide struct {
	ID                 uint       `gorm:"primaryKey" json:"id"`
	Tone               string     `gorm:"type:text" json:"tone"`
	SentenceStructure  string     `gorm:"type:text" json:"sentence_structure"`
	ParagraphLength    string     `gorm:"type:text" json:"paragraph_length"`
	FormattingStyle    string     `gorm:"type:text" json:"formatting_style"`
	CustomInstructions string     `gorm:"type:text" json:"custom_instructions"`
	LastAnalyzed       *time.Time `json:"last_analyzed"`
	UpdatedAt          time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (StyleGuide) TableName() string { return "style_guide" }
