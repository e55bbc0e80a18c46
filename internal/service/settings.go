package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/ifuryst/quillflow/internal/models"
)

// SettingsService owns the AutomationConfig singleton. Every change goes
// through Update so the scheduler can be re-initialized.
type SettingsService struct {
	db       *gorm.DB
	logger   *zap.Logger
	activity *ActivityService

	mu       sync.Mutex
	onChange []func(ctx context.Context) error
}

func NewSettingsService(db *gorm.DB, logger *zap.Logger, activity *ActivityService) *SettingsService {
	return &SettingsService{
		db:       db,
		logger:   logger,
		activity: activity,
	}
}

// Load returns the stored configuration, or the defaults when nothing was saved yet.
func (s *SettingsService) Load(ctx context.Context) (models.AutomationConfig, error) {
	var cfg models.AutomationConfig
	err := s.db.WithContext(ctx).First(&cfg, models.SettingsID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.DefaultAutomationConfig(), nil
	}
	if err != nil {
		return cfg, fmt.Errorf("failed to load automation config: %w", err)
	}
	return cfg, nil
}

// OnChange registers a hook run after every successful Update.
func (s *SettingsService) OnChange(fn func(ctx context.Context) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChange = append(s.onChange, fn)
}

func (s *SettingsService) Update(ctx context.Context, cfg models.AutomationConfig) error {
	if !cfg.WorkingMode.Valid() {
		return &ConfigurationError{Reason: fmt.Sprintf("unknown working mode %q", cfg.WorkingMode)}
	}
	if cfg.GenerationLimit < 0 || cfg.InternalLinksMax < 0 || cfg.FreeIdeaLimit < 0 || cfg.FreeDraftLimit < 0 {
		return &ConfigurationError{Reason: "limits must not be negative"}
	}
	if cfg.ImageProvider == "" {
		cfg.ImageProvider = models.ImageProviderNone
	}
	if !cfg.ImageProvider.Valid() {
		return &ConfigurationError{Reason: fmt.Sprintf("unknown image provider %q", cfg.ImageProvider)}
	}

	cfg.ID = models.SettingsID
	if err := s.db.WithContext(ctx).Save(&cfg).Error; err != nil {
		return fmt.Errorf("failed to save automation config: %w", err)
	}

	s.logger.Info("Automation settings updated",
		zap.String("mode", string(cfg.WorkingMode)),
		zap.Int("generation_limit", cfg.GenerationLimit),
		zap.Bool("auto_publish", cfg.AutoPublish))
	_ = s.activity.Record(ctx, models.ActivitySettingsUpdated,
		fmt.Sprintf("Working mode set to %s", cfg.WorkingMode))

	s.mu.Lock()
	hooks := append([]func(ctx context.Context) error(nil), s.onChange...)
	s.mu.Unlock()

	for _, hook := range hooks {
		if err := hook(ctx); err != nil {
			return fmt.Errorf("failed to apply settings: %w", err)
		}
	}
	return nil
}

// SettingsPatch lists the user editable settings. Nil fields keep their
// stored value.
type SettingsPatch struct {
	WorkingMode      *models.WorkingMode   `json:"working_mode"`
	GenerationLimit  *int                  `json:"generation_limit"`
	AutoPublish      *bool                 `json:"auto_publish"`
	ImageProvider    *models.ImageProvider `json:"image_provider"`
	InternalLinksMax *int                  `json:"internal_links_max"`
	PlagiarismCheck  *bool                 `json:"plagiarism_check"`
	DataSection      *bool                 `json:"data_section"`
}

// Apply merges patch into the stored settings and saves them through Update.
func (s *SettingsService) Apply(ctx context.Context, patch SettingsPatch) (models.AutomationConfig, error) {
	cfg, err := s.Load(ctx)
	if err != nil {
		return cfg, err
	}

	if patch.WorkingMode != nil {
		cfg.WorkingMode = *patch.WorkingMode
	}
	if patch.GenerationLimit != nil {
		cfg.GenerationLimit = *patch.GenerationLimit
	}
	if patch.AutoPublish != nil {
		cfg.AutoPublish = *patch.AutoPublish
	}
	if patch.ImageProvider != nil {
		cfg.ImageProvider = *patch.ImageProvider
	}
	if patch.InternalLinksMax != nil {
		cfg.InternalLinksMax = *patch.InternalLinksMax
	}
	if patch.PlagiarismCheck != nil {
		cfg.PlagiarismCheck = *patch.PlagiarismCheck
	}
	if patch.DataSection != nil {
		cfg.DataSection = *patch.DataSection
	}

	if err := s.Update(ctx, cfg); err != nil {
		return cfg, err
	}
	return s.Load(ctx)
}
