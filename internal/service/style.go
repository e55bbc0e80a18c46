package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/ifuryst/quillflow/internal/models"
	"github.com/ifuryst/quillflow/internal/service/ai"
)

type styleAnalysis struct {
	Tone              string `json:"tone"`
	SentenceStructure string `json:"sentenceStructure"`
	ParagraphLength   string `json:"paragraphLength"`
	FormattingStyle   string `json:"formattingStyle"`
}

// StyleService owns the StyleGuide singleton.
type StyleService struct {
	db         *gorm.DB
	logger     *zap.Logger
	generator  ai.Generator
	activity   *ActivityService
	sampleSize int
	now        func() time.Time
}

func NewStyleService(db *gorm.DB, logger *zap.Logger, generator ai.Generator, activity *ActivityService, sampleSize int) *StyleService {
	if sampleSize <= 0 {
		sampleSize = 5
	}
	return &StyleService{
		db:         db,
		logger:     logger,
		generator:  generator,
		activity:   activity,
		sampleSize: sampleSize,
		now:        time.Now,
	}
}

// Require returns the style guide or a ConfigurationError when none exists.
func (s *StyleService) Require(ctx context.Context) (*models.StyleGuide, error) {
	var guide models.StyleGuide
	err := s.db.WithContext(ctx).First(&guide, models.SettingsID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &ConfigurationError{Reason: "no style guide configured"}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load style guide: %w", err)
	}
	return &guide, nil
}

func (s *StyleService) Save(ctx context.Context, guide models.StyleGuide) error {
	guide.ID = models.SettingsID
	if err := s.db.WithContext(ctx).Save(&guide).Error; err != nil {
		return fmt.Errorf("failed to save style guide: %w", err)
	}
	return nil
}

// StylePatch is a manual edit of the style guide. Nil fields keep their
// stored value.
type StylePatch struct {
	Tone               *string `json:"tone"`
	SentenceStructure  *string `json:"sentence_structure"`
	ParagraphLength    *string `json:"paragraph_length"`
	FormattingStyle    *string `json:"formatting_style"`
	CustomInstructions *string `json:"custom_instructions"`
}

// Apply edits the style guide by hand, creating it on first use. A guide
// always needs a tone.
func (s *StyleService) Apply(ctx context.Context, patch StylePatch) (*models.StyleGuide, error) {
	guide := models.StyleGuide{}
	existing, err := s.Require(ctx)
	var cfgErr *ConfigurationError
	switch {
	case err == nil:
		guide = *existing
	case !errors.As(err, &cfgErr):
		return nil, err
	}

	set := func(dst *string, src *string) {
		if src != nil {
			*dst = strings.TrimSpace(*src)
		}
	}
	set(&guide.Tone, patch.Tone)
	set(&guide.SentenceStructure, patch.SentenceStructure)
	set(&guide.ParagraphLength, patch.ParagraphLength)
	set(&guide.FormattingStyle, patch.FormattingStyle)
	set(&guide.CustomInstructions, patch.CustomInstructions)

	if guide.Tone == "" {
		return nil, &ConfigurationError{Reason: "style guide needs a tone"}
	}
	if err := s.Save(ctx, guide); err != nil {
		return nil, err
	}

	s.logger.Info("Style guide updated by hand")
	_ = s.activity.Record(ctx, models.ActivityStyleUpdated, "Style guide edited")
	return s.Require(ctx)
}

// Refresh re-derives the guide from the most recent published posts. Custom
// instructions written by the user are kept.
func (s *StyleService) Refresh(ctx context.Context) error {
	var samples []models.Post
	if err := s.db.WithContext(ctx).
		Where("status = ?", models.PostStatusPublished).
		Order("published_at desc, id desc").
		Limit(s.sampleSize).
		Find(&samples).Error; err != nil {
		return fmt.Errorf("failed to load published posts: %w", err)
	}
	if len(samples) == 0 {
		s.logger.Info("Skipping style refresh, no published posts yet")
		return nil
	}

	raw, err := s.generator.Generate(ctx, ai.Request{
		Operation: ai.OpAnalyzeStyle,
		System:    "You are an editor who documents house writing styles. Answer only with JSON.",
		Prompt:    stylePrompt(samples),
		Schema:    ai.StyleSchema,
	})
	if err != nil {
		return &GenerationError{Operation: string(ai.OpAnalyzeStyle), Err: err}
	}

	var analysis styleAnalysis
	if err := ai.Decode(raw, &analysis); err != nil {
		return &GenerationError{Operation: string(ai.OpAnalyzeStyle), Err: err}
	}
	if strings.TrimSpace(analysis.Tone) == "" {
		return &GenerationError{Operation: string(ai.OpAnalyzeStyle), Err: errors.New("tone missing")}
	}

	guide := models.StyleGuide{}
	if existing, err := s.Require(ctx); err == nil {
		guide.CustomInstructions = existing.CustomInstructions
	}
	now := s.now()
	guide.Tone = analysis.Tone
	guide.SentenceStructure = analysis.SentenceStructure
	guide.ParagraphLength = analysis.ParagraphLength
	guide.FormattingStyle = analysis.FormattingStyle
	guide.LastAnalyzed = &now

	if err := s.Save(ctx, guide); err != nil {
		return err
	}

	s.logger.Info("Style guide refreshed", zap.Int("samples", len(samples)))
	_ = s.activity.Record(ctx, models.ActivityStyleRefreshed,
		fmt.Sprintf("Style guide refreshed from %d published posts", len(samples)))
	return nil
}
