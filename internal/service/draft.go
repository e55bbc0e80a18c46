package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/ifuryst/quillflow/internal/config"
	"github.com/ifuryst/quillflow/internal/models"
	"github.com/ifuryst/quillflow/internal/service/ai"
	"github.com/ifuryst/quillflow/internal/service/enrich"
	"github.com/ifuryst/quillflow/internal/service/image"
	"github.com/ifuryst/quillflow/pkg/util"
)

// errIdeaConsumed is returned when the idea left the backlog while its draft
// was being written.
var errIdeaConsumed = errors.New("idea was drafted or rejected concurrently")

type draftResponse struct {
	Content         string   `json:"content"`
	MetaTitle       string   `json:"metaTitle"`
	MetaDescription string   `json:"metaDescription"`
	FocusKeywords   []string `json:"focusKeywords"`
}

func (r *draftResponse) validate() error {
	var missing []string
	if strings.TrimSpace(r.Content) == "" {
		missing = append(missing, "content")
	}
	if strings.TrimSpace(r.MetaTitle) == "" {
		missing = append(missing, "metaTitle")
	}
	if strings.TrimSpace(r.MetaDescription) == "" {
		missing = append(missing, "metaDescription")
	}
	if r.FocusKeywords == nil {
		missing = append(missing, "focusKeywords")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing fields: %s", strings.Join(missing, ", "))
	}
	return nil
}

// DraftService turns a backlog idea into an enriched, persisted draft.
type DraftService struct {
	db        *gorm.DB
	logger    *zap.Logger
	generator ai.Generator
	quota     *QuotaService
	license   ProChecker
	style     *StyleService
	settings  *SettingsService
	activity  *ActivityService
	runner    *enrich.Runner
	images    map[models.ImageProvider]image.Provider
	config    *config.PipelineConfig
}

func NewDraftService(cfg *config.PipelineConfig, db *gorm.DB, logger *zap.Logger, generator ai.Generator, quota *QuotaService, license ProChecker, style *StyleService, settings *SettingsService, activity *ActivityService) *DraftService {
	return &DraftService{
		db:        db,
		logger:    logger,
		generator: generator,
		quota:     quota,
		license:   license,
		style:     style,
		settings:  settings,
		activity:  activity,
		runner:    enrich.NewRunner(logger),
		images:    make(map[models.ImageProvider]image.Provider),
		config:    cfg,
	}
}

// RegisterImageProvider makes provider selectable through AutomationConfig.ImageProvider.
func (s *DraftService) RegisterImageProvider(name models.ImageProvider, provider image.Provider) {
	s.images[name] = provider
}

// Write drafts the given idea. Enrichment problems are logged and never
// prevent the draft from being saved; a generation failure leaves the idea
// in the backlog.
func (s *DraftService) Write(ctx context.Context, ideaID uint) (*models.Post, error) {
	log := s.logger.With(zap.Uint("idea_id", ideaID))

	var idea models.Idea
	err := s.db.WithContext(ctx).First(&idea, ideaID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &NotFoundError{Entity: "idea", ID: ideaID}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load idea: %w", err)
	}
	if !idea.InBacklog() {
		return nil, &NotFoundError{Entity: "backlog idea", ID: ideaID}
	}

	guide, err := s.style.Require(ctx)
	if err != nil {
		return nil, err
	}
	cfg, err := s.settings.Load(ctx)
	if err != nil {
		return nil, err
	}

	reservation, err := s.quota.Reserve(ctx, models.QuotaDraft, 1)
	if err != nil {
		return nil, err
	}
	committed := false
	defer func() {
		if !committed {
			if err := s.quota.Release(ctx, reservation, 1); err != nil {
				log.Error("Failed to release draft quota", zap.Error(err))
			}
		}
	}()

	corpus, err := s.linkingCorpus(ctx)
	if err != nil {
		return nil, err
	}

	raw, err := s.generator.Generate(ctx, ai.Request{
		Operation: ai.OpWriteDraft,
		System:    writerSystemPrompt,
		Prompt:    draftPrompt(guide, idea.Title, corpus),
		Schema:    ai.DraftSchema,
	})
	if err != nil {
		return nil, s.generationFailed(ctx, &idea, err)
	}

	var resp draftResponse
	if err := ai.Decode(raw, &resp); err != nil {
		return nil, s.generationFailed(ctx, &idea, err)
	}
	if err := resp.validate(); err != nil {
		return nil, s.generationFailed(ctx, &idea, err)
	}

	content, err := enrich.RenderMarkdown(resp.Content)
	if err != nil {
		return nil, s.generationFailed(ctx, &idea, err)
	}

	draft := &enrich.Draft{Title: idea.Title, Content: content}
	warnings := s.runner.Run(ctx, draft, s.stages(ctx, cfg, corpus))

	post := &models.Post{
		Title:           idea.Title,
		Slug:            util.GenerateSlug(idea.Title),
		Content:         draft.Content,
		MetaTitle:       strings.TrimSpace(resp.MetaTitle),
		MetaDescription: strings.TrimSpace(resp.MetaDescription),
		FocusKeywords:   models.StringArray(resp.FocusKeywords),
		Status:          models.PostStatusDraft,
		SourceIdeaID:    &idea.ID,
	}
	if draft.FeaturedImage != nil {
		post.FeaturedImageRef = &draft.FeaturedImage.URL
	}
	if len(draft.PlagiarismReport) > 0 {
		post.PlagiarismReport = []byte(draft.PlagiarismReport)
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(post).Error; err != nil {
			return fmt.Errorf("failed to save draft: %w", err)
		}
		res := tx.Model(&models.Idea{}).
			Where("id = ? AND status IN ?", idea.ID, models.BacklogStatuses).
			Update("status", models.IdeaStatusDrafted)
		if res.Error != nil {
			return fmt.Errorf("failed to mark idea drafted: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return errIdeaConsumed
		}
		return nil
	})
	if err != nil {
		log.Error("Failed to persist draft", zap.Error(err))
		return nil, err
	}
	committed = true

	draftsWrittenCounter.Inc()
	linksInsertedCounter.Add(float64(len(draft.Links)))
	for _, w := range warnings {
		enrichmentWarningsCounter.WithLabelValues(w.Stage).Inc()
		warning := &EnrichmentWarning{Stage: w.Stage, Err: w.Err}
		_ = s.activity.Record(ctx, models.ActivityEnrichment, warning.Error(), WithIdea(idea.ID), WithPost(post.ID))
	}

	log.Info("Draft written",
		zap.Uint("post_id", post.ID),
		zap.Int("links", len(draft.Links)),
		zap.Bool("image", post.FeaturedImageRef != nil),
		zap.Int("warnings", len(warnings)))
	_ = s.activity.Record(ctx, models.ActivityDraftWritten,
		fmt.Sprintf("Draft written: %s", post.Title),
		WithIdea(idea.ID),
		WithPost(post.ID),
		WithContext(map[string]interface{}{
			"links":    len(draft.Links),
			"keywords": draft.Keywords,
			"warnings": len(warnings),
		}))

	return post, nil
}

func (s *DraftService) generationFailed(ctx context.Context, idea *models.Idea, err error) error {
	genErr := &GenerationError{Operation: string(ai.OpWriteDraft), Err: err}
	s.logger.Error("Draft generation failed", zap.Uint("idea_id", idea.ID), zap.Error(err))
	_ = s.activity.Record(ctx, models.ActivityDraftFailed, genErr.Error(), WithIdea(idea.ID))
	return genErr
}

// stages builds the enrichment pipeline for one draft from the current settings.
func (s *DraftService) stages(ctx context.Context, cfg models.AutomationConfig, corpus []enrich.CorpusEntry) []enrich.Stage {
	stages := []enrich.Stage{
		&enrich.LinkStage{
			Corpus:           corpus,
			Limit:            cfg.InternalLinksMax,
			KeywordCount:     s.config.KeywordCount,
			MinKeywordLength: s.config.MinKeywordLength,
		},
	}

	if cfg.ImageProvider != "" && cfg.ImageProvider != models.ImageProviderNone {
		if provider, ok := s.images[cfg.ImageProvider]; ok {
			stages = append(stages, &enrich.ImageStage{Provider: provider})
		} else {
			stages = append(stages, &enrich.ImageStage{Provider: missingProvider(cfg.ImageProvider)})
		}
	}

	if (cfg.PlagiarismCheck || cfg.DataSection) && s.license.IsPro(ctx) {
		if cfg.PlagiarismCheck {
			stages = append(stages, &enrich.PlagiarismStage{Generator: s.generator})
		}
		if cfg.DataSection {
			stages = append(stages, &enrich.DataSectionStage{Generator: s.generator})
		}
	}
	return stages
}

// linkingCorpus lists recently published posts as link targets.
func (s *DraftService) linkingCorpus(ctx context.Context) ([]enrich.CorpusEntry, error) {
	var posts []models.Post
	if err := s.db.WithContext(ctx).
		Where("status = ? AND permalink <> ''", models.PostStatusPublished).
		Order("published_at desc, id desc").
		Limit(s.config.CorpusSize).
		Find(&posts).Error; err != nil {
		return nil, fmt.Errorf("failed to load linking corpus: %w", err)
	}

	entries := make([]enrich.CorpusEntry, 0, len(posts))
	for _, p := range posts {
		entries = append(entries, enrich.CorpusEntry{
			PostID: p.ID,
			Title:  p.Title,
			URL:    p.Permalink,
			Text:   enrich.StripHTML(p.Content),
		})
	}
	return enrich.NewCorpus(entries), nil
}

type missingProvider models.ImageProvider

func (m missingProvider) Find(context.Context, string) (*image.Image, error) {
	return nil, fmt.Errorf("image provider %q is not configured", string(m))
}
