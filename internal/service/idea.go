package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/ifuryst/quillflow/internal/config"
	"github.com/ifuryst/quillflow/internal/models"
	"github.com/ifuryst/quillflow/internal/service/ai"
	"github.com/ifuryst/quillflow/pkg/util"
)

// ErrDuplicateTitle is returned when a manual idea repeats an existing title.
var ErrDuplicateTitle = errors.New("an idea or post with this title already exists")

// maxPromptTitles caps how many existing titles are sent to the model.
const maxPromptTitles = 200

type ideasResponse struct {
	Ideas []string `json:"ideas"`
}

type IdeaService struct {
	db        *gorm.DB
	logger    *zap.Logger
	generator ai.Generator
	quota     *QuotaService
	style     *StyleService
	activity  *ActivityService
	config    *config.PipelineConfig

	// saveMu covers the title read through the insert of new ideas.
	saveMu sync.Mutex
}

func NewIdeaService(cfg *config.PipelineConfig, db *gorm.DB, logger *zap.Logger, generator ai.Generator, quota *QuotaService, style *StyleService, activity *ActivityService) *IdeaService {
	return &IdeaService{
		db:        db,
		logger:    logger,
		generator: generator,
		quota:     quota,
		style:     style,
		activity:  activity,
		config:    cfg,
	}
}

// Generate asks the model for count new titles, optionally steered by a
// search signal, and persists the ones that do not duplicate an existing
// idea or post title.
func (s *IdeaService) Generate(ctx context.Context, count int, searchSignal string) ([]models.Idea, error) {
	source := models.IdeaSourceAI
	if strings.TrimSpace(searchSignal) != "" {
		source = models.IdeaSourceSearchSignal
	}
	return s.generate(ctx, count, strings.TrimSpace(searchSignal), source)
}

// GenerateSimilar proposes variations on an existing title.
func (s *IdeaService) GenerateSimilar(ctx context.Context, baseTitle string) ([]models.Idea, error) {
	if strings.TrimSpace(baseTitle) == "" {
		return nil, &ConfigurationError{Reason: "base title is empty"}
	}
	return s.generate(ctx, s.config.SimilarCount, strings.TrimSpace(baseTitle), models.IdeaSourceSimilar)
}

func (s *IdeaService) GenerateFromSearchSignal(ctx context.Context, signal string) ([]models.Idea, error) {
	if strings.TrimSpace(signal) == "" {
		return nil, &ConfigurationError{Reason: "search signal is empty"}
	}
	return s.generate(ctx, s.config.SignalCount, strings.TrimSpace(signal), models.IdeaSourceSearchSignal)
}

func (s *IdeaService) generate(ctx context.Context, count int, seed string, source models.IdeaSource) ([]models.Idea, error) {
	if count <= 0 {
		return nil, &ConfigurationError{Reason: "idea count must be positive"}
	}

	guide, err := s.style.Require(ctx)
	if err != nil {
		return nil, err
	}

	reservation, err := s.quota.Reserve(ctx, models.QuotaIdea, count)
	if err != nil {
		return nil, err
	}
	granted := reservation.Granted
	unused := granted
	defer func() {
		if unused > 0 {
			if err := s.quota.Release(ctx, reservation, unused); err != nil {
				s.logger.Error("Failed to release idea quota", zap.Int("units", unused), zap.Error(err))
			}
		}
	}()

	existing, err := s.existingTitles(ctx)
	if err != nil {
		return nil, err
	}

	promptTitles := existing
	if len(promptTitles) > maxPromptTitles {
		promptTitles = promptTitles[len(promptTitles)-maxPromptTitles:]
	}

	raw, err := s.generator.Generate(ctx, ai.Request{
		Operation: ai.OpGenerateIdeas,
		System:    writerSystemPrompt,
		Prompt:    ideasPrompt(guide, promptTitles, granted, seed, source),
		Schema:    ai.IdeasSchema,
	})
	if err != nil {
		return nil, s.generationFailed(ctx, err)
	}

	var resp ideasResponse
	if err := ai.Decode(raw, &resp); err != nil {
		return nil, s.generationFailed(ctx, err)
	}
	if resp.Ideas == nil {
		return nil, s.generationFailed(ctx, errors.New("ideas field missing"))
	}

	ideas, err := s.saveNew(ctx, resp.Ideas, granted, source)
	if err != nil {
		return nil, err
	}
	unused = granted - len(ideas)

	ideasGeneratedCounter.WithLabelValues(string(source)).Add(float64(len(ideas)))
	s.logger.Info("Ideas generated",
		zap.String("source", string(source)),
		zap.Int("requested", count),
		zap.Int("granted", granted),
		zap.Int("proposed", len(resp.Ideas)),
		zap.Int("saved", len(ideas)))

	titles := make([]string, 0, len(ideas))
	for _, idea := range ideas {
		titles = append(titles, idea.Title)
	}
	_ = s.activity.Record(ctx, models.ActivityIdeasGenerated,
		fmt.Sprintf("Generated %d new ideas", len(ideas)),
		WithContext(map[string]interface{}{
			"source":     source,
			"seed":       seed,
			"titles":     titles,
			"duplicates": len(resp.Ideas) - len(ideas),
		}))

	return ideas, nil
}

func (s *IdeaService) generationFailed(ctx context.Context, err error) error {
	genErr := &GenerationError{Operation: string(ai.OpGenerateIdeas), Err: err}
	s.logger.Error("Idea generation failed", zap.Error(err))
	_ = s.activity.Record(ctx, models.ActivityGenerationFailed, genErr.Error())
	return genErr
}

// dedupTitles keeps at most limit candidates whose normalized title is new
// both to existing and to the batch itself.
func dedupTitles(candidates, existing []string, limit int, source models.IdeaSource) []models.Idea {
	seen := make(map[string]struct{}, len(existing)+len(candidates))
	for _, title := range existing {
		seen[util.NormalizeTitle(title)] = struct{}{}
	}

	ideas := make([]models.Idea, 0, limit)
	for _, candidate := range candidates {
		if len(ideas) == limit {
			break
		}
		title := strings.TrimSpace(candidate)
		key := util.NormalizeTitle(title)
		if key == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		ideas = append(ideas, models.Idea{
			Title:  title,
			Status: models.IdeaStatusNew,
			Source: source,
		})
	}
	return ideas
}

// saveNew stores the candidates that are new against the titles stored at
// the time of the insert, so concurrent generations cannot both keep a title.
func (s *IdeaService) saveNew(ctx context.Context, candidates []string, limit int, source models.IdeaSource) ([]models.Idea, error) {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	existing, err := s.existingTitles(ctx)
	if err != nil {
		return nil, err
	}
	ideas := dedupTitles(candidates, existing, limit, source)
	if len(ideas) == 0 {
		return ideas, nil
	}
	if err := s.db.WithContext(ctx).Create(&ideas).Error; err != nil {
		return nil, fmt.Errorf("failed to save ideas: %w", err)
	}
	return ideas, nil
}

// existingTitles returns idea and post titles, oldest first.
func (s *IdeaService) existingTitles(ctx context.Context) ([]string, error) {
	var ideaTitles, postTitles []string
	db := s.db.WithContext(ctx)
	if err := db.Model(&models.Idea{}).Order("id").Pluck("title", &ideaTitles).Error; err != nil {
		return nil, fmt.Errorf("failed to load idea titles: %w", err)
	}
	if err := db.Model(&models.Post{}).Order("id").Pluck("title", &postTitles).Error; err != nil {
		return nil, fmt.Errorf("failed to load post titles: %w", err)
	}
	return append(ideaTitles, postTitles...), nil
}

// AddManual stores a user supplied idea. It does not count against the quota.
func (s *IdeaService) AddManual(ctx context.Context, title string) (*models.Idea, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, &ConfigurationError{Reason: "title is empty"}
	}

	ideas, err := s.saveNew(ctx, []string{title}, 1, models.IdeaSourceManual)
	if err != nil {
		return nil, err
	}
	if len(ideas) == 0 {
		return nil, ErrDuplicateTitle
	}
	idea := ideas[0]

	ideasGeneratedCounter.WithLabelValues(string(models.IdeaSourceManual)).Inc()
	_ = s.activity.Record(ctx, models.ActivityIdeaAdded, fmt.Sprintf("Idea added: %s", idea.Title), WithIdea(idea.ID))
	return &idea, nil
}

func (s *IdeaService) Get(ctx context.Context, id uint) (*models.Idea, error) {
	var idea models.Idea
	err := s.db.WithContext(ctx).First(&idea, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &NotFoundError{Entity: "idea", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load idea: %w", err)
	}
	return &idea, nil
}

func (s *IdeaService) Reject(ctx context.Context, id uint) error {
	res := s.db.WithContext(ctx).Model(&models.Idea{}).
		Where("id = ? AND status IN ?", id, models.BacklogStatuses).
		Update("status", models.IdeaStatusRejected)
	if res.Error != nil {
		return fmt.Errorf("failed to reject idea: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return &NotFoundError{Entity: "backlog idea", ID: id}
	}
	return nil
}

// SetFeedback stores a thumbs up (1), neutral (0) or thumbs down (-1).
func (s *IdeaService) SetFeedback(ctx context.Context, id uint, value int) error {
	if value < -1 || value > 1 {
		return &ConfigurationError{Reason: "feedback must be -1, 0 or 1"}
	}
	res := s.db.WithContext(ctx).Model(&models.Idea{}).Where("id = ?", id).Update("feedback", value)
	if res.Error != nil {
		return fmt.Errorf("failed to store feedback: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return &NotFoundError{Entity: "idea", ID: id}
	}
	return nil
}

func (s *IdeaService) backlogQuery(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx).Model(&models.Idea{}).Where("status IN ?", models.BacklogStatuses)
}

// Backlog lists draftable ideas, oldest first.
func (s *IdeaService) Backlog(ctx context.Context) ([]models.Idea, error) {
	var ideas []models.Idea
	if err := s.backlogQuery(ctx).Order("created_at, id").Find(&ideas).Error; err != nil {
		return nil, fmt.Errorf("failed to load backlog: %w", err)
	}
	return ideas, nil
}

func (s *IdeaService) BacklogCount(ctx context.Context) (int64, error) {
	var count int64
	if err := s.backlogQuery(ctx).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count backlog: %w", err)
	}
	return count, nil
}

// NextForDraft returns the oldest backlog idea, or nil when the backlog is empty.
func (s *IdeaService) NextForDraft(ctx context.Context) (*models.Idea, error) {
	var ideas []models.Idea
	if err := s.backlogQuery(ctx).Order("created_at, id").Limit(1).Find(&ideas).Error; err != nil {
		return nil, fmt.Errorf("failed to pick idea: %w", err)
	}
	if len(ideas) == 0 {
		return nil, nil
	}
	return &ideas[0], nil
}
