package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/ifuryst/quillflow/internal/config"
	"github.com/ifuryst/quillflow/internal/models"
	"github.com/ifuryst/quillflow/internal/service/publisher"
	"github.com/ifuryst/quillflow/pkg/git"
	"github.com/ifuryst/quillflow/pkg/util"
)

const defaultPublishTimeout = 30 * time.Second

// PublisherService moves drafts to published through the configured host.
type PublisherService struct {
	db        *gorm.DB
	logger    *zap.Logger
	publisher publisher.Publisher
	activity  *ActivityService
}

// NewPublisher builds the host publish operation selected in config.
func NewPublisher(cfg *config.Config, logger *zap.Logger) (publisher.Publisher, error) {
	switch cfg.Publisher.Type {
	case "cms":
		return publisher.NewCMSPublisher(cfg.Site.BaseURL), nil
	case "webhook":
		if cfg.Publisher.WebhookURL == "" {
			return nil, errors.New("publisher.webhook_url is required for the webhook publisher")
		}
		return publisher.NewWebhookPublisher(cfg.Publisher.WebhookURL, cfg.Publisher.WebhookToken,
			util.ParseDuration(cfg.Publisher.Timeout, defaultPublishTimeout)), nil
	case "git":
		gitCfg := cfg.Publisher.Git
		if gitCfg.URL == "" || gitCfg.WorkspaceDir == "" {
			return nil, errors.New("publisher.git.url and publisher.git.workspace_dir are required for the git publisher")
		}
		return publisher.NewGitPublisher(git.NewRepository(gitCfg, logger), cfg.Site.BaseURL, logger), nil
	default:
		return nil, fmt.Errorf("unknown publisher type %q", cfg.Publisher.Type)
	}
}

func NewPublisherService(db *gorm.DB, logger *zap.Logger, pub publisher.Publisher, activity *ActivityService) *PublisherService {
	return &PublisherService{
		db:        db,
		logger:    logger,
		publisher: pub,
		activity:  activity,
	}
}

// Publish publishes one draft or scheduled post and returns it updated.
func (s *PublisherService) Publish(ctx context.Context, postID uint) (*models.Post, error) {
	var post models.Post
	err := s.db.WithContext(ctx).First(&post, postID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &NotFoundError{Entity: "post", ID: postID}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load post: %w", err)
	}
	if post.Status == models.PostStatusPublished {
		return &post, nil
	}

	log := s.logger.With(zap.Uint("post_id", post.ID), zap.String("publisher", s.publisher.Name()))

	result, err := s.publisher.Publish(ctx, publisher.FromPost(&post))
	if err != nil {
		log.Error("Failed to publish post", zap.Error(err))
		return nil, fmt.Errorf("failed to publish post %d: %w", post.ID, err)
	}

	res := s.db.WithContext(ctx).Model(&models.Post{}).
		Where("id = ? AND status <> ?", post.ID, models.PostStatusPublished).
		Updates(map[string]interface{}{
			"status":       models.PostStatusPublished,
			"published_at": result.PublishedAt,
			"permalink":    result.Permalink,
		})
	if res.Error != nil {
		return nil, fmt.Errorf("failed to mark post published: %w", res.Error)
	}

	post.Status = models.PostStatusPublished
	post.PublishedAt = &result.PublishedAt
	post.Permalink = result.Permalink

	postsPublishedCounter.Inc()
	log.Info("Post published", zap.String("permalink", result.Permalink))
	_ = s.activity.Record(ctx, models.ActivityPostPublished,
		fmt.Sprintf("Published: %s", post.Title),
		WithPost(post.ID),
		WithContext(map[string]interface{}{
			"permalink":   result.Permalink,
			"external_id": result.ExternalID,
		}))

	return &post, nil
}

// PublishOldestDraft publishes the single oldest unpublished draft. It
// returns nil when there is nothing to publish.
func (s *PublisherService) PublishOldestDraft(ctx context.Context) (*models.Post, error) {
	var posts []models.Post
	if err := s.db.WithContext(ctx).
		Where("status = ?", models.PostStatusDraft).
		Order("created_at, id").
		Limit(1).
		Find(&posts).Error; err != nil {
		return nil, fmt.Errorf("failed to pick draft: %w", err)
	}
	if len(posts) == 0 {
		return nil, nil
	}
	return s.Publish(ctx, posts[0].ID)
}
