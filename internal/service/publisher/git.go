package publisher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Repo is the part of a git checkout the static-site publisher needs.
type Repo interface {
	Sync(ctx context.Context) error
	WriteFile(relativePath string, content []byte) error
	CommitAndPush(ctx context.Context, message string, files ...string) (string, error)
}

// GitPublisher commits posts into a Jekyll site repository (al-folio layout)
// and relies on the site's own build to serve them.
type GitPublisher struct {
	repo    Repo
	baseURL string
	logger  *zap.Logger
	now     func() time.Time
}

func NewGitPublisher(repo Repo, baseURL string, logger *zap.Logger) *GitPublisher {
	return &GitPublisher{
		repo:    repo,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		logger:  logger,
		now:     time.Now,
	}
}

func (p *GitPublisher) Name() string { return "git" }

func (p *GitPublisher) Publish(ctx context.Context, content Content) (*Result, error) {
	if content.Slug == "" {
		return nil, errors.New("post has no slug")
	}

	if err := p.repo.Sync(ctx); err != nil {
		return nil, fmt.Errorf("failed to sync site repository: %w", err)
	}

	now := p.now()
	body, err := RenderPost(content, now)
	if err != nil {
		return nil, err
	}

	path := PostPath(content.Slug, now)
	if err := p.repo.WriteFile(path, body); err != nil {
		return nil, err
	}

	hash, err := p.repo.CommitAndPush(ctx, "Publish "+content.Title, path)
	if err != nil {
		return nil, fmt.Errorf("failed to push post: %w", err)
	}

	p.logger.Info("Post committed to site repository",
		zap.String("path", path),
		zap.String("commit", hash))

	return &Result{
		Permalink:   fmt.Sprintf("%s/blog/%d/%s/", p.baseURL, now.Year(), content.Slug),
		ExternalID:  hash,
		PublishedAt: now,
	}, nil
}

// PostPath follows Jekyll's _posts/YYYY-MM-DD-slug.md naming.
func PostPath(slug string, date time.Time) string {
	return fmt.Sprintf("_posts/%s-%s.md", date.Format("2006-01-02"), slug)
}

type frontMatter struct {
	Layout      string   `yaml:"layout"`
	Title       string   `yaml:"title"`
	Date        string   `yaml:"date"`
	Description string   `yaml:"description,omitempty"`
	Tags        []string `yaml:"tags,omitempty"`
	Thumbnail   string   `yaml:"thumbnail,omitempty"`
}

// RenderPost returns the post file: YAML front matter followed by the HTML
// body, which Jekyll passes through its markdown converter untouched.
func RenderPost(content Content, date time.Time) ([]byte, error) {
	title := content.MetaTitle
	if title == "" {
		title = content.Title
	}

	meta, err := yaml.Marshal(frontMatter{
		Layout:      "post",
		Title:       title,
		Date:        date.Format("2006-01-02 15:04:05 -0700"),
		Description: content.MetaDescription,
		Tags:        content.FocusKeywords,
		Thumbnail:   content.FeaturedImage,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to render front matter: %w", err)
	}

	var buf bytes.Buffer
	buf.WriteString("---\n")
	buf.Write(meta)
	buf.WriteString("---\n\n")
	buf.WriteString(content.HTML)
	buf.WriteString("\n")
	return buf.Bytes(), nil
}
