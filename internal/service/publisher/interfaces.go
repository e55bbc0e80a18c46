package publisher

import (
	"context"
	"time"

	"github.com/ifuryst/quillflow/internal/models"
)

// Content is what a host receives when a draft goes live.
type Content struct {
	PostID          uint     `json:"post_id"`
	Title           string   `json:"title"`
	Slug            string   `json:"slug"`
	HTML            string   `json:"html"`
	MetaTitle       string   `json:"meta_title"`
	MetaDescription string   `json:"meta_description"`
	FocusKeywords   []string `json:"focus_keywords"`
	FeaturedImage   string   `json:"featured_image,omitempty"`
}

// Result represents the outcome of a publish operation
type Result struct {
	Permalink   string    `json:"permalink"`
	ExternalID  string    `json:"external_id,omitempty"`
	PublishedAt time.Time `json:"published_at"`
}

// Publisher is the host publish operation.
type Publisher interface {
	Name() string
	Publish(ctx context.Context, content Content) (*Result, error)
}

// FromPost converts a stored draft to publishable content.
func FromPost(post *models.Post) Content {
	content := Content{
		PostID:          post.ID,
		Title:           post.Title,
		Slug:            post.Slug,
		HTML:            post.Content,
		MetaTitle:       post.MetaTitle,
		MetaDescription: post.MetaDescription,
		FocusKeywords:   []string(post.FocusKeywords),
	}
	if post.FeaturedImageRef != nil {
		content.FeaturedImage = *post.FeaturedImageRef
	}
	return content
}
