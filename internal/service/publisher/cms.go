package publisher

import (
	"context"
	"errors"
	"strings"
	"time"
)

// CMSPublisher publishes in place: the post is served by this installation
// under base URL + slug.
type CMSPublisher struct {
	baseURL string
	now     func() time.Time
}

func NewCMSPublisher(baseURL string) *CMSPublisher {
	return &CMSPublisher{baseURL: strings.TrimSuffix(baseURL, "/"), now: time.Now}
}

func (p *CMSPublisher) Name() string { return "cms" }

func (p *CMSPublisher) Publish(_ context.Context, content Content) (*Result, error) {
	if content.Slug == "" {
		return nil, errors.New("post has no slug")
	}
	return &Result{
		Permalink:   p.baseURL + "/" + content.Slug,
		PublishedAt: p.now(),
	}, nil
}
