// Package image finds or generates a featured image for a draft.
package image

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/ifuryst/quillflow/pkg/util"
)

// ErrNoResult means the provider answered but had nothing for the query.
var ErrNoResult = errors.New("no image found")

type Image struct {
	URL         string
	Source      string
	Attribution string
}

type Provider interface {
	Find(ctx context.Context, query string) (*Image, error)
}

// Uploader stores image bytes and returns their public link.
type Uploader interface {
	Upload(ctx context.Context, key string, data []byte, contentType string) (string, error)
}

// MirroredProvider copies every found image into our own bucket, so the
// stored reference outlives short-lived provider URLs.
type MirroredProvider struct {
	next     Provider
	uploader Uploader
	client   *http.Client
	maxBytes int64
	now      func() time.Time
}

// maxImageBytes caps the size of a mirrored image.
const maxImageBytes = 20 << 20

func NewMirroredProvider(next Provider, uploader Uploader, timeout time.Duration) *MirroredProvider {
	return &MirroredProvider{
		next:     next,
		uploader: uploader,
		client:   &http.Client{Timeout: timeout},
		maxBytes: maxImageBytes,
		now:      time.Now,
	}
}

func (m *MirroredProvider) Find(ctx context.Context, query string) (*Image, error) {
	img, err := m.next.Find(ctx, query)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, img.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download image: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("image download returned status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, m.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}
	if int64(len(data)) > m.maxBytes {
		return nil, fmt.Errorf("image exceeds %d bytes", m.maxBytes)
	}

	contentType := resp.Header.Get("Content-Type")
	key := fmt.Sprintf("featured/%s/%s%s",
		m.now().UTC().Format("2006/01"),
		util.Truncate(util.GenerateSlug(query), 60),
		extensionFor(contentType, img.URL))

	link, err := m.uploader.Upload(ctx, key, data, contentType)
	if err != nil {
		return nil, err
	}

	return &Image{URL: link, Source: img.Source, Attribution: img.Attribution}, nil
}

func extensionFor(contentType, url string) string {
	switch {
	case strings.HasPrefix(contentType, "image/png"):
		return ".png"
	case strings.HasPrefix(contentType, "image/jpeg"):
		return ".jpg"
	case strings.HasPrefix(contentType, "image/webp"):
		return ".webp"
	}
	if ext := path.Ext(strings.SplitN(url, "?", 2)[0]); len(ext) > 1 && len(ext) <= 5 {
		return ext
	}
	return ".img"
}
