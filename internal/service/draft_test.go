package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/ifuryst/quillflow/internal/models"
	"github.com/ifuryst/quillflow/internal/service/ai"
	"github.com/ifuryst/quillflow/internal/service/image"
)

const validDraft = `{"content":"## Why it matters\n\nKubernetes clusters need Postgres backups before every upgrade.","metaTitle":"Scaling Kubernetes clusters","metaDescription":"How to grow a cluster safely.","focusKeywords":["kubernetes","scaling"]}`

type stubImages struct {
	url string
}

func (s stubImages) Find(context.Context, string) (*image.Image, error) {
	return &image.Image{URL: s.url, Source: "stub"}, nil
}

func seedPublished(t *testing.T, env *testEnv, title, permalink, content string) {
	t.Helper()
	now := time.Now()
	post := models.Post{
		Title:       title,
		Slug:        strings.ToLower(strings.ReplaceAll(title, " ", "-")),
		Content:     content,
		Status:      models.PostStatusPublished,
		PublishedAt: &now,
		Permalink:   permalink,
	}
	if err := env.db.Create(&post).Error; err != nil {
		t.Fatalf("seed post: %v", err)
	}
}

func TestWriteDraftEnrichesAndConsumesIdea(t *testing.T) {
	env := newTestEnv(t).withStyleGuide(t)
	ctx := context.Background()
	seedPublished(t, env, "Postgres backup guide", "https://blog.example/postgres-backup", "<p>postgres backups daily</p>")

	idea, err := env.ideas.AddManual(ctx, "Scaling Kubernetes Clusters")
	if err != nil {
		t.Fatalf("AddManual: %v", err)
	}
	env.gen.on(ai.OpWriteDraft, validDraft)

	post, err := env.drafts.Write(ctx, idea.ID)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}

	if post.Status != models.PostStatusDraft || post.Slug != "scaling-kubernetes-clusters" {
		t.Fatalf("unexpected post: %#v", post)
	}
	if post.SourceIdeaID == nil || *post.SourceIdeaID != idea.ID {
		t.Fatalf("post must reference its idea")
	}
	if !strings.Contains(post.Content, "<h2>Why it matters</h2>") {
		t.Fatalf("markdown not rendered:\n%s", post.Content)
	}
	if !strings.Contains(post.Content, `<a href="https://blog.example/postgres-backup">Postgres</a>`) {
		t.Fatalf("internal link missing:\n%s", post.Content)
	}
	if len(post.FocusKeywords) != 2 || post.FocusKeywords[0] != "kubernetes" {
		t.Fatalf("focus keywords = %v", post.FocusKeywords)
	}

	// The corpus is offered to the model as context.
	if !strings.Contains(env.gen.calls[0].Prompt, "https://blog.example/postgres-backup") {
		t.Fatalf("draft prompt misses the linking corpus")
	}

	got, err := env.ideas.Get(ctx, idea.ID)
	if err != nil || got.Status != models.IdeaStatusDrafted {
		t.Fatalf("idea status = %v, %v", got, err)
	}
	if usage, _ := env.quota.Usage(ctx); usage.Drafts != 1 {
		t.Fatalf("drafts charged = %d, want 1", usage.Drafts)
	}
	if n := env.count(t, &models.ActivityLogEntry{}, "type = ? AND post_id = ?", models.ActivityDraftWritten, post.ID); n != 1 {
		t.Fatalf("expected one draft_written entry, got %d", n)
	}

	// A drafted idea cannot be drafted again.
	var notFound *NotFoundError
	if _, err := env.drafts.Write(ctx, idea.ID); !errors.As(err, &notFound) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}

func TestWriteDraftMalformedResponseKeepsIdea(t *testing.T) {
	env := newTestEnv(t).withStyleGuide(t)
	ctx := context.Background()

	idea, err := env.ideas.AddManual(ctx, "Observability basics")
	if err != nil {
		t.Fatalf("AddManual: %v", err)
	}
	env.gen.on(ai.OpWriteDraft, `{"content":"only content"}`)

	_, err = env.drafts.Write(ctx, idea.ID)
	var genErr *GenerationError
	if !errors.As(err, &genErr) {
		t.Fatalf("expected GenerationError, got %v", err)
	}

	got, _ := env.ideas.Get(ctx, idea.ID)
	if got.Status != models.IdeaStatusNew {
		t.Fatalf("idea must stay in the backlog, status = %s", got.Status)
	}
	if n := env.count(t, &models.Post{}, ""); n != 0 {
		t.Fatalf("no post may be created, found %d", n)
	}
	if usage, _ := env.quota.Usage(ctx); usage.Drafts != 0 {
		t.Fatalf("failed draft must not consume quota, used %d", usage.Drafts)
	}
	if n := env.count(t, &models.ActivityLogEntry{}, "type = ?", models.ActivityDraftFailed); n != 1 {
		t.Fatalf("expected one draft_failed entry, got %d", n)
	}
}

func TestWriteDraftQuotaExhausted(t *testing.T) {
	env := newTestEnv(t).withStyleGuide(t)
	ctx := context.Background()
	env.gen.on(ai.OpWriteDraft, validDraft)

	titles := []string{"First", "Second", "Third"}
	var ids []uint
	for _, title := range titles {
		idea, err := env.ideas.AddManual(ctx, title)
		if err != nil {
			t.Fatalf("AddManual: %v", err)
		}
		ids = append(ids, idea.ID)
	}

	for _, id := range ids[:2] {
		if _, err := env.drafts.Write(ctx, id); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}
	_, err := env.drafts.Write(ctx, ids[2])
	var quotaErr *QuotaExceededError
	if !errors.As(err, &quotaErr) || quotaErr.Kind != models.QuotaDraft {
		t.Fatalf("expected draft QuotaExceededError, got %v", err)
	}
	if env.gen.callCount(ai.OpWriteDraft) != 2 {
		t.Fatalf("model called %d times, want 2", env.gen.callCount(ai.OpWriteDraft))
	}
}

func TestWriteDraftEnrichmentFailureIsWarning(t *testing.T) {
	env := newTestEnv(t).withStyleGuide(t)
	ctx := context.Background()
	env.updateSettings(t, func(cfg *models.AutomationConfig) {
		cfg.ImageProvider = models.ImageProviderUnsplash
	})

	idea, err := env.ideas.AddManual(ctx, "Caching strategies")
	if err != nil {
		t.Fatalf("AddManual: %v", err)
	}
	env.gen.on(ai.OpWriteDraft, validDraft)

	post, err := env.drafts.Write(ctx, idea.ID)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if post.FeaturedImageRef != nil {
		t.Fatalf("no image expected without a provider")
	}
	if n := env.count(t, &models.ActivityLogEntry{}, "type = ?", models.ActivityEnrichment); n != 1 {
		t.Fatalf("expected one enrichment warning, got %d", n)
	}
}

func TestWriteDraftFeaturedImage(t *testing.T) {
	env := newTestEnv(t).withStyleGuide(t)
	ctx := context.Background()
	env.updateSettings(t, func(cfg *models.AutomationConfig) {
		cfg.ImageProvider = models.ImageProviderPexels
	})
	env.drafts.RegisterImageProvider(models.ImageProviderPexels, stubImages{url: "https://img.example/a.jpg"})

	idea, _ := env.ideas.AddManual(ctx, "Edge caching")
	env.gen.on(ai.OpWriteDraft, validDraft)

	post, err := env.drafts.Write(ctx, idea.ID)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if post.FeaturedImageRef == nil || *post.FeaturedImageRef != "https://img.example/a.jpg" {
		t.Fatalf("featured image = %v", post.FeaturedImageRef)
	}
}

func TestWriteDraftProStages(t *testing.T) {
	env := newTestEnv(t).withStyleGuide(t)
	ctx := context.Background()
	env.updateSettings(t, func(cfg *models.AutomationConfig) {
		cfg.PlagiarismCheck = true
		cfg.DataSection = true
	})
	env.gen.on(ai.OpWriteDraft, validDraft)
	env.gen.on(ai.OpPlagiarism, `{"originalityScore":97,"flaggedPassages":[],"summary":"original"}`)
	env.gen.on(ai.OpDataSection, `{"heading":"By the numbers","facts":["90% of teams run containers."]}`)

	// Free tier: the pro stages are skipped entirely.
	idea, _ := env.ideas.AddManual(ctx, "Container adoption")
	post, err := env.drafts.Write(ctx, idea.ID)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if env.gen.callCount(ai.OpPlagiarism) != 0 || strings.Contains(post.Content, "By the numbers") {
		t.Fatalf("pro stages ran on the free tier")
	}

	env.pro.pro = true
	idea, _ = env.ideas.AddManual(ctx, "Container security")
	post, err = env.drafts.Write(ctx, idea.ID)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if !strings.Contains(post.Content, "<h2>By the numbers</h2>") {
		t.Fatalf("data section missing:\n%s", post.Content)
	}
	if !strings.Contains(string(post.PlagiarismReport), `"originalityScore":97`) {
		t.Fatalf("plagiarism report = %s", post.PlagiarismReport)
	}
}
