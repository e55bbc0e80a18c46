// Package enrich holds the best-effort steps that run on a generated draft
// before it is persisted.
package enrich

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"strings"

	"go.uber.org/zap"

	"github.com/ifuryst/quillflow/internal/service/ai"
	"github.com/ifuryst/quillflow/internal/service/image"
	"github.com/ifuryst/quillflow/pkg/util"
)

// Draft is the working copy shared by every stage.
type Draft struct {
	Title            string
	Content          string
	Keywords         []string
	Links            []Link
	FeaturedImage    *image.Image
	PlagiarismReport json.RawMessage
}

type Stage interface {
	Name() string
	Apply(ctx context.Context, d *Draft) error
}

type Warning struct {
	Stage string
	Err   error
}

// Runner applies stages in order. A failing or panicking stage is reported
// and the next stage still runs.
type Runner struct {
	logger *zap.Logger
}

func NewRunner(logger *zap.Logger) *Runner {
	return &Runner{logger: logger}
}

func (r *Runner) Run(ctx context.Context, d *Draft, stages []Stage) []Warning {
	var warnings []Warning
	for _, stage := range stages {
		if err := r.apply(ctx, stage, d); err != nil {
			r.logger.Warn("Enrichment stage failed",
				zap.String("stage", stage.Name()),
				zap.String("title", d.Title),
				zap.Error(err))
			warnings = append(warnings, Warning{Stage: stage.Name(), Err: err})
		}
	}
	return warnings
}

func (r *Runner) apply(ctx context.Context, stage Stage, d *Draft) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return stage.Apply(ctx, d)
}

// LinkStage extracts keywords and links them to published posts.
type LinkStage struct {
	Corpus           []CorpusEntry
	Limit            int
	KeywordCount     int
	MinKeywordLength int
}

func (s *LinkStage) Name() string { return "internal_links" }

func (s *LinkStage) Apply(_ context.Context, d *Draft) error {
	d.Keywords = ExtractKeywords(d.Title, StripHTML(d.Content), s.KeywordCount, s.MinKeywordLength)
	d.Content, d.Links = InsertLinks(d.Content, d.Keywords, s.Corpus, s.Limit)
	return nil
}

type ImageStage struct {
	Provider image.Provider
}

func (s *ImageStage) Name() string { return "featured_image" }

func (s *ImageStage) Apply(ctx context.Context, d *Draft) error {
	img, err := s.Provider.Find(ctx, d.Title)
	if err != nil {
		return err
	}
	if img == nil || img.URL == "" {
		return image.ErrNoResult
	}
	d.FeaturedImage = img
	return nil
}

type plagiarismResult struct {
	OriginalityScore float64  `json:"originalityScore"`
	FlaggedPassages  []string `json:"flaggedPassages"`
	Summary          string   `json:"summary"`
}

// PlagiarismStage asks the model for an originality scan and keeps its raw answer.
type PlagiarismStage struct {
	Generator ai.Generator
}

func (s *PlagiarismStage) Name() string { return "plagiarism_scan" }

func (s *PlagiarismStage) Apply(ctx context.Context, d *Draft) error {
	raw, err := s.Generator.Generate(ctx, ai.Request{
		Operation: ai.OpPlagiarism,
		System:    "You review articles for passages that read as copied from well known published sources. Answer in JSON.",
		Prompt: fmt.Sprintf("Rate the originality of this article from 0 to 100 and quote any suspicious passages.\n\nTitle: %s\n\n%s",
			d.Title, util.Truncate(StripHTML(d.Content), 12000)),
		Schema: ai.PlagiarismSchema,
	})
	if err != nil {
		return err
	}

	var result plagiarismResult
	if err := ai.Decode(raw, &result); err != nil {
		return err
	}
	report, err := json.Marshal(result)
	if err != nil {
		return err
	}
	d.PlagiarismReport = report
	return nil
}

type dataSection struct {
	Heading string   `json:"heading"`
	Facts   []string `json:"facts"`
}

// DataSectionStage appends a short block of supporting statistics.
type DataSectionStage struct {
	Generator ai.Generator
}

func (s *DataSectionStage) Name() string { return "data_section" }

func (s *DataSectionStage) Apply(ctx context.Context, d *Draft) error {
	raw, err := s.Generator.Generate(ctx, ai.Request{
		Operation: ai.OpDataSection,
		System:    "You add a concise 'by the numbers' section to articles. Only include widely reported figures. Answer in JSON.",
		Prompt: fmt.Sprintf("Write a heading and three to six one-sentence facts with figures for the article below.\n\nTitle: %s\n\n%s",
			d.Title, util.Truncate(StripHTML(d.Content), 6000)),
		Schema: ai.DataSectionSchema,
	})
	if err != nil {
		return err
	}

	var section dataSection
	if err := ai.Decode(raw, &section); err != nil {
		return err
	}
	if strings.TrimSpace(section.Heading) == "" || len(section.Facts) == 0 {
		return errors.New("data section is empty")
	}

	var sb strings.Builder
	sb.WriteString("\n<h2>")
	sb.WriteString(html.EscapeString(section.Heading))
	sb.WriteString("</h2>\n<ul>\n")
	for _, fact := range section.Facts {
		if fact = strings.TrimSpace(fact); fact != "" {
			sb.WriteString("<li>" + html.EscapeString(fact) + "</li>\n")
		}
	}
	sb.WriteString("</ul>\n")

	d.Content += sb.String()
	return nil
}
