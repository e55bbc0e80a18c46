package service

import (
	"fmt"
	"strings"

	"github.com/ifuryst/quillflow/internal/models"
	"github.com/ifuryst/quillflow/internal/service/enrich"
	"github.com/ifuryst/quillflow/pkg/util"
)

const writerSystemPrompt = "You are the staff writer of a blog. Follow the style guide exactly and answer only with JSON."

func styleBlock(guide *models.StyleGuide) string {
	var sb strings.Builder
	sb.WriteString("Style guide:\n")
	fmt.Fprintf(&sb, "- Tone: %s\n", guide.Tone)
	fmt.Fprintf(&sb, "- Sentence structure: %s\n", guide.SentenceStructure)
	fmt.Fprintf(&sb, "- Paragraph length: %s\n", guide.ParagraphLength)
	fmt.Fprintf(&sb, "- Formatting: %s\n", guide.FormattingStyle)
	if guide.CustomInstructions != "" {
		fmt.Fprintf(&sb, "- Additional instructions: %s\n", guide.CustomInstructions)
	}
	return sb.String()
}

func ideasPrompt(guide *models.StyleGuide, existing []string, count int, seed string, source models.IdeaSource) string {
	var sb strings.Builder
	sb.WriteString(styleBlock(guide))
	sb.WriteString("\n")

	switch source {
	case models.IdeaSourceSimilar:
		fmt.Fprintf(&sb, "Propose %d new article titles that explore the same topic as %q from a different angle.\n", count, seed)
	case models.IdeaSourceSearchSignal:
		fmt.Fprintf(&sb, "Readers are searching for %q. Propose %d article titles that answer that search.\n", seed, count)
	default:
		fmt.Fprintf(&sb, "Propose %d new article titles for this blog.\n", count)
	}

	if len(existing) > 0 {
		sb.WriteString("\nDo not repeat or closely paraphrase any of these existing titles:\n")
		for _, title := range existing {
			sb.WriteString("- " + title + "\n")
		}
	}
	sb.WriteString("\nReturn {\"ideas\": [\"title\", ...]}.")
	return sb.String()
}

func draftPrompt(guide *models.StyleGuide, title string, corpus []enrich.CorpusEntry) string {
	var sb strings.Builder
	sb.WriteString(styleBlock(guide))
	fmt.Fprintf(&sb, "\nWrite a complete blog article titled %q.\n", title)
	sb.WriteString("The content field is Markdown with ## section headings and no top level title.\n")
	sb.WriteString("metaTitle is at most 60 characters, metaDescription at most 155 characters, focusKeywords holds 3 to 6 search phrases.\n")

	if len(corpus) > 0 {
		sb.WriteString("\nRelated articles already published on the blog (mention their topics where natural):\n")
		for _, entry := range corpus {
			fmt.Fprintf(&sb, "- %s (%s)\n", entry.Title, entry.URL)
		}
	}
	return sb.String()
}

func stylePrompt(samples []models.Post) string {
	var sb strings.Builder
	sb.WriteString("Describe the writing style of the following articles so another writer can imitate it.\n")
	sb.WriteString("Return tone, sentenceStructure, paragraphLength and formattingStyle as short instructions.\n")
	for i, post := range samples {
		fmt.Fprintf(&sb, "\n### Article %d: %s\n%s\n", i+1, post.Title, util.Truncate(enrich.StripHTML(post.Content), 3000))
	}
	return sb.String()
}
