package enrich

import (
	"strings"
	"testing"
)

func testCorpus() []CorpusEntry {
	return NewCorpus([]CorpusEntry{
		{PostID: 1, Title: "A guide to Kubernetes operators", URL: "https://blog.example/k8s-operators", Text: "operators reconcile state"},
		{PostID: 2, Title: "Postgres tuning", URL: "https://blog.example/postgres", Text: "vacuum and indexes for postgres"},
		{PostID: 3, Title: "More Kubernetes", URL: "https://blog.example/more-k8s", Text: "kubernetes again"},
	})
}

func TestInsertLinksFirstMatchAndCasing(t *testing.T) {
	content := "<p>Running Postgres on Kubernetes needs care. Postgres again.</p>"

	out, links := InsertLinks(content, []string{"kubernetes", "postgres"}, testCorpus(), 5)

	if len(links) != 2 {
		t.Fatalf("expected 2 links, got %d: %#v", len(links), links)
	}
	if links[0].PostID != 1 {
		t.Fatalf("kubernetes must link to the first matching post, got %d", links[0].PostID)
	}
	if links[0].Anchor != "Kubernetes" || links[1].Anchor != "Postgres" {
		t.Fatalf("anchor text must keep original casing: %#v", links)
	}
	want := `<p>Running <a href="https://blog.example/postgres">Postgres</a> on <a href="https://blog.example/k8s-operators">Kubernetes</a> needs care. Postgres again.</p>`
	if out != want {
		t.Fatalf("unexpected content:\n%s", out)
	}
}

func TestInsertLinksRespectsLimit(t *testing.T) {
	content := "<p>kubernetes operators and postgres indexes</p>"
	keywords := []string{"kubernetes", "operators", "postgres", "indexes"}

	for limit := 0; limit <= 5; limit++ {
		_, links := InsertLinks(content, keywords, testCorpus(), limit)
		want := limit
		if want > 4 {
			want = 4
		}
		if len(links) != want {
			t.Fatalf("limit %d: got %d links", limit, len(links))
		}
	}
}

func TestInsertLinksAnchorsAppearInTarget(t *testing.T) {
	content := "<h2>Operators</h2><p>Vacuum your Postgres tables, then tune indexes.</p>"
	corpus := testCorpus()
	keywords := ExtractKeywords("Maintenance", StripHTML(content), 10, 4)

	out, links := InsertLinks(content, keywords, corpus, 10)
	if len(links) == 0 {
		t.Fatalf("expected links")
	}

	byID := map[uint]CorpusEntry{}
	for _, e := range corpus {
		byID[e.PostID] = e
	}
	for _, l := range links {
		target := strings.ToLower(byID[l.PostID].Title + " " + byID[l.PostID].Text)
		if !strings.Contains(target, strings.ToLower(l.Anchor)) {
			t.Fatalf("anchor %q not found in target post %d", l.Anchor, l.PostID)
		}
		if !strings.Contains(out, ">"+l.Anchor+"</a>") {
			t.Fatalf("anchor %q not present in content", l.Anchor)
		}
	}
}

func TestInsertLinksSkipsTagsAndExistingAnchors(t *testing.T) {
	content := `<p class="postgres"><a href="/x">postgres</a> <code>postgres</code> and postgres</p>`

	out, links := InsertLinks(content, []string{"postgres"}, testCorpus(), 3)
	if len(links) != 1 {
		t.Fatalf("expected 1 link, got %d", len(links))
	}
	want := `<p class="postgres"><a href="/x">postgres</a> <code>postgres</code> and <a href="https://blog.example/postgres">postgres</a></p>`
	if out != want {
		t.Fatalf("unexpected content:\n%s", out)
	}
}

func TestInsertLinksMatchesWholeWordsOnly(t *testing.T) {
	content := "<p>postgresql is not the keyword, but postgres is.</p>"

	out, links := InsertLinks(content, []string{"postgres"}, testCorpus(), 1)
	if len(links) != 1 {
		t.Fatalf("expected 1 link, got %d", len(links))
	}
	if !strings.Contains(out, "<p>postgresql is not the keyword, but <a ") {
		t.Fatalf("linked inside a longer word:\n%s", out)
	}
}

func TestInsertLinksKeywordWithoutOccurrenceIsNotCounted(t *testing.T) {
	content := "<p>nothing relevant here</p>"

	out, links := InsertLinks(content, []string{"kubernetes"}, testCorpus(), 3)
	if len(links) != 0 || out != content {
		t.Fatalf("content must be unchanged: %q %#v", out, links)
	}
}

func TestStripHTML(t *testing.T) {
	got := StripHTML("<h1>Title</h1>\n<p>Hello <b>world</b></p><script>var x = 1;</script>")
	if got != "Title Hello world" {
		t.Fatalf("StripHTML = %q", got)
	}
}

func TestRenderMarkdown(t *testing.T) {
	out, err := RenderMarkdown("# Heading\n\nSome *text*.")
	if err != nil {
		t.Fatalf("RenderMarkdown: %v", err)
	}
	if !strings.Contains(out, "<h1>Heading</h1>") || !strings.Contains(out, "<em>text</em>") {
		t.Fatalf("unexpected html: %s", out)
	}
}

func TestInsertLinksKeepsSurroundingText(t *testing.T) {
	content := `<p>It&#39;s &quot;fast&quot;:&nbsp;Postgres &amp; friends, don't "quote" me</p>`

	out, links := InsertLinks(content, []string{"postgres"}, testCorpus(), 1)
	if len(links) != 1 || links[0].Anchor != "Postgres" {
		t.Fatalf("unexpected links: %#v", links)
	}
	want := `<p>It&#39;s &quot;fast&quot;:&nbsp;<a href="https://blog.example/postgres">Postgres</a> &amp; friends, don't "quote" me</p>`
	if out != want {
		t.Fatalf("unexpected content:\n%s", out)
	}
}

func TestInsertLinksCombiningMarkScript(t *testing.T) {
	corpus := NewCorpus([]CorpusEntry{
		{PostID: 7, Title: "हिन्दी साहित्य का इतिहास", URL: "https://blog.example/hindi"},
	})
	content := "<p>आधुनिक हिन्दी साहित्य</p>"

	out, links := InsertLinks(content, []string{"साहित्य"}, corpus, 1)
	if len(links) != 1 || links[0].Anchor != "साहित्य" {
		t.Fatalf("unexpected links: %#v", links)
	}
	if !strings.Contains(out, `<a href="https://blog.example/hindi">साहित्य</a>`) {
		t.Fatalf("unexpected content:\n%s", out)
	}
}
