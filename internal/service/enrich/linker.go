package enrich

import (
	"html"
	"strings"
	"unicode/utf8"

	nethtml "golang.org/x/net/html"
)

// maxReferenceLen bounds the length of a character reference such as &nbsp;.
const maxReferenceLen = 32

// CorpusEntry is a published post that new drafts may link to.
type CorpusEntry struct {
	PostID uint
	Title  string
	URL    string
	Text   string // stripped content

	haystack string
}

// NewCorpus prepares entries for case-insensitive lookups. Order is kept:
// the first matching entry always wins.
func NewCorpus(entries []CorpusEntry) []CorpusEntry {
	out := make([]CorpusEntry, len(entries))
	for i, e := range entries {
		e.haystack = strings.ToLower(e.Title + "\n" + e.Text)
		out[i] = e
	}
	return out
}

func (e *CorpusEntry) contains(keyword string) bool {
	if e.haystack == "" {
		e.haystack = strings.ToLower(e.Title + "\n" + e.Text)
	}
	return strings.Contains(e.haystack, keyword)
}

type Link struct {
	Keyword string
	Anchor  string
	URL     string
	PostID  uint
}

// InsertLinks walks keywords in order and, for each one found in the corpus,
// wraps its first whole-word occurrence in content with a link to the first
// matching entry. Text inside existing anchors, code, scripts and styles is
// never touched. At most limit links are inserted.
func InsertLinks(content string, keywords []string, corpus []CorpusEntry, limit int) (string, []Link) {
	var links []Link
	if limit <= 0 || len(corpus) == 0 {
		return content, links
	}

	for _, kw := range keywords {
		if len(links) >= limit {
			break
		}
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw == "" {
			continue
		}

		target := -1
		for i := range corpus {
			if corpus[i].contains(kw) {
				target = i
				break
			}
		}
		if target < 0 {
			continue
		}

		updated, anchor, ok := linkFirst(content, kw, corpus[target].URL)
		if !ok {
			continue
		}
		content = updated
		links = append(links, Link{
			Keyword: kw,
			Anchor:  anchor,
			URL:     corpus[target].URL,
			PostID:  corpus[target].PostID,
		})
	}

	return content, links
}

// linkFirst rewrites the first eligible occurrence of keyword in content.
func linkFirst(content, keyword, url string) (string, string, bool) {
	z := nethtml.NewTokenizer(strings.NewReader(content))

	var out strings.Builder
	out.Grow(len(content) + len(url) + 32)

	skipDepth := 0
	done := false
	anchor := ""

	for {
		tt := z.Next()
		if tt == nethtml.ErrorToken {
			break
		}
		raw := string(z.Raw())

		if done {
			out.WriteString(raw)
			continue
		}

		switch tt {
		case nethtml.StartTagToken:
			if skipped(z) {
				skipDepth++
			}
		case nethtml.EndTagToken:
			if skipped(z) && skipDepth > 0 {
				skipDepth--
			}
		case nethtml.TextToken:
			if skipDepth > 0 {
				break
			}
			text, offsets := decodeText(raw)
			start, end, ok := findWord(text, keyword)
			if !ok {
				break
			}
			anchor = text[start:end]
			from, to := offsets[start], offsets[end]
			out.WriteString(raw[:from])
			out.WriteString(`<a href="` + html.EscapeString(url) + `">`)
			out.WriteString(raw[from:to])
			out.WriteString(`</a>`)
			out.WriteString(raw[to:])
			done = true
			continue
		}

		out.WriteString(raw)
	}

	if !done {
		return content, "", false
	}
	return out.String(), anchor, true
}

// decodeText unescapes the character references of a raw text token. The
// returned offsets map every byte of the decoded text, and its end, to the
// position in raw where that byte's source starts.
func decodeText(raw string) (string, []int) {
	var text strings.Builder
	text.Grow(len(raw))
	offsets := make([]int, 0, len(raw)+1)

	for i := 0; i < len(raw); {
		if raw[i] == '&' {
			if semi := strings.IndexByte(raw[i:], ';'); semi > 1 && semi <= maxReferenceLen {
				ref := raw[i : i+semi+1]
				if decoded := html.UnescapeString(ref); decoded != ref {
					text.WriteString(decoded)
					for k := 0; k < len(decoded); k++ {
						offsets = append(offsets, i)
					}
					i += semi + 1
					continue
				}
			}
		}
		text.WriteByte(raw[i])
		offsets = append(offsets, i)
		i++
	}
	offsets = append(offsets, len(raw))
	return text.String(), offsets
}

func skipped(z *nethtml.Tokenizer) bool {
	name, _ := z.TagName()
	switch string(name) {
	case "a", "script", "style", "code", "pre":
		return true
	}
	return false
}

// findWord locates word in text case-insensitively, requiring non-word runes
// (or the text edges) on both sides.
func findWord(text, word string) (int, int, bool) {
	n := utf8.RuneCountInString(word)
	prevWord := false

	for i := 0; i < len(text); {
		r, size := utf8.DecodeRuneInString(text[i:])
		if !prevWord {
			j, k := i, 0
			for k < n && j < len(text) {
				_, s := utf8.DecodeRuneInString(text[j:])
				j += s
				k++
			}
			if k == n && strings.EqualFold(text[i:j], word) {
				next, _ := utf8.DecodeRuneInString(text[j:])
				if j == len(text) || !isWordRune(next) {
					return i, j, true
				}
			}
		}
		prevWord = isWordRune(r)
		i += size
	}
	return 0, 0, false
}
