package util

import (
	"regexp"
	"strings"
	"time"
	"unicode/utf8"
)

var slugSeparator = regexp.MustCompile(`[^\p{L}\p{N}]+`)

// GenerateSlug creates a URL-friendly slug from title
func GenerateSlug(title string) string {
	slug := strings.ToLower(title)
	slug = slugSeparator.ReplaceAllString(slug, "-")
	slug = strings.Trim(slug, "-")

	// Limit length without splitting a multi-byte rune
	if utf8.RuneCountInString(slug) > 80 {
		slug = string([]rune(slug)[:80])
		slug = strings.Trim(slug, "-")
	}

	return slug
}

// NormalizeTitle is the comparison key used for title de-duplication.
func NormalizeTitle(title string) string {
	return strings.ToLower(strings.TrimSpace(title))
}

// Truncate shortens s to at most n runes.
func Truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

// ParseDuration parses s and falls back to def when s is empty or invalid.
func ParseDuration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
