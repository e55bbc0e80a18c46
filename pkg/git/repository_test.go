package git

import "testing"

func TestRepoName(t *testing.T) {
	cases := map[string]string{
		"https://github.com/acme/blog.git": "blog",
		"git@github.com:acme/site.git":     "site",
		"git@github.com:site.git":          "site",
		"https://example.com/acme/blog/":   "blog",
		"":                                 "repo",
	}
	for in, want := range cases {
		if got := RepoName(in); got != want {
			t.Fatalf("RepoName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestWriteFileRejectsEscape(t *testing.T) {
	repo := NewRepository(Config{URL: "https://example.com/acme/blog.git", WorkspaceDir: t.TempDir()}, nil)
	if err := repo.WriteFile("../outside.md", []byte("x")); err == nil {
		t.Fatalf("expected error for path outside the checkout")
	}
	if err := repo.WriteFile("_posts/a.md", []byte("x")); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
}
