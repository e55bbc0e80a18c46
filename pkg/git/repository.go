// Package git drives a local checkout of a static-site repository through
// the git binary.
package git

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"
)

type Config struct {
	URL          string `yaml:"url"`
	Branch       string `yaml:"branch"`
	WorkspaceDir string `yaml:"workspace_dir"`
	Username     string `yaml:"username"`
	Email        string `yaml:"email"`
}

// Repository serializes every git call on one checkout.
type Repository struct {
	logger    *zap.Logger
	config    Config
	localPath string

	mu sync.Mutex
}

func NewRepository(cfg Config, logger *zap.Logger) *Repository {
	if cfg.Branch == "" {
		cfg.Branch = "main"
	}
	return &Repository{
		logger:    logger,
		config:    cfg,
		localPath: filepath.Join(cfg.WorkspaceDir, RepoName(cfg.URL)),
	}
}

func (r *Repository) LocalPath() string {
	return r.localPath
}

// Sync clones the repository, or pulls it when a valid checkout exists.
// A broken checkout is removed and cloned again.
func (r *Repository) Sync(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := os.MkdirAll(r.config.WorkspaceDir, 0o755); err != nil {
		return fmt.Errorf("failed to create workspace directory: %w", err)
	}

	if r.isCheckout(ctx) {
		_, err := r.run(ctx, r.localPath, "pull", "--ff-only", "origin", r.config.Branch)
		if err == nil {
			return nil
		}
		r.logger.Warn("Failed to pull repository, cloning again", zap.Error(err))
	}

	if err := os.RemoveAll(r.localPath); err != nil {
		return fmt.Errorf("failed to remove directory: %w", err)
	}
	if _, err := r.run(ctx, r.config.WorkspaceDir, "clone", "-b", r.config.Branch, r.config.URL, r.localPath); err != nil {
		return err
	}
	r.logger.Info("Repository cloned",
		zap.String("url", r.config.URL),
		zap.String("branch", r.config.Branch))
	return nil
}

// WriteFile writes content at a path relative to the checkout root.
func (r *Repository) WriteFile(relativePath string, content []byte) error {
	fullPath := filepath.Join(r.localPath, relativePath)
	if !strings.HasPrefix(fullPath, filepath.Clean(r.localPath)+string(filepath.Separator)) {
		return fmt.Errorf("path %q escapes the repository", relativePath)
	}
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	if err := os.WriteFile(fullPath, content, 0o644); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	return nil
}

// CommitAndPush stages files, commits them and pushes the branch. It returns
// the new HEAD hash. A commit without changes is not an error.
func (r *Repository) CommitAndPush(ctx context.Context, message string, files ...string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(files) == 0 {
		files = []string{"."}
	}
	if _, err := r.run(ctx, r.localPath, append([]string{"add", "--"}, files...)...); err != nil {
		return "", err
	}

	args := []string{"commit", "-m", message}
	if r.config.Username != "" && r.config.Email != "" {
		args = append([]string{"-c", "user.name=" + r.config.Username, "-c", "user.email=" + r.config.Email}, args...)
	}
	if out, err := r.run(ctx, r.localPath, args...); err != nil {
		if !strings.Contains(out, "nothing to commit") {
			return "", err
		}
		r.logger.Info("No changes to commit")
	}

	if _, err := r.run(ctx, r.localPath, "push", "origin", r.config.Branch); err != nil {
		return "", err
	}

	hash, err := r.run(ctx, r.localPath, "rev-parse", "HEAD")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(hash), nil
}

func (r *Repository) isCheckout(ctx context.Context) bool {
	if _, err := os.Stat(filepath.Join(r.localPath, ".git")); err != nil {
		return false
	}
	_, err := r.run(ctx, r.localPath, "status", "--porcelain")
	return err == nil
}

func (r *Repository) run(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0")
	if isSSHURL(r.config.URL) {
		cmd.Env = append(cmd.Env, "GIT_SSH_COMMAND=ssh -o StrictHostKeyChecking=accept-new")
	}

	out, err := cmd.CombinedOutput()
	if err != nil {
		return string(out), fmt.Errorf("git %s: %w, output: %s", args[0], err, strings.TrimSpace(string(out)))
	}
	return string(out), nil
}

// RepoName returns the last path element of a clone URL without ".git".
func RepoName(url string) string {
	url = strings.TrimSuffix(strings.TrimSuffix(url, "/"), ".git")
	if i := strings.LastIndexAny(url, "/:"); i >= 0 {
		url = url[i+1:]
	}
	if url == "" {
		return "repo"
	}
	return url
}

func isSSHURL(url string) bool {
	return strings.HasPrefix(url, "git@") || strings.HasPrefix(url, "ssh://")
}
