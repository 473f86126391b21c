// Package publisher exports the catalog to the static site that serves the web app.
package publisher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"mactabak/internal/domain"
)

type Publisher interface {
	Publish(ctx context.Context, products []domain.Product) error
}

type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, []domain.Product) error { return nil }

// Runner executes a command in dir.
type Runner func(ctx context.Context, dir, name string, args ...string) error

func ExecRunner(ctx context.Context, dir, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s %s: %w: %s", name, strings.Join(args, " "), err, strings.TrimSpace(stderr.String()))
	}
	return nil
}

// GitPublisher writes the catalog JSON into a working copy and pushes it.
type GitPublisher struct {
	logger     *zap.Logger
	repoPath   string
	exportPath string
	branch     string
	run        Runner
	now        func() time.Time
	mu         sync.Mutex
}

func NewGitPublisher(logger *zap.Logger, repoPath, exportPath, branch string, run Runner) *GitPublisher {
	if run == nil {
		run = ExecRunner
	}
	return &GitPublisher{
		logger:     logger,
		repoPath:   repoPath,
		exportPath: exportPath,
		branch:     branch,
		run:        run,
		now:        time.Now,
	}
}

// Publish exports the catalog and runs add, commit and push. Every git step is
// attempted even when an earlier one fails; the failures are returned together.
func (g *GitPublisher) Publish(ctx context.Context, products []domain.Product) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.export(products); err != nil {
		return domain.Dependency("catalog export", err)
	}

	message := "Обновление каталога товаров " + g.now().Format("02.01.2006 15:04:05")
	steps := [][]string{
		{"add", "."},
		{"commit", "-m", message},
		{"push", "origin", g.branch},
	}

	var errs error
	for _, args := range steps {
		if err := g.run(ctx, g.repoPath, "git", args...); err != nil {
			g.logger.Warn("git step failed", zap.String("step", args[0]), zap.Error(err))
			errs = multierr.Append(errs, err)
		}
	}
	if errs != nil {
		return domain.Dependency("git", errs)
	}

	g.logger.Info("catalog published", zap.Int("products", len(products)), zap.String("branch", g.branch))
	return nil
}

func (g *GitPublisher) export(products []domain.Product) error {
	if products == nil {
		products = []domain.Product{}
	}
	raw, err := json.MarshalIndent(products, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal catalog: %w", err)
	}

	path := filepath.Join(g.repoPath, g.exportPath)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create export dir: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("write catalog: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace catalog: %w", err)
	}
	return nil
}
