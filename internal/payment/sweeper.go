package payment

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
)

// RunSweeper removes QR files whose scheduled removal was lost, e.g. after a
// restart. It sweeps once at start and then on every tick until ctx is done.
func (g *Generator) RunSweeper(ctx context.Context, interval time.Duration) {
	g.logger.Info("started qr sweeper", zap.Duration("interval", interval))

	g.Sweep(time.Now())

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			g.logger.Info("stopping qr sweeper", zap.Error(ctx.Err()))
			return
		case now := <-ticker.C:
			g.Sweep(now)
		}
	}
}

// Sweep deletes PNG files older than the removal delay and returns how many
// were removed.
func (g *Generator) Sweep(now time.Time) int {
	entries, err := os.ReadDir(g.dir)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			g.logger.Error("read qr dir", zap.String("dir", g.dir), zap.Error(err))
		}
		return 0
	}

	removed := 0
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".png") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if now.Sub(info.ModTime()) < g.removeAfter {
			continue
		}
		g.Remove(filepath.Join(g.dir, e.Name()))
		removed++
	}
	if removed > 0 {
		g.logger.Info("stale qr codes removed", zap.Int("count", removed))
	}
	return removed
}
