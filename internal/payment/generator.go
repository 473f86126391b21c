package payment

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/skip2/go-qrcode"
	"go.uber.org/zap"

	"mactabak/internal/domain"
)

const qrSize = 400

type Generator struct {
	logger      *zap.Logger
	requisites  Requisites
	dir         string
	removeAfter time.Duration
}

func NewGenerator(logger *zap.Logger, requisites Requisites, dir string, removeAfter time.Duration) *Generator {
	return &Generator{
		logger:      logger,
		requisites:  requisites,
		dir:         dir,
		removeAfter: removeAfter,
	}
}

type Code struct {
	Path    string
	Payload Payload
}

// Generate renders the payment QR of the order into a PNG file.
func (g *Generator) Generate(o domain.Order) (Code, error) {
	payload := PayloadFor(g.requisites, o)

	if err := os.MkdirAll(g.dir, 0o755); err != nil {
		return Code{}, fmt.Errorf("create qr dir: %w", err)
	}
	path := filepath.Join(g.dir, fileName(o.OrderNumber))

	if err := qrcode.WriteFile(payload.String(), qrcode.Medium, qrSize, path); err != nil {
		return Code{}, fmt.Errorf("write qr %s: %w", path, err)
	}
	return Code{Path: path, Payload: payload}, nil
}

// ScheduleRemoval deletes the file after the configured delay.
func (g *Generator) ScheduleRemoval(path string) *time.Timer {
	return time.AfterFunc(g.removeAfter, func() {
		g.Remove(path)
	})
}

// Remove deletes a generated file; a file that is already gone is fine.
func (g *Generator) Remove(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		g.logger.Warn("remove qr code", zap.String("path", path), zap.Error(err))
	}
}

func fileName(orderNumber string) string {
	name := strings.Map(func(r rune) rune {
		if r == '/' || r == '\\' || r == os.PathSeparator {
			return '_'
		}
		return r
	}, orderNumber)
	return name + ".png"
}
