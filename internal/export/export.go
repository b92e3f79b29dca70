// Package export writes saved canvases to disk and records them in the
// store.
package export

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/ayusman/airboard/internal/session"
	"github.com/ayusman/airboard/internal/store"
	"github.com/ayusman/airboard/internal/stroke"
)

// TimeLayout is the timestamp part of exported file names.
const TimeLayout = "2006-01-02_15-04-05"

var (
	// ErrNoSurface is returned when a save request carries no render.
	ErrNoSurface = errors.New("export: nothing to save")
	// ErrBadFilename is returned for names that would escape the export
	// directory.
	ErrBadFilename = errors.New("export: invalid file name")
)

// Config controls where and how drawings are exported.
type Config struct {
	Dir    string `yaml:"dir"`
	Prefix string `yaml:"prefix"`
	// PDF additionally writes a vector copy of the strokes.
	PDF bool `yaml:"pdf"`
}

// DefaultConfig exports PNGs to ./exports.
func DefaultConfig() Config {
	return Config{Dir: "exports", Prefix: "airboard"}
}

// Recorder stores drawing metadata. *store.DrawingRepository implements it.
type Recorder interface {
	Create(d *store.Drawing) error
}

// Exporter implements session.Saver.
type Exporter struct {
	cfg        Config
	background stroke.Color
	rec        Recorder
	mu         sync.Mutex
	logger     *slog.Logger
}

// New creates the export directory if needed. rec may be nil, in which
// case files are written but not recorded.
func New(cfg Config, background stroke.Color, rec Recorder) (*Exporter, error) {
	if cfg.Dir == "" {
		cfg.Dir = DefaultConfig().Dir
	}
	if cfg.Prefix == "" {
		cfg.Prefix = DefaultConfig().Prefix
	}
	if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
		return nil, fmt.Errorf("create export dir: %w", err)
	}
	return &Exporter{
		cfg:        cfg,
		background: background,
		rec:        rec,
		logger:     slog.Default().With("component", "export"),
	}, nil
}

// Dir returns the export directory.
func (e *Exporter) Dir() string {
	return e.cfg.Dir
}

// Save writes the rendered canvas as <prefix>_<time>.png, plus a PDF when
// configured, and records the drawing. It returns the PNG file name.
func (e *Exporter) Save(ctx context.Context, req session.SaveRequest) (string, error) {
	if req.Surface == nil {
		return "", ErrNoSurface
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if req.TakenAt.IsZero() {
		req.TakenAt = time.Now()
	}

	// Name reservation and the write happen under one lock so concurrent
	// saves in the same second get distinct names.
	e.mu.Lock()
	base := e.reserve(req.TakenAt)
	pngName := base + ".png"
	err := req.Surface.WritePNG(filepath.Join(e.cfg.Dir, pngName))
	e.mu.Unlock()
	if err != nil {
		return "", err
	}

	format := "png"
	if e.cfg.PDF {
		pdfPath := filepath.Join(e.cfg.Dir, base+".pdf")
		if err := WritePDF(pdfPath, req.Strokes, req.Surface.Width(), req.Surface.Height(), e.background); err != nil {
			e.logger.Error("pdf export failed", "file", pdfPath, "error", err)
		} else {
			format = "png+pdf"
		}
	}

	if e.rec != nil {
		d := &store.Drawing{
			SessionID: req.SessionID,
			Filename:  pngName,
			Format:    format,
			Strokes:   req.Strokes,
			CreatedAt: req.TakenAt,
		}
		if err := e.rec.Create(d); err != nil {
			return pngName, fmt.Errorf("record drawing: %w", err)
		}
	}

	e.logger.Info("drawing saved", "session_id", req.SessionID, "file", pngName, "strokes", len(req.Strokes))
	return pngName, nil
}

// reserve picks a base name that is not taken by a PNG or PDF yet.
func (e *Exporter) reserve(at time.Time) string {
	stamp := e.cfg.Prefix + "_" + at.Format(TimeLayout)
	base := stamp
	for n := 1; e.exists(base); n++ {
		base = fmt.Sprintf("%s_%d", stamp, n)
	}
	return base
}

func (e *Exporter) exists(base string) bool {
	for _, ext := range []string{".png", ".pdf"} {
		if _, err := os.Stat(filepath.Join(e.cfg.Dir, base+ext)); err == nil {
			return true
		}
	}
	return false
}

// Path resolves an exported file name inside the export directory.
func (e *Exporter) Path(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return "", fmt.Errorf("%w: %q", ErrBadFilename, name)
	}
	return filepath.Join(e.cfg.Dir, name), nil
}

// Remove deletes the files of an exported drawing. Missing files are not
// an error.
func (e *Exporter) Remove(d *store.Drawing) error {
	png, err := e.Path(d.Filename)
	if err != nil {
		return err
	}
	paths := []string{png}
	if strings.Contains(d.Format, "pdf") {
		paths = append(paths, strings.TrimSuffix(png, ".png")+".pdf")
	}
	for _, p := range paths {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}
	return nil
}
