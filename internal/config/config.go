// Package config loads the airboard configuration file.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ayusman/airboard/internal/app"
	"github.com/ayusman/airboard/internal/capture"
	"github.com/ayusman/airboard/internal/detector"
	"github.com/ayusman/airboard/internal/discovery"
	"github.com/ayusman/airboard/internal/export"
	"github.com/ayusman/airboard/internal/mode"
	"github.com/ayusman/airboard/internal/publish"
	"github.com/ayusman/airboard/internal/session"
	"github.com/ayusman/airboard/internal/shape"
	"github.com/ayusman/airboard/internal/store"
	"github.com/ayusman/airboard/internal/stroke"
)

// DBName is the database file created in the data directory.
const DBName = "airboard.db"

// Config represents the complete airboard configuration.
type Config struct {
	Server    ServerConfig     `yaml:"server"`
	DataDir   string           `yaml:"data_dir"`
	Store     store.Config     `yaml:"store"`
	Camera    CameraConfig     `yaml:"camera"`
	Detector  detector.Config  `yaml:"detector"`
	Canvas    CanvasConfig     `yaml:"canvas"`
	Drawing   DrawingConfig    `yaml:"drawing"`
	Shape     shape.Config     `yaml:"shape"`
	Session   SessionConfig    `yaml:"session"`
	Export    export.Config    `yaml:"export"`
	MQTT      publish.Config   `yaml:"mqtt"`
	Discovery discovery.Config `yaml:"discovery"`
	Log       LogConfig        `yaml:"log"`
}

// ServerConfig contains the HTTP settings.
type ServerConfig struct {
	Addr string `yaml:"addr"`
	// StreamQuality is the JPEG quality of composited stream frames.
	StreamQuality int `yaml:"stream_quality"`
	// OverlayAlpha is the opacity of the drawing over the camera image.
	OverlayAlpha float64 `yaml:"overlay_alpha"`
}

// CameraConfig contains the capture device and pipeline timing.
type CameraConfig struct {
	capture.Config `yaml:",inline"`

	MotionThreshold float64       `yaml:"motion_threshold"`
	IdleFPS         int           `yaml:"idle_fps"`
	ActiveFPS       int           `yaml:"active_fps"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	JPEGQuality     int           `yaml:"jpeg_quality"`
	StableFrames    int           `yaml:"stable_frames"`
}

// CanvasConfig contains the drawing surface size.
type CanvasConfig struct {
	Width      int    `yaml:"width"`
	Height     int    `yaml:"height"`
	Background string `yaml:"background"` // #RRGGBB
}

// ColorConfig is one palette entry.
type ColorConfig struct {
	Name string `yaml:"name"`
	Hex  string `yaml:"hex"`
}

// DrawingConfig contains the palette and brush bounds.
type DrawingConfig struct {
	Palette      []ColorConfig `yaml:"palette"`
	InitialColor string        `yaml:"initial_color"`
	BrushSize    int           `yaml:"brush_size"`
	MinBrushSize int           `yaml:"min_brush_size"`
	MaxBrushSize int           `yaml:"max_brush_size"`
	EraserSize   int           `yaml:"eraser_size"` // 0 erases with the brush size
}

// SessionConfig contains the event loop limits.
type SessionConfig struct {
	QueueCapacity     int           `yaml:"queue_capacity"`
	ReorderWindow     int           `yaml:"reorder_window"`
	ReorderDelay      time.Duration `yaml:"reorder_delay"`
	ClassifierTimeout time.Duration `yaml:"classifier_timeout"`
}

// LogConfig contains the log output settings.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
}

// Default returns the built-in configuration.
func Default() *Config {
	drawing := mode.DefaultConfig()
	palette := make([]ColorConfig, len(drawing.Palette))
	for i, c := range drawing.Palette {
		palette[i] = ColorConfig{Name: c.Name, Hex: c.Hex()}
	}
	sess := session.DefaultConfig()
	pipeline := app.DefaultConfig()

	return &Config{
		Server: ServerConfig{
			Addr:          ":8080",
			StreamQuality: 75,
			OverlayAlpha:  0.5,
		},
		DataDir: "data",
		Store:   store.DefaultConfig(),
		Camera: CameraConfig{
			Config:          capture.DefaultConfig(),
			MotionThreshold: pipeline.MotionThresh,
			IdleFPS:         pipeline.IdleFPS,
			ActiveFPS:       pipeline.ActiveFPS,
			IdleTimeout:     pipeline.IdleTimeout,
			JPEGQuality:     pipeline.JPEGQuality,
			StableFrames:    pipeline.StableFrames,
		},
		Detector: detector.DefaultConfig(),
		Canvas: CanvasConfig{
			Width:      sess.Width,
			Height:     sess.Height,
			Background: sess.Background.Hex(),
		},
		Drawing: DrawingConfig{
			Palette:      palette,
			InitialColor: drawing.InitialColor,
			BrushSize:    drawing.BrushSize,
			MinBrushSize: drawing.MinBrushSize,
			MaxBrushSize: drawing.MaxBrushSize,
			EraserSize:   drawing.EraserSize,
		},
		Shape: shape.DefaultConfig(),
		Session: SessionConfig{
			QueueCapacity:     sess.QueueCapacity,
			ReorderWindow:     sess.ReorderWindow,
			ReorderDelay:      sess.ReorderDelay,
			ClassifierTimeout: sess.ClassifierTimeout,
		},
		Export:    export.DefaultConfig(),
		MQTT:      publish.DefaultConfig(),
		Discovery: discovery.DefaultConfig(),
		Log:       LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads a YAML configuration file. Keys missing from the file keep
// their default values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault loads path, or returns the defaults when path is empty.
func LoadOrDefault(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}
	return Load(path)
}

// Validate reports every problem found in the configuration.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(c.Server.Addr != "", "server.addr is required")
	check(c.Server.StreamQuality >= 1 && c.Server.StreamQuality <= 100, "server.stream_quality must be 1-100, got %d", c.Server.StreamQuality)
	check(c.Server.OverlayAlpha >= 0 && c.Server.OverlayAlpha <= 1, "server.overlay_alpha must be 0-1, got %g", c.Server.OverlayAlpha)
	check(c.DataDir != "", "data_dir is required")

	check(c.Camera.Width > 0 && c.Camera.Height > 0, "camera size must be positive, got %dx%d", c.Camera.Width, c.Camera.Height)
	check(c.Camera.IdleFPS > 0 && c.Camera.ActiveFPS > 0, "camera frame rates must be positive")
	check(c.Camera.JPEGQuality >= 1 && c.Camera.JPEGQuality <= 100, "camera.jpeg_quality must be 1-100, got %d", c.Camera.JPEGQuality)
	check(c.Camera.StableFrames >= 0, "camera.stable_frames must not be negative")

	check(c.Canvas.Width > 0 && c.Canvas.Height > 0, "canvas size must be positive, got %dx%d", c.Canvas.Width, c.Canvas.Height)
	if _, err := c.Background(); err != nil {
		errs = append(errs, fmt.Errorf("canvas.background: %w", err))
	}

	if _, err := c.Palette(); err != nil {
		errs = append(errs, err)
	}
	d := c.Drawing
	check(d.MinBrushSize > 0, "drawing.min_brush_size must be positive")
	check(d.MinBrushSize <= d.BrushSize && d.BrushSize <= d.MaxBrushSize,
		"drawing.brush_size %d outside %d-%d", d.BrushSize, d.MinBrushSize, d.MaxBrushSize)
	check(d.EraserSize >= 0, "drawing.eraser_size must not be negative")

	check(c.Session.QueueCapacity > 0, "session.queue_capacity must be positive")
	check(c.Session.ReorderWindow >= 0, "session.reorder_window must not be negative")

	check(c.Store.BusyTimeout >= 0, "store.busy_timeout must not be negative")
	check(c.Store.Compression >= 1 && c.Store.Compression <= 4, "store.compression must be 1-4, got %d", c.Store.Compression)

	check(c.Export.Dir != "", "export.dir is required")
	if c.MQTT.Enabled {
		check(c.MQTT.Broker != "", "mqtt.broker is required when mqtt is enabled")
	}
	check(c.MQTT.QoS <= 2, "mqtt.qos must be 0, 1 or 2")

	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	check(c.Log.Format == "text" || c.Log.Format == "json", "log.format must be text or json, got %q", c.Log.Format)

	return errors.Join(errs...)
}

// Palette converts the configured palette.
func (c *Config) Palette() (mode.Palette, error) {
	if len(c.Drawing.Palette) == 0 {
		return nil, errors.New("drawing.palette must not be empty")
	}
	p := make(mode.Palette, 0, len(c.Drawing.Palette))
	seen := make(map[string]bool)
	for _, e := range c.Drawing.Palette {
		name := strings.TrimSpace(e.Name)
		if name == "" || seen[name] {
			return nil, fmt.Errorf("drawing.palette: missing or duplicate name %q", e.Name)
		}
		seen[name] = true
		col, err := stroke.ParseHex(name, e.Hex)
		if err != nil {
			return nil, fmt.Errorf("drawing.palette: %w", err)
		}
		p = append(p, col)
	}
	if _, err := p.Index(c.Drawing.InitialColor); err != nil {
		return nil, fmt.Errorf("drawing.initial_color: %w", err)
	}
	return p, nil
}

// Background returns the canvas background color.
func (c *Config) Background() (stroke.Color, error) {
	return stroke.ParseHex("background", c.Canvas.Background)
}

// SessionConfig returns the settings for new sessions.
func (c *Config) SessionConfig() (session.Config, error) {
	palette, err := c.Palette()
	if err != nil {
		return session.Config{}, err
	}
	bg, err := c.Background()
	if err != nil {
		return session.Config{}, err
	}

	return session.Config{
		QueueCapacity:     c.Session.QueueCapacity,
		ReorderWindow:     c.Session.ReorderWindow,
		ReorderDelay:      c.Session.ReorderDelay,
		ClassifierTimeout: c.Session.ClassifierTimeout,
		Drawing: mode.Config{
			Palette:      palette,
			InitialColor: c.Drawing.InitialColor,
			BrushSize:    c.Drawing.BrushSize,
			MinBrushSize: c.Drawing.MinBrushSize,
			MaxBrushSize: c.Drawing.MaxBrushSize,
			EraserSize:   c.Drawing.EraserSize,
		},
		Shape:      c.Shape,
		Width:      c.Canvas.Width,
		Height:     c.Canvas.Height,
		Background: bg,
	}, nil
}

// AppConfig returns the capture pipeline settings.
func (c *Config) AppConfig() app.Config {
	return app.Config{
		Camera:       c.Camera.Config,
		Detector:     c.Detector,
		MotionThresh: c.Camera.MotionThreshold,
		IdleFPS:      c.Camera.IdleFPS,
		ActiveFPS:    c.Camera.ActiveFPS,
		IdleTimeout:  c.Camera.IdleTimeout,
		JPEGQuality:  c.Camera.JPEGQuality,
		StableFrames: c.Camera.StableFrames,
		Width:        c.Canvas.Width,
		Height:       c.Canvas.Height,
	}
}

// DBPath returns the database location: store.path when set, otherwise
// DBName inside the data directory.
func (c *Config) DBPath() string {
	if c.Store.Path != "" {
		return c.Store.Path
	}
	return filepath.Join(c.DataDir, DBName)
}

// StoreConfig returns the database settings with the path resolved.
func (c *Config) StoreConfig() store.Config {
	sc := c.Store
	sc.Path = c.DBPath()
	return sc
}

// Handler returns a slog handler writing to w at the configured level.
func (c *Config) Handler(w io.Writer) slog.Handler {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if c.Log.Format == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}
