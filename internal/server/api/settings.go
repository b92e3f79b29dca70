package api

import (
	"net/http"
	"sync/atomic"

	"github.com/ayusman/airboard/internal/config"
	"github.com/ayusman/airboard/internal/shape"
)

// ConfigHandler serves the client-facing part of the configuration. The
// configuration can be swapped at runtime after a reload.
type ConfigHandler struct {
	cfg atomic.Pointer[config.Config]
}

// NewConfigHandler creates a ConfigHandler.
func NewConfigHandler(cfg *config.Config) *ConfigHandler {
	h := &ConfigHandler{}
	h.cfg.Store(cfg)
	return h
}

// SetConfig replaces the served configuration.
func (h *ConfigHandler) SetConfig(cfg *config.Config) {
	h.cfg.Store(cfg)
}

type colorResponse struct {
	Name string `json:"name"`
	Hex  string `json:"hex"`
}

type colorsResponse struct {
	Colors  []colorResponse `json:"colors"`
	Initial string          `json:"initial"`
}

type configResponse struct {
	Canvas struct {
		Width      int    `json:"width"`
		Height     int    `json:"height"`
		Background string `json:"background"`
	} `json:"canvas"`
	Brush struct {
		Size   int `json:"size"`
		Min    int `json:"min"`
		Max    int `json:"max"`
		Eraser int `json:"eraser"`
	} `json:"brush"`
	Shape  shape.Config `json:"shape"`
	Stream struct {
		Quality      int     `json:"quality"`
		OverlayAlpha float64 `json:"overlay_alpha"`
	} `json:"stream"`
	Colors    colorsResponse `json:"colors"`
	MQTT      bool           `json:"mqtt"`
	Discovery bool           `json:"discovery"`
}

func colors(cfg *config.Config) colorsResponse {
	out := colorsResponse{
		Colors:  make([]colorResponse, 0, len(cfg.Drawing.Palette)),
		Initial: cfg.Drawing.InitialColor,
	}
	for _, c := range cfg.Drawing.Palette {
		out.Colors = append(out.Colors, colorResponse{Name: c.Name, Hex: c.Hex})
	}
	return out
}

// Config handles GET /api/config.
func (h *ConfigHandler) Config(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	cfg := h.cfg.Load()

	var resp configResponse
	resp.Canvas.Width = cfg.Canvas.Width
	resp.Canvas.Height = cfg.Canvas.Height
	resp.Canvas.Background = cfg.Canvas.Background
	resp.Brush.Size = cfg.Drawing.BrushSize
	resp.Brush.Min = cfg.Drawing.MinBrushSize
	resp.Brush.Max = cfg.Drawing.MaxBrushSize
	resp.Brush.Eraser = cfg.Drawing.EraserSize
	resp.Shape = cfg.Shape
	resp.Stream.Quality = cfg.Server.StreamQuality
	resp.Stream.OverlayAlpha = cfg.Server.OverlayAlpha
	resp.Colors = colors(cfg)
	resp.MQTT = cfg.MQTT.Enabled
	resp.Discovery = cfg.Discovery.Enabled

	writeJSON(w, http.StatusOK, resp)
}

// Colors handles GET /api/colors.
func (h *ConfigHandler) Colors(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, colors(h.cfg.Load()))
}
