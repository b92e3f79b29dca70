package api

import (
	"net/http"
	"testing"

	"github.com/ayusman/airboard/internal/config"
)

func TestConfigHandler(t *testing.T) {
	h := NewConfigHandler(config.Default())

	t.Run("colors", func(t *testing.T) {
		rec := do(t, http.HandlerFunc(h.Colors), http.MethodGet, "/api/colors", nil)
		got := decode[colorsResponse](t, rec)
		if len(got.Colors) != 6 || got.Initial != "red" || got.Colors[1].Hex != "#0000FF" {
			t.Errorf("colors = %+v", got)
		}
	})

	t.Run("config", func(t *testing.T) {
		rec := do(t, http.HandlerFunc(h.Config), http.MethodGet, "/api/config", nil)
		got := decode[configResponse](t, rec)
		if got.Canvas.Width != 640 || got.Brush.Max != 30 || got.Stream.OverlayAlpha != 0.5 {
			t.Errorf("config = %+v", got)
		}
	})

	t.Run("reload", func(t *testing.T) {
		cfg := config.Default()
		cfg.Drawing.Palette = []config.ColorConfig{{Name: "ink", Hex: "#101010"}}
		cfg.Drawing.InitialColor = "ink"
		h.SetConfig(cfg)

		rec := do(t, http.HandlerFunc(h.Colors), http.MethodGet, "/api/colors", nil)
		if got := decode[colorsResponse](t, rec); len(got.Colors) != 1 || got.Initial != "ink" {
			t.Errorf("colors after reload = %+v", got)
		}
	})

	t.Run("get only", func(t *testing.T) {
		if rec := do(t, http.HandlerFunc(h.Config), http.MethodPost, "/api/config", nil); rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("status = %d", rec.Code)
		}
	})
}
