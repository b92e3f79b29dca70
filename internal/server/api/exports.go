package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/ayusman/airboard/internal/export"
	"github.com/ayusman/airboard/internal/store"
)

// ExportHandler handles HTTP requests for saved drawings.
type ExportHandler struct {
	store    *store.Store
	exporter *export.Exporter
	logger   *slog.Logger
}

// NewExportHandler creates a new ExportHandler.
func NewExportHandler(s *store.Store, e *export.Exporter) *ExportHandler {
	return &ExportHandler{
		store:    s,
		exporter: e,
		logger:   slog.Default().With("component", "api"),
	}
}

// ServeHTTP routes /api/exports, /api/exports/{id} and
// /api/exports/{id}/file.
func (h *ExportHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	parts := splitPath(r.URL.Path, "/api/exports")

	switch {
	case len(parts) == 0 && r.Method == http.MethodGet:
		h.list(w, r)
	case len(parts) == 1 && r.Method == http.MethodGet:
		h.get(w, r, parts[0])
	case len(parts) == 1 && r.Method == http.MethodDelete:
		h.delete(w, r, parts[0])
	case len(parts) == 2 && parts[1] == "file" && r.Method == http.MethodGet:
		h.file(w, r, parts[0])
	case len(parts) <= 2:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	default:
		writeError(w, http.StatusNotFound, "Not found")
	}
}

type listExportsResponse struct {
	Exports []*store.Drawing `json:"exports"`
}

// list handles GET /api/exports, newest first and without strokes.
func (h *ExportHandler) list(w http.ResponseWriter, r *http.Request) {
	drawings, err := h.store.Drawings().List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list exports")
		return
	}
	if drawings == nil {
		drawings = []*store.Drawing{}
	}
	writeJSON(w, http.StatusOK, listExportsResponse{Exports: drawings})
}

func (h *ExportHandler) load(w http.ResponseWriter, id string) (*store.Drawing, bool) {
	d, err := h.store.Drawings().GetByID(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Export not found")
			return nil, false
		}
		writeError(w, http.StatusInternalServerError, "Failed to get export")
		return nil, false
	}
	return d, true
}

// get handles GET /api/exports/{id} and includes the strokes.
func (h *ExportHandler) get(w http.ResponseWriter, r *http.Request, id string) {
	d, ok := h.load(w, id)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// file handles GET /api/exports/{id}/file. ?format=pdf selects the vector
// copy when one was written.
func (h *ExportHandler) file(w http.ResponseWriter, r *http.Request, id string) {
	d, ok := h.load(w, id)
	if !ok {
		return
	}

	name := d.Filename
	if r.URL.Query().Get("format") == "pdf" {
		if !strings.Contains(d.Format, "pdf") {
			writeError(w, http.StatusNotFound, "No PDF for this export")
			return
		}
		name = strings.TrimSuffix(name, ".png") + ".pdf"
	}

	path, err := h.exporter.Path(name)
	if err != nil {
		writeError(w, StatusFor(err), err.Error())
		return
	}
	http.ServeFile(w, r, path)
}

// delete handles DELETE /api/exports/{id} and removes the files and the
// record.
func (h *ExportHandler) delete(w http.ResponseWriter, r *http.Request, id string) {
	d, ok := h.load(w, id)
	if !ok {
		return
	}

	if err := h.exporter.Remove(d); err != nil {
		h.logger.Error("failed to remove export files", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to delete export")
		return
	}
	if err := h.store.Drawings().Delete(id); err != nil {
		writeError(w, StatusFor(err), "Failed to delete export")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
