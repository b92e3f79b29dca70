package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"

	"github.com/ayusman/airboard/internal/stroke"
)

// Drawing is a saved canvas: the exported file plus the strokes that
// produced it, so a drawing can be re-rendered later.
type Drawing struct {
	ID          string          `json:"id"`
	SessionID   string          `json:"session_id"`
	Filename    string          `json:"filename"`
	Format      string          `json:"format"`
	StrokeCount int             `json:"stroke_count"`
	Strokes     []stroke.Stroke `json:"strokes,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// DrawingRepository provides CRUD operations for drawings. Strokes are
// stored as zstd-compressed JSON.
type DrawingRepository struct {
	db      *sql.DB
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

// Drawings returns the drawing repository for this store.
func (s *Store) Drawings() *DrawingRepository {
	return &DrawingRepository{db: s.db, encoder: s.encoder, decoder: s.decoder}
}

// Create inserts a new drawing. An empty ID is filled with a new uuid.
func (r *DrawingRepository) Create(d *Drawing) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.Format == "" {
		d.Format = "png"
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now()
	}
	d.StrokeCount = len(d.Strokes)

	blob, err := r.compress(d.Strokes)
	if err != nil {
		return err
	}

	_, err = r.db.Exec(
		`INSERT INTO drawings (id, session_id, filename, format, stroke_count, strokes, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.SessionID, d.Filename, d.Format, d.StrokeCount, blob, d.CreatedAt,
	)
	return err
}

// GetByID retrieves a drawing with its strokes.
func (r *DrawingRepository) GetByID(id string) (*Drawing, error) {
	d := &Drawing{}
	var blob []byte

	err := r.db.QueryRow(
		`SELECT id, session_id, filename, format, stroke_count, strokes, created_at
		 FROM drawings WHERE id = ?`,
		id,
	).Scan(&d.ID, &d.SessionID, &d.Filename, &d.Format, &d.StrokeCount, &blob, &d.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	if d.Strokes, err = r.decompress(blob); err != nil {
		return nil, fmt.Errorf("drawing %s: %w", id, err)
	}
	return d, nil
}

// List returns all drawings, newest first, without their strokes.
func (r *DrawingRepository) List() ([]*Drawing, error) {
	rows, err := r.db.Query(
		`SELECT id, session_id, filename, format, stroke_count, created_at
		 FROM drawings ORDER BY created_at DESC, id`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var drawings []*Drawing
	for rows.Next() {
		d := &Drawing{}
		if err := rows.Scan(&d.ID, &d.SessionID, &d.Filename, &d.Format, &d.StrokeCount, &d.CreatedAt); err != nil {
			return nil, err
		}
		drawings = append(drawings, d)
	}

	return drawings, rows.Err()
}

// Delete removes a drawing record. The exported files are left to the caller.
func (r *DrawingRepository) Delete(id string) error {
	result, err := r.db.Exec(`DELETE FROM drawings WHERE id = ?`, id)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *DrawingRepository) compress(strokes []stroke.Stroke) ([]byte, error) {
	if strokes == nil {
		strokes = []stroke.Stroke{}
	}
	data, err := json.Marshal(strokes)
	if err != nil {
		return nil, fmt.Errorf("marshal strokes: %w", err)
	}
	return r.encoder.EncodeAll(data, nil), nil
}

func (r *DrawingRepository) decompress(blob []byte) ([]stroke.Stroke, error) {
	data, err := r.decoder.DecodeAll(blob, nil)
	if err != nil {
		return nil, fmt.Errorf("decompress strokes: %w", err)
	}
	var strokes []stroke.Stroke
	if err := json.Unmarshal(data, &strokes); err != nil {
		return nil, fmt.Errorf("unmarshal strokes: %w", err)
	}
	return strokes, nil
}
