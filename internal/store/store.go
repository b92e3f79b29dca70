// Package store provides SQLite storage for saved drawings and user settings.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/klauspost/compress/zstd"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a requested resource does not exist.
var ErrNotFound = errors.New("not found")

// Config describes the database file and how drawings are packed into it.
type Config struct {
	Path string `yaml:"path"`
	// BusyTimeout is how long a write waits on a locked database, e.g. a
	// save landing while the export list is being read.
	BusyTimeout time.Duration `yaml:"busy_timeout"`
	// Compression is the zstd level for stroke blobs, 1 (fastest) to 4
	// (best compression).
	Compression int `yaml:"compression"`
}

// DefaultConfig returns the settings used by New.
func DefaultConfig() Config {
	return Config{
		BusyTimeout: 5 * time.Second,
		Compression: int(zstd.SpeedDefault),
	}
}

// Store represents a SQLite database connection for drawings and settings.
type Store struct {
	db      *sql.DB
	cfg     Config
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

// New opens the database at dbPath with the default settings.
func New(dbPath string) (*Store, error) {
	cfg := DefaultConfig()
	cfg.Path = dbPath
	return Open(cfg)
}

// Open opens the database, applies the connection pragmas and runs
// migrations. Pragmas go through the DSN so every pooled connection gets
// them, not only the first.
func Open(cfg Config) (*Store, error) {
	if cfg.Path == "" {
		return nil, errors.New("store: database path is required")
	}
	level := zstd.EncoderLevel(cfg.Compression)
	if level < zstd.SpeedFastest || level > zstd.SpeedBestCompression {
		return nil, fmt.Errorf("store: compression level %d outside 1-4", cfg.Compression)
	}

	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(level))
	if err != nil {
		return nil, fmt.Errorf("failed to create stroke encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		encoder.Close()
		return nil, fmt.Errorf("failed to create stroke decoder: %w", err)
	}

	db, err := sql.Open("sqlite", dsn(cfg))
	if err != nil {
		encoder.Close()
		decoder.Close()
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &Store{
		db:      db,
		cfg:     cfg,
		encoder: encoder,
		decoder: decoder,
	}

	if err := s.runMigrations(); err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return s, nil
}

// dsn builds the modernc sqlite DSN. WAL lets the stream and API handlers
// read drawings while a save is being written.
func dsn(cfg Config) string {
	q := url.Values{}
	q.Add("_pragma", "foreign_keys(1)")
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_pragma", "synchronous(NORMAL)")
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", cfg.BusyTimeout.Milliseconds()))
	return cfg.Path + "?" + q.Encode()
}

// Close closes the database connection and releases the codecs.
func (s *Store) Close() error {
	s.decoder.Close()
	return errors.Join(s.db.Close(), s.encoder.Close())
}

// DB returns the underlying database connection.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.cfg.Path
}
