// Package store persists harvested units to an append-only JSONL artifact
// through a small in-memory buffer, so the crawl loop is not held up on
// every single unit.
package store

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/sugetang/redharvest/internal/harvest"
)

// Config controls buffering behavior.
type Config struct {
	// Path is the JSONL artifact location.
	Path string
	// FlushThreshold flushes once this many units are buffered.
	FlushThreshold int
	// FlushInterval flushes when this much time passed since the last
	// flush, whichever trigger fires first.
	FlushInterval time.Duration
}

// Store buffers ContentUnit records and appends them to a JSONL file.
// Records are never updated or deleted; one artifact lives for one session.
// It is not safe for concurrent use; the session is its only writer.
type Store struct {
	cfg    Config
	file   *os.File
	logger *zap.Logger

	buf       []harvest.ContentUnit
	ids       map[string]struct{}
	lastFlush time.Time
	now       func() time.Time
}

// Open creates or reopens the artifact at cfg.Path. Ids already present in
// the artifact are loaded so Append stays idempotent across reopens.
func Open(cfg Config, logger *zap.Logger) (*Store, error) {
	if cfg.FlushThreshold <= 0 {
		cfg.FlushThreshold = 5
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create artifact dir: %w", err)
		}
	}

	ids, err := loadIDs(cfg.Path)
	if err != nil {
		return nil, err
	}

	file, err := os.OpenFile(cfg.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open artifact %s: %w", cfg.Path, err)
	}

	now := time.Now
	return &Store{
		cfg:       cfg,
		file:      file,
		logger:    logger,
		ids:       ids,
		lastFlush: now(),
		now:       now,
	}, nil
}

// loadIDs scans an existing artifact for unit ids. A missing file is fine.
func loadIDs(path string) (map[string]struct{}, error) {
	ids := make(map[string]struct{})

	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return ids, nil
		}
		return nil, fmt.Errorf("scan artifact %s: %w", path, err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		var rec struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			continue
		}
		if rec.ID != "" {
			ids[rec.ID] = struct{}{}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan artifact %s: %w", path, err)
	}
	return ids, nil
}

// Append buffers one unit. It is a no-op when the id was seen before, as a
// second guard independent of the session's own visited tracking. The
// buffer is flushed when it reaches the threshold or the flush interval
// elapsed, whichever comes first.
func (s *Store) Append(unit harvest.ContentUnit) error {
	if unit.ID == "" {
		return fmt.Errorf("unit without id")
	}
	if _, dup := s.ids[unit.ID]; dup {
		s.logger.Debug("duplicate unit dropped", zap.String("unit", unit.ID))
		return nil
	}
	s.ids[unit.ID] = struct{}{}
	s.buf = append(s.buf, unit)

	if len(s.buf) >= s.cfg.FlushThreshold || s.now().Sub(s.lastFlush) >= s.cfg.FlushInterval {
		return s.Flush()
	}
	return nil
}

// Flush appends all buffered units to the artifact in arrival order.
func (s *Store) Flush() error {
	s.lastFlush = s.now()
	if len(s.buf) == 0 {
		return nil
	}

	w := bufio.NewWriter(s.file)
	enc := json.NewEncoder(w)
	for _, unit := range s.buf {
		if err := enc.Encode(unit); err != nil {
			return fmt.Errorf("encode unit %s: %w", unit.ID, err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("flush artifact: %w", err)
	}
	if err := s.file.Sync(); err != nil {
		return fmt.Errorf("sync artifact: %w", err)
	}

	s.logger.Debug("buffer flushed", zap.Int("units", len(s.buf)))
	s.buf = s.buf[:0]
	return nil
}

// Len reports how many units the artifact plus buffer hold.
func (s *Store) Len() int { return len(s.ids) }

// Path returns the artifact location.
func (s *Store) Path() string { return s.cfg.Path }

// Close forces a final flush and releases the artifact file. It runs on
// every session exit path, normal or not.
func (s *Store) Close() error {
	flushErr := s.Flush()
	if err := s.file.Close(); err != nil && flushErr == nil {
		flushErr = fmt.Errorf("close artifact: %w", err)
	}
	return flushErr
}
