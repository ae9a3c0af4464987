// Copyright 2026 The Boothline Authors
// SPDX-License-Identifier: Apache-2.0

// Package backup keeps a local mirror of the last known-good dancer
// roster. Every successful non-empty roster fetch overwrites the
// snapshot wholesale; the booth falls back to it when the venue
// server is unreachable mid-show. The snapshot never merges partial
// results, so what it holds is always a state the server actually
// served.
package backup

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/boothline/boothline/lib/clock"
	"github.com/boothline/boothline/lib/codec"
	"github.com/boothline/boothline/lib/schema"
)

// snapshotVersion guards the file format. A reader seeing a newer
// version refuses the file rather than misreading it.
const snapshotVersion = 1

// snapshotFile is the on-disk envelope.
type snapshotFile struct {
	Version int             `cbor:"version"`
	SavedAt int64           `cbor:"saved_at"` // epoch milliseconds
	Dancers []schema.Dancer `cbor:"dancers"`
}

// Config holds the parameters for creating a Snapshot.
type Config struct {
	// Path is the snapshot file. The parent directory is created on
	// first save. Required.
	Path string

	// Clock stamps each save. If nil, the real clock.
	Clock clock.Clock

	// Logger receives operational messages. If nil, slog.Default().
	Logger *slog.Logger
}

// Snapshot is the roster mirror. Safe for concurrent use. It also
// caches the most recent roster in memory so callers can filter
// without touching the network or disk.
type Snapshot struct {
	path   string
	clock  clock.Clock
	logger *slog.Logger

	mu      sync.Mutex
	cached  []schema.Dancer
	savedAt int64
}

// New creates a snapshot handle and, if a snapshot file exists from a
// previous run, loads it into the in-memory cache. A corrupt file is
// logged and treated as absent; the next successful fetch overwrites
// it.
func New(cfg Config) (*Snapshot, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("backup: Path is required")
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	snapshot := &Snapshot{path: cfg.Path, clock: clk, logger: logger}
	if err := snapshot.loadFromDisk(); err != nil {
		logger.Warn("roster snapshot unreadable, starting empty", "error", err, "path", cfg.Path)
	}
	return snapshot, nil
}

// Save overwrites the snapshot with the given roster. The write is
// atomic (temp file plus rename), so a crash mid-save leaves the
// previous snapshot intact. Implements the api client's roster
// mirror.
func (s *Snapshot) Save(dancers []schema.Dancer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	savedAt := s.clock.Now().UnixMilli()
	data, err := codec.Marshal(snapshotFile{
		Version: snapshotVersion,
		SavedAt: savedAt,
		Dancers: dancers,
	})
	if err != nil {
		return fmt.Errorf("backup: encoding snapshot: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("backup: creating snapshot directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".roster-*.tmp")
	if err != nil {
		return fmt.Errorf("backup: creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("backup: writing snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("backup: closing snapshot: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("backup: replacing snapshot: %w", err)
	}

	s.cached = append([]schema.Dancer(nil), dancers...)
	s.savedAt = savedAt
	s.logger.Debug("roster snapshot saved", "dancers", len(dancers))
	return nil
}

// Load returns the cached roster and whether a snapshot exists.
func (s *Snapshot) Load() ([]schema.Dancer, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.savedAt == 0 {
		return nil, false
	}
	return append([]schema.Dancer(nil), s.cached...), true
}

// SavedAt returns when the snapshot was last written, in epoch
// milliseconds, or zero if no snapshot exists.
func (s *Snapshot) SavedAt() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.savedAt
}

// Filter returns the cached dancers matching the predicate. It never
// touches the network: degraded-mode queries work off the last good
// fetch.
func (s *Snapshot) Filter(keep func(schema.Dancer) bool) []schema.Dancer {
	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []schema.Dancer
	for _, dancer := range s.cached {
		if keep(dancer) {
			matched = append(matched, dancer)
		}
	}
	return matched
}

// loadFromDisk reads the snapshot file into the cache. A missing file
// is not an error.
func (s *Snapshot) loadFromDisk() error {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("backup: reading snapshot: %w", err)
	}

	var file snapshotFile
	if err := codec.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("backup: decoding snapshot: %w", err)
	}
	if file.Version > snapshotVersion {
		return fmt.Errorf("backup: snapshot version %d is newer than supported %d", file.Version, snapshotVersion)
	}

	s.mu.Lock()
	s.cached = file.Dancers
	s.savedAt = file.SavedAt
	s.mu.Unlock()

	s.logger.Info("roster snapshot loaded", "dancers", len(file.Dancers))
	return nil
}
