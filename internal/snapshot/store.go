// Package snapshot is the Snapshot Store (C8): it persists the three
// per-cycle artifacts named in spec.md §4.4 (forecast read, market
// read, decisions) as atomically-written JSON files under a fixed
// directory layout.
package snapshot

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"
)

// Kind names the three artifact trees a cycle writes into.
type Kind string

const (
	KindForecast  Kind = "zeus"
	KindMarket    Kind = "polymarket"
	KindDecisions Kind = "decisions"
)

// Store writes snapshot artifacts under RootDir using the
// {kind}/{key}/{event_day}/{HHMMSS}[.{seq}].json layout.
type Store struct {
	RootDir string
	now     func() time.Time
}

// New creates a Store rooted at dir. The directory is created lazily on
// first write.
func New(dir string) *Store {
	return &Store{RootDir: dir, now: time.Now}
}

// Write persists v as a snapshot under kind/key/eventDay, returning the
// path it was written to. A monotonic numeric suffix is appended if the
// HHMMSS-named file already exists within the same second, so two
// cycles for the same task never clobber one another.
func (s *Store) Write(kind Kind, key, eventDay string, v any) (string, error) {
	dir := filepath.Join(s.RootDir, string(kind), key, eventDay)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("snapshot: mkdir %s: %w", dir, err)
	}

	body, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("snapshot: marshal: %w", err)
	}

	name := s.now().UTC().Format("150405") + ".json"
	path := filepath.Join(dir, name)
	for seq := 1; fileExists(path); seq++ {
		name = fmt.Sprintf("%s.%d.json", s.now().UTC().Format("150405"), seq)
		path = filepath.Join(dir, name)
	}

	if err := writeAtomic(path, body); err != nil {
		return "", fmt.Errorf("snapshot: write %s: %w", path, err)
	}

	log.Printf("[Snapshot] wrote %s (%d bytes)", path, len(body))
	return path, nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// writeAtomic writes body to a temp file in the same directory as path,
// fsyncs it, then renames it into place. A crash mid-write leaves at
// most a stray temp file, never a partially-written snapshot.
func writeAtomic(path string, body []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".snapshot-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op once the rename below succeeds

	if _, err := tmp.Write(body); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// CycleArtifacts holds the three artifacts WriteCycle persists for one
// cycle, plus the station, city and event day that key them.
type CycleArtifacts struct {
	StationCode string
	City        string
	EventDay    string
	Forecast    any
	MarketRead  any
	Decisions   any
}

// CycleResult records the path (or error) for each of the three writes.
type CycleResult struct {
	ForecastPath  string
	ForecastErr   error
	MarketPath    string
	MarketErr     error
	DecisionsPath string
	DecisionsErr  error
}

// WriteCycle attempts all three snapshot writes for one cycle
// independently, per the no-rollback-on-partial-failure semantics of
// §4.4: a failure on one artifact does not roll back the others, and
// errors are collected, not short-circuited.
func (s *Store) WriteCycle(a CycleArtifacts) CycleResult {
	var r CycleResult
	r.ForecastPath, r.ForecastErr = s.Write(KindForecast, a.StationCode, a.EventDay, a.Forecast)
	r.MarketPath, r.MarketErr = s.Write(KindMarket, a.City, a.EventDay, a.MarketRead)
	r.DecisionsPath, r.DecisionsErr = s.Write(KindDecisions, a.StationCode, a.EventDay, a.Decisions)
	return r
}

// AnyFailed reports whether at least one of the three writes failed.
func (r CycleResult) AnyFailed() bool {
	return r.ForecastErr != nil || r.MarketErr != nil || r.DecisionsErr != nil
}
