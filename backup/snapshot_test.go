// Copyright 2026 The Boothline Authors
// SPDX-License-Identifier: Apache-2.0

package backup

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/boothline/boothline/lib/clock"
	"github.com/boothline/boothline/lib/schema"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testRoster() []schema.Dancer {
	return []schema.Dancer{
		{ID: "d1", Name: "Ada", StageName: "Nova", Active: true},
		{ID: "d2", Name: "Bel", Active: false},
		{ID: "d3", Name: "Cy", StageName: "Volt", Active: true},
	}
}

func newTestSnapshot(t *testing.T, path string) *Snapshot {
	t.Helper()
	snapshot, err := New(Config{
		Path:   path,
		Clock:  clock.Fake(time.UnixMilli(1700000000000)),
		Logger: testLogger(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return snapshot
}

func TestLoadAbsentBeforeFirstSave(t *testing.T) {
	snapshot := newTestSnapshot(t, filepath.Join(t.TempDir(), "roster.cbor"))
	if _, ok := snapshot.Load(); ok {
		t.Error("fresh snapshot must report absent")
	}
	if snapshot.SavedAt() != 0 {
		t.Errorf("SavedAt = %d, want 0", snapshot.SavedAt())
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "roster.cbor")
	snapshot := newTestSnapshot(t, path)

	if err := snapshot.Save(testRoster()); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, ok := snapshot.Load()
	if !ok {
		t.Fatal("snapshot absent after save")
	}
	if len(loaded) != 3 || loaded[0].StageName != "Nova" || !loaded[2].Active {
		t.Errorf("unexpected roster: %+v", loaded)
	}
	if snapshot.SavedAt() != 1700000000000 {
		t.Errorf("SavedAt = %d, want 1700000000000", snapshot.SavedAt())
	}
}

func TestSnapshotSurvivesRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "roster.cbor")
	snapshot := newTestSnapshot(t, path)
	if err := snapshot.Save(testRoster()); err != nil {
		t.Fatalf("Save: %v", err)
	}

	reopened := newTestSnapshot(t, path)
	loaded, ok := reopened.Load()
	if !ok {
		t.Fatal("snapshot absent after reopen")
	}
	if len(loaded) != 3 || loaded[1].Name != "Bel" {
		t.Errorf("unexpected roster after reopen: %+v", loaded)
	}
	if reopened.SavedAt() != 1700000000000 {
		t.Errorf("SavedAt = %d after reopen", reopened.SavedAt())
	}
}

func TestSaveIsWholesaleOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "roster.cbor")
	snapshot := newTestSnapshot(t, path)

	if err := snapshot.Save(testRoster()); err != nil {
		t.Fatalf("Save: %v", err)
	}
	replacement := []schema.Dancer{{ID: "d9", Name: "Zed", Active: true}}
	if err := snapshot.Save(replacement); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, _ := snapshot.Load()
	if len(loaded) != 1 || loaded[0].ID != "d9" {
		t.Errorf("save must replace, not merge, got %+v", loaded)
	}
}

func TestCorruptFileTreatedAsAbsent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "roster.cbor")
	if err := os.WriteFile(path, []byte("not cbor at all"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	snapshot := newTestSnapshot(t, path)
	if _, ok := snapshot.Load(); ok {
		t.Error("corrupt snapshot must report absent")
	}

	// A save recovers the file.
	if err := snapshot.Save(testRoster()); err != nil {
		t.Fatalf("Save: %v", err)
	}
	reopened := newTestSnapshot(t, path)
	if _, ok := reopened.Load(); !ok {
		t.Error("snapshot absent after recovery save")
	}
}

func TestFilterUsesCachedRoster(t *testing.T) {
	snapshot := newTestSnapshot(t, filepath.Join(t.TempDir(), "roster.cbor"))
	if err := snapshot.Save(testRoster()); err != nil {
		t.Fatalf("Save: %v", err)
	}

	active := snapshot.Filter(func(d schema.Dancer) bool { return d.Active })
	if len(active) != 2 || active[0].ID != "d1" || active[1].ID != "d3" {
		t.Errorf("active filter = %+v", active)
	}

	none := snapshot.Filter(func(d schema.Dancer) bool { return false })
	if len(none) != 0 {
		t.Errorf("empty filter returned %+v", none)
	}
}

func TestLoadReturnsCopy(t *testing.T) {
	snapshot := newTestSnapshot(t, filepath.Join(t.TempDir(), "roster.cbor"))
	if err := snapshot.Save(testRoster()); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, _ := snapshot.Load()
	loaded[0].Name = "mutated"

	fresh, _ := snapshot.Load()
	if fresh[0].Name != "Ada" {
		t.Error("Load must return a copy, not the cache")
	}
}

func TestSaveCreatesParentDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "roster.cbor")
	snapshot := newTestSnapshot(t, path)
	if err := snapshot.Save(testRoster()); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("snapshot file missing: %v", err)
	}
}
