// Copyright 2025 StrongDM Inc
// SPDX-License-Identifier: Apache-2.0

package manifest

import (
	"os"
	"strings"
	"testing"
)

func TestInsertAndReadRoundTrip(t *testing.T) {
	repo := t.TempDir()
	db, err := New(repo)
	if err != nil {
		t.Fatal(err)
	}

	v := Version{Name: "v1"}
	if err := db.InsertDir(v, DirEntry{Path: "subdir"}); err != nil {
		t.Fatal(err)
	}
	if err := db.InsertFile(v, StoredFile{
		RestorePath:    "subdir/a.txt",
		SHA1Hash:       "da39a3ee5e6b4b0d3255bfef95601890afd80709",
		StoredLocation: "d/a/3/9/da39a3ee5e6b4b0d3255bfef95601890afd80709",
		IsCompressed:   false,
	}); err != nil {
		t.Fatal(err)
	}

	objects, err := db.Objects(v)
	if err != nil {
		t.Fatal(err)
	}
	if len(objects) != 2 {
		t.Fatalf("got %d objects, want 2", len(objects))
	}
	if objects[0].Kind != KindDir || objects[0].Dir.Path != "subdir" {
		t.Errorf("unexpected first object: %+v", objects[0])
	}
	if objects[1].Kind != KindFile || objects[1].File.RestorePath != "subdir/a.txt" {
		t.Errorf("unexpected second object: %+v", objects[1])
	}
	if objects[1].File.IsCompressed {
		t.Errorf("expected IsCompressed=false")
	}
}

func TestInsertFileStringifiesBoolAsTitleCase(t *testing.T) {
	repo := t.TempDir()
	db, err := New(repo)
	if err != nil {
		t.Fatal(err)
	}
	v := Version{Name: "v1"}
	if err := db.InsertFile(v, StoredFile{RestorePath: "a", SHA1Hash: "h", StoredLocation: "l", IsCompressed: true}); err != nil {
		t.Fatal(err)
	}
	files, err := db.Files(v)
	if err != nil {
		t.Fatal(err)
	}
	if !files[0].IsCompressed {
		t.Fatalf("expected compression flag to round-trip as true")
	}
	raw, err := os.ReadFile(db.pathFor(v))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(raw), `"True"`) {
		t.Fatalf("manifest row = %q, want a \"True\" compression field", raw)
	}
}

func TestVersionsStripsExtensionExactly(t *testing.T) {
	repo := t.TempDir()
	db, err := New(repo)
	if err != nil {
		t.Fatal(err)
	}
	// A name beginning with characters that a naive strip(".csv") would also
	// eat from either end (spec.md §9's documented bug).
	v := Version{Name: "csv-report"}
	if err := db.InsertDir(v, DirEntry{Path: "x"}); err != nil {
		t.Fatal(err)
	}

	versions, err := db.Versions()
	if err != nil {
		t.Fatal(err)
	}
	if len(versions) != 1 || versions[0].Name != "csv-report" {
		t.Fatalf("got %+v, want [csv-report]", versions)
	}
}

func TestMostRecentVersionSortsDescending(t *testing.T) {
	repo := t.TempDir()
	db, err := New(repo)
	if err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"2024-01-01T000000", "2024-06-01T000000", "2024-03-01T000000"} {
		if err := db.InsertDir(Version{Name: name}, DirEntry{Path: "x"}); err != nil {
			t.Fatal(err)
		}
	}
	v, ok, err := db.MostRecentVersion()
	if err != nil {
		t.Fatal(err)
	}
	if !ok || v.Name != "2024-06-01T000000" {
		t.Fatalf("got %+v, ok=%v", v, ok)
	}
}

func TestHasVersion(t *testing.T) {
	repo := t.TempDir()
	db, err := New(repo)
	if err != nil {
		t.Fatal(err)
	}
	if ok, _ := db.HasVersion("v1"); ok {
		t.Fatal("expected no version yet")
	}
	if err := db.InsertDir(Version{Name: "v1"}, DirEntry{Path: "x"}); err != nil {
		t.Fatal(err)
	}
	if ok, _ := db.HasVersion("v1"); !ok {
		t.Fatal("expected version to exist")
	}
}

func TestObjectsSkipsUnknownTag(t *testing.T) {
	repo := t.TempDir()
	db, err := New(repo)
	if err != nil {
		t.Fatal(err)
	}
	v := Version{Name: "v1"}
	if err := db.appendRow(v, []string{"x", "whatever", ""}); err != nil {
		t.Fatal(err)
	}
	if err := db.InsertDir(v, DirEntry{Path: "ok"}); err != nil {
		t.Fatal(err)
	}
	objects, err := db.Objects(v)
	if err != nil {
		t.Fatal(err)
	}
	if len(objects) != 1 || objects[0].Dir.Path != "ok" {
		t.Fatalf("expected unknown-tag row to be skipped, got %+v", objects)
	}
}
