// Copyright 2025 StrongDM Inc
// SPDX-License-Identifier: Apache-2.0

package filestore

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, path string, content []byte) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestPutIsIdempotent(t *testing.T) {
	repo := t.TempDir()
	store, err := New(repo)
	if err != nil {
		t.Fatal(err)
	}

	src := filepath.Join(t.TempDir(), "a.txt")
	writeFile(t, src, []byte("identical content"))

	sf1, err := store.Put(src, "a.txt", "")
	if err != nil {
		t.Fatal(err)
	}
	sf2, err := store.Put(src, "a.txt", "")
	if err != nil {
		t.Fatal(err)
	}
	if sf1.StoredLocation != sf2.StoredLocation {
		t.Fatalf("stored locations differ: %q vs %q", sf1.StoredLocation, sf2.StoredLocation)
	}
	if !store.Exists(sf1.StoredLocation) {
		t.Fatalf("blob should exist after put")
	}
}

func TestPutDeduplicatesIdenticalContent(t *testing.T) {
	repo := t.TempDir()
	store, err := New(repo)
	if err != nil {
		t.Fatal(err)
	}

	srcDir := t.TempDir()
	a := filepath.Join(srcDir, "a.txt")
	b := filepath.Join(srcDir, "b.txt")
	writeFile(t, a, []byte("same bytes"))
	writeFile(t, b, []byte("same bytes"))

	sfA, err := store.Put(a, "a.txt", "")
	if err != nil {
		t.Fatal(err)
	}
	sfB, err := store.Put(b, "b.txt", "")
	if err != nil {
		t.Fatal(err)
	}
	if sfA.StoredLocation != sfB.StoredLocation {
		t.Fatalf("expected shared blob, got %q and %q", sfA.StoredLocation, sfB.StoredLocation)
	}
	if sfA.SHA1Hash != sfB.SHA1Hash {
		t.Fatalf("expected equal hashes")
	}
}

func TestRestoreRoundTrip(t *testing.T) {
	repo := t.TempDir()
	store, err := New(repo)
	if err != nil {
		t.Fatal(err)
	}

	src := filepath.Join(t.TempDir(), "sub", "file.txt")
	content := []byte("round trip me")
	writeFile(t, src, content)

	sf, err := store.Put(src, "sub/file.txt", "")
	if err != nil {
		t.Fatal(err)
	}

	dest := t.TempDir()
	if err := store.Restore(sf, dest); err != nil {
		t.Fatal(err)
	}

	got, err := os.ReadFile(filepath.Join(dest, "sub", "file.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, content) {
		t.Fatalf("restored content = %q, want %q", got, content)
	}
}

func TestCompressionEligibilityThreshold(t *testing.T) {
	repo := t.TempDir()
	store, err := New(repo, WithZipEnabled(true), WithZipMinFilesize(10))
	if err != nil {
		t.Fatal(err)
	}

	if store.IsCompressionEligible("f.txt", 10) {
		t.Error("size exactly at threshold must not be eligible")
	}
	if !store.IsCompressionEligible("f.txt", 11) {
		t.Error("size above threshold should be eligible")
	}
	if store.IsCompressionEligible("f.jpg", 1000) {
		t.Error("skip-listed extension must never be eligible")
	}
	if store.IsCompressionEligible("f.JPG", 1000) {
		t.Error("skip-list comparison must be case-insensitive")
	}
}

func TestPutCompressedRoundTrip(t *testing.T) {
	repo := t.TempDir()
	store, err := New(repo, WithZipEnabled(true), WithZipMinFilesize(5))
	if err != nil {
		t.Fatal(err)
	}

	src := filepath.Join(t.TempDir(), "big.txt")
	content := bytes.Repeat([]byte("compress-me-please "), 200)
	writeFile(t, src, content)

	sf, err := store.Put(src, "big.txt", "")
	if err != nil {
		t.Fatal(err)
	}
	if !sf.IsCompressed {
		t.Fatal("expected file to be compressed")
	}

	dest := t.TempDir()
	if err := store.Restore(sf, dest); err != nil {
		t.Fatal(err)
	}
	got, err := os.ReadFile(filepath.Join(dest, "big.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, content) {
		t.Fatalf("decompressed content mismatch, got %d bytes want %d", len(got), len(content))
	}
}

func TestPutEmptyFile(t *testing.T) {
	repo := t.TempDir()
	store, err := New(repo, WithZipEnabled(true), WithZipMinFilesize(0))
	if err != nil {
		t.Fatal(err)
	}

	src := filepath.Join(t.TempDir(), "empty.txt")
	writeFile(t, src, nil)

	sf, err := store.Put(src, "empty.txt", "")
	if err != nil {
		t.Fatal(err)
	}
	const wantHash = "da39a3ee5e6b4b0d3255bfef95601890afd80709"
	if sf.SHA1Hash != wantHash {
		t.Fatalf("hash = %q, want %q", sf.SHA1Hash, wantHash)
	}

	dest := t.TempDir()
	if err := store.Restore(sf, dest); err != nil {
		t.Fatal(err)
	}
	got, err := os.ReadFile(filepath.Join(dest, "empty.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Fatalf("expected empty file, got %d bytes", len(got))
	}
}

func TestNoTempFilesLeftBehindOnSuccess(t *testing.T) {
	repo := t.TempDir()
	store, err := New(repo)
	if err != nil {
		t.Fatal(err)
	}

	src := filepath.Join(t.TempDir(), "a.txt")
	writeFile(t, src, []byte("no leftovers"))
	if _, err := store.Put(src, "a.txt", ""); err != nil {
		t.Fatal(err)
	}

	entries, err := os.ReadDir(store.DataRoot())
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if len(e.Name()) >= 4 && e.Name()[:4] == "tmp-" {
			t.Fatalf("leftover temp file: %s", e.Name())
		}
	}
}
