// Copyright 2025 StrongDM Inc
// SPDX-License-Identifier: Apache-2.0

package analyzer

import (
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

func TestWalkProducesSortedDeterministicOutput(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "b", "y.txt"), []byte("y"))
	writeFile(t, filepath.Join(root, "a", "x.txt"), []byte("x"))
	writeFile(t, filepath.Join(root, "z.txt"), []byte("z"))
	if err := os.MkdirAll(filepath.Join(root, "empty"), 0o755); err != nil {
		t.Fatal(err)
	}

	result, err := Walk(root)
	if err != nil {
		t.Fatal(err)
	}

	wantDirs := []string{"a", "b", "empty"}
	if len(result.Dirs) != len(wantDirs) {
		t.Fatalf("got %d dirs, want %d", len(result.Dirs), len(wantDirs))
	}
	for i, want := range wantDirs {
		if result.Dirs[i].RelPath != want {
			t.Errorf("dirs[%d] = %q, want %q", i, result.Dirs[i].RelPath, want)
		}
	}

	wantFiles := []string{"a/x.txt", "b/y.txt", "z.txt"}
	if len(result.Files) != len(wantFiles) {
		t.Fatalf("got %d files, want %d", len(result.Files), len(wantFiles))
	}
	for i, want := range wantFiles {
		if result.Files[i].RelPath != want {
			t.Errorf("files[%d] = %q, want %q", i, result.Files[i].RelPath, want)
		}
	}
}

func TestWalkHashesFileContent(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "empty.txt"), nil)

	result, err := Walk(root)
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Files) != 1 {
		t.Fatalf("got %d files, want 1", len(result.Files))
	}
	const wantHash = "da39a3ee5e6b4b0d3255bfef95601890afd80709"
	if result.Files[0].SHA1Hash != wantHash {
		t.Errorf("hash = %q, want %q", result.Files[0].SHA1Hash, wantHash)
	}
	if result.Files[0].Size != 0 {
		t.Errorf("size = %d, want 0", result.Files[0].Size)
	}
}

func TestWalkAnnotatesBackupedFromKnownHashes(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.txt"), []byte("hello"))
	writeFile(t, filepath.Join(root, "b.txt"), []byte("world"))

	hashA, err := func() (string, error) {
		r, err := Walk(root)
		if err != nil {
			return "", err
		}
		for _, f := range r.Files {
			if f.RelPath == "a.txt" {
				return f.SHA1Hash, nil
			}
		}
		return "", nil
	}()
	if err != nil {
		t.Fatal(err)
	}

	known := map[string]bool{hashA: true}
	result, err := Walk(root, WithKnownHashes(known))
	if err != nil {
		t.Fatal(err)
	}
	for _, f := range result.Files {
		switch f.RelPath {
		case "a.txt":
			if !f.Backuped {
				t.Error("a.txt should be annotated backuped")
			}
		case "b.txt":
			if f.Backuped {
				t.Error("b.txt should not be annotated backuped")
			}
		}
	}
}

func TestSummarize(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.txt"), []byte("12345"))
	writeFile(t, filepath.Join(root, "sub", "b.txt"), []byte("1234567890"))

	result, err := Walk(root)
	if err != nil {
		t.Fatal(err)
	}
	summary := result.Summarize(0)
	if summary.FileCount != 2 {
		t.Errorf("FileCount = %d, want 2", summary.FileCount)
	}
	if summary.DirCount != 1 {
		t.Errorf("DirCount = %d, want 1", summary.DirCount)
	}
	if summary.TotalBytes != 15 {
		t.Errorf("TotalBytes = %d, want 15", summary.TotalBytes)
	}
}

func TestWalkEmptyRoot(t *testing.T) {
	root := t.TempDir()
	result, err := Walk(root)
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Dirs) != 0 || len(result.Files) != 0 {
		t.Fatalf("expected empty result, got %+v", result)
	}
}
