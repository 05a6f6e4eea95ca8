// Copyright 2025 StrongDM Inc
// SPDX-License-Identifier: Apache-2.0

// Package pathutil normalizes the logical, forward-slash paths stored in
// manifests and streams file content through SHA-1 for content addressing.
package pathutil

import (
	"crypto/sha1"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// DefaultHashBufferSize is the buffer size used by HashFile when the
// caller doesn't supply one.
const DefaultHashBufferSize = 64 * 1024

// Normalize turns an OS path into the logical form stored in a manifest:
// backslashes become forward slashes, leading/trailing separators are
// stripped, and empty segments (from doubled separators) are dropped.
// Normalize is idempotent.
func Normalize(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	parts := strings.Split(p, "/")
	kept := parts[:0]
	for _, part := range parts {
		if part != "" {
			kept = append(kept, part)
		}
	}
	return strings.Join(kept, "/")
}

// ToAbs joins a normalized relative path onto an absolute root using
// OS-native separators.
func ToAbs(root, rel string) string {
	return filepath.Join(root, filepath.FromSlash(rel))
}

// ToRel strips root from an absolute path known to live under it and
// returns the normalized relative form. The caller must guarantee abs is
// inside root; root is cleaned first so a missing or present trailing
// separator doesn't corrupt the slice (spec.md §9 flags the naive
// root-prefix slicing in the original source as a bug to avoid).
func ToRel(root, abs string) string {
	root = filepath.Clean(root)
	rel := strings.TrimPrefix(abs, root)
	rel = strings.TrimPrefix(rel, string(filepath.Separator))
	return Normalize(rel)
}

// HashFile streams path's contents through SHA-1 in bufSize chunks
// (DefaultHashBufferSize if bufSize <= 0) and returns the lowercase hex
// digest. It fails if the file cannot be opened or read.
func HashFile(path string, bufSize int) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	if bufSize <= 0 {
		bufSize = DefaultHashBufferSize
	}

	h := sha1.New()
	buf := make([]byte, bufSize)
	if _, err := io.CopyBuffer(h, f, buf); err != nil {
		return "", err
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

// ShardPath returns the slash-separated, data-root-relative path for a
// content hash: the h0/h1/h2/h3 fan-out directory and the final file
// name (hash, optionally suffixed .zip).
func ShardPath(hash string, compressed bool) string {
	d := hash
	if len(d) < 4 {
		d = d + strings.Repeat("_", 4-len(d))
	}
	name := hash
	if compressed {
		name += ".zip"
	}
	return strings.Join([]string{d[0:1], d[1:2], d[2:3], d[3:4], name}, "/")
}
