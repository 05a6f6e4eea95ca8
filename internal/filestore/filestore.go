// Copyright 2025 StrongDM Inc
// SPDX-License-Identifier: Apache-2.0

// Package filestore implements the hash-sharded, content-addressed blob
// store: Put/Exists/Restore over a data root, with optional per-blob zip
// compression and atomic publish-via-rename ingest.
package filestore

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"depot/internal/pathutil"
)

// DefaultDataDir is the default subdirectory of the repository root that
// holds the content area.
const DefaultDataDir = "data"

// DefaultZipMinSize is the default minimum file size, in bytes, eligible
// for compression. Files must be strictly larger than this threshold.
const DefaultZipMinSize = 1024

// defaultSkipExtensions lists lowercase extensions already known to be
// compressed formats, so compressing them again wastes time for no gain.
var defaultSkipExtensions = []string{
	"mp3", "ogg", "wma", "7z", "arj", "deb", "pkg", "rar", "rpm", "gz",
	"zip", "jar", "jpg", "jpeg", "png", "pptx", "xlsx", "docx", "mp4",
	"avi", "mov", "rm", "mkv", "wmv", "tar.xz",
}

// Config configures a Store. New starts from the defaults (DefaultDataDir,
// DefaultZipMinSize, the built-in skip list) and applies WithXxx options;
// there is no package-level mutable state to thread through construction,
// unlike the source this is derived from.
type Config struct {
	BackupDir           string
	DataDir             string
	ZipEnabled          bool
	ZipMinFilesizeBytes int64
	ZipSkipExtensions   map[string]bool
}

// Option configures a Store at construction time.
type Option func(*Config)

// WithDataDir overrides the content-area subdirectory name (default "data").
func WithDataDir(dir string) Option {
	return func(c *Config) { c.DataDir = dir }
}

// WithZipEnabled turns on eligible-blob compression.
func WithZipEnabled(enabled bool) Option {
	return func(c *Config) { c.ZipEnabled = enabled }
}

// WithZipMinFilesize sets the strict lower size bound, in bytes, for
// compression eligibility (default DefaultZipMinSize).
func WithZipMinFilesize(n int64) Option {
	return func(c *Config) { c.ZipMinFilesizeBytes = n }
}

// WithZipSkipExtensions replaces the set of extensions (without the
// leading dot, case-insensitive) that are never compressed.
func WithZipSkipExtensions(exts ...string) Option {
	return func(c *Config) {
		m := make(map[string]bool, len(exts))
		for _, e := range exts {
			m[toLowerExt(e)] = true
		}
		c.ZipSkipExtensions = m
	}
}

func toLowerExt(e string) string {
	b := []byte(e)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

func defaultConfig(backupDir string) *Config {
	skip := make(map[string]bool, len(defaultSkipExtensions))
	for _, e := range defaultSkipExtensions {
		skip[e] = true
	}
	return &Config{
		BackupDir:           backupDir,
		DataDir:             DefaultDataDir,
		ZipMinFilesizeBytes: DefaultZipMinSize,
		ZipSkipExtensions:   skip,
	}
}

// Store is the sharded, content-addressed blob store rooted at
// Config.BackupDir/Config.DataDir.
type Store struct {
	cfg Config
}

// New ensures the data root exists and returns a Store bound to it.
func New(backupDir string, opts ...Option) (*Store, error) {
	cfg := defaultConfig(backupDir)
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.ZipSkipExtensions == nil {
		cfg.ZipSkipExtensions = map[string]bool{}
	}

	root := filepath.Join(cfg.BackupDir, cfg.DataDir)
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("filestore: ensure data root %s: %w", root, err)
	}

	return &Store{cfg: *cfg}, nil
}

// DataRoot returns the absolute content-area directory.
func (s *Store) DataRoot() string {
	return filepath.Join(s.cfg.BackupDir, s.cfg.DataDir)
}

// StoredFile is the record returned by Put: everything the manifest
// needs to bind a restore path to stored content.
type StoredFile struct {
	RestorePath    string
	SHA1Hash       string
	StoredLocation string
	IsCompressed   bool
}

// Exists reports whether storedLocation (a slash-separated path relative
// to the data root, as produced by Put) is present on disk.
func (s *Store) Exists(storedLocation string) bool {
	_, err := os.Stat(filepath.Join(s.DataRoot(), filepath.FromSlash(storedLocation)))
	return err == nil
}

// IsCompressionEligible reports whether a file at path, of the given
// size, would be stored compressed under this Store's Config: zip must
// be enabled, the extension must not be in the skip set (compared
// lowercase on both sides — spec.md §9 flags the source's case-sensitive
// comparison as a bug), and the size must strictly exceed the configured
// minimum.
func (s *Store) IsCompressionEligible(path string, size int64) bool {
	if !s.cfg.ZipEnabled {
		return false
	}
	if size <= s.cfg.ZipMinFilesizeBytes {
		return false
	}
	ext := extensionOf(path, s.cfg.ZipSkipExtensions)
	return !s.cfg.ZipSkipExtensions[ext]
}

// extensionOf returns the lowercase extension (without the leading dot)
// of path, treating a compound suffix like "tar.xz" as the extension
// when the whole basename after the first dot matches a multi-part form
// in known; otherwise it's filepath.Ext sans dot.
func extensionOf(path string, known map[string]bool) string {
	base := filepath.Base(path)
	if i := indexByte(base, '.'); i >= 0 && i < len(base)-1 {
		if full := toLowerExt(base[i+1:]); known[full] {
			return full
		}
	}
	if ext := filepath.Ext(base); len(ext) > 1 {
		return toLowerExt(ext[1:])
	}
	return ""
}

func indexByte(s string, b byte) int {
	for i := 0; i < len(s); i++ {
		if s[i] == b {
			return i
		}
	}
	return -1
}

// Put ingests originFile (restorePath is the logical path it will be
// restored to) into the content store, publishing it atomically and
// deduplicating against existing content by hash. If precomputedHash is
// non-empty it is trusted and reused instead of re-hashing.
func (s *Store) Put(originFile, restorePath, precomputedHash string) (StoredFile, error) {
	hash := precomputedHash
	if hash == "" {
		h, err := pathutil.HashFile(originFile, 0)
		if err != nil {
			return StoredFile{}, fmt.Errorf("filestore: hash %s: %w", originFile, err)
		}
		hash = h
	}

	info, err := os.Stat(originFile)
	if err != nil {
		return StoredFile{}, fmt.Errorf("filestore: stat %s: %w", originFile, err)
	}

	compressed := s.IsCompressionEligible(originFile, info.Size())
	storedLocation := pathutil.ShardPath(hash, compressed)
	sf := StoredFile{
		RestorePath:    pathutil.Normalize(restorePath),
		SHA1Hash:       hash,
		StoredLocation: storedLocation,
		IsCompressed:   compressed,
	}

	if s.Exists(storedLocation) {
		return sf, nil
	}

	if err := s.publish(originFile, storedLocation, compressed); err != nil {
		return StoredFile{}, err
	}

	return sf, nil
}

// publish materializes originFile's content into a temp file inside the
// data root, then renames it into place. The rename is atomic on the
// target filesystem because the temp file lives alongside the final
// shard; a process crash between temp-write and rename leaves no partial
// file at the final path.
func (s *Store) publish(originFile, storedLocation string, compressed bool) error {
	root := s.DataRoot()
	finalPath := filepath.Join(root, filepath.FromSlash(storedLocation))
	shardDir := filepath.Dir(finalPath)
	if err := os.MkdirAll(shardDir, 0o755); err != nil {
		return fmt.Errorf("filestore: ensure shard dir %s: %w", shardDir, err)
	}

	tempPath := filepath.Join(root, "tmp-"+uuid.NewString())
	if err := s.writeTemp(originFile, tempPath, compressed); err != nil {
		os.Remove(tempPath)
		return err
	}

	if err := os.Rename(tempPath, finalPath); err != nil {
		if s.Exists(storedLocation) {
			// Another writer published the same hash between our Exists
			// check and our rename; the loser discards its temp file
			// and the race is harmless because blobs are immutable.
			os.Remove(tempPath)
			return nil
		}
		os.Remove(tempPath)
		return fmt.Errorf("filestore: publish %s: %w", finalPath, err)
	}

	slog.Debug("[filestore] published blob", "location", storedLocation, "compressed", compressed)
	return nil
}

func (s *Store) writeTemp(originFile, tempPath string, compressed bool) error {
	src, err := os.Open(originFile)
	if err != nil {
		return fmt.Errorf("filestore: open %s: %w", originFile, err)
	}
	defer src.Close()

	dst, err := os.OpenFile(tempPath, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("filestore: create temp %s: %w", tempPath, err)
	}
	defer dst.Close()

	if compressed {
		return writeZipParts(dst, src)
	}

	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("filestore: write %s: %w", tempPath, err)
	}
	return nil
}

// Restore writes the original bytes of sf to
// restoreToDir/sf.RestorePath, creating parent directories as needed. If
// sf.IsCompressed, the stored blob is a zip archive whose ordered
// members are concatenated to reconstruct the original content.
func (s *Store) Restore(sf StoredFile, restoreToDir string) error {
	srcPath := filepath.Join(s.DataRoot(), filepath.FromSlash(sf.StoredLocation))
	dstPath := filepath.Join(restoreToDir, filepath.FromSlash(sf.RestorePath))

	if err := os.MkdirAll(filepath.Dir(dstPath), 0o755); err != nil {
		return fmt.Errorf("filestore: ensure restore dir for %s: %w", dstPath, err)
	}

	dst, err := os.OpenFile(dstPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("filestore: create %s: %w", dstPath, err)
	}
	defer dst.Close()

	if sf.IsCompressed {
		return readZipParts(srcPath, dst)
	}

	src, err := os.Open(srcPath)
	if err != nil {
		return fmt.Errorf("filestore: open blob %s: %w", srcPath, err)
	}
	defer src.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("filestore: restore %s: %w", dstPath, err)
	}
	return nil
}
