// Copyright 2025 StrongDM Inc
// SPDX-License-Identifier: Apache-2.0

// Package manifest implements the per-version catalog of directory and
// file entries: an append-only, line-oriented CSV log per version, plus
// readers that list versions and iterate a version's entries in the
// order they were written.
package manifest

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"depot/internal/pathutil"
)

// csvExt is the manifest file extension. WithDBDir relocates manifests
// under a subdirectory instead of the repository root (spec.md §3's
// "alternate layout"); this repository commits to the root layout by
// default.
const csvExt = ".csv"

const (
	tagDir  = "d"
	tagFile = "f"
)

// Version names a single capture. The name doubles as the manifest
// file's base name and the human-facing label.
type Version struct {
	Name string
}

// DirEntry records a captured directory's normalized path. Empty
// directories are preserved exactly like non-empty ones.
type DirEntry struct {
	Path string
}

// StoredFile binds a restore path to the content hash and stored
// location produced by the filestore.
type StoredFile struct {
	RestorePath    string
	SHA1Hash       string
	StoredLocation string
	IsCompressed   bool
}

// Kind discriminates the two FSObject variants.
type Kind int

const (
	KindDir Kind = iota
	KindFile
)

// FSObject is the tagged union of DirEntry and StoredFile that a
// manifest line decodes to, mirroring the source's dynamically-typed
// row in a fixed Go shape (spec.md §9).
type FSObject struct {
	Kind Kind
	Dir  DirEntry
	File StoredFile
}

// Config configures a DB.
type Config struct {
	BackupDir string
	DBDir     string // empty: manifests live directly under BackupDir
}

// Option configures a DB at construction time.
type Option func(*Config)

// WithDBDir relocates manifests under BackupDir/dir instead of the
// repository root.
func WithDBDir(dir string) Option {
	return func(c *Config) { c.DBDir = dir }
}

// DB is the append-only manifest store for one repository.
type DB struct {
	cfg Config
}

// New ensures the manifest directory exists and returns a DB bound to it.
func New(backupDir string, opts ...Option) (*DB, error) {
	cfg := Config{BackupDir: backupDir}
	for _, opt := range opts {
		opt(&cfg)
	}
	if err := os.MkdirAll(cfg.dir(), 0o755); err != nil {
		return nil, fmt.Errorf("manifest: ensure manifest dir: %w", err)
	}
	return &DB{cfg: cfg}, nil
}

func (c Config) dir() string {
	if c.DBDir == "" {
		return c.BackupDir
	}
	return filepath.Join(c.BackupDir, c.DBDir)
}

func (db *DB) pathFor(v Version) string {
	return filepath.Join(db.cfg.dir(), v.Name+csvExt)
}

// Versions lists every manifest file in the manifest directory.
func (db *DB) Versions() ([]Version, error) {
	entries, err := os.ReadDir(db.cfg.dir())
	if err != nil {
		return nil, fmt.Errorf("manifest: list versions: %w", err)
	}
	var versions []Version
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != csvExt {
			continue
		}
		// Strip the trailing ".csv" extension exactly, not a character
		// class trim — spec.md §9 flags the source's string-strip bug.
		name := strings.TrimSuffix(e.Name(), csvExt)
		versions = append(versions, Version{Name: name})
	}
	return versions, nil
}

// HasVersion reports whether name already has a manifest.
func (db *DB) HasVersion(name string) (bool, error) {
	_, err := os.Stat(db.pathFor(Version{Name: name}))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, fmt.Errorf("manifest: stat version %s: %w", name, err)
}

// Version looks up a version by name, failing with a descriptive error
// if it doesn't exist.
func (db *DB) Version(name string) (Version, error) {
	ok, err := db.HasVersion(name)
	if err != nil {
		return Version{}, err
	}
	if !ok {
		return Version{}, fmt.Errorf("manifest: version not found: %s", name)
	}
	return Version{Name: name}, nil
}

// MostRecentVersion returns the lexicographically-last version name
// (timestamp-named versions therefore sort chronologically), or false
// if the repository has no versions yet.
func (db *DB) MostRecentVersion() (Version, bool, error) {
	versions, err := db.Versions()
	if err != nil {
		return Version{}, false, err
	}
	if len(versions) == 0 {
		return Version{}, false, nil
	}
	sort.Slice(versions, func(i, j int) bool { return versions[i].Name > versions[j].Name })
	return versions[0], true, nil
}

// InsertDir appends one directory row to v's manifest.
func (db *DB) InsertDir(v Version, dir DirEntry) error {
	return db.appendRow(v, []string{tagDir, pathutil.Normalize(dir.Path), ""})
}

// InsertFile appends one file row to v's manifest, including the
// stored-location and compression-flag columns (this repository commits
// unconditionally to the 5-column schema, per DESIGN.md's resolution of
// spec.md §4.C/§9's Open Question).
func (db *DB) InsertFile(v Version, sf StoredFile) error {
	return db.appendRow(v, []string{
		tagFile,
		pathutil.Normalize(sf.RestorePath),
		sf.SHA1Hash,
		sf.StoredLocation,
		formatBool(sf.IsCompressed),
	})
}

// formatBool stringifies booleans as the manifest wire format requires:
// "True"/"False" (spec.md §6), not Go's lowercase strconv convention.
func formatBool(b bool) string {
	if b {
		return "True"
	}
	return "False"
}

// appendRow opens the manifest, appends one CSV row with every field
// double-quoted (embedded quotes doubled) and an LF terminator, and closes
// it — the source's "open on each insert" discipline carried over directly
// (spec.md §9's note on scoped resources), since a single writer per
// version never benefits from holding the handle open across calls.
func (db *DB) appendRow(v Version, row []string) error {
	f, err := os.OpenFile(db.pathFor(v), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("manifest: open %s for append: %w", v.Name, err)
	}
	defer f.Close()

	quoted := make([]string, len(row))
	for i, field := range row {
		quoted[i] = `"` + strings.ReplaceAll(field, `"`, `""`) + `"`
	}
	if _, err := f.WriteString(strings.Join(quoted, ",") + "\n"); err != nil {
		return fmt.Errorf("manifest: append row to %s: %w", v.Name, err)
	}
	return nil
}

// Objects returns every FSObject in v's manifest, in the order the rows
// were written. Rows whose tag is neither "d" nor "f" are skipped
// (spec.md §4.C/§7: corrupted or unknown rows are skipped, not
// propagated, matching the source).
func (db *DB) Objects(v Version) ([]FSObject, error) {
	f, err := os.Open(db.pathFor(v))
	if err != nil {
		return nil, fmt.Errorf("manifest: open %s: %w", v.Name, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	var objects []FSObject
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("manifest: read %s: %w", v.Name, err)
		}
		obj, ok := decodeRow(row)
		if !ok {
			continue
		}
		objects = append(objects, obj)
	}
	return objects, nil
}

func decodeRow(row []string) (FSObject, bool) {
	if len(row) < 1 {
		return FSObject{}, false
	}
	switch row[0] {
	case tagDir:
		if len(row) < 2 {
			return FSObject{}, false
		}
		return FSObject{Kind: KindDir, Dir: DirEntry{Path: row[1]}}, true
	case tagFile:
		if len(row) < 2 {
			return FSObject{}, false
		}
		sf := StoredFile{RestorePath: row[1]}
		if len(row) > 2 {
			sf.SHA1Hash = row[2]
		}
		if len(row) > 3 {
			sf.StoredLocation = row[3]
		}
		if len(row) > 4 {
			sf.IsCompressed = row[4] == "True" || row[4] == "true"
		}
		return FSObject{Kind: KindFile, File: sf}, true
	default:
		return FSObject{}, false
	}
}

// Dirs returns only the directory rows of v's manifest, in file order.
func (db *DB) Dirs(v Version) ([]DirEntry, error) {
	objects, err := db.Objects(v)
	if err != nil {
		return nil, err
	}
	var dirs []DirEntry
	for _, o := range objects {
		if o.Kind == KindDir {
			dirs = append(dirs, o.Dir)
		}
	}
	return dirs, nil
}

// Files returns only the file rows of v's manifest, in file order.
func (db *DB) Files(v Version) ([]StoredFile, error) {
	objects, err := db.Objects(v)
	if err != nil {
		return nil, err
	}
	var files []StoredFile
	for _, o := range objects {
		if o.Kind == KindFile {
			files = append(files, o.File)
		}
	}
	return files, nil
}
