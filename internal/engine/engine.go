// Copyright 2025 StrongDM Inc
// SPDX-License-Identifier: Apache-2.0

// Package engine implements the four backup-repository operations — new,
// update, check, restore — on top of the analyzer, filestore, and
// manifest packages: precondition validation followed by a single
// capture, verification, or extraction pass.
package engine

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"depot/internal/analyzer"
	"depot/internal/filestore"
	"depot/internal/manifest"
	"depot/internal/pathutil"
)

// ValidationError reports a precondition failure on one of the four
// operations. It is the one concrete error type in this package; every
// other failure propagates wrapped with fmt.Errorf.
type ValidationError struct {
	Op      string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("engine: %s: %s", e.Op, e.Message)
}

func validationErrorf(op, format string, args ...any) *ValidationError {
	return &ValidationError{Op: op, Message: fmt.Sprintf(format, args...)}
}

// NewCommand captures a fresh repository at Location from Source under Version.
type NewCommand struct {
	Source   string
	Location string
	Version  string
}

// UpdateCommand captures a new version into an existing repository.
type UpdateCommand struct {
	Source   string
	Location string
	Version  string
}

// CheckCommand verifies one version (or every version, if Version is empty).
type CheckCommand struct {
	Location string
	Version  string
}

// RestoreCommand extracts one version of a repository into Destination.
type RestoreCommand struct {
	Location    string
	Destination string
	VersionName string
}

// Engine runs the four operations against the repository each command
// names, opening a Filestore and a manifest DB for that location on every
// call, and applies optional store-level options to every Filestore it
// constructs (compression settings in particular).
type Engine struct {
	storeOpts []filestore.Option
}

// Option configures an Engine.
type Option func(*Engine)

// WithFilestoreOptions passes through options to every Filestore the
// engine constructs (e.g. filestore.WithZipEnabled).
func WithFilestoreOptions(opts ...filestore.Option) Option {
	return func(e *Engine) { e.storeOpts = append(e.storeOpts, opts...) }
}

// New builds an Engine.
func New(opts ...Option) *Engine {
	e := &Engine{}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// CaptureResult reports what a New/Update call produced.
type CaptureResult struct {
	Version analyzer.Summary
}

// New captures source into a brand-new repository at cmd.Location.
func (e *Engine) New(cmd NewCommand) (CaptureResult, error) {
	if err := requireExists("new", "source", cmd.Source); err != nil {
		return CaptureResult{}, err
	}
	if empty, err := repoIsEmptyOrAbsent(cmd.Location); err != nil {
		return CaptureResult{}, err
	} else if !empty {
		return CaptureResult{}, validationErrorf("new", "location %s already has a repository", cmd.Location)
	}

	return e.capture("new", cmd.Source, cmd.Location, cmd.Version)
}

// Update captures a new version into an existing repository, reusing its
// Filestore so unchanged content is deduplicated.
func (e *Engine) Update(cmd UpdateCommand) (CaptureResult, error) {
	if err := requireExists("update", "source", cmd.Source); err != nil {
		return CaptureResult{}, err
	}
	if err := requireExists("update", "location", cmd.Location); err != nil {
		return CaptureResult{}, err
	}

	db, err := manifest.New(cmd.Location)
	if err != nil {
		return CaptureResult{}, fmt.Errorf("engine: update: open manifest db: %w", err)
	}
	exists, err := db.HasVersion(cmd.Version)
	if err != nil {
		return CaptureResult{}, fmt.Errorf("engine: update: check existing version: %w", err)
	}
	if exists {
		return CaptureResult{}, validationErrorf("update", "version %s already exists", cmd.Version)
	}

	return e.capture("update", cmd.Source, cmd.Location, cmd.Version)
}

func (e *Engine) capture(op, source, location, version string) (CaptureResult, error) {
	store, err := filestore.New(location, e.storeOpts...)
	if err != nil {
		return CaptureResult{}, fmt.Errorf("engine: %s: open filestore: %w", op, err)
	}
	db, err := manifest.New(location)
	if err != nil {
		return CaptureResult{}, fmt.Errorf("engine: %s: open manifest db: %w", op, err)
	}

	start := time.Now()
	result, err := analyzer.Walk(source)
	if err != nil {
		return CaptureResult{}, fmt.Errorf("engine: %s: analyze %s: %w", op, source, err)
	}
	v := manifest.Version{Name: version}

	for _, d := range result.Dirs {
		if err := db.InsertDir(v, manifest.DirEntry{Path: d.RelPath}); err != nil {
			return CaptureResult{}, fmt.Errorf("engine: %s: insert dir %s: %w", op, d.RelPath, err)
		}
	}
	for _, f := range result.Files {
		stored, err := store.Put(f.AbsPath, f.RelPath, f.SHA1Hash)
		if err != nil {
			return CaptureResult{}, fmt.Errorf("engine: %s: put %s: %w", op, f.RelPath, err)
		}
		if err := db.InsertFile(v, manifest.StoredFile{
			RestorePath:    stored.RestorePath,
			SHA1Hash:       stored.SHA1Hash,
			StoredLocation: stored.StoredLocation,
			IsCompressed:   stored.IsCompressed,
		}); err != nil {
			return CaptureResult{}, fmt.Errorf("engine: %s: insert file %s: %w", op, f.RelPath, err)
		}
	}

	summary := result.Summarize(time.Since(start))
	slog.Info("[engine] capture complete",
		"op", op, "version", version, "dirs", summary.DirCount,
		"files", summary.FileCount, "bytes", summary.TotalBytes)

	return CaptureResult{Version: summary}, nil
}

// MissingBlob names one manifest row whose stored content is absent.
type MissingBlob struct {
	Version     string
	RestorePath string
	SHA1Hash    string
}

func (m MissingBlob) String() string {
	return fmt.Sprintf("Missing hash %s for %s in %s", m.SHA1Hash, m.RestorePath, m.Version)
}

// Check verifies that every StoredFile referenced by the selected
// version(s) still has a blob on disk. It aggregates rather than aborts:
// every missing blob across every selected version is reported.
func (e *Engine) Check(cmd CheckCommand) ([]MissingBlob, error) {
	if err := requireExists("check", "location", cmd.Location); err != nil {
		return nil, err
	}

	db, err := manifest.New(cmd.Location)
	if err != nil {
		return nil, fmt.Errorf("engine: check: open manifest db: %w", err)
	}

	var versions []manifest.Version
	if cmd.Version != "" {
		v, err := db.Version(cmd.Version)
		if err != nil {
			return nil, validationErrorf("check", "version %s: %v", cmd.Version, err)
		}
		versions = []manifest.Version{v}
	} else {
		versions, err = db.Versions()
		if err != nil {
			return nil, fmt.Errorf("engine: check: list versions: %w", err)
		}
	}

	store, err := filestore.New(cmd.Location, e.storeOpts...)
	if err != nil {
		return nil, fmt.Errorf("engine: check: open filestore: %w", err)
	}

	var missing []MissingBlob
	for _, v := range versions {
		files, err := db.Files(v)
		if err != nil {
			return nil, fmt.Errorf("engine: check: read files for %s: %w", v.Name, err)
		}
		for _, f := range files {
			if !store.Exists(f.StoredLocation) {
				missing = append(missing, MissingBlob{
					Version:     v.Name,
					RestorePath: f.RestorePath,
					SHA1Hash:    f.SHA1Hash,
				})
			}
		}
	}

	for _, m := range missing {
		slog.Warn("[engine] " + m.String())
	}
	return missing, nil
}

// Restore extracts one version of a repository into cmd.Destination,
// creating directories on demand and delegating file content to the
// Filestore.
func (e *Engine) Restore(cmd RestoreCommand) error {
	if err := requireExists("restore", "location", cmd.Location); err != nil {
		return err
	}
	if empty, err := repoIsEmptyOrAbsent(cmd.Destination); err != nil {
		return err
	} else if !empty {
		return validationErrorf("restore", "destination %s is not empty", cmd.Destination)
	}

	db, err := manifest.New(cmd.Location)
	if err != nil {
		return fmt.Errorf("engine: restore: open manifest db: %w", err)
	}
	v, err := db.Version(cmd.VersionName)
	if err != nil {
		return validationErrorf("restore", "version %s: %v", cmd.VersionName, err)
	}

	store, err := filestore.New(cmd.Location, e.storeOpts...)
	if err != nil {
		return fmt.Errorf("engine: restore: open filestore: %w", err)
	}

	objects, err := db.Objects(v)
	if err != nil {
		return fmt.Errorf("engine: restore: read objects for %s: %w", v.Name, err)
	}

	for _, obj := range objects {
		switch obj.Kind {
		case manifest.KindDir:
			dst := pathutil.ToAbs(cmd.Destination, obj.Dir.Path)
			if err := os.MkdirAll(dst, 0o755); err != nil {
				return fmt.Errorf("engine: restore: mkdir %s: %w", dst, err)
			}
		case manifest.KindFile:
			sf := filestore.StoredFile{
				RestorePath:    obj.File.RestorePath,
				SHA1Hash:       obj.File.SHA1Hash,
				StoredLocation: obj.File.StoredLocation,
				IsCompressed:   obj.File.IsCompressed,
			}
			if err := store.Restore(sf, cmd.Destination); err != nil {
				return fmt.Errorf("engine: restore: restore %s: %w", obj.File.RestorePath, err)
			}
		}
	}

	slog.Info("[engine] restore complete", "version", v.Name, "destination", cmd.Destination)
	return nil
}

func requireExists(op, label, path string) error {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return validationErrorf(op, "%s %s does not exist", label, path)
		}
		return fmt.Errorf("engine: %s: stat %s %s: %w", op, label, path, err)
	}
	return nil
}

// repoIsEmptyOrAbsent reports whether path is either absent or an empty
// directory, the precondition new/restore require of their destination.
func repoIsEmptyOrAbsent(path string) (bool, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		if os.IsNotExist(err) {
			return true, nil
		}
		return false, fmt.Errorf("engine: read dir %s: %w", path, err)
	}
	return len(entries) == 0, nil
}
