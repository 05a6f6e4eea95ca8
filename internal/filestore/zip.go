// Copyright 2025 StrongDM Inc
// SPDX-License-Identifier: Apache-2.0

package filestore

import (
	"archive/zip"
	"compress/flate"
	"fmt"
	"io"
	"os"
	"sort"
)

// zipPartSize is the chunk size used to split a blob's content across
// ordered zip members. A single part is written whenever the content is
// no larger than this, which is the common case; larger content is split
// into as many parts as it needs.
const zipPartSize = 32 * 1024 * 1024

// writeZipParts writes src's content into dst as a zip archive of one or
// more ordered "partNNNN" members whose concatenated bytes reproduce the
// original stream, using best-compression deflate exactly as
// nabbar-golib's archive/zip writer registers its compressor.
func writeZipParts(dst io.Writer, src io.Reader) error {
	zw := zip.NewWriter(dst)
	zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, flate.BestCompression)
	})

	buf := make([]byte, zipPartSize)
	partNum := 0
	wroteAny := false
	for {
		n, readErr := io.ReadFull(src, buf)
		if n > 0 {
			partNum++
			w, err := zw.CreateHeader(&zip.FileHeader{
				Name:   fmt.Sprintf("part%04d", partNum),
				Method: zip.Deflate,
			})
			if err != nil {
				return fmt.Errorf("filestore: create zip member: %w", err)
			}
			if _, err := w.Write(buf[:n]); err != nil {
				return fmt.Errorf("filestore: write zip member: %w", err)
			}
			wroteAny = true
		}
		if readErr == io.EOF || readErr == io.ErrUnexpectedEOF {
			break
		}
		if readErr != nil {
			return fmt.Errorf("filestore: read source for compression: %w", readErr)
		}
	}

	if !wroteAny {
		// Empty file: still produce a valid, empty single-member archive
		// so restore has something to enumerate.
		if _, err := zw.CreateHeader(&zip.FileHeader{Name: "part0001", Method: zip.Deflate}); err != nil {
			return fmt.Errorf("filestore: create empty zip member: %w", err)
		}
	}

	if err := zw.Close(); err != nil {
		return fmt.Errorf("filestore: close zip writer: %w", err)
	}
	return nil
}

// readZipParts opens the zip archive at srcPath, enumerates its members
// in ascending name order, and concatenates their decompressed bytes to
// dst — the inverse of writeZipParts, and correct for any ordered-parts
// layout a compliant writer produced.
func readZipParts(srcPath string, dst io.Writer) error {
	f, err := os.Open(srcPath)
	if err != nil {
		return fmt.Errorf("filestore: open compressed blob %s: %w", srcPath, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("filestore: stat compressed blob %s: %w", srcPath, err)
	}

	zr, err := zip.NewReader(f, info.Size())
	if err != nil {
		return fmt.Errorf("filestore: open zip reader for %s: %w", srcPath, err)
	}

	members := make([]*zip.File, len(zr.File))
	copy(members, zr.File)
	sort.Slice(members, func(i, j int) bool { return members[i].Name < members[j].Name })

	for _, member := range members {
		if err := copyZipMember(dst, member); err != nil {
			return err
		}
	}
	return nil
}

func copyZipMember(dst io.Writer, member *zip.File) error {
	r, err := member.Open()
	if err != nil {
		return fmt.Errorf("filestore: open zip member %s: %w", member.Name, err)
	}
	defer r.Close()

	if _, err := io.Copy(dst, r); err != nil {
		return fmt.Errorf("filestore: copy zip member %s: %w", member.Name, err)
	}
	return nil
}
