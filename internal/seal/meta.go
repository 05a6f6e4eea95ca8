// Copyright 2025 StrongDM Inc
// SPDX-License-Identifier: Apache-2.0

package seal

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// MetaFilename is the fixed name of the repository-root file holding the
// wrapped DEK and KEK salt for an encrypted repository.
const MetaFilename = "meta.txt"

// Meta is the decoded content of meta.txt: kek_salt and dek_base64 at
// minimum, plus whatever other key="value" lines were present.
type Meta struct {
	KEKSalt   []byte
	DEKBase64 string
	Extra     map[string]string
}

// WriteMeta writes path as a sequence of key="value" lines, one per
// field, matching the format the spec's meta.txt collaborator contract
// requires.
func WriteMeta(path string, m Meta) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("seal: create %s: %w", path, err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	fmt.Fprintf(w, "kek_salt=%q\n", EncodeBase64(m.KEKSalt))
	fmt.Fprintf(w, "dek_base64=%q\n", m.DEKBase64)
	for k, v := range m.Extra {
		fmt.Fprintf(w, "%s=%q\n", k, v)
	}
	return w.Flush()
}

// ReadMeta parses a meta.txt file of key="value" lines. kek_salt is
// decoded from base64; dek_base64 is returned verbatim for UnsealDEK's
// caller to decode.
func ReadMeta(path string) (Meta, error) {
	f, err := os.Open(path)
	if err != nil {
		return Meta{}, fmt.Errorf("seal: open %s: %w", path, err)
	}
	defer f.Close()

	m := Meta{Extra: map[string]string{}}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		key, value, ok := parseMetaLine(line)
		if !ok {
			continue
		}
		switch key {
		case "kek_salt":
			salt, err := DecodeBase64(value)
			if err != nil {
				return Meta{}, fmt.Errorf("seal: decode kek_salt: %w", err)
			}
			m.KEKSalt = salt
		case "dek_base64":
			m.DEKBase64 = value
		default:
			m.Extra[key] = value
		}
	}
	if err := scanner.Err(); err != nil {
		return Meta{}, fmt.Errorf("seal: scan %s: %w", path, err)
	}
	if m.KEKSalt == nil || m.DEKBase64 == "" {
		return Meta{}, fmt.Errorf("seal: %s missing kek_salt or dek_base64", path)
	}
	return m, nil
}

func parseMetaLine(line string) (key, value string, ok bool) {
	i := strings.IndexByte(line, '=')
	if i < 0 {
		return "", "", false
	}
	key = strings.TrimSpace(line[:i])
	raw := strings.TrimSpace(line[i+1:])
	unquoted, err := strconv.Unquote(raw)
	if err != nil {
		return "", "", false
	}
	return key, unquoted, true
}
