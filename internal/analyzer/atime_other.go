// Copyright 2025 StrongDM Inc
// SPDX-License-Identifier: Apache-2.0

//go:build !linux

package analyzer

import (
	"os"
	"time"
)

// accessTime has no portable os.FileInfo equivalent outside the
// syscall.Stat_t fields Linux exposes; non-Linux builds fall back to the
// zero value rather than guessing at a platform-specific struct layout.
func accessTime(fi os.FileInfo) time.Time {
	return time.Time{}
}
