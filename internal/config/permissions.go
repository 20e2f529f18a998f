// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

//go:build !windows

package config

import (
	"io/fs"
	"log/slog"
	"os"

	aegiserr "github.com/sigil-dev/aegis/pkg/errors"
	"golang.org/x/sys/unix"
)

// CheckPermissions reports problems with the config file's mode and owner:
// it must not be readable by group or others, and it must belong to the
// current user. A missing path is not a problem.
func CheckPermissions(path string) []error {
	if path == "" {
		return nil
	}

	var st unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return []error{aegiserr.Errorf(aegiserr.CodeConfigLoadReadFailure, "stat %s: %w", path, err)}
	}

	var errs []error
	perm := fs.FileMode(st.Mode).Perm()
	const groupOrOtherRead fs.FileMode = 0o044
	if perm&groupOrOtherRead != 0 {
		errs = append(errs, aegiserr.Errorf(aegiserr.CodeConfigValidateInvalidValue,
			"%s has mode %#o; credentials may be readable by other users (want 0600)", path, perm))
	}
	if uid := uint32(os.Getuid()); st.Uid != uid {
		errs = append(errs, aegiserr.Errorf(aegiserr.CodeConfigValidateInvalidValue,
			"%s is owned by uid %d, not the current user (uid %d)", path, st.Uid, uid))
	}
	return errs
}

// WarnInsecurePermissions logs each CheckPermissions problem. It never fails
// startup.
func WarnInsecurePermissions(path string) {
	for _, err := range CheckPermissions(path) {
		slog.Warn("insecure config file", "path", path, "error", err)
	}
}
