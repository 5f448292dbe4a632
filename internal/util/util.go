/*
Package util includes utility/helper functions that may be useful to other modules.
*/
package util

// Copyright (C) 2025-2026 The Watt Authors
// SPDX-License-Identifier: BSD-3-Clause

import (
	"fmt"
	"io/fs"
	"os"
	"os/user"
	"path/filepath"
	"strconv"
	"strings"
)

// ExpandUser expands '~' to user's home directory, if found, otherwise returns original path
func ExpandUser(path string) string {
	usr, _ := user.Current()
	if path == "~" {
		return usr.HomeDir
	} else if strings.HasPrefix(path, "~"+string(os.PathSeparator)) {
		return filepath.Join(usr.HomeDir, path[2:])
	} else {
		return path
	}
}

// AbsPath returns absolute path after expanding '~' to user's home dir
// Useful when application is started by a process that isn't a shell.
// Use everywhere in place of filepath.Abs()
func AbsPath(path string) (string, error) {
	return filepath.Abs(ExpandUser(path))
}

// FileExists checks if a file exists at the given path.
// It returns a boolean indicating whether the file exists, and an error if the
// path refers to a non-regular file, e.g., a directory.
func FileExists(path string) (exists bool, err error) {
	var fileInfo fs.FileInfo
	fileInfo, err = os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			exists = false
			err = nil
			return
		}
		return
	}
	if !fileInfo.Mode().IsRegular() {
		err = fmt.Errorf("%s not a file", path)
		return
	}
	exists = true
	return
}

// DirectoryExists checks if the specified directory exists.
// It returns a boolean indicating whether the directory exists and an error if the
// path refers to anything other than a directory, e.g., a regular file.
func DirectoryExists(path string) (exists bool, err error) {
	var fileInfo fs.FileInfo
	fileInfo, err = os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			exists = false
			err = nil
			return
		}
		return
	}
	if !fileInfo.Mode().IsDir() {
		err = fmt.Errorf("%s not a directory", path)
		return
	}
	exists = true
	return
}

// ReadTrimmedString reads a sysfs-style text file and returns its content with
// surrounding whitespace and the trailing newline removed.
func ReadTrimmedString(path string) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(raw)), nil
}

// ReadInt reads a sysfs-style text file containing a single integer.
func ReadInt(path string) (int64, error) {
	s, err := ReadTrimmedString(path)
	if err != nil {
		return 0, err
	}
	val, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: unexpected content %q: %w", path, s, err)
	}
	return val, nil
}

// ReadFloat reads a sysfs-style text file containing a single number.
func ReadFloat(path string) (float64, error) {
	s, err := ReadTrimmedString(path)
	if err != nil {
		return 0, err
	}
	val, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: unexpected content %q: %w", path, s, err)
	}
	return val, nil
}

// WriteString writes a value to a sysfs-style text file with a trailing
// newline. The file must already exist — sysfs attributes are never created
// by writers, and the fake trees used in tests rely on the same behavior.
func WriteString(path string, value string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC, 0644) // #nosec G302
	if err != nil {
		return err
	}
	if _, err := f.WriteString(value + "\n"); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Clamp restricts value to the inclusive range [lo, hi].
func Clamp(value, lo, hi float64) float64 {
	if value < lo {
		return lo
	}
	if value > hi {
		return hi
	}
	return value
}

// NormalizeValue prepares a sysfs value for comparison: trimmed and case-folded.
func NormalizeValue(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
