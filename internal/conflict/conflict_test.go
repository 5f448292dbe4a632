package conflict

// Copyright (C) 2025-2026 The Watt Authors
// SPDX-License-Identifier: BSD-3-Clause

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeProc(t *testing.T, processes map[int]string) string {
	t.Helper()
	root := t.TempDir()
	for pid, comm := range processes {
		pidDir := filepath.Join(root, strconv.Itoa(pid))
		require.NoError(t, os.MkdirAll(pidDir, 0755))
		require.NoError(t, os.WriteFile(filepath.Join(pidDir, "comm"), []byte(comm+"\n"), 0644))
	}
	// non-PID entries must be skipped
	require.NoError(t, os.MkdirAll(filepath.Join(root, "sys"), 0755))
	return root
}

func TestScanFindsKnownManagers(t *testing.T) {
	root := fakeProc(t, map[int]string{
		1:    "systemd",
		431:  "tlp",
		977:  "firefox",
		1204: "thermald",
	})
	findings, err := Scan(root)
	require.NoError(t, err)
	require.Len(t, findings, 2)
	names := []string{findings[0].Name, findings[1].Name}
	assert.Contains(t, names, "tlp")
	assert.Contains(t, names, "thermald")
	for _, f := range findings {
		assert.NotEmpty(t, f.Surface)
		assert.Greater(t, f.PID, 0)
	}
}

func TestScanReportsEachManagerOnce(t *testing.T) {
	root := fakeProc(t, map[int]string{
		100: "tlp",
		200: "tlp",
	})
	findings, err := Scan(root)
	require.NoError(t, err)
	assert.Len(t, findings, 1)
}

func TestScanCleanSystem(t *testing.T) {
	root := fakeProc(t, map[int]string{
		1:  "systemd",
		42: "bash",
	})
	findings, err := Scan(root)
	require.NoError(t, err)
	assert.Empty(t, findings)
}

func TestWarnNeverFatal(t *testing.T) {
	findings := Warn(filepath.Join(t.TempDir(), "missing"))
	assert.Nil(t, findings)
}
