package daemon

// Copyright (C) 2025-2026 The Watt Authors
// SPDX-License-Identifier: BSD-3-Clause

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"watt/internal/hal"
	"watt/internal/telemetry"
)

func TestStatsRecordFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stats")
	w, err := newStatsWriter(path)
	require.NoError(t, err)

	now := time.Date(2026, 3, 14, 10, 30, 0, 0, time.UTC)
	sample := &telemetry.Sample{
		At:         now,
		Source:     hal.SourceBattery,
		AvgUsage:   0.125,
		UsageKnown: true,
		MaxTempC:   61.5,
		TempKnown:  true,
		Battery: telemetry.BatterySummary{
			Present:     true,
			ChargePct:   55,
			ChargeKnown: true,
			RateW:       -12.5,
			RateKnown:   true,
		},
	}
	w.write(now, sample, hal.TurboOff, 5*time.Second)
	w.close()

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	line := strings.TrimSuffix(string(raw), "\n")
	fields := strings.Split(line, "\t")
	require.Len(t, fields, 8)
	assert.Equal(t, "2026-03-14T10:30:00Z", fields[0])
	assert.Equal(t, "battery", fields[1])
	assert.Equal(t, "0.125", fields[2])
	assert.Equal(t, "61.5", fields[3])
	assert.Equal(t, "55.0", fields[4])
	assert.Equal(t, "-12.50", fields[5])
	assert.Equal(t, "off", fields[6])
	assert.Equal(t, "5", fields[7])
}

func TestStatsUnknownFieldsDashed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stats")
	w, err := newStatsWriter(path)
	require.NoError(t, err)

	now := time.Now()
	w.write(now, &telemetry.Sample{At: now, Source: hal.SourceAC}, hal.TurboOn, 8*time.Second)
	w.close()

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	fields := strings.Split(strings.TrimSuffix(string(raw), "\n"), "\t")
	require.Len(t, fields, 8)
	assert.Equal(t, "ac", fields[1])
	assert.Equal(t, "-", fields[2])
	assert.Equal(t, "-", fields[3])
	assert.Equal(t, "-", fields[4])
	assert.Equal(t, "-", fields[5])
}

func TestStatsTruncatedOnStart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stats")
	require.NoError(t, os.WriteFile(path, []byte("stale record\n"), 0644))
	w, err := newStatsWriter(path)
	require.NoError(t, err)
	w.close()
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Empty(t, raw)
}
