package daemon

// Copyright (C) 2025-2026 The Watt Authors
// SPDX-License-Identifier: BSD-3-Clause

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"watt/internal/hal"
	"watt/internal/telemetry"
)

// statsWriter appends one tab-separated record per tick to the configured
// stats file. The file is truncated at daemon start.
type statsWriter struct {
	path string
	file *os.File
}

func newStatsWriter(path string) (*statsWriter, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644) // #nosec G302
	if err != nil {
		return nil, fmt.Errorf("failed to open stats file %s: %w", path, err)
	}
	return &statsWriter{path: path, file: f}, nil
}

// write emits one record: timestamp, power_source, avg_usage, max_temp_c,
// battery_pct, battery_rate_w, turbo_state, poll_interval_sec. Unknown
// numeric fields are written as "-".
func (w *statsWriter) write(now time.Time, sample *telemetry.Sample, turboState hal.TurboState, interval time.Duration) {
	record := now.Format(time.RFC3339) +
		"\t" + sample.Source.String() +
		"\t" + formatOptional(sample.AvgUsage, sample.UsageKnown, 3) +
		"\t" + formatOptional(sample.MaxTempC, sample.TempKnown, 1) +
		"\t" + formatOptional(sample.Battery.ChargePct, sample.Battery.ChargeKnown, 1) +
		"\t" + formatOptional(sample.Battery.RateW, sample.Battery.RateKnown, 2) +
		"\t" + turboState.String() +
		"\t" + strconv.Itoa(int(interval/time.Second)) +
		"\n"
	if _, err := w.file.WriteString(record); err != nil {
		slog.Warn("failed to write stats record", slog.String("path", w.path), slog.String("error", err.Error()))
	}
}

func (w *statsWriter) close() {
	if err := w.file.Close(); err != nil {
		slog.Warn("failed to close stats file", slog.String("path", w.path), slog.String("error", err.Error()))
	}
}

func formatOptional(value float64, known bool, precision int) string {
	if !known {
		return "-"
	}
	return strconv.FormatFloat(value, 'f', precision, 64)
}
