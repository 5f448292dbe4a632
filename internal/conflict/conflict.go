// Package conflict probes for other power management daemons that write the
// same sysfs files watt manages. Findings are warnings only; the operator
// decides whether to stop the other manager.
package conflict

// Copyright (C) 2025-2026 The Watt Authors
// SPDX-License-Identifier: BSD-3-Clause

import (
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	mapset "github.com/deckarep/golang-set/v2"
)

// contestedSurfaces maps known manager process names to the sysfs surface
// they are likely to fight over.
var contestedSurfaces = map[string]string{
	"tlp":                   "scaling_governor, energy_performance_preference, charge_control_*_threshold",
	"auto-cpufreq":          "scaling_governor, intel_pstate/no_turbo, cpufreq/boost",
	"cpupower":              "scaling_governor, scaling_min_freq, scaling_max_freq",
	"thermald":              "intel_pstate limits, thermal cooling devices",
	"power-profiles-daemon": "platform_profile, energy_performance_preference",
	"tuned":                 "scaling_governor, energy_perf_bias",
}

// knownManagers is the set of comm names the scan looks for.
var knownManagers = func() mapset.Set[string] {
	set := mapset.NewSet[string]()
	for name := range contestedSurfaces {
		set.Add(name)
	}
	return set
}()

// Finding names one running conflicting manager.
type Finding struct {
	PID     int
	Name    string
	Surface string
}

// Scan walks /proc/*/comm looking for known power managers. Each distinct
// manager is reported once even if it runs multiple processes.
func Scan(procfsRoot string) ([]Finding, error) {
	entries, err := os.ReadDir(procfsRoot)
	if err != nil {
		return nil, err
	}
	seen := mapset.NewSet[string]()
	var findings []Finding
	for _, entry := range entries {
		pid, err := strconv.Atoi(entry.Name())
		if err != nil {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(procfsRoot, entry.Name(), "comm"))
		if err != nil {
			continue
		}
		name := string(raw)
		if n := len(name); n > 0 && name[n-1] == '\n' {
			name = name[:n-1]
		}
		if !knownManagers.Contains(name) || seen.Contains(name) {
			continue
		}
		seen.Add(name)
		findings = append(findings, Finding{PID: pid, Name: name, Surface: contestedSurfaces[name]})
	}
	return findings, nil
}

// Warn runs a scan and logs one warning per finding. Never fatal; a scan
// failure is only logged at debug level.
func Warn(procfsRoot string) []Finding {
	findings, err := Scan(procfsRoot)
	if err != nil {
		slog.Debug("conflict scan failed", slog.String("error", err.Error()))
		return nil
	}
	for _, f := range findings {
		slog.Warn("another power manager is running and may contest the same sysfs files",
			slog.String("process", f.Name),
			slog.Int("pid", f.PID),
			slog.String("contested", f.Surface),
		)
	}
	return findings
}
