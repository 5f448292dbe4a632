package hal

// Copyright (C) 2025-2026 The Watt Authors
// SPDX-License-Identifier: BSD-3-Clause

import (
	"os"
	"path/filepath"
	"strings"

	"watt/internal/util"
)

// MaxTemperatureC scans the thermal zones and hwmon sensors and returns the
// hottest reading in °C. Returns false when no sensor produced a value — the
// caller treats the thermal constraint as absent, never as zero degrees.
func (s *System) MaxTemperatureC() (float64, bool) {
	maxMilliC := int64(0)
	found := false

	thermalRoot := filepath.Join(s.SysfsRoot, "class/thermal")
	if entries, err := os.ReadDir(thermalRoot); err == nil {
		for _, entry := range entries {
			if !strings.HasPrefix(entry.Name(), "thermal_zone") {
				continue
			}
			value, err := util.ReadInt(filepath.Join(thermalRoot, entry.Name(), "temp"))
			if err != nil {
				continue
			}
			if !found || value > maxMilliC {
				maxMilliC = value
				found = true
			}
		}
	}

	hwmonRoot := filepath.Join(s.SysfsRoot, "class/hwmon")
	if entries, err := os.ReadDir(hwmonRoot); err == nil {
		for _, entry := range entries {
			dir := filepath.Join(hwmonRoot, entry.Name())
			inputs, err := filepath.Glob(filepath.Join(dir, "temp*_input"))
			if err != nil {
				continue
			}
			for _, input := range inputs {
				value, err := util.ReadInt(input)
				if err != nil {
					continue
				}
				if !found || value > maxMilliC {
					maxMilliC = value
					found = true
				}
			}
		}
	}

	if !found {
		return 0, false
	}
	return float64(maxMilliC) / 1000.0, true
}
