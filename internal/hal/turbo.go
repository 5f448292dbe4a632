package hal

// Copyright (C) 2025-2026 The Watt Authors
// SPDX-License-Identifier: BSD-3-Clause

import (
	"path/filepath"

	"watt/internal/util"
)

// TurboState is the desired turbo-boost setting. Default means "remove any
// prior override" — for intel_pstate that is clearing no_turbo.
type TurboState int

const (
	TurboDefault TurboState = iota
	TurboOn
	TurboOff
)

func (t TurboState) String() string {
	switch t {
	case TurboOn:
		return "on"
	case TurboOff:
		return "off"
	}
	return "default"
}

type turboEndpointKind int

const (
	turboNone turboEndpointKind = iota
	turboIntelPstate                  // intel_pstate/no_turbo, inverted sense
	turboCpufreqBoost                 // cpufreq/boost
	turboAmdCpbBoost                  // amd_pstate/cpb_boost
)

type turboEndpoint struct {
	kind turboEndpointKind
	path string
}

func (e turboEndpoint) describe() string {
	switch e.kind {
	case turboIntelPstate:
		return "intel_pstate/no_turbo"
	case turboCpufreqBoost:
		return "cpufreq/boost"
	case turboAmdCpbBoost:
		return "amd_pstate/cpb_boost"
	}
	return "none"
}

// probeTurboEndpoint finds the driver-specific turbo toggle. The first
// existing endpoint wins; intel_pstate before the generic boost knob before
// the AMD-specific one.
func (s *System) probeTurboEndpoint() turboEndpoint {
	candidates := []turboEndpoint{
		{turboIntelPstate, filepath.Join(s.SysfsRoot, "devices/system/cpu/intel_pstate/no_turbo")},
		{turboCpufreqBoost, filepath.Join(s.SysfsRoot, "devices/system/cpu/cpufreq/boost")},
		{turboAmdCpbBoost, filepath.Join(s.SysfsRoot, "devices/system/cpu/amd_pstate/cpb_boost")},
	}
	for _, c := range candidates {
		if exists, _ := util.FileExists(c.path); exists {
			return c
		}
	}
	return turboEndpoint{kind: turboNone}
}

// TurboSupported reports whether any turbo toggle endpoint exists.
func (s *System) TurboSupported() bool {
	return s.turbo.kind != turboNone
}

// Turbo reads the current turbo setting from the probed endpoint.
func (s *System) Turbo() (TurboState, error) {
	if s.turbo.kind == turboNone {
		return TurboDefault, unsupportedErr("turbo", "")
	}
	raw, err := util.ReadInt(s.turbo.path)
	if err != nil {
		return TurboDefault, classifyIOErr("turbo", s.turbo.path, err)
	}
	enabled := raw != 0
	if s.turbo.kind == turboIntelPstate {
		// no_turbo=1 means turbo disabled
		enabled = raw == 0
	}
	if enabled {
		return TurboOn, nil
	}
	return TurboOff, nil
}

// SetTurbo applies the desired turbo state via the probed endpoint.
func (s *System) SetTurbo(state TurboState) error {
	if s.turbo.kind == turboNone {
		return unsupportedErr("turbo", "")
	}
	var value string
	switch s.turbo.kind {
	case turboIntelPstate:
		// inverted: no_turbo=1 disables turbo, and Default clears the override
		if state == TurboOff {
			value = "1"
		} else {
			value = "0"
		}
	default:
		if state == TurboOff {
			value = "0"
		} else {
			value = "1"
		}
	}
	return s.writeVerified("turbo", s.turbo.path, value)
}
