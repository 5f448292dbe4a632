package hal

// Copyright (C) 2025-2026 The Watt Authors
// SPDX-License-Identifier: BSD-3-Clause

import (
	"fmt"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"watt/internal/util"
)

// Governor reads the current scaling governor of the given CPU.
func (s *System) Governor(cpu int) (string, error) {
	path := s.cpufreqPath(cpu, "scaling_governor")
	value, err := util.ReadTrimmedString(path)
	if err != nil {
		return "", classifyIOErr("cpu_governor", path, err)
	}
	return value, nil
}

// SetGovernor writes the scaling governor of the given CPU. Names not offered
// in scaling_available_governors are rejected as Unsupported without touching
// sysfs.
func (s *System) SetGovernor(cpu int, name string) error {
	c := s.topology.CPUByID(cpu)
	if c == nil {
		return invalidArgErr("cpu_governor", fmt.Errorf("no such CPU %d", cpu))
	}
	if !c.AvailableGovernors.Contains(name) {
		return unsupportedErr("cpu_governor", s.cpufreqPath(cpu, "scaling_governor"))
	}
	return s.ForceGovernor(cpu, name)
}

// ForceGovernor writes the scaling governor without consulting
// scaling_available_governors. The kernel still has the final word; a
// rejected value surfaces as a HardwareError from the verification read.
func (s *System) ForceGovernor(cpu int, name string) error {
	return s.writeVerified("cpu_governor", s.cpufreqPath(cpu, "scaling_governor"), name)
}

// FreqLimits reads the current scaling_min_freq/scaling_max_freq pair in kHz.
func (s *System) FreqLimits(cpu int) (minKHz, maxKHz uint64, err error) {
	minPath := s.cpufreqPath(cpu, "scaling_min_freq")
	min, err := util.ReadInt(minPath)
	if err != nil {
		return 0, 0, classifyIOErr("cpu_freq_limits", minPath, err)
	}
	maxPath := s.cpufreqPath(cpu, "scaling_max_freq")
	max, err := util.ReadInt(maxPath)
	if err != nil {
		return 0, 0, classifyIOErr("cpu_freq_limits", maxPath, err)
	}
	return uint64(min), uint64(max), nil
}

// SetFreqLimits clamps the requested window into the hardware range and
// writes both limits. When both change, the write that widens the window goes
// first so the kernel never sees a transient min > max.
func (s *System) SetFreqLimits(cpu int, minKHz, maxKHz uint64) error {
	c := s.topology.CPUByID(cpu)
	if c == nil {
		return invalidArgErr("cpu_freq_limits", fmt.Errorf("no such CPU %d", cpu))
	}
	if minKHz > maxKHz {
		return invalidArgErr("cpu_freq_limits", fmt.Errorf("min %d kHz exceeds max %d kHz", minKHz, maxKHz))
	}
	minKHz = clampFreq(minKHz, c.MinFreqKHz, c.MaxFreqKHz)
	maxKHz = clampFreq(maxKHz, c.MinFreqKHz, c.MaxFreqKHz)

	currentMin, currentMax, err := s.FreqLimits(cpu)
	if err != nil {
		return err
	}
	writeMin := func() error {
		if minKHz == currentMin {
			return nil
		}
		return s.writeVerified("cpu_freq_limits", s.cpufreqPath(cpu, "scaling_min_freq"), strconv.FormatUint(minKHz, 10))
	}
	writeMax := func() error {
		if maxKHz == currentMax {
			return nil
		}
		return s.writeVerified("cpu_freq_limits", s.cpufreqPath(cpu, "scaling_max_freq"), strconv.FormatUint(maxKHz, 10))
	}
	// raising max widens, lowering min widens
	if maxKHz > currentMax {
		if err := writeMax(); err != nil {
			return err
		}
		return writeMin()
	}
	if err := writeMin(); err != nil {
		return err
	}
	return writeMax()
}

func clampFreq(value, lo, hi uint64) uint64 {
	if lo > 0 && value < lo {
		return lo
	}
	if hi > 0 && value > hi {
		return hi
	}
	return value
}

// EPP reads the energy_performance_preference of the given CPU.
func (s *System) EPP(cpu int) (string, error) {
	path := s.cpufreqPath(cpu, "energy_performance_preference")
	value, err := util.ReadTrimmedString(path)
	if err != nil {
		return "", classifyIOErr("epp", path, err)
	}
	return value, nil
}

// SetEPP writes the energy_performance_preference of the given CPU. Names not
// offered by the driver are rejected as Unsupported.
func (s *System) SetEPP(cpu int, name string) error {
	c := s.topology.CPUByID(cpu)
	if c == nil {
		return invalidArgErr("epp", fmt.Errorf("no such CPU %d", cpu))
	}
	path := s.cpufreqPath(cpu, "energy_performance_preference")
	if c.AvailableEPP.Cardinality() == 0 {
		return unsupportedErr("epp", path)
	}
	if !c.AvailableEPP.Contains(name) {
		return unsupportedErr("epp", path)
	}
	return s.writeVerified("epp", path, name)
}

// epbAliases are the symbolic names the kernel accepts for energy_perf_bias
// alongside the raw 0-15 range.
var epbAliases = map[string]int{
	"performance":         0,
	"balance-performance": 4,
	"normal":              6,
	"default":             6,
	"balance-power":       8,
	"power":               15,
}

// ParseEPB converts a raw 0-15 value or a symbolic alias to the integer the
// kernel stores.
func ParseEPB(value string) (int, error) {
	if v, ok := epbAliases[util.NormalizeValue(value)]; ok {
		return v, nil
	}
	v, err := strconv.Atoi(value)
	if err != nil || v < 0 || v > 15 {
		return 0, fmt.Errorf("EPB must be 0-15 or one of the symbolic names, got %q", value)
	}
	return v, nil
}

func (s *System) epbPath(cpu int) string {
	return filepath.Join(s.SysfsRoot, "devices/system/cpu", fmt.Sprintf("cpu%d", cpu), "power/energy_perf_bias")
}

// EPB reads the energy_perf_bias of the given CPU.
func (s *System) EPB(cpu int) (int, error) {
	path := s.epbPath(cpu)
	value, err := util.ReadInt(path)
	if err != nil {
		return 0, classifyIOErr("epb", path, err)
	}
	return int(value), nil
}

// SetEPB writes the energy_perf_bias of the given CPU.
func (s *System) SetEPB(cpu int, value int) error {
	if value < 0 || value > 15 {
		return invalidArgErr("epb", fmt.Errorf("EPB %d out of range 0-15", value))
	}
	path := s.epbPath(cpu)
	if exists, _ := util.FileExists(path); !exists {
		return unsupportedErr("epb", path)
	}
	return s.writeVerified("epb", path, strconv.Itoa(value))
}

func (s *System) platformProfilePath() string {
	return filepath.Join(s.SysfsRoot, "firmware/acpi/platform_profile")
}

// PlatformProfile reads the ACPI platform profile.
func (s *System) PlatformProfile() (string, error) {
	path := s.platformProfilePath()
	value, err := util.ReadTrimmedString(path)
	if err != nil {
		return "", classifyIOErr("platform_profile", path, err)
	}
	return value, nil
}

// PlatformProfileChoices returns the profiles the firmware offers, or nil
// when the platform has no profile support.
func (s *System) PlatformProfileChoices() []string {
	choices, err := util.ReadTrimmedString(filepath.Join(s.SysfsRoot, "firmware/acpi/platform_profile_choices"))
	if err != nil {
		return nil
	}
	return strings.Fields(choices)
}

// SetPlatformProfile writes the ACPI platform profile. Names not listed in
// platform_profile_choices are rejected as Unsupported.
func (s *System) SetPlatformProfile(name string) error {
	path := s.platformProfilePath()
	if exists, _ := util.FileExists(path); !exists {
		return unsupportedErr("platform_profile", path)
	}
	choices := s.PlatformProfileChoices()
	if len(choices) > 0 && !slices.Contains(choices, name) {
		return unsupportedErr("platform_profile", path)
	}
	return s.writeVerified("platform_profile", path, name)
}
