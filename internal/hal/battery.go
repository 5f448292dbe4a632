package hal

// Copyright (C) 2025-2026 The Watt Authors
// SPDX-License-Identifier: BSD-3-Clause

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"

	"watt/internal/util"
)

// BatteryVendor selects the charge-threshold write path. Detection happens
// once per scan; adding a vendor adds one arm to the dispatch below.
type BatteryVendor int

const (
	VendorOther BatteryVendor = iota
	VendorStandard
	VendorThinkPad
	VendorAsus
	VendorHuawei
)

func (v BatteryVendor) String() string {
	switch v {
	case VendorStandard:
		return "standard"
	case VendorThinkPad:
		return "thinkpad"
	case VendorAsus:
		return "asus"
	case VendorHuawei:
		return "huawei"
	}
	return "other"
}

// BatteryStatus mirrors the kernel's power_supply status strings.
type BatteryStatus int

const (
	StatusUnknown BatteryStatus = iota
	StatusCharging
	StatusDischarging
	StatusFull
	StatusNotCharging
)

func (s BatteryStatus) String() string {
	switch s {
	case StatusCharging:
		return "charging"
	case StatusDischarging:
		return "discharging"
	case StatusFull:
		return "full"
	case StatusNotCharging:
		return "not charging"
	}
	return "unknown"
}

func parseBatteryStatus(raw string) BatteryStatus {
	switch util.NormalizeValue(raw) {
	case "charging":
		return StatusCharging
	case "discharging":
		return StatusDischarging
	case "full":
		return StatusFull
	case "not charging":
		return StatusNotCharging
	}
	return StatusUnknown
}

// BatteryReading is one battery's state at read time. PowerW is the
// instantaneous draw from the kernel when the supply reports it; rate
// smoothing is the sampler's job.
type BatteryReading struct {
	Name            string
	Present         bool
	ChargePct       float64
	ChargeKnown     bool
	Status          BatteryStatus
	PowerW          float64
	PowerKnown      bool
	EnergyFullWh    float64
	EnergyFullKnown bool
}

// PowerSource is the aggregate AC/battery judgement over all non-ignored
// power supplies.
type PowerSource int

const (
	SourceAC PowerSource = iota
	SourceBattery
)

func (p PowerSource) String() string {
	if p == SourceBattery {
		return "battery"
	}
	return "ac"
}

func (s *System) powerSupplyRoot() string {
	return filepath.Join(s.SysfsRoot, "class/power_supply")
}

// findBatteries returns the names of all supplies whose type is Battery, for
// threshold dispatch. Peripheral batteries of that type are not filtered out.
func (s *System) findBatteries() []string {
	entries, err := os.ReadDir(s.powerSupplyRoot())
	if err != nil {
		return nil
	}
	var names []string
	for _, entry := range entries {
		supplyType, err := util.ReadTrimmedString(filepath.Join(s.powerSupplyRoot(), entry.Name(), "type"))
		if err != nil || util.NormalizeValue(supplyType) != "battery" {
			continue
		}
		names = append(names, entry.Name())
	}
	return names
}

// huaweiThresholdCandidates lists the endpoint locations seen across kernel
// versions; the first existing path wins.
func (s *System) huaweiThresholdCandidates() []string {
	return []string{
		filepath.Join(s.SysfsRoot, "devices/platform/huawei-wmi/charge_control_thresholds"),
		filepath.Join(s.powerSupplyRoot(), "huawei-charge_control_thresholds"),
	}
}

func (s *System) detectBatteryVendor() BatteryVendor {
	for _, candidate := range s.huaweiThresholdCandidates() {
		if exists, _ := util.FileExists(candidate); exists {
			return VendorHuawei
		}
	}
	if exists, _ := util.DirectoryExists(filepath.Join(s.SysfsRoot, "devices/platform/thinkpad_acpi")); exists {
		return VendorThinkPad
	}
	if exists, _ := util.DirectoryExists(filepath.Join(s.SysfsRoot, "devices/platform/asus-nb-wmi")); exists {
		return VendorAsus
	}
	for _, name := range s.batteries {
		manufacturer, err := util.ReadTrimmedString(filepath.Join(s.powerSupplyRoot(), name, "manufacturer"))
		if err != nil {
			continue
		}
		manufacturer = util.NormalizeValue(manufacturer)
		if strings.Contains(manufacturer, "lenovo") {
			return VendorThinkPad
		}
		if strings.Contains(manufacturer, "asus") {
			return VendorAsus
		}
	}
	for _, name := range s.batteries {
		startPath := filepath.Join(s.powerSupplyRoot(), name, "charge_control_start_threshold")
		endPath := filepath.Join(s.powerSupplyRoot(), name, "charge_control_end_threshold")
		startExists, _ := util.FileExists(startPath)
		endExists, _ := util.FileExists(endPath)
		if startExists && endExists {
			return VendorStandard
		}
	}
	return VendorOther
}

// BatteryVendor returns the vendor detected during the last scan.
func (s *System) BatteryVendor() BatteryVendor {
	return s.vendor
}

// ReadBatteries reads the state of all battery-class supplies, skipping names
// in the ignore set (exact match).
func (s *System) ReadBatteries(ignore mapset.Set[string]) ([]BatteryReading, error) {
	entries, err := os.ReadDir(s.powerSupplyRoot())
	if err != nil {
		return nil, classifyIOErr("read_batteries", s.powerSupplyRoot(), err)
	}
	var readings []BatteryReading
	for _, entry := range entries {
		name := entry.Name()
		if ignore != nil && ignore.Contains(name) {
			continue
		}
		dir := filepath.Join(s.powerSupplyRoot(), name)
		supplyType, err := util.ReadTrimmedString(filepath.Join(dir, "type"))
		if err != nil || util.NormalizeValue(supplyType) != "battery" {
			continue
		}
		reading := BatteryReading{Name: name}
		if present, err := util.ReadInt(filepath.Join(dir, "present")); err == nil {
			reading.Present = present == 1
		} else {
			// absence of the present attribute means the battery is there
			reading.Present = true
		}
		if capacity, err := util.ReadFloat(filepath.Join(dir, "capacity")); err == nil {
			reading.ChargePct = capacity
			reading.ChargeKnown = true
		}
		if status, err := util.ReadTrimmedString(filepath.Join(dir, "status")); err == nil {
			reading.Status = parseBatteryStatus(status)
		}
		reading.PowerW, reading.PowerKnown = s.readBatteryPowerW(dir)
		reading.EnergyFullWh, reading.EnergyFullKnown = s.readBatteryEnergyFullWh(dir)
		readings = append(readings, reading)
	}
	return readings, nil
}

// readBatteryPowerW returns the instantaneous draw in watts. power_now is
// preferred; current_now * voltage_now is the fallback some ACPI batteries
// offer instead.
func (s *System) readBatteryPowerW(dir string) (float64, bool) {
	if powerUW, err := util.ReadFloat(filepath.Join(dir, "power_now")); err == nil {
		return powerUW / 1e6, true
	}
	currentUA, err := util.ReadFloat(filepath.Join(dir, "current_now"))
	if err != nil {
		return 0, false
	}
	voltageUV, err := util.ReadFloat(filepath.Join(dir, "voltage_now"))
	if err != nil {
		return 0, false
	}
	return currentUA * voltageUV / 1e12, true
}

// readBatteryEnergyFullWh returns the full-charge capacity in watt-hours, used to
// turn a charge-percentage delta into a power estimate when the supply does
// not report instantaneous draw.
func (s *System) readBatteryEnergyFullWh(dir string) (float64, bool) {
	if energyUWh, err := util.ReadFloat(filepath.Join(dir, "energy_full")); err == nil {
		return energyUWh / 1e6, true
	}
	chargeUAh, err := util.ReadFloat(filepath.Join(dir, "charge_full"))
	if err != nil {
		return 0, false
	}
	voltageUV, err := util.ReadFloat(filepath.Join(dir, "voltage_min_design"))
	if err != nil {
		return 0, false
	}
	return chargeUAh * voltageUV / 1e12, true
}

// PowerSource aggregates the non-ignored mains supplies: AC if any is online.
// A system with no mains entry at all is treated as AC (desktop).
func (s *System) PowerSource(ignore mapset.Set[string]) (PowerSource, error) {
	entries, err := os.ReadDir(s.powerSupplyRoot())
	if err != nil {
		return SourceAC, classifyIOErr("power_source", s.powerSupplyRoot(), err)
	}
	sawMains := false
	for _, entry := range entries {
		name := entry.Name()
		if ignore != nil && ignore.Contains(name) {
			continue
		}
		dir := filepath.Join(s.powerSupplyRoot(), name)
		supplyType, err := util.ReadTrimmedString(filepath.Join(dir, "type"))
		if err != nil {
			continue
		}
		switch util.NormalizeValue(supplyType) {
		case "mains", "usb", "ups":
			sawMains = true
			if online, err := util.ReadInt(filepath.Join(dir, "online")); err == nil && online == 1 {
				return SourceAC, nil
			}
		}
	}
	if !sawMains {
		return SourceAC, nil
	}
	return SourceBattery, nil
}

// BatteryThresholds reads the current charge threshold pair. For vendors that
// store only the stop value, start is reported as 0.
func (s *System) BatteryThresholds() (start, stop int, err error) {
	switch s.vendor {
	case VendorHuawei:
		for _, candidate := range s.huaweiThresholdCandidates() {
			raw, readErr := util.ReadTrimmedString(candidate)
			if readErr != nil {
				continue
			}
			fields := strings.Fields(raw)
			if len(fields) != 2 {
				return 0, 0, newError(KindHardwareError, "battery_thresholds", candidate, fmt.Errorf("unexpected content %q", raw))
			}
			start, _ = strconv.Atoi(fields[0])
			stop, _ = strconv.Atoi(fields[1])
			return start, stop, nil
		}
		return 0, 0, unsupportedErr("battery_thresholds", "")
	case VendorAsus:
		for _, name := range s.batteries {
			endPath := filepath.Join(s.powerSupplyRoot(), name, "charge_control_end_threshold")
			if value, readErr := util.ReadInt(endPath); readErr == nil {
				return 0, int(value), nil
			}
		}
		return 0, 0, unsupportedErr("battery_thresholds", "")
	case VendorStandard, VendorThinkPad:
		for _, name := range s.batteries {
			startPath := filepath.Join(s.powerSupplyRoot(), name, "charge_control_start_threshold")
			endPath := filepath.Join(s.powerSupplyRoot(), name, "charge_control_end_threshold")
			startVal, startErr := util.ReadInt(startPath)
			endVal, endErr := util.ReadInt(endPath)
			if startErr != nil || endErr != nil {
				continue
			}
			return int(startVal), int(endVal), nil
		}
		return 0, 0, unsupportedErr("battery_thresholds", "")
	}
	return 0, 0, unsupportedErr("battery_thresholds", "")
}

// SetBatteryThresholds applies the (start, stop) pair via the vendor path.
// The pair is atomic in intent: if the second write of a two-file vendor
// fails, the first is rolled back so neither persists.
func (s *System) SetBatteryThresholds(start, stop int) error {
	if start < 0 || stop > 100 || start >= stop {
		return invalidArgErr("battery_thresholds", fmt.Errorf("thresholds must satisfy 0 <= start < stop <= 100, got (%d, %d)", start, stop))
	}
	switch s.vendor {
	case VendorHuawei:
		var lastErr error
		for _, candidate := range s.huaweiThresholdCandidates() {
			if exists, _ := util.FileExists(candidate); !exists {
				continue
			}
			if err := util.WriteString(candidate, fmt.Sprintf("%d %d", start, stop)); err != nil {
				lastErr = classifyIOErr("battery_thresholds", candidate, err)
				continue
			}
			return nil
		}
		if lastErr != nil {
			return lastErr
		}
		return unsupportedErr("battery_thresholds", "")
	case VendorAsus:
		// single-value interface: the firmware only stores the stop threshold
		slog.Warn("battery start threshold not supported on this platform, ignoring",
			slog.Int("start", start), slog.Int("stop", stop))
		applied := false
		for _, name := range s.batteries {
			endPath := filepath.Join(s.powerSupplyRoot(), name, "charge_control_end_threshold")
			if exists, _ := util.FileExists(endPath); !exists {
				continue
			}
			if err := s.writeVerified("battery_thresholds", endPath, strconv.Itoa(stop)); err != nil {
				return err
			}
			applied = true
		}
		if !applied {
			return unsupportedErr("battery_thresholds", "")
		}
		return nil
	case VendorStandard, VendorThinkPad:
		applied := false
		for _, name := range s.batteries {
			startPath := filepath.Join(s.powerSupplyRoot(), name, "charge_control_start_threshold")
			endPath := filepath.Join(s.powerSupplyRoot(), name, "charge_control_end_threshold")
			startExists, _ := util.FileExists(startPath)
			endExists, _ := util.FileExists(endPath)
			if !startExists || !endExists {
				continue
			}
			if err := s.writeThresholdPair(name, startPath, endPath, start, stop); err != nil {
				return err
			}
			applied = true
		}
		if !applied {
			return unsupportedErr("battery_thresholds", "")
		}
		return nil
	}
	return unsupportedErr("battery_thresholds", "")
}

// writeThresholdPair orders the two writes so the firmware never sees
// start >= stop. ThinkPad firmware rejects a start write at or above the
// currently stored stop, so the stop goes first whenever it must rise to make
// room.
func (s *System) writeThresholdPair(battery, startPath, endPath string, start, stop int) error {
	currentStop, err := util.ReadInt(endPath)
	if err != nil {
		return classifyIOErr("battery_thresholds", endPath, err)
	}
	currentStart, err := util.ReadInt(startPath)
	if err != nil {
		return classifyIOErr("battery_thresholds", startPath, err)
	}

	first, second := startPath, endPath
	firstVal, secondVal := start, stop
	if start >= int(currentStop) {
		first, second = endPath, startPath
		firstVal, secondVal = stop, start
	}
	if err := s.writeVerified("battery_thresholds", first, strconv.Itoa(firstVal)); err != nil {
		return err
	}
	if err := s.writeVerified("battery_thresholds", second, strconv.Itoa(secondVal)); err != nil {
		// roll back the first write so the pair stays consistent
		rollback := strconv.FormatInt(currentStart, 10)
		if first == endPath {
			rollback = strconv.FormatInt(currentStop, 10)
		}
		if rollbackErr := util.WriteString(first, rollback); rollbackErr != nil {
			slog.Warn("battery threshold rollback failed",
				slog.String("battery", battery), slog.String("error", rollbackErr.Error()))
		}
		return err
	}
	return nil
}
