// Package hal is the hardware abstraction layer over Linux sysfs/procfs. It
// exposes capability-typed operations (probe + apply) for CPU frequency
// scaling, turbo boost, energy/performance hints, platform profiles, battery
// charge thresholds, and the telemetry read paths. Vendor-specific battery
// quirks are dispatched in one place here; nothing above this package touches
// sysfs paths.
package hal

// Copyright (C) 2025-2026 The Watt Authors
// SPDX-License-Identifier: BSD-3-Clause

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"

	"watt/internal/util"
)

// CPU describes one logical CPU's scaling capabilities. Immutable after
// discovery.
type CPU struct {
	ID                 int
	ScalingDriver      string
	AvailableGovernors mapset.Set[string]
	AvailableEPP       mapset.Set[string]
	MinFreqKHz         uint64
	MaxFreqKHz         uint64
}

// Topology is the set of logical CPUs discovered at startup. Re-read on
// Rescan when sysfs changes (hotplug).
type Topology struct {
	CPUs []CPU
}

// LogicalCount returns the number of discovered logical CPUs.
func (t *Topology) LogicalCount() int {
	return len(t.CPUs)
}

// CPUByID returns the CPU with the given ID, or nil.
func (t *Topology) CPUByID(id int) *CPU {
	for i := range t.CPUs {
		if t.CPUs[i].ID == id {
			return &t.CPUs[i]
		}
	}
	return nil
}

// System is the HAL entry point. All paths are resolved under SysfsRoot and
// ProcfsRoot so tests can point it at a fake tree. The only cached state is
// read-only topology and capability probe results; every read goes to the
// kernel.
type System struct {
	SysfsRoot  string
	ProcfsRoot string

	topology  *Topology
	turbo     turboEndpoint
	vendor    BatteryVendor
	batteries []string // battery directory names under class/power_supply, e.g. BAT0
}

// New discovers the local system under /sys and /proc.
func New() (*System, error) {
	return NewAtRoots("/sys", "/proc")
}

// NewAtRoots discovers a system under the given sysfs/procfs roots.
func NewAtRoots(sysfsRoot, procfsRoot string) (*System, error) {
	s := &System{SysfsRoot: sysfsRoot, ProcfsRoot: procfsRoot}
	if err := s.Rescan(); err != nil {
		return nil, err
	}
	return s, nil
}

// Rescan re-runs topology discovery and capability probing. Telemetry state
// held by callers is unaffected.
func (s *System) Rescan() error {
	topology, err := s.discoverTopology()
	if err != nil {
		return err
	}
	s.topology = topology
	s.turbo = s.probeTurboEndpoint()
	s.batteries = s.findBatteries()
	s.vendor = s.detectBatteryVendor()
	slog.Debug("hardware scan complete",
		slog.Int("cpus", topology.LogicalCount()),
		slog.String("turbo", s.turbo.describe()),
		slog.String("batteryVendor", s.vendor.String()),
	)
	return nil
}

// Topology returns the most recently discovered CPU topology.
func (s *System) Topology() *Topology {
	return s.topology
}

var cpuDirRegex = regexp.MustCompile(`^cpu([0-9]+)$`)

func (s *System) discoverTopology() (*Topology, error) {
	cpuRoot := filepath.Join(s.SysfsRoot, "devices/system/cpu")
	entries, err := os.ReadDir(cpuRoot)
	if err != nil {
		return nil, classifyIOErr("topology", cpuRoot, err)
	}
	topology := &Topology{}
	for _, entry := range entries {
		match := cpuDirRegex.FindStringSubmatch(entry.Name())
		if match == nil {
			continue
		}
		id, _ := strconv.Atoi(match[1])
		cpufreqDir := filepath.Join(cpuRoot, entry.Name(), "cpufreq")
		if exists, _ := util.DirectoryExists(cpufreqDir); !exists {
			// off-line or no cpufreq support, skip
			continue
		}
		cpu := CPU{
			ID:                 id,
			AvailableGovernors: mapset.NewSet[string](),
			AvailableEPP:       mapset.NewSet[string](),
		}
		if driver, err := util.ReadTrimmedString(filepath.Join(cpufreqDir, "scaling_driver")); err == nil {
			cpu.ScalingDriver = driver
		}
		if governors, err := util.ReadTrimmedString(filepath.Join(cpufreqDir, "scaling_available_governors")); err == nil {
			for _, g := range strings.Fields(governors) {
				cpu.AvailableGovernors.Add(g)
			}
		}
		if preferences, err := util.ReadTrimmedString(filepath.Join(cpufreqDir, "energy_performance_available_preferences")); err == nil {
			for _, p := range strings.Fields(preferences) {
				cpu.AvailableEPP.Add(p)
			}
		}
		if min, err := util.ReadInt(filepath.Join(cpufreqDir, "cpuinfo_min_freq")); err == nil {
			cpu.MinFreqKHz = uint64(min)
		}
		if max, err := util.ReadInt(filepath.Join(cpufreqDir, "cpuinfo_max_freq")); err == nil {
			cpu.MaxFreqKHz = uint64(max)
		}
		topology.CPUs = append(topology.CPUs, cpu)
	}
	if len(topology.CPUs) == 0 {
		return nil, newError(KindIoError, "topology", cpuRoot, fmt.Errorf("no CPUs with cpufreq support found"))
	}
	sort.Slice(topology.CPUs, func(i, j int) bool { return topology.CPUs[i].ID < topology.CPUs[j].ID })
	return topology, nil
}

func (s *System) cpufreqPath(cpu int, file string) string {
	return filepath.Join(s.SysfsRoot, "devices/system/cpu", fmt.Sprintf("cpu%d", cpu), "cpufreq", file)
}

// writeVerified writes value to path, then reads it back. A successful write
// whose read-back differs is a HardwareError — the kernel rejected or
// adjusted the value without failing the syscall.
func (s *System) writeVerified(op, path, value string) error {
	if err := util.WriteString(path, value); err != nil {
		return classifyIOErr(op, path, err)
	}
	observed, err := util.ReadTrimmedString(path)
	if err != nil {
		return classifyIOErr(op, path, err)
	}
	if util.NormalizeValue(observed) != util.NormalizeValue(value) {
		return newError(KindHardwareError, op, path, fmt.Errorf("wrote %q, read back %q", value, observed))
	}
	return nil
}
