package policy

// Copyright (C) 2025-2026 The Watt Authors
// SPDX-License-Identifier: BSD-3-Clause

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"watt/internal/config"
	"watt/internal/hal"
)

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for path, content := range files {
		full := filepath.Join(root, path)
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0755))
		require.NoError(t, os.WriteFile(full, []byte(content+"\n"), 0644))
	}
}

func newFakeSystem(t *testing.T, extra map[string]string) *hal.System {
	t.Helper()
	sysRoot := t.TempDir()
	procRoot := t.TempDir()
	files := map[string]string{}
	for _, cpu := range []string{"cpu0", "cpu1"} {
		base := "devices/system/cpu/" + cpu + "/cpufreq/"
		files[base+"scaling_driver"] = "intel_pstate"
		files[base+"scaling_governor"] = "powersave"
		files[base+"scaling_available_governors"] = "performance powersave schedutil"
		files[base+"energy_performance_preference"] = "balance_performance"
		files[base+"energy_performance_available_preferences"] = "default performance balance_performance power"
		files[base+"cpuinfo_min_freq"] = "400000"
		files[base+"cpuinfo_max_freq"] = "4700000"
		files[base+"scaling_min_freq"] = "400000"
		files[base+"scaling_max_freq"] = "4700000"
	}
	for path, content := range extra {
		files[path] = content
	}
	writeTree(t, sysRoot, files)
	writeTree(t, procRoot, map[string]string{
		"stat": "cpu0 50 0 50 400 0 0 0 0 0 0\ncpu1 50 0 50 400 0 0 0 0 0 0",
	})
	sys, err := hal.NewAtRoots(sysRoot, procRoot)
	require.NoError(t, err)
	return sys
}

func outcomes(ops []Operation, capability string) []Outcome {
	var result []Outcome
	for _, op := range ops {
		if op.Capability == capability {
			result = append(result, op.Outcome)
		}
	}
	return result
}

func TestGovernorAppliedThenSkipped(t *testing.T) {
	sys := newFakeSystem(t, nil)
	engine := New(sys)
	cfg := config.Default()
	profile := &config.Profile{Governor: "performance"}

	ops := engine.Apply(cfg, profile, nil)
	assert.Equal(t, []Outcome{OutcomeApplied, OutcomeApplied}, outcomes(ops, "governor"))

	// the observed value now equals the target: no writes on the second tick
	ops = engine.Apply(cfg, profile, nil)
	assert.Equal(t, []Outcome{OutcomeSkipped, OutcomeSkipped}, outcomes(ops, "governor"))
}

func TestUnsupportedGovernorDoesNotBlockOtherFields(t *testing.T) {
	sys := newFakeSystem(t, nil)
	engine := New(sys)
	cfg := config.Default()
	profile := &config.Profile{Governor: "ondemand", EPP: "power"}

	ops := engine.Apply(cfg, profile, nil)
	assert.Equal(t, []Outcome{OutcomeUnsupported, OutcomeUnsupported}, outcomes(ops, "governor"))
	assert.Equal(t, []Outcome{OutcomeApplied, OutcomeApplied}, outcomes(ops, "epp"))

	// the unsupported value was never written
	governor, err := sys.Governor(0)
	require.NoError(t, err)
	assert.Equal(t, "powersave", governor)
}

func TestFreqLimitsClampedAndOrdered(t *testing.T) {
	sys := newFakeSystem(t, nil)
	engine := New(sys)
	cfg := config.Default()
	min := uint64(100) // MHz, below the hardware floor of 400 MHz
	max := uint64(3000)
	profile := &config.Profile{MinFreqMHz: &min, MaxFreqMHz: &max}

	ops := engine.Apply(cfg, profile, nil)
	assert.Equal(t, []Outcome{OutcomeApplied, OutcomeApplied}, outcomes(ops, "freq_limits"))
	gotMin, gotMax, err := sys.FreqLimits(0)
	require.NoError(t, err)
	assert.Equal(t, uint64(400000), gotMin)
	assert.Equal(t, uint64(3000000), gotMax)
	assert.LessOrEqual(t, gotMin, gotMax)

	ops = engine.Apply(cfg, profile, nil)
	assert.Equal(t, []Outcome{OutcomeSkipped, OutcomeSkipped}, outcomes(ops, "freq_limits"))
}

func TestFixedApplyOrder(t *testing.T) {
	sys := newFakeSystem(t, map[string]string{
		"devices/system/cpu/intel_pstate/no_turbo": "0",
	})
	engine := New(sys)
	cfg := config.Default()
	cfg.BatteryChargeThresholds = &config.Thresholds{Start: 40, Stop: 80}
	min := uint64(800)
	profile := &config.Profile{Governor: "performance", EPP: "power", MinFreqMHz: &min}
	turboTarget := hal.TurboOff

	ops := engine.Apply(cfg, profile, &turboTarget)
	var order []string
	for _, op := range ops {
		if len(order) == 0 || order[len(order)-1] != op.Capability {
			order = append(order, op.Capability)
		}
	}
	assert.Equal(t, []string{"governor", "freq_limits", "epp", "turbo", "battery_thresholds"}, order)
}

func TestTurboApplied(t *testing.T) {
	sys := newFakeSystem(t, map[string]string{
		"devices/system/cpu/intel_pstate/no_turbo": "0",
	})
	engine := New(sys)
	cfg := config.Default()
	profile := &config.Profile{}

	target := hal.TurboOff
	ops := engine.Apply(cfg, profile, &target)
	assert.Equal(t, []Outcome{OutcomeApplied}, outcomes(ops, "turbo"))

	ops = engine.Apply(cfg, profile, &target)
	assert.Equal(t, []Outcome{OutcomeSkipped}, outcomes(ops, "turbo"))

	// nil means unmanaged this tick
	ops = engine.Apply(cfg, profile, nil)
	assert.Empty(t, outcomes(ops, "turbo"))
}

func TestThresholdsAppliedOncePerValue(t *testing.T) {
	sys := newFakeSystem(t, map[string]string{
		"class/power_supply/BAT0/type":                           "Battery",
		"class/power_supply/BAT0/charge_control_start_threshold": "0",
		"class/power_supply/BAT0/charge_control_end_threshold":   "100",
	})
	engine := New(sys)
	cfg := config.Default()
	cfg.BatteryChargeThresholds = &config.Thresholds{Start: 40, Stop: 80}
	profile := &config.Profile{}

	ops := engine.Apply(cfg, profile, nil)
	assert.Equal(t, []Outcome{OutcomeApplied}, outcomes(ops, "battery_thresholds"))

	ops = engine.Apply(cfg, profile, nil)
	assert.Equal(t, []Outcome{OutcomeSkipped}, outcomes(ops, "battery_thresholds"))
}

func TestPerProfileThresholdsOverrideGlobal(t *testing.T) {
	sys := newFakeSystem(t, map[string]string{
		"class/power_supply/BAT0/type":                           "Battery",
		"class/power_supply/BAT0/charge_control_start_threshold": "0",
		"class/power_supply/BAT0/charge_control_end_threshold":   "100",
	})
	engine := New(sys)
	cfg := config.Default()
	cfg.BatteryChargeThresholds = &config.Thresholds{Start: 40, Stop: 80}
	profile := &config.Profile{BatteryChargeThresholds: &config.Thresholds{Start: 50, Stop: 70}}

	engine.Apply(cfg, profile, nil)
	start, stop, err := sys.BatteryThresholds()
	require.NoError(t, err)
	assert.Equal(t, 50, start)
	assert.Equal(t, 70, stop)
}

func TestAbsentThresholdsUnmanaged(t *testing.T) {
	sys := newFakeSystem(t, map[string]string{
		"class/power_supply/BAT0/type":                           "Battery",
		"class/power_supply/BAT0/charge_control_start_threshold": "20",
		"class/power_supply/BAT0/charge_control_end_threshold":   "90",
	})
	engine := New(sys)
	cfg := config.Default()
	profile := &config.Profile{Governor: "performance"}

	ops := engine.Apply(cfg, profile, nil)
	assert.Empty(t, outcomes(ops, "battery_thresholds"))
	// the pair set by someone else is left alone
	start, stop, err := sys.BatteryThresholds()
	require.NoError(t, err)
	assert.Equal(t, 20, start)
	assert.Equal(t, 90, stop)
}

func TestProfileSwitchRewritesGovernor(t *testing.T) {
	// AC profile applies performance, then the battery profile applies
	// powersave after the source flips
	sys := newFakeSystem(t, nil)
	engine := New(sys)
	cfg := config.Default()
	cfg.Charger.Governor = "performance"
	cfg.Battery.Governor = "powersave"

	engine.Apply(cfg, cfg.ProfileFor(hal.SourceAC), nil)
	governor, err := sys.Governor(0)
	require.NoError(t, err)
	assert.Equal(t, "performance", governor)

	engine.Apply(cfg, cfg.ProfileFor(hal.SourceBattery), nil)
	governor, err = sys.Governor(0)
	require.NoError(t, err)
	assert.Equal(t, "powersave", governor)
}

func TestNormalizedComparison(t *testing.T) {
	sys := newFakeSystem(t, nil)
	engine := New(sys)
	cfg := config.Default()
	// case differences alone do not trigger a write
	profile := &config.Profile{Governor: "Powersave"}
	ops := engine.Apply(cfg, profile, nil)
	assert.Equal(t, []Outcome{OutcomeSkipped, OutcomeSkipped}, outcomes(ops, "governor"))
}
