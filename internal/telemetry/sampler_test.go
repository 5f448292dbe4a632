package telemetry

// Copyright (C) 2025-2026 The Watt Authors
// SPDX-License-Identifier: BSD-3-Clause

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"watt/internal/hal"
)

type fakeTree struct {
	sysRoot  string
	procRoot string
}

func (f fakeTree) write(t *testing.T, files map[string]string) {
	t.Helper()
	for path, content := range files {
		full := filepath.Join(f.sysRoot, path)
		if path == "stat" {
			full = filepath.Join(f.procRoot, path)
		}
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0755))
		require.NoError(t, os.WriteFile(full, []byte(content+"\n"), 0644))
	}
}

func newFakeTree(t *testing.T, files map[string]string) (fakeTree, *hal.System) {
	t.Helper()
	tree := fakeTree{sysRoot: t.TempDir(), procRoot: t.TempDir()}
	base := map[string]string{
		"devices/system/cpu/cpu0/cpufreq/scaling_governor":            "powersave",
		"devices/system/cpu/cpu0/cpufreq/scaling_available_governors": "performance powersave",
		"devices/system/cpu/cpu0/cpufreq/cpuinfo_min_freq":            "400000",
		"devices/system/cpu/cpu0/cpufreq/cpuinfo_max_freq":            "4700000",
		"devices/system/cpu/cpu1/cpufreq/scaling_governor":            "powersave",
		"devices/system/cpu/cpu1/cpufreq/scaling_available_governors": "performance powersave",
		"devices/system/cpu/cpu1/cpufreq/cpuinfo_min_freq":            "400000",
		"devices/system/cpu/cpu1/cpufreq/cpuinfo_max_freq":            "4700000",
		"stat": "cpu  200 0 200 1600 0 0 0 0 0 0\ncpu0 100 0 100 800 0 0 0 0 0 0\ncpu1 100 0 100 800 0 0 0 0 0 0",
	}
	for path, content := range files {
		base[path] = content
	}
	tree.write(t, base)
	sys, err := hal.NewAtRoots(tree.sysRoot, tree.procRoot)
	require.NoError(t, err)
	return tree, sys
}

func TestFirstTickHasNoUtilization(t *testing.T) {
	_, sys := newFakeTree(t, nil)
	sampler := New(sys, mapset.NewSet[string]())
	sample, err := sampler.Sample(time.Now())
	require.NoError(t, err)
	assert.False(t, sample.UsageKnown)
	assert.Empty(t, sample.PerCPUUsage)
}

func TestUtilizationFromJiffyDelta(t *testing.T) {
	tree, sys := newFakeTree(t, nil)
	sampler := New(sys, mapset.NewSet[string]())
	now := time.Now()
	_, err := sampler.Sample(now)
	require.NoError(t, err)

	// cpu0: +100 busy over +400 total => 25%; cpu1: fully idle => 0%
	tree.write(t, map[string]string{
		"stat": "cpu  300 0 200 2000 0 0 0 0 0 0\ncpu0 200 0 100 1100 0 0 0 0 0 0\ncpu1 100 0 100 1200 0 0 0 0 0 0",
	})
	sample, err := sampler.Sample(now.Add(4 * time.Second))
	require.NoError(t, err)
	require.True(t, sample.UsageKnown)
	require.Len(t, sample.PerCPUUsage, 2)
	assert.InDelta(t, 0.25, sample.PerCPUUsage[0], 0.001)
	assert.InDelta(t, 0.0, sample.PerCPUUsage[1], 0.001)
	assert.InDelta(t, 0.125, sample.AvgUsage, 0.001)
}

func TestBatteryRateFromPowerNow(t *testing.T) {
	tree, sys := newFakeTree(t, map[string]string{
		"class/power_supply/BAT0/type":      "Battery",
		"class/power_supply/BAT0/present":   "1",
		"class/power_supply/BAT0/capacity":  "60",
		"class/power_supply/BAT0/status":    "Discharging",
		"class/power_supply/BAT0/power_now": "10000000",
	})
	sampler := New(sys, mapset.NewSet[string]())
	now := time.Now()
	sample, err := sampler.Sample(now)
	require.NoError(t, err)
	require.True(t, sample.Battery.RateKnown)
	// discharging 10 W reads as -10
	assert.InDelta(t, -10.0, sample.Battery.RateW, 0.001)

	// the EMA pulls a jump to 20 W only 30% of the way
	tree.write(t, map[string]string{"class/power_supply/BAT0/power_now": "20000000"})
	sample, err = sampler.Sample(now.Add(5 * time.Second))
	require.NoError(t, err)
	assert.InDelta(t, -13.0, sample.Battery.RateW, 0.001)
}

func TestBatteryRateFromChargeDelta(t *testing.T) {
	// no power_now: the rate falls back to the charge delta scaled by the
	// full-charge capacity (50 Wh); 1% drop over 36 s is -50 W
	tree, sys := newFakeTree(t, map[string]string{
		"class/power_supply/BAT0/type":        "Battery",
		"class/power_supply/BAT0/present":     "1",
		"class/power_supply/BAT0/capacity":    "60",
		"class/power_supply/BAT0/status":      "Discharging",
		"class/power_supply/BAT0/energy_full": "50000000",
	})
	sampler := New(sys, mapset.NewSet[string]())
	now := time.Now()
	sample, err := sampler.Sample(now)
	require.NoError(t, err)
	assert.False(t, sample.Battery.RateKnown)

	tree.write(t, map[string]string{"class/power_supply/BAT0/capacity": "59"})
	sample, err = sampler.Sample(now.Add(36 * time.Second))
	require.NoError(t, err)
	require.True(t, sample.Battery.RateKnown)
	assert.InDelta(t, -50.0, sample.Battery.RateW, 0.1)
}

func TestPowerSourcePropagated(t *testing.T) {
	_, sys := newFakeTree(t, map[string]string{
		"class/power_supply/AC/type":   "Mains",
		"class/power_supply/AC/online": "0",
		"class/power_supply/BAT0/type": "Battery",
	})
	sampler := New(sys, mapset.NewSet[string]())
	sample, err := sampler.Sample(time.Now())
	require.NoError(t, err)
	assert.Equal(t, hal.SourceBattery, sample.Source)
}

func TestIgnoredSupplyExcluded(t *testing.T) {
	_, sys := newFakeTree(t, map[string]string{
		"class/power_supply/hidpp_battery_0/type":     "Battery",
		"class/power_supply/hidpp_battery_0/capacity": "5",
	})
	sampler := New(sys, mapset.NewSet("hidpp_battery_0"))
	sample, err := sampler.Sample(time.Now())
	require.NoError(t, err)
	assert.False(t, sample.Battery.Present)
}
