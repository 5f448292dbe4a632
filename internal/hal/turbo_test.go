package hal

// Copyright (C) 2025-2026 The Watt Authors
// SPDX-License-Identifier: BSD-3-Clause

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTurboProbeOrder(t *testing.T) {
	tests := []struct {
		name     string
		files    map[string]string
		expected string
	}{
		{
			name: "intel_pstate wins over boost",
			files: map[string]string{
				"devices/system/cpu/intel_pstate/no_turbo": "0",
				"devices/system/cpu/cpufreq/boost":         "1",
			},
			expected: "intel_pstate/no_turbo",
		},
		{
			name:     "generic boost",
			files:    map[string]string{"devices/system/cpu/cpufreq/boost": "1"},
			expected: "cpufreq/boost",
		},
		{
			name:     "amd cpb",
			files:    map[string]string{"devices/system/cpu/amd_pstate/cpb_boost": "1"},
			expected: "amd_pstate/cpb_boost",
		},
		{
			name:     "nothing",
			files:    nil,
			expected: "none",
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			sys := newFakeSystem(t, test.files)
			assert.Equal(t, test.expected, sys.turbo.describe())
		})
	}
}

func TestTurboIntelInversion(t *testing.T) {
	sys := newFakeSystem(t, map[string]string{
		"devices/system/cpu/intel_pstate/no_turbo": "0",
	})
	state, err := sys.Turbo()
	assert.NoError(t, err)
	assert.Equal(t, TurboOn, state)

	assert.NoError(t, sys.SetTurbo(TurboOff))
	state, err = sys.Turbo()
	assert.NoError(t, err)
	assert.Equal(t, TurboOff, state)

	// Default clears the no_turbo override
	assert.NoError(t, sys.SetTurbo(TurboDefault))
	state, err = sys.Turbo()
	assert.NoError(t, err)
	assert.Equal(t, TurboOn, state)
}

func TestTurboBoostSense(t *testing.T) {
	sys := newFakeSystem(t, map[string]string{
		"devices/system/cpu/cpufreq/boost": "1",
	})
	assert.NoError(t, sys.SetTurbo(TurboOff))
	state, err := sys.Turbo()
	assert.NoError(t, err)
	assert.Equal(t, TurboOff, state)

	assert.NoError(t, sys.SetTurbo(TurboOn))
	state, err = sys.Turbo()
	assert.NoError(t, err)
	assert.Equal(t, TurboOn, state)
}

func TestTurboUnsupported(t *testing.T) {
	sys := newFakeSystem(t, nil)
	assert.False(t, sys.TurboSupported())
	err := sys.SetTurbo(TurboOn)
	assert.Equal(t, KindUnsupported, KindOf(err))
}
