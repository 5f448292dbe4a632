package hal

// Copyright (C) 2025-2026 The Watt Authors
// SPDX-License-Identifier: BSD-3-Clause

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMaxTemperatureC(t *testing.T) {
	sys := newFakeSystem(t, map[string]string{
		"class/thermal/thermal_zone0/temp": "45000",
		"class/thermal/thermal_zone1/temp": "61000",
		"class/hwmon/hwmon0/temp1_input":   "52000",
		"class/hwmon/hwmon0/temp2_input":   "68500",
	})
	temp, ok := sys.MaxTemperatureC()
	assert.True(t, ok)
	assert.InDelta(t, 68.5, temp, 0.01)
}

func TestMaxTemperatureCNoSensors(t *testing.T) {
	sys := newFakeSystem(t, nil)
	_, ok := sys.MaxTemperatureC()
	assert.False(t, ok)
}
