package turbo

// Copyright (C) 2025-2026 The Watt Authors
// SPDX-License-Identifier: BSD-3-Clause

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"watt/internal/hal"
)

var defaultThresholds = Thresholds{LoadHiPct: 70, LoadLoPct: 30, TempHiC: 75}

func input(loadPct, tempC float64) Input {
	return Input{AvgUsagePct: loadPct, UsageKnown: true, TempC: tempC, TempKnown: true}
}

func TestThermalCapSequence(t *testing.T) {
	// (load%, temp°C) sequence from a hot burst: on, thermal off, then the
	// hold-down keeps turbo off until load crosses the high threshold again
	c := New(defaultThresholds)
	steps := []struct {
		loadPct  float64
		tempC    float64
		expected hal.TurboState
	}{
		{80, 70, hal.TurboOn},
		{80, 76, hal.TurboOff},
		{40, 70, hal.TurboOff},
		{20, 70, hal.TurboOff},
	}
	for i, step := range steps {
		got := c.Step(input(step.loadPct, step.tempC), defaultThresholds)
		assert.Equal(t, step.expected, got, "step %d (load=%g temp=%g)", i, step.loadPct, step.tempC)
	}
}

func TestHysteresisNoFlap(t *testing.T) {
	// anywhere strictly inside (load_lo, load_hi) the emitted decision must
	// not change, whatever it currently is
	for _, initial := range []bool{true, false} {
		thresholds := defaultThresholds
		thresholds.Initial = initial
		c := New(thresholds)
		previous := c.Emit()
		for _, loadPct := range []float64{30.1, 40, 50, 69.9, 35, 65} {
			got := c.Step(input(loadPct, 50), thresholds)
			assert.Equal(t, previous, got, "initial=%v load=%g", initial, loadPct)
			assert.Equal(t, StateHold, c.State())
		}
	}
}

func TestTransitions(t *testing.T) {
	tests := []struct {
		name     string
		initial  bool
		loadPct  float64
		tempC    float64
		expected hal.TurboState
	}{
		{name: "high load turns on", initial: false, loadPct: 75, tempC: 50, expected: hal.TurboOn},
		{name: "low load turns off", initial: true, loadPct: 10, tempC: 50, expected: hal.TurboOff},
		{name: "high load but hot stays off", initial: false, loadPct: 90, tempC: 80, expected: hal.TurboOff},
		{name: "hot overrides on state", initial: true, loadPct: 90, tempC: 75, expected: hal.TurboOff},
		{name: "exactly load_hi turns on", initial: false, loadPct: 70, tempC: 50, expected: hal.TurboOn},
		{name: "exactly load_lo turns off", initial: true, loadPct: 30, tempC: 50, expected: hal.TurboOff},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			thresholds := defaultThresholds
			thresholds.Initial = test.initial
			c := New(thresholds)
			got := c.Step(input(test.loadPct, test.tempC), thresholds)
			assert.Equal(t, test.expected, got)
		})
	}
}

func TestMissingTemperatureDropsThermalClause(t *testing.T) {
	c := New(defaultThresholds)
	got := c.Step(Input{AvgUsagePct: 90, UsageKnown: true}, defaultThresholds)
	assert.Equal(t, hal.TurboOn, got)
}

func TestMissingUsageKeepsDecision(t *testing.T) {
	thresholds := defaultThresholds
	thresholds.Initial = true
	c := New(thresholds)
	got := c.Step(Input{TempC: 50, TempKnown: true}, thresholds)
	assert.Equal(t, hal.TurboOn, got)

	// the thermal cutoff still applies without a usage sample
	got = c.Step(Input{TempC: 80, TempKnown: true}, thresholds)
	assert.Equal(t, hal.TurboOff, got)
}

func TestReset(t *testing.T) {
	c := New(defaultThresholds)
	c.Step(input(90, 50), defaultThresholds)
	assert.Equal(t, hal.TurboOn, c.Emit())

	thresholds := defaultThresholds
	thresholds.Initial = false
	c.Reset(thresholds)
	assert.Equal(t, hal.TurboOff, c.Emit())
	assert.Equal(t, StateOff, c.State())
}
