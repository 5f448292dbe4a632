// Package turbo implements the auto-turbo hysteresis controller: a small
// state machine that turns turbo boost on under sustained load, off when the
// load drops or the package runs hot, and holds its last decision inside the
// hysteresis band so it never flaps.
package turbo

// Copyright (C) 2025-2026 The Watt Authors
// SPDX-License-Identifier: BSD-3-Clause

import (
	"watt/internal/hal"
)

// State is the controller's internal state. Hold means "inside the hysteresis
// band, keep emitting the previous decision".
type State int

const (
	StateOff State = iota
	StateOn
	StateHold
)

func (s State) String() string {
	switch s {
	case StateOn:
		return "on"
	case StateHold:
		return "hold"
	}
	return "off"
}

// Thresholds are the hysteresis parameters. Loads are percentages of average
// utilization, TempHiC is the hard thermal cutoff in °C.
type Thresholds struct {
	LoadHiPct float64
	LoadLoPct float64
	TempHiC   float64
	Initial   bool // turbo state at controller start
}

// Input is the per-tick telemetry slice the controller consumes. TempKnown
// false removes the thermal constraint entirely rather than treating the
// temperature as zero.
type Input struct {
	AvgUsagePct float64
	UsageKnown  bool
	TempC       float64
	TempKnown   bool
}

// Controller holds state across ticks. It is pure over (state, input,
// thresholds): Step has no side effects beyond advancing the state field.
type Controller struct {
	state State
	emit  hal.TurboState
}

// New returns a controller initialized from the profile's initial setting.
func New(t Thresholds) *Controller {
	c := &Controller{}
	c.Reset(t)
	return c
}

// Reset re-initializes the controller, e.g. after a power source transition
// selects a profile with different settings.
func (c *Controller) Reset(t Thresholds) {
	if t.Initial {
		c.state = StateOn
		c.emit = hal.TurboOn
	} else {
		c.state = StateOff
		c.emit = hal.TurboOff
	}
}

// State returns the current internal state.
func (c *Controller) State() State {
	return c.state
}

// Emit returns the last decision without advancing the machine.
func (c *Controller) Emit() hal.TurboState {
	return c.emit
}

// Step advances the machine one tick and returns the turbo decision. With no
// utilization sample (first tick) the previous decision is kept, though the
// thermal cutoff still applies.
func (c *Controller) Step(in Input, t Thresholds) hal.TurboState {
	tooHot := in.TempKnown && in.TempC >= t.TempHiC
	if tooHot {
		c.state = StateOff
		c.emit = hal.TurboOff
		return c.emit
	}
	if !in.UsageKnown {
		return c.emit
	}
	switch {
	case in.AvgUsagePct >= t.LoadHiPct:
		c.state = StateOn
		c.emit = hal.TurboOn
	case in.AvgUsagePct <= t.LoadLoPct:
		c.state = StateOff
		c.emit = hal.TurboOff
	default:
		// inside the hysteresis band: hold the previous decision
		c.state = StateHold
	}
	return c.emit
}
