package sched

// Copyright (C) 2025-2026 The Watt Authors
// SPDX-License-Identifier: BSD-3-Clause

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"watt/internal/hal"
	"watt/internal/telemetry"
)

var testParams = Params{BaseSec: 5, MinSec: 1, MaxSec: 30, Adaptive: true, ThrottleOnBattery: true}

func usageSample(at time.Time, usage float64, source hal.PowerSource) *telemetry.Sample {
	return &telemetry.Sample{At: at, Source: source, AvgUsage: usage, UsageKnown: true}
}

func TestFixedIntervalWhenNotAdaptive(t *testing.T) {
	params := testParams
	params.Adaptive = false
	now := time.Now()
	s := New(params, now)
	for i := 0; i < 5; i++ {
		got := s.Next(usageSample(now, 0.9, hal.SourceBattery), now)
		assert.Equal(t, 5*time.Second, got)
		now = now.Add(got)
	}
}

func TestIntervalAlwaysWithinBounds(t *testing.T) {
	now := time.Now()
	s := New(testParams, now)
	usages := []float64{0, 1, 0.5, 0.02, 0.98, 0.03, 0.6, 0}
	for i := 0; i < 100; i++ {
		sample := usageSample(now, usages[i%len(usages)], hal.SourceBattery)
		sample.Battery.RateKnown = true
		sample.Battery.RateW = -20
		got := s.Next(sample, now)
		require.GreaterOrEqual(t, got, 1*time.Second)
		require.LessOrEqual(t, got, 30*time.Second)
		now = now.Add(got)
	}
}

func TestIdleBackOffConvergesToIdleTarget(t *testing.T) {
	// no activity on AC: idleness reaches the x5 tier and the interval
	// converges to base*5, one smoothed step at a time. Usage alternates just
	// enough to keep the low-variance stretch out of play.
	start := time.Now()
	now := start
	s := New(testParams, now)
	var last time.Duration
	flip := false
	for now.Sub(start) < 1200*time.Second {
		usage := 0.0
		if flip {
			usage = 0.048
		}
		flip = !flip
		last = s.Next(usageSample(now, usage, hal.SourceAC), now)
		now = now.Add(last)
	}
	assert.Equal(t, 25*time.Second, last)
}

func TestBatteryThrottleDoublesTarget(t *testing.T) {
	now := time.Now()
	s := New(testParams, now)
	// active usage keeps the idleness factor at x1; battery doubles the base
	got := s.Next(usageSample(now, 0.5, hal.SourceBattery), now)
	// smoothing limits the first step to half the previous interval
	assert.Equal(t, 8*time.Second, got)
	now = now.Add(got)
	got = s.Next(usageSample(now, 0.5, hal.SourceBattery), now)
	assert.Equal(t, 10*time.Second, got)
}

func TestFastDischargeShortensInterval(t *testing.T) {
	now := time.Now()
	s := New(testParams, now)
	sample := usageSample(now, 0.5, hal.SourceAC)
	sample.Battery.RateKnown = true
	sample.Battery.RateW = -20
	got := s.Next(sample, now)
	assert.Equal(t, 4*time.Second, got)
}

func TestDischargeNoiseGuard(t *testing.T) {
	now := time.Now()
	s := New(testParams, now)

	tick := func(rateW float64) time.Duration {
		sample := usageSample(now, 0.5, hal.SourceAC)
		sample.Battery.RateKnown = true
		sample.Battery.RateW = rateW
		got := s.Next(sample, now)
		now = now.Add(got)
		return got
	}

	// modest discharge, no factor
	assert.Equal(t, 5*time.Second, tick(-10))
	// a single anomalous jump is ignored
	assert.Equal(t, 5*time.Second, tick(-40))
	// sustained for a second tick, it is accepted and the factor kicks in
	assert.Equal(t, 4*time.Second, tick(-40))
}

func TestHighVarianceCapsMultiplier(t *testing.T) {
	now := time.Now()
	s := New(testParams, now)
	var last time.Duration
	flip := false
	for i := 0; i < 16; i++ {
		// wildly varying but active load: sigma is far above the cap
		usage := 0.20
		if flip {
			usage = 0.45
		}
		flip = !flip
		last = s.Next(usageSample(now, usage, hal.SourceBattery), now)
		now = now.Add(last)
	}
	// battery alone would double the interval, but the variance cap holds the
	// multiplier at x1
	assert.Equal(t, 5*time.Second, last)
}

func TestSetParamsKeepsSmoothingState(t *testing.T) {
	now := time.Now()
	s := New(testParams, now)
	s.Next(usageSample(now, 0.5, hal.SourceBattery), now)

	params := testParams
	params.MaxSec = 6
	s.SetParams(params)
	got := s.Next(usageSample(now, 0.5, hal.SourceBattery), now)
	assert.LessOrEqual(t, got, 6*time.Second)
}
