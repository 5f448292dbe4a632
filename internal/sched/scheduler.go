// Package sched computes the daemon's next poll interval. The interval grows
// when the machine is idle and stable, shrinks when the battery is draining
// fast, and moves between targets gradually so one anomalous sample cannot
// jump the cadence.
package sched

// Copyright (C) 2025-2026 The Watt Authors
// SPDX-License-Identifier: BSD-3-Clause

import (
	"math"
	"time"

	"watt/internal/hal"
	"watt/internal/telemetry"
	"watt/internal/util"
)

const (
	historyLen = 8 // utilization samples kept for variance analysis

	activeUsagePct = 5.0 // above this the machine counts as active

	highVarianceStdevPP = 10.0 // σ above this caps the multiplier
	lowVarianceStdevPP  = 2.0  // σ below this permits a further stretch

	fastDischargeW = 15.0 // discharging faster than this polls more often
)

// Params configure the scheduler from the daemon config.
type Params struct {
	BaseSec           float64
	MinSec            float64
	MaxSec            float64
	Adaptive          bool
	ThrottleOnBattery bool
}

// Scheduler holds the bounded telemetry history and smoothing state.
type Scheduler struct {
	params Params

	usageHistory []float64 // percentages, newest last, bounded to historyLen
	lastActive   time.Time
	prevInterval float64

	acceptedRateW float64
	rateSeen      bool
	outlierTicks  int
}

// New creates a scheduler. now anchors the idleness clock.
func New(params Params, now time.Time) *Scheduler {
	return &Scheduler{
		params:       params,
		lastActive:   now,
		prevInterval: params.BaseSec,
	}
}

// SetParams replaces the scheduler knobs, keeping history and smoothing
// state. Used on configuration reload.
func (s *Scheduler) SetParams(params Params) {
	s.params = params
	s.prevInterval = util.Clamp(s.prevInterval, params.MinSec, params.MaxSec)
}

// Next consumes one telemetry sample and returns the sleep duration before
// the next tick. In adaptive mode the result is within [MinSec, MaxSec];
// otherwise it is BaseSec as configured, without clamping.
func (s *Scheduler) Next(sample *telemetry.Sample, now time.Time) time.Duration {
	if !s.params.Adaptive {
		return time.Duration(s.params.BaseSec * float64(time.Second))
	}

	if sample.UsageKnown {
		usagePct := sample.AvgUsage * 100
		s.usageHistory = append(s.usageHistory, usagePct)
		if len(s.usageHistory) > historyLen {
			s.usageHistory = s.usageHistory[1:]
		}
		if usagePct > activeUsagePct {
			s.lastActive = now
		}
	}

	multiplier := 1.0
	if sample.Source == hal.SourceBattery && s.params.ThrottleOnBattery {
		multiplier *= 2
	}
	multiplier *= idlenessFactor(now.Sub(s.lastActive))

	if stdev, ok := s.usageStdev(); ok {
		if stdev > highVarianceStdevPP {
			multiplier = math.Min(multiplier, 1.0)
		} else if stdev < lowVarianceStdevPP {
			multiplier *= 1.25
		}
	}

	if rate, ok := s.filteredRate(sample); ok && rate < -fastDischargeW {
		multiplier *= 0.75
	}

	target := util.Clamp(s.params.BaseSec*multiplier, s.params.MinSec, s.params.MaxSec)

	// move at most half the previous interval per tick
	delta := target - s.prevInterval
	step := math.Min(math.Abs(delta), 0.5*s.prevInterval)
	effective := s.prevInterval + math.Copysign(step, delta)
	effective = util.Clamp(math.Round(effective), s.params.MinSec, s.params.MaxSec)

	s.prevInterval = effective
	return time.Duration(effective * float64(time.Second))
}

// idlenessFactor stretches the interval with time since the last activity.
func idlenessFactor(idle time.Duration) float64 {
	switch {
	case idle >= 960*time.Second:
		return 5.0
	case idle >= 480*time.Second:
		return 4.0
	case idle >= 240*time.Second:
		return 3.0
	case idle >= 120*time.Second:
		return 2.0
	case idle >= 60*time.Second:
		return 1.5
	}
	return 1.0
}

// usageStdev returns the standard deviation of the history window in
// percentage points, once the window is full.
func (s *Scheduler) usageStdev() (float64, bool) {
	if len(s.usageHistory) < historyLen {
		return 0, false
	}
	mean := 0.0
	for _, u := range s.usageHistory {
		mean += u
	}
	mean /= float64(len(s.usageHistory))
	variance := 0.0
	for _, u := range s.usageHistory {
		variance += (u - mean) * (u - mean)
	}
	variance /= float64(len(s.usageHistory))
	return math.Sqrt(variance), true
}

// filteredRate applies the noise guard: a rate sample that jumps more than
// 50% from the accepted value is ignored unless the jump is sustained for two
// consecutive ticks.
func (s *Scheduler) filteredRate(sample *telemetry.Sample) (float64, bool) {
	if !sample.Battery.RateKnown {
		return 0, false
	}
	rate := sample.Battery.RateW
	if !s.rateSeen {
		s.acceptedRateW = rate
		s.rateSeen = true
		return rate, true
	}
	jump := math.Abs(rate - s.acceptedRateW)
	if jump > 0.5*math.Abs(s.acceptedRateW) && math.Abs(s.acceptedRateW) > 0 {
		s.outlierTicks++
		if s.outlierTicks < 2 {
			return s.acceptedRateW, true
		}
	}
	s.outlierTicks = 0
	s.acceptedRateW = rate
	return rate, true
}
