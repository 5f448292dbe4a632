// Package telemetry gathers the per-tick snapshot the policy engine, the
// auto-turbo controller, and the scheduler all consume: CPU utilization from
// consecutive jiffy snapshots, the hottest sensor temperature, battery state
// with an EMA-smoothed discharge rate, and the AC/battery power source.
package telemetry

// Copyright (C) 2025-2026 The Watt Authors
// SPDX-License-Identifier: BSD-3-Clause

import (
	"sort"
	"time"

	mapset "github.com/deckarep/golang-set/v2"

	"watt/internal/hal"
	"watt/internal/util"
)

// rateSmoothing is the EMA factor applied to the battery rate.
const rateSmoothing = 0.3

// BatterySummary aggregates all non-ignored batteries. RateW is negative when
// discharging.
type BatterySummary struct {
	Present     bool
	ChargePct   float64
	ChargeKnown bool
	Status      hal.BatteryStatus
	RateW       float64
	RateKnown   bool
}

// Sample is one tick's telemetry.
type Sample struct {
	At          time.Time
	Source      hal.PowerSource
	PerCPUUsage []float64 // indexed by position, each in [0,1]
	AvgUsage    float64
	UsageKnown  bool // false on the first tick, before a delta exists
	MaxTempC    float64
	TempKnown   bool
	Battery     BatterySummary
}

// Sampler holds the previous jiffy snapshot and EMA state across ticks.
type Sampler struct {
	sys    *hal.System
	ignore mapset.Set[string]

	prevJiffies map[int]hal.Jiffies
	prevAt      time.Time

	prevChargePct   float64
	prevChargeKnown bool

	emaRateW    float64
	emaRateSeen bool
}

// New creates a sampler over the given system. The ignore set filters power
// supplies by exact name.
func New(sys *hal.System, ignore mapset.Set[string]) *Sampler {
	return &Sampler{sys: sys, ignore: ignore}
}

// SetIgnore replaces the power supply ignore set, keeping the jiffy baseline
// and EMA state. Used on configuration reload.
func (s *Sampler) SetIgnore(ignore mapset.Set[string]) {
	s.ignore = ignore
}

// Sample reads one tick of telemetry. On the first call it records the jiffy
// baseline and returns a sample with UsageKnown=false.
func (s *Sampler) Sample(now time.Time) (*Sample, error) {
	jiffies, err := s.sys.ReadCPUJiffies()
	if err != nil {
		return nil, err
	}
	sample := &Sample{At: now}

	if s.prevJiffies != nil {
		sample.PerCPUUsage = computeUsage(s.prevJiffies, jiffies)
		if len(sample.PerCPUUsage) > 0 {
			sum := 0.0
			for _, u := range sample.PerCPUUsage {
				sum += u
			}
			sample.AvgUsage = sum / float64(len(sample.PerCPUUsage))
			sample.UsageKnown = true
		}
	}

	sample.MaxTempC, sample.TempKnown = s.sys.MaxTemperatureC()

	source, err := s.sys.PowerSource(s.ignore)
	if err == nil {
		sample.Source = source
	}

	sample.Battery = s.sampleBattery(now)

	s.prevJiffies = jiffies
	s.prevAt = now
	return sample, nil
}

func (s *Sampler) sampleBattery(now time.Time) BatterySummary {
	var summary BatterySummary
	readings, err := s.sys.ReadBatteries(s.ignore)
	if err != nil || len(readings) == 0 {
		s.prevChargeKnown = false
		return summary
	}

	chargeSum, chargeCount := 0.0, 0
	powerSum := 0.0
	powerKnown := false
	energyFullSum := 0.0
	energyFullKnown := false
	for _, r := range readings {
		if !r.Present {
			continue
		}
		summary.Present = true
		if summary.Status == hal.StatusUnknown {
			summary.Status = r.Status
		}
		if r.ChargeKnown {
			chargeSum += r.ChargePct
			chargeCount++
		}
		if r.PowerKnown {
			powerSum += r.PowerW
			powerKnown = true
		}
		if r.EnergyFullKnown {
			energyFullSum += r.EnergyFullWh
			energyFullKnown = true
		}
	}
	if chargeCount > 0 {
		summary.ChargePct = chargeSum / float64(chargeCount)
		summary.ChargeKnown = true
	}

	rawRate, rawKnown := 0.0, false
	if powerKnown {
		rawRate = powerSum
		if summary.Status == hal.StatusDischarging {
			rawRate = -rawRate
		}
		rawKnown = true
	} else if summary.ChargeKnown && s.prevChargeKnown && energyFullKnown && !s.prevAt.IsZero() {
		dt := now.Sub(s.prevAt).Hours()
		if dt > 0 {
			rawRate = (summary.ChargePct - s.prevChargePct) / 100 * energyFullSum / dt
			rawKnown = true
		}
	}
	if rawKnown {
		if s.emaRateSeen {
			s.emaRateW = rateSmoothing*rawRate + (1-rateSmoothing)*s.emaRateW
		} else {
			s.emaRateW = rawRate
			s.emaRateSeen = true
		}
		summary.RateW = s.emaRateW
		summary.RateKnown = true
	}

	s.prevChargePct = summary.ChargePct
	s.prevChargeKnown = summary.ChargeKnown
	return summary
}

// computeUsage derives per-CPU utilization from two jiffy snapshots. CPUs
// present in only one snapshot (hotplug between ticks) are skipped.
func computeUsage(prev, current map[int]hal.Jiffies) []float64 {
	ids := make([]int, 0, len(current))
	for id := range current {
		if _, ok := prev[id]; ok {
			ids = append(ids, id)
		}
	}
	sort.Ints(ids)
	usage := make([]float64, 0, len(ids))
	for _, id := range ids {
		p, c := prev[id], current[id]
		total := c.Total() - p.Total()
		if total == 0 {
			usage = append(usage, 0)
			continue
		}
		idle := (c.Idle + c.IOWait) - (p.Idle + p.IOWait)
		usage = append(usage, util.Clamp(1-float64(idle)/float64(total), 0, 1))
	}
	return usage
}
