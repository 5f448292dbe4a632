// Package policy turns the active profile into HAL writes. Each tick it
// probes the observed state, diffs it against the profile, and issues only
// the writes whose target differs — in a fixed dependency order, because
// governor changes reset EPP on some drivers and turbo must see the final
// frequency envelope.
package policy

// Copyright (C) 2025-2026 The Watt Authors
// SPDX-License-Identifier: BSD-3-Clause

import (
	"log/slog"
	"strconv"

	"watt/internal/config"
	"watt/internal/hal"
	"watt/internal/util"
)

// Outcome is the per-operation result surfaced in the tick summary.
type Outcome int

const (
	OutcomeApplied Outcome = iota
	OutcomeSkipped
	OutcomeUnsupported
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeApplied:
		return "applied"
	case OutcomeSkipped:
		return "skipped"
	case OutcomeUnsupported:
		return "unsupported"
	}
	return "failed"
}

// Operation records one capability application. CPU is -1 for system-wide
// capabilities.
type Operation struct {
	Capability string
	CPU        int
	Target     string
	Outcome    Outcome
	Err        error
}

// Engine applies profiles. It is stateless apart from the HAL handle; the
// caller owns turbo decision state.
type Engine struct {
	sys *hal.System
}

// New creates a policy engine over the given system.
func New(sys *hal.System) *Engine {
	return &Engine{sys: sys}
}

// Apply diffs the profile against observed state and issues the necessary
// writes. turbo is the resolved turbo target for this tick, nil when turbo is
// unmanaged this tick. A single failure never aborts the remaining fields.
func (e *Engine) Apply(cfg *config.Config, profile *config.Profile, turbo *hal.TurboState) []Operation {
	var ops []Operation
	ops = append(ops, e.applyGovernor(profile)...)
	ops = append(ops, e.applyFreqLimits(profile)...)
	ops = append(ops, e.applyEPP(profile)...)
	ops = append(ops, e.applyEPB(profile)...)
	ops = append(ops, e.applyPlatformProfile(profile)...)
	if turbo != nil {
		ops = append(ops, e.applyTurbo(*turbo))
	}
	if thresholds := cfg.ThresholdsFor(profile); thresholds != nil {
		ops = append(ops, e.applyThresholds(thresholds))
	}
	logSummary(ops)
	return ops
}

func outcomeOf(err error) (Outcome, error) {
	if err == nil {
		return OutcomeApplied, nil
	}
	if hal.KindOf(err) == hal.KindUnsupported {
		return OutcomeUnsupported, err
	}
	return OutcomeFailed, err
}

func (e *Engine) applyGovernor(profile *config.Profile) []Operation {
	if profile.Governor == "" {
		return nil
	}
	var ops []Operation
	for _, cpu := range e.sys.Topology().CPUs {
		op := Operation{Capability: "governor", CPU: cpu.ID, Target: profile.Governor}
		if current, err := e.sys.Governor(cpu.ID); err == nil &&
			util.NormalizeValue(current) == util.NormalizeValue(profile.Governor) {
			op.Outcome = OutcomeSkipped
			ops = append(ops, op)
			continue
		}
		op.Outcome, op.Err = outcomeOf(e.sys.SetGovernor(cpu.ID, profile.Governor))
		ops = append(ops, op)
	}
	return ops
}

func (e *Engine) applyFreqLimits(profile *config.Profile) []Operation {
	if profile.MinFreqMHz == nil && profile.MaxFreqMHz == nil {
		return nil
	}
	var ops []Operation
	for _, cpu := range e.sys.Topology().CPUs {
		desiredMin := cpu.MinFreqKHz
		if profile.MinFreqMHz != nil {
			desiredMin = *profile.MinFreqMHz * 1000
		}
		desiredMax := cpu.MaxFreqKHz
		if profile.MaxFreqMHz != nil {
			desiredMax = *profile.MaxFreqMHz * 1000
		}
		desiredMin = clampInto(desiredMin, cpu.MinFreqKHz, cpu.MaxFreqKHz)
		desiredMax = clampInto(desiredMax, cpu.MinFreqKHz, cpu.MaxFreqKHz)
		op := Operation{
			Capability: "freq_limits",
			CPU:        cpu.ID,
			Target:     strconv.FormatUint(desiredMin, 10) + "-" + strconv.FormatUint(desiredMax, 10),
		}
		if currentMin, currentMax, err := e.sys.FreqLimits(cpu.ID); err == nil &&
			currentMin == desiredMin && currentMax == desiredMax {
			op.Outcome = OutcomeSkipped
			ops = append(ops, op)
			continue
		}
		op.Outcome, op.Err = outcomeOf(e.sys.SetFreqLimits(cpu.ID, desiredMin, desiredMax))
		ops = append(ops, op)
	}
	return ops
}

func clampInto(value, lo, hi uint64) uint64 {
	if lo > 0 && value < lo {
		return lo
	}
	if hi > 0 && value > hi {
		return hi
	}
	return value
}

func (e *Engine) applyEPP(profile *config.Profile) []Operation {
	if profile.EPP == "" {
		return nil
	}
	var ops []Operation
	for _, cpu := range e.sys.Topology().CPUs {
		op := Operation{Capability: "epp", CPU: cpu.ID, Target: profile.EPP}
		if current, err := e.sys.EPP(cpu.ID); err == nil &&
			util.NormalizeValue(current) == util.NormalizeValue(profile.EPP) {
			op.Outcome = OutcomeSkipped
			ops = append(ops, op)
			continue
		}
		op.Outcome, op.Err = outcomeOf(e.sys.SetEPP(cpu.ID, profile.EPP))
		ops = append(ops, op)
	}
	return ops
}

func (e *Engine) applyEPB(profile *config.Profile) []Operation {
	if profile.EPB == nil {
		return nil
	}
	desired := int(*profile.EPB)
	var ops []Operation
	for _, cpu := range e.sys.Topology().CPUs {
		op := Operation{Capability: "epb", CPU: cpu.ID, Target: strconv.Itoa(desired)}
		if current, err := e.sys.EPB(cpu.ID); err == nil && current == desired {
			op.Outcome = OutcomeSkipped
			ops = append(ops, op)
			continue
		}
		op.Outcome, op.Err = outcomeOf(e.sys.SetEPB(cpu.ID, desired))
		ops = append(ops, op)
	}
	return ops
}

func (e *Engine) applyPlatformProfile(profile *config.Profile) []Operation {
	if profile.PlatformProfile == "" {
		return nil
	}
	op := Operation{Capability: "platform_profile", CPU: -1, Target: profile.PlatformProfile}
	if current, err := e.sys.PlatformProfile(); err == nil &&
		util.NormalizeValue(current) == util.NormalizeValue(profile.PlatformProfile) {
		op.Outcome = OutcomeSkipped
		return []Operation{op}
	}
	op.Outcome, op.Err = outcomeOf(e.sys.SetPlatformProfile(profile.PlatformProfile))
	return []Operation{op}
}

func (e *Engine) applyTurbo(desired hal.TurboState) Operation {
	op := Operation{Capability: "turbo", CPU: -1, Target: desired.String()}
	if current, err := e.sys.Turbo(); err == nil && desired != hal.TurboDefault && current == desired {
		op.Outcome = OutcomeSkipped
		return op
	}
	op.Outcome, op.Err = outcomeOf(e.sys.SetTurbo(desired))
	return op
}

func (e *Engine) applyThresholds(t *config.Thresholds) Operation {
	op := Operation{
		Capability: "battery_thresholds",
		CPU:        -1,
		Target:     strconv.Itoa(t.Start) + "-" + strconv.Itoa(t.Stop),
	}
	if start, stop, err := e.sys.BatteryThresholds(); err == nil && stop == t.Stop {
		// vendors that store only the stop value match on it alone
		if start == t.Start || e.sys.BatteryVendor() == hal.VendorAsus {
			op.Outcome = OutcomeSkipped
			return op
		}
	}
	op.Outcome, op.Err = outcomeOf(e.sys.SetBatteryThresholds(t.Start, t.Stop))
	return op
}

// logSummary emits the single per-tick structured summary. Individual
// failures are logged at warn with the operation's identity.
func logSummary(ops []Operation) {
	counts := map[Outcome]int{}
	for _, op := range ops {
		counts[op.Outcome]++
		if op.Outcome == OutcomeFailed || op.Outcome == OutcomeUnsupported {
			slog.Warn("policy operation not applied",
				slog.String("capability", op.Capability),
				slog.Int("cpu", op.CPU),
				slog.String("target", op.Target),
				slog.String("outcome", op.Outcome.String()),
				slog.String("error", errString(op.Err)),
			)
		}
	}
	slog.Info("policy tick",
		slog.Int("applied", counts[OutcomeApplied]),
		slog.Int("skipped", counts[OutcomeSkipped]),
		slog.Int("unsupported", counts[OutcomeUnsupported]),
		slog.Int("failed", counts[OutcomeFailed]),
	)
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
