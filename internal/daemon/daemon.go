// Package daemon binds the sampler, auto-turbo controller, policy engine,
// and adaptive scheduler into the supervised control loop. The loop is
// single-threaded and cooperative: one tick at a time, shutdown via a shared
// atomic flag checked at every suspension point.
package daemon

// Copyright (C) 2025-2026 The Watt Authors
// SPDX-License-Identifier: BSD-3-Clause

import (
	"log/slog"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"watt/internal/config"
	"watt/internal/conflict"
	"watt/internal/hal"
	"watt/internal/policy"
	"watt/internal/sched"
	"watt/internal/telemetry"
	"watt/internal/turbo"
	"watt/internal/util"
)

// turboPolicyMode distinguishes the turbo management modes so the loop can
// detect transitions. Entering autoSystemDefault emits one Default write to
// clear any prior override, then turbo is left alone.
type turboPolicyMode int

const (
	modeUnset turboPolicyMode = iota
	modeAlways
	modeNever
	modeAutoController
	modeAutoSystemDefault
)

// Daemon owns all mutable control-loop state.
type Daemon struct {
	cfg        *config.Config
	cfgPath    string
	sys        *hal.System
	sampler    *telemetry.Sampler
	engine     *policy.Engine
	scheduler  *sched.Scheduler
	controller *turbo.Controller
	stats      *statsWriter
	exporter   *exporter

	shutdown atomic.Bool

	havePrevSource bool
	prevSource     hal.PowerSource
	prevTurboMode  turboPolicyMode
	lastTurbo      hal.TurboState // last resolved target, reported to stats/metrics
}

// New assembles a daemon from a loaded configuration and a scanned system.
func New(cfg *config.Config, cfgPath string, sys *hal.System) (*Daemon, error) {
	d := &Daemon{
		cfg:     cfg,
		cfgPath: cfgPath,
		sys:     sys,
	}
	d.sampler = telemetry.New(sys, cfg.IgnoreSet())
	d.engine = policy.New(sys)
	d.scheduler = sched.New(schedParams(cfg), time.Now())
	d.controller = turbo.New(autoThresholds(&cfg.Charger))
	if cfg.Daemon.StatsFilePath != "" {
		statsPath, err := util.AbsPath(cfg.Daemon.StatsFilePath)
		if err != nil {
			return nil, err
		}
		stats, err := newStatsWriter(statsPath)
		if err != nil {
			return nil, err
		}
		d.stats = stats
	}
	if cfg.Daemon.MetricsListen != "" {
		d.exporter = newExporter(cfg.Daemon.MetricsListen)
	}
	return d, nil
}

func schedParams(cfg *config.Config) sched.Params {
	return sched.Params{
		BaseSec:           float64(cfg.Daemon.PollIntervalSec),
		MinSec:            float64(cfg.Daemon.MinPollIntervalSec),
		MaxSec:            float64(cfg.Daemon.MaxPollIntervalSec),
		Adaptive:          cfg.Daemon.AdaptiveInterval,
		ThrottleOnBattery: cfg.Daemon.ThrottleOnBattery,
	}
}

func autoThresholds(profile *config.Profile) turbo.Thresholds {
	settings := profile.AutoTurboSettings()
	return turbo.Thresholds{
		LoadHiPct: settings.LoadHiPct,
		LoadLoPct: settings.LoadLoPct,
		TempHiC:   settings.TempHiC,
		Initial:   settings.Initial,
	}
}

// Run executes the control loop until SIGINT/SIGTERM. SIGHUP reloads the
// configuration and re-runs the conflict scan without losing telemetry
// history.
func (d *Daemon) Run() error {
	sigChannel := make(chan os.Signal, 1)
	signal.Notify(sigChannel, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigChannel)
	reload := make(chan struct{}, 1)
	go func() {
		for sig := range sigChannel {
			slog.Info("received signal", slog.String("signal", sig.String()))
			if sig == syscall.SIGHUP {
				select {
				case reload <- struct{}{}:
				default:
				}
				continue
			}
			d.shutdown.Store(true)
			select {
			case reload <- struct{}{}: // wake the sleeping loop
			default:
			}
		}
	}()

	conflict.Warn(d.sys.ProcfsRoot)
	if d.exporter != nil {
		d.exporter.serve()
	}

	for !d.shutdown.Load() {
		interval := d.tick(time.Now())
		if d.shutdown.Load() {
			break
		}
		select {
		case <-time.After(interval):
		case <-reload:
			if !d.shutdown.Load() {
				d.reload()
			}
		}
	}
	slog.Info("daemon exiting")
	if d.stats != nil {
		d.stats.close()
	}
	return nil
}

// tick runs one sample → decide → apply → schedule cycle and returns the
// sleep duration.
func (d *Daemon) tick(now time.Time) time.Duration {
	sample, err := d.sampler.Sample(now)
	if err != nil {
		slog.Error("telemetry sampling failed", slog.String("error", err.Error()))
		return time.Duration(d.cfg.Daemon.PollIntervalSec) * time.Second
	}

	profile := d.cfg.ProfileFor(sample.Source)
	if !d.havePrevSource || d.prevSource != sample.Source {
		if d.havePrevSource {
			slog.Info("power source changed",
				slog.String("from", d.prevSource.String()),
				slog.String("to", sample.Source.String()),
			)
		}
		d.controller.Reset(autoThresholds(profile))
		d.havePrevSource = true
		d.prevSource = sample.Source
	}

	turboTarget := d.resolveTurbo(profile, sample)
	if turboTarget != nil {
		d.lastTurbo = *turboTarget
	}
	d.engine.Apply(d.cfg, profile, turboTarget)

	interval := d.scheduler.Next(sample, now)
	if d.stats != nil {
		d.stats.write(now, sample, d.lastTurbo, interval)
	}
	if d.exporter != nil {
		d.exporter.update(sample, d.lastTurbo, interval)
	}
	return interval
}

// resolveTurbo maps the profile's turbo policy and the controller's decision
// to this tick's target. nil means turbo is not touched this tick.
func (d *Daemon) resolveTurbo(profile *config.Profile, sample *telemetry.Sample) *hal.TurboState {
	var mode turboPolicyMode
	switch profile.Turbo {
	case config.TurboAlways:
		mode = modeAlways
	case config.TurboNever:
		mode = modeNever
	case config.TurboAuto, "":
		if profile.AutoTurboEnabled() {
			mode = modeAutoController
		} else {
			mode = modeAutoSystemDefault
		}
	}
	entered := mode != d.prevTurboMode
	d.prevTurboMode = mode

	state := func(s hal.TurboState) *hal.TurboState { return &s }
	switch mode {
	case modeAlways:
		return state(hal.TurboOn)
	case modeNever:
		return state(hal.TurboOff)
	case modeAutoController:
		decision := d.controller.Step(turbo.Input{
			AvgUsagePct: sample.AvgUsage * 100,
			UsageKnown:  sample.UsageKnown,
			TempC:       sample.MaxTempC,
			TempKnown:   sample.TempKnown,
		}, autoThresholds(profile))
		return state(decision)
	case modeAutoSystemDefault:
		if entered {
			// clear any override we may have left behind, once
			return state(hal.TurboDefault)
		}
	}
	return nil
}

// reload re-reads the configuration, rescans hardware, and re-runs the
// conflict scan. Telemetry history and controller state survive; scheduler
// parameters are refreshed.
func (d *Daemon) reload() {
	slog.Info("reloading configuration", slog.String("path", d.cfgPath))
	cfg, err := config.Load(d.cfgPath)
	if err != nil {
		slog.Error("configuration reload failed, keeping previous configuration", slog.String("error", err.Error()))
	} else {
		d.cfg = cfg
		// history survives a reload, only the knobs change
		d.scheduler.SetParams(schedParams(cfg))
		d.sampler.SetIgnore(cfg.IgnoreSet())
	}
	if err := d.sys.Rescan(); err != nil {
		slog.Error("hardware rescan failed", slog.String("error", err.Error()))
	}
	conflict.Warn(d.sys.ProcfsRoot)
}
