// Package config loads and validates the watt configuration file. The file
// is TOML with per-power-source profile tables and a daemon table; a missing
// file yields the built-in defaults.
package config

// Copyright (C) 2025-2026 The Watt Authors
// SPDX-License-Identifier: BSD-3-Clause

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/BurntSushi/toml"
	mapset "github.com/deckarep/golang-set/v2"
	pkgerrors "github.com/pkg/errors"

	"watt/internal/hal"
)

// EnvConfigPath overrides the configuration search order when set.
const EnvConfigPath = "WATT_CONFIG"

// searchPaths is the fixed lookup order used when WATT_CONFIG is unset.
var searchPaths = []string{
	"/etc/xdg/watt/config.toml",
	"/etc/watt.toml",
}

// TurboMode is the profile-level turbo policy.
type TurboMode string

const (
	TurboAlways TurboMode = "always"
	TurboNever  TurboMode = "never"
	TurboAuto   TurboMode = "auto"
)

// TurboAutoSettings are the hysteresis thresholds for the auto-turbo
// controller. Loads are percentages, temperature is °C.
type TurboAutoSettings struct {
	LoadHiPct float64 `toml:"load_hi"`
	LoadLoPct float64 `toml:"load_lo"`
	TempHiC   float64 `toml:"temp_hi"`
	Initial   bool    `toml:"initial"`
}

// Thresholds is a (start, stop) battery charge threshold pair, written in
// TOML as a two-element array.
type Thresholds struct {
	Start int
	Stop  int
}

// UnmarshalTOML accepts `battery_charge_thresholds = [40, 80]`.
func (t *Thresholds) UnmarshalTOML(data any) error {
	values, ok := data.([]any)
	if !ok || len(values) != 2 {
		return fmt.Errorf("battery_charge_thresholds must be a [start, stop] pair")
	}
	for i, v := range values {
		n, ok := v.(int64)
		if !ok {
			return fmt.Errorf("battery_charge_thresholds element %d is not an integer", i)
		}
		if i == 0 {
			t.Start = int(n)
		} else {
			t.Stop = int(n)
		}
	}
	return nil
}

// EPBValue accepts either an integer 0-15 or a symbolic name in TOML and
// stores the resolved integer.
type EPBValue int

// UnmarshalTOML accepts `epb = 6` or `epb = "balance-performance"`.
func (e *EPBValue) UnmarshalTOML(data any) error {
	switch v := data.(type) {
	case int64:
		if v < 0 || v > 15 {
			return fmt.Errorf("epb %d out of range 0-15", v)
		}
		*e = EPBValue(v)
		return nil
	case string:
		parsed, err := hal.ParseEPB(v)
		if err != nil {
			return err
		}
		*e = EPBValue(parsed)
		return nil
	}
	return fmt.Errorf("epb must be an integer or a symbolic name")
}

// Profile is the declarative per-power-source policy. Empty/nil fields mean
// "do not manage".
type Profile struct {
	Governor                string             `toml:"governor"`
	Turbo                   TurboMode          `toml:"turbo"`
	EnableAutoTurbo         *bool              `toml:"enable_auto_turbo"`
	TurboAutoSettings       *TurboAutoSettings `toml:"turbo_auto_settings"`
	EPP                     string             `toml:"epp"`
	EPB                     *EPBValue          `toml:"epb"`
	PlatformProfile         string             `toml:"platform_profile"`
	MinFreqMHz              *uint64            `toml:"min_freq_mhz"`
	MaxFreqMHz              *uint64            `toml:"max_freq_mhz"`
	BatteryChargeThresholds *Thresholds        `toml:"battery_charge_thresholds"`
}

// AutoTurboEnabled reports whether the hysteresis controller drives turbo for
// this profile. Only meaningful when Turbo is "auto".
func (p *Profile) AutoTurboEnabled() bool {
	if p.EnableAutoTurbo == nil {
		return true
	}
	return *p.EnableAutoTurbo
}

// AutoTurboSettings returns the profile's thresholds, falling back to the
// built-in defaults.
func (p *Profile) AutoTurboSettings() TurboAutoSettings {
	if p.TurboAutoSettings != nil {
		return *p.TurboAutoSettings
	}
	return TurboAutoSettings{LoadHiPct: 70, LoadLoPct: 30, TempHiC: 75, Initial: false}
}

// Daemon configures the control loop.
type Daemon struct {
	PollIntervalSec    uint   `toml:"poll_interval_sec"`
	AdaptiveInterval   bool   `toml:"adaptive_interval"`
	MinPollIntervalSec uint   `toml:"min_poll_interval_sec"`
	MaxPollIntervalSec uint   `toml:"max_poll_interval_sec"`
	ThrottleOnBattery  bool   `toml:"throttle_on_battery"`
	StatsFilePath      string `toml:"stats_file_path"`
	MetricsListen      string `toml:"metrics_listen"`
}

// IgnoreList names power supplies excluded from AC/battery aggregation, e.g.
// peripheral batteries reported by HID devices.
type IgnoreList struct {
	Names []string `toml:"names"`
}

// Config is the whole configuration file.
type Config struct {
	Charger                 Profile     `toml:"charger"`
	Battery                 Profile     `toml:"battery"`
	Daemon                  Daemon      `toml:"daemon"`
	BatteryChargeThresholds *Thresholds `toml:"battery_charge_thresholds"`
	PowerSupplyIgnoreList   IgnoreList  `toml:"power_supply_ignore_list"`
}

// Default returns the built-in configuration: schedutil governor, auto turbo,
// no clamps, no thresholds, 5 s adaptive polling within [1, 30].
func Default() *Config {
	return &Config{
		Charger: Profile{Governor: "schedutil", Turbo: TurboAuto},
		Battery: Profile{Governor: "schedutil", Turbo: TurboAuto},
		Daemon: Daemon{
			PollIntervalSec:    5,
			AdaptiveInterval:   true,
			MinPollIntervalSec: 1,
			MaxPollIntervalSec: 30,
			ThrottleOnBattery:  true,
		},
	}
}

// ProfileFor resolves the active profile from the current power source.
func (c *Config) ProfileFor(source hal.PowerSource) *Profile {
	if source == hal.SourceBattery {
		return &c.Battery
	}
	return &c.Charger
}

// ThresholdsFor returns the effective battery charge thresholds for the given
// profile: the per-profile pair when present, else the global one, else nil
// (unmanaged).
func (c *Config) ThresholdsFor(p *Profile) *Thresholds {
	if p.BatteryChargeThresholds != nil {
		return p.BatteryChargeThresholds
	}
	return c.BatteryChargeThresholds
}

// IgnoreSet returns the power supply names to exclude, in the form the HAL
// read paths consume.
func (c *Config) IgnoreSet() mapset.Set[string] {
	set := mapset.NewSet[string]()
	for _, name := range c.PowerSupplyIgnoreList.Names {
		set.Add(name)
	}
	return set
}

// Resolve determines the configuration file path: WATT_CONFIG if set, else
// the first existing search path, else empty (defaults).
func Resolve() (string, error) {
	if env := os.Getenv(EnvConfigPath); env != "" {
		if _, err := os.Stat(env); err != nil {
			return "", pkgerrors.Wrapf(err, "%s points to an unreadable file", EnvConfigPath)
		}
		return env, nil
	}
	for _, path := range searchPaths {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", nil
}

// Load reads and validates the configuration at path. An empty path returns
// the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to parse %s", path)
	}
	for _, key := range meta.Undecoded() {
		slog.Warn("unknown configuration key ignored", slog.String("key", key.String()), slog.String("file", path))
	}
	if err := cfg.Validate(); err != nil {
		return nil, pkgerrors.Wrapf(err, "invalid configuration in %s", path)
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	if c.Daemon.MinPollIntervalSec == 0 {
		c.Daemon.MinPollIntervalSec = 1
	}
	if c.Daemon.MaxPollIntervalSec == 0 {
		c.Daemon.MaxPollIntervalSec = 30
	}
	if c.Daemon.PollIntervalSec == 0 {
		c.Daemon.PollIntervalSec = 5
	}
	if c.Daemon.MinPollIntervalSec > c.Daemon.MaxPollIntervalSec {
		return fmt.Errorf("daemon.min_poll_interval_sec (%d) exceeds max_poll_interval_sec (%d)",
			c.Daemon.MinPollIntervalSec, c.Daemon.MaxPollIntervalSec)
	}
	for _, entry := range []struct {
		name string
		t    *Thresholds
	}{
		{"battery_charge_thresholds", c.BatteryChargeThresholds},
		{"charger.battery_charge_thresholds", c.Charger.BatteryChargeThresholds},
		{"battery.battery_charge_thresholds", c.Battery.BatteryChargeThresholds},
	} {
		if entry.t == nil {
			continue
		}
		if entry.t.Start < 0 || entry.t.Stop > 100 || entry.t.Start >= entry.t.Stop {
			return fmt.Errorf("%s must satisfy 0 <= start < stop <= 100, got (%d, %d)",
				entry.name, entry.t.Start, entry.t.Stop)
		}
	}
	for _, p := range []struct {
		name    string
		profile *Profile
	}{{"charger", &c.Charger}, {"battery", &c.Battery}} {
		switch p.profile.Turbo {
		case "", TurboAlways, TurboNever, TurboAuto:
		default:
			return fmt.Errorf("%s.turbo must be always, never, or auto, got %q", p.name, p.profile.Turbo)
		}
		if p.profile.MinFreqMHz != nil && p.profile.MaxFreqMHz != nil && *p.profile.MinFreqMHz > *p.profile.MaxFreqMHz {
			return fmt.Errorf("%s.min_freq_mhz (%d) exceeds max_freq_mhz (%d)",
				p.name, *p.profile.MinFreqMHz, *p.profile.MaxFreqMHz)
		}
		if s := p.profile.TurboAutoSettings; s != nil {
			if s.LoadLoPct >= s.LoadHiPct {
				return fmt.Errorf("%s.turbo_auto_settings load_lo (%g) must be below load_hi (%g)",
					p.name, s.LoadLoPct, s.LoadHiPct)
			}
		}
	}
	return nil
}
