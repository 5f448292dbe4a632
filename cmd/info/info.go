// Package info is a subcommand of the root command. It reports the current
// power configuration and, via the debug command, a machine-readable dump of
// everything the daemon would see.
package info

// Copyright (C) 2025-2026 The Watt Authors
// SPDX-License-Identifier: BSD-3-Clause

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	yaml "gopkg.in/yaml.v2"

	"watt/internal/app"
	"watt/internal/conflict"
	"watt/internal/config"
	"watt/internal/hal"
)

var Cmd = &cobra.Command{
	Use:           "info",
	Short:         "Show the current power configuration",
	GroupID:       "primary",
	Args:          cobra.NoArgs,
	SilenceErrors: true,
	RunE:          runInfo,
}

var flagFormat string

var DebugCmd = &cobra.Command{
	Use:           "debug",
	Short:         "Dump everything the daemon would observe",
	GroupID:       "primary",
	Args:          cobra.NoArgs,
	SilenceErrors: true,
	RunE:          runDebug,
}

func init() {
	DebugCmd.Flags().StringVar(&flagFormat, "format", "text", "output format: text or yaml")
}

// report is the debug dump structure; yaml tags drive the --format yaml
// rendering.
type report struct {
	PowerSource     string         `yaml:"power_source"`
	BatteryVendor   string         `yaml:"battery_vendor"`
	TurboSupported  bool           `yaml:"turbo_supported"`
	Turbo           string         `yaml:"turbo"`
	PlatformProfile string         `yaml:"platform_profile,omitempty"`
	MaxTempC        *float64       `yaml:"max_temp_c,omitempty"`
	CPUs            []cpuReport    `yaml:"cpus"`
	Batteries       []battReport   `yaml:"batteries"`
	Conflicts       []string       `yaml:"conflicts,omitempty"`
	ConfigPath      string         `yaml:"config_path,omitempty"`
	IgnoredSupplies []string       `yaml:"ignored_power_supplies,omitempty"`
	Thresholds      *threshReport  `yaml:"battery_charge_thresholds,omitempty"`
}

type cpuReport struct {
	ID                 int      `yaml:"id"`
	Driver             string   `yaml:"driver"`
	Governor           string   `yaml:"governor"`
	AvailableGovernors []string `yaml:"available_governors"`
	EPP                string   `yaml:"epp,omitempty"`
	EPB                *int     `yaml:"epb,omitempty"`
	ScalingMinKHz      uint64   `yaml:"scaling_min_khz"`
	ScalingMaxKHz      uint64   `yaml:"scaling_max_khz"`
	HardwareMinKHz     uint64   `yaml:"hardware_min_khz"`
	HardwareMaxKHz     uint64   `yaml:"hardware_max_khz"`
}

type battReport struct {
	Name      string   `yaml:"name"`
	Status    string   `yaml:"status"`
	ChargePct *float64 `yaml:"charge_pct,omitempty"`
	PowerW    *float64 `yaml:"power_w,omitempty"`
}

type threshReport struct {
	Start int `yaml:"start"`
	Stop  int `yaml:"stop"`
}

func gather(cmd *cobra.Command) (*report, error) {
	sys, err := hal.New()
	if err != nil {
		return nil, err
	}
	appContext := cmd.Parent().Context().Value(app.Context{}).(app.Context)
	cfgPath := appContext.ConfigPath
	cfg, err := config.Load(cfgPath)
	if err != nil {
		// one-shot commands work without config
		cfg = config.Default()
		cfgPath = ""
	}
	ignore := cfg.IgnoreSet()

	r := &report{ConfigPath: cfgPath, IgnoredSupplies: cfg.PowerSupplyIgnoreList.Names}
	source, err := sys.PowerSource(ignore)
	if err == nil {
		r.PowerSource = source.String()
	}
	r.BatteryVendor = sys.BatteryVendor().String()
	r.TurboSupported = sys.TurboSupported()
	if turbo, err := sys.Turbo(); err == nil {
		r.Turbo = turbo.String()
	}
	if profile, err := sys.PlatformProfile(); err == nil {
		r.PlatformProfile = profile
	}
	if temp, ok := sys.MaxTemperatureC(); ok {
		r.MaxTempC = &temp
	}
	for _, cpu := range sys.Topology().CPUs {
		c := cpuReport{
			ID:             cpu.ID,
			Driver:         cpu.ScalingDriver,
			HardwareMinKHz: cpu.MinFreqKHz,
			HardwareMaxKHz: cpu.MaxFreqKHz,
		}
		governors := cpu.AvailableGovernors.ToSlice()
		sort.Strings(governors)
		c.AvailableGovernors = governors
		if governor, err := sys.Governor(cpu.ID); err == nil {
			c.Governor = governor
		}
		if epp, err := sys.EPP(cpu.ID); err == nil {
			c.EPP = epp
		}
		if epb, err := sys.EPB(cpu.ID); err == nil {
			c.EPB = &epb
		}
		if min, max, err := sys.FreqLimits(cpu.ID); err == nil {
			c.ScalingMinKHz = min
			c.ScalingMaxKHz = max
		}
		r.CPUs = append(r.CPUs, c)
	}
	if readings, err := sys.ReadBatteries(ignore); err == nil {
		for _, b := range readings {
			entry := battReport{Name: b.Name, Status: b.Status.String()}
			if b.ChargeKnown {
				pct := b.ChargePct
				entry.ChargePct = &pct
			}
			if b.PowerKnown {
				w := b.PowerW
				entry.PowerW = &w
			}
			r.Batteries = append(r.Batteries, entry)
		}
	}
	if start, stop, err := sys.BatteryThresholds(); err == nil {
		r.Thresholds = &threshReport{Start: start, Stop: stop}
	}
	if findings, err := conflict.Scan(sys.ProcfsRoot); err == nil {
		for _, f := range findings {
			r.Conflicts = append(r.Conflicts, f.Name)
		}
	}
	return r, nil
}

func runInfo(cmd *cobra.Command, args []string) error {
	r, err := gather(cmd)
	if err != nil {
		return err
	}
	p := message.NewPrinter(language.English)
	out := cmd.OutOrStdout()

	fmt.Fprintf(out, "%s %s\n\n", app.Name, cmd.Root().Version)
	fmt.Fprintf(out, "Power source:      %s\n", r.PowerSource)
	fmt.Fprintf(out, "Turbo:             %s\n", turboLine(r))
	if r.PlatformProfile != "" {
		fmt.Fprintf(out, "Platform profile:  %s\n", r.PlatformProfile)
	}
	if r.MaxTempC != nil {
		fmt.Fprintf(out, "Max temperature:   %.1f C\n", *r.MaxTempC)
	}
	fmt.Fprintf(out, "Battery vendor:    %s\n", r.BatteryVendor)
	for _, b := range r.Batteries {
		line := fmt.Sprintf("Battery %s:       %s", b.Name, b.Status)
		if b.ChargePct != nil {
			line += fmt.Sprintf(", %.0f%%", *b.ChargePct)
		}
		if b.PowerW != nil {
			line += fmt.Sprintf(", %.1f W", *b.PowerW)
		}
		fmt.Fprintln(out, line)
	}
	if r.Thresholds != nil {
		fmt.Fprintf(out, "Charge thresholds: %d-%d%%\n", r.Thresholds.Start, r.Thresholds.Stop)
	}
	fmt.Fprintln(out)
	for _, c := range r.CPUs {
		if term.IsTerminal(int(os.Stdout.Fd())) {
			p.Fprintf(out, "cpu%-3d %-14s governor=%-12s epp=%-20s %d-%d kHz\n",
				c.ID, c.Driver, c.Governor, c.EPP, c.ScalingMinKHz, c.ScalingMaxKHz)
		} else {
			fmt.Fprintf(out, "cpu%d\t%s\t%s\t%s\t%d\t%d\n",
				c.ID, c.Driver, c.Governor, c.EPP, c.ScalingMinKHz, c.ScalingMaxKHz)
		}
	}
	if len(r.Conflicts) > 0 {
		fmt.Fprintf(out, "\nWARNING: other power managers running: %s\n", strings.Join(r.Conflicts, ", "))
	}
	return nil
}

func turboLine(r *report) string {
	if !r.TurboSupported {
		return "unsupported"
	}
	return r.Turbo
}

func runDebug(cmd *cobra.Command, args []string) error {
	r, err := gather(cmd)
	if err != nil {
		return err
	}
	switch flagFormat {
	case "yaml":
		raw, err := yaml.Marshal(r)
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), string(raw))
		return nil
	case "text":
		if err := runInfo(cmd, args); err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintln(out)
		for _, c := range r.CPUs {
			fmt.Fprintf(out, "cpu%d available governors: %s\n", c.ID, strings.Join(c.AvailableGovernors, " "))
			if c.EPB != nil {
				fmt.Fprintf(out, "cpu%d epb: %d\n", c.ID, *c.EPB)
			}
			fmt.Fprintf(out, "cpu%d hardware range: %d-%d kHz\n", c.ID, c.HardwareMinKHz, c.HardwareMaxKHz)
		}
		if r.ConfigPath != "" {
			fmt.Fprintf(out, "config: %s\n", r.ConfigPath)
		}
		return nil
	}
	return &hal.Error{Kind: hal.KindInvalidArgument, Op: "debug",
		Err: fmt.Errorf("unknown format %q, expected text or yaml", flagFormat)}
}
