// Package set holds the one-shot mutator subcommands. Each is a thin wrapper
// over a single HAL capability; the daemon is not involved.
package set

// Copyright (C) 2025-2026 The Watt Authors
// SPDX-License-Identifier: BSD-3-Clause

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"watt/internal/hal"
)

var flagCoreID int

const flagCoreIDName = "core-id"

// Commands returns all one-shot mutator subcommands for registration on the
// root command.
func Commands() []*cobra.Command {
	governorCmd := &cobra.Command{
		Use:           "set-governor <name>",
		Short:         "Set the scaling governor",
		GroupID:       "set",
		Args:          cobra.ExactArgs(1),
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return perCPU(cmd, func(sys *hal.System, cpu int) error {
				return sys.SetGovernor(cpu, args[0])
			})
		},
	}
	governorCmd.Flags().IntVar(&flagCoreID, flagCoreIDName, -1, "apply to a single logical CPU")

	forceGovernorCmd := &cobra.Command{
		Use:           "force-governor <name>",
		Short:         "Set the scaling governor without validating availability",
		GroupID:       "set",
		Args:          cobra.ExactArgs(1),
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return allCPUs(func(sys *hal.System, cpu int) error {
				return sys.ForceGovernor(cpu, args[0])
			})
		},
	}

	turboCmd := &cobra.Command{
		Use:           "set-turbo {always|never|auto}",
		Short:         "Set turbo boost behavior",
		GroupID:       "set",
		Args:          cobra.ExactArgs(1),
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			var state hal.TurboState
			switch args[0] {
			case "always":
				state = hal.TurboOn
			case "never":
				state = hal.TurboOff
			case "auto":
				// auto means no one-shot override; clear any previous one
				state = hal.TurboDefault
			default:
				return &hal.Error{Kind: hal.KindInvalidArgument, Op: "set-turbo",
					Err: fmt.Errorf("must be always, never, or auto, got %q", args[0])}
			}
			sys, err := hal.New()
			if err != nil {
				return err
			}
			return sys.SetTurbo(state)
		},
	}

	eppCmd := &cobra.Command{
		Use:           "set-epp <name>",
		Short:         "Set the energy performance preference",
		GroupID:       "set",
		Args:          cobra.ExactArgs(1),
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return allCPUs(func(sys *hal.System, cpu int) error {
				return sys.SetEPP(cpu, args[0])
			})
		},
	}

	epbCmd := &cobra.Command{
		Use:           "set-epb <0-15|name>",
		Short:         "Set the energy performance bias",
		GroupID:       "set",
		Args:          cobra.ExactArgs(1),
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			value, err := hal.ParseEPB(args[0])
			if err != nil {
				return &hal.Error{Kind: hal.KindInvalidArgument, Op: "set-epb", Err: err}
			}
			return allCPUs(func(sys *hal.System, cpu int) error {
				return sys.SetEPB(cpu, value)
			})
		},
	}

	platformProfileCmd := &cobra.Command{
		Use:           "set-platform-profile <name>",
		Short:         "Set the ACPI platform profile",
		GroupID:       "set",
		Args:          cobra.ExactArgs(1),
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			sys, err := hal.New()
			if err != nil {
				return err
			}
			return sys.SetPlatformProfile(args[0])
		},
	}

	minFreqCmd := freqCmd("set-min-freq", "Set the minimum scaling frequency", true)
	maxFreqCmd := freqCmd("set-max-freq", "Set the maximum scaling frequency", false)

	thresholdsCmd := &cobra.Command{
		Use:           "set-battery-thresholds <start> <stop>",
		Short:         "Set the battery charge threshold pair",
		GroupID:       "set",
		Args:          cobra.ExactArgs(2),
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			start, err := strconv.Atoi(args[0])
			if err != nil {
				return &hal.Error{Kind: hal.KindInvalidArgument, Op: "battery_thresholds",
					Err: fmt.Errorf("start %q is not an integer", args[0])}
			}
			stop, err := strconv.Atoi(args[1])
			if err != nil {
				return &hal.Error{Kind: hal.KindInvalidArgument, Op: "battery_thresholds",
					Err: fmt.Errorf("stop %q is not an integer", args[1])}
			}
			sys, err := hal.New()
			if err != nil {
				return err
			}
			return sys.SetBatteryThresholds(start, stop)
		},
	}

	return []*cobra.Command{
		governorCmd, forceGovernorCmd, turboCmd, eppCmd, epbCmd,
		platformProfileCmd, minFreqCmd, maxFreqCmd, thresholdsCmd,
	}
}

// freqCmd builds set-min-freq/set-max-freq; the untouched side of the window
// keeps its current value.
func freqCmd(name, short string, isMin bool) *cobra.Command {
	var coreID int
	cmd := &cobra.Command{
		Use:           name + " <MHz>",
		Short:         short,
		GroupID:       "set",
		Args:          cobra.ExactArgs(1),
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			mhz, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil || mhz == 0 {
				return &hal.Error{Kind: hal.KindInvalidArgument, Op: "cpu_freq_limits",
					Err: fmt.Errorf("frequency %q is not a positive integer MHz value", args[0])}
			}
			return forCPUs(coreID, func(sys *hal.System, cpu int) error {
				currentMin, currentMax, err := sys.FreqLimits(cpu)
				if err != nil {
					return err
				}
				if isMin {
					return sys.SetFreqLimits(cpu, mhz*1000, currentMax)
				}
				return sys.SetFreqLimits(cpu, currentMin, mhz*1000)
			})
		},
	}
	cmd.Flags().IntVar(&coreID, flagCoreIDName, -1, "apply to a single logical CPU")
	return cmd
}

func perCPU(cmd *cobra.Command, apply func(*hal.System, int) error) error {
	coreID := -1
	if f := cmd.Flags().Lookup(flagCoreIDName); f != nil {
		coreID, _ = cmd.Flags().GetInt(flagCoreIDName)
	}
	return forCPUs(coreID, apply)
}

func allCPUs(apply func(*hal.System, int) error) error {
	return forCPUs(-1, apply)
}

func forCPUs(coreID int, apply func(*hal.System, int) error) error {
	sys, err := hal.New()
	if err != nil {
		return err
	}
	if coreID >= 0 {
		if sys.Topology().CPUByID(coreID) == nil {
			return &hal.Error{Kind: hal.KindInvalidArgument, Op: "core-id",
				Err: fmt.Errorf("no such CPU %d", coreID)}
		}
		return apply(sys, coreID)
	}
	for _, cpu := range sys.Topology().CPUs {
		if err := apply(sys, cpu.ID); err != nil {
			return err
		}
	}
	return nil
}
