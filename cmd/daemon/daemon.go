// Package daemon is a subcommand of the root command. It runs the policy
// control loop in the foreground until interrupted.
package daemon

// Copyright (C) 2025-2026 The Watt Authors
// SPDX-License-Identifier: BSD-3-Clause

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"watt/internal/app"
	"watt/internal/config"
	"watt/internal/daemon"
	"watt/internal/hal"
)

// CmdName is the subcommand name.
const CmdName = "daemon"

var flagVerbose bool

var examples = []string{
	fmt.Sprintf("  Run in the foreground:                $ %s %s", app.Name, CmdName),
	fmt.Sprintf("  Run with per-tick debug logging:      $ %s %s --verbose", app.Name, CmdName),
	fmt.Sprintf("  Run with an alternate configuration:  $ WATT_CONFIG=./watt.toml %s %s", app.Name, CmdName),
}

var Cmd = &cobra.Command{
	Use:           CmdName,
	Short:         "Run the power policy control loop",
	Long:          `Runs the control loop: samples CPU load, temperature, and battery state, resolves the active profile from the power source, and applies the profile through sysfs. Reacts to SIGHUP by reloading the configuration. Requires root.`,
	Example:       strings.Join(examples, "\n"),
	RunE:          runCmd,
	GroupID:       "primary",
	Args:          cobra.NoArgs,
	SilenceErrors: true,
}

func init() {
	Cmd.Flags().BoolVar(&flagVerbose, "verbose", false, "log every tick at debug level to stderr")
}

func runCmd(cmd *cobra.Command, args []string) error {
	if flagVerbose {
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))
	}
	cfgPath, err := config.Resolve()
	if err != nil {
		return err
	}
	// a parse failure is fatal for the daemon: running with half a policy is
	// worse than not running
	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("failed to load configuration", slog.String("error", err.Error()))
		return err
	}
	if cfgPath == "" {
		slog.Info("no configuration file found, using built-in defaults")
	} else {
		slog.Info("configuration loaded", slog.String("path", cfgPath))
	}
	sys, err := hal.New()
	if err != nil {
		slog.Error("hardware discovery failed", slog.String("error", err.Error()))
		return err
	}
	d, err := daemon.New(cfg, cfgPath, sys)
	if err != nil {
		return err
	}
	return d.Run()
}
