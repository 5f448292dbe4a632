// Copyright (C) 2025-2026 The Watt Authors
// SPDX-License-Identifier: BSD-3-Clause

package main

import (
	"os"
	"runtime/pprof"

	"watt/cmd"
)

func main() {
	// profile only if the environment variable is set
	if os.Getenv("WATT_PROFILE") != "" {
		cpuFile, err := os.Create("cpu.prof")
		if err != nil {
			panic(err)
		}
		defer cpuFile.Close()

		if err := pprof.StartCPUProfile(cpuFile); err != nil {
			panic(err)
		}
		defer pprof.StopCPUProfile()
	}
	cmd.Execute()
}
