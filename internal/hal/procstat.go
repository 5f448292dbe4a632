package hal

// Copyright (C) 2025-2026 The Watt Authors
// SPDX-License-Identifier: BSD-3-Clause

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Jiffies holds the per-state tick counters for one CPU line of /proc/stat.
type Jiffies struct {
	User    uint64
	Nice    uint64
	System  uint64
	Idle    uint64
	IOWait  uint64
	IRQ     uint64
	SoftIRQ uint64
	Steal   uint64
}

// Total returns the sum of all counted states.
func (j Jiffies) Total() uint64 {
	return j.User + j.Nice + j.System + j.Idle + j.IOWait + j.IRQ + j.SoftIRQ + j.Steal
}

// Busy returns the non-idle share of the counters. Idle and iowait both count
// as not doing work.
func (j Jiffies) Busy() uint64 {
	return j.Total() - j.Idle - j.IOWait
}

// ReadCPUJiffies parses /proc/stat and returns the per-CPU counters keyed by
// logical CPU ID. The aggregate "cpu" line is skipped; utilization is derived
// per CPU and averaged by the sampler.
func (s *System) ReadCPUJiffies() (map[int]Jiffies, error) {
	statPath := filepath.Join(s.ProcfsRoot, "stat")
	f, err := os.Open(statPath)
	if err != nil {
		return nil, classifyIOErr("read_cpu_jiffies", statPath, err)
	}
	defer f.Close()

	perCPU := make(map[int]Jiffies)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 9 || !strings.HasPrefix(fields[0], "cpu") || fields[0] == "cpu" {
			continue
		}
		id, err := strconv.Atoi(fields[0][3:])
		if err != nil {
			continue
		}
		values := make([]uint64, 8)
		for i := range values {
			values[i], _ = strconv.ParseUint(fields[i+1], 10, 64)
		}
		perCPU[id] = Jiffies{
			User:    values[0],
			Nice:    values[1],
			System:  values[2],
			Idle:    values[3],
			IOWait:  values[4],
			IRQ:     values[5],
			SoftIRQ: values[6],
			Steal:   values[7],
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, classifyIOErr("read_cpu_jiffies", statPath, err)
	}
	if len(perCPU) == 0 {
		return nil, newError(KindIoError, "read_cpu_jiffies", statPath, fmt.Errorf("no per-CPU lines found"))
	}
	return perCPU, nil
}
