// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package hwinfo

import (
	"os"
	"runtime"
	"strconv"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/mem"
)

// Environment is a static description of the scanning host.
type Environment struct {
	Hostname      string
	OS            string
	Platform      string
	KernelVersion string
	Architecture  string
	CPUModel      string
	LogicalCPUs   int
	MemoryTotal   uint64
}

// Probe collects the Environment of the running host.
func Probe() Environment {
	environment := Environment{
		OS:           runtime.GOOS,
		Architecture: runtime.GOARCH,
		LogicalCPUs:  runtime.NumCPU(),
	}

	if info, err := host.Info(); err == nil {
		environment.Hostname = info.Hostname
		if info.Platform != "" {
			environment.Platform = info.Platform + " " + info.PlatformVersion
		}
		environment.KernelVersion = info.KernelVersion
		if info.KernelArch != "" {
			environment.Architecture = info.KernelArch
		}
	}
	if environment.Hostname == "" {
		environment.Hostname, _ = os.Hostname()
	}

	if infos, err := cpu.Info(); err == nil && len(infos) > 0 {
		environment.CPUModel = infos[0].ModelName
	}
	if count, err := cpu.Counts(true); err == nil && count > 0 {
		environment.LogicalCPUs = count
	}

	if stat, err := mem.VirtualMemory(); err == nil {
		environment.MemoryTotal = stat.Total
	}
	return environment
}

// Fields returns the non-empty fields as name/value pairs in a fixed
// order, for report output.
func (e Environment) Fields() [][2]string {
	candidates := [][2]string{
		{"hostname", e.Hostname},
		{"os", e.OS},
		{"platform", e.Platform},
		{"kernel", e.KernelVersion},
		{"arch", e.Architecture},
		{"cpu_model", e.CPUModel},
	}
	var fields [][2]string
	for _, candidate := range candidates {
		if candidate[1] != "" {
			fields = append(fields, candidate)
		}
	}
	if e.LogicalCPUs > 0 {
		fields = append(fields, [2]string{"logical_cpus", strconv.Itoa(e.LogicalCPUs)})
	}
	if e.MemoryTotal > 0 {
		fields = append(fields, [2]string{"memory_total", strconv.FormatUint(e.MemoryTotal, 10)})
	}
	return fields
}
