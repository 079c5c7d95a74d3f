package hardware

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// darwinProbe reads topology from sysctl. Apple Silicon reports performance
// and efficiency clusters through the hw.perflevel keys.
type darwinProbe struct {
	runner CommandRunner
}

func (p *darwinProbe) name() string { return "darwin" }

func (p *darwinProbe) sysctl(ctx context.Context, key string) (string, error) {
	out, err := p.runner.Run(ctx, "sysctl", "-n", key)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

func (p *darwinProbe) sysctlInt(ctx context.Context, key string) (int, error) {
	s, err := p.sysctl(ctx, key)
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("sysctl %s: %w", key, err)
	}
	return n, nil
}

func (p *darwinProbe) probe(ctx context.Context) ([]CPUInfo, error) {
	threads, err := p.sysctlInt(ctx, "hw.logicalcpu")
	if err != nil {
		return nil, err
	}
	cores, err := p.sysctlInt(ctx, "hw.physicalcpu")
	if err != nil {
		return nil, err
	}

	// Intel Macs have no perflevel keys; treat every core as a performance core.
	efficiency := 0
	perf, perfErr := p.sysctlInt(ctx, "hw.perflevel0.physicalcpu")
	eff, effErr := p.sysctlInt(ctx, "hw.perflevel1.physicalcpu")
	if perfErr == nil && effErr == nil && perf > 0 {
		efficiency = eff
	}

	brand, _ := p.sysctl(ctx, "machdep.cpu.brand_string")
	arch, _ := p.sysctl(ctx, "hw.machine")

	var clock uint64
	if s, err := p.sysctl(ctx, "hw.cpufrequency_max"); err == nil {
		clock, _ = strconv.ParseUint(s, 10, 64)
	}

	vendor := ""
	if strings.HasPrefix(brand, "Apple") {
		vendor = "Apple"
	} else if v, err := p.sysctl(ctx, "machdep.cpu.vendor"); err == nil {
		vendor = v
	}

	return []CPUInfo{{
		VendorID:        vendor,
		ModelName:       brand,
		Cores:           cores,
		EfficiencyCores: efficiency,
		Threads:         threads,
		ClockHz:         clock,
		Arch:            arch,
	}}, nil
}
