package hardware

import (
	"context"
	"runtime"
	"strings"

	"github.com/shirou/gopsutil/v3/cpu"
)

// fallbackProbe uses the OS-reported logical CPU list. It cannot tell SMT
// siblings apart, so cores are reported equal to threads.
type fallbackProbe struct {
	arch   string
	counts func(ctx context.Context, logical bool) (int, error)
	info   func(ctx context.Context) ([]cpu.InfoStat, error)
}

func newFallbackProbe(arch string) *fallbackProbe {
	return &fallbackProbe{
		arch:   arch,
		counts: cpu.CountsWithContext,
		info:   cpu.InfoWithContext,
	}
}

func (p *fallbackProbe) name() string { return "fallback" }

func (p *fallbackProbe) probe(ctx context.Context) ([]CPUInfo, error) {
	threads, err := p.counts(ctx, true)
	if err != nil || threads <= 0 {
		threads = runtime.NumCPU()
	}

	c := CPUInfo{
		VendorID: "Unknown",
		Cores:    threads,
		Threads:  threads,
		Arch:     p.arch,
	}
	if stats, err := p.info(ctx); err == nil && len(stats) > 0 {
		c.ModelName = strings.TrimSpace(stats[0].ModelName)
		if stats[0].Mhz > 0 {
			c.ClockHz = uint64(stats[0].Mhz * 1e6)
		}
	}
	return []CPUInfo{c}, nil
}

// runtimeCPU is the last resort when even gopsutil fails.
func runtimeCPU() CPUInfo {
	n := runtime.NumCPU()
	return CPUInfo{VendorID: "Unknown", Cores: n, Threads: n, Arch: runtime.GOARCH}
}
