package hardware

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/mem"

	"github.com/sammcj/gollama-planner/logging"
)

// DefaultEfficiencyClockHz is the clock below which a Linux core is counted as
// an efficiency core when faster siblings exist in the same package. It is a
// tunable heuristic, not a hardware fact.
const DefaultEfficiencyClockHz uint64 = 3_000_000_000

const probeTimeout = 3 * time.Second

var errNoCPUs = errors.New("probe reported no CPUs")

// Detector describes the local machine. Implementations never fail.
type Detector interface {
	Detect(ctx context.Context) SystemInfo
}

// Options tune detector construction. Zero values select the real system.
type Options struct {
	GOOS              string
	GOARCH            string
	Runner            CommandRunner
	CPUInfoPath       string
	EfficiencyClockHz uint64
	MemoryTotal       func(ctx context.Context) (uint64, error)
}

func (o Options) withDefaults() Options {
	if o.GOOS == "" {
		o.GOOS = runtime.GOOS
	}
	if o.GOARCH == "" {
		o.GOARCH = runtime.GOARCH
	}
	if o.Runner == nil {
		o.Runner = execRunner{}
	}
	if o.CPUInfoPath == "" {
		o.CPUInfoPath = "/proc/cpuinfo"
	}
	if o.EfficiencyClockHz == 0 {
		o.EfficiencyClockHz = DefaultEfficiencyClockHz
	}
	if o.MemoryTotal == nil {
		o.MemoryTotal = virtualMemoryTotal
	}
	return o
}

// cpuProbe is one platform-specific way of reading CPU topology.
type cpuProbe interface {
	name() string
	probe(ctx context.Context) ([]CPUInfo, error)
}

type platformDetector struct {
	platform    Platform
	primary     cpuProbe
	fallback    cpuProbe
	memoryTotal func(ctx context.Context) (uint64, error)
}

// NewDetector picks the probe for opts.GOOS once. Unknown platforms go straight
// to the fallback probe.
func NewDetector(opts Options) Detector {
	opts = opts.withDefaults()
	fallback := newFallbackProbe(opts.GOARCH)

	platform := ParsePlatform(opts.GOOS)
	var primary cpuProbe
	switch platform {
	case PlatformDarwin:
		primary = &darwinProbe{runner: opts.Runner}
	case PlatformLinux:
		primary = &linuxProbe{path: opts.CPUInfoPath, arch: opts.GOARCH, efficiencyClockHz: opts.EfficiencyClockHz}
	case PlatformWindows:
		primary = &windowsProbe{runner: opts.Runner, arch: opts.GOARCH}
	default:
		primary = fallback
	}

	return &platformDetector{
		platform:    platform,
		primary:     primary,
		fallback:    fallback,
		memoryTotal: opts.MemoryTotal,
	}
}

func (d *platformDetector) Detect(ctx context.Context) SystemInfo {
	cpus, err := d.primary.probe(ctx)
	if err == nil && len(cpus) == 0 {
		err = errNoCPUs
	}
	if err != nil {
		logging.DebugLogger.Debug().Err(err).Str("probe", d.primary.name()).Msg("cpu probe failed, using fallback")
		cpus, err = d.fallback.probe(ctx)
		if err != nil || len(cpus) == 0 {
			cpus = []CPUInfo{runtimeCPU()}
		}
	}

	for i := range cpus {
		cpus[i] = cpus[i].normalise()
	}

	total, err := d.memoryTotal(ctx)
	if err != nil {
		logging.DebugLogger.Debug().Err(err).Msg("failed to read total memory")
		total = 0
	}

	info := SystemInfo{
		Platform:    d.platform,
		CPUs:        cpus,
		TotalMemory: total,
		Environment: EnvironmentNative,
	}

	logging.InfoLogger.Info().
		Str("platform", string(info.Platform)).
		Int("packages", len(info.CPUs)).
		Int("cores", info.TotalCores()).
		Int("efficiency_cores", info.TotalEfficiencyCores()).
		Int("threads", info.TotalThreads()).
		Uint64("memory", info.TotalMemory).
		Msg("hardware detected")

	return info
}

// Cached runs the wrapped detector once and serves that result forever.
type Cached struct {
	detector Detector
	once     sync.Once
	info     SystemInfo
}

// NewCached wraps d so that it is probed at most once.
func NewCached(d Detector) *Cached {
	return &Cached{detector: d}
}

// Detect runs the wrapped detector on first use. The result is kept for the
// whole process, so the first caller's cancellation is not passed on.
func (c *Cached) Detect(ctx context.Context) SystemInfo {
	c.once.Do(func() {
		c.info = c.detector.Detect(context.WithoutCancel(ctx))
	})
	return c.info.Copy()
}

var defaultDetector = sync.OnceValue(func() *Cached {
	return NewCached(NewDetector(Options{}))
})

// System returns the process-wide SystemInfo, detecting it on first use.
func System(ctx context.Context) SystemInfo {
	return defaultDetector().Detect(ctx)
}

func virtualMemoryTotal(ctx context.Context) (uint64, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return 0, err
	}
	return vm.Total, nil
}
