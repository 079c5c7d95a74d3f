package hardware

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRunner answers commands from a table keyed by "name arg1 arg2 ...".
type fakeRunner struct {
	outputs map[string]string
	calls   []string
}

func (f *fakeRunner) Run(_ context.Context, name string, args ...string) ([]byte, error) {
	key := strings.TrimSpace(name + " " + strings.Join(args, " "))
	f.calls = append(f.calls, key)
	out, ok := f.outputs[key]
	if !ok {
		return nil, errors.New("command not found: " + key)
	}
	return []byte(out), nil
}

func sysctlOutputs(kv map[string]string) map[string]string {
	out := make(map[string]string, len(kv))
	for k, v := range kv {
		out["sysctl -n "+k] = v + "\n"
	}
	return out
}

func staticMemory(n uint64) func(context.Context) (uint64, error) {
	return func(context.Context) (uint64, error) { return n, nil }
}

func TestDarwinAppleSilicon(t *testing.T) {
	runner := &fakeRunner{outputs: sysctlOutputs(map[string]string{
		"hw.logicalcpu":             "10",
		"hw.physicalcpu":            "10",
		"hw.perflevel0.physicalcpu": "6",
		"hw.perflevel1.physicalcpu": "4",
		"machdep.cpu.brand_string":  "Apple M2 Pro",
		"hw.machine":                "arm64",
	})}

	d := NewDetector(Options{GOOS: "darwin", GOARCH: "arm64", Runner: runner, MemoryTotal: staticMemory(32 << 30)})
	info := d.Detect(context.Background())

	assert.Equal(t, PlatformDarwin, info.Platform)
	assert.Equal(t, EnvironmentNative, info.Environment)
	assert.Equal(t, uint64(32<<30), info.TotalMemory)
	require.Len(t, info.CPUs, 1)

	c := info.CPUs[0]
	assert.Equal(t, "Apple", c.VendorID)
	assert.Equal(t, "Apple M2 Pro", c.ModelName)
	assert.Equal(t, 10, c.Cores)
	assert.Equal(t, 4, c.EfficiencyCores)
	assert.Equal(t, 10, c.Threads)
	assert.Equal(t, "arm64", c.Arch)
	assert.Equal(t, 6, c.PerformanceCores())
}

func TestDarwinIntelWithoutPerfLevels(t *testing.T) {
	runner := &fakeRunner{outputs: sysctlOutputs(map[string]string{
		"hw.logicalcpu":            "16",
		"hw.physicalcpu":           "8",
		"machdep.cpu.brand_string": "Intel(R) Core(TM) i9-9880H CPU @ 2.30GHz",
		"machdep.cpu.vendor":       "GenuineIntel",
		"hw.cpufrequency_max":      "2300000000",
		"hw.machine":               "x86_64",
	})}

	info := NewDetector(Options{GOOS: "darwin", Runner: runner, MemoryTotal: staticMemory(1)}).Detect(context.Background())
	require.Len(t, info.CPUs, 1)

	c := info.CPUs[0]
	assert.Equal(t, "GenuineIntel", c.VendorID)
	assert.Equal(t, 8, c.Cores)
	assert.Equal(t, 0, c.EfficiencyCores)
	assert.Equal(t, 16, c.Threads)
	assert.Equal(t, uint64(2_300_000_000), c.ClockHz)
}

const hybridCPUInfo = `processor	: 0
vendor_id	: GenuineIntel
model name	: 12th Gen Intel(R) Core(TM) i7-1260P
physical id	: 0
core id		: 0
cpu MHz		: 4700.000

processor	: 1
vendor_id	: GenuineIntel
model name	: 12th Gen Intel(R) Core(TM) i7-1260P
physical id	: 0
core id		: 0
cpu MHz		: 4700.000

processor	: 2
vendor_id	: GenuineIntel
model name	: 12th Gen Intel(R) Core(TM) i7-1260P
physical id	: 0
core id		: 1
cpu MHz		: 4600.000

processor	: 3
vendor_id	: GenuineIntel
model name	: 12th Gen Intel(R) Core(TM) i7-1260P
physical id	: 0
core id		: 1
cpu MHz		: 4600.000

processor	: 4
vendor_id	: GenuineIntel
model name	: 12th Gen Intel(R) Core(TM) i7-1260P
physical id	: 0
core id		: 8
cpu MHz		: 2100.000

processor	: 5
vendor_id	: GenuineIntel
model name	: 12th Gen Intel(R) Core(TM) i7-1260P
physical id	: 0
core id		: 9
cpu MHz		: 2100.000
`

const dualSocketCPUInfo = `processor	: 0
vendor_id	: AuthenticAMD
model name	: AMD EPYC 7302 16-Core Processor
physical id	: 0
core id		: 0
cpu MHz		: 3000.000

processor	: 1
vendor_id	: AuthenticAMD
model name	: AMD EPYC 7302 16-Core Processor
physical id	: 0
core id		: 1
cpu MHz		: 3000.000

processor	: 2
vendor_id	: AuthenticAMD
model name	: AMD EPYC 7302 16-Core Processor
physical id	: 1
core id		: 0
cpu MHz		: 3000.000

processor	: 3
vendor_id	: AuthenticAMD
model name	: AMD EPYC 7302 16-Core Processor
physical id	: 1
core id		: 1
cpu MHz		: 3000.000
`

func TestParseCPUInfo(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		threshold uint64
		want      []CPUInfo
		wantErr   bool
	}{
		{
			name:      "hybrid package",
			input:     hybridCPUInfo,
			threshold: DefaultEfficiencyClockHz,
			want: []CPUInfo{{
				VendorID:        "GenuineIntel",
				ModelName:       "12th Gen Intel(R) Core(TM) i7-1260P",
				Cores:           4,
				EfficiencyCores: 2,
				Threads:         6,
				ClockHz:         4_700_000_000,
				Arch:            "amd64",
			}},
		},
		{
			name:      "dual socket",
			input:     dualSocketCPUInfo,
			threshold: DefaultEfficiencyClockHz,
			want: []CPUInfo{
				{VendorID: "AuthenticAMD", ModelName: "AMD EPYC 7302 16-Core Processor", Cores: 2, Threads: 2, ClockHz: 3_000_000_000, Arch: "amd64"},
				{VendorID: "AuthenticAMD", ModelName: "AMD EPYC 7302 16-Core Processor", Cores: 2, Threads: 2, ClockHz: 3_000_000_000, Arch: "amd64"},
			},
		},
		{
			name:      "uniformly slow cores are not efficiency cores",
			input:     hybridCPUInfo,
			threshold: 5_000_000_000,
			want: []CPUInfo{{
				VendorID:  "GenuineIntel",
				ModelName: "12th Gen Intel(R) Core(TM) i7-1260P",
				Cores:     4,
				Threads:   6,
				ClockHz:   4_700_000_000,
				Arch:      "amd64",
			}},
		},
		{
			name:      "missing core id counts each processor",
			input:     "processor\t: 0\nmodel name\t: ARMv8\n\nprocessor\t: 1\nmodel name\t: ARMv8\n",
			threshold: DefaultEfficiencyClockHz,
			want:      []CPUInfo{{ModelName: "ARMv8", Cores: 2, Threads: 2, Arch: "amd64"}},
		},
		{
			name:      "empty",
			input:     "",
			threshold: DefaultEfficiencyClockHz,
			wantErr:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseCPUInfo(strings.NewReader(tt.input), "amd64", tt.threshold)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLinuxDetectorReadsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cpuinfo")
	require.NoError(t, os.WriteFile(path, []byte(dualSocketCPUInfo), 0o644))

	info := NewDetector(Options{GOOS: "linux", GOARCH: "amd64", CPUInfoPath: path, MemoryTotal: staticMemory(64 << 30)}).
		Detect(context.Background())

	assert.Equal(t, PlatformLinux, info.Platform)
	assert.Len(t, info.CPUs, 2)
	assert.Equal(t, 4, info.TotalCores())
	assert.Equal(t, 4, info.TotalThreads())
	assert.Equal(t, 0, info.TotalEfficiencyCores())
}

func TestLinuxMissingFileFallsBack(t *testing.T) {
	d := NewDetector(Options{
		GOOS:        "linux",
		GOARCH:      "arm64",
		CPUInfoPath: filepath.Join(t.TempDir(), "missing"),
		MemoryTotal: staticMemory(0),
	}).(*platformDetector)
	d.fallback = &fallbackProbe{
		arch:   "arm64",
		counts: func(context.Context, bool) (int, error) { return 8, nil },
		info: func(context.Context) ([]cpu.InfoStat, error) {
			return []cpu.InfoStat{{ModelName: " Neoverse-N1 ", Mhz: 2500}}, nil
		},
	}

	info := d.Detect(context.Background())
	require.Len(t, info.CPUs, 1)
	c := info.CPUs[0]
	assert.Equal(t, "Unknown", c.VendorID)
	assert.Equal(t, "Neoverse-N1", c.ModelName)
	assert.Equal(t, 8, c.Cores)
	assert.Equal(t, 8, c.Threads)
	assert.Equal(t, 0, c.EfficiencyCores)
	assert.Equal(t, uint64(2_500_000_000), c.ClockHz)
}

const wmicOutput = "\r\nNode,Manufacturer,MaxClockSpeed,Name,NumberOfCores,NumberOfLogicalProcessors\r\n" +
	"DESKTOP,GenuineIntel,3600,Intel(R) Core(TM) i7-9700K CPU @ 3.60GHz,8,8\r\n"

const powershellOutput = `"Manufacturer","Name","NumberOfCores","NumberOfLogicalProcessors","MaxClockSpeed"
"AuthenticAMD","AMD Ryzen 9 5950X 16-Core Processor","16","32","3401"
`

func TestWindowsProbe(t *testing.T) {
	wmicKey := "wmic cpu get Manufacturer,Name,NumberOfCores,NumberOfLogicalProcessors,MaxClockSpeed /format:csv"
	psKey := "powershell -NoProfile -Command Get-CimInstance Win32_Processor | Select-Object " +
		"Manufacturer,Name,NumberOfCores,NumberOfLogicalProcessors,MaxClockSpeed | ConvertTo-Csv -NoTypeInformation"

	tests := []struct {
		name    string
		outputs map[string]string
		want    CPUInfo
	}{
		{
			name:    "wmic",
			outputs: map[string]string{wmicKey: wmicOutput},
			want: CPUInfo{
				VendorID:  "GenuineIntel",
				ModelName: "Intel(R) Core(TM) i7-9700K CPU @ 3.60GHz",
				Cores:     8,
				Threads:   8,
				ClockHz:   3_600_000_000,
				Arch:      "amd64",
			},
		},
		{
			name:    "powershell when wmic is missing",
			outputs: map[string]string{psKey: powershellOutput},
			want: CPUInfo{
				VendorID:  "AuthenticAMD",
				ModelName: "AMD Ryzen 9 5950X 16-Core Processor",
				Cores:     16,
				Threads:   32,
				ClockHz:   3_401_000_000,
				Arch:      "amd64",
			},
		},
		{
			name:    "powershell when wmic output is unusable",
			outputs: map[string]string{wmicKey: "No Instance(s) Available.\r\n", psKey: powershellOutput},
			want: CPUInfo{
				VendorID:  "AuthenticAMD",
				ModelName: "AMD Ryzen 9 5950X 16-Core Processor",
				Cores:     16,
				Threads:   32,
				ClockHz:   3_401_000_000,
				Arch:      "amd64",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &fakeRunner{outputs: tt.outputs}
			info := NewDetector(Options{GOOS: "windows", GOARCH: "amd64", Runner: runner, MemoryTotal: staticMemory(0)}).
				Detect(context.Background())
			assert.Equal(t, PlatformWindows, info.Platform)
			require.Len(t, info.CPUs, 1)
			assert.Equal(t, tt.want, info.CPUs[0])
		})
	}
}

func TestParseWindowsCSVMultipleSockets(t *testing.T) {
	data := "Node,Manufacturer,MaxClockSpeed,Name,NumberOfCores,NumberOfLogicalProcessors\n" +
		"SRV,GenuineIntel,2100,Xeon,12,24\n" +
		"SRV,GenuineIntel,2100,Xeon,12,24\n"
	cpus, err := parseWindowsCSV([]byte(data), "amd64")
	require.NoError(t, err)
	assert.Len(t, cpus, 2)
	for _, c := range cpus {
		assert.Equal(t, 12, c.Cores)
		assert.Equal(t, 24, c.Threads)
		assert.Equal(t, 0, c.EfficiencyCores)
	}
}

func TestUnknownPlatformUsesFallback(t *testing.T) {
	d := NewDetector(Options{GOOS: "plan9", GOARCH: "386", MemoryTotal: staticMemory(0)}).(*platformDetector)
	assert.Equal(t, PlatformUnknown, d.platform)
	assert.Equal(t, "fallback", d.primary.name())

	info := d.Detect(context.Background())
	assert.Equal(t, PlatformUnknown, info.Platform)
	require.NotEmpty(t, info.CPUs)
	assert.Positive(t, info.TotalThreads())
}

func TestMemoryErrorReportsZero(t *testing.T) {
	runner := &fakeRunner{outputs: sysctlOutputs(map[string]string{"hw.logicalcpu": "4", "hw.physicalcpu": "4"})}
	info := NewDetector(Options{
		GOOS:        "darwin",
		Runner:      runner,
		MemoryTotal: func(context.Context) (uint64, error) { return 0, errors.New("boom") },
	}).Detect(context.Background())
	assert.Zero(t, info.TotalMemory)
}

type countingDetector struct {
	calls atomic.Int32
}

func (c *countingDetector) Detect(context.Context) SystemInfo {
	c.calls.Add(1)
	return SystemInfo{Platform: PlatformLinux, CPUs: []CPUInfo{{Cores: 4, Threads: 8}}}
}

func TestCachedProbesOnce(t *testing.T) {
	inner := &countingDetector{}
	cached := NewCached(inner)

	first := cached.Detect(context.Background())
	first.CPUs[0].Cores = 99

	second := cached.Detect(context.Background())
	assert.Equal(t, int32(1), inner.calls.Load())
	assert.Equal(t, 4, second.CPUs[0].Cores, "callers must not be able to mutate the cached result")
}

// ctxDetector reports the real topology only while its context is live.
type ctxDetector struct{}

func (ctxDetector) Detect(ctx context.Context) SystemInfo {
	if ctx.Err() != nil {
		return SystemInfo{Platform: PlatformUnknown, CPUs: []CPUInfo{{Cores: 1, Threads: 1}}}
	}
	return SystemInfo{Platform: PlatformLinux, CPUs: []CPUInfo{{Cores: 8, Threads: 16}}}
}

func TestCachedIgnoresFirstCallerCancellation(t *testing.T) {
	cached := NewCached(ctxDetector{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	tests := []struct {
		name string
		ctx  context.Context
	}{
		{"cancelled first caller", ctx},
		{"later caller", context.Background()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info := cached.Detect(tt.ctx)
			assert.Equal(t, PlatformLinux, info.Platform)
			assert.Equal(t, 8, info.TotalCores())
		})
	}
}

func TestNormalise(t *testing.T) {
	c := CPUInfo{Cores: 8, EfficiencyCores: 12, Threads: 4}.normalise()
	assert.Equal(t, 8, c.Cores)
	assert.Equal(t, 8, c.EfficiencyCores)
	assert.Equal(t, 8, c.Threads)
	assert.Equal(t, "Unknown", c.VendorID)
	assert.NotEmpty(t, c.Arch)
}
