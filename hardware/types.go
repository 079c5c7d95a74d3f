// Package hardware probes the local machine once and describes its CPU
// topology, platform and total memory. Detection never fails: when a platform
// probe errors the generic fallback probe answers instead.
package hardware

import "runtime"

// Platform identifies the operating system family the detector ran on.
type Platform string

const (
	PlatformLinux   Platform = "linux"
	PlatformDarwin  Platform = "darwin"
	PlatformWindows Platform = "windows"
	PlatformUnknown Platform = "unknown"
)

// EnvironmentNative is the only detection environment this engine produces.
const EnvironmentNative = "native"

// ParsePlatform maps a GOOS value onto the closed Platform set.
func ParsePlatform(goos string) Platform {
	switch goos {
	case "linux":
		return PlatformLinux
	case "darwin":
		return PlatformDarwin
	case "windows":
		return PlatformWindows
	default:
		return PlatformUnknown
	}
}

// CPUInfo describes one physical CPU package.
type CPUInfo struct {
	VendorID        string `json:"vendor_id"`
	ModelName       string `json:"model_name"`
	Cores           int    `json:"cores"`
	EfficiencyCores int    `json:"efficiency_cores"`
	Threads         int    `json:"threads"`
	ClockHz         uint64 `json:"clock_hz"`
	Arch            string `json:"arch"`
}

// PerformanceCores is the number of cores suited to latency-sensitive work.
func (c CPUInfo) PerformanceCores() int {
	return c.Cores - c.EfficiencyCores
}

// normalise enforces EfficiencyCores <= Cores <= Threads on probe output.
func (c CPUInfo) normalise() CPUInfo {
	if c.Threads < 0 {
		c.Threads = 0
	}
	if c.Cores <= 0 {
		c.Cores = c.Threads
	}
	if c.Threads < c.Cores {
		c.Threads = c.Cores
	}
	if c.EfficiencyCores < 0 {
		c.EfficiencyCores = 0
	}
	if c.EfficiencyCores > c.Cores {
		c.EfficiencyCores = c.Cores
	}
	if c.VendorID == "" {
		c.VendorID = "Unknown"
	}
	if c.Arch == "" {
		c.Arch = runtime.GOARCH
	}
	return c
}

// SystemInfo is the normalised result of a detection run. Treat it as
// read-only; Copy before handing it to code that might modify the slice.
type SystemInfo struct {
	Platform    Platform  `json:"platform"`
	CPUs        []CPUInfo `json:"cpus"`
	TotalMemory uint64    `json:"total_memory"`
	Environment string    `json:"environment"`
}

// TotalCores sums physical cores over all packages.
func (s SystemInfo) TotalCores() int {
	n := 0
	for _, c := range s.CPUs {
		n += c.Cores
	}
	return n
}

// TotalThreads sums logical threads over all packages.
func (s SystemInfo) TotalThreads() int {
	n := 0
	for _, c := range s.CPUs {
		n += c.Threads
	}
	return n
}

// TotalEfficiencyCores sums efficiency cores over all packages.
func (s SystemInfo) TotalEfficiencyCores() int {
	n := 0
	for _, c := range s.CPUs {
		n += c.EfficiencyCores
	}
	return n
}

// Copy returns a SystemInfo that shares no memory with s.
func (s SystemInfo) Copy() SystemInfo {
	out := s
	out.CPUs = append([]CPUInfo(nil), s.CPUs...)
	return out
}
