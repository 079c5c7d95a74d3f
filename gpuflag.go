package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/sammcj/gollama-planner/vramestimator"
)

const (
	gpuSpecFormat = "id:library:freeMB[:totalMB[:driverMajor[:minMB[:name]]]]"
	gpuFlagUsage  = "GPU snapshot as " + gpuSpecFormat + ", repeatable"
)

// parseGPUSpec reads one --gpu value. Sizes are in MiB; total defaults to
// free. minMB is the runtime's fixed reservation on the device. The name is
// the last field and may itself contain colons.
func parseGPUSpec(spec string) (vramestimator.GPUInfo, error) {
	parts := strings.SplitN(spec, ":", 7)
	if len(parts) < 3 {
		return vramestimator.GPUInfo{}, fmt.Errorf("invalid gpu %q: want %s", spec, gpuSpecFormat)
	}

	id := strings.TrimSpace(parts[0])
	if id == "" {
		return vramestimator.GPUInfo{}, fmt.Errorf("invalid gpu %q: empty id", spec)
	}

	library, err := vramestimator.ParseGPULibrary(parts[1])
	if err != nil {
		return vramestimator.GPUInfo{}, fmt.Errorf("invalid gpu %q: %w", spec, err)
	}

	free, err := parseMiB(parts[2])
	if err != nil {
		return vramestimator.GPUInfo{}, fmt.Errorf("invalid gpu %q free memory: %w", spec, err)
	}

	gpu := vramestimator.GPUInfo{
		ID:          id,
		Library:     library,
		FreeMemory:  free,
		TotalMemory: free,
	}

	if len(parts) > 3 && parts[3] != "" {
		total, err := parseMiB(parts[3])
		if err != nil {
			return vramestimator.GPUInfo{}, fmt.Errorf("invalid gpu %q total memory: %w", spec, err)
		}
		if total < free {
			return vramestimator.GPUInfo{}, fmt.Errorf("invalid gpu %q: total memory below free memory", spec)
		}
		gpu.TotalMemory = total
	}

	if len(parts) > 4 && parts[4] != "" {
		major, err := strconv.Atoi(parts[4])
		if err != nil || major < 0 {
			return vramestimator.GPUInfo{}, fmt.Errorf("invalid gpu %q driver version %q", spec, parts[4])
		}
		gpu.DriverMajor = major
	}

	if len(parts) > 5 && parts[5] != "" {
		minimum, err := parseMiB(parts[5])
		if err != nil {
			return vramestimator.GPUInfo{}, fmt.Errorf("invalid gpu %q minimum memory: %w", spec, err)
		}
		if minimum > gpu.TotalMemory {
			return vramestimator.GPUInfo{}, fmt.Errorf("invalid gpu %q: minimum memory above total memory", spec)
		}
		gpu.MinimumMemory = minimum
	}

	if len(parts) > 6 {
		gpu.Name = strings.TrimSpace(parts[6])
	}

	return gpu, nil
}

func parseMiB(s string) (uint64, error) {
	n, err := strconv.ParseUint(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, err
	}
	return n << 20, nil
}

func parseGPUSpecs(specs []string) ([]vramestimator.GPUInfo, error) {
	gpus := make([]vramestimator.GPUInfo, 0, len(specs))
	seen := make(map[string]bool, len(specs))
	for _, spec := range specs {
		gpu, err := parseGPUSpec(spec)
		if err != nil {
			return nil, err
		}
		if seen[gpu.ID] {
			return nil, fmt.Errorf("duplicate gpu id %q", gpu.ID)
		}
		seen[gpu.ID] = true
		gpus = append(gpus, gpu)
	}
	return gpus, nil
}
