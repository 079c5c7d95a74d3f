package hardware

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// linuxProbe parses /proc/cpuinfo, producing one CPUInfo per physical id.
type linuxProbe struct {
	path              string
	arch              string
	efficiencyClockHz uint64
}

func (p *linuxProbe) name() string { return "linux" }

func (p *linuxProbe) probe(ctx context.Context) ([]CPUInfo, error) {
	f, err := os.Open(p.path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return parseCPUInfo(f, p.arch, p.efficiencyClockHz)
}

type cpuPackage struct {
	vendor   string
	model    string
	threads  int
	coreMHz  map[string]float64 // core id -> highest clock seen on its threads
	coreSeen []string
}

type logicalCPU struct {
	processor  string
	vendor     string
	model      string
	physicalID string
	coreID     string
	mhz        float64
}

func parseCPUInfo(r io.Reader, arch string, efficiencyClockHz uint64) ([]CPUInfo, error) {
	var (
		logical []logicalCPU
		cur     logicalCPU
		started bool
	)
	flush := func() {
		if started {
			logical = append(logical, cur)
		}
		cur = logicalCPU{}
		started = false
	}

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			flush()
			continue
		}
		key, val, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		val = strings.TrimSpace(val)

		switch key {
		case "processor":
			// Some kernels omit the blank line between entries.
			if started && cur.processor != "" {
				flush()
			}
			cur.processor = val
			started = true
		case "vendor_id", "CPU implementer":
			if cur.vendor == "" {
				cur.vendor = val
			}
		case "model name", "Processor", "cpu model":
			cur.model = val
		case "physical id":
			cur.physicalID = val
		case "core id":
			cur.coreID = val
		case "cpu MHz":
			if mhz, err := strconv.ParseFloat(val, 64); err == nil {
				cur.mhz = mhz
			}
		}
	}
	flush()
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read cpuinfo: %w", err)
	}
	if len(logical) == 0 {
		return nil, errNoCPUs
	}

	var order []string
	packages := map[string]*cpuPackage{}
	for _, l := range logical {
		pid := l.physicalID
		if pid == "" {
			pid = "0"
		}
		pkg, ok := packages[pid]
		if !ok {
			pkg = &cpuPackage{coreMHz: map[string]float64{}}
			packages[pid] = pkg
			order = append(order, pid)
		}
		if pkg.vendor == "" {
			pkg.vendor = l.vendor
		}
		if pkg.model == "" {
			pkg.model = l.model
		}
		pkg.threads++

		coreID := l.coreID
		if coreID == "" {
			coreID = "cpu" + l.processor
		}
		prev, seen := pkg.coreMHz[coreID]
		if !seen {
			pkg.coreSeen = append(pkg.coreSeen, coreID)
		}
		if !seen || l.mhz > prev {
			pkg.coreMHz[coreID] = l.mhz
		}
	}

	threshold := float64(efficiencyClockHz) / 1e6
	cpus := make([]CPUInfo, 0, len(order))
	for _, pid := range order {
		pkg := packages[pid]
		var maxMHz float64
		for _, mhz := range pkg.coreMHz {
			if mhz > maxMHz {
				maxMHz = mhz
			}
		}
		efficiency := 0
		if maxMHz >= threshold {
			for _, id := range pkg.coreSeen {
				if mhz := pkg.coreMHz[id]; mhz > 0 && mhz < threshold {
					efficiency++
				}
			}
		}
		cpus = append(cpus, CPUInfo{
			VendorID:        pkg.vendor,
			ModelName:       pkg.model,
			Cores:           len(pkg.coreSeen),
			EfficiencyCores: efficiency,
			Threads:         pkg.threads,
			ClockHz:         uint64(maxMHz * 1e6),
			Arch:            arch,
		})
	}
	return cpus, nil
}
