// Package threads turns detected CPU topology into worker thread counts for
// inference, training and serving workloads.
package threads

import (
	"fmt"
	"strings"

	"github.com/sammcj/gollama-planner/hardware"
	"github.com/sammcj/gollama-planner/logging"
)

type Workload int

const (
	Inference Workload = iota
	Training
	Serving
)

func (w Workload) String() string {
	switch w {
	case Inference:
		return "inference"
	case Training:
		return "training"
	case Serving:
		return "serving"
	default:
		return fmt.Sprintf("workload(%d)", int(w))
	}
}

// ParseWorkload accepts the names printed by String, case-insensitively.
func ParseWorkload(s string) (Workload, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "inference":
		return Inference, nil
	case "training":
		return Training, nil
	case "serving":
		return Serving, nil
	default:
		return Inference, fmt.Errorf("unknown workload %q (want inference, training or serving)", s)
	}
}

// Recommendation is a thread count and the range a caller may override within.
type Recommendation struct {
	Recommended int `json:"recommended"`
	Min         int `json:"min"`
	Max         int `json:"max"`
}

// OptimalThreadCount is the number of performance cores across all packages.
// SMT siblings and efficiency cores slow down matrix kernels, so neither counts.
func OptimalThreadCount(cpus []hardware.CPUInfo) int {
	n := 0
	for _, c := range cpus {
		n += c.PerformanceCores()
	}
	return n
}

func inferenceThreads(cpus []hardware.CPUInfo) int {
	return max(OptimalThreadCount(cpus), 1)
}

// Recommend picks a thread count for workload w on sys.
func Recommend(sys hardware.SystemInfo, w Workload) Recommendation {
	inference := inferenceThreads(sys.CPUs)

	var rec Recommendation
	switch w {
	case Training:
		budget := max(sys.TotalThreads(), inference)
		rec = Recommendation{Recommended: budget, Min: 1, Max: budget}
	case Serving:
		rec = Recommendation{Recommended: max(inference*3/4, 1), Min: 1, Max: inference}
	default:
		rec = Recommendation{Recommended: inference, Min: 1, Max: inference}
	}

	logging.DebugLogger.Debug().
		Str("workload", w.String()).
		Int("recommended", rec.Recommended).
		Int("max", rec.Max).
		Msg("thread recommendation")
	return rec
}

// ValidateThreadCount clamps requested into [1, optimal]. Applying it twice
// gives the same answer as applying it once.
func ValidateThreadCount(requested int, sys hardware.SystemInfo) int {
	upper := inferenceThreads(sys.CPUs)
	switch {
	case requested < 1:
		return 1
	case requested > upper:
		return upper
	default:
		return requested
	}
}
