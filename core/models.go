package core

import (
	"errors"

	"github.com/ollama/ollama/api"

	"github.com/sammcj/gollama-planner/hardware"
	"github.com/sammcj/gollama-planner/threads"
	"github.com/sammcj/gollama-planner/vramestimator"
)

// ErrInvalidModel is returned by Plan when the model has nothing to place.
var ErrInvalidModel = errors.New("invalid model architecture")

// PlanRequest is everything needed to plan one model load. GPUs is a fresh
// snapshot taken by the caller.
type PlanRequest struct {
	GPUs        []vramestimator.GPUInfo
	Model       *vramestimator.ModelArchitectureInfo
	Options     vramestimator.PlanningOptions
	NumParallel int
	Workload    threads.Workload
}

// Plan is the resolved configuration handed to the model loader.
type Plan struct {
	System   hardware.SystemInfo                 `json:"system"`
	Model    vramestimator.ModelArchitectureInfo `json:"model"`
	Options  vramestimator.PlanningOptions       `json:"options"`
	Estimate vramestimator.MemoryEstimate        `json:"estimate"`
	Threads  threads.Recommendation              `json:"threads"`
	// ContextReduced is set when the requested context did not fit.
	ContextReduced bool `json:"context_reduced"`
	NumParallel    int  `json:"num_parallel"`
}

// OllamaOptions converts the resolved options into the runtime's own type.
// Fields the planner does not own keep Ollama's defaults.
func (p *Plan) OllamaOptions() api.Options {
	opts := api.DefaultOptions()
	opts.NumCtx = p.Options.NumCtx
	opts.NumBatch = p.Options.NumBatch
	opts.NumGPU = p.Options.NumGPU
	opts.NumThread = p.Options.NumThread
	opts.Temperature = p.Options.Temperature
	opts.TopK = p.Options.TopK
	opts.TopP = p.Options.TopP
	opts.RepeatPenalty = p.Options.RepeatPenalty
	return opts
}
