package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/sammcj/gollama-planner/ggufInfo"
	"github.com/sammcj/gollama-planner/hardware"
	"github.com/sammcj/gollama-planner/threads"
	"github.com/sammcj/gollama-planner/vramestimator"
)

// DetectSystem returns the machine description, probing on first use.
func (s *PlanService) DetectSystem(ctx context.Context) hardware.SystemInfo {
	info := s.detector.Detect(ctx)
	s.detectedOnce.Do(func() {
		s.eventBus.Emit(Event{Type: EventSystemDetected, Data: info.Copy()})
	})
	return info
}

// RecommendThreads recommends a thread count for workload on this machine.
func (s *PlanService) RecommendThreads(ctx context.Context, workload threads.Workload) threads.Recommendation {
	return threads.Recommend(s.DetectSystem(ctx), workload)
}

// SafeContextSize caps requested to what fits in availableVRAM with an f16
// KV cache and a single sequence.
func (s *PlanService) SafeContextSize(model vramestimator.ModelArchitectureInfo, requested int, availableVRAM uint64) int {
	return s.Planner().SafeContextSize(model, requested, availableVRAM)
}

// SafeContextSizeWith is SafeContextSize for the given KV cache type, batch
// and parallel sequence count.
func (s *PlanService) SafeContextSizeWith(model vramestimator.ModelArchitectureInfo, requested int, availableVRAM uint64, opts vramestimator.ContextOptions) int {
	return s.Planner().SafeContextSizeWith(model, requested, availableVRAM, opts)
}

// LoadModel reads a model's architecture from a GGUF path or, for anything
// else, from the configured Ollama server.
func (s *PlanService) LoadModel(ctx context.Context, ref string) (vramestimator.ModelArchitectureInfo, error) {
	if strings.HasSuffix(strings.ToLower(ref), ".gguf") {
		return s.LoadGGUF(ref)
	}
	return s.LoadOllamaModel(ctx, ref)
}

// LoadGGUF reads a model's architecture from a local GGUF file.
func (s *PlanService) LoadGGUF(path string) (vramestimator.ModelArchitectureInfo, error) {
	m, err := ggufInfo.ReadArchitecture(path)
	if err != nil {
		s.logger.With("model", path).Errorf("failed to read gguf: %v", err)
		s.eventBus.Emit(Event{Type: EventError, Data: err})
		return m, err
	}
	return m, nil
}

// LoadOllamaModel fetches a model's architecture from the configured Ollama server.
func (s *PlanService) LoadOllamaModel(ctx context.Context, name string) (vramestimator.ModelArchitectureInfo, error) {
	client, err := NewOllamaClient(s.GetConfig().OllamaAPIURL)
	if err != nil {
		return vramestimator.ModelArchitectureInfo{}, err
	}
	m, err := client.Architecture(ctx, name)
	if err != nil {
		s.logger.With("model", name).Errorf("failed to fetch model from ollama: %v", err)
		s.eventBus.Emit(Event{Type: EventError, Data: err})
		return m, err
	}
	return m, nil
}

func freeVRAM(gpus []vramestimator.GPUInfo) uint64 {
	var free uint64
	for _, g := range gpus {
		if g.Library != vramestimator.LibraryCPU {
			free += g.FreeMemory
		}
	}
	return free
}

// Plan resolves context size, flash attention, KV cache type, thread count and
// GPU layer count for one model load.
func (s *PlanService) Plan(ctx context.Context, req PlanRequest) (*Plan, error) {
	if req.Model == nil {
		return nil, fmt.Errorf("%w: no model given", ErrInvalidModel)
	}
	if req.Model.BlockCount == 0 {
		return nil, fmt.Errorf("%w: %s has no blocks", ErrInvalidModel, req.Model.ModelFile)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sys := s.DetectSystem(ctx)
	planner := s.Planner()
	model := *req.Model
	opts := req.Options
	numParallel := max(req.NumParallel, 1)

	if opts.NumBatch <= 0 {
		opts.NumBatch = vramestimator.DefaultBatch
	}

	requested := opts.NumCtx
	if requested <= 0 {
		requested = vramestimator.DefaultContext
		if model.ContextLength > 0 {
			requested = int(model.ContextLength)
		}
	}
	if model.ContextLength > 0 && requested > int(model.ContextLength) {
		requested = int(model.ContextLength)
	}

	// The context search must size the same KV cache the layout will use.
	opts.FlashAttention = opts.FlashAttention &&
		vramestimator.FlashAttentionSupported(req.GPUs) &&
		model.SupportsFlashAttention()
	opts.KVCacheType = vramestimator.ResolveKVCacheType(req.GPUs, model, opts)

	minContext := planner.Config().MinContext
	numCtx := max(requested, minContext)
	if opts.NumGPU != 0 {
		if free := freeVRAM(req.GPUs); free > 0 {
			numCtx = planner.SafeContextSizeWith(model, requested, free, vramestimator.ContextOptions{
				KVCacheType: opts.KVCacheType,
				NumBatch:    opts.NumBatch,
				NumParallel: numParallel,
			})
		}
	}
	opts.NumCtx = numCtx

	rec := threads.Recommend(sys, req.Workload)
	if opts.NumThread <= 0 {
		opts.NumThread = rec.Recommended
	} else {
		opts.NumThread = threads.ValidateThreadCount(opts.NumThread, sys)
	}

	est := planner.EstimateLayout(req.GPUs, model, opts, numParallel)
	opts.NumGPU = est.Layers

	plan := &Plan{
		System:         sys,
		Model:          model,
		Options:        opts,
		Estimate:       est,
		Threads:        rec,
		ContextReduced: numCtx < requested,
		NumParallel:    numParallel,
	}

	log := s.logger.WithFields(map[string]any{"model": model.ModelFile, "workload": req.Workload.String()})
	if plan.ContextReduced {
		log.Warnf("context reduced from %d to %d to fit %d bytes of VRAM", requested, numCtx, freeVRAM(req.GPUs))
	}
	log.Infof("planned %d/%d layers, ctx %d, threads %d, kv %s",
		est.Layers, model.BlockCount, opts.NumCtx, opts.NumThread, opts.KVCacheType)
	s.eventBus.Emit(Event{Type: EventPlanComputed, Data: plan})
	return plan, nil
}
