package vramestimator

import (
	"strconv"
	"strings"

	"github.com/sammcj/gollama-planner/logging"
)

// EstimateLayout places model layers onto gpus with no extra per-GPU
// overhead. Use a Planner to apply a configured overhead.
func EstimateLayout(gpus []GPUInfo, model ModelArchitectureInfo, opts PlanningOptions, numParallel int) MemoryEstimate {
	return estimateLayout(gpus, model, opts, numParallel, 0)
}

// FlashAttentionSupported is true only when every GPU can run flash attention.
// A mixed set is reported as unsupported.
func FlashAttentionSupported(gpus []GPUInfo) bool {
	if len(gpus) == 0 {
		return false
	}
	for _, g := range gpus {
		switch g.Library {
		case LibraryMetal, LibraryROCm:
		case LibraryCUDA:
			if g.DriverMajor < 7 {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// ResolveKVCacheType returns the KV cache type the runtime will actually use.
// Quantised caches need flash attention on both the model and every GPU.
func ResolveKVCacheType(gpus []GPUInfo, model ModelArchitectureInfo, opts PlanningOptions) KVCacheQuantisation {
	t := opts.KVCacheType
	if t == "" || t == KVCacheFP16 {
		return KVCacheFP16
	}
	if !opts.FlashAttention || !model.SupportsFlashAttention() || !FlashAttentionSupported(gpus) {
		return KVCacheFP16
	}
	if !model.SupportsKVCacheType(t) {
		return KVCacheFP16
	}
	return t
}

type placement struct {
	gpu     GPUInfo
	reserve uint64
	alloc   uint64
	layers  int
}

func estimateLayout(gpus []GPUInfo, model ModelArchitectureInfo, opts PlanningOptions, numParallel int, overhead uint64) MemoryEstimate {
	if numParallel < 1 {
		numParallel = 1
	}
	numCtx := opts.NumCtx
	if numCtx <= 0 {
		numCtx = DefaultContext
	}
	batch := opts.NumBatch
	if batch <= 0 {
		batch = DefaultBatch
	}
	ctx := uint64(numCtx) * uint64(numParallel)

	kvType := ResolveKVCacheType(gpus, model, opts)
	kv := KVCacheBytes(model, ctx, kvType)
	graphPartial := GraphPartialOffload(model, ctx, uint64(batch))
	graphFull := GraphFullOffload(model, ctx, uint64(batch))
	graphMax := max(graphPartial, graphFull)
	layerSize := LayerSize(model, kv)

	est := MemoryEstimate{
		TotalSize:    model.ModelSize + kv + graphFull,
		KVCache:      kv,
		Weights:      model.ModelSize,
		GraphPartial: graphPartial,
		GraphFull:    graphFull,
	}

	if model.BlockCount == 0 || len(gpus) == 0 || opts.NumGPU == 0 {
		return est
	}

	var viable []*placement
	for _, g := range gpus {
		if g.Library == LibraryCPU {
			continue
		}
		reserve := overhead + g.MinimumMemory
		if g.FreeMemory <= reserve+2*layerSize+graphMax {
			logging.DebugLogger.Debug().
				Str("gpu", g.ID).
				Uint64("free", g.FreeMemory).
				Uint64("layer_size", layerSize).
				Msg("gpu has too little free memory for a layer")
			continue
		}
		viable = append(viable, &placement{gpu: g, reserve: reserve})
	}
	if len(viable) == 0 {
		return est
	}

	target := int(model.BlockCount)
	if opts.NumGPU > 0 && opts.NumGPU < target {
		target = opts.NumGPU
	}

	// Last layer first, each onto the device with the most headroom left.
	placed := 0
	for placed < target {
		var best *placement
		var bestRoom uint64
		for _, p := range viable {
			used := p.reserve + p.alloc + graphMax
			if p.gpu.FreeMemory <= used {
				continue
			}
			room := p.gpu.FreeMemory - used
			if room > layerSize && (best == nil || room > bestRoom) {
				best, bestRoom = p, room
			}
		}
		if best == nil {
			break
		}
		best.alloc += layerSize
		best.layers++
		placed++
	}

	est.Layers = placed
	est.FullyLoaded = uint64(placed) == model.BlockCount
	if placed > 0 {
		est.Graph = graphPartial
		if est.FullyLoaded {
			est.Graph = graphFull
		}
	}

	used := 0
	counts := make([]string, len(viable))
	est.GPUs = make([]string, len(viable))
	est.GPUSizes = make([]uint64, len(viable))
	for i, p := range viable {
		if p.layers > 0 {
			p.alloc += est.Graph
			used++
		}
		counts[i] = strconv.Itoa(p.layers)
		est.GPUs[i] = p.gpu.ID
		est.GPUSizes[i] = p.alloc
		est.VRAMSize += p.alloc
	}
	if used > 1 {
		est.TensorSplit = strings.Join(counts, ",")
	}

	logging.DebugLogger.Debug().
		Int("layers", est.Layers).
		Uint64("block_count", model.BlockCount).
		Uint64("vram", est.VRAMSize).
		Str("tensor_split", est.TensorSplit).
		Str("kv_cache_type", string(kvType)).
		Msg("layout estimated")

	return est
}
