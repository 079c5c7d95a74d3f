// File: vramestimator/types.go

package vramestimator

import (
	"fmt"
	"strings"
)

type GPULibrary string

const (
	LibraryCUDA  GPULibrary = "cuda"
	LibraryROCm  GPULibrary = "rocm"
	LibraryMetal GPULibrary = "metal"
	LibraryCPU   GPULibrary = "cpu"
)

// ParseGPULibrary accepts the library names used on the command line.
func ParseGPULibrary(s string) (GPULibrary, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "cuda", "nvidia":
		return LibraryCUDA, nil
	case "rocm", "amd", "hip":
		return LibraryROCm, nil
	case "metal", "apple":
		return LibraryMetal, nil
	case "cpu":
		return LibraryCPU, nil
	default:
		return "", fmt.Errorf("unknown gpu library %q", s)
	}
}

// GPUInfo is a point-in-time snapshot of one device, supplied by the caller
// before every planning call.
type GPUInfo struct {
	ID                string     `json:"id"`
	Library           GPULibrary `json:"library"`
	Name              string     `json:"name,omitempty"`
	TotalMemory       uint64     `json:"total_memory"`
	FreeMemory        uint64     `json:"free_memory"`
	MinimumMemory     uint64     `json:"minimum_memory"`
	DriverMajor       int        `json:"driver_major,omitempty"`
	DriverMinor       int        `json:"driver_minor,omitempty"`
	ComputeCapability string     `json:"compute,omitempty"`
	Variant           string     `json:"variant,omitempty"`
}

// ModelArchitectureInfo holds the transformer shape the memory formulas need.
// Values are trusted as given.
type ModelArchitectureInfo struct {
	Architecture   string `json:"architecture"`
	ModelFile      string `json:"model_file"`
	ModelSize      uint64 `json:"model_size"`
	BlockCount     uint64 `json:"block_count"`
	ContextLength  uint64 `json:"context_length"`
	HeadCountMax   uint64 `json:"head_count_max"`
	HeadCountKVMin uint64 `json:"head_count_kv_min"`
	// EmbeddingLength is 0 when the source metadata does not carry it.
	EmbeddingLength uint64 `json:"embedding_length,omitempty"`
	VocabSize       uint64 `json:"vocab_size,omitempty"`
	QuantLevel      string `json:"quant_level,omitempty"`

	FlashAttention bool                  `json:"flash_attention"`
	KVCacheTypes   []KVCacheQuantisation `json:"kv_cache_types,omitempty"`
}

func (m ModelArchitectureInfo) SupportsFlashAttention() bool {
	return m.FlashAttention
}

// SupportsKVCacheType reports whether the architecture can store its KV cache
// as t. F16 is always supported.
func (m ModelArchitectureInfo) SupportsKVCacheType(t KVCacheQuantisation) bool {
	if t == KVCacheFP16 || t == "" {
		return true
	}
	for _, s := range m.KVCacheTypes {
		if s == t {
			return true
		}
	}
	return false
}

// gqa is the number of query heads sharing one key/value head.
func (m ModelArchitectureInfo) gqa() uint64 {
	if m.HeadCountKVMin == 0 || m.HeadCountMax < m.HeadCountKVMin {
		return 1
	}
	return m.HeadCountMax / m.HeadCountKVMin
}

func (m ModelArchitectureInfo) embedding() uint64 {
	switch {
	case m.EmbeddingLength > 0:
		return m.EmbeddingLength
	case m.HeadCountMax > 0:
		return m.HeadCountMax * defaultHeadDim
	default:
		return defaultEmbedding
	}
}

// PlanningOptions are the caller's knobs. NumGPU -1 lets the planner decide,
// 0 forces CPU-only. NumThread 0 lets the planner decide.
type PlanningOptions struct {
	NumCtx         int                 `json:"num_ctx"`
	NumBatch       int                 `json:"num_batch"`
	NumGPU         int                 `json:"num_gpu"`
	NumThread      int                 `json:"num_thread"`
	FlashAttention bool                `json:"flash_attention"`
	KVCacheType    KVCacheQuantisation `json:"kv_cache_type"`

	// Sampling parameters pass through to the runtime untouched.
	Temperature   float32 `json:"temperature"`
	TopK          int     `json:"top_k"`
	TopP          float32 `json:"top_p"`
	RepeatPenalty float32 `json:"repeat_penalty"`
}

// DefaultPlanningOptions mirrors the runtime defaults.
func DefaultPlanningOptions() PlanningOptions {
	return PlanningOptions{
		NumCtx:        DefaultContext,
		NumBatch:      DefaultBatch,
		NumGPU:        -1,
		KVCacheType:   KVCacheFP16,
		Temperature:   0.8,
		TopK:          40,
		TopP:          0.9,
		RepeatPenalty: 1.1,
	}
}

// MemoryEstimate is the result of one EstimateLayout call.
type MemoryEstimate struct {
	Layers      int    `json:"layers"`
	Graph       uint64 `json:"graph"`
	VRAMSize    uint64 `json:"vram_size"`
	TotalSize   uint64 `json:"total_size"`
	TensorSplit string `json:"tensor_split"`
	FullyLoaded bool   `json:"fully_loaded"`

	// GPUs and GPUSizes are aligned, one entry per viable device.
	GPUs     []string `json:"gpus"`
	GPUSizes []uint64 `json:"gpu_sizes"`

	KVCache      uint64 `json:"kv_cache"`
	Weights      uint64 `json:"weights"`
	GraphPartial uint64 `json:"graph_partial"`
	GraphFull    uint64 `json:"graph_full"`
}

type KVCacheQuantisation string

const (
	KVCacheFP16 KVCacheQuantisation = "f16"
	KVCacheQ8_0 KVCacheQuantisation = "q8_0"
	KVCacheQ4_0 KVCacheQuantisation = "q4_0"
)

// ParseKVCacheType accepts f16, fp16, q8_0 and q4_0. Empty means f16.
func ParseKVCacheType(s string) (KVCacheQuantisation, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "f16", "fp16":
		return KVCacheFP16, nil
	case "q8_0", "q8":
		return KVCacheQ8_0, nil
	case "q4_0", "q4":
		return KVCacheQ4_0, nil
	default:
		return "", fmt.Errorf("invalid kv cache type %q (want f16, q8_0 or q4_0)", s)
	}
}

// halfBytesPerElement is the element size in half bytes so q4_0 stays integral.
func (q KVCacheQuantisation) halfBytesPerElement() uint64 {
	switch q {
	case KVCacheQ8_0:
		return 2
	case KVCacheQ4_0:
		return 1
	default:
		return 4
	}
}

// GGUFMapping maps GGUF quantisation types to their corresponding bits per weight
var GGUFMapping = map[string]float64{
	"F32":     32,
	"BF16":    16,
	"F16":     16,
	"Q8_0":    8.5,
	"Q6_K":    6.59,
	"Q5_K_L":  5.75,
	"Q5_K_M":  5.69,
	"Q5_K_S":  5.54,
	"Q5_0":    5.54,
	"Q4_K_L":  4.9,
	"Q4_K_M":  4.85,
	"Q4_K_S":  4.58,
	"Q4_0":    4.55,
	"IQ4_NL":  4.5,
	"Q3_K_L":  4.27,
	"IQ4_XS":  4.25,
	"Q3_K_M":  3.91,
	"IQ3_M":   3.7,
	"IQ3_S":   3.5,
	"Q3_K_S":  3.5,
	"Q2_K":    3.35,
	"IQ3_XS":  3.3,
	"IQ3_XXS": 3.06,
	"IQ2_M":   2.7,
	"IQ2_S":   2.5,
	"IQ2_XS":  2.31,
	"IQ2_XXS": 2.06,
	"IQ1_S":   1.56,
}
