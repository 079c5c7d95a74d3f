package vramestimator

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/ollama/ollama/api"
)

// ShowClient is the part of the Ollama API client used to read model metadata.
type ShowClient interface {
	Show(ctx context.Context, req *api.ShowRequest) (*api.ShowResponse, error)
}

// ErrNoModelInfo is returned when Ollama has no architecture metadata for a
// model, as with older servers or non-GGUF imports.
var ErrNoModelInfo = errors.New("ollama returned no model_info")

// FetchOllamaArchitecture asks Ollama for a model's GGUF metadata.
func FetchOllamaArchitecture(ctx context.Context, client ShowClient, model string) (ModelArchitectureInfo, error) {
	resp, err := client.Show(ctx, &api.ShowRequest{Model: model})
	if err != nil {
		return ModelArchitectureInfo{}, fmt.Errorf("error getting model details: %w", err)
	}
	return ArchitectureFromShow(model, resp)
}

// ArchitectureFromShow converts an /api/show response. Weight size is derived
// from the parameter count and quantisation level since show does not report it.
func ArchitectureFromShow(model string, resp *api.ShowResponse) (ModelArchitectureInfo, error) {
	if resp == nil || len(resp.ModelInfo) == 0 {
		return ModelArchitectureInfo{}, ErrNoModelInfo
	}
	info := resp.ModelInfo

	arch, _ := info["general.architecture"].(string)
	if arch == "" {
		return ModelArchitectureInfo{}, fmt.Errorf("%w: missing general.architecture", ErrNoModelInfo)
	}
	key := func(suffix string) any { return info[arch+"."+suffix] }

	heads, _ := anyToUint64s(key("attention.head_count"))
	kvHeads, _ := anyToUint64s(key("attention.head_count_kv"))

	m := ModelArchitectureInfo{
		Architecture:    arch,
		ModelFile:       model,
		BlockCount:      anyToUint64(key("block_count")),
		ContextLength:   anyToUint64(key("context_length")),
		HeadCountMax:    maxOf(heads),
		HeadCountKVMin:  minOf(kvHeads),
		EmbeddingLength: anyToUint64(key("embedding_length")),
		VocabSize:       anyToUint64(key("vocab_size")),
		QuantLevel:      resp.Details.QuantizationLevel,
	}
	if m.HeadCountKVMin == 0 {
		m.HeadCountKVMin = m.HeadCountMax
	}
	if m.BlockCount == 0 {
		return ModelArchitectureInfo{}, fmt.Errorf("%w: missing %s.block_count", ErrNoModelInfo, arch)
	}

	if params := anyToUint64(info["general.parameter_count"]); params > 0 && m.QuantLevel != "" {
		size, err := WeightsFromParameters(params, m.QuantLevel)
		if err != nil {
			return ModelArchitectureInfo{}, fmt.Errorf("error parsing BPW from Ollama quantization level: %w", err)
		}
		m.ModelSize = size
	}

	m.FlashAttention, m.KVCacheTypes = InferCapabilities(arch,
		anyToUint64(key("attention.key_length")),
		anyToUint64(key("attention.value_length")))
	return m, nil
}

// Embedding and encoder-only architectures run without a KV cache.
var noFlashAttention = map[string]bool{
	"bert":       true,
	"nomic-bert": true,
	"jina-bert":  true,
	"t5encoder":  true,
	"clip":       true,
}

// InferCapabilities reports flash attention and KV cache type support for an
// architecture. Flash attention kernels need equal key and value head widths.
func InferCapabilities(arch string, keyLength, valueLength uint64) (bool, []KVCacheQuantisation) {
	if noFlashAttention[strings.ToLower(arch)] {
		return false, nil
	}
	if keyLength != 0 && valueLength != 0 && keyLength != valueLength {
		return false, nil
	}
	return true, []KVCacheQuantisation{KVCacheQ8_0, KVCacheQ4_0}
}

// anyToUint64 handles the float64 that JSON numbers decode into, plus the
// integer types a caller might build a ModelInfo map with.
func anyToUint64(v any) uint64 {
	switch n := v.(type) {
	case float64:
		if n <= 0 || math.IsNaN(n) {
			return 0
		}
		return uint64(n)
	case float32:
		return anyToUint64(float64(n))
	case int:
		return anyToUint64(float64(n))
	case int32:
		return anyToUint64(float64(n))
	case int64:
		if n < 0 {
			return 0
		}
		return uint64(n)
	case uint32:
		return uint64(n)
	case uint64:
		return n
	default:
		return 0
	}
}

// anyToUint64s accepts a scalar or a per-layer array.
func anyToUint64s(v any) ([]uint64, bool) {
	switch a := v.(type) {
	case nil:
		return nil, false
	case []any:
		out := make([]uint64, 0, len(a))
		for _, e := range a {
			out = append(out, anyToUint64(e))
		}
		return out, true
	default:
		return []uint64{anyToUint64(v)}, true
	}
}

func maxOf(vs []uint64) uint64 {
	var m uint64
	for _, v := range vs {
		m = max(m, v)
	}
	return m
}

func minOf(vs []uint64) uint64 {
	var m uint64
	for _, v := range vs {
		if v > 0 && (m == 0 || v < m) {
			m = v
		}
	}
	return m
}
