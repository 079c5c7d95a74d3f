package vramestimator

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/ollama/ollama/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeShowClient struct {
	resp *api.ShowResponse
	err  error
	got  *api.ShowRequest
}

func (f *fakeShowClient) Show(_ context.Context, req *api.ShowRequest) (*api.ShowResponse, error) {
	f.got = req
	return f.resp, f.err
}

// showResponse decodes JSON so numbers arrive as float64 like they do from a
// live server.
func showResponse(t *testing.T, body string) *api.ShowResponse {
	t.Helper()
	var resp api.ShowResponse
	require.NoError(t, json.Unmarshal([]byte(body), &resp))
	return &resp
}

const llamaShow = `{
  "details": {"family": "llama", "parameter_size": "8.0B", "quantization_level": "Q4_K_M"},
  "model_info": {
    "general.architecture": "llama",
    "general.parameter_count": 8030261248,
    "llama.block_count": 32,
    "llama.context_length": 131072,
    "llama.embedding_length": 4096,
    "llama.attention.head_count": 32,
    "llama.attention.head_count_kv": 8,
    "llama.vocab_size": 128256
  }
}`

func TestFetchOllamaArchitecture(t *testing.T) {
	client := &fakeShowClient{resp: showResponse(t, llamaShow)}

	m, err := FetchOllamaArchitecture(context.Background(), client, "llama3.1:8b")
	require.NoError(t, err)
	assert.Equal(t, "llama3.1:8b", client.got.Model)

	assert.Equal(t, "llama", m.Architecture)
	assert.Equal(t, "llama3.1:8b", m.ModelFile)
	assert.Equal(t, uint64(32), m.BlockCount)
	assert.Equal(t, uint64(131072), m.ContextLength)
	assert.Equal(t, uint64(32), m.HeadCountMax)
	assert.Equal(t, uint64(8), m.HeadCountKVMin)
	assert.Equal(t, uint64(4096), m.EmbeddingLength)
	assert.Equal(t, uint64(128256), m.VocabSize)
	assert.Equal(t, "Q4_K_M", m.QuantLevel)
	assert.InDelta(t, 8030261248*4.85/8, float64(m.ModelSize), 1)
	assert.True(t, m.SupportsFlashAttention())
	assert.True(t, m.SupportsKVCacheType(KVCacheQ4_0))
}

func TestArchitectureFromShowPerLayerHeads(t *testing.T) {
	resp := showResponse(t, `{
	  "details": {"quantization_level": "Q8_0"},
	  "model_info": {
	    "general.architecture": "openelm",
	    "openelm.block_count": 4,
	    "openelm.attention.head_count": [12, 12, 16, 20],
	    "openelm.attention.head_count_kv": [3, 3, 4, 5]
	  }
	}`)
	m, err := ArchitectureFromShow("openelm", resp)
	require.NoError(t, err)
	assert.Equal(t, uint64(20), m.HeadCountMax)
	assert.Equal(t, uint64(3), m.HeadCountKVMin)
	assert.Zero(t, m.ModelSize)
}

func TestArchitectureFromShowErrors(t *testing.T) {
	tests := []struct {
		name string
		resp *api.ShowResponse
	}{
		{"nil", nil},
		{"no model info", &api.ShowResponse{}},
		{"no architecture", &api.ShowResponse{ModelInfo: map[string]any{"general.parameter_count": 1.0}}},
		{"no blocks", &api.ShowResponse{ModelInfo: map[string]any{"general.architecture": "llama"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ArchitectureFromShow("m", tt.resp)
			assert.ErrorIs(t, err, ErrNoModelInfo)
		})
	}

	_, err := FetchOllamaArchitecture(context.Background(), &fakeShowClient{err: errors.New("connection refused")}, "m")
	assert.ErrorContains(t, err, "connection refused")
}

func TestInferCapabilities(t *testing.T) {
	fa, types := InferCapabilities("llama", 128, 128)
	assert.True(t, fa)
	assert.Contains(t, types, KVCacheQ8_0)

	fa, types = InferCapabilities("nomic-bert", 0, 0)
	assert.False(t, fa)
	assert.Empty(t, types)

	fa, _ = InferCapabilities("deepseek2", 192, 128)
	assert.False(t, fa)
}
