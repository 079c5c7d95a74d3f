package ggufInfo

import (
	"fmt"
	"path/filepath"

	gguf "github.com/gpustack/gguf-parser-go"

	"github.com/sammcj/gollama-planner/logging"
	"github.com/sammcj/gollama-planner/vramestimator"
)

// ReadArchitecture parses the GGUF header of filePath into the shape facts the
// planner needs. Tensor data is not read.
func ReadArchitecture(filePath string) (vramestimator.ModelArchitectureInfo, error) {
	ggufFile, err := gguf.ParseGGUFFile(filePath)
	if err != nil {
		return vramestimator.ModelArchitectureInfo{}, fmt.Errorf("failed to parse GGUF file: %w", err)
	}

	metadata := ggufFile.Metadata()
	architecture := ggufFile.Architecture()

	m := fromArchitecture(filepath.Base(filePath), uint64(ggufFile.ModelSize), fmt.Sprint(metadata.FileType), architecture)
	if m.BlockCount == 0 {
		return m, fmt.Errorf("GGUF file %s has no transformer blocks (type %q)", filePath, architecture.Type)
	}

	logging.DebugLogger.Debug().
		Str("file", filePath).
		Str("architecture", m.Architecture).
		Uint64("blocks", m.BlockCount).
		Uint64("size", m.ModelSize).
		Msg("read gguf architecture")
	return m, nil
}

func fromArchitecture(name string, size uint64, fileType string, a gguf.GGUFArchitecture) vramestimator.ModelArchitectureInfo {
	kvHeads := a.AttentionHeadCountKV
	if kvHeads == 0 && a.EmbeddingGQA > 0 && a.AttentionHeadCount > 0 {
		kvHeads = a.AttentionHeadCount / a.EmbeddingGQA
	}
	if kvHeads == 0 {
		kvHeads = a.AttentionHeadCount
	}

	m := vramestimator.ModelArchitectureInfo{
		Architecture:    a.Architecture,
		ModelFile:       name,
		ModelSize:       size,
		BlockCount:      a.BlockCount,
		ContextLength:   a.MaximumContextLength,
		HeadCountMax:    a.AttentionHeadCount,
		HeadCountKVMin:  kvHeads,
		EmbeddingLength: a.EmbeddingLength,
		VocabSize:       a.VocabularyLength,
		QuantLevel:      fileType,
	}
	m.FlashAttention, m.KVCacheTypes = vramestimator.InferCapabilities(a.Architecture, uint64(a.AttentionKeyLength), uint64(a.AttentionValueLength))
	return m
}
