// File: vramestimator/calculator.go

package vramestimator

const (
	DefaultContext = 2048
	DefaultBatch   = 512

	defaultHeadDim   = 128
	defaultEmbedding = 4096
)

// KVCacheBytes is the size of the key and value tensors for ctx tokens.
// Grouped-query attention shrinks the per-token width by the GQA ratio.
func KVCacheBytes(m ModelArchitectureInfo, ctx uint64, kvType KVCacheQuantisation) uint64 {
	width := m.embedding() / m.gqa()
	return 2 * ctx * m.BlockCount * width * kvType.halfBytesPerElement() / 2
}

// GraphPartialOffload is the compute graph when some layers stay on the CPU.
func GraphPartialOffload(m ModelArchitectureInfo, ctx, batch uint64) uint64 {
	return 4*batch*m.embedding() + ctx*m.HeadCountMax*batch*m.gqa()/6
}

// GraphFullOffload is the compute graph when every layer is on the GPU.
func GraphFullOffload(m ModelArchitectureInfo, ctx, batch uint64) uint64 {
	return 2 * GraphPartialOffload(m, ctx, batch)
}

// InputBuffer holds the token embeddings and positions for one batch.
func InputBuffer(m ModelArchitectureInfo, ctx, batch uint64) uint64 {
	return 4 * batch * (m.embedding() + ctx + 2)
}

// LayerSize spreads weights and KV cache uniformly over the blocks.
func LayerSize(m ModelArchitectureInfo, kv uint64) uint64 {
	if m.BlockCount == 0 {
		return 0
	}
	return m.ModelSize/m.BlockCount + kv/m.BlockCount
}

// ContextFootprint is what ctx tokens cost on top of the weights once every
// layer is offloaded, using the same KV cache and graph sizes as the layout.
func ContextFootprint(m ModelArchitectureInfo, ctx, batch uint64, kvType KVCacheQuantisation) uint64 {
	return KVCacheBytes(m, ctx, kvType) + InputBuffer(m, ctx, batch) + GraphFullOffload(m, ctx, batch)
}
