package vramestimator

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/sammcj/gollama-planner/logging"
)

// PlannerConfig tunes a Planner. Zero fields take the defaults below.
type PlannerConfig struct {
	GPUOverhead           uint64
	ContextBudgetFraction float64
	MinContext            int
	CacheTTL              time.Duration
	CacheSize             int
}

const (
	DefaultContextBudgetFraction = 0.8
	DefaultMinContext            = 512
	DefaultCacheTTL              = 5 * time.Minute
	DefaultCacheSize             = 256
)

func (c PlannerConfig) withDefaults() PlannerConfig {
	if c.ContextBudgetFraction <= 0 || c.ContextBudgetFraction > 1 {
		c.ContextBudgetFraction = DefaultContextBudgetFraction
	}
	if c.MinContext <= 0 {
		c.MinContext = DefaultMinContext
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = DefaultCacheTTL
	}
	if c.CacheSize <= 0 {
		c.CacheSize = DefaultCacheSize
	}
	return c
}

// ContextOptions are the load settings a context footprint depends on. They
// must match what the layout is estimated with.
type ContextOptions struct {
	KVCacheType KVCacheQuantisation
	NumBatch    int
	NumParallel int
}

func (o ContextOptions) withDefaults() ContextOptions {
	if o.KVCacheType == "" {
		o.KVCacheType = KVCacheFP16
	}
	if o.NumBatch <= 0 {
		o.NumBatch = DefaultBatch
	}
	if o.NumParallel < 1 {
		o.NumParallel = 1
	}
	return o
}

type contextKey struct {
	modelFile    string
	modelSize    uint64
	requested    int
	availableMiB uint64
	opts         ContextOptions
}

type cachedContext struct {
	size   int
	stored time.Time
}

// Planner owns the tunables and the context-size cache. It is safe for
// concurrent use.
type Planner struct {
	mu    sync.RWMutex
	cfg   PlannerConfig
	cache *lru.Cache[contextKey, cachedContext]
}

func NewPlanner(cfg PlannerConfig) *Planner {
	cfg = cfg.withDefaults()
	// lru.New only fails for a non-positive size, which withDefaults rules out.
	cache, _ := lru.New[contextKey, cachedContext](cfg.CacheSize)
	return &Planner{cfg: cfg, cache: cache}
}

// Config returns the effective configuration.
func (p *Planner) Config() PlannerConfig {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.cfg
}

// Reconfigure swaps in new tunables and drops every cached context size,
// since each depends on them.
func (p *Planner) Reconfigure(cfg PlannerConfig) {
	cfg = cfg.withDefaults()

	p.mu.Lock()
	defer p.mu.Unlock()
	if cfg.CacheSize != p.cfg.CacheSize {
		p.cache.Resize(cfg.CacheSize)
	}
	p.cfg = cfg
	p.cache.Purge()
}

// EstimateLayout is the package level EstimateLayout with the planner's GPU
// overhead reserved on every device.
func (p *Planner) EstimateLayout(gpus []GPUInfo, model ModelArchitectureInfo, opts PlanningOptions, numParallel int) MemoryEstimate {
	return estimateLayout(gpus, model, opts, numParallel, p.Config().GPUOverhead)
}

// SafeContextSize is SafeContextSizeWith for an f16 KV cache, the default
// batch and one sequence.
func (p *Planner) SafeContextSize(model ModelArchitectureInfo, requested int, availableVRAM uint64) int {
	return p.SafeContextSizeWith(model, requested, availableVRAM, ContextOptions{})
}

// SafeContextSizeWith returns the largest context no greater than requested
// whose footprint under opts fits in the budgeted share of availableVRAM. The
// result is never below the configured minimum and never decreases as
// availableVRAM grows.
func (p *Planner) SafeContextSizeWith(model ModelArchitectureInfo, requested int, availableVRAM uint64, opts ContextOptions) int {
	cfg := p.Config()
	opts = opts.withDefaults()
	if requested < cfg.MinContext {
		requested = cfg.MinContext
	}

	// Free memory jitters between calls; bucket by MiB so cache hits are useful.
	availableMiB := availableVRAM >> 20
	key := contextKey{
		modelFile:    model.ModelFile,
		modelSize:    model.ModelSize,
		requested:    requested,
		availableMiB: availableMiB,
		opts:         opts,
	}
	if v, ok := p.cache.Get(key); ok {
		if time.Since(v.stored) < cfg.CacheTTL {
			return v.size
		}
		p.cache.Remove(key)
	}

	v := searchContext(cfg, model, requested, availableMiB<<20, opts)
	p.cache.Add(key, cachedContext{size: v, stored: time.Now()})

	logging.DebugLogger.Debug().
		Str("model", model.ModelFile).
		Int("requested", requested).
		Uint64("available", availableVRAM).
		Str("kv_cache_type", string(opts.KVCacheType)).
		Int("parallel", opts.NumParallel).
		Int("context", v).
		Msg("safe context size")
	return v
}

func searchContext(cfg PlannerConfig, model ModelArchitectureInfo, requested int, available uint64, opts ContextOptions) int {
	floor := cfg.MinContext
	budget := uint64(float64(available) * cfg.ContextBudgetFraction)
	if budget <= model.ModelSize {
		return floor
	}
	budget -= model.ModelSize

	fits := func(ctx int) bool {
		total := uint64(ctx) * uint64(opts.NumParallel)
		return ContextFootprint(model, total, uint64(opts.NumBatch), opts.KVCacheType) <= budget
	}
	if fits(requested) {
		return requested
	}

	lo, hi := floor, requested
	for lo < hi {
		mid := lo + (hi-lo+1)/2
		if fits(mid) {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return lo
}

// ClearCache drops every cached context size.
func (p *Planner) ClearCache() {
	p.cache.Purge()
}

// CacheLen reports how many context sizes are cached, expired ones included
// until they are next looked up.
func (p *Planner) CacheLen() int {
	return p.cache.Len()
}
