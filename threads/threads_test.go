package threads

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sammcj/gollama-planner/hardware"
)

func system(cpus ...hardware.CPUInfo) hardware.SystemInfo {
	return hardware.SystemInfo{Platform: hardware.PlatformLinux, CPUs: cpus, Environment: hardware.EnvironmentNative}
}

func TestOptimalThreadCount(t *testing.T) {
	tests := []struct {
		name string
		cpus []hardware.CPUInfo
		want int
	}{
		{"empty", nil, 0},
		{"hybrid", []hardware.CPUInfo{{Cores: 10, EfficiencyCores: 4, Threads: 10}}, 6},
		{"smt ignored", []hardware.CPUInfo{{Cores: 8, Threads: 16}}, 8},
		{"two sockets", []hardware.CPUInfo{{Cores: 16, Threads: 32}, {Cores: 16, Threads: 32}}, 32},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, OptimalThreadCount(tt.cpus))
		})
	}
}

func TestRecommend(t *testing.T) {
	sys := system(hardware.CPUInfo{Cores: 10, EfficiencyCores: 4, Threads: 12})

	inf := Recommend(sys, Inference)
	assert.Equal(t, Recommendation{Recommended: 6, Min: 1, Max: 6}, inf)

	train := Recommend(sys, Training)
	assert.Equal(t, Recommendation{Recommended: 12, Min: 1, Max: 12}, train)

	serve := Recommend(sys, Serving)
	assert.Equal(t, Recommendation{Recommended: 4, Min: 1, Max: 6}, serve)
}

func TestRecommendOrdering(t *testing.T) {
	systems := []hardware.SystemInfo{
		system(),
		system(hardware.CPUInfo{Cores: 1, Threads: 1}),
		system(hardware.CPUInfo{Cores: 2, EfficiencyCores: 2, Threads: 2}),
		system(hardware.CPUInfo{Cores: 10, EfficiencyCores: 4, Threads: 10}),
		system(hardware.CPUInfo{Cores: 64, Threads: 128}, hardware.CPUInfo{Cores: 64, Threads: 128}),
	}
	for _, sys := range systems {
		train := Recommend(sys, Training).Recommended
		inf := Recommend(sys, Inference).Recommended
		serve := Recommend(sys, Serving).Recommended
		assert.GreaterOrEqual(t, train, inf)
		assert.GreaterOrEqual(t, inf, serve)
		assert.Positive(t, serve)
	}
}

func TestValidateThreadCount(t *testing.T) {
	sys := system(hardware.CPUInfo{Cores: 10, EfficiencyCores: 4, Threads: 10})

	tests := []struct {
		requested int
		want      int
	}{
		{-3, 1},
		{0, 1},
		{1, 1},
		{4, 4},
		{6, 6},
		{7, 6},
		{1000, 6},
	}
	for _, tt := range tests {
		got := ValidateThreadCount(tt.requested, sys)
		assert.Equal(t, tt.want, got, "requested %d", tt.requested)
		assert.Equal(t, got, ValidateThreadCount(got, sys), "validation must be idempotent")
	}

	assert.Equal(t, 1, ValidateThreadCount(8, system()))
}

func TestParseWorkload(t *testing.T) {
	for in, want := range map[string]Workload{
		"":          Inference,
		"inference": Inference,
		"Training":  Training,
		" serving ": Serving,
	} {
		got, err := ParseWorkload(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}

	_, err := ParseWorkload("batch")
	assert.Error(t, err)
	assert.Equal(t, "serving", Serving.String())
}
