// File: vramestimator/utils.go

package vramestimator

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// levenshteinDistance calculates the Levenshtein distance between two strings
func levenshteinDistance(s1, s2 string) int {
	s1 = strings.ToUpper(s1)
	s2 = strings.ToUpper(s2)
	prev := make([]int, len(s2)+1)
	cur := make([]int, len(s2)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(s1); i++ {
		cur[0] = i
		for j := 1; j <= len(s2); j++ {
			cost := 1
			if s1[i-1] == s2[j-1] {
				cost = 0
			}
			cur[j] = min(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	return prev[len(s2)]
}

// ParseBPWOrQuant takes either a bits-per-weight number or a GGUF quantisation
// name and returns the bits per weight. Near misses get a suggestion.
func ParseBPWOrQuant(input string) (float64, error) {
	if bpw, err := strconv.ParseFloat(input, 64); err == nil {
		if bpw <= 0 || bpw > 32 {
			return 0, fmt.Errorf("bits per weight out of range: %s", input)
		}
		return bpw, nil
	}

	input = strings.ToUpper(strings.TrimSpace(input))
	if bpw, ok := GGUFMapping[input]; ok {
		return bpw, nil
	}

	var closestMatch string
	minDistance := len(input)
	for key := range GGUFMapping {
		distance := levenshteinDistance(input, key)
		if distance < minDistance || (distance == minDistance && key < closestMatch) {
			minDistance = distance
			closestMatch = key
		}
	}

	if closestMatch != "" {
		return 0, fmt.Errorf("invalid quantisation type: %s. Did you mean %s?", input, closestMatch)
	}

	return 0, fmt.Errorf("invalid quantisation or BPW value: %s", input)
}

// WeightsFromParameters estimates the byte size of a model's weights from its
// parameter count and quantisation level.
func WeightsFromParameters(params uint64, quant string) (uint64, error) {
	bpw, err := ParseBPWOrQuant(quant)
	if err != nil {
		return 0, err
	}
	return uint64(math.Ceil(float64(params) * bpw / 8)), nil
}

// FormatBytes renders n in binary units with one decimal.
func FormatBytes(n uint64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := uint64(unit), 0
	for m := n / unit; m >= unit && exp < 4; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTP"[exp])
}
