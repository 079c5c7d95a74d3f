package main

import (
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	// Neon colours for well known model architectures
	architectureColours = map[string]lipgloss.Color{
		"bert":       lipgloss.Color("#FF40CB"),
		"command-r":  lipgloss.Color("#FF69B4"),
		"gemma":      lipgloss.Color("#FFB6C1"),
		"gemma2":     lipgloss.Color("#FFB6C1"),
		"llama":      lipgloss.Color("#FF1493"),
		"nomic-bert": lipgloss.Color("#FF8C00"),
		"phi2":       lipgloss.Color("#554AAF"),
		"phi3":       lipgloss.Color("#554FFF"),
		"qwen":       lipgloss.Color("#7FFF00"),
		"qwen2":      lipgloss.Color("#AAE"),
		"starcoder2": lipgloss.Color("#EE82EE"),
		"granite":    lipgloss.Color("#00BFFF"),
	}

	synthGradient = []string{
		"#DDA0DD", "#DA70D6", "#BA55D3", "#9932CC", "#9400D3", "#8A2BE2",
		"#9400D3", "#9932CC", "#BA55D3", "#DA70D6", "#DDA0DD", "#EE82EE",
		"#FF00FF", "#FF0000",
	}

	headingStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#ffffff"))
	labelStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFA500"))
	faintStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("254")).Faint(true)
)

func quantColour(quant string) lipgloss.Color {
	quantMap := map[string]int{
		"IQ1_S": 0, "IQ1_M": 0, "Q2_K": 0, "Q2_K_S": 0,
		"IQ2_XXS": 2, "Q3_K_S": 2, "IQ2_XS": 3, "IQ2_S": 3,
		"Q3_K_M": 4, "Q3_K_L": 4,
		"Q4_0": 5, "IQ3_XXS": 5, "IQ3_XS": 5, "IQ3_S": 6,
		"Q4_K_S": 6, "Q4_1": 6, "Q4_K_M": 7, "IQ4_XS": 7, "IQ4_NL": 7,
		"Q5_0": 8, "Q5_K_S": 8, "Q5_K_M": 9, "Q5_1": 9,
		"Q6_K": 11, "Q8_0": 12,
		"F16": 13, "BF16": 13, "F32": 13,
	}

	index, exists := quantMap[strings.ToUpper(quant)]
	if !exists {
		index = 0 // Default to lightest if unknown quant
	}
	return lipgloss.Color(synthGradient[index])
}

// sizeColour grades a size in GB along the gradient.
func sizeColour(sizeGB float64) lipgloss.Color {
	index := int(math.Log10(sizeGB+1) * 2.5)
	if index >= len(synthGradient) {
		index = len(synthGradient) - 1
	}
	return lipgloss.Color(synthGradient[index])
}

func architectureColour(arch string) lipgloss.Color {
	colour, exists := architectureColours[arch]
	if !exists {
		return lipgloss.Color("254")
	}
	return colour
}

// paint renders text with style only when colour output is enabled.
func paint(colour bool, style lipgloss.Style, text string) string {
	if !colour {
		return text
	}
	return style.Render(text)
}
