// File: vramestimator/table.go

package vramestimator

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/olekukonko/tablewriter"
)

var colourMap = []string{
	"#ff0000", // red
	"#ffaa00", // amber
	"#00ff00", // green
}

// colourForUsage picks red when a device is nearly full and green when it has
// plenty of room left.
func colourForUsage(used, total uint64) string {
	if total == 0 {
		return colourMap[0]
	}
	ratio := float64(used) / float64(total)
	switch {
	case ratio >= 0.95:
		return colourMap[0]
	case ratio >= 0.8:
		return colourMap[1]
	default:
		return colourMap[2]
	}
}

func newTable(buf *bytes.Buffer, header []string, colour bool) *tablewriter.Table {
	tw := tablewriter.NewWriter(buf)
	tw.SetHeader(header)
	tw.SetAutoWrapText(false)
	tw.SetBorders(tablewriter.Border{Left: true, Top: false, Right: true, Bottom: false})
	tw.SetCenterSeparator("|")
	tw.SetColumnSeparator("|")
	tw.SetRowSeparator("-")
	if colour {
		headerColours := make([]tablewriter.Colors, len(header))
		for i := range headerColours {
			headerColours[i] = tablewriter.Colors{tablewriter.FgHiWhiteColor}
		}
		tw.SetHeaderColor(headerColours...)
	}
	return tw
}

// PrintLayoutTable renders a MemoryEstimate as a per-GPU table followed by
// the memory breakdown.
func PrintLayoutTable(est MemoryEstimate, model ModelArchitectureInfo, gpus []GPUInfo, colour bool) string {
	free := make(map[string]uint64, len(gpus))
	for _, g := range gpus {
		free[g.ID] = g.FreeMemory
	}

	var buf bytes.Buffer
	tw := newTable(&buf, []string{"GPU", "Free", "Allocated", "Layers"}, colour)
	split := splitCounts(est.TensorSplit, len(est.GPUs))
	for i, id := range est.GPUs {
		alloc := FormatBytes(est.GPUSizes[i])
		if colour {
			alloc = lipgloss.NewStyle().Foreground(lipgloss.Color(colourForUsage(est.GPUSizes[i], free[id]))).Render(alloc)
		}
		layers := "-"
		switch {
		case split != nil:
			layers = split[i]
		case est.GPUSizes[i] > 0:
			layers = strconv.Itoa(est.Layers)
		}
		tw.Append([]string{id, FormatBytes(free[id]), alloc, layers})
	}
	tw.Render()

	var summary bytes.Buffer
	st := newTable(&summary, []string{"Item", "Value"}, colour)
	st.AppendBulk([][]string{
		{"Layers", fmt.Sprintf("%d/%d", est.Layers, model.BlockCount)},
		{"Fully loaded", strconv.FormatBool(est.FullyLoaded)},
		{"Weights", FormatBytes(est.Weights)},
		{"KV cache", FormatBytes(est.KVCache)},
		{"Graph", FormatBytes(est.Graph)},
		{"VRAM", FormatBytes(est.VRAMSize)},
		{"Total", FormatBytes(est.TotalSize)},
		{"Tensor split", est.TensorSplit},
	})
	st.Render()

	title := fmt.Sprintf("📊 Layout for model: %s\n\n", modelLabel(model))
	if colour {
		title = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#ffffff")).Render(title)
	}
	return title + buf.String() + "\n" + summary.String()
}

func modelLabel(m ModelArchitectureInfo) string {
	if m.ModelFile != "" {
		return m.ModelFile
	}
	if m.Architecture != "" {
		return m.Architecture
	}
	return "unknown"
}

func splitCounts(split string, n int) []string {
	if split == "" {
		return nil
	}
	parts := strings.Split(split, ",")
	if len(parts) != n {
		return nil
	}
	return parts
}
