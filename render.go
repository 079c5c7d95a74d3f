package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/olekukonko/tablewriter"
	"github.com/ollama/ollama/api"
	"golang.org/x/term"

	"github.com/sammcj/gollama-planner/core"
	"github.com/sammcj/gollama-planner/hardware"
	"github.com/sammcj/gollama-planner/threads"
	"github.com/sammcj/gollama-planner/vramestimator"
)

// colourEnabled reports whether w is an interactive terminal.
func colourEnabled(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newTable(w io.Writer, header []string) *tablewriter.Table {
	tw := tablewriter.NewWriter(w)
	tw.SetHeader(header)
	tw.SetAutoFormatHeaders(false)
	tw.SetBorders(tablewriter.Border{Left: true, Top: false, Right: true, Bottom: false})
	tw.SetCenterSeparator("|")
	tw.SetAlignment(tablewriter.ALIGN_LEFT)
	return tw
}

func formatGHz(hz uint64) string {
	if hz == 0 {
		return "-"
	}
	return fmt.Sprintf("%.2f GHz", float64(hz)/1e9)
}

func renderSystem(w io.Writer, info hardware.SystemInfo, colour bool) {
	fmt.Fprintln(w, paint(colour, headingStyle, "🖥  System"))
	fmt.Fprintf(w, "%s %s  %s %s  %s %s\n\n",
		paint(colour, labelStyle, "Platform:"), info.Platform,
		paint(colour, labelStyle, "Memory:"), vramestimator.FormatBytes(info.TotalMemory),
		paint(colour, labelStyle, "Environment:"), info.Environment)

	tw := newTable(w, []string{"CPU", "Vendor", "Model", "Cores", "Efficiency", "Threads", "Clock", "Arch"})
	for i, c := range info.CPUs {
		tw.Append([]string{
			strconv.Itoa(i),
			c.VendorID,
			c.ModelName,
			strconv.Itoa(c.Cores),
			strconv.Itoa(c.EfficiencyCores),
			strconv.Itoa(c.Threads),
			formatGHz(c.ClockHz),
			c.Arch,
		})
	}
	tw.Render()
}

func renderThreads(w io.Writer, workload threads.Workload, rec threads.Recommendation, colour bool) {
	fmt.Fprintf(w, "%s %d threads for %s (min %d, max %d)\n",
		paint(colour, labelStyle, "Recommended:"), rec.Recommended, workload, rec.Min, rec.Max)
}

func renderModel(w io.Writer, m vramestimator.ModelArchitectureInfo, colour bool) {
	arch := m.Architecture
	quant := m.QuantLevel
	size := vramestimator.FormatBytes(m.ModelSize)
	if colour {
		arch = lipgloss.NewStyle().Foreground(architectureColour(m.Architecture)).Render(arch)
		quant = lipgloss.NewStyle().Foreground(quantColour(m.QuantLevel)).Render(quant)
		size = lipgloss.NewStyle().Foreground(sizeColour(float64(m.ModelSize)/1e9)).Render(size)
	}
	fmt.Fprintf(w, "%s %s  %s %s  %s %s  %s %d  %s %d\n",
		paint(colour, labelStyle, "Arch:"), arch,
		paint(colour, labelStyle, "Quant:"), quant,
		paint(colour, labelStyle, "Weights:"), size,
		paint(colour, labelStyle, "Blocks:"), m.BlockCount,
		paint(colour, labelStyle, "Trained ctx:"), m.ContextLength)
}

func renderPlan(w io.Writer, plan *core.Plan, gpus []vramestimator.GPUInfo, colour bool) {
	renderModel(w, plan.Model, colour)
	fmt.Fprintln(w)
	fmt.Fprint(w, vramestimator.PrintLayoutTable(plan.Estimate, plan.Model, gpus, colour))
	fmt.Fprintln(w)

	opts := plan.Options
	tw := newTable(w, []string{"Option", "Value"})
	tw.AppendBulk([][]string{
		{"num_ctx", strconv.Itoa(opts.NumCtx)},
		{"num_batch", strconv.Itoa(opts.NumBatch)},
		{"num_gpu", strconv.Itoa(opts.NumGPU)},
		{"num_thread", strconv.Itoa(opts.NumThread)},
		{"num_parallel", strconv.Itoa(plan.NumParallel)},
		{"flash_attention", strconv.FormatBool(opts.FlashAttention)},
		{"kv_cache_type", string(opts.KVCacheType)},
	})
	tw.Render()

	if plan.ContextReduced {
		fmt.Fprintln(w, paint(colour, warnStyle, "⚠ requested context did not fit and was reduced"))
	}
	if plan.Estimate.Layers == 0 && len(gpus) > 0 {
		fmt.Fprintln(w, paint(colour, faintStyle, "model runs on CPU only"))
	}
}

// planOutput is the --json shape of the plan command.
type planOutput struct {
	Plan          *core.Plan  `json:"plan"`
	OllamaOptions api.Options `json:"ollama_options"`
}
