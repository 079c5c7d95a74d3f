// main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/sammcj/gollama-planner/config"
	"github.com/sammcj/gollama-planner/core"
	"github.com/sammcj/gollama-planner/hardware"
	"github.com/sammcj/gollama-planner/threads"
	"github.com/sammcj/gollama-planner/vramestimator"
)

var (
	Version string // Version will be set during the build process
)

// app carries state shared by every command. detector is only set by tests;
// logWriter is set by tests and by --log-stderr.
type app struct {
	out        io.Writer
	logWriter  io.Writer
	detector   hardware.Detector
	configPath string
	logLevel   string
	logStderr  bool
	jsonOutput bool
	colour     bool

	service *core.PlanService
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	a := &app{out: os.Stdout, colour: colourEnabled(os.Stdout)}
	if err := a.rootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1)
	}
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:               "gollama-planner",
		Short:             "Plan threads, GPU layers and context size for local LLM inference",
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
		PersistentPostRunE: func(*cobra.Command, []string) error {
			if a.service == nil {
				return nil
			}
			return a.service.Close()
		},
	}
	root.SetOut(a.out)

	root.PersistentFlags().StringVar(&a.configPath, "config", "", "config file (default ~/.config/gollama-planner/config.json)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "override the configured log level")
	root.PersistentFlags().BoolVar(&a.logStderr, "log-stderr", false, "log to stderr instead of the log file")
	root.PersistentFlags().BoolVar(&a.jsonOutput, "json", false, "print JSON instead of tables")

	root.AddCommand(
		a.detectCmd(),
		a.threadsCmd(),
		a.planCmd(),
		a.contextCmd(),
		a.configCmd(),
		a.versionCmd(),
	)
	return root
}

func (a *app) setup(cmd *cobra.Command, _ []string) error {
	if cmd.Name() == "version" {
		return nil
	}

	var cfg config.Config
	var err error
	if a.configPath != "" {
		cfg, err = config.LoadConfigFrom(a.configPath)
	} else {
		cfg, err = config.LoadConfig()
	}
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}
	if a.logLevel != "" {
		cfg.LogLevel = a.logLevel
	}

	// The service initialises logging, to a.logWriter when set and otherwise
	// to the configured log file.
	if a.logWriter == nil && a.logStderr {
		a.logWriter = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}
	}

	a.service, err = core.NewPlanService(core.ServiceConfig{
		Config:     &cfg,
		ConfigPath: a.configPath,
		LogWriter:  a.logWriter,
		Detector:   a.detector,
		Context:    cmd.Context(),
	})
	return err
}

func (a *app) detectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "detect",
		Short: "Describe this machine's CPUs and memory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			info := a.service.DetectSystem(cmd.Context())
			if a.jsonOutput {
				return writeJSON(a.out, info)
			}
			renderSystem(a.out, info, a.colour)
			return nil
		},
	}
}

func (a *app) workload(arg string) (threads.Workload, error) {
	if arg == "" {
		arg = a.service.GetConfig().DefaultWorkload
	}
	return threads.ParseWorkload(arg)
}

func (a *app) threadsCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "threads [inference|training|serving]",
		Short:     "Recommend a thread count for a workload",
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: []string{"inference", "training", "serving"},
		RunE: func(cmd *cobra.Command, args []string) error {
			var arg string
			if len(args) > 0 {
				arg = args[0]
			}
			w, err := a.workload(arg)
			if err != nil {
				return err
			}
			rec := a.service.RecommendThreads(cmd.Context(), w)
			if a.jsonOutput {
				return writeJSON(a.out, struct {
					Workload string `json:"workload"`
					threads.Recommendation
				}{w.String(), rec})
			}
			renderThreads(a.out, w, rec, a.colour)
			return nil
		},
	}
}

// modelFlags selects the model source shared by plan and context.
type modelFlags struct {
	gguf        string
	ollamaModel string
}

func (f *modelFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.gguf, "gguf", "", "path to a GGUF model file")
	cmd.Flags().StringVar(&f.ollamaModel, "ollama-model", "", "model name known to the Ollama server")
	cmd.MarkFlagsMutuallyExclusive("gguf", "ollama-model")
	cmd.MarkFlagsOneRequired("gguf", "ollama-model")
}

func (a *app) loadModel(ctx context.Context, f modelFlags) (vramestimator.ModelArchitectureInfo, error) {
	if f.gguf != "" {
		return a.service.LoadGGUF(f.gguf)
	}
	return a.service.LoadOllamaModel(ctx, f.ollamaModel)
}

func (a *app) planCmd() *cobra.Command {
	var (
		model        modelFlags
		gpuSpecs     []string
		opts         = vramestimator.DefaultPlanningOptions()
		kvCacheType  string
		workloadName string
		numParallel  int
	)

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Plan a model load across the given GPUs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			gpus, err := parseGPUSpecs(gpuSpecs)
			if err != nil {
				return err
			}
			kv, err := vramestimator.ParseKVCacheType(kvCacheType)
			if err != nil {
				return err
			}
			opts.KVCacheType = kv
			workload, err := a.workload(workloadName)
			if err != nil {
				return err
			}

			m, err := a.loadModel(cmd.Context(), model)
			if err != nil {
				return err
			}

			plan, err := a.service.Plan(cmd.Context(), core.PlanRequest{
				GPUs:        gpus,
				Model:       &m,
				Options:     opts,
				NumParallel: numParallel,
				Workload:    workload,
			})
			if err != nil {
				return err
			}

			if a.jsonOutput {
				return writeJSON(a.out, planOutput{Plan: plan, OllamaOptions: plan.OllamaOptions()})
			}
			renderPlan(a.out, plan, gpus, a.colour)
			return nil
		},
	}

	model.register(cmd)
	flags := cmd.Flags()
	flags.StringArrayVar(&gpuSpecs, "gpu", nil, gpuFlagUsage)
	flags.IntVar(&opts.NumCtx, "ctx", 0, "requested context size (0 uses the model's trained context)")
	flags.IntVar(&opts.NumBatch, "batch", vramestimator.DefaultBatch, "batch size")
	flags.IntVar(&opts.NumGPU, "num-gpu", -1, "layers to offload (-1 decides automatically, 0 is CPU only)")
	flags.IntVar(&opts.NumThread, "threads", 0, "thread count (0 recommends one)")
	flags.IntVar(&numParallel, "parallel", 1, "parallel sequences sharing the model")
	flags.StringVar(&kvCacheType, "kv-cache-type", string(vramestimator.KVCacheFP16), "KV cache type: f16, q8_0 or q4_0")
	flags.BoolVar(&opts.FlashAttention, "flash-attention", false, "enable flash attention when every device supports it")
	flags.StringVar(&workloadName, "workload", "", "workload for the thread recommendation")
	return cmd
}

// contextResult is the --json shape of the context command.
type contextResult struct {
	Model         string                            `json:"model"`
	Requested     int                               `json:"requested"`
	Safe          int                               `json:"safe"`
	AvailableVRAM uint64                            `json:"available_vram"`
	KVCacheType   vramestimator.KVCacheQuantisation `json:"kv_cache_type"`
	NumParallel   int                               `json:"num_parallel"`
}

func (a *app) contextCmd() *cobra.Command {
	var (
		model       modelFlags
		gpuSpecs    []string
		requested   int
		vramMB      uint64
		kvCacheType string
		ctxOpts     vramestimator.ContextOptions
	)

	cmd := &cobra.Command{
		Use:   "context",
		Short: "Find the largest context size that fits in VRAM",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			kv, err := vramestimator.ParseKVCacheType(kvCacheType)
			if err != nil {
				return err
			}
			ctxOpts.KVCacheType = kv
			ctxOpts.NumParallel = max(ctxOpts.NumParallel, 1)

			available := vramMB << 20
			if available == 0 {
				gpus, err := parseGPUSpecs(gpuSpecs)
				if err != nil {
					return err
				}
				for _, g := range gpus {
					if g.Library != vramestimator.LibraryCPU {
						available += g.FreeMemory
					}
				}
			}
			if available == 0 {
				return errors.New("no VRAM given: set --vram-mb or --gpu")
			}

			m, err := a.loadModel(cmd.Context(), model)
			if err != nil {
				return err
			}

			req := requested
			if req <= 0 {
				req = vramestimator.DefaultContext
				if m.ContextLength > 0 {
					req = int(m.ContextLength)
				}
			}

			res := contextResult{
				Model:         m.ModelFile,
				Requested:     req,
				Safe:          a.service.SafeContextSizeWith(m, req, available, ctxOpts),
				AvailableVRAM: available,
				KVCacheType:   kv,
				NumParallel:   ctxOpts.NumParallel,
			}
			if a.jsonOutput {
				return writeJSON(a.out, res)
			}
			renderModel(a.out, m, a.colour)
			line := fmt.Sprintf("Safe context: %d of %d requested with %s VRAM",
				res.Safe, res.Requested, vramestimator.FormatBytes(available))
			if res.Safe < res.Requested {
				line = paint(a.colour, warnStyle, line)
			}
			fmt.Fprintln(a.out, line)
			return nil
		},
	}

	model.register(cmd)
	cmd.Flags().StringArrayVar(&gpuSpecs, "gpu", nil, gpuFlagUsage)
	cmd.Flags().IntVar(&requested, "ctx", 0, "requested context size (0 uses the model's trained context)")
	cmd.Flags().Uint64Var(&vramMB, "vram-mb", 0, "available VRAM in MiB, overrides --gpu")
	cmd.Flags().StringVar(&kvCacheType, "kv-cache-type", string(vramestimator.KVCacheFP16), "KV cache type the model will load with: f16, q8_0 or q4_0")
	cmd.Flags().IntVar(&ctxOpts.NumBatch, "batch", vramestimator.DefaultBatch, "batch size")
	cmd.Flags().IntVar(&ctxOpts.NumParallel, "parallel", 1, "parallel sequences sharing the model")
	return cmd
}

func (a *app) configCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			return writeJSON(a.out, a.service.GetConfig())
		},
	}
}

func (a *app) versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version and exit",
		Args:  cobra.NoArgs,
		Run: func(*cobra.Command, []string) {
			fmt.Fprintln(a.out, Version)
		},
	}
}
