package core

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/sammcj/gollama-planner/config"
	"github.com/sammcj/gollama-planner/hardware"
	"github.com/sammcj/gollama-planner/utils"
	"github.com/sammcj/gollama-planner/vramestimator"
)

// PlanService ties detection, thread planning and memory planning together
// for the CLI and for embedding in a model loader.
type PlanService struct {
	config     config.Config
	configPath string
	logger     *Logger
	detector   hardware.Detector
	planner    *vramestimator.Planner
	eventBus   *EventBus
	ctx        context.Context
	cancelFunc context.CancelFunc
	mutex      sync.RWMutex
	closed     bool

	detectedOnce sync.Once
}

// ServiceConfig holds configuration for initialising the service
type ServiceConfig struct {
	// Config is used as is when set; otherwise ConfigPath (or the default
	// path) is loaded.
	Config     *config.Config
	ConfigPath string
	LogLevel   string
	// LogWriter replaces the rotating log file when set.
	LogWriter io.Writer
	Detector  hardware.Detector
	// WatchConfig reloads planner tunables when the config file changes.
	WatchConfig bool
	Context     context.Context
}

// NewPlanService creates a new instance of the core service
func NewPlanService(cfg ServiceConfig) (*PlanService, error) {
	var conf config.Config
	var err error
	switch {
	case cfg.Config != nil:
		conf = *cfg.Config
		if err := conf.Validate(); err != nil {
			return nil, fmt.Errorf("invalid config: %w", err)
		}
	case cfg.ConfigPath != "":
		conf, err = config.LoadConfigFrom(cfg.ConfigPath)
	default:
		conf, err = config.LoadConfig()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if cfg.LogLevel != "" {
		conf.LogLevel = cfg.LogLevel
	}

	var logger *Logger
	if cfg.LogWriter != nil {
		logger, err = NewWriterLogger(conf.LogLevel, cfg.LogWriter)
	} else {
		logger, err = NewLogger(conf.LogLevel, conf.LogFilePath)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to initialise logger: %w", err)
	}

	detector := cfg.Detector
	if detector == nil {
		detector = hardware.NewCached(hardware.NewDetector(hardware.Options{
			EfficiencyClockHz: uint64(conf.EfficiencyClockGHz * 1e9),
		}))
	}

	ctx := cfg.Context
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithCancel(ctx)

	service := &PlanService{
		config:     conf,
		configPath: cfg.ConfigPath,
		logger:     logger,
		detector:   detector,
		planner:    vramestimator.NewPlanner(plannerConfig(conf)),
		eventBus:   NewEventBus(),
		ctx:        ctx,
		cancelFunc: cancel,
	}

	if cfg.WatchConfig {
		path := cfg.ConfigPath
		if path == "" {
			path = utils.GetConfigPath()
		}
		if err := config.Watch(path, service.applyConfig); err != nil {
			cancel()
			return nil, fmt.Errorf("failed to watch config: %w", err)
		}
	}

	logger.Debug("plan service initialised")
	return service, nil
}

func plannerConfig(conf config.Config) vramestimator.PlannerConfig {
	return vramestimator.PlannerConfig{
		GPUOverhead:           uint64(conf.GPUOverheadMB) << 20,
		ContextBudgetFraction: conf.ContextBudgetFraction,
		MinContext:            conf.MinContext,
		CacheTTL:              conf.CacheTTL(),
	}
}

// applyConfig reconfigures the planner in place. The detector is not rebuilt
// since hardware is detected once per process.
func (s *PlanService) applyConfig(conf config.Config) {
	s.mutex.Lock()
	if s.closed {
		s.mutex.Unlock()
		return
	}
	s.config = conf
	s.planner.Reconfigure(plannerConfig(conf))
	s.mutex.Unlock()

	s.logger.With("gpu_overhead_mb", conf.GPUOverheadMB).Info("configuration applied")
	s.eventBus.Emit(Event{Type: EventConfigUpdated, Data: conf})
}

// Close gracefully shuts down the service
func (s *PlanService) Close() error {
	s.mutex.Lock()
	if s.closed {
		s.mutex.Unlock()
		return nil
	}
	s.closed = true
	s.cancelFunc()
	s.mutex.Unlock()

	s.eventBus.Emit(Event{Type: EventServiceStopped})
	s.eventBus.Close()
	s.logger.Debug("plan service shut down")
	return nil
}

// GetConfig returns a copy of the current configuration
func (s *PlanService) GetConfig() config.Config {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.config
}

// UpdateConfig saves cfg to the service's config file and applies it.
func (s *PlanService) UpdateConfig(cfg config.Config) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	path := s.configPath
	if path == "" {
		path = utils.GetConfigPath()
	}
	if err := config.SaveConfigTo(path, cfg); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	s.applyConfig(cfg)
	return nil
}

// Planner returns the memory planner. It lives as long as the service and
// picks up configuration changes in place.
func (s *PlanService) Planner() *vramestimator.Planner {
	return s.planner
}

// GetLogger returns the service logger
func (s *PlanService) GetLogger() *Logger {
	return s.logger
}

// GetEventBus returns the event bus for subscribing to events
func (s *PlanService) GetEventBus() *EventBus {
	return s.eventBus
}

// Context returns the service context
func (s *PlanService) Context() context.Context {
	return s.ctx
}
