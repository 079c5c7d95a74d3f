package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/sammcj/gollama-planner/logging"
	"github.com/sammcj/gollama-planner/utils"
)

// EnvPrefix is prepended to every config key when read from the environment,
// e.g. GOLLAMA_PLANNER_LOG_LEVEL.
const EnvPrefix = "GOLLAMA_PLANNER"

type Config struct {
	LogLevel              string  `json:"log_level" mapstructure:"log_level"`
	LogFilePath           string  `json:"log_file_path" mapstructure:"log_file_path"`
	OllamaAPIURL          string  `json:"ollama_api_url" mapstructure:"ollama_api_url"`
	GPUOverheadMB         int     `json:"gpu_overhead_mb" mapstructure:"gpu_overhead_mb"`               // reserved on every GPU before layers are placed
	ContextBudgetFraction float64 `json:"context_budget_fraction" mapstructure:"context_budget_fraction"` // share of free VRAM usable for the context
	MinContext            int     `json:"min_context" mapstructure:"min_context"`
	ContextCacheTTL       string  `json:"context_cache_ttl" mapstructure:"context_cache_ttl"`
	EfficiencyClockGHz    float64 `json:"efficiency_clock_ghz" mapstructure:"efficiency_clock_ghz"`
	DefaultWorkload       string  `json:"default_workload" mapstructure:"default_workload"`
}

var defaultConfig = Config{
	LogLevel:              "warn",
	LogFilePath:           filepath.Join(utils.GetConfigDir(), "planner.log"),
	OllamaAPIURL:          "http://127.0.0.1:11434",
	GPUOverheadMB:         0,
	ContextBudgetFraction: 0.8,
	MinContext:            512,
	ContextCacheTTL:       "5m",
	EfficiencyClockGHz:    3.0,
	DefaultWorkload:       "inference",
}

// Default returns a copy of the built-in configuration.
func Default() Config {
	return defaultConfig
}

// CacheTTL parses ContextCacheTTL, falling back to five minutes.
func (c Config) CacheTTL() time.Duration {
	d, err := time.ParseDuration(c.ContextCacheTTL)
	if err != nil || d <= 0 {
		return 5 * time.Minute
	}
	return d
}

// Validate rejects values the planner cannot work with.
func (c Config) Validate() error {
	if c.ContextBudgetFraction <= 0 || c.ContextBudgetFraction > 1 {
		return fmt.Errorf("context_budget_fraction must be in (0, 1], got %v", c.ContextBudgetFraction)
	}
	if c.MinContext <= 0 {
		return fmt.Errorf("min_context must be positive, got %d", c.MinContext)
	}
	if c.GPUOverheadMB < 0 {
		return fmt.Errorf("gpu_overhead_mb must not be negative, got %d", c.GPUOverheadMB)
	}
	if c.EfficiencyClockGHz <= 0 {
		return fmt.Errorf("efficiency_clock_ghz must be positive, got %v", c.EfficiencyClockGHz)
	}
	return nil
}

func newViper(configPath string) *viper.Viper {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("json")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("log_level", defaultConfig.LogLevel)
	v.SetDefault("log_file_path", defaultConfig.LogFilePath)
	v.SetDefault("ollama_api_url", defaultConfig.OllamaAPIURL)
	v.SetDefault("gpu_overhead_mb", defaultConfig.GPUOverheadMB)
	v.SetDefault("context_budget_fraction", defaultConfig.ContextBudgetFraction)
	v.SetDefault("min_context", defaultConfig.MinContext)
	v.SetDefault("context_cache_ttl", defaultConfig.ContextCacheTTL)
	v.SetDefault("efficiency_clock_ghz", defaultConfig.EfficiencyClockGHz)
	v.SetDefault("default_workload", defaultConfig.DefaultWorkload)
	return v
}

func decode(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.LogFilePath = utils.ExpandHome(cfg.LogFilePath)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func LoadConfig() (Config, error) {
	return LoadConfigFrom(getConfigPath())
}

// LoadConfigFrom reads the JSON config at configPath, creating it with
// default values when it does not exist. Environment variables override
// values from the file.
func LoadConfigFrom(configPath string) (Config, error) {
	if _, err := os.Stat(configPath); errors.Is(err, os.ErrNotExist) {
		logging.DebugLogger.Debug().Str("path", configPath).Msg("config file does not exist, creating with default values")
		if err := SaveConfigTo(configPath, defaultConfig); err != nil {
			return Config{}, fmt.Errorf("failed to save default config: %w", err)
		}
	}

	v := newViper(configPath)
	if err := v.ReadInConfig(); err != nil {
		logging.ErrorLogger.Error().Err(err).Str("path", configPath).Msg("failed to read config file")
		return Config{}, fmt.Errorf("failed to read config file: %w", err)
	}
	return decode(v)
}

func SaveConfig(config Config) error {
	return SaveConfigTo(getConfigPath(), config)
}

func SaveConfigTo(configPath string, config Config) error {
	logging.DebugLogger.Debug().Str("path", configPath).Msg("saving config")

	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	file, err := os.Create(configPath)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(config); err != nil {
		return fmt.Errorf("failed to encode config to file: %w", err)
	}
	return nil
}

// Watch re-reads configPath whenever it changes on disk and hands the new
// config to onChange. Invalid edits are logged and skipped.
func Watch(configPath string, onChange func(Config)) error {
	v := newViper(configPath)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		cfg, err := decode(v)
		if err != nil {
			logging.ErrorLogger.Error().Err(err).Str("path", e.Name).Msg("ignoring invalid config change")
			return
		}
		logging.InfoLogger.Info().Str("path", e.Name).Msg("config reloaded")
		onChange(cfg)
	})
	v.WatchConfig()
	return nil
}

func getConfigPath() string {
	return utils.GetConfigPath()
}
