package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Input     InputConfig     `yaml:"input" mapstructure:"input"`
	Data      DataConfig      `yaml:"data" mapstructure:"data"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Fetch     FetchConfig     `yaml:"fetch" mapstructure:"fetch"`
	Classify  ClassifyConfig  `yaml:"classify" mapstructure:"classify"`
	Run       RunConfig       `yaml:"run" mapstructure:"run"`
	Batch     BatchConfig     `yaml:"batch" mapstructure:"batch"`
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// InputConfig configures the identifier source.
type InputConfig struct {
	Path       string `yaml:"path" mapstructure:"path"`
	CodeColumn string `yaml:"code_column" mapstructure:"code_column"`
}

// DataConfig configures where durable state lives. Registry, checkpoint,
// downloaded documents, classifications and manifests all hang off Dir.
type DataConfig struct {
	Dir string `yaml:"dir" mapstructure:"dir"`
}

// AnthropicConfig holds inference service settings. Key is required for any
// run that will extract documents; its absence is a startup error, not a
// per-call failure.
type AnthropicConfig struct {
	Key               string `yaml:"key" mapstructure:"key"`
	Model             string `yaml:"model" mapstructure:"model"`
	MaxTokens         int    `yaml:"max_tokens" mapstructure:"max_tokens"`
	RequestsPerMinute int    `yaml:"requests_per_minute" mapstructure:"requests_per_minute"`
}

// FetchConfig configures the per-code document fetch shell.
type FetchConfig struct {
	MaxAttempts        int `yaml:"max_attempts" mapstructure:"max_attempts"`
	BackoffInitialSecs int `yaml:"backoff_initial_secs" mapstructure:"backoff_initial_secs"`
	BackoffMaxSecs     int `yaml:"backoff_max_secs" mapstructure:"backoff_max_secs"`
	JitterMinMS        int `yaml:"jitter_min_ms" mapstructure:"jitter_min_ms"`
	JitterMaxMS        int `yaml:"jitter_max_ms" mapstructure:"jitter_max_ms"`
}

// JitterMin returns the lower jitter bound as a duration.
func (c FetchConfig) JitterMin() time.Duration {
	return time.Duration(c.JitterMinMS) * time.Millisecond
}

// JitterMax returns the upper jitter bound as a duration.
func (c FetchConfig) JitterMax() time.Duration {
	return time.Duration(c.JitterMaxMS) * time.Millisecond
}

// ClassifyConfig configures the consensus classifier.
type ClassifyConfig struct {
	AgreementThreshold float64 `yaml:"agreement_threshold" mapstructure:"agreement_threshold"`
}

// RunConfig configures the batch coordinator.
type RunConfig struct {
	Concurrency int `yaml:"concurrency" mapstructure:"concurrency"`
	FlushEvery  int `yaml:"flush_every" mapstructure:"flush_every"`
}

// BatchConfig configures the multi-run schedule mode.
type BatchConfig struct {
	Size int `yaml:"size" mapstructure:"size"`
}

// StoreConfig configures the run archive database.
type StoreConfig struct {
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("ORDENES")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults. Keys without a meaningful default still get an empty one so
	// AutomaticEnv can populate them through Unmarshal.
	v.SetDefault("input.path", "")
	v.SetDefault("anthropic.key", "")
	v.SetDefault("input.code_column", "codigo")
	v.SetDefault("data.dir", "data")
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_tokens", 2048)
	v.SetDefault("anthropic.requests_per_minute", 10)
	v.SetDefault("fetch.max_attempts", 3)
	v.SetDefault("fetch.backoff_initial_secs", 2)
	v.SetDefault("fetch.backoff_max_secs", 60)
	v.SetDefault("fetch.jitter_min_ms", 800)
	v.SetDefault("fetch.jitter_max_ms", 2500)
	v.SetDefault("classify.agreement_threshold", 0.7)
	v.SetDefault("run.concurrency", 1)
	v.SetDefault("run.flush_every", 10)
	v.SetDefault("batch.size", 50)
	v.SetDefault("store.database_url", "ordenes.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks that the settings an area of the pipeline depends on are
// present. Missing credentials fail here, at startup, not mid-batch.
func (c *Config) Validate(area string) error {
	switch area {
	case "extract":
		if c.Anthropic.Key == "" {
			return eris.New("config: anthropic.key is required (set ORDENES_ANTHROPIC_KEY)")
		}
	case "fetch":
		if c.Fetch.JitterMinMS <= 0 || c.Fetch.JitterMaxMS < c.Fetch.JitterMinMS {
			return eris.New("config: fetch jitter bounds must satisfy 0 < min <= max")
		}
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
