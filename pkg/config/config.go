// Package config loads the runner configuration: YAML file over defaults, then
// environment overrides. It also holds the model registry and the secrets store.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Flagro/holosophos-erc3/pkg/logx"
)

// DefaultConfigFile is read when present and no other path is given.
const DefaultConfigFile = "nextstep.yaml"

// Environment overrides.
const (
	EnvModel        = "NEXTSTEP_MODEL"
	EnvMaxTurns     = "NEXTSTEP_MAX_TURNS"
	EnvBenchmark    = "NEXTSTEP_BENCHMARK"
	EnvWorkspace    = "NEXTSTEP_WORKSPACE"
	EnvPlatformURL  = "NEXTSTEP_PLATFORM_URL"
	EnvDBPath       = "NEXTSTEP_DB_PATH"
	EnvMetricsAddr  = "NEXTSTEP_METRICS_ADDR"
	EnvTraceDir     = "NEXTSTEP_TRACE_DIR"
	EnvSecretsFile  = "NEXTSTEP_SECRETS_FILE"
	EnvSecretsPass  = "NEXTSTEP_SECRETS_PASSWORD" //nolint:gosec // variable name, not a credential
	EnvLLMBaseURL   = "NEXTSTEP_LLM_BASE_URL"
	EnvLLMTimeout   = "NEXTSTEP_LLM_TIMEOUT"
	EnvRetryAttempt = "NEXTSTEP_LLM_RETRY_ATTEMPTS"
)

//nolint:gochecknoglobals // package logger
var logger *logx.Logger

func getLogger() *logx.Logger {
	if logger == nil {
		logger = logx.NewLogger("config")
	}
	return logger
}

// Config is the complete runner configuration.
type Config struct {
	Agent       AgentConfig     `yaml:"agent"`
	LLM         LLMConfig       `yaml:"llm"`
	Platform    PlatformConfig  `yaml:"platform"`
	Telemetry   TelemetryConfig `yaml:"telemetry"`
	Logging     LoggingConfig   `yaml:"logging"`
	SecretsFile string          `yaml:"secrets_file"`
}

// AgentConfig bounds a single task run.
type AgentConfig struct {
	Model               string `yaml:"model"`
	MaxTurns            int    `yaml:"max_turns"`
	MaxCompletionTokens int    `yaml:"max_completion_tokens"`
	// MaxHistoryTokens only triggers a warning; the log is never truncated.
	MaxHistoryTokens int    `yaml:"max_history_tokens"`
	SystemPrompt     string `yaml:"system_prompt"`
}

// LLMConfig configures the provider client and its middleware.
type LLMConfig struct {
	Provider       string        `yaml:"provider"` // inferred from the model when empty
	BaseURL        string        `yaml:"base_url"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	Retry          RetryConfig   `yaml:"retry"`
}

// RetryConfig controls provider-level retries. One attempt disables retrying.
type RetryConfig struct {
	MaxAttempts   int           `yaml:"max_attempts"`
	InitialDelay  time.Duration `yaml:"initial_delay"`
	MaxDelay      time.Duration `yaml:"max_delay"`
	BackoffFactor float64       `yaml:"backoff_factor"`
	Jitter        bool          `yaml:"jitter"`
}

// PlatformConfig identifies the benchmark session.
type PlatformConfig struct {
	BaseURL        string        `yaml:"base_url"`
	Benchmark      string        `yaml:"benchmark"`
	Workspace      string        `yaml:"workspace"`
	SessionName    string        `yaml:"session_name"`
	Architecture   string        `yaml:"architecture"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// TelemetryConfig selects the usage sinks. Empty values disable a sink.
type TelemetryConfig struct {
	DBPath        string `yaml:"db_path"`
	MetricsAddr   string `yaml:"metrics_addr"`
	TextfilePath  string `yaml:"textfile_path"`
	TraceDir      string `yaml:"trace_dir"` // JSONL decision trace
	LogToPlatform bool   `yaml:"log_to_platform"`
}

type LoggingConfig struct {
	Debug   bool     `yaml:"debug"`
	Domains []string `yaml:"domains"`
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() *Config {
	return &Config{
		Agent: AgentConfig{
			Model:               "gpt-4o",
			MaxTurns:            20,
			MaxCompletionTokens: 10000,
			MaxHistoryTokens:    131072,
		},
		LLM: LLMConfig{
			RequestTimeout: 120 * time.Second,
			Retry: RetryConfig{
				MaxAttempts:   1,
				InitialDelay:  time.Second,
				MaxDelay:      30 * time.Second,
				BackoffFactor: 2.0,
				Jitter:        true,
			},
		},
		Platform: PlatformConfig{
			BaseURL:        "https://erc.timetoact-group.at",
			Benchmark:      "corporate",
			Workspace:      "my",
			SessionName:    "Simple SGR Agent",
			Architecture:   "NextStep SGR Agent",
			RequestTimeout: 60 * time.Second,
		},
		Telemetry: TelemetryConfig{
			DBPath:        "nextstep.db",
			LogToPlatform: true,
		},
		SecretsFile: DefaultSecretsFile,
	}
}

// Load builds the configuration from path (optional) and the environment, then validates it.
// A missing DefaultConfigFile is not an error.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	explicit := path != ""
	if !explicit {
		path = DefaultConfigFile
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := decodeYAML(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		getLogger().Info("📄 Loaded config from %s", path)
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decodeYAML(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func (c *Config) applyEnv() error {
	setString := func(env string, dst *string) {
		if v := os.Getenv(env); v != "" {
			*dst = v
		}
	}
	setString(EnvModel, &c.Agent.Model)
	setString(EnvBenchmark, &c.Platform.Benchmark)
	setString(EnvWorkspace, &c.Platform.Workspace)
	setString(EnvPlatformURL, &c.Platform.BaseURL)
	setString(EnvDBPath, &c.Telemetry.DBPath)
	setString(EnvMetricsAddr, &c.Telemetry.MetricsAddr)
	setString(EnvTraceDir, &c.Telemetry.TraceDir)
	setString(EnvSecretsFile, &c.SecretsFile)
	setString(EnvLLMBaseURL, &c.LLM.BaseURL)

	if v := os.Getenv(EnvMaxTurns); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvMaxTurns, err)
		}
		c.Agent.MaxTurns = n
	}
	if v := os.Getenv(EnvRetryAttempt); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvRetryAttempt, err)
		}
		c.LLM.Retry.MaxAttempts = n
	}
	if v := os.Getenv(EnvLLMTimeout); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvLLMTimeout, err)
		}
		c.LLM.RequestTimeout = d
	}
	return nil
}

// Provider returns the configured provider or the one inferred from the model.
func (c *Config) Provider() (string, error) {
	if c.LLM.Provider != "" {
		return c.LLM.Provider, nil
	}
	return GetModelProvider(c.Agent.Model)
}

// Validate checks budgets and provider resolution.
func (c *Config) Validate() error {
	if c.Agent.Model == "" {
		return fmt.Errorf("agent.model is required")
	}
	if c.Agent.MaxTurns <= 0 {
		return fmt.Errorf("agent.max_turns must be positive, got %d", c.Agent.MaxTurns)
	}
	if c.Agent.MaxCompletionTokens <= 0 {
		return fmt.Errorf("agent.max_completion_tokens must be positive, got %d", c.Agent.MaxCompletionTokens)
	}
	provider, err := c.Provider()
	if err != nil {
		return err
	}
	switch provider {
	case ProviderOpenAI, ProviderAnthropic, ProviderGoogle, ProviderOllama:
	default:
		return fmt.Errorf("unknown provider: %s", provider)
	}
	if c.LLM.RequestTimeout < 0 {
		return fmt.Errorf("llm.request_timeout cannot be negative")
	}
	if c.LLM.Retry.MaxAttempts < 1 {
		return fmt.Errorf("llm.retry.max_attempts must be at least 1, got %d", c.LLM.Retry.MaxAttempts)
	}
	if c.Platform.Benchmark == "" || c.Platform.Workspace == "" {
		return fmt.Errorf("platform.benchmark and platform.workspace are required")
	}
	return nil
}
