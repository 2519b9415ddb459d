// Package config loads runtime settings from defaults, an optional config
// file, a .env file and CHATPPT_* environment variables, in that order of
// increasing precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// ConfigError reports a setting that prevents startup.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Reason)
}

const (
	ProviderOpenAI    = "openai"
	ProviderDeepSeek  = "deepseek"
	ProviderAnthropic = "anthropic"
	ProviderMock      = "mock"

	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

type Config struct {
	LogLevel   string        `mapstructure:"log_level"`
	LLM        LLMConfig     `mapstructure:"llm"`
	Critique   ModelConfig   `mapstructure:"critique"`
	Advisor    ModelConfig   `mapstructure:"advisor"`
	Vision     ModelConfig   `mapstructure:"vision"`
	ImageModel string        `mapstructure:"image_model"`
	OpenAI     OpenAIConfig  `mapstructure:"openai"`
	Refine     RefineConfig  `mapstructure:"refine"`
	Images     ImagesConfig  `mapstructure:"images"`
	History    HistoryConfig `mapstructure:"history"`
	Server     ServerConfig  `mapstructure:"server"`
	Prompts    PromptsConfig `mapstructure:"prompts"`
}

// LLMConfig selects the text generation provider used by the writer, and by
// the critic and advisor unless they override the model.
type LLMConfig struct {
	Provider    string  `mapstructure:"provider"`
	Model       string  `mapstructure:"model"`
	APIKey      string  `mapstructure:"api_key"`
	BaseURL     string  `mapstructure:"base_url"`
	Temperature float64 `mapstructure:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens"`
}

type ModelConfig struct {
	Model       string  `mapstructure:"model"`
	Temperature float64 `mapstructure:"temperature"`
}

// OpenAIConfig holds the credentials for vision description and image
// synthesis, which always go through OpenAI.
type OpenAIConfig struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
}

type RefineConfig struct {
	MaxRounds int `mapstructure:"max_rounds"`
}

type ImagesConfig struct {
	Threshold    float64       `mapstructure:"threshold"`
	Candidates   int           `mapstructure:"candidates"`
	Timeout      time.Duration `mapstructure:"timeout"`
	Retries      int           `mapstructure:"retries"`
	MaxDimension int           `mapstructure:"max_dimension"`
	Quality      int           `mapstructure:"quality"`
	OutputDir    string        `mapstructure:"output_dir"`
	Concurrency  int           `mapstructure:"concurrency"`
	ScoreTimeout time.Duration `mapstructure:"score_timeout"`
	SynthTimeout time.Duration `mapstructure:"synth_timeout"`
	SearchURL    string        `mapstructure:"search_url"`
}

type HistoryConfig struct {
	Backend     string `mapstructure:"backend"`
	SQLitePath  string `mapstructure:"sqlite_path"`
	DatabaseURL string `mapstructure:"database_url"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

type PromptsConfig struct {
	Dir string `mapstructure:"dir"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")

	v.SetDefault("llm.provider", ProviderOpenAI)
	v.SetDefault("llm.model", "gpt-4o-mini")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.base_url", "")
	v.SetDefault("llm.temperature", 0.5)
	v.SetDefault("llm.max_tokens", 4096)
	v.SetDefault("critique.model", "")
	v.SetDefault("critique.temperature", 0.2)
	v.SetDefault("advisor.model", "")
	v.SetDefault("advisor.temperature", 0.7)
	v.SetDefault("vision.model", "gpt-4o")
	v.SetDefault("vision.temperature", 0.0)
	v.SetDefault("image_model", "dall-e-3")
	v.SetDefault("openai.api_key", "")
	v.SetDefault("openai.base_url", "")

	v.SetDefault("refine.max_rounds", 3)

	v.SetDefault("images.threshold", 0.7)
	v.SetDefault("images.candidates", 3)
	v.SetDefault("images.timeout", time.Second)
	v.SetDefault("images.retries", 3)
	v.SetDefault("images.max_dimension", 1080)
	v.SetDefault("images.quality", 85)
	v.SetDefault("images.output_dir", "images")
	v.SetDefault("images.concurrency", 1)
	v.SetDefault("images.score_timeout", 10*time.Second)
	v.SetDefault("images.synth_timeout", 60*time.Second)
	v.SetDefault("images.search_url", "")

	v.SetDefault("history.backend", BackendMemory)
	v.SetDefault("history.sqlite_path", "./data/chatppt.db")
	v.SetDefault("history.database_url", "")

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("prompts.dir", "")
}

// Load reads the configuration. path may be empty; a missing .env file is
// not an error. The result is validated.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("CHATPPT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if ext := strings.TrimPrefix(filepath.Ext(path), "."); ext != "" {
			v.SetConfigType(ext)
		}
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	cfg.applyFallbacks()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyFallbacks fills credentials from the provider's conventional
// environment variables and derives unset per-role models.
func (c *Config) applyFallbacks() {
	c.LLM.Provider = strings.ToLower(strings.TrimSpace(c.LLM.Provider))
	c.History.Backend = strings.ToLower(strings.TrimSpace(c.History.Backend))

	if c.LLM.APIKey == "" {
		switch c.LLM.Provider {
		case ProviderOpenAI:
			c.LLM.APIKey = os.Getenv("OPENAI_API_KEY")
		case ProviderDeepSeek:
			c.LLM.APIKey = os.Getenv("DEEPSEEK_API_KEY")
		case ProviderAnthropic:
			c.LLM.APIKey = os.Getenv("ANTHROPIC_API_KEY")
		}
	}
	if c.OpenAI.APIKey == "" {
		if c.LLM.Provider == ProviderOpenAI {
			c.OpenAI.APIKey = c.LLM.APIKey
			if c.OpenAI.BaseURL == "" {
				c.OpenAI.BaseURL = c.LLM.BaseURL
			}
		} else {
			c.OpenAI.APIKey = os.Getenv("OPENAI_API_KEY")
		}
	}
	if c.History.DatabaseURL == "" {
		c.History.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if c.Critique.Model == "" {
		c.Critique.Model = c.LLM.Model
	}
	if c.Advisor.Model == "" {
		c.Advisor.Model = c.LLM.Model
	}
}

// Validate reports the first setting that cannot work.
func (c Config) Validate() error {
	switch c.LLM.Provider {
	case ProviderOpenAI, ProviderDeepSeek, ProviderAnthropic:
		if c.LLM.APIKey == "" {
			return &ConfigError{Field: "llm.api_key", Reason: fmt.Sprintf("no api key for provider %s", c.LLM.Provider)}
		}
		if c.LLM.Model == "" {
			return &ConfigError{Field: "llm.model", Reason: "model is required"}
		}
	case ProviderMock:
	default:
		return &ConfigError{Field: "llm.provider", Reason: fmt.Sprintf("unsupported provider %q", c.LLM.Provider)}
	}
	if c.LLM.Provider == ProviderDeepSeek && c.LLM.BaseURL == "" {
		return &ConfigError{Field: "llm.base_url", Reason: "deepseek needs an OpenAI-compatible base url"}
	}
	if c.Refine.MaxRounds < 1 {
		return &ConfigError{Field: "refine.max_rounds", Reason: "must be at least 1"}
	}

	img := c.Images
	switch {
	case img.Threshold < 0 || img.Threshold > 1:
		return &ConfigError{Field: "images.threshold", Reason: "must be within [0,1]"}
	case img.Candidates < 1:
		return &ConfigError{Field: "images.candidates", Reason: "must be at least 1"}
	case img.Retries < 1:
		return &ConfigError{Field: "images.retries", Reason: "must be at least 1"}
	case img.Timeout <= 0:
		return &ConfigError{Field: "images.timeout", Reason: "must be positive"}
	case img.ScoreTimeout <= 0:
		return &ConfigError{Field: "images.score_timeout", Reason: "must be positive"}
	case img.SynthTimeout <= 0:
		return &ConfigError{Field: "images.synth_timeout", Reason: "must be positive"}
	case img.Quality < 1 || img.Quality > 100:
		return &ConfigError{Field: "images.quality", Reason: "must be within 1..100"}
	case img.MaxDimension < 1:
		return &ConfigError{Field: "images.max_dimension", Reason: "must be positive"}
	case img.Concurrency < 1:
		return &ConfigError{Field: "images.concurrency", Reason: "must be at least 1"}
	}

	switch c.History.Backend {
	case BackendMemory:
	case BackendSQLite:
		if c.History.SQLitePath == "" {
			return &ConfigError{Field: "history.sqlite_path", Reason: "path is required for the sqlite backend"}
		}
	case BackendPostgres:
		if c.History.DatabaseURL == "" {
			return &ConfigError{Field: "history.database_url", Reason: "url is required for the postgres backend"}
		}
	default:
		return &ConfigError{Field: "history.backend", Reason: fmt.Sprintf("unknown backend %q", c.History.Backend)}
	}
	return nil
}

// RequireImaging reports whether the image pipeline can run: vision
// description and synthesis need OpenAI credentials unless the mock provider
// is selected.
func (c Config) RequireImaging() error {
	if c.LLM.Provider == ProviderMock {
		return nil
	}
	if c.OpenAI.APIKey == "" {
		return &ConfigError{Field: "openai.api_key", Reason: "image scoring and synthesis need an OpenAI key"}
	}
	return nil
}
