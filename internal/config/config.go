package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the ThreadLens server.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Threads  ThreadsConfig  `yaml:"threads"`
	AI       AIConfig       `yaml:"ai"`
	Explain  ExplainConfig  `yaml:"explain"`
}

type ServerConfig struct {
	Port               int    `yaml:"port"`
	Env                string `yaml:"env"`
	LogLevel           string `yaml:"log_level"`
	FrontendURL        string `yaml:"frontend_url"`
	RateLimitPerMinute int    `yaml:"rate_limit_per_minute"`
}

type DatabaseConfig struct {
	URL             string        `yaml:"url"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	// ThreadLockTimeout bounds how long a thread update waits for another
	// writer on the same thread before failing.
	ThreadLockTimeout time.Duration `yaml:"thread_lock_timeout"`
}

type RedisConfig struct {
	URL string `yaml:"url"`
}

// ThreadsConfig tunes reconciliation and the read endpoints.
type ThreadsConfig struct {
	LLMConfidenceThreshold float64 `yaml:"llm_confidence_threshold"`
	ListDefaultLimit       int     `yaml:"list_default_limit"`
	AggregateDefaultMonths int     `yaml:"aggregate_default_months"`
}

type AIConfig struct {
	Provider         string          `yaml:"provider"`
	InferenceTimeout time.Duration   `yaml:"inference_timeout"`
	Anthropic        AnthropicConfig `yaml:"anthropic"`
	Vertex           VertexConfig    `yaml:"vertex"`
}

type AnthropicConfig struct {
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
}

type VertexConfig struct {
	Project  string `yaml:"project"`
	Location string `yaml:"location"`
	Model    string `yaml:"model"`
}

// ExplainConfig drives the background LLM explain worker.
// An empty Schedule disables the in-process scheduler; runs can still be triggered over HTTP.
type ExplainConfig struct {
	Schedule      string `yaml:"schedule"`
	BatchLimit    int    `yaml:"batch_limit"`
	PromptVersion string `yaml:"prompt_version"`
	MaxRetries    int    `yaml:"max_retries"`
}

// Enabled reports whether an LLM provider is configured.
func (c AIConfig) Enabled() bool {
	return c.Provider != ""
}

// Request bounds shared by config validation, the thread service, the HTTP
// handlers and the dashboard client.
const (
	MaxAggregateMonths = 24
	MaxThreadListLimit = 200
)

var validProviders = map[string]bool{
	"anthropic": true,
	"vertex":    true,
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:               8080,
			Env:                "development",
			LogLevel:           "info",
			FrontendURL:        "http://localhost:5173",
			RateLimitPerMinute: 60,
		},
		Database: DatabaseConfig{
			MaxOpenConns:      25,
			MaxIdleConns:      5,
			ConnMaxLifetime:   5 * time.Minute,
			ThreadLockTimeout: 5 * time.Second,
		},
		Threads: ThreadsConfig{
			LLMConfidenceThreshold: 0.7,
			ListDefaultLimit:       200,
			AggregateDefaultMonths: 6,
		},
		AI: AIConfig{
			InferenceTimeout: 60 * time.Second,
			Anthropic: AnthropicConfig{
				Model: "claude-sonnet-4-5-20250929",
			},
			Vertex: VertexConfig{
				Location: "us-central1",
				Model:    "gemini-2.0-flash",
			},
		},
		Explain: ExplainConfig{
			BatchLimit:    50,
			PromptVersion: "thread_state_v0.1",
			MaxRetries:    3,
		},
	}
}

// Load reads configuration and returns a validated Config.
// Precedence, lowest first: built-in defaults, the YAML file named by THREADLENS_CONFIG,
// a local .env file, then the process environment.
// Returns an error with a descriptive message if any required value is missing or invalid.
func Load() (*Config, error) {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	cfg := defaults()
	if path := os.Getenv("THREADLENS_CONFIG"); path != "" {
		if err := loadFile(path, cfg); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Server.Port = envInt("THREADLENS_PORT", c.Server.Port)
	c.Server.Env = envString("THREADLENS_ENV", c.Server.Env)
	c.Server.LogLevel = envString("THREADLENS_LOG_LEVEL", c.Server.LogLevel)
	c.Server.FrontendURL = envString("FRONTEND_URL", c.Server.FrontendURL)
	c.Server.RateLimitPerMinute = envInt("RATE_LIMIT_PER_MINUTE", c.Server.RateLimitPerMinute)

	c.Database.URL = envString("DATABASE_URL", c.Database.URL)
	c.Database.MaxOpenConns = envInt("DATABASE_MAX_OPEN_CONNS", c.Database.MaxOpenConns)
	c.Database.MaxIdleConns = envInt("DATABASE_MAX_IDLE_CONNS", c.Database.MaxIdleConns)
	c.Database.ConnMaxLifetime = envDuration("DATABASE_CONN_MAX_LIFETIME", c.Database.ConnMaxLifetime)
	c.Database.ThreadLockTimeout = envDuration("DATABASE_THREAD_LOCK_TIMEOUT", c.Database.ThreadLockTimeout)

	c.Redis.URL = envString("REDIS_URL", c.Redis.URL)

	c.Threads.LLMConfidenceThreshold = envFloat("LLM_CONFIDENCE_THRESHOLD", c.Threads.LLMConfidenceThreshold)
	c.Threads.ListDefaultLimit = envInt("THREAD_LIST_DEFAULT_LIMIT", c.Threads.ListDefaultLimit)
	c.Threads.AggregateDefaultMonths = envInt("AGGREGATE_DEFAULT_MONTHS", c.Threads.AggregateDefaultMonths)

	c.AI.Provider = envString("AI_PROVIDER", c.AI.Provider)
	c.AI.InferenceTimeout = envDurationSecs("AI_INFERENCE_TIMEOUT_SECS", c.AI.InferenceTimeout)
	c.AI.Anthropic.APIKey = envString("ANTHROPIC_API_KEY", c.AI.Anthropic.APIKey)
	c.AI.Anthropic.Model = envString("ANTHROPIC_MODEL", c.AI.Anthropic.Model)
	c.AI.Vertex.Project = envString("VERTEX_PROJECT", c.AI.Vertex.Project)
	c.AI.Vertex.Location = envString("VERTEX_LOCATION", c.AI.Vertex.Location)
	c.AI.Vertex.Model = envString("VERTEX_MODEL", c.AI.Vertex.Model)

	c.Explain.Schedule = envString("EXPLAIN_SCHEDULE", c.Explain.Schedule)
	c.Explain.BatchLimit = envInt("EXPLAIN_BATCH_LIMIT", c.Explain.BatchLimit)
	c.Explain.PromptVersion = envString("EXPLAIN_PROMPT_VERSION", c.Explain.PromptVersion)
	c.Explain.MaxRetries = envInt("EXPLAIN_MAX_RETRIES", c.Explain.MaxRetries)
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if c.Server.RateLimitPerMinute <= 0 {
		return fmt.Errorf("RATE_LIMIT_PER_MINUTE must be positive, got %d", c.Server.RateLimitPerMinute)
	}

	t := c.Threads.LLMConfidenceThreshold
	if t < 0 || t > 1 {
		return fmt.Errorf("LLM_CONFIDENCE_THRESHOLD must be between 0 and 1, got %v", t)
	}
	if c.Threads.ListDefaultLimit < 1 || c.Threads.ListDefaultLimit > MaxThreadListLimit {
		return fmt.Errorf("THREAD_LIST_DEFAULT_LIMIT must be between 1 and %d, got %d", MaxThreadListLimit, c.Threads.ListDefaultLimit)
	}
	if c.Threads.AggregateDefaultMonths < 1 || c.Threads.AggregateDefaultMonths > MaxAggregateMonths {
		return fmt.Errorf("AGGREGATE_DEFAULT_MONTHS must be between 1 and %d, got %d", MaxAggregateMonths, c.Threads.AggregateDefaultMonths)
	}

	if c.AI.Provider != "" && !validProviders[c.AI.Provider] {
		return fmt.Errorf("AI_PROVIDER must be one of anthropic, vertex or empty; got %q", c.AI.Provider)
	}
	if c.AI.Provider == "anthropic" && c.AI.Anthropic.APIKey == "" {
		return fmt.Errorf("ANTHROPIC_API_KEY is required when AI_PROVIDER is anthropic")
	}
	if c.AI.Provider == "vertex" && c.AI.Vertex.Project == "" {
		return fmt.Errorf("VERTEX_PROJECT is required when AI_PROVIDER is vertex")
	}

	if c.Explain.BatchLimit <= 0 {
		return fmt.Errorf("EXPLAIN_BATCH_LIMIT must be positive, got %d", c.Explain.BatchLimit)
	}
	if c.Explain.MaxRetries < 0 {
		return fmt.Errorf("EXPLAIN_MAX_RETRIES must not be negative, got %d", c.Explain.MaxRetries)
	}
	if c.Explain.PromptVersion == "" {
		return fmt.Errorf("EXPLAIN_PROMPT_VERSION must not be empty")
	}
	if c.Explain.Schedule != "" {
		if _, err := ParseSchedule(c.Explain.Schedule); err != nil {
			return fmt.Errorf("EXPLAIN_SCHEDULE is not a valid cron expression: %w", err)
		}
	}

	return nil
}

// ParseSchedule parses a standard five-field cron expression.
func ParseSchedule(expr string) (cron.Schedule, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	return parser.Parse(expr)
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envFloat(key string, defaultVal float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultVal
	}
	return f
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

func envDurationSecs(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	secs, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return time.Duration(secs) * time.Second
}
