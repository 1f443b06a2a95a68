package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

// Config is the full service configuration. Values come from an optional YAML
// file (CONFIG_PATH or ./config/storm.yaml) with environment overrides for
// deployment-specific settings and secrets.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Temporal  TemporalConfig  `mapstructure:"temporal"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Search    SearchConfig    `mapstructure:"search"`
	Research  ResearchConfig  `mapstructure:"research"`
	Session   SessionConfig   `mapstructure:"session"`
	Streaming StreamingConfig `mapstructure:"streaming"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

type ServerConfig struct {
	HTTPPort    int `mapstructure:"http_port"`
	MetricsPort int `mapstructure:"metrics_port"`
}

type TemporalConfig struct {
	HostPort  string `mapstructure:"host_port"`
	Namespace string `mapstructure:"namespace"`
	TaskQueue string `mapstructure:"task_queue"`
}

type LLMConfig struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
	// Model drives dialogue and structured generation; LongContextModel is
	// used for section and final-article writing where inputs are large.
	Model            string `mapstructure:"model"`
	LongContextModel string `mapstructure:"long_context_model"`
}

type SearchConfig struct {
	TavilyAPIKey string `mapstructure:"tavily_api_key"`
	MaxResults   int    `mapstructure:"max_results"`
}

type ResearchConfig struct {
	DefaultEditorCount int    `mapstructure:"default_editor_count"`
	MaxEditorCount     int    `mapstructure:"max_editor_count"`
	MaxInterviewTurns  int    `mapstructure:"max_interview_turns"`
	InteractionTimeout int    `mapstructure:"interaction_timeout_seconds"`
	OutputDir          string `mapstructure:"output_dir"`
}

type SessionConfig struct {
	RedisAddr string        `mapstructure:"redis_addr"`
	TTL       time.Duration `mapstructure:"ttl"`
}

type StreamingConfig struct {
	RingCapacity int `mapstructure:"ring_capacity"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from the config file (if present) and applies
// environment overrides. A missing file is not an error; defaults cover
// everything except provider credentials.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if cfgPath := os.Getenv("CONFIG_PATH"); cfgPath != "" {
		v.SetConfigFile(cfgPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("storm")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	bindEnvOverrides(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.http_port", 8081)
	v.SetDefault("server.metrics_port", 2112)
	v.SetDefault("temporal.host_port", "localhost:7233")
	v.SetDefault("temporal.namespace", "default")
	v.SetDefault("temporal.task_queue", "storm-research")
	v.SetDefault("llm.model", "gpt-4.1-nano")
	v.SetDefault("llm.long_context_model", "gpt-4.1-nano")
	v.SetDefault("search.max_results", 5)
	v.SetDefault("research.default_editor_count", 3)
	v.SetDefault("research.max_editor_count", 8)
	v.SetDefault("research.max_interview_turns", 20)
	v.SetDefault("research.interaction_timeout_seconds", 300)
	v.SetDefault("research.output_dir", ".")
	v.SetDefault("session.redis_addr", "localhost:6379")
	v.SetDefault("session.ttl", 24*time.Hour)
	v.SetDefault("streaming.ring_capacity", 256)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// bindEnvOverrides wires the env vars operators actually set in deployments.
func bindEnvOverrides(v *viper.Viper) {
	_ = v.BindEnv("server.http_port", "HTTP_PORT")
	_ = v.BindEnv("server.metrics_port", "METRICS_PORT")
	_ = v.BindEnv("temporal.host_port", "TEMPORAL_HOSTPORT")
	_ = v.BindEnv("temporal.namespace", "TEMPORAL_NAMESPACE")
	_ = v.BindEnv("temporal.task_queue", "TEMPORAL_TASK_QUEUE")
	_ = v.BindEnv("llm.api_key", "OPENAI_API_KEY")
	_ = v.BindEnv("llm.base_url", "OPENAI_BASE_URL")
	_ = v.BindEnv("llm.model", "LLM_MODEL")
	_ = v.BindEnv("llm.long_context_model", "LLM_LONG_CONTEXT_MODEL")
	_ = v.BindEnv("search.tavily_api_key", "TAVILY_API_KEY")
	_ = v.BindEnv("session.redis_addr", "REDIS_ADDR")
	_ = v.BindEnv("streaming.ring_capacity", "STREAMING_RING_CAPACITY")
	_ = v.BindEnv("logging.level", "LOG_LEVEL")
}
