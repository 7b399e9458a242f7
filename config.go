package main

import (
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/langfuse-nodes/server/internal/credentials"
	"github.com/langfuse-nodes/server/internal/telemetry"
	logx "github.com/langfuse-nodes/server/pkg/logger"
	pkgredis "github.com/langfuse-nodes/server/pkg/redis"
)

// AppConfig defines all configurable parameters of the CLI,
// sourced from environment variables (loaded from .env for local runs).
type AppConfig struct {
	Environment string `envconfig:"APP_ENV" default:"development"`
	LogLevel    string `envconfig:"LOG_LEVEL"`

	// Credentials served to nodes before the keyring is consulted.
	credentials.Env

	// Infrastructure
	Redis     pkgredis.Config
	Telemetry telemetry.Config
	StorePath string `envconfig:"STORE_PATH" default:"lfnodes.db"`

	Langfuse     LangfuseConfig
	Conversation ConversationConfig
}

// LangfuseConfig tunes the shared ingestion clients.
type LangfuseConfig struct {
	FlushAt           int           `split_words:"true" default:"15"`
	FlushInterval     time.Duration `split_words:"true" default:"1s"`
	Timeout           time.Duration `default:"10s"`
	MaxRetries        int           `split_words:"true" default:"3"`
	RetryBackoff      time.Duration `split_words:"true" default:"500ms"`
	PromptCachePrefix string        `split_words:"true" default:"langfuse:prompt"`
}

type ConversationConfig struct {
	TTL time.Duration `default:"15m"`
}

// loadConfig reads .env when present and processes the environment.
func loadConfig(envFile string) (AppConfig, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			logx.Debug().Err(err).Str("file", envFile).Msg("could not load env file")
		}
	}
	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}
