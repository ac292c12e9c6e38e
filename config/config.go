package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Port         string        `yaml:"port"`
	LLMAPIKey    string        `yaml:"llm_api_key"`
	LLMModel     string        `yaml:"llm_model"`
	LLMEndpoint  string        `yaml:"llm_endpoint"`
	AdminAPIKey  string        `yaml:"admin_api_key"`
	DBPath       string        `yaml:"db_path"`
	DataDir      string        `yaml:"data_dir"`
	Store        StoreConfig   `yaml:"store"`
	DemoLimit    int           `yaml:"demo_limit"`
	DemoWindow   time.Duration `yaml:"demo_window"`
	SessionTTL   time.Duration `yaml:"session_ttl"`
	MaxAttempts  int           `yaml:"max_attempts"`
	HistoryTurns int           `yaml:"history_turns"`
}

type StoreConfig struct {
	Driver       string        `yaml:"driver"` // "sqlite" or "sqlserver"
	DSN          string        `yaml:"dsn"`
	QueryTimeout time.Duration `yaml:"query_timeout"`
	MaxRows      int           `yaml:"max_rows"`
}

// GetConfig builds the configuration from environment variables with
// defaults. If HOOPSIGHT_CONFIG points at a YAML file, values from the file
// override the environment.
func GetConfig() Config {
	cfg := Config{
		Port:        getEnv("PORT", "9090"),
		LLMAPIKey:   getEnv("LLM_API_KEY", ""),
		LLMModel:    getEnv("LLM_MODEL", "qwen3-max"),
		LLMEndpoint: getEnv("LLM_ENDPOINT", "https://dashscope.aliyuncs.com/api/v1/services/aigc/text-generation/generation"),
		AdminAPIKey: getEnv("ADMIN_API_KEY", ""),
		DBPath:      getEnv("DB_PATH", "./data/badger"),
		DataDir:     getEnv("DATA_DIR", "./data/csv"),
		Store: StoreConfig{
			Driver:       getEnv("STORE_DRIVER", "sqlite"),
			DSN:          getEnv("STORE_DSN", "./data/analytics.db"),
			QueryTimeout: getEnvDuration("STORE_QUERY_TIMEOUT", 30*time.Second),
			MaxRows:      getEnvInt("STORE_MAX_ROWS", 200),
		},
		DemoLimit:    getEnvInt("DEMO_LIMIT", 3),
		DemoWindow:   getEnvDuration("DEMO_WINDOW", time.Hour),
		SessionTTL:   getEnvDuration("SESSION_TTL", 24*time.Hour),
		MaxAttempts:  getEnvInt("SQL_MAX_ATTEMPTS", 3),
		HistoryTurns: getEnvInt("HISTORY_TURNS", 6),
	}

	if path := os.Getenv("HOOPSIGHT_CONFIG"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to load config file %s: %v\n", path, err)
		}
	}

	return cfg
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, c)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
