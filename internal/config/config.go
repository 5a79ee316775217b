package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

type Config struct {
	DatabaseURL string `toml:"database_url"`
	HTTPPort    string `toml:"http_port"`
	LogLevel    string `toml:"log_level"`
	LogFormat   string `toml:"log_format"`

	JWTSecret string   `toml:"jwt_secret"`
	JWTTTL    Duration `toml:"jwt_ttl"`

	GeminiAPIKey      string `toml:"gemini_api_key"`
	ChatModel         string `toml:"chat_model"`
	ChatHistoryLimit  int    `toml:"chat_history_limit"`
	ChatMaxToolRounds int    `toml:"chat_max_tool_rounds"`

	CORSAllowedOrigins []string `toml:"cors_allowed_origins"`

	// Requests per minute per user.
	RateLimitGeneral int `toml:"rate_limit_general"`
	RateLimitChat    int `toml:"rate_limit_chat"`
}

// Duration lets TOML files spell durations as strings ("24h").
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// ChatEnabled reports whether a hosted model is configured.
func (c *Config) ChatEnabled() bool {
	return c.GeminiAPIKey != ""
}

// IsPostgres reports whether DatabaseURL points at a Postgres server.
func (c *Config) IsPostgres() bool {
	return strings.HasPrefix(c.DatabaseURL, "postgres://") || strings.HasPrefix(c.DatabaseURL, "postgresql://")
}

func defaults() *Config {
	return &Config{
		DatabaseURL:        "file:todo.db?_foreign_keys=on",
		HTTPPort:           "8080",
		LogLevel:           "info",
		LogFormat:          "json",
		JWTTTL:             Duration{24 * time.Hour},
		ChatModel:          "gemini-1.5-flash-latest",
		ChatHistoryLimit:   20,
		ChatMaxToolRounds:  5,
		CORSAllowedOrigins: []string{"http://localhost:3000"},
		RateLimitGeneral:   120,
		RateLimitChat:      20,
	}
}

// Load builds the configuration from defaults, an optional TOML file and the
// environment, in that order of precedence (environment wins). A .env file in
// the working directory is loaded into the environment first when present.
// An empty path falls back to CONFIG_FILE.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file found, relying on environment variables")
	}

	cfg := defaults()

	if path == "" {
		path = getEnv("CONFIG_FILE", "")
	}
	if path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	cfg.DatabaseURL = getEnv("DATABASE_URL", cfg.DatabaseURL)
	cfg.HTTPPort = getEnv("HTTP_PORT", cfg.HTTPPort)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = getEnv("LOG_FORMAT", cfg.LogFormat)
	cfg.JWTSecret = getEnv("JWT_SECRET", cfg.JWTSecret)
	cfg.JWTTTL = Duration{getEnvAsDuration("JWT_TTL", cfg.JWTTTL.Duration)}
	cfg.GeminiAPIKey = getEnv("GEMINI_API_KEY", cfg.GeminiAPIKey)
	cfg.ChatModel = getEnv("CHAT_MODEL", cfg.ChatModel)
	cfg.ChatHistoryLimit = getEnvAsInt("CHAT_HISTORY_LIMIT", cfg.ChatHistoryLimit)
	cfg.ChatMaxToolRounds = getEnvAsInt("CHAT_MAX_TOOL_ROUNDS", cfg.ChatMaxToolRounds)
	cfg.RateLimitGeneral = getEnvAsInt("RATE_LIMIT_GENERAL", cfg.RateLimitGeneral)
	cfg.RateLimitChat = getEnvAsInt("RATE_LIMIT_CHAT", cfg.RateLimitChat)
	if origins := getEnv("CORS_ALLOWED_ORIGINS", ""); origins != "" {
		cfg.CORSAllowedOrigins = splitList(origins)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	var errs []error
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.DatabaseURL == "" {
		errs = append(errs, errors.New("DATABASE_URL must not be empty"))
	}
	if c.JWTTTL.Duration <= 0 {
		errs = append(errs, errors.New("JWT_TTL must be positive"))
	}
	if c.ChatHistoryLimit <= 0 {
		errs = append(errs, errors.New("CHAT_HISTORY_LIMIT must be positive"))
	}
	if c.ChatMaxToolRounds <= 0 {
		errs = append(errs, errors.New("CHAT_MAX_TOOL_ROUNDS must be positive"))
	}
	if c.RateLimitGeneral <= 0 || c.RateLimitChat <= 0 {
		errs = append(errs, errors.New("rate limits must be positive"))
	}
	return errors.Join(errs...)
}

func getEnv(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
