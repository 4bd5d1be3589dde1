package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config represents the complete application configuration
type Config struct {
	Server        ServerConfig
	Database      *DatabaseConfig // Optional: when nil, usage tracking runs in memory
	OpenRouter    OpenRouterConfig
	Gemini        GeminiConfig
	Dispatch      DispatchConfig
	Translation   TranslationConfig
	Usage         UsageConfig
	Observability ObservabilityConfig
	Environment   string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// DatabaseConfig holds PostgreSQL database configuration.
// When ConnectionString (from DATABASE_URL) is set, it takes precedence over individual fields.
type DatabaseConfig struct {
	ConnectionString string // From DATABASE_URL when set
	Host             string
	Port             int
	User             string
	Password         string
	Database         string
	SSLMode          string
	MaxOpenConns     int
	MaxIdleConns     int
	ConnMaxLifetime  time.Duration
}

// OpenRouterConfig holds the OpenRouter API configuration and the
// ordered model ladder.
type OpenRouterConfig struct {
	APIKey  string
	BaseURL string
	Referer string // HTTP-Referer attribution header
	Title   string // X-Title attribution header
	Ladder  []LadderEntry
}

// LadderEntry is one rung of the fallback ladder, in priority order.
type LadderEntry struct {
	Model            string
	Capabilities     []string
	NeedsTranslation bool
}

// GeminiConfig holds the secondary provider configuration
type GeminiConfig struct {
	APIKey  string
	Model   string
	BaseURL string
}

// DispatchConfig holds dispatcher tuning
type DispatchConfig struct {
	TextTimeout    time.Duration
	MediaTimeout   time.Duration
	RateLimitDelay time.Duration
	BatchWorkers   int
}

// TranslationConfig pins translation to one ladder model
type TranslationConfig struct {
	Model       string
	Language    string
	Temperature float64
}

// UsageConfig holds usage tracking configuration
type UsageConfig struct {
	BufferSize    int
	WorkerCount   int
	Retention     time.Duration
	PruneInterval time.Duration
}

// ObservabilityConfig holds logging configuration
type ObservabilityConfig struct {
	LogLevel  string
	LogFormat string // json or text
}

// defaultLadder is used when OPENROUTER_MODELS is not set. Entries are
// "model;capabilities;native|translate" separated by commas, capabilities
// separated by "|".
const defaultLadder = "google/gemma-3-27b-it:free;text|vision;native," +
	"google/gemma-3-12b-it:free;text|vision;translate"

// New creates a new Config instance by loading environment variables
func New() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load(".env")

	ladder, err := parseLadder(getEnv("OPENROUTER_MODELS", defaultLadder))
	if err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getPort(),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 240*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Database: loadDatabaseConfig(),
		OpenRouter: OpenRouterConfig{
			APIKey:  getEnv("OPENROUTER_API_KEY", ""),
			BaseURL: getEnv("OPENROUTER_BASE_URL", "https://openrouter.ai/api/v1/chat/completions"),
			Referer: getEnv("OPENROUTER_REFERER", ""),
			Title:   getEnv("OPENROUTER_TITLE", ""),
			Ladder:  ladder,
		},
		Gemini: GeminiConfig{
			APIKey:  getEnv("GEMINI_API_KEY", ""),
			Model:   getEnv("GEMINI_MODEL", "gemini-2.0-flash-lite"),
			BaseURL: getEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com/v1beta"),
		},
		Dispatch: DispatchConfig{
			TextTimeout:    getEnvAsDuration("DISPATCH_TEXT_TIMEOUT", 120*time.Second),
			MediaTimeout:   getEnvAsDuration("DISPATCH_MEDIA_TIMEOUT", 180*time.Second),
			RateLimitDelay: getEnvAsDuration("DISPATCH_RATE_LIMIT_DELAY", 500*time.Millisecond),
			BatchWorkers:   getEnvAsInt("DISPATCH_BATCH_WORKERS", 5),
		},
		Translation: TranslationConfig{
			Model:       getEnv("TRANSLATION_MODEL", "google/gemma-3-27b-it:free"),
			Language:    getEnv("TRANSLATION_LANGUAGE", "Spanish"),
			Temperature: getEnvAsFloat("TRANSLATION_TEMPERATURE", 0.3),
		},
		Usage: UsageConfig{
			BufferSize:    getEnvAsInt("USAGE_BUFFER_SIZE", 1000),
			WorkerCount:   getEnvAsInt("USAGE_WORKER_COUNT", 2),
			Retention:     getEnvAsDuration("USAGE_RETENTION", 365*24*time.Hour),
			PruneInterval: getEnvAsDuration("USAGE_PRUNE_INTERVAL", 24*time.Hour),
		},
		Observability: ObservabilityConfig{
			LogLevel:  getEnv("LOG_LEVEL", "info"),
			LogFormat: getEnv("LOG_FORMAT", "json"),
		},
	}

	// Validate the configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if all required configuration fields are set
func (c *Config) Validate() error {
	if len(c.OpenRouter.Ladder) == 0 && c.Gemini.APIKey == "" {
		return fmt.Errorf("at least one provider must be configured: set OPENROUTER_MODELS or GEMINI_API_KEY")
	}

	if c.IsProduction() {
		if len(c.OpenRouter.Ladder) > 0 && c.OpenRouter.APIKey == "" {
			return fmt.Errorf("openrouter API key is required in production")
		}
	}

	ids := make(map[string]bool, len(c.OpenRouter.Ladder))
	for _, entry := range c.OpenRouter.Ladder {
		if ids[entry.Model] {
			return fmt.Errorf("duplicate ladder model %q", entry.Model)
		}
		ids[entry.Model] = true
	}

	if c.Translation.Model != "" && len(c.OpenRouter.Ladder) > 0 && !ids[c.Translation.Model] {
		return fmt.Errorf("translation model %q is not in the ladder", c.Translation.Model)
	}

	if c.Usage.Retention <= 0 {
		return fmt.Errorf("usage retention must be positive")
	}

	if c.Observability.LogLevel == "" {
		return fmt.Errorf("log level is required")
	}

	return nil
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Environment == "production" || c.Environment == "prod"
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development" || c.Environment == "dev"
}

// parseLadder parses the OPENROUTER_MODELS value. Each entry is
// "model;capabilities;native|translate", entries separated by commas.
// The "native"/"translate" annotation is mandatory so that a new model is
// never silently assumed to produce usable target-language output.
func parseLadder(raw string) ([]LadderEntry, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}

	var ladder []LadderEntry
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		fields := strings.Split(part, ";")
		if len(fields) != 3 {
			return nil, fmt.Errorf("ladder entry %q: want model;capabilities;native|translate", part)
		}

		model := strings.TrimSpace(fields[0])
		if model == "" {
			return nil, fmt.Errorf("ladder entry %q: empty model", part)
		}

		var caps []string
		for _, c := range strings.Split(fields[1], "|") {
			c = strings.TrimSpace(c)
			if c == "" {
				continue
			}
			switch c {
			case "text", "vision", "video":
				caps = append(caps, c)
			default:
				return nil, fmt.Errorf("ladder entry %q: unknown capability %q", part, c)
			}
		}
		if len(caps) == 0 {
			return nil, fmt.Errorf("ladder entry %q: no capabilities", part)
		}

		var needsTranslation bool
		switch strings.TrimSpace(fields[2]) {
		case "native":
			needsTranslation = false
		case "translate":
			needsTranslation = true
		default:
			return nil, fmt.Errorf("ladder entry %q: annotation must be native or translate", part)
		}

		ladder = append(ladder, LadderEntry{
			Model:            model,
			Capabilities:     caps,
			NeedsTranslation: needsTranslation,
		})
	}

	return ladder, nil
}

// DSN returns the PostgreSQL connection string.
// Uses ConnectionString (from DATABASE_URL) when set; otherwise builds from individual fields.
func (c *DatabaseConfig) DSN() string {
	if c.ConnectionString != "" {
		return c.ConnectionString
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// LogString returns a safe string for logging (no password). Parses ConnectionString when set.
func (c *DatabaseConfig) LogString() string {
	if c.ConnectionString != "" {
		u, err := url.Parse(c.ConnectionString)
		if err == nil {
			host := u.Hostname()
			port := u.Port()
			if port == "" {
				port = "5432"
			}
			db := strings.TrimPrefix(u.Path, "/")
			return fmt.Sprintf("host=%s port=%s database=%s", host, port, db)
		}
		return "host=<from DATABASE_URL>"
	}
	return fmt.Sprintf("host=%s port=%d database=%s", c.Host, c.Port, c.Database)
}

// loadDatabaseConfig loads database config from DATABASE_URL or DB_* env vars.
// Returns nil when neither is set; usage tracking then runs in memory.
func loadDatabaseConfig() *DatabaseConfig {
	dbURL := getEnv("DATABASE_URL", "")
	if dbURL != "" {
		return &DatabaseConfig{
			ConnectionString: dbURL,
			MaxOpenConns:     getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:     getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime:  getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		}
	}
	if getEnv("DB_HOST", "") == "" {
		return nil
	}
	return &DatabaseConfig{
		Host:            getEnv("DB_HOST", "localhost"),
		Port:            getEnvAsInt("DB_PORT", 5432),
		User:            getEnv("DB_USER", "dev"),
		Password:        getEnv("DB_PASSWORD", ""),
		Database:        getEnv("DB_NAME", "usage"),
		SSLMode:         getEnv("DB_SSLMODE", "disable"),
		MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
		MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
		ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
	}
}

// Address returns the HTTP server address
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Helper functions

// getPort returns the server port from PORT or SERVER_PORT env vars (default: 8080)
func getPort() int {
	if value := os.Getenv("PORT"); value != "" {
		if p, err := strconv.Atoi(value); err == nil {
			return p
		}
	}
	if value := os.Getenv("SERVER_PORT"); value != "" {
		if p, err := strconv.Atoi(value); err == nil {
			return p
		}
	}
	return 8080
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
