package common

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/docker/go-units"
	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

// Config holds all application configuration
type Config struct {
	Server  ServerConfig  `toml:"server"`
	Auth    AuthConfig    `toml:"auth"`
	LLM     LLMConfig     `toml:"llm"`
	Ledger  LedgerConfig  `toml:"ledger"`
	Logging LoggingConfig `toml:"logging"`
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	HTTPAddr        string   `toml:"http_addr"`
	GRPCHealthAddr  string   `toml:"grpc_health_addr"`
	MaxUploadSize   string   `toml:"max_upload_size"`
	CORSOrigins     []string `toml:"cors_origins"`
	ShutdownTimeout string   `toml:"shutdown_timeout"`
	Version         string   `toml:"version"`

	maxUploadBytes  int64
	shutdownTimeout time.Duration
}

// MaxUploadBytes is MaxUploadSize parsed by Finalize.
func (c ServerConfig) MaxUploadBytes() int64 {
	return c.maxUploadBytes
}

func (c ServerConfig) ShutdownTimeoutDuration() time.Duration {
	return c.shutdownTimeout
}

// Supported identity providers.
const (
	AuthProviderFirebase = "firebase"
	AuthProviderJWT      = "jwt"
)

// AuthConfig selects and configures the bearer-token verifier
type AuthConfig struct {
	Provider               string `toml:"provider"`
	FirebaseCredentialPath string `toml:"firebase_service_account_path"`
	FirebaseProjectID      string `toml:"firebase_project_id"`
	JWTSecret              string `toml:"jwt_secret"`
}

// LLMConfig holds LLM-related configuration
type LLMConfig struct {
	APIKey           string  `toml:"api_key"`
	BaseURL          string  `toml:"base_url"`
	Model            string  `toml:"model"`
	Temperature      float32 `toml:"temperature"`
	Timeout          string  `toml:"timeout"` // "0" = no client timeout
	StructuredOutput bool    `toml:"structured_output"`

	timeout time.Duration
}

func (c LLMConfig) TimeoutDuration() time.Duration {
	return c.timeout
}

// LedgerConfig configures the optional extract_job ledger. An empty DSN disables it.
type LedgerConfig struct {
	DSN          string `toml:"dsn"`
	MaxOpenConns int    `toml:"max_open_conns"`
	DialTimeout  string `toml:"dial_timeout"`

	dialTimeout time.Duration
}

func (c LedgerConfig) DialTimeoutDuration() time.Duration {
	return c.dialTimeout
}

// LoggingConfig holds slog handler options
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

var defaultCORSOrigins = []string{
	"http://localhost:5173",
	"http://localhost:5174",
	"http://127.0.0.1:5173",
	"http://127.0.0.1:5174",
	"http://localhost:3000",
}

// LoadConfig loads configuration from an optional .env file, an optional TOML
// file named by CONFIG_FILE, and environment variables (highest precedence).
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, NewAppError("CONFIG_ERROR", "load .env", err)
	}

	cfg := &Config{}
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, NewAppError("CONFIG_ERROR", "read config file", err)
		}
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, NewAppError("CONFIG_ERROR", "parse config file", err)
		}
	}

	cfg.loadEnv()
	if err := cfg.Finalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadEnv() {
	c.Server.HTTPAddr = getEnv("HTTP_ADDR", c.Server.HTTPAddr)
	c.Server.GRPCHealthAddr = getEnv("GRPC_HEALTH_ADDR", c.Server.GRPCHealthAddr)
	c.Server.MaxUploadSize = getEnv("MAX_UPLOAD_SIZE", c.Server.MaxUploadSize)
	c.Server.CORSOrigins = getEnvAsList("CORS_ORIGINS", c.Server.CORSOrigins)
	c.Server.ShutdownTimeout = getEnv("SHUTDOWN_TIMEOUT", c.Server.ShutdownTimeout)
	c.Server.Version = getEnv("APP_VERSION", c.Server.Version)

	c.Auth.Provider = getEnv("AUTH_PROVIDER", c.Auth.Provider)
	c.Auth.FirebaseCredentialPath = getEnv("FIREBASE_SERVICE_ACCOUNT_PATH", c.Auth.FirebaseCredentialPath)
	c.Auth.FirebaseProjectID = getEnv("FIREBASE_PROJECT_ID", c.Auth.FirebaseProjectID)
	c.Auth.JWTSecret = getEnv("AUTH_JWT_SECRET", c.Auth.JWTSecret)

	c.LLM.APIKey = getEnv("OPENAI_API_KEY", c.LLM.APIKey)
	c.LLM.BaseURL = getEnv("OPENAI_BASE_URL", c.LLM.BaseURL)
	c.LLM.Model = getEnv("OPENAI_MODEL", c.LLM.Model)
	c.LLM.Temperature = getEnvAsFloat32("OPENAI_TEMPERATURE", c.LLM.Temperature)
	c.LLM.Timeout = getEnv("OPENAI_TIMEOUT", c.LLM.Timeout)
	c.LLM.StructuredOutput = getEnvAsBool("OPENAI_STRUCTURED_OUTPUT", c.LLM.StructuredOutput)

	c.Ledger.DSN = getEnv("LEDGER_DSN", c.Ledger.DSN)
	c.Ledger.MaxOpenConns = getEnvAsInt("LEDGER_MAX_OPEN_CONNS", c.Ledger.MaxOpenConns)
	c.Ledger.DialTimeout = getEnv("LEDGER_DIAL_TIMEOUT", c.Ledger.DialTimeout)

	c.Logging.Level = getEnv("LOG_LEVEL", c.Logging.Level)
	c.Logging.Format = getEnv("LOG_FORMAT", c.Logging.Format)
}

// Finalize fills defaults and parses derived values.
func (c *Config) Finalize() error {
	if c.Server.HTTPAddr == "" {
		c.Server.HTTPAddr = ":8000"
	}
	if c.Server.MaxUploadSize == "" {
		c.Server.MaxUploadSize = "10MB"
	}
	if len(c.Server.CORSOrigins) == 0 {
		c.Server.CORSOrigins = append([]string(nil), defaultCORSOrigins...)
	}
	if c.Server.ShutdownTimeout == "" {
		c.Server.ShutdownTimeout = "15s"
	}
	if c.Server.Version == "" {
		c.Server.Version = "1.0.0"
	}
	if c.Auth.Provider == "" {
		c.Auth.Provider = AuthProviderFirebase
	}
	c.Auth.Provider = strings.ToLower(c.Auth.Provider)
	if c.LLM.Model == "" {
		c.LLM.Model = "gpt-3.5-turbo"
	}
	if c.Ledger.MaxOpenConns <= 0 {
		c.Ledger.MaxOpenConns = 4
	}
	if c.Ledger.DialTimeout == "" {
		c.Ledger.DialTimeout = "3s"
	}
	if c.LLM.Timeout == "" {
		c.LLM.Timeout = "0"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}

	size, err := units.FromHumanSize(c.Server.MaxUploadSize)
	if err != nil {
		return NewAppError("CONFIG_ERROR", "invalid MAX_UPLOAD_SIZE", err)
	}
	if size <= 0 {
		return NewAppError("CONFIG_ERROR", "MAX_UPLOAD_SIZE must be positive", ErrInvalidInput)
	}
	c.Server.maxUploadBytes = size

	if c.Server.shutdownTimeout, err = time.ParseDuration(c.Server.ShutdownTimeout); err != nil {
		return NewAppError("CONFIG_ERROR", "invalid SHUTDOWN_TIMEOUT", err)
	}
	if c.LLM.timeout, err = time.ParseDuration(c.LLM.Timeout); err != nil {
		return NewAppError("CONFIG_ERROR", "invalid OPENAI_TIMEOUT", err)
	}
	if c.Ledger.dialTimeout, err = time.ParseDuration(c.Ledger.DialTimeout); err != nil {
		return NewAppError("CONFIG_ERROR", "invalid LEDGER_DIAL_TIMEOUT", err)
	}
	return nil
}

// Validate reports configuration that must stop the process from starting.
func (c *Config) Validate() error {
	switch c.Auth.Provider {
	case AuthProviderFirebase:
		if c.Auth.FirebaseCredentialPath == "" {
			return NewAppError("CONFIG_ERROR", "FIREBASE_SERVICE_ACCOUNT_PATH is required", ErrInvalidInput)
		}
	case AuthProviderJWT:
		if c.Auth.JWTSecret == "" {
			return NewAppError("CONFIG_ERROR", "AUTH_JWT_SECRET is required when AUTH_PROVIDER=jwt", ErrInvalidInput)
		}
	default:
		return NewAppError("CONFIG_ERROR", fmt.Sprintf("unknown AUTH_PROVIDER %q", c.Auth.Provider), ErrInvalidInput)
	}
	if c.Server.HTTPAddr == "" {
		return NewAppError("CONFIG_ERROR", "HTTP_ADDR is required", ErrInvalidInput)
	}
	return nil
}

// Warnings lists non-fatal configuration gaps.
func (c *Config) Warnings() []string {
	var out []string
	if c.LLM.APIKey == "" {
		out = append(out, "OPENAI_API_KEY is not set; invoice processing will fail at call time")
	}
	return out
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat32(key string, defaultValue float32) float32 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 32); err == nil {
			return float32(floatVal)
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
