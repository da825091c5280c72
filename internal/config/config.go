package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Session store drivers
const (
	SessionStoreMemory   = "memory"
	SessionStoreSQLite   = "sqlite"
	SessionStorePostgres = "postgres"
	SessionStoreRedis    = "redis"
)

// Inventory sources
const (
	InventorySourcePostgres = "postgres"
	InventorySourceFile     = "file"
)

// Config holds all configuration for the application
type Config struct {
	PostgreSQL PostgreSQLConfig
	Server     ServerConfig
	Chat       ChatConfig
	Cache      CacheConfig
	Session    SessionConfig
	Inventory  InventoryConfig
	Logging    LoggingConfig
}

// PostgreSQLConfig holds PostgreSQL database configuration
type PostgreSQLConfig struct {
	DSN                string // full connection string, preferred when set
	Host               string
	Port               int
	User               string
	Password           string
	Database           string
	SSLMode            string
	MaxConnections     int
	MaxIdleConnections int
	BootstrapSchema    bool
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port            int
	Host            string
	GinMode         string
	AllowedOrigins  string
	AllowedMethods  string
	AllowedHeaders  string
	ShutdownTimeout time.Duration
}

// ChatConfig holds per-message pipeline settings
type ChatConfig struct {
	HistoryLimit   int
	MaxResults     int
	RequestTimeout time.Duration
}

// CacheConfig holds inventory cache settings
type CacheConfig struct {
	TTL         time.Duration
	LoadTimeout time.Duration
}

// SessionConfig selects and configures the chat session store
type SessionConfig struct {
	Store         string
	SQLitePath    string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisTTL      time.Duration
}

// InventoryConfig selects where available properties are read from
type InventoryConfig struct {
	Source   string
	FilePath string
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Try to load .env file (optional)
	_ = godotenv.Load()

	cfg := &Config{
		PostgreSQL: PostgreSQLConfig{
			DSN:                getEnv("DATABASE_URL", getEnv("POSTGRESQL_URI", getEnv("PG_DSN", ""))),
			Host:               getEnv("PG_HOST", "localhost"),
			Port:               getEnvAsInt("PG_PORT", 5432),
			User:               getEnv("PG_USER", "postgres"),
			Password:           getEnv("PG_PASSWORD", ""),
			Database:           getEnv("PG_DATABASE", "property_chat"),
			SSLMode:            getEnv("PG_SSLMODE", "disable"),
			MaxConnections:     getEnvAsInt("PG_MAX_CONNECTIONS", 25),
			MaxIdleConnections: getEnvAsInt("PG_MAX_IDLE_CONNECTIONS", 5),
			BootstrapSchema:    getEnvAsBool("PG_BOOTSTRAP_SCHEMA", true),
		},
		Server: ServerConfig{
			Port:            getEnvAsInt("SERVER_PORT", 8080),
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			GinMode:         getEnv("GIN_MODE", "release"),
			AllowedOrigins:  getEnv("CORS_ALLOWED_ORIGINS", "*"),
			AllowedMethods:  getEnv("CORS_ALLOWED_METHODS", "GET,POST,OPTIONS"),
			AllowedHeaders:  getEnv("CORS_ALLOWED_HEADERS", "Content-Type,Authorization"),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Chat: ChatConfig{
			HistoryLimit:   getEnvAsInt("CHAT_HISTORY_LIMIT", 10),
			MaxResults:     getEnvAsInt("CHAT_MAX_RESULTS", 6),
			RequestTimeout: getEnvAsDuration("CHAT_REQUEST_TIMEOUT", 15*time.Second),
		},
		Cache: CacheConfig{
			TTL:         getEnvAsDuration("CACHE_TTL", 5*time.Minute),
			LoadTimeout: getEnvAsDuration("CACHE_LOAD_TIMEOUT", 10*time.Second),
		},
		Session: SessionConfig{
			Store:         strings.ToLower(getEnv("SESSION_STORE", SessionStoreMemory)),
			SQLitePath:    getEnv("SQLITE_PATH", "./data/sessions.db"),
			RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
			RedisPassword: getEnv("REDIS_PASSWORD", ""),
			RedisDB:       getEnvAsInt("REDIS_DB", 0),
			RedisTTL:      getEnvAsDuration("REDIS_SESSION_TTL", 30*24*time.Hour),
		},
		Inventory: InventoryConfig{
			Source:   strings.ToLower(getEnv("INVENTORY_SOURCE", InventorySourcePostgres)),
			FilePath: getEnv("INVENTORY_FILE", "./data/inventory.yaml"),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks values that would otherwise fail later at wiring time
func (c *Config) Validate() error {
	switch c.Session.Store {
	case SessionStoreMemory, SessionStoreSQLite, SessionStorePostgres, SessionStoreRedis:
	default:
		return fmt.Errorf("unknown SESSION_STORE %q", c.Session.Store)
	}

	switch c.Inventory.Source {
	case InventorySourcePostgres, InventorySourceFile:
	default:
		return fmt.Errorf("unknown INVENTORY_SOURCE %q", c.Inventory.Source)
	}

	if c.Chat.HistoryLimit <= 0 {
		return fmt.Errorf("CHAT_HISTORY_LIMIT must be positive, got %d", c.Chat.HistoryLimit)
	}
	if c.Chat.MaxResults <= 0 {
		return fmt.Errorf("CHAT_MAX_RESULTS must be positive, got %d", c.Chat.MaxResults)
	}
	if c.Cache.TTL <= 0 {
		return fmt.Errorf("CACHE_TTL must be positive, got %s", c.Cache.TTL)
	}

	return nil
}

// NeedsPostgres reports whether any component is backed by PostgreSQL
func (c *Config) NeedsPostgres() bool {
	return c.Session.Store == SessionStorePostgres || c.Inventory.Source == InventorySourcePostgres
}

// GetPostgreSQLDSN returns PostgreSQL connection string
func (c *Config) GetPostgreSQLDSN() string {
	if c.PostgreSQL.DSN != "" {
		return c.PostgreSQL.DSN
	}

	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.PostgreSQL.Host,
		c.PostgreSQL.Port,
		c.PostgreSQL.User,
		c.PostgreSQL.Password,
		c.PostgreSQL.Database,
		c.PostgreSQL.SSLMode,
	)
}

// Helper functions

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		log.Printf("Warning: Invalid integer value for %s, using default %d", key, defaultValue)
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		log.Printf("Warning: Invalid boolean value for %s, using default %t", key, defaultValue)
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
		log.Printf("Warning: Invalid duration value for %s, using default %s", key, defaultValue)
		return defaultValue
	}
	return value
}
