// Package config provides configuration management for restify.
// It loads process-wide settings from environment variables with sensible
// defaults and describes the named authorization contexts requests run under.
//
// Environment Variables:
//
// Application Settings:
//   - LOG_LEVEL: Logging level (default: info)
//   - RESTIFY_HTTP_TIMEOUT: HTTP client timeout (default: 30s)
//   - RESTIFY_INSECURE_SKIP_VERIFY: Disable TLS verification (default: false)
//   - RESTIFY_ETAG_CACHE: Replay cached bodies on 304 Not Modified (default: true)
//   - RESTIFY_ETAG_TTL: How long a cached body is kept (default: 10m)
//
// Authorization Store:
//   - RESTIFY_STORE: "none", "memory", "file", "redis", "sqlite" or "postgres" (default: file)
//   - RESTIFY_STORE_DIR: Directory for file store state (default: user config dir + /restify)
//   - RESTIFY_STORE_KEY: Passphrase sealing persisted state (required for file, redis, sqlite and postgres)
//   - REDIS_ADDRESS, REDIS_PASSWORD, REDIS_DB, REDIS_POOL_SIZE: Redis store settings
//   - DATABASE_PATH: SQLite database file (default: ./restify.db)
//   - POSTGRES_HOST, POSTGRES_PORT, POSTGRES_DB, POSTGRES_USER, POSTGRES_PASSWORD, POSTGRES_SSL_MODE
//
// Default Authorization Context:
//   - RESTIFY_GRANT: "authorization_code", "client_credentials", "service_account" or "none"
//   - RESTIFY_CLIENT_ID, RESTIFY_CLIENT_SECRET
//   - RESTIFY_AUTH_URL, RESTIFY_TOKEN_URL, RESTIFY_REVOCATION_URL, RESTIFY_REDIRECT_URL
//   - RESTIFY_SCOPES: Comma separated scopes to grant
//   - RESTIFY_BASE_URL, RESTIFY_API_KEY
//   - RESTIFY_SERVICE_ACCOUNT_EMAIL, RESTIFY_SERVICE_ACCOUNT_KEY_FILE
//
// Additional named contexts are read from the JSON file named by RESTIFY_CONTEXTS_FILE.
//
// Example usage:
//
//	cfg := config.Load()
//	if err := cfg.Validate(); err != nil {
//		log.Fatalf("Invalid configuration: %v", err)
//	}
//
//	contexts, err := cfg.AuthContexts()
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Store types
const (
	StoreNone     = "none"
	StoreMemory   = "memory"
	StoreFile     = "file"
	StoreRedis    = "redis"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
)

// Config holds the process-wide settings.
//
// The configuration is loaded using Load() and should be validated using
// Validate() before use.
type Config struct {
	LogLevel           string
	HTTPTimeout        string
	InsecureSkipVerify bool
	ETagCache          bool
	ETagTTL            string

	// Authorization store
	StoreType string
	StoreDir  string
	StoreKey  string

	// Redis store
	RedisAddress  string
	RedisPassword string
	RedisDB       string
	RedisPoolSize string

	// SQL stores
	DatabasePath     string
	PostgresHost     string
	PostgresPort     string
	PostgresDB       string
	PostgresUser     string
	PostgresPassword string
	PostgresSSLMode  string

	// Authorization contexts
	ContextsFile   string
	DefaultContext AuthContext
}

// Load creates a new Config instance with values loaded from environment variables.
// If an environment variable is not set, the corresponding default value is used.
func Load() *Config {
	return &Config{
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		HTTPTimeout:        getEnv("RESTIFY_HTTP_TIMEOUT", "30s"),
		InsecureSkipVerify: getBoolEnv("RESTIFY_INSECURE_SKIP_VERIFY", false),
		ETagCache:          getBoolEnv("RESTIFY_ETAG_CACHE", true),
		ETagTTL:            getEnv("RESTIFY_ETAG_TTL", "10m"),

		StoreType: strings.ToLower(getEnv("RESTIFY_STORE", StoreFile)),
		StoreDir:  getEnv("RESTIFY_STORE_DIR", defaultStoreDir()),
		StoreKey:  getEnv("RESTIFY_STORE_KEY", ""),

		RedisAddress:  getEnv("REDIS_ADDRESS", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnv("REDIS_DB", "0"),
		RedisPoolSize: getEnv("REDIS_POOL_SIZE", "10"),

		DatabasePath:     getEnv("DATABASE_PATH", "./restify.db"),
		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresDB:       getEnv("POSTGRES_DB", "restify"),
		PostgresUser:     getEnv("POSTGRES_USER", "postgres"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", ""),
		PostgresSSLMode:  getEnv("POSTGRES_SSL_MODE", "disable"),

		ContextsFile: getEnv("RESTIFY_CONTEXTS_FILE", ""),
		DefaultContext: AuthContext{
			Name:                  DefaultContextName,
			Grant:                 getEnv("RESTIFY_GRANT", GrantAuthorizationCode),
			ClientID:              getEnv("RESTIFY_CLIENT_ID", ""),
			ClientSecret:          getEnv("RESTIFY_CLIENT_SECRET", ""),
			AuthURL:               getEnv("RESTIFY_AUTH_URL", ""),
			TokenURL:              getEnv("RESTIFY_TOKEN_URL", ""),
			RevocationURL:         getEnv("RESTIFY_REVOCATION_URL", ""),
			RedirectURL:           getEnv("RESTIFY_REDIRECT_URL", ""),
			Scopes:                parseScopes(getEnv("RESTIFY_SCOPES", "")),
			BaseURL:               getEnv("RESTIFY_BASE_URL", ""),
			APIKey:                getEnv("RESTIFY_API_KEY", ""),
			ServiceAccountEmail:   getEnv("RESTIFY_SERVICE_ACCOUNT_EMAIL", ""),
			ServiceAccountKeyFile: getEnv("RESTIFY_SERVICE_ACCOUNT_KEY_FILE", ""),
		},
	}
}

func defaultStoreDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "restify")
	}
	return ".restify"
}

func parseScopes(raw string) []Scope {
	var scopes []Scope
	for _, name := range strings.Split(raw, ",") {
		if name = strings.TrimSpace(name); name != "" {
			scopes = append(scopes, Scope{Name: name, Grant: true})
		}
	}
	return scopes
}

// getEnv retrieves an environment variable value or returns a default value if not set.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getBoolEnv retrieves a boolean environment variable value or returns a default value.
// Unparsable values yield the default.
func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// Timeout returns the parsed HTTP timeout. Validate guarantees it parses.
func (c *Config) Timeout() time.Duration {
	d, err := time.ParseDuration(c.HTTPTimeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// ETagCacheTTL returns how long cached bodies are kept, 10 minutes when unset.
func (c *Config) ETagCacheTTL() time.Duration {
	d, err := time.ParseDuration(c.ETagTTL)
	if err != nil || d <= 0 {
		return 10 * time.Minute
	}
	return d
}

// PostgresDSN returns the connection string for the postgres store.
func (c *Config) PostgresDSN() string {
	return fmt.Sprintf("host=%s port=%s dbname=%s user=%s password=%s sslmode=%s",
		c.PostgresHost, c.PostgresPort, c.PostgresDB, c.PostgresUser, c.PostgresPassword, c.PostgresSSLMode)
}

// Validate checks the process-wide settings. Authorization contexts are
// validated separately by AuthContexts.
func (c *Config) Validate() error {
	if d, err := time.ParseDuration(c.HTTPTimeout); err != nil || d <= 0 {
		return fmt.Errorf("RESTIFY_HTTP_TIMEOUT must be a positive duration (e.g., '30s')")
	}

	if c.ETagCache && c.ETagTTL != "" {
		if d, err := time.ParseDuration(c.ETagTTL); err != nil || d <= 0 {
			return fmt.Errorf("RESTIFY_ETAG_TTL must be a positive duration (e.g., '10m')")
		}
	}

	switch c.StoreType {
	case StoreNone, StoreMemory:
		return nil
	case StoreFile:
		if c.StoreDir == "" {
			return fmt.Errorf("RESTIFY_STORE_DIR is required when using the file store")
		}
	case StoreRedis:
		if c.RedisAddress == "" {
			return fmt.Errorf("REDIS_ADDRESS is required when using the redis store")
		}
		if db, err := strconv.Atoi(c.RedisDB); err != nil || db < 0 || db > 15 {
			return fmt.Errorf("REDIS_DB must be a number between 0 and 15")
		}
		if poolSize, err := strconv.Atoi(c.RedisPoolSize); err != nil || poolSize < 1 {
			return fmt.Errorf("REDIS_POOL_SIZE must be a positive number")
		}
	case StoreSQLite:
		if c.DatabasePath == "" {
			return fmt.Errorf("DATABASE_PATH is required when using the sqlite store")
		}
	case StorePostgres:
		if c.PostgresHost == "" {
			return fmt.Errorf("POSTGRES_HOST is required when using PostgreSQL")
		}
		if c.PostgresDB == "" {
			return fmt.Errorf("POSTGRES_DB is required when using PostgreSQL")
		}
		if c.PostgresUser == "" {
			return fmt.Errorf("POSTGRES_USER is required when using PostgreSQL")
		}
		if port, err := strconv.Atoi(c.PostgresPort); err != nil || port < 1 || port > 65535 {
			return fmt.Errorf("POSTGRES_PORT must be a valid port number")
		}
	default:
		return fmt.Errorf("RESTIFY_STORE must be one of none, memory, file, redis, sqlite, postgres")
	}

	// Every persistent store seals the tokens it writes
	if c.StoreKey == "" {
		return fmt.Errorf("RESTIFY_STORE_KEY is required when using the %s store", c.StoreType)
	}

	return nil
}
