// Package config loads application configuration from environment
// variables.  main calls godotenv first, so a local .env file works too.
package config

import (
	"fmt"
	"os"
	"strings"
)

// Store drivers.
const (
	StoreMySQL  = "mysql"
	StoreMemory = "memory"
)

// Config holds the core runtime configuration.  Feature sections (orders,
// pricing, redis, rate limit, cache) have their own loaders with defaults.
type Config struct {
	Env         string // application environment (dev, test, prod)
	Port        string // HTTP port to listen on
	StoreDriver string // mysql or memory
	DBUser      string // database username
	DBPass      string // database password (optional)
	DBHost      string // database host address
	DBPort      string // database port number
	DBName      string // database name
	JWTSecret   string // secret that staff and payment tokens are signed with
	RabbitMQURL string // broker for order events; empty disables publishing
	LogDir      string // directory of the order notification log
}

// Load reads the core configuration.  Required variables are enforced by
// must(); all missing ones are reported together.
func Load() (Config, error) {
	var l loader
	cfg := Config{
		Env:         envStr("APP_ENV", "dev"),
		Port:        l.must("APP_PORT"),
		StoreDriver: strings.ToLower(envStr("STORE_DRIVER", StoreMySQL)),
		DBPass:      os.Getenv("DB_PASS"),
		JWTSecret:   l.must("JWT_SECRET"),
		RabbitMQURL: os.Getenv("RABBITMQ_URL"),
		LogDir:      envStr("NOTIFY_LOG_DIR", "logs"),
	}
	switch cfg.StoreDriver {
	case StoreMySQL:
		cfg.DBUser = l.must("DB_USER")
		cfg.DBHost = l.must("DB_HOST")
		cfg.DBPort = envStr("DB_PORT", "3306")
		cfg.DBName = l.must("DB_NAME")
	case StoreMemory:
	default:
		return Config{}, fmt.Errorf("config: unknown STORE_DRIVER %q", cfg.StoreDriver)
	}
	if len(l.missing) > 0 {
		return Config{}, fmt.Errorf("config: missing required env vars: %s", strings.Join(l.missing, ", "))
	}
	return cfg, nil
}

// loader collects the names of missing required variables.
type loader struct {
	missing []string
}

// must retrieves a required environment variable, recording it as missing
// when unset or empty.
func (l *loader) must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		l.missing = append(l.missing, key)
		return ""
	}
	return v
}
