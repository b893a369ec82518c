package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix               = "COLLABAI"
	defaultHTTPAddress      = "0.0.0.0:8080"
	defaultRedisAddress     = "127.0.0.1:6379"
	defaultDatabasePath     = "collabai.db"
	defaultLogLevel         = "info"
	defaultPresenceTTLHours = 24
)

// AppConfig captures runtime configuration for the gateway process.
type AppConfig struct {
	HTTPAddress     string
	RedisAddress    string
	DatabasePath    string
	JWTSecret       string
	LogLevel        string
	PresenceTTL     time.Duration
	ConnectionLimit int
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("redis.address", defaultRedisAddress)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("presence.ttl_hours", defaultPresenceTTLHours)
	configViper.SetDefault("gateway.connection_limit", 0)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:     configViper.GetString("http.address"),
		RedisAddress:    configViper.GetString("redis.address"),
		DatabasePath:    configViper.GetString("database.path"),
		JWTSecret:       configViper.GetString("auth.jwt_secret"),
		LogLevel:        configViper.GetString("log.level"),
		PresenceTTL:     time.Duration(configViper.GetInt("presence.ttl_hours")) * time.Hour,
		ConnectionLimit: configViper.GetInt("gateway.connection_limit"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.JWTSecret) == "" {
		return fmt.Errorf("auth.jwt_secret is required")
	}
	if strings.TrimSpace(c.RedisAddress) == "" {
		return fmt.Errorf("redis.address is required")
	}
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.PresenceTTL <= 0 {
		return fmt.Errorf("presence.ttl_hours must be positive")
	}
	if c.ConnectionLimit < 0 {
		return fmt.Errorf("gateway.connection_limit must not be negative")
	}
	return nil
}
