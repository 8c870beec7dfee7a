package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// ServerConfig holds all configuration for the session store server.
// Tags use mapstructure for Viper unmarshalling.
type ServerConfig struct {
	HTTPPort    string `mapstructure:"HTTP_PORT"`
	MongoURI    string `mapstructure:"MONGO_URI"`
	MongoDBName string `mapstructure:"MONGO_DB_NAME"`

	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int    `mapstructure:"REDIS_DB"`
	CachePrefix   string `mapstructure:"CACHE_PREFIX"`

	// SessionExpiry is an HH:MM:SS duration; empty uses the built-in
	// default of six hours.
	SessionExpiry       string `mapstructure:"SESSION_EXPIRY"`
	DisableSessionCache bool   `mapstructure:"DISABLE_SESSION_CACHE"`

	// GeoIPDBPath points at a MaxMind country database; empty disables the
	// lookup.
	GeoIPDBPath string `mapstructure:"GEOIP_DB_PATH"`

	// AdminUser is the only principal allowed to clear all sessions.
	AdminUser string `mapstructure:"ADMIN_USER"`

	// SweepSchedule is a cron expression for the expired-session sweep.
	SweepSchedule string `mapstructure:"SWEEP_SCHEDULE"`

	LogLevel  string `mapstructure:"LOG_LEVEL"`
	LogPretty bool   `mapstructure:"LOG_PRETTY"`
}

// LoadConfig reads configuration from file, environment variables, and defaults.
func LoadConfig() (*ServerConfig, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.AddConfigPath("/etc/frappe-sessions/")
	v.AddConfigPath("$HOME/.frappe-sessions")
	v.AddConfigPath(".")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("HTTP_PORT", "8080")
	v.SetDefault("MONGO_URI", "mongodb://localhost:27017/frappe_sessions")
	v.SetDefault("MONGO_DB_NAME", "frappe_sessions")
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("CACHE_PREFIX", "frappe")
	v.SetDefault("SESSION_EXPIRY", "06:00:00")
	v.SetDefault("DISABLE_SESSION_CACHE", false)
	v.SetDefault("ADMIN_USER", "Administrator")
	v.SetDefault("SWEEP_SCHEDULE", "@every 1h")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_PRETTY", true)

	if err := v.ReadInConfig(); err != nil {
		// a missing config file is fine, we run on defaults and env vars
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg ServerConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	return &cfg, nil
}
