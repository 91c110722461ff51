// Package config loads the gourmet-proxy configuration from an optional YAML
// file, a .env file and environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Sternrassler/gourmet-search/pkg/logging"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server  ServerConfig
	API     APIConfig `mapstructure:"api"`
	Redis   RedisConfig
	Quota   QuotaConfig
	Session SessionConfig
	Log     LogConfig
}

type ServerConfig struct {
	Host            string
	Port            int
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
}

type APIConfig struct {
	Key     string
	BaseURL string `mapstructure:"base_url"`
	Timeout time.Duration
}

// RedisConfig is optional; an empty address disables the quota gate.
type RedisConfig struct {
	Address  string
	Password string
	DB       int
}

type QuotaConfig struct {
	Daily int
}

type SessionConfig struct {
	TTL         time.Duration
	MaxSessions int `mapstructure:"max_sessions"`
}

type LogConfig struct {
	Level  string
	Pretty bool
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// Load reads the configuration. A .env file in the working directory is
// applied to the environment first; configPath names an optional YAML file.
func Load(configPath string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	// Set defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("api.key", "")
	v.SetDefault("api.base_url", "https://webservice.recruit.co.jp/hotpepper/gourmet/v1/")
	v.SetDefault("api.timeout", "15s")
	v.SetDefault("redis.address", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("quota.daily", 3000)
	v.SetDefault("session.ttl", "30m")
	v.SetDefault("session.max_sessions", 10000)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)

	// Override from environment
	v.BindEnv("api.key", "HOTPEPPER_API_KEY")
	v.BindEnv("api.base_url", "HOTPEPPER_BASE_URL")
	v.BindEnv("server.port", "PORT")
	v.BindEnv("redis.address", "REDIS_ADDRESS")
	v.BindEnv("redis.password", "REDIS_PASSWORD")
	v.BindEnv("quota.daily", "DAILY_QUOTA")
	v.BindEnv("session.ttl", "SESSION_TTL")
	v.BindEnv("log.level", "LOG_LEVEL")
	v.BindEnv("log.pretty", "LOG_PRETTY")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	// Parse durations
	cfg.Server.ShutdownTimeout = parseDuration(v, "server.shutdown_timeout", 10*time.Second)
	cfg.API.Timeout = parseDuration(v, "api.timeout", 15*time.Second)
	cfg.Session.TTL = parseDuration(v, "session.ttl", 30*time.Minute)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the settings the service cannot start without.
func (c *Config) Validate() error {
	if c.API.Key == "" {
		return errors.New("HOTPEPPER_API_KEY is required")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Server.Port)
	}
	if c.Session.TTL <= 0 {
		return fmt.Errorf("session ttl must be positive (got %s)", c.Session.TTL)
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return err
	}
	return nil
}

func parseDuration(v *viper.Viper, key string, defaultVal time.Duration) time.Duration {
	str := v.GetString(key)
	d, err := time.ParseDuration(str)
	if err != nil {
		return defaultVal
	}
	return d
}
