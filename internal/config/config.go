package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Cache backend selectors
const (
	BackendFile  = "file"
	BackendRedis = "redis"
)

// BaseConfig holds base configuration
type BaseConfig struct {
	Debug     bool   `mapstructure:"debug"`
	SentryDSN string `mapstructure:"sentry_dsn"`
}

// CacheConfig holds the tiered cache configuration
type CacheConfig struct {
	MemoryTTL     time.Duration `mapstructure:"memory_ttl"`
	PersistentTTL time.Duration `mapstructure:"persistent_ttl"`
	PageSize      int           `mapstructure:"page_size"`
	MaxPages      int           `mapstructure:"max_pages"` // 0 disables the pagination safety cap
	Backend       string        `mapstructure:"backend"`   // "file" or "redis"
	Dir           string        `mapstructure:"dir"`       // file backend location
}

// RedisConfig holds the redis cache backend configuration
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

// UpstreamConfig holds the hosted image API configuration
type UpstreamConfig struct {
	BaseURL           string        `mapstructure:"base_url"`
	AccountID         string        `mapstructure:"account_id"`
	APIKey            string        `mapstructure:"api_key"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	HTTPTimeout       time.Duration `mapstructure:"http_timeout"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	ReadTimeout  int    `mapstructure:"read_timeout"`  // in seconds
	WriteTimeout int    `mapstructure:"write_timeout"` // in seconds
	IdleTimeout  int    `mapstructure:"idle_timeout"`  // in seconds
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	JWTPublicKey string   `mapstructure:"jwt_public_key"`
	APIKeys      []string `mapstructure:"api_keys"`
}

// APIConfig holds configuration for the API server
type APIConfig struct {
	BaseConfig `mapstructure:",squash"`
	Server     ServerConfig   `mapstructure:"server"`
	Cache      CacheConfig    `mapstructure:"cache"`
	Redis      RedisConfig    `mapstructure:"redis"`
	Upstream   UpstreamConfig `mapstructure:"upstream"`
	Auth       AuthConfig     `mapstructure:"auth"`
}

// LoadAPIConfig loads configuration for the API server
func LoadAPIConfig(configFile string, envPath string) (*APIConfig, error) {
	v := configureViper("api", configFile, envPath)

	// Set defaults
	v.SetDefault("debug", false)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 10)
	v.SetDefault("server.write_timeout", 10)
	v.SetDefault("server.idle_timeout", 120)
	v.SetDefault("cache.memory_ttl", "5m")
	v.SetDefault("cache.persistent_ttl", "1h")
	v.SetDefault("cache.page_size", 100)
	v.SetDefault("cache.max_pages", 100)
	v.SetDefault("cache.backend", BackendFile)
	v.SetDefault("cache.dir", ".cache")
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.prefix", "gallery-cache")
	v.SetDefault("upstream.requests_per_second", 5)
	v.SetDefault("upstream.http_timeout", "30s")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			// Config file not found, use environment variables
		} else {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var config APIConfig
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if config.Cache.Backend != BackendFile && config.Cache.Backend != BackendRedis {
		return nil, fmt.Errorf("unknown cache backend %q", config.Cache.Backend)
	}
	if config.Upstream.BaseURL == "" {
		return nil, errors.New("upstream.base_url is required")
	}
	if config.Upstream.AccountID == "" {
		return nil, errors.New("upstream.account_id is required")
	}

	return &config, nil
}

// configureViper returns a viper instance with the config file and environment variables set
func configureViper(service string, configFile string, envPath string) *viper.Viper {
	v := viper.New()

	// Load environment variables
	loadEnv(envPath, service)

	// Set config file
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath(fmt.Sprintf("cmd/%s/", service))
		v.AddConfigPath("config/")
	}

	v.SetEnvPrefix("GALLERY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	bindAllEnvVars(v)
	return v
}

// bindAllEnvVars explicitly binds all possible environment variables.
// Required for viper to map env vars to config struct fields when no config
// file exists.
func bindAllEnvVars(v *viper.Viper) {
	keys := []string{
		"debug",
		"sentry_dsn",
		// Server
		"server.host",
		"server.port",
		"server.read_timeout",
		"server.write_timeout",
		"server.idle_timeout",
		// Cache
		"cache.memory_ttl",
		"cache.persistent_ttl",
		"cache.page_size",
		"cache.max_pages",
		"cache.backend",
		"cache.dir",
		// Redis
		"redis.addr",
		"redis.password",
		"redis.db",
		"redis.prefix",
		// Upstream
		"upstream.base_url",
		"upstream.account_id",
		"upstream.api_key",
		"upstream.requests_per_second",
		"upstream.http_timeout",
		// Auth
		"auth.jwt_public_key",
		"auth.api_keys",
	}

	for _, key := range keys {
		_ = v.BindEnv(key)
	}
}

// loadEnv loads environment variables from the config directory
func loadEnv(envPath string, service string) {
	envFiles := []string{".env", ".env.local"}
	if service != "" {
		envFiles = append(envFiles, ".env."+service+".local")
	}

	if envPath == "" {
		envPath = "config/"
	}

	for _, envFile := range envFiles {
		candidate := filepath.Join(envPath, envFile)
		_ = godotenv.Overload(candidate) // Overload lets later files override earlier ones
	}
}
