// Package config loads japi configuration from japi.yaml and JAPI_*
// environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// FileName is the config file name without extension.
const FileName = "japi"

// EnvPrefix prefixes environment overrides, e.g. JAPI_SERVER_PORT.
const EnvPrefix = "JAPI"

// Config is the complete japi configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server" validate:"required"`
	API      APIConfig      `mapstructure:"api" validate:"required"`
	Database DatabaseConfig `mapstructure:"database" validate:"required"`
	Cache    CacheConfig    `mapstructure:"cache" validate:"required"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Log      LogConfig      `mapstructure:"log" validate:"required"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Host            string          `mapstructure:"host"`
	Port            int             `mapstructure:"port" validate:"gte=0,lt=65536"`
	ReadTimeout     time.Duration   `mapstructure:"read_timeout" validate:"gte=0"`
	WriteTimeout    time.Duration   `mapstructure:"write_timeout" validate:"gte=0"`
	IdleTimeout     time.Duration   `mapstructure:"idle_timeout" validate:"gte=0"`
	ShutdownTimeout time.Duration   `mapstructure:"shutdown_timeout" validate:"gt=0"`
	CORSOrigins     []string        `mapstructure:"cors_origins"`
	RateLimit       RateLimitConfig `mapstructure:"rate_limit"`
}

// Address returns host:port.
func (s ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// RateLimitConfig configures per-client request limits. A zero Requests
// disables limiting.
type RateLimitConfig struct {
	Requests int           `mapstructure:"requests" validate:"gte=0"`
	Window   time.Duration `mapstructure:"window" validate:"required_with=Requests"`
	Burst    int           `mapstructure:"burst" validate:"gte=0"`
}

// APIConfig configures the JSON:API handler.
type APIConfig struct {
	BasePath        string `mapstructure:"base_path"`
	BaseURL         string `mapstructure:"base_url" validate:"omitempty,url"`
	Debug           bool   `mapstructure:"debug"`
	DefaultPageSize int    `mapstructure:"default_page_size" validate:"gt=0,ltefield=MaxPageSize"`
	MaxPageSize     int    `mapstructure:"max_page_size" validate:"gt=0"`
	MaxBodySize     int64  `mapstructure:"max_body_size" validate:"gt=0"`
}

// DatabaseConfig configures the SQL store.
type DatabaseConfig struct {
	Driver       string `mapstructure:"driver" validate:"oneof=sqlite3 pgx postgres"`
	DSN          string `mapstructure:"dsn" validate:"required"`
	MaxOpenConns int    `mapstructure:"max_open_conns" validate:"gte=0"`
	MaxIdleConns int    `mapstructure:"max_idle_conns" validate:"gte=0"`
}

// CacheConfig configures the response cache.
type CacheConfig struct {
	Backend       string        `mapstructure:"backend" validate:"oneof=none memory redis"`
	TTL           time.Duration `mapstructure:"ttl" validate:"gte=0"`
	Prefix        string        `mapstructure:"prefix"`
	RedisAddr     string        `mapstructure:"redis_addr" validate:"required_if=Backend redis"`
	RedisPassword string        `mapstructure:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db" validate:"gte=0"`
}

// AuthConfig configures bearer token authentication. An empty secret
// disables it.
type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret" validate:"omitempty,min=16"`
	TokenTTL  time.Duration `mapstructure:"token_ttl" validate:"gt=0"`
	Issuer    string        `mapstructure:"issuer"`
	Required  bool          `mapstructure:"required"`
}

// Enabled reports whether a secret is configured.
func (a AuthConfig) Enabled() bool {
	return a.JWTSecret != ""
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn error off"`
	Format string `mapstructure:"format" validate:"oneof=json console"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)
	v.SetDefault("server.cors_origins", []string{})
	v.SetDefault("server.rate_limit.requests", 0)
	v.SetDefault("server.rate_limit.window", time.Minute)
	v.SetDefault("server.rate_limit.burst", 0)

	v.SetDefault("api.base_path", "")
	v.SetDefault("api.base_url", "")
	v.SetDefault("api.debug", false)
	v.SetDefault("api.default_page_size", 25)
	v.SetDefault("api.max_page_size", 100)
	v.SetDefault("api.max_body_size", 1<<20)

	v.SetDefault("database.driver", "sqlite3")
	v.SetDefault("database.dsn", "file:japi.db?_foreign_keys=on")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)

	v.SetDefault("cache.backend", "none")
	v.SetDefault("cache.ttl", 5*time.Minute)
	v.SetDefault("cache.prefix", "japi:")
	v.SetDefault("cache.redis_addr", "")
	v.SetDefault("cache.redis_password", "")
	v.SetDefault("cache.redis_db", 0)

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.token_ttl", 24*time.Hour)
	v.SetDefault("auth.issuer", "japi")
	v.SetDefault("auth.required", false)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
}

// Load reads configuration. When path is empty japi.yaml is searched in the
// working directory, ./config and $HOME/.japi, and a missing file means
// defaults. Environment variables override file values.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(FileName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("config")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".japi"))
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks struct rules and the cross-field constraints tags cannot
// express.
func (c *Config) Validate() error {
	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed on '%s'", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}

	if p := c.API.BasePath; p != "" {
		if !strings.HasPrefix(p, "/") {
			return fmt.Errorf("api.base_path must start with '/', got: %s", p)
		}
		if strings.HasSuffix(p, "/") {
			return fmt.Errorf("api.base_path must not end with '/', got: %s", p)
		}
	}
	if c.Auth.Required && !c.Auth.Enabled() {
		return errors.New("auth.required needs auth.jwt_secret")
	}
	return nil
}
