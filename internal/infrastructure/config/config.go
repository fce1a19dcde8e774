package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// LegacyBaseURLEnv is the build-time variable used by the web front-end.
// It is honoured when PORTAL_API_BASE_URL is not set.
const LegacyBaseURLEnv = "VITE_API_BASE_URL"

// Config holds all client configuration
type Config struct {
	App       AppConfig
	API       APIConfig
	Session   SessionConfig
	Redis     RedisConfig
	Log       LogConfig
	Poll      PollConfig
	Metrics   MetricsConfig
	Telemetry TelemetryConfig
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Env  string `validate:"required"`
	Role string `validate:"omitempty,oneof=admin tutor student alumni"` // default role when no session is stored
}

// APIConfig holds the portal REST API settings
type APIConfig struct {
	BaseURL   string        `validate:"required,url"`
	Timeout   time.Duration `validate:"gt=0"`
	UserAgent string
	RateLimit float64 `validate:"gte=0"` // requests per second, 0 disables limiting
	RateBurst int     `validate:"gte=1"`
}

// SessionConfig selects where the credential pair is persisted
type SessionConfig struct {
	Store         string `validate:"oneof=memory file redis"`
	FilePath      string
	EncryptionKey string // optional passphrase for the file store
	TTL           time.Duration
}

// RedisConfig holds Redis connection settings for the redis credential store
type RedisConfig struct {
	Host      string
	Port      int `validate:"gte=0,lte=65535"`
	Password  string
	DB        int
	KeyPrefix string
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string `validate:"oneof=json console"`
	Output string // stdout, stderr, or file path
}

// PollConfig holds the default polling interval for watched collections
type PollConfig struct {
	Interval time.Duration `validate:"gt=0"`
}

// MetricsConfig holds the Prometheus endpoint settings
type MetricsConfig struct {
	Enabled bool
	Addr    string
}

// TelemetryConfig holds the OTLP trace exporter settings. An empty
// OTLPEndpoint disables tracing.
type TelemetryConfig struct {
	OTLPEndpoint  string
	Insecure      bool
	SamplingRatio float64 `validate:"gte=0,lte=1"`
	ServiceName   string
}

// Load loads configuration from a TOML file and environment variables.
// Priority (highest to lowest):
// 1. Environment variables with PORTAL_ prefix (e.g., PORTAL_API_BASE_URL)
// 2. VITE_API_BASE_URL for the base URL only
// 3. portal.toml
// 4. Built-in defaults
//
// A .env file in the working directory is loaded first; variables already set
// in the process environment win over it.
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile is Load with an explicit config file path. An empty path searches
// the default locations.
func LoadFile(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("error reading .env file: %w", err)
	}

	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("portal")
		v.SetConfigType("toml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("$HOME/.portal")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix("PORTAL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.SetDefault("telemetry.sampling_ratio", 1.0)

	cfg := &Config{
		App: AppConfig{
			Env:  v.GetString("app.env"),
			Role: v.GetString("app.role"),
		},
		API: APIConfig{
			BaseURL:   v.GetString("api.base_url"),
			Timeout:   v.GetDuration("api.timeout"),
			UserAgent: v.GetString("api.user_agent"),
			RateLimit: v.GetFloat64("api.rate_limit"),
			RateBurst: v.GetInt("api.rate_burst"),
		},
		Session: SessionConfig{
			Store:         v.GetString("session.store"),
			FilePath:      v.GetString("session.file_path"),
			EncryptionKey: v.GetString("session.encryption_key"),
			TTL:           v.GetDuration("session.ttl"),
		},
		Redis: RedisConfig{
			Host:      v.GetString("redis.host"),
			Port:      v.GetInt("redis.port"),
			Password:  v.GetString("redis.password"),
			DB:        v.GetInt("redis.db"),
			KeyPrefix: v.GetString("redis.key_prefix"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		Poll: PollConfig{
			Interval: v.GetDuration("poll.interval"),
		},
		Metrics: MetricsConfig{
			Enabled: v.GetBool("metrics.enabled"),
			Addr:    v.GetString("metrics.addr"),
		},
		Telemetry: TelemetryConfig{
			OTLPEndpoint:  v.GetString("telemetry.otlp_endpoint"),
			Insecure:      v.GetBool("telemetry.insecure"),
			SamplingRatio: v.GetFloat64("telemetry.sampling_ratio"),
			ServiceName:   v.GetString("telemetry.service_name"),
		},
	}

	if cfg.API.BaseURL == "" {
		cfg.API.BaseURL = os.Getenv(LegacyBaseURLEnv)
	}

	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyDefaults sets default values for any empty config fields
func applyDefaults(cfg *Config) {
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.API.BaseURL == "" {
		cfg.API.BaseURL = "http://localhost:8000/api"
	}
	cfg.API.BaseURL = strings.TrimSuffix(cfg.API.BaseURL, "/")
	if cfg.API.Timeout == 0 {
		cfg.API.Timeout = 10 * time.Second
	}
	if cfg.API.UserAgent == "" {
		cfg.API.UserAgent = "portal-client/1.0"
	}
	if cfg.API.RateBurst == 0 {
		cfg.API.RateBurst = 1
	}
	if cfg.Session.Store == "" {
		cfg.Session.Store = "file"
	}
	if cfg.Session.FilePath == "" {
		cfg.Session.FilePath = ".portal/credentials.json"
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.Redis.KeyPrefix == "" {
		cfg.Redis.KeyPrefix = "portal:credentials:"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stderr"
	}
	if cfg.Poll.Interval == 0 {
		cfg.Poll.Interval = 30 * time.Second
	}
	if cfg.Metrics.Addr == "" {
		cfg.Metrics.Addr = ":9464"
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "portalctl"
	}
}

var validate = validator.New()

// validate performs validation on the configuration
func (c *Config) validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("invalid configuration: %s failed %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value())
		}
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if c.App.Env == "production" {
		if strings.HasPrefix(c.API.BaseURL, "http://") {
			return fmt.Errorf("api.base_url must use https in production")
		}
		if c.Session.Store == "file" && c.Session.EncryptionKey == "" {
			return fmt.Errorf("session.encryption_key is required for the file store in production")
		}
	}
	return nil
}

// RedisAddr returns the host:port address of the Redis server
func (r *RedisConfig) RedisAddr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}
