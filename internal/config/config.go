// Package config loads configuration for the file server and the caching
// client from defaults, an optional config file and environment variables.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// ServerConfig holds the file server configuration.
type ServerConfig struct {
	// Server
	ListenAddr  string `mapstructure:"LISTEN_ADDR"`
	MetricsAddr string `mapstructure:"METRICS_ADDR"`

	// Logging
	LogLevel  string `mapstructure:"LOG_LEVEL"`
	LogFormat string `mapstructure:"LOG_FORMAT"`

	// TLS (optional, used when both are set)
	TLSCertFile string `mapstructure:"TLS_CERT_FILE"`
	TLSKeyFile  string `mapstructure:"TLS_KEY_FILE"`

	// Storage backend ("local" or "s3")
	StorageBackend   string `mapstructure:"STORAGE_BACKEND"`
	LocalStoragePath string `mapstructure:"LOCAL_STORAGE_PATH"`

	// S3 storage
	S3Endpoint  string `mapstructure:"S3_ENDPOINT"`
	S3Bucket    string `mapstructure:"S3_BUCKET"`
	S3Prefix    string `mapstructure:"S3_PREFIX"`
	S3AccessKey string `mapstructure:"S3_ACCESS_KEY"`
	S3SecretKey string `mapstructure:"S3_SECRET_KEY"`
	S3Region    string `mapstructure:"S3_REGION"`

	// Publish change events from a watcher on the local root.
	Watch bool `mapstructure:"WATCH"`
}

// ClientConfig holds the caching client configuration.
type ClientConfig struct {
	ServerURL  string `mapstructure:"SERVER_URL"`
	FacadeAddr string `mapstructure:"FACADE_ADDR"`
	RootPath   string `mapstructure:"ROOT_PATH"`

	LogLevel  string `mapstructure:"LOG_LEVEL"`
	LogFormat string `mapstructure:"LOG_FORMAT"`

	// Traversal pacing
	StartDelay           time.Duration `mapstructure:"START_DELAY"`
	DirYield             time.Duration `mapstructure:"DIR_YIELD"`
	LevelDelay           time.Duration `mapstructure:"LEVEL_DELAY"`
	ErrorBackoff         time.Duration `mapstructure:"ERROR_BACKOFF"`
	MaxConcurrentFetches int           `mapstructure:"MAX_CONCURRENT_FETCHES"`

	// Remote access
	RequestsPerSecond float64       `mapstructure:"REQUESTS_PER_SECOND"`
	RequestTimeout    time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	ProbeInterval     time.Duration `mapstructure:"PROBE_INTERVAL"`

	// Drop cached entries when the server reports a change.
	LiveInvalidation bool `mapstructure:"LIVE_INVALIDATION"`
}

var serverDefaults = map[string]any{
	"LISTEN_ADDR":        ":8080",
	"METRICS_ADDR":       ":9090",
	"LOG_LEVEL":          "info",
	"LOG_FORMAT":         "json",
	"TLS_CERT_FILE":      "",
	"TLS_KEY_FILE":       "",
	"STORAGE_BACKEND":    "local",
	"LOCAL_STORAGE_PATH": "./files",
	"S3_ENDPOINT":        "http://localhost:9000",
	"S3_BUCKET":          "",
	"S3_PREFIX":          "",
	"S3_ACCESS_KEY":      "minioadmin",
	"S3_SECRET_KEY":      "minioadmin",
	"S3_REGION":          "us-east-1",
	"WATCH":              false,
}

var clientDefaults = map[string]any{
	"SERVER_URL":             "http://localhost:8080",
	"FACADE_ADDR":            ":8081",
	"ROOT_PATH":              "/",
	"LOG_LEVEL":              "info",
	"LOG_FORMAT":             "console",
	"START_DELAY":            "1s",
	"DIR_YIELD":              "200ms",
	"LEVEL_DELAY":            "500ms",
	"ERROR_BACKOFF":          "5s",
	"MAX_CONCURRENT_FETCHES": 4,
	"REQUESTS_PER_SECOND":    20.0,
	"REQUEST_TIMEOUT":        "30s",
	"PROBE_INTERVAL":         "5s",
	"LIVE_INVALIDATION":      false,
}

// LoadServer reads the server configuration.
func LoadServer() (*ServerConfig, error) {
	v, err := load(serverDefaults, nil)
	if err != nil {
		return nil, err
	}

	var cfg ServerConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode server config: %w", err)
	}

	switch cfg.StorageBackend {
	case "local":
		if cfg.LocalStoragePath == "" {
			return nil, fmt.Errorf("LOCAL_STORAGE_PATH is required for local storage")
		}
	case "s3":
		if cfg.S3Bucket == "" {
			return nil, fmt.Errorf("S3_BUCKET is required for s3 storage")
		}
		if cfg.Watch {
			return nil, fmt.Errorf("WATCH is only supported with local storage")
		}
	default:
		return nil, fmt.Errorf("unknown STORAGE_BACKEND %q", cfg.StorageBackend)
	}
	return &cfg, nil
}

// LoadClient reads the client configuration. Flags maps config keys to
// command-line flags; a flag overrides its key only when set explicitly.
func LoadClient(flags map[string]*pflag.Flag) (*ClientConfig, error) {
	v, err := load(clientDefaults, flags)
	if err != nil {
		return nil, err
	}

	var cfg ClientConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode client config: %w", err)
	}

	if cfg.ServerURL == "" {
		return nil, fmt.Errorf("SERVER_URL is required")
	}
	if cfg.MaxConcurrentFetches < 1 {
		return nil, fmt.Errorf("MAX_CONCURRENT_FETCHES must be at least 1")
	}
	if cfg.RequestsPerSecond < 0 {
		return nil, fmt.Errorf("REQUESTS_PER_SECOND must not be negative")
	}
	return &cfg, nil
}

func load(defaults map[string]any, flags map[string]*pflag.Flag) (*viper.Viper, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.AutomaticEnv()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	for key, flag := range flags {
		if flag == nil {
			continue
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return nil, fmt.Errorf("bind flag %s: %w", flag.Name, err)
		}
	}
	return v, nil
}
