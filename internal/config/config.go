// Package config loads storefront settings from a yaml file, a .env file and the environment.
package config

import (
	"errors"
	"fmt"
	"log"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	envPrefix      = "storefront_"
	defaultEnvFile = ".env"
	// DefaultConfigFile is read when no path is given.
	DefaultConfigFile = "config.yaml"
)

// Storage drivers.
const (
	DriverMemory   = "memory"
	DriverFile     = "file"
	DriverPostgres = "postgres"
)

type Config struct {
	HTTPServer HTTPConfig      `koanf:"server"`
	Catalog    CatalogConfig   `koanf:"catalog"`
	Storage    StorageConfig   `koanf:"storage"`
	Log        LogConfig       `koanf:"log"`
	Telemetry  TelemetryConfig `koanf:"telemetry"`
	Shutdown   ShutdownConfig  `koanf:"shutdown"`
}

type HTTPConfig struct {
	Port           int `koanf:"port"`
	MaxHeaderBytes int `koanf:"maxHeaderBytes"`
	Timeout        struct {
		Read       time.Duration `koanf:"read"`
		Write      time.Duration `koanf:"write"`
		Idle       time.Duration `koanf:"idle"`
		ReadHeader time.Duration `koanf:"readHeader"`
	} `koanf:"timeout"`
}

type CatalogConfig struct {
	BaseURL  string        `koanf:"baseURL"`
	Timeout  time.Duration `koanf:"timeout"`
	PageSize int           `koanf:"pageSize"`
	Breaker  struct {
		// ConsecutiveFailures of 0 disables the circuit breaker.
		ConsecutiveFailures uint32        `koanf:"consecutiveFailures"`
		OpenTimeout         time.Duration `koanf:"openTimeout"`
		HalfOpenRequests    uint32        `koanf:"halfOpenRequests"`
	} `koanf:"breaker"`
}

type StorageConfig struct {
	Driver   string `koanf:"driver"`
	Dir      string `koanf:"dir"`
	Database struct {
		URL            string        `koanf:"url"`
		ConnectTimeout time.Duration `koanf:"connectTimeout"`
	} `koanf:"database"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

type TelemetryConfig struct {
	Traces struct {
		// OtlpHttp.Endpoint left empty keeps spans in process.
		OtlpHttp struct {
			Endpoint string        `koanf:"endpoint"`
			Insecure bool          `koanf:"insecure"`
			Timeout  time.Duration `koanf:"timeout"`
		} `koanf:"otlphttp"`
	} `koanf:"traces"`
}

type ShutdownConfig struct {
	Timeout time.Duration `koanf:"timeout"`
}

func defaults() map[string]any {
	return map[string]any{
		"server.port":                         8080,
		"server.maxHeaderBytes":               1 << 20,
		"server.timeout.read":                 "5s",
		"server.timeout.write":                "30s",
		"server.timeout.idle":                 "60s",
		"server.timeout.readHeader":           "2s",
		"catalog.baseURL":                     "https://api.escuelajs.co/api/v1/products",
		"catalog.timeout":                     "10s",
		"catalog.pageSize":                    10,
		"catalog.breaker.consecutiveFailures": 5,
		"catalog.breaker.openTimeout":         "30s",
		"catalog.breaker.halfOpenRequests":    1,
		"storage.driver":                      DriverFile,
		"storage.dir":                         "data",
		"storage.database.url":                "",
		"storage.database.connectTimeout":     "5s",
		"log.level":                           "info",
		"log.format":                          "json",
		"shutdown.timeout":                    "10s",
	}
}

// Load reads the configuration from path (DefaultConfigFile when empty), then
// the .env file, then environment variables prefixed with STOREFRONT_.
// Later sources override earlier ones.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigFile
	}
	k := koanf.New(".")

	// 0. Built-in defaults, the lowest priority
	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("error loading defaults: %w", err)
	}

	// 1. Load configuration from yaml file
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			log.Printf("WARN: error loading YAML config file '%s': %v", path, err)
		}
	}

	// 2. Load environment variables from .env file
	if envFileMap, err := godotenv.Read(defaultEnvFile); err == nil {
		envMap := make(map[string]any)
		for key, value := range envFileMap {
			if !strings.HasPrefix(strings.ToLower(key), envPrefix) {
				continue
			}
			envMap[keyTransformer(key)] = value
		}
		if err := k.Load(confmap.Provider(envMap, "."), nil); err != nil {
			log.Printf("WARN: error loading .env config: %v", err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		log.Printf("WARN: error reading .env file: %v", err)
	}

	// 3. Load environment variables from the system, the highest priority
	if err := k.Load(env.Provider(strings.ToUpper(envPrefix), ".", keyTransformer), nil); err != nil {
		log.Printf("WARN: error loading env vars: %v", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// Validate checks every section.
func (c *Config) Validate() error {
	return errors.Join(
		c.HTTPServer.Validate(),
		c.Catalog.Validate(),
		c.Storage.Validate(),
		c.Log.Validate(),
		c.Telemetry.Validate(),
		c.Shutdown.Validate(),
	)
}

func (c *HTTPConfig) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid HTTP server port: %d", c.Port)
	}
	if c.Timeout.Read <= 0 {
		return fmt.Errorf("invalid HTTP server read timeout: %v", c.Timeout.Read)
	}
	if c.Timeout.Write <= 0 {
		return fmt.Errorf("invalid HTTP server write timeout: %v", c.Timeout.Write)
	}
	if c.Timeout.Idle <= 0 {
		return fmt.Errorf("invalid HTTP server idle timeout: %v", c.Timeout.Idle)
	}
	if c.Timeout.ReadHeader <= 0 {
		return fmt.Errorf("invalid HTTP server read header timeout: %v", c.Timeout.ReadHeader)
	}
	return nil
}

func (c *CatalogConfig) Validate() error {
	u, err := url.Parse(c.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("catalog base URL must be an absolute http(s) URL: %q", c.BaseURL)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("invalid catalog timeout: %v", c.Timeout)
	}
	if c.PageSize <= 0 {
		return fmt.Errorf("invalid catalog page size: %d", c.PageSize)
	}
	if c.Breaker.ConsecutiveFailures > 0 {
		if c.Breaker.OpenTimeout <= 0 {
			return fmt.Errorf("invalid catalog breaker open timeout: %v", c.Breaker.OpenTimeout)
		}
		if c.Breaker.HalfOpenRequests == 0 {
			return fmt.Errorf("catalog breaker needs at least one half-open request")
		}
	}
	return nil
}

func (c *StorageConfig) Validate() error {
	switch c.Driver {
	case DriverMemory:
		return nil
	case DriverFile:
		if c.Dir == "" {
			return fmt.Errorf("storage dir is required for the %s driver", DriverFile)
		}
		return nil
	case DriverPostgres:
		if c.Database.URL == "" {
			return fmt.Errorf("database URL is not configured")
		}
		if !isValidPostgresURL(c.Database.URL) {
			return fmt.Errorf("database URL must start with 'postgres://': %s", maskURL(c.Database.URL))
		}
		if c.Database.ConnectTimeout <= 0 {
			return fmt.Errorf("invalid database connect timeout: %v", c.Database.ConnectTimeout)
		}
		return nil
	default:
		return fmt.Errorf("unknown storage driver: %q", c.Driver)
	}
}

func (c *LogConfig) Validate() error {
	switch c.Format {
	case "json", "text", "console":
		return nil
	default:
		return fmt.Errorf("unknown log format: %q", c.Format)
	}
}

func (c *TelemetryConfig) Validate() error {
	if c.Traces.OtlpHttp.Endpoint != "" && c.Traces.OtlpHttp.Timeout <= 0 {
		return fmt.Errorf("telemetry timeout must be greater than 0")
	}
	return nil
}

func (c *ShutdownConfig) Validate() error {
	if c.Timeout <= 0 {
		return fmt.Errorf("shutdown timeout is not configured")
	}
	return nil
}

func (c Config) String() string {
	var b strings.Builder
	b.WriteString("\n--- Server ---\n")
	fmt.Fprintf(&b, "  port: %d\n", c.HTTPServer.Port)
	fmt.Fprintf(&b, "  maxHeaderBytes: %d\n", c.HTTPServer.MaxHeaderBytes)
	fmt.Fprintf(&b, "  timeout: read=%v write=%v idle=%v readHeader=%v\n",
		c.HTTPServer.Timeout.Read, c.HTTPServer.Timeout.Write,
		c.HTTPServer.Timeout.Idle, c.HTTPServer.Timeout.ReadHeader)
	b.WriteString("--- Catalog ---\n")
	fmt.Fprintf(&b, "  baseURL: %s\n", c.Catalog.BaseURL)
	fmt.Fprintf(&b, "  timeout: %v\n", c.Catalog.Timeout)
	fmt.Fprintf(&b, "  pageSize: %d\n", c.Catalog.PageSize)
	fmt.Fprintf(&b, "  breaker: consecutiveFailures=%d openTimeout=%v halfOpenRequests=%d\n",
		c.Catalog.Breaker.ConsecutiveFailures, c.Catalog.Breaker.OpenTimeout, c.Catalog.Breaker.HalfOpenRequests)
	b.WriteString("--- Storage ---\n")
	fmt.Fprintf(&b, "  driver: %s\n", c.Storage.Driver)
	switch c.Storage.Driver {
	case DriverFile:
		fmt.Fprintf(&b, "  dir: %s\n", c.Storage.Dir)
	case DriverPostgres:
		fmt.Fprintf(&b, "  database.url: %s\n", maskURL(c.Storage.Database.URL))
		fmt.Fprintf(&b, "  database.connectTimeout: %v\n", c.Storage.Database.ConnectTimeout)
	}
	b.WriteString("--- Log ---\n")
	fmt.Fprintf(&b, "  level: %s\n", c.Log.Level)
	fmt.Fprintf(&b, "  format: %s\n", c.Log.Format)
	b.WriteString("--- Telemetry ---\n")
	fmt.Fprintf(&b, "  traces.otlphttp.endpoint: %s\n", c.Telemetry.Traces.OtlpHttp.Endpoint)
	fmt.Fprintf(&b, "  traces.otlphttp.insecure: %v\n", c.Telemetry.Traces.OtlpHttp.Insecure)
	fmt.Fprintf(&b, "  traces.otlphttp.timeout: %v\n", c.Telemetry.Traces.OtlpHttp.Timeout)
	b.WriteString("--- Shutdown ---\n")
	fmt.Fprintf(&b, "  timeout: %v\n", c.Shutdown.Timeout)
	return b.String()
}

func maskURL(url string) string {
	if url == "" {
		return "<not configured>"
	}
	parts := strings.Split(url, "@")
	if len(parts) == 2 {
		return "****@" + parts[1]
	}
	return "****"
}

func isValidPostgresURL(url string) bool {
	return strings.HasPrefix(url, "postgres://") ||
		strings.HasPrefix(url, "postgresql://")
}

// canonicalKeys maps lower-cased config keys to their camelCase form.
var canonicalKeys = func() map[string]string {
	keys := make(map[string]string)
	for key := range defaults() {
		keys[strings.ToLower(key)] = key
	}
	return keys
}()

// keyTransformer maps STOREFRONT_CATALOG_BASEURL to catalog.baseURL.
func keyTransformer(key string) string {
	key = strings.ToLower(key)
	key = strings.TrimPrefix(key, envPrefix)
	key = strings.ReplaceAll(key, "_", ".")
	if canonical, ok := canonicalKeys[key]; ok {
		return canonical
	}
	return key
}
