// Package config handles ontologia configuration.
//
// Values come from four layers, later ones winning:
//
//  1. DefaultConfig
//  2. an optional YAML file
//  3. environment variables prefixed with ONTOLOGIA_ (a .env file in the
//     working directory is read first)
//  4. command-line flags, applied by cmd/ontologia
//
// Example Usage:
//
//	cfg, err := config.Load("ontologia.yaml")
//	if err != nil {
//		log.Fatal(err)
//	}
//	if err := cfg.Validate(); err != nil {
//		log.Fatalf("Invalid config: %v", err)
//	}
//
// Environment Variables:
//
// Server:
//   - ONTOLOGIA_HOST=127.0.0.1
//   - ONTOLOGIA_PORT=8000
//   - ONTOLOGIA_READ_TIMEOUT=30s, ONTOLOGIA_WRITE_TIMEOUT=60s
//   - ONTOLOGIA_SHUTDOWN_TIMEOUT=10s
//   - ONTOLOGIA_CORS_ORIGINS="*" (comma separated)
//   - ONTOLOGIA_METRICS_ENABLED=true
//
// Ontology and storage:
//   - ONTOLOGIA_ONTOLOGY_PATH=ontologia.rdf
//   - ONTOLOGIA_BASE_NAMESPACE=http://www.semanticweb.org/.../untitled-ontology-26#
//   - ONTOLOGIA_ONTOLOGY_FORMAT=xml|turtle|nt (empty: from the file extension)
//   - ONTOLOGIA_STORAGE_ENGINE=memory|badger
//   - ONTOLOGIA_DATA_DIR= (badger only; empty keeps badger in memory)
//
// Search and cache:
//   - ONTOLOGIA_SEARCH_LIMIT=20
//   - ONTOLOGIA_DEFAULT_CLASS=Procesador
//   - ONTOLOGIA_SUMMARY_<FIELD>=prop1,prop2 (e.g. ONTOLOGIA_SUMMARY_FRECUENCIA)
//   - ONTOLOGIA_CACHE_ENABLED=true, ONTOLOGIA_CACHE_SIZE=1000, ONTOLOGIA_CACHE_TTL=0
//
// Logging:
//   - ONTOLOGIA_LOG_LEVEL=info, ONTOLOGIA_LOG_FORMAT=json|console
//   - ONTOLOGIA_LOG_FILE= (rotated file output, in addition to stdout)
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/orneryd/ontologia/pkg/storage"
	"github.com/orneryd/ontologia/pkg/vocabulary"
)

// EnvPrefix prefixes every environment variable read by ApplyEnv.
const EnvPrefix = "ONTOLOGIA_"

const summaryEnvPrefix = EnvPrefix + "SUMMARY_"

// Storage engine names.
const (
	EngineMemory = "memory"
	EngineBadger = "badger"
)

// Config holds all ontologia configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Ontology OntologyConfig `yaml:"ontology"`
	Storage  StorageConfig  `yaml:"storage"`
	Search   SearchConfig   `yaml:"search"`
	Cache    CacheConfig    `yaml:"cache"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	CORSOrigins     []string      `yaml:"cors_origins"`
	MetricsEnabled  bool          `yaml:"metrics_enabled"`
}

// Address returns host:port.
func (s ServerConfig) Address() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// OntologyConfig locates the ontology file.
type OntologyConfig struct {
	Path string `yaml:"path"`
	// Base is the namespace stripped from identifiers.
	Base string `yaml:"base"`
	// Format overrides extension-based detection.
	Format string `yaml:"format"`
}

// StorageConfig selects the triple store.
type StorageConfig struct {
	Engine  string `yaml:"engine"`
	DataDir string `yaml:"data_dir"`
}

// SearchConfig tunes entity search.
type SearchConfig struct {
	Limit        int    `yaml:"limit"`
	DefaultClass string `yaml:"default_class"`
	// SummaryFields overrides the property candidates of a summary field.
	SummaryFields map[string][]string `yaml:"summary_fields"`
}

// CacheConfig tunes the result cache.
type CacheConfig struct {
	Enabled bool          `yaml:"enabled"`
	MaxSize int           `yaml:"max_size"`
	TTL     time.Duration `yaml:"ttl"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level       string `yaml:"level"`
	Format      string `yaml:"format"`
	File        string `yaml:"file"`
	MaxSizeMB   int    `yaml:"max_size_mb"`
	MaxBackups  int    `yaml:"max_backups"`
	MaxAgeDays  int    `yaml:"max_age_days"`
	Compress    bool   `yaml:"compress"`
	ServiceName string `yaml:"service_name"`
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "127.0.0.1",
			Port:            8000,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    60 * time.Second,
			IdleTimeout:     120 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			CORSOrigins:     []string{"*"},
			MetricsEnabled:  true,
		},
		Ontology: OntologyConfig{
			Path: "ontologia.rdf",
			Base: vocabulary.DefaultBase,
		},
		Storage: StorageConfig{
			Engine: EngineMemory,
		},
		Search: SearchConfig{
			Limit:        20,
			DefaultClass: "Procesador",
		},
		Cache: CacheConfig{
			Enabled: true,
			MaxSize: 1000,
		},
		Logging: LoggingConfig{
			Level:       "info",
			Format:      "json",
			MaxSizeMB:   100,
			MaxBackups:  3,
			MaxAgeDays:  28,
			ServiceName: "ontologia",
		},
	}
}

// LoadFile reads a YAML file on top of the defaults. Keys missing from the
// file keep their default value.
func LoadFile(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return cfg, nil
}

// Load builds the configuration from the defaults, the YAML file at path
// (skipped when path is empty) and the environment. A .env file in the
// working directory is loaded into the environment first; variables already
// set are not overwritten.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	cfg := DefaultConfig()
	if path != "" {
		var err error
		if cfg, err = LoadFile(path); err != nil {
			return nil, err
		}
	}
	cfg.ApplyEnv()
	return cfg, nil
}

// ApplyEnv overrides fields with the ONTOLOGIA_* variables that are set.
func (c *Config) ApplyEnv() {
	c.Server.Host = getEnv("HOST", c.Server.Host)
	c.Server.Port = getEnvInt("PORT", c.Server.Port)
	c.Server.ReadTimeout = getEnvDuration("READ_TIMEOUT", c.Server.ReadTimeout)
	c.Server.WriteTimeout = getEnvDuration("WRITE_TIMEOUT", c.Server.WriteTimeout)
	c.Server.IdleTimeout = getEnvDuration("IDLE_TIMEOUT", c.Server.IdleTimeout)
	c.Server.ShutdownTimeout = getEnvDuration("SHUTDOWN_TIMEOUT", c.Server.ShutdownTimeout)
	c.Server.CORSOrigins = getEnvStringSlice("CORS_ORIGINS", c.Server.CORSOrigins)
	c.Server.MetricsEnabled = getEnvBool("METRICS_ENABLED", c.Server.MetricsEnabled)

	c.Ontology.Path = getEnv("ONTOLOGY_PATH", c.Ontology.Path)
	c.Ontology.Base = getEnv("BASE_NAMESPACE", c.Ontology.Base)
	c.Ontology.Format = getEnv("ONTOLOGY_FORMAT", c.Ontology.Format)

	c.Storage.Engine = getEnv("STORAGE_ENGINE", c.Storage.Engine)
	c.Storage.DataDir = getEnv("DATA_DIR", c.Storage.DataDir)

	c.Search.Limit = getEnvInt("SEARCH_LIMIT", c.Search.Limit)
	c.Search.DefaultClass = getEnv("DEFAULT_CLASS", c.Search.DefaultClass)
	for _, kv := range os.Environ() {
		key, val, _ := strings.Cut(kv, "=")
		if !strings.HasPrefix(key, summaryEnvPrefix) || val == "" {
			continue
		}
		field := strings.ToLower(strings.TrimPrefix(key, summaryEnvPrefix))
		if c.Search.SummaryFields == nil {
			c.Search.SummaryFields = make(map[string][]string)
		}
		c.Search.SummaryFields[field] = splitList(val)
	}

	c.Cache.Enabled = getEnvBool("CACHE_ENABLED", c.Cache.Enabled)
	c.Cache.MaxSize = getEnvInt("CACHE_SIZE", c.Cache.MaxSize)
	c.Cache.TTL = getEnvDuration("CACHE_TTL", c.Cache.TTL)

	c.Logging.Level = getEnv("LOG_LEVEL", c.Logging.Level)
	c.Logging.Format = getEnv("LOG_FORMAT", c.Logging.Format)
	c.Logging.File = getEnv("LOG_FILE", c.Logging.File)
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid http port: %d", c.Server.Port)
	}
	if c.Ontology.Path == "" {
		return fmt.Errorf("ontology path is required")
	}
	if c.Ontology.Base == "" {
		return fmt.Errorf("base namespace is required")
	}
	switch c.Ontology.Format {
	case "", storage.FormatRDFXML, storage.FormatTurtle, storage.FormatNTriples:
	default:
		return fmt.Errorf("unsupported ontology format: %q", c.Ontology.Format)
	}
	switch c.Storage.Engine {
	case EngineMemory, EngineBadger:
	default:
		return fmt.Errorf("unknown storage engine: %q", c.Storage.Engine)
	}
	if c.Search.Limit <= 0 {
		return fmt.Errorf("invalid search limit: %d", c.Search.Limit)
	}
	if c.Search.DefaultClass == "" {
		return fmt.Errorf("default class is required")
	}
	if c.Cache.MaxSize < 0 {
		return fmt.Errorf("invalid cache size: %d", c.Cache.MaxSize)
	}
	if c.Cache.TTL < 0 {
		return fmt.Errorf("invalid cache ttl: %v", c.Cache.TTL)
	}
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("invalid log format: %q", c.Logging.Format)
	}
	return nil
}

// String returns a one-line summary suitable for logging.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{HTTP: %s, Ontology: %s, Engine: %s, SearchLimit: %d, Cache: %v}",
		c.Server.Address(),
		c.Ontology.Path,
		c.Storage.Engine,
		c.Search.Limit,
		c.Cache.Enabled,
	)
}

// Helper functions for environment variable parsing. Keys are given without
// EnvPrefix.

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(EnvPrefix + key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(EnvPrefix + key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(EnvPrefix + key); val != "" {
		val = strings.ToLower(val)
		return val == "true" || val == "1" || val == "yes" || val == "on"
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(EnvPrefix + key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
		// Try parsing as seconds
		if secs, err := strconv.Atoi(val); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	return defaultVal
}

func getEnvStringSlice(key string, defaultVal []string) []string {
	if val := os.Getenv(EnvPrefix + key); val != "" {
		if result := splitList(val); len(result) > 0 {
			return result
		}
	}
	return defaultVal
}

func splitList(val string) []string {
	parts := strings.Split(val, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
