// Package config loads the operator configuration from config/<env>.yaml.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/kailas-cloud/omhash/internal/geo"
	"github.com/kailas-cloud/omhash/internal/mapping"
	"github.com/kailas-cloud/omhash/internal/query"
)

// Database drivers.
const (
	DriverRedis  = "redis"
	DriverMemory = "memory"
	DriverBolt   = "bolt"
)

// Config holds the omhash configuration.
type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Database  DatabaseConfig  `yaml:"database"`
	Index     IndexConfig     `yaml:"index"`
	Mapping   MappingConfig   `yaml:"mapping"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level" validate:"omitempty,oneof=debug info warn error"` // default: determined by env
}

// HTTPConfig holds admin server settings.
type HTTPConfig struct {
	Addr            string   `yaml:"addr" validate:"required,hostname_port"`
	ReadTimeoutSec  int      `yaml:"read_timeout_sec" validate:"gte=1"`
	WriteTimeoutSec int      `yaml:"write_timeout_sec" validate:"gte=1"`
	ShutdownSec     int      `yaml:"shutdown_timeout_sec" validate:"gte=1"`
	APIKeys         []string `yaml:"api_keys"` // empty disables authentication
}

// DatabaseConfig selects and configures the hash store.
type DatabaseConfig struct {
	Driver           string   `yaml:"driver" validate:"oneof=redis memory bolt"`
	Addrs            []string `yaml:"addrs" validate:"required_if=Driver redis,dive,hostname_port"`
	Password         string   `yaml:"password"`
	DB               int      `yaml:"db" validate:"gte=0,lte=15"`
	Path             string   `yaml:"path" validate:"required_if=Driver bolt"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec" validate:"gte=1"`
}

// IndexConfig holds index creation settings.
type IndexConfig struct {
	CreationMode    string `yaml:"creation_mode" validate:"oneof=skip_if_exist drop_and_recreate skip_always"`
	HNSWM           int    `yaml:"hnsw_m" validate:"gte=2"`
	HNSWEFConstruct int    `yaml:"hnsw_ef_construction" validate:"gte=1"`
}

// MappingConfig holds converter and query settings.
type MappingConfig struct {
	MaxDepth          int     `yaml:"max_depth" validate:"gte=1,lte=64"`
	GeoEqualityRadius float64 `yaml:"geo_equality_radius" validate:"gt=0"`
	GeoUnit           string  `yaml:"geo_unit" validate:"oneof=m km mi ft"`
}

// EmbeddingConfig holds the vectorizer settings. An empty model disables it.
type EmbeddingConfig struct {
	Provider    string `yaml:"provider"`
	APIKey      string `yaml:"api_key" validate:"required_with=Model"`
	BaseURL     string `yaml:"base_url" validate:"omitempty,url"`
	Model       string `yaml:"model"`
	Dimensions  int    `yaml:"dimensions" validate:"gte=0"`
	CacheTTLSec int    `yaml:"cache_ttl_sec" validate:"gte=0"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}
	return Parse(data)
}

// Parse decodes YAML, expands ${VAR} references, applies defaults and validates.
func Parse(data []byte) (Config, error) {
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = ":8080"
	}
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 10
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Database.Driver == "" {
		c.Database.Driver = DriverRedis
	}
	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 10
	}
	if c.Index.CreationMode == "" {
		c.Index.CreationMode = mapping.SkipIfExist.String()
	}
	if c.Index.HNSWM <= 0 {
		c.Index.HNSWM = 16
	}
	if c.Index.HNSWEFConstruct <= 0 {
		c.Index.HNSWEFConstruct = 200
	}
	if c.Mapping.MaxDepth <= 0 {
		c.Mapping.MaxDepth = 16
	}
	if c.Mapping.GeoEqualityRadius <= 0 {
		c.Mapping.GeoEqualityRadius = query.DefaultGeoEqualityRadius.Value
	}
	if c.Mapping.GeoUnit == "" {
		c.Mapping.GeoUnit = string(query.DefaultGeoEqualityRadius.Unit)
	}
	if c.Embedding.Provider == "" {
		c.Embedding.Provider = "openai"
	}
}

// Validate checks struct tags, then cross-field rules.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return errors.New(strings.Join(msgs, "; "))
		}
		return err
	}
	if c.Database.Driver == DriverRedis && c.Database.DB != 0 && len(c.Database.Addrs) > 1 {
		return fmt.Errorf("database.db must be 0 with %d cluster addrs", len(c.Database.Addrs))
	}
	return nil
}

// CreationMode returns the parsed index creation mode.
func (c *Config) CreationMode() mapping.CreationMode {
	m, _ := mapping.ParseCreationMode(c.Index.CreationMode)
	return m
}

// GeoEquality returns the radius used by geo equality predicates.
func (c *Config) GeoEquality() query.Distance {
	return query.Distance{Value: c.Mapping.GeoEqualityRadius, Unit: geo.Unit(c.Mapping.GeoUnit)}
}

// CacheTTL returns the embedding cache expiry.
func (c *EmbeddingConfig) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSec) * time.Second
}

// Enabled reports whether a vectorizer is configured.
func (c *EmbeddingConfig) Enabled() bool {
	return c.Model != ""
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// Relative to the source file, for tests run from package dirs.
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
