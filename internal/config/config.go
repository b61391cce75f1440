package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the kgraph API configuration.
type Config struct {
	HTTP    HTTPConfig    `yaml:"http"`
	Auth    AuthConfig    `yaml:"auth"`
	Graph   GraphConfig   `yaml:"graph"`
	LLM     LLMConfig     `yaml:"llm"`
	Vector  VectorConfig  `yaml:"vector"`
	Ingest  IngestConfig  `yaml:"ingest"`
	Logging LoggingConfig `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// GraphConfig holds knowledge-graph settings. Workdir must live on a
// mounted volume so the graph topology survives redeploys.
type GraphConfig struct {
	Workdir     string   `yaml:"workdir"`
	EntityTypes []string `yaml:"entity_types"`
	MaxDepth    int      `yaml:"max_depth"`
}

// LLMConfig holds LLM and embedding provider settings.
type LLMConfig struct {
	APIKey         string `yaml:"api_key"`
	BaseURL        string `yaml:"base_url"`
	Model          string `yaml:"model"`
	EmbeddingModel string `yaml:"embedding_model"`
	Dimensions     int    `yaml:"dimensions"`
}

// VectorConfig holds vector database settings.
type VectorConfig struct {
	Driver           string           `yaml:"driver"` // redis, memory (default: memory)
	Addrs            []string         `yaml:"addrs"`
	Password         string           `yaml:"password"`
	KeyPrefix        string           `yaml:"key_prefix"`
	ReadinessTimeout int              `yaml:"readiness_timeout_sec"`
	Namespaces       NamespacesConfig `yaml:"namespaces"`
}

// NamespacesConfig maps vector domains to storage namespaces.
type NamespacesConfig struct {
	Entities  string `yaml:"entities"`
	Relations string `yaml:"relations"`
	Chunks    string `yaml:"chunks"`
}

// IngestConfig holds ingestion pipeline settings.
type IngestConfig struct {
	QueueSize    int `yaml:"queue_size"`
	MinTextLen   int `yaml:"min_text_len"`
	ChunkSize    int `yaml:"chunk_size"`
	ChunkOverlap int `yaml:"chunk_overlap"`
	TopK         int `yaml:"top_k"`
}

// Load reads configuration from a YAML file by environment name (local, docker, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	// Substitute env variables of the form ${VAR}
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
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		// Query latency is dominated by the LLM round-trip.
		c.HTTP.WriteTimeoutSec = 120
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 30
	}
	if c.Graph.Workdir == "" {
		c.Graph.Workdir = "/app/data"
	}
	if c.Graph.MaxDepth <= 0 {
		c.Graph.MaxDepth = 3
	}
	if c.LLM.Model == "" {
		c.LLM.Model = "gpt-4o-mini"
	}
	if c.LLM.EmbeddingModel == "" {
		c.LLM.EmbeddingModel = "text-embedding-3-small"
	}
	if c.LLM.Dimensions <= 0 {
		c.LLM.Dimensions = 1536
	}
	if c.Vector.Driver == "" {
		c.Vector.Driver = "memory"
	}
	if c.Vector.KeyPrefix == "" {
		c.Vector.KeyPrefix = "kgraph:"
	}
	if c.Vector.ReadinessTimeout <= 0 {
		c.Vector.ReadinessTimeout = 10
	}
	if c.Vector.Namespaces.Entities == "" {
		c.Vector.Namespaces.Entities = "entities"
	}
	if c.Vector.Namespaces.Relations == "" {
		c.Vector.Namespaces.Relations = "relations"
	}
	if c.Vector.Namespaces.Chunks == "" {
		c.Vector.Namespaces.Chunks = "chunks"
	}
	if c.Ingest.QueueSize <= 0 {
		c.Ingest.QueueSize = 64
	}
	if c.Ingest.MinTextLen <= 0 {
		c.Ingest.MinTextLen = 10
	}
	if c.Ingest.ChunkSize <= 0 {
		c.Ingest.ChunkSize = 1000
	}
	if c.Ingest.ChunkOverlap <= 0 {
		c.Ingest.ChunkOverlap = 200
	}
	if c.Ingest.TopK <= 0 {
		c.Ingest.TopK = 5
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	switch c.Vector.Driver {
	case "redis":
		if len(c.Vector.Addrs) == 0 {
			return fmt.Errorf("vector.addrs is required for the redis driver")
		}
	case "memory":
		// no connection settings needed
	default:
		return fmt.Errorf("vector.driver must be \"redis\" or \"memory\", got %q", c.Vector.Driver)
	}
	if c.Ingest.ChunkOverlap >= c.Ingest.ChunkSize {
		return fmt.Errorf("ingest.chunk_overlap (%d) must be smaller than ingest.chunk_size (%d)",
			c.Ingest.ChunkOverlap, c.Ingest.ChunkSize)
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
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
