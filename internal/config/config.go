package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Default values for a fresh deployment. The embedding dimension matches
// ArcFace-style face embeddings; the threshold is a cosine distance.
const (
	DefaultDataDir        = "data"
	DefaultEmbeddingDim   = 512
	DefaultMatchThreshold = 0.55
	DefaultExtractorURL   = "http://localhost:8000"
	DefaultWebHost        = "0.0.0.0"
	DefaultWebPort        = 8080
)

type Config struct {
	Data      DataConfig      `yaml:"data"`
	Matching  MatchingConfig  `yaml:"matching"`
	Extractor ExtractorConfig `yaml:"extractor"`
	Web       WebConfig       `yaml:"web"`
}

type DataConfig struct {
	Dir string `yaml:"dir"` // directory holding both durable artifacts
}

// DBPath returns the location of the relational metadata database.
func (c *DataConfig) DBPath() string {
	return filepath.Join(c.Dir, "gallery.db")
}

// IndexPath returns the location of the face vector index.
func (c *DataConfig) IndexPath() string {
	return filepath.Join(c.Dir, "faces.index")
}

type MatchingConfig struct {
	EmbeddingDim int     `yaml:"embedding_dim"` // fixed at deployment time
	Threshold    float64 `yaml:"threshold"`     // cosine distance, lower is stricter
}

type ExtractorConfig struct {
	URL string `yaml:"url"` // base URL of the face embedding service
}

type WebConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envFloat reads an environment variable and parses it as a positive float.
// Returns the default value if the env var is unset, empty, or invalid.
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f > 0 {
		return f
	}
	return defaultVal
}

func envString(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

// Load builds the configuration from defaults, an optional YAML file
// (FOTOTECA_CONFIG) and environment variable overrides, in that order.
func Load() (*Config, error) {
	cfg := &Config{
		Data: DataConfig{Dir: DefaultDataDir},
		Matching: MatchingConfig{
			EmbeddingDim: DefaultEmbeddingDim,
			Threshold:    DefaultMatchThreshold,
		},
		Extractor: ExtractorConfig{URL: DefaultExtractorURL},
		Web:       WebConfig{Host: DefaultWebHost, Port: DefaultWebPort},
	}

	if path := os.Getenv("FOTOTECA_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}

	cfg.Data.Dir = envString("FOTOTECA_DATA_DIR", cfg.Data.Dir)
	cfg.Matching.EmbeddingDim = envInt("FOTOTECA_EMBEDDING_DIM", cfg.Matching.EmbeddingDim)
	cfg.Matching.Threshold = envFloat("FOTOTECA_MATCH_THRESHOLD", cfg.Matching.Threshold)
	cfg.Extractor.URL = envString("FOTOTECA_EXTRACTOR_URL", cfg.Extractor.URL)
	cfg.Web.Host = envString("FOTOTECA_WEB_HOST", cfg.Web.Host)
	cfg.Web.Port = envInt("FOTOTECA_WEB_PORT", cfg.Web.Port)

	return cfg, nil
}
