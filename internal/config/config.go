// Package config loads the engram configuration file: which providers
// serve the gate, extract and embedding capabilities, the deduplication
// thresholds, chunking, and retrieval tuning.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Capability names a provider plus the model it should use.
type Capability struct {
	Provider string `yaml:"provider"` // ollama, openai, gemini, anthropic
	Model    string `yaml:"model"`
}

// Config is the full engram configuration.
type Config struct {
	// DataDir holds the SQLite database. Defaults to ~/.engram.
	DataDir string `yaml:"data_dir"`

	Gate    Capability `yaml:"gate"`
	Extract Capability `yaml:"extract"`
	Embed   Capability `yaml:"embed"`

	// ProviderTimeout bounds every external capability call.
	ProviderTimeout time.Duration `yaml:"provider_timeout"`

	Dedup struct {
		// MergeThreshold must stay strictly above RelatedThreshold.
		MergeThreshold   float64 `yaml:"merge_threshold"`
		RelatedThreshold float64 `yaml:"related_threshold"`
	} `yaml:"dedup"`

	Chunking struct {
		Size    int `yaml:"size"`
		Overlap int `yaml:"overlap"`
	} `yaml:"chunking"`

	Retrieval struct {
		Floor  float64 `yaml:"floor"`
		Budget int     `yaml:"budget"` // characters per retrieve call
	} `yaml:"retrieval"`

	Serve struct {
		Addr string `yaml:"addr"`
	} `yaml:"serve"`
}

// Default returns the configuration used when no file exists: local
// Ollama for everything, the thresholds the system was tuned with.
func Default() *Config {
	cfg := &Config{
		Gate:            Capability{Provider: "ollama", Model: "qwen3:4b"},
		Extract:         Capability{Provider: "ollama", Model: "qwen3:8b"},
		Embed:           Capability{Provider: "ollama", Model: "nomic-embed-text"},
		ProviderTimeout: 60 * time.Second,
	}
	cfg.Dedup.MergeThreshold = 0.85
	cfg.Dedup.RelatedThreshold = 0.60
	cfg.Chunking.Size = 1500
	cfg.Chunking.Overlap = 200
	cfg.Retrieval.Floor = 0.40
	cfg.Retrieval.Budget = 4000
	cfg.Serve.Addr = "127.0.0.1:8094"
	if home, err := os.UserHomeDir(); err == nil {
		cfg.DataDir = filepath.Join(home, ".engram")
	}
	return cfg
}

// Load reads a YAML config file over the defaults. A missing file is not
// an error; the defaults stand.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path) // #nosec G304
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the cross-field constraints a YAML schema cannot.
func (c *Config) Validate() error {
	if c.Dedup.MergeThreshold <= c.Dedup.RelatedThreshold {
		return fmt.Errorf("dedup.merge_threshold (%.2f) must be strictly above dedup.related_threshold (%.2f)",
			c.Dedup.MergeThreshold, c.Dedup.RelatedThreshold)
	}
	if c.Dedup.RelatedThreshold <= c.Retrieval.Floor {
		return fmt.Errorf("dedup.related_threshold (%.2f) should sit above retrieval.floor (%.2f); dedup wants restatements, retrieval wants neighbors",
			c.Dedup.RelatedThreshold, c.Retrieval.Floor)
	}
	if c.Chunking.Overlap*2 >= c.Chunking.Size {
		return fmt.Errorf("chunking.overlap (%d) must be smaller than half of chunking.size (%d)",
			c.Chunking.Overlap, c.Chunking.Size)
	}
	if c.Retrieval.Budget <= 0 {
		return fmt.Errorf("retrieval.budget must be positive")
	}
	for name, cap := range map[string]Capability{"gate": c.Gate, "extract": c.Extract, "embed": c.Embed} {
		switch cap.Provider {
		case "ollama", "openai", "gemini", "anthropic", "stub":
		default:
			return fmt.Errorf("%s: unknown provider %q", name, cap.Provider)
		}
	}
	// Anthropic has no embeddings API; catching it here keeps a permanent
	// misconfiguration from surfacing as a retryable provider failure.
	if c.Embed.Provider == "anthropic" {
		return fmt.Errorf("embed: provider anthropic does not serve embeddings")
	}
	return nil
}

// DBPath returns the SQLite database location.
func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, "memories.db")
}
