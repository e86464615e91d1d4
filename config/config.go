// Package config loads Careline settings from YAML files. Settings are read
// from ~/.careline/config.yaml first, then overridden by ./.careline/
// config.yaml in the working directory, so a project checkout can pin its
// own model or checkpoint location without touching the user-wide file.
package config

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/careline/careline/errors"
)

// MCPServer describes one external tool server started over stdio.
type MCPServer struct {
	Name    string   `yaml:"name"`
	Command string   `yaml:"command"`
	Args    []string `yaml:"args,omitempty"`
}

// Config is the full application configuration.
type Config struct {
	// LLM selects the provider: anthropic, openai, gemini, or bedrock.
	LLM     string `yaml:"llm"`
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url,omitempty"`

	MaxRounds           int `yaml:"max_rounds"`
	MaxRetries          int `yaml:"max_retries"`
	ModelTimeoutSeconds int `yaml:"model_timeout_seconds"`
	ToolTimeoutSeconds  int `yaml:"tool_timeout_seconds"`

	CheckpointDir  string   `yaml:"checkpoint_dir"`
	KnowledgePaths []string `yaml:"knowledge_paths,omitempty"`

	HTTPAddr string `yaml:"http_addr"`

	AdditionalMCPServers []MCPServer `yaml:"additional_mcp_servers,omitempty"`
}

// Default returns the configuration used when no file overrides a value.
func Default() *Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return &Config{
		LLM:                 "anthropic",
		Model:               "claude-sonnet-4-20250514",
		MaxRounds:           6,
		MaxRetries:          2,
		ModelTimeoutSeconds: 60,
		ToolTimeoutSeconds:  30,
		CheckpointDir:       filepath.Join(home, ".careline", "threads"),
		KnowledgePaths:      []string{"data/*.json"},
		HTTPAddr:            ":8087",
	}
}

// Load builds the effective configuration: defaults, then the user-wide
// file, then the project-local file. Missing files are not errors.
func Load() (*Config, error) {
	cfg := Default()

	if home, err := os.UserHomeDir(); err == nil {
		if err := cfg.mergeFile(filepath.Join(home, ".careline", "config.yaml")); err != nil {
			return nil, err
		}
	}
	if err := cfg.mergeFile(filepath.Join(".careline", "config.yaml")); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile builds the effective configuration from defaults plus a single
// explicit file, which must exist.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	if _, err := os.Stat(path); err != nil {
		return nil, errors.Wrapf(err, "config file %s", path)
	}
	if err := cfg.mergeFile(path); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.Wrapf(err, "reading config %s", path)
	}
	// Unmarshal into the existing struct so absent keys keep their prior
	// values.
	if err := yaml.Unmarshal(data, c); err != nil {
		return errors.Wrapf(err, "parsing config %s", path)
	}
	return nil
}
