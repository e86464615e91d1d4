package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaults(t *testing.T) {
	cfg := Default()
	if cfg.MaxRounds != 6 {
		t.Errorf("MaxRounds = %d, want 6", cfg.MaxRounds)
	}
	if cfg.MaxRetries != 2 {
		t.Errorf("MaxRetries = %d, want 2", cfg.MaxRetries)
	}
	if cfg.LLM == "" || cfg.Model == "" {
		t.Errorf("provider defaults missing: %q / %q", cfg.LLM, cfg.Model)
	}
	if cfg.CheckpointDir == "" {
		t.Error("CheckpointDir default missing")
	}
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
llm: openai
model: gpt-4o
max_rounds: 10
checkpoint_dir: /tmp/threads
additional_mcp_servers:
  - name: files
    command: mcp-files
    args: ["--root", "/srv"]
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.LLM != "openai" || cfg.Model != "gpt-4o" {
		t.Errorf("provider = %q/%q, want openai/gpt-4o", cfg.LLM, cfg.Model)
	}
	if cfg.MaxRounds != 10 {
		t.Errorf("MaxRounds = %d, want 10", cfg.MaxRounds)
	}
	// Keys absent from the file keep their defaults.
	if cfg.MaxRetries != 2 {
		t.Errorf("MaxRetries = %d, want default 2", cfg.MaxRetries)
	}
	if cfg.CheckpointDir != "/tmp/threads" {
		t.Errorf("CheckpointDir = %q", cfg.CheckpointDir)
	}
	if len(cfg.AdditionalMCPServers) != 1 || cfg.AdditionalMCPServers[0].Command != "mcp-files" {
		t.Errorf("mcp servers = %+v", cfg.AdditionalMCPServers)
	}
}

func TestLoadFileMissing(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("missing explicit config file should be an error")
	}
}

func TestLoadFileRejectsBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("llm: [unclosed"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := LoadFile(path); err == nil {
		t.Error("malformed yaml accepted")
	}
}
