package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
	if cfg.Classifier.ConfidenceThreshold != 0.7 {
		t.Fatalf("unexpected default threshold %v", cfg.Classifier.ConfidenceThreshold)
	}
	if cfg.Engine.MaxIterations != 10 {
		t.Fatalf("unexpected default max iterations %d", cfg.Engine.MaxIterations)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing db path", func(c *Config) { c.Database.Path = "" }},
		{"threshold above 1", func(c *Config) { c.Classifier.ConfidenceThreshold = 1.5 }},
		{"zero iterations", func(c *Config) { c.Engine.MaxIterations = 0 }},
		{"empty completion token", func(c *Config) { c.Engine.CompletionToken = "" }},
		{"bad port", func(c *Config) { c.Server.Port = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestLoaderReadsConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
classifier:
  confidence_threshold: 0.8
engine:
  max_iterations: 5
vault:
  path: ` + filepath.Join(dir, "vault") + `
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	loader := NewLoader()
	loader.SetConfigFile(path)
	cfg, err := loader.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Classifier.ConfidenceThreshold != 0.8 {
		t.Fatalf("expected threshold 0.8, got %v", cfg.Classifier.ConfidenceThreshold)
	}
	if cfg.Engine.MaxIterations != 5 {
		t.Fatalf("expected 5 iterations, got %d", cfg.Engine.MaxIterations)
	}
	// Untouched keys keep defaults.
	if cfg.Engine.CompletionToken != "TASK_COMPLETE" {
		t.Fatalf("expected default completion token, got %q", cfg.Engine.CompletionToken)
	}
}

func TestLoaderMissingExplicitFileFails(t *testing.T) {
	loader := NewLoader()
	loader.SetConfigFile(filepath.Join(t.TempDir(), "nope.yaml"))
	if _, err := loader.Load(); err == nil {
		t.Fatal("expected error for missing explicit config file")
	}
}
