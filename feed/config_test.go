package feed

import (
	"os"
	"path/filepath"
	"testing"
)

func validConfig() Config {
	return Config{
		Source:    "shards.txt",
		BatchSize: 8,
		Outputs:   []string{"data", "label"},
	}
}

func TestConfigValidate(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing source", func(c *Config) { c.Source = "" }},
		{"zero batch size", func(c *Config) { c.BatchSize = 0 }},
		{"negative batch size", func(c *Config) { c.BatchSize = -4 }},
		{"no outputs", func(c *Config) { c.Outputs = nil }},
		{"empty output name", func(c *Config) { c.Outputs = []string{"data", ""} }},
		{"duplicate output name", func(c *Config) { c.Outputs = []string{"data", "data"} }},
		{"negative crop", func(c *Config) {
			c.Image.Enabled = true
			c.Image.CropSize = -1
		}},
		{"bad mean length", func(c *Config) {
			c.Image.Enabled = true
			c.Image.Mean = []float32{1, 2}
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestLoadConfigYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "feed.yaml")
	doc := `
source: /data/shards.txt
batch_size: 16
shuffle: true
outputs: [data, label]
seed: 42
image:
  enabled: true
  crop_size: 24
  mirror: true
  mean: [104, 117, 123]
`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Source != "/data/shards.txt" || cfg.BatchSize != 16 || !cfg.Shuffle || cfg.Seed != 42 {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if len(cfg.Outputs) != 2 || cfg.Outputs[0] != "data" || cfg.Outputs[1] != "label" {
		t.Fatalf("unexpected outputs: %v", cfg.Outputs)
	}
	if !cfg.Image.Enabled || cfg.Image.CropSize != 24 || !cfg.Image.Mirror {
		t.Fatalf("unexpected image config: %+v", cfg.Image)
	}
	if len(cfg.Image.Mean) != 3 || cfg.Image.Mean[0] != 104 {
		t.Fatalf("unexpected mean: %v", cfg.Image.Mean)
	}
}

func TestLoadConfigInvalid(t *testing.T) {
	dir := t.TempDir()

	bad := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(bad, []byte("source: [not, a, string"), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	if _, err := LoadConfig(bad); err == nil {
		t.Fatal("expected error for malformed YAML")
	}

	invalid := filepath.Join(dir, "invalid.yaml")
	if err := os.WriteFile(invalid, []byte("batch_size: 8\n"), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	if _, err := LoadConfig(invalid); err == nil {
		t.Fatal("expected validation error for config without source")
	}

	if _, err := LoadConfig(filepath.Join(dir, "nope.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}
