package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Scoring.Threshold != 0.05 {
		t.Errorf("expected Threshold=0.05, got %f", cfg.Scoring.Threshold)
	}
	if want := CalibrationKey(cfg.Embedding.Model, cfg.Index.Metric); cfg.Scoring.CalibratedFor != want {
		t.Errorf("expected CalibratedFor=%s, got %s", want, cfg.Scoring.CalibratedFor)
	}
	if cfg.Index.Name != "normal_patterns" {
		t.Errorf("expected Index.Name=normal_patterns, got %s", cfg.Index.Name)
	}
	if cfg.Index.Metric != "l2" {
		t.Errorf("expected Metric=l2, got %s", cfg.Index.Metric)
	}
	if cfg.Replay.Pace != 500*time.Millisecond {
		t.Errorf("expected Pace=500ms, got %s", cfg.Replay.Pace)
	}
	if cfg.Sink.IdleWindow != 3*time.Second {
		t.Errorf("expected IdleWindow=3s, got %s", cfg.Sink.IdleWindow)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate, got %v", err)
	}
}

func TestLoad_NonExistent(t *testing.T) {
	cfg, err := Load("/nonexistent/path/config.yaml")
	if err != nil {
		t.Errorf("expected no error for non-existent file, got %v", err)
	}
	if cfg == nil {
		t.Error("expected default config, got nil")
	}
}

func TestLoad_ValidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "sentry.yaml")

	content := `
scoring:
  threshold: 0.3
index:
  metric: cosine
replay:
  pace: 250ms
escalation:
  timeout: 2s
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Scoring.Threshold != 0.3 {
		t.Errorf("expected Threshold=0.3, got %f", cfg.Scoring.Threshold)
	}
	if cfg.Index.Metric != "cosine" {
		t.Errorf("expected Metric=cosine, got %s", cfg.Index.Metric)
	}
	if cfg.Replay.Pace != 250*time.Millisecond {
		t.Errorf("expected Pace=250ms, got %s", cfg.Replay.Pace)
	}
	if cfg.Escalation.Timeout != 2*time.Second {
		t.Errorf("expected escalation timeout 2s, got %s", cfg.Escalation.Timeout)
	}
	// untouched sections keep defaults
	if cfg.Index.Name != "normal_patterns" {
		t.Errorf("expected default index name, got %s", cfg.Index.Name)
	}
}

func TestLoadFromDir(t *testing.T) {
	tmpDir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(tmpDir, ".sentry"), 0755); err != nil {
		t.Fatal(err)
	}

	content := `
sink:
  path: out/stream.csv
`
	if err := os.WriteFile(filepath.Join(tmpDir, ".sentry", "config.yaml"), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromDir(tmpDir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Sink.Path != "out/stream.csv" {
		t.Errorf("expected Sink.Path=out/stream.csv, got %s", cfg.Sink.Path)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"negative threshold", func(c *Config) { c.Scoring.Threshold = -1 }, true},
		{"unknown metric", func(c *Config) { c.Index.Metric = "manhattan" }, true},
		{"empty index name", func(c *Config) { c.Index.Name = "" }, true},
		{"zero escalation timeout", func(c *Config) { c.Escalation.Timeout = 0 }, true},
		{"zero timeout with escalation off", func(c *Config) {
			c.Escalation.Enabled = false
			c.Escalation.Timeout = 0
		}, false},
		{"zero pace", func(c *Config) { c.Replay.Pace = 0 }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr && err == nil {
				t.Error("expected validation error")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected validation error: %v", err)
			}
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sentry.yaml")
	cfg := DefaultConfig()
	cfg.Scoring.Threshold = 0.42
	cfg.Scoring.CalibratedFor = CalibrationKey("all-minilm", "l2")

	if err := cfg.Save(path); err != nil {
		t.Fatal(err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Scoring.Threshold != 0.42 {
		t.Errorf("expected Threshold=0.42, got %f", loaded.Scoring.Threshold)
	}
	if loaded.Scoring.CalibratedFor != "all-minilm@l2" {
		t.Errorf("expected CalibratedFor=all-minilm@l2, got %s", loaded.Scoring.CalibratedFor)
	}
	if loaded.Replay.Pace != cfg.Replay.Pace {
		t.Errorf("expected Pace=%s, got %s", cfg.Replay.Pace, loaded.Replay.Pace)
	}
}

func TestIndexDBPath(t *testing.T) {
	path := IndexDBPath("/home/user/project")
	expected := filepath.Join("/home/user/project", ".sentry", "index.db")
	if path != expected {
		t.Errorf("expected %s, got %s", expected, path)
	}
}

func TestResolvePath(t *testing.T) {
	if got := ResolvePath("/srv", "data/a.txt"); got != filepath.Join("/srv", "data/a.txt") {
		t.Errorf("unexpected relative resolution: %s", got)
	}
	if got := ResolvePath("/srv", "/abs/a.txt"); got != "/abs/a.txt" {
		t.Errorf("absolute path should be kept, got %s", got)
	}
}
