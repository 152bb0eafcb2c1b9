package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("SEGMENT_MODE", "")
	t.Setenv("AGENT_MAX_STEPS", "")

	cfg := Load()
	if cfg.Segmentation.Mode != SegmentByPage {
		t.Fatalf("expected page mode by default, got %q", cfg.Segmentation.Mode)
	}
	if cfg.Agent.MaxSteps != 15 {
		t.Fatalf("expected 15 max steps, got %d", cfg.Agent.MaxSteps)
	}
	if cfg.Segmentation.ChunkSize != 1000 || cfg.Segmentation.ChunkOverlap != 100 {
		t.Fatalf("unexpected chunk defaults: %+v", cfg.Segmentation)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("SEGMENT_MODE", "SECTION")
	t.Setenv("AGENT_MAX_STEPS", "7")
	t.Setenv("AGENT_PARALLEL", "true")
	t.Setenv("VECTOR_STORE", "sqlite")

	cfg := Load()
	if cfg.Segmentation.Mode != SegmentBySection {
		t.Fatalf("expected section mode, got %q", cfg.Segmentation.Mode)
	}
	if cfg.Agent.MaxSteps != 7 || !cfg.Agent.Parallel {
		t.Fatalf("unexpected agent config: %+v", cfg.Agent)
	}
	if cfg.VectorStore.Backend != BackendSQLite {
		t.Fatalf("expected sqlite backend, got %q", cfg.VectorStore.Backend)
	}
}

func TestLoadIgnoresMalformedNumbers(t *testing.T) {
	t.Setenv("AGENT_MAX_STEPS", "lots")
	if got := Load().Agent.MaxSteps; got != 15 {
		t.Fatalf("expected fallback 15, got %d", got)
	}
}

func TestLoadFileOverlaysValues(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := "segmentation:\n  mode: Section\nagent:\n  max_steps: 4\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	base := Load()
	cfg, err := LoadFile(path, base)
	if err != nil {
		t.Fatalf("load file: %v", err)
	}
	if cfg.Segmentation.Mode != SegmentBySection {
		t.Fatalf("expected section mode, got %q", cfg.Segmentation.Mode)
	}
	if cfg.Agent.MaxSteps != 4 {
		t.Fatalf("expected 4 steps, got %d", cfg.Agent.MaxSteps)
	}
	if cfg.Segmentation.ChunkSize != base.Segmentation.ChunkSize {
		t.Fatalf("expected chunk size to keep base value")
	}
}

func TestLoadFileMissingKeepsBase(t *testing.T) {
	base := Load()
	cfg, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml"), base)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Agent != base.Agent {
		t.Fatalf("expected base config back")
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := map[string]func(*Config){
		"mode":    func(c *Config) { c.Segmentation.Mode = "paragraph" },
		"backend": func(c *Config) { c.VectorStore.Backend = "chroma" },
		"overlap": func(c *Config) { c.Segmentation.ChunkOverlap = c.Segmentation.ChunkSize },
		"steps":   func(c *Config) { c.Agent.MaxSteps = 0 },
		"dim":     func(c *Config) { c.Embeddings.Dimension = 0 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Load()
			mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}
