package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
)

func setArgs(t *testing.T, args ...string) {
	t.Helper()
	old := os.Args
	os.Args = append([]string{"docqa"}, args...)
	t.Cleanup(func() { os.Args = old })
}

func newFlags() *pflag.FlagSet {
	return pflag.NewFlagSet("test", pflag.ContinueOnError)
}

func TestLoadDefaults(t *testing.T) {
	setArgs(t)
	os.Unsetenv(envPrefix + "_CONFIG")

	cfg, err := Load("", newFlags())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Provider != "stub" {
		t.Errorf("expected stub provider default, got %q", cfg.Provider)
	}
	if cfg.ChunkSize != 1000 || cfg.ChunkOverlap != 200 {
		t.Errorf("unexpected chunk defaults: size %d overlap %d", cfg.ChunkSize, cfg.ChunkOverlap)
	}
	if cfg.TopK != 5 {
		t.Errorf("expected topK 5, got %d", cfg.TopK)
	}
	if cfg.ScoreThreshold != 0.25 {
		t.Errorf("expected threshold 0.25, got %v", cfg.ScoreThreshold)
	}
	if cfg.Port != 8080 {
		t.Errorf("expected port 8080, got %d", cfg.Port)
	}
}

func TestLoadYAMLOverridesDefaults(t *testing.T) {
	setArgs(t)
	os.Unsetenv(envPrefix + "_CONFIG")

	path := filepath.Join(t.TempDir(), "docqa.yaml")
	yaml := `
chunkSize: 500
chunkOverlap: 100
topK: 3
seedURLs:
  - https://docs.example.com/
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path, newFlags())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.ChunkSize != 500 || cfg.ChunkOverlap != 100 {
		t.Errorf("yaml not applied: size %d overlap %d", cfg.ChunkSize, cfg.ChunkOverlap)
	}
	if cfg.TopK != 3 {
		t.Errorf("expected topK 3, got %d", cfg.TopK)
	}
	if len(cfg.SeedURLs) != 1 || cfg.SeedURLs[0] != "https://docs.example.com/" {
		t.Errorf("seed URLs not applied: %v", cfg.SeedURLs)
	}
}

func TestLoadEnvOverridesYAML(t *testing.T) {
	setArgs(t)
	os.Unsetenv(envPrefix + "_CONFIG")

	path := filepath.Join(t.TempDir(), "docqa.yaml")
	if err := os.WriteFile(path, []byte("topK: 3\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("DOCQA_TOP_K", "7")

	cfg, err := Load(path, newFlags())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.TopK != 7 {
		t.Errorf("expected env to win over yaml, got topK %d", cfg.TopK)
	}
}

func TestLoadFlagsOverrideEnv(t *testing.T) {
	setArgs(t, "--top-k", "9")
	os.Unsetenv(envPrefix + "_CONFIG")
	t.Setenv("DOCQA_TOP_K", "7")

	cfg, err := Load("", newFlags())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.TopK != 9 {
		t.Errorf("expected flag to win over env, got topK %d", cfg.TopK)
	}
}

func TestLoadMissingConfigFile(t *testing.T) {
	setArgs(t)
	if _, err := Load("/nonexistent/docqa.yaml", newFlags()); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestValidateRejectsBadGeometry(t *testing.T) {
	setArgs(t)
	os.Unsetenv(envPrefix + "_CONFIG")
	t.Setenv("DOCQA_CHUNK_SIZE", "100")
	t.Setenv("DOCQA_CHUNK_OVERLAP", "100")

	if _, err := Load("", newFlags()); err == nil {
		t.Fatal("expected error when overlap >= chunk size")
	}
}

func TestValidateRejectsMissingDatabase(t *testing.T) {
	setArgs(t)
	os.Unsetenv(envPrefix + "_CONFIG")
	t.Setenv("DOCQA_DB_URL", "")

	if _, err := Load("", newFlags()); err == nil {
		t.Fatal("expected error when database URL is empty")
	}
}

func TestValidateRejectsBadThreshold(t *testing.T) {
	setArgs(t)
	os.Unsetenv(envPrefix + "_CONFIG")
	t.Setenv("DOCQA_SCORE_THRESHOLD", "1.5")

	if _, err := Load("", newFlags()); err == nil {
		t.Fatal("expected error for threshold outside [0,1]")
	}
}
