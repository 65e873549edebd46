package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// clearEnv unsets every variable ApplyEnv reads so host settings do not leak into tests.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"BUILDCOST_HOST", "BUILDCOST_PORT", "BUILDCOST_DEBUG", "BUILDCOST_DB_PATH", "BUILDCOST_BLOB_DIR",
		"BUILDCOST_INDEX_PATH", "BUILDCOST_PROVIDER", "BUILDCOST_MODEL", "BUILDCOST_RATES_FILE",
		"BUILDCOST_COUNTRY", "BUILDCOST_JWT_SECRET", "BUILDCOST_LOG_FILE",
		"OPENAI_API_KEY", "ANTHROPIC_API_KEY", "GOOGLE_API_KEY",
	} {
		if v, ok := os.LookupEnv(key); ok {
			os.Unsetenv(key)
			t.Cleanup(func() { os.Setenv(key, v) })
		}
	}
}

func TestLoad(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  host: "127.0.0.1"
  port: 9000
storage:
  database_path: "test.db"
pipeline:
  file_timeout: 30s
  workers: 2
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Host != "127.0.0.1" || cfg.Server.Port != 9000 {
		t.Errorf("unexpected server config: %+v", cfg.Server)
	}
	if cfg.Storage.DatabasePath == "" {
		t.Error("database_path should be set")
	}
	if cfg.Pipeline.FileTimeout != 30*time.Second || cfg.Pipeline.Workers != 2 {
		t.Errorf("unexpected pipeline config: %+v", cfg.Pipeline)
	}
	if cfg.Pipeline.MaxFileSize != 20<<20 {
		t.Errorf("max_file_size default = %d", cfg.Pipeline.MaxFileSize)
	}
	if cfg.Debug {
		t.Error("debug should default to false when unset")
	}
}

func TestLoad_expandPathDotSlashRelativeToConfigDir(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
storage:
  database_path: "./data/db/projects.db"
  blob_dir: "./data/uploads"
locale:
  rates_file: "./rates.yaml"
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if want := filepath.Join(dir, "data", "db", "projects.db"); cfg.Storage.DatabasePath != want {
		t.Errorf("database_path = %s, want %s", cfg.Storage.DatabasePath, want)
	}
	if want := filepath.Join(dir, "data", "uploads"); cfg.Storage.BlobDir != want {
		t.Errorf("blob_dir = %s, want %s", cfg.Storage.BlobDir, want)
	}
	if want := filepath.Join(dir, "rates.yaml"); cfg.Locale.RatesFile != want {
		t.Errorf("rates_file = %s, want %s", cfg.Locale.RatesFile, want)
	}
}

func TestLoad_envOverlay(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("server:\n  port: 9000\nanalysis:\n  provider: openai\n"), 0600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("BUILDCOST_PORT", "7000")
	t.Setenv("BUILDCOST_DEBUG", "true")
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant")
	t.Setenv("BUILDCOST_PROVIDER", "anthropic")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Port != 7000 || !cfg.Debug {
		t.Errorf("env overlay not applied: port=%d debug=%v", cfg.Server.Port, cfg.Debug)
	}
	p, err := cfg.Analysis.ResolveProvider()
	if err != nil || p != ProviderAnthropic {
		t.Errorf("ResolveProvider() = %q, %v; want anthropic", p, err)
	}
}

func TestLoad_invalidEnvPort(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("debug: false\n"), 0600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("BUILDCOST_PORT", "eighty")
	if _, err := Load(path); err == nil {
		t.Error("expected error for non-numeric BUILDCOST_PORT")
	}
}

func TestLoadDotEnv(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env")
	if err := os.WriteFile(envPath, []byte("GOOGLE_API_KEY=g-key\n"), 0600); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Unsetenv("GOOGLE_API_KEY") })
	if err := LoadDotEnv(envPath, filepath.Join(dir, "missing.env")); err != nil {
		t.Fatal(err)
	}
	cfg, err := Default()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Analysis.GoogleKey != "g-key" {
		t.Errorf("google key = %q", cfg.Analysis.GoogleKey)
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)
	if cfg.Server.Host != "localhost" {
		t.Errorf("default host: got %s", cfg.Server.Host)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("default port: got %d", cfg.Server.Port)
	}
	if cfg.Pipeline.Workers != 4 {
		t.Errorf("default workers: got %d", cfg.Pipeline.Workers)
	}
	if cfg.Pipeline.FileTimeout != 90*time.Second {
		t.Errorf("default file timeout: got %s", cfg.Pipeline.FileTimeout)
	}
	if cfg.Analysis.CacheTTL != time.Hour {
		t.Errorf("default cache ttl: got %s", cfg.Analysis.CacheTTL)
	}
}

func TestResolveProvider(t *testing.T) {
	tests := []struct {
		name    string
		cfg     AnalysisConfig
		want    Provider
		wantErr bool
	}{
		{"no keys is valid", AnalysisConfig{}, ProviderNone, false},
		{"auto picks openai first", AnalysisConfig{OpenAIKey: "o", AnthropicKey: "a", GoogleKey: "g"}, ProviderOpenAI, false},
		{"auto skips missing openai", AnalysisConfig{AnthropicKey: "a", GoogleKey: "g"}, ProviderAnthropic, false},
		{"auto google only", AnalysisConfig{GoogleKey: "g"}, ProviderGoogle, false},
		{"explicit with key", AnalysisConfig{Provider: "google", OpenAIKey: "o", GoogleKey: "g"}, ProviderGoogle, false},
		{"gemini alias", AnalysisConfig{Provider: "Gemini", GoogleKey: "g"}, ProviderGoogle, false},
		{"explicit none ignores keys", AnalysisConfig{Provider: "none", OpenAIKey: "o"}, ProviderNone, false},
		{"explicit without key", AnalysisConfig{Provider: "anthropic", OpenAIKey: "o"}, "", true},
		{"unknown provider", AnalysisConfig{Provider: "watson"}, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.cfg.ResolveProvider()
			if (err != nil) != tt.wantErr {
				t.Fatalf("ResolveProvider() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ResolveProvider() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSave(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "saved.yaml")
	cfg := &Config{
		Server:   ServerConfig{Host: "localhost", Port: 9090},
		Storage:  StorageConfig{DatabasePath: "/tmp/db"},
		Pipeline: PipelineConfig{FileTimeout: 45 * time.Second},
	}
	if err := Save(path, cfg); err != nil {
		t.Fatal(err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Server.Port != 9090 {
		t.Errorf("loaded port: got %d", loaded.Server.Port)
	}
	if loaded.Pipeline.FileTimeout != 45*time.Second {
		t.Errorf("loaded file timeout: got %s", loaded.Pipeline.FileTimeout)
	}
}
