// Package config provides configuration loading and structs for the buildcost server.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug    bool           `yaml:"debug"`
	Server   ServerConfig   `yaml:"server"`
	Storage  StorageConfig  `yaml:"storage"`
	Analysis AnalysisConfig `yaml:"analysis"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Locale   LocaleConfig   `yaml:"locale"`
	Auth     AuthConfig     `yaml:"auth"`
	Log      LogConfig      `yaml:"log"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	MaxUploadSize  int64         `yaml:"max_upload_size"`
}

// StorageConfig holds paths for the metadata database, uploaded blobs and the search index.
type StorageConfig struct {
	DatabasePath   string `yaml:"database_path"`
	BlobDir        string `yaml:"blob_dir"`
	BleveIndexPath string `yaml:"bleve_index_path"`
}

// AnalysisConfig selects the document analysis provider. Keys are usually supplied via environment.
type AnalysisConfig struct {
	Provider     string        `yaml:"provider"`
	Model        string        `yaml:"model"`
	BaseURL      string        `yaml:"base_url"`
	OpenAIKey    string        `yaml:"openai_api_key"`
	AnthropicKey string        `yaml:"anthropic_api_key"`
	GoogleKey    string        `yaml:"google_api_key"`
	Timeout      time.Duration `yaml:"timeout"`
	MaxTokens    int           `yaml:"max_tokens"`
	CacheTTL     time.Duration `yaml:"cache_ttl"`
}

// PipelineConfig holds document intake limits.
type PipelineConfig struct {
	MaxFileSize int64         `yaml:"max_file_size"`
	Workers     int           `yaml:"workers"`
	FileTimeout time.Duration `yaml:"file_timeout"`
}

// LocaleConfig holds the exchange-rate override file and the default display country.
type LocaleConfig struct {
	RatesFile      string `yaml:"rates_file"`
	WatchRates     bool   `yaml:"watch_rates"`
	DefaultCountry string `yaml:"default_country"`
}

// AuthConfig holds owner identity settings. An empty secret enables the X-User-ID header.
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
	Issuer    string `yaml:"issuer"`
}

// LogConfig holds optional rotating log file settings.
type LogConfig struct {
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// Load reads and parses the config file at path, applies defaults, expands paths, and overlays
// environment variables. Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := ApplyEnv(&cfg); err != nil {
		return nil, err
	}
	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	cfg.Storage.BlobDir = expandPath(cfg.Storage.BlobDir, configDir)
	cfg.Storage.BleveIndexPath = expandPath(cfg.Storage.BleveIndexPath, configDir)
	if cfg.Locale.RatesFile != "" {
		cfg.Locale.RatesFile = expandPath(cfg.Locale.RatesFile, configDir)
	}
	if cfg.Log.File != "" {
		cfg.Log.File = expandPath(cfg.Log.File, configDir)
	}

	return &cfg, nil
}

// Default returns a config built from environment variables and defaults only.
func Default() (*Config, error) {
	var cfg Config
	if err := ApplyEnv(&cfg); err != nil {
		return nil, err
	}
	ApplyDefaults(&cfg)
	return &cfg, nil
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// LoadDotEnv loads variables from .env files into the process environment without overriding
// variables that are already set. Missing files are ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}

// ApplyEnv overlays BUILDCOST_* variables and the provider API keys onto cfg.
func ApplyEnv(cfg *Config) error {
	setString := func(dst *string, key string) {
		if v, ok := os.LookupEnv(key); ok {
			*dst = strings.TrimSpace(v)
		}
	}
	setString(&cfg.Server.Host, "BUILDCOST_HOST")
	setString(&cfg.Storage.DatabasePath, "BUILDCOST_DB_PATH")
	setString(&cfg.Storage.BlobDir, "BUILDCOST_BLOB_DIR")
	setString(&cfg.Storage.BleveIndexPath, "BUILDCOST_INDEX_PATH")
	setString(&cfg.Analysis.Provider, "BUILDCOST_PROVIDER")
	setString(&cfg.Analysis.Model, "BUILDCOST_MODEL")
	setString(&cfg.Analysis.OpenAIKey, "OPENAI_API_KEY")
	setString(&cfg.Analysis.AnthropicKey, "ANTHROPIC_API_KEY")
	setString(&cfg.Analysis.GoogleKey, "GOOGLE_API_KEY")
	setString(&cfg.Locale.RatesFile, "BUILDCOST_RATES_FILE")
	setString(&cfg.Locale.DefaultCountry, "BUILDCOST_COUNTRY")
	setString(&cfg.Auth.JWTSecret, "BUILDCOST_JWT_SECRET")
	setString(&cfg.Log.File, "BUILDCOST_LOG_FILE")

	if v, ok := os.LookupEnv("BUILDCOST_PORT"); ok {
		port, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("invalid BUILDCOST_PORT %q: %w", v, err)
		}
		cfg.Server.Port = port
	}
	if v, ok := os.LookupEnv("BUILDCOST_DEBUG"); ok {
		debug, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("invalid BUILDCOST_DEBUG %q: %w", v, err)
		}
		cfg.Debug = debug
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
