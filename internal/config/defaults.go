package config

import "time"

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.RequestTimeout == 0 {
		cfg.Server.RequestTimeout = 5 * time.Minute
	}
	if cfg.Server.MaxUploadSize == 0 {
		cfg.Server.MaxUploadSize = 100 << 20
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "/usr/local/var/buildcost/data/db/projects.db"
	}
	if cfg.Storage.BlobDir == "" {
		cfg.Storage.BlobDir = "/usr/local/var/buildcost/data/uploads"
	}
	if cfg.Storage.BleveIndexPath == "" {
		cfg.Storage.BleveIndexPath = "/usr/local/var/buildcost/data/indices/bleve"
	}
	if cfg.Analysis.Timeout == 0 {
		cfg.Analysis.Timeout = 120 * time.Second
	}
	if cfg.Analysis.MaxTokens == 0 {
		cfg.Analysis.MaxTokens = 4096
	}
	if cfg.Analysis.CacheTTL == 0 {
		cfg.Analysis.CacheTTL = time.Hour
	}
	if cfg.Pipeline.MaxFileSize == 0 {
		cfg.Pipeline.MaxFileSize = 20 << 20
	}
	if cfg.Pipeline.Workers == 0 {
		cfg.Pipeline.Workers = 4
	}
	if cfg.Pipeline.FileTimeout == 0 {
		cfg.Pipeline.FileTimeout = 90 * time.Second
	}
	if cfg.Log.MaxSizeMB == 0 {
		cfg.Log.MaxSizeMB = 50
	}
	if cfg.Log.MaxBackups == 0 {
		cfg.Log.MaxBackups = 5
	}
	if cfg.Log.MaxAgeDays == 0 {
		cfg.Log.MaxAgeDays = 28
	}
}
