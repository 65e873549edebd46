// Package main is the buildcost CLI entry point.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/buildcost/internal/analysis"
	"github.com/hyperjump/buildcost/internal/cli"
	"github.com/hyperjump/buildcost/internal/config"
	"github.com/hyperjump/buildcost/internal/convert"
	"github.com/hyperjump/buildcost/internal/keyword"
	"github.com/hyperjump/buildcost/internal/locale"
	"github.com/hyperjump/buildcost/internal/models"
	"github.com/hyperjump/buildcost/internal/pipeline"
	"github.com/hyperjump/buildcost/internal/project"
	"github.com/hyperjump/buildcost/internal/server"
	"github.com/hyperjump/buildcost/internal/storage"
	"github.com/hyperjump/buildcost/internal/watcher"
	"github.com/hyperjump/buildcost/pkg/utils"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/buildcost/config.yaml"

// localOwner owns projects created by one-shot CLI runs.
const localOwner = "local"

// loadConfig loads config from path. When path is the default, config.yaml in the current
// directory wins if present. When the default file does not exist either, the config is built from
// environment and defaults alone. Returns the config and the path actually loaded ("" for none).
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
		if _, statErr := os.Stat(path); errors.Is(statErr, os.ErrNotExist) {
			cfg, err := config.Default()
			return cfg, "", err
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load .env: %v\n", err)
		os.Exit(1)
	}
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "estimate":
		runEstimate()
	case "countries":
		runCountries()
	case "version", "--version", "-v":
		fmt.Printf("buildcost version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || *debug
	logger, err := utils.NewFileLogger(debugMode, utils.RotateOptions{
		Path:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", debugMode),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	components, err := initializeComponents(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	srv := server.NewServer(components.Service, cfg, logger)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = srv.Stop(shutdownCtx)
}

// argsReorder moves every flag (and its value) in front of the positional arguments so that
// fs.Parse sees them wherever they appear: "buildcost estimate plan.pdf -country DE boq.xlsx -offline".
// Flags that take a value consume the next argument unless written as -name=value. Arguments after
// "--" are positional.
func argsReorder(fs *flag.FlagSet, args []string) []string {
	var flags, positional []string
	for i := 0; i < len(args); i++ {
		a := args[i]
		if a == "--" {
			positional = append(positional, args[i+1:]...)
			break
		}
		if len(a) < 2 || a[0] != '-' {
			positional = append(positional, a)
			continue
		}
		flags = append(flags, a)
		name := strings.TrimLeft(a, "-")
		if strings.Contains(name, "=") {
			continue
		}
		if f := fs.Lookup(name); f != nil && !isBoolFlag(f) && i+1 < len(args) {
			i++
			flags = append(flags, args[i])
		}
	}
	if len(positional) == 0 {
		return flags
	}
	return append(append(flags, "--"), positional...)
}

func isBoolFlag(f *flag.Flag) bool {
	b, ok := f.Value.(interface{ IsBoolFlag() bool })
	return ok && b.IsBoolFlag()
}

type estimateOptions struct {
	Files       []string
	Name        string
	ProjectType string
	Country     string
	Format      cli.OutputFormat
	Offline     bool
}

func runEstimate() {
	fs := flag.NewFlagSet("estimate", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	name := fs.String("name", "", "project name (default: first file name)")
	projectType := fs.String("type", "", "project type: residential, commercial, industrial, infrastructure, renovation, other")
	country := fs.String("country", "", "display country code (default: from config or US)")
	output := fs.String("output", "text", "output format: text or json")
	offline := fs.Bool("offline", false, "skip the analysis provider and use the reference estimate")
	debug := fs.Bool("debug", false, "enable debug logging to stderr")
	_ = fs.Parse(argsReorder(fs, os.Args[2:]))

	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Usage: buildcost estimate [flags] <file> [file...]")
		fs.PrintDefaults()
		os.Exit(1)
	}
	format, err := cli.ParseOutputFormat(*output)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger := zap.NewNop()
	if *debug || cfg.Debug {
		if logger, err = utils.NewLogger(true); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
			os.Exit(1)
		}
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	err = estimate(ctx, os.Stdout, cfg, logger, estimateOptions{
		Files:       fs.Args(),
		Name:        *name,
		ProjectType: *projectType,
		Country:     *country,
		Format:      format,
		Offline:     *offline,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Estimate failed: %v\n", err)
		os.Exit(1)
	}
}

// estimate runs the whole intake pipeline once against a throwaway store and writes the localized
// result to w.
func estimate(ctx context.Context, w io.Writer, cfg *config.Config, logger *zap.Logger, opts estimateOptions) error {
	tmp, err := os.MkdirTemp("", "buildcost-estimate-")
	if err != nil {
		return err
	}
	defer os.RemoveAll(tmp)

	local := *cfg
	local.Storage.DatabasePath = filepath.Join(tmp, "projects.db")
	local.Storage.BlobDir = filepath.Join(tmp, "uploads")
	local.Storage.BleveIndexPath = ""
	local.Locale.WatchRates = false
	if opts.Offline {
		local.Analysis.Provider = string(config.ProviderNone)
	}

	components, err := initializeComponents(ctx, &local, logger)
	if err != nil {
		return err
	}
	defer components.Close()
	svc := components.Service

	uploads := make([]project.Upload, 0, len(opts.Files))
	for _, path := range opts.Files {
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		uploads = append(uploads, project.Upload{FileName: filepath.Base(path), Content: data})
	}
	name := opts.Name
	if name == "" {
		name = uploads[0].FileName
	}

	p, err := svc.Create(ctx, localOwner, models.ProjectInput{Name: name, Type: opts.ProjectType})
	if err != nil {
		return err
	}
	if _, err := svc.Upload(ctx, localOwner, p.ID, uploads); err != nil {
		return err
	}
	done, err := svc.Process(ctx, localOwner, p.ID)
	if err != nil {
		return err
	}
	view, err := svc.Localized(ctx, localOwner, p.ID, project.LocaleHint{Country: opts.Country})
	if err != nil {
		return err
	}
	return cli.WriteEstimate(w, cli.Estimate{View: *view, Files: done.Files}, opts.Format)
}

func runCountries() {
	fs := flag.NewFlagSet("countries", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (for the rates file)")
	output := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	format, err := cli.ParseOutputFormat(*output)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	reg, err := loadRegistry(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load countries: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WriteCountries(os.Stdout, reg.Countries(), format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

// loadRegistry loads the built-in registry and applies the configured rates file once.
func loadRegistry(cfg *config.Config) (*locale.Registry, error) {
	reg, err := locale.LoadDefault()
	if err != nil {
		return nil, err
	}
	if cfg.Locale.RatesFile != "" {
		if err := watcher.ReloadRates(reg, cfg.Locale.RatesFile); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

// Components holds initialized services.
type Components struct {
	Storage      storage.Storage
	KeywordIndex keyword.ProjectIndex
	RatesWatcher *watcher.Watcher
	Registry     *locale.Registry
	Provider     analysis.Provider
	Pipeline     *pipeline.Pipeline
	Service      *project.Service
}

func (c *Components) Close() {
	if c.RatesWatcher != nil {
		c.RatesWatcher.Stop()
	}
	if c.Storage != nil {
		_ = c.Storage.Close()
	}
	if c.KeywordIndex != nil {
		_ = c.KeywordIndex.Close()
	}
}

func initializeComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger) (_ *Components, err error) {
	c := &Components{}
	defer func() {
		if err != nil {
			c.Close()
		}
	}()

	store, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	c.Storage = store
	blobs, err := storage.NewDiskBlobStore(cfg.Storage.BlobDir)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize blob store: %w", err)
	}

	if cfg.Storage.BleveIndexPath != "" {
		idx, err := keyword.NewBleveIndex(cfg.Storage.BleveIndexPath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize search index: %w", err)
		}
		c.KeywordIndex = idx
	}

	reg, err := locale.LoadDefault()
	if err != nil {
		return nil, fmt.Errorf("failed to load country registry: %w", err)
	}
	c.Registry = reg
	if cfg.Locale.RatesFile != "" {
		if cfg.Locale.WatchRates {
			w, err := watcher.WatchRates(ctx, reg, cfg.Locale.RatesFile, logger)
			if err != nil {
				return nil, fmt.Errorf("failed to watch rates file: %w", err)
			}
			c.RatesWatcher = w
		} else if err := watcher.ReloadRates(reg, cfg.Locale.RatesFile); err != nil {
			return nil, fmt.Errorf("failed to load rates file: %w", err)
		}
	}

	provider, err := analysis.New(cfg.Analysis, analysis.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize analysis provider: %w", err)
	}
	c.Provider = provider
	logger.Info("analysis provider initialized",
		zap.String("provider", provider.Name()),
		zap.Bool("configured", provider.Configured()),
	)

	c.Pipeline = pipeline.New(store, blobs, analysis.Cached(provider, cfg.Analysis.CacheTTL), cfg.Pipeline,
		pipeline.WithLogger(logger))

	opts := []project.Option{
		project.WithAssistant(provider),
		project.WithDefaultCountry(cfg.Locale.DefaultCountry),
		project.WithLogger(logger),
	}
	if c.KeywordIndex != nil {
		opts = append(opts, project.WithIndex(c.KeywordIndex))
	}
	c.Service = project.NewService(store, blobs, c.Pipeline, convert.New(reg), opts...)
	return c, nil
}

func printUsage() {
	fmt.Println(`buildcost - Construction cost estimation from project documents

Usage:
  buildcost server [flags]                  Start the HTTP server
  buildcost estimate [flags] <file...>      Estimate a project from local files and print it
  buildcost countries [flags]               List supported countries
  buildcost version                         Show version
  buildcost help                            Show this help

Server Flags:
  --config string    Config file path (default: /usr/local/etc/buildcost/config.yaml)
  --debug            Enable debug logging

Estimate Flags:
  --config string    Config file path
  --name string      Project name (default: first file name)
  --type string      Project type (residential, commercial, industrial, infrastructure, renovation, other)
  --country string   Display country code, e.g. DE or JP
  --output string    Output format: text or json (default: text)
  --offline          Skip the analysis provider and use the reference estimate

Countries Flags:
  --output string    Output format: text or json (default: text)

Environment:
  OPENAI_API_KEY, ANTHROPIC_API_KEY, GOOGLE_API_KEY   Analysis provider keys (first found wins)
  BUILDCOST_PROVIDER                                  Force a provider: openai, anthropic, google, none
  BUILDCOST_JWT_SECRET                                Require HS256 bearer tokens on the API

Examples:
  buildcost server
  buildcost estimate plans/ground-floor.pdf boq.xlsx --country DE
  buildcost estimate --output json --type renovation kitchen.jpg
  buildcost countries --output json`)
}
