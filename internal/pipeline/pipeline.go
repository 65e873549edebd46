// Package pipeline turns a draft project's uploaded files into a persisted cost estimate.
//
// A run moves the project draft→processing→completed. Files are analyzed independently with bounded
// parallelism; one bad file never sinks the project. When no usable line items come out of analysis
// (or no provider is configured) a single fallback estimate is generated for the whole project. Any
// fatal error after the project entered processing returns it to draft.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hyperjump/buildcost/internal/analysis"
	"github.com/hyperjump/buildcost/internal/config"
	"github.com/hyperjump/buildcost/internal/estimate"
	"github.com/hyperjump/buildcost/internal/extract"
	"github.com/hyperjump/buildcost/internal/models"
	"github.com/hyperjump/buildcost/internal/storage"
)

// revertTimeout bounds the revert-to-draft write, which runs even when the caller's context is done.
const revertTimeout = 10 * time.Second

// Pipeline runs document intake for projects.
type Pipeline struct {
	store      storage.Storage
	blobs      storage.BlobStore
	analyzer   analysis.Analyzer
	extractor  *extract.Extractor
	cfg        config.PipelineConfig
	fallback   func(models.ProjectType) models.Estimate
	onComplete func(*models.Project)
	logger     *zap.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithGenerator sets the fallback estimate generator.
func WithGenerator(g *estimate.Generator) Option {
	return func(p *Pipeline) {
		if g != nil {
			p.fallback = g.Generate
		}
	}
}

// WithFallback replaces the fallback estimate source.
func WithFallback(fn func(models.ProjectType) models.Estimate) Option {
	return func(p *Pipeline) {
		if fn != nil {
			p.fallback = fn
		}
	}
}

// WithOnComplete registers a callback invoked with each completed project, e.g. to update a search index.
func WithOnComplete(fn func(*models.Project)) Option {
	return func(p *Pipeline) { p.onComplete = fn }
}

// New returns a pipeline. A nil analyzer behaves as unconfigured.
func New(store storage.Storage, blobs storage.BlobStore, analyzer analysis.Analyzer, cfg config.PipelineConfig, opts ...Option) *Pipeline {
	if analyzer == nil {
		analyzer = analysis.Unconfigured{}
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = DefaultMaxFileSize
	}
	p := &Pipeline{
		store:     store,
		blobs:     blobs,
		analyzer:  analyzer,
		extractor: extract.NewExtractor(),
		cfg:       cfg,
		fallback:  estimate.NewGenerator(nil).Generate,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Analyzer returns the configured analyzer.
func (p *Pipeline) Analyzer() analysis.Analyzer { return p.analyzer }

// MaxFileSize returns the per-file upload limit.
func (p *Pipeline) MaxFileSize() int64 { return p.cfg.MaxFileSize }

// Run processes the owner's draft project. It returns storage.ErrNotDraft when the project is not a
// draft, storage.ErrNotFound when it does not exist for the owner. On any other error the project
// has been returned to draft; the project status is never left as processing.
func (p *Pipeline) Run(ctx context.Context, ownerID, projectID string) (result *models.Project, err error) {
	start := time.Now()
	proj, err := p.store.BeginProcessing(ctx, ownerID, projectID)
	if err != nil {
		return nil, err
	}
	log := p.logger.With(zap.String("project_id", projectID))
	log.Info("processing started", zap.Int("files", len(proj.Files)), zap.String("analyzer", p.analyzer.Name()))

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pipeline panic: %v", r)
		}
		if err == nil {
			return
		}
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), revertTimeout)
		defer cancel()
		if rerr := p.store.RevertToDraft(rctx, ownerID, projectID); rerr != nil {
			log.Error("revert to draft failed", zap.Error(rerr))
		}
		log.Warn("processing failed", zap.Error(err), zap.Duration("duration", time.Since(start)))
		result = nil
	}()

	results, err := p.analyzeFiles(ctx, proj, log)
	if err != nil {
		return nil, err
	}

	fallbackUsed := false
	est := estimate.Aggregate(results, func() models.Estimate {
		fallbackUsed = true
		return p.fallback(proj.Type)
	})

	done, err := p.store.CompleteProject(ctx, ownerID, projectID, storage.Completion{
		Estimate:       est,
		ProcessingTime: time.Since(start),
	})
	if err != nil {
		return nil, fmt.Errorf("persist estimate: %w", err)
	}
	log.Info("processing completed",
		zap.Int("items", len(done.Items)),
		zap.Float64("total_cost", done.TotalCost),
		zap.String("source", string(done.EstimateSource)),
		zap.Bool("fallback", fallbackUsed),
		zap.Duration("duration", time.Since(start)),
	)
	if p.onComplete != nil {
		p.onComplete(done)
	}
	return done, nil
}

// analyzeFiles returns one result per file in file order; failed files leave a nil entry.
// The returned error is fatal: a persistence failure or a cancelled context.
func (p *Pipeline) analyzeFiles(ctx context.Context, proj *models.Project, log *zap.Logger) ([]*models.AnalysisResult, error) {
	if !p.analyzer.Configured() {
		for _, f := range proj.Files {
			if err := p.store.UpdateFileStatus(ctx, proj.OwnerID, proj.ID, f.ID, models.FileCompleted, ""); err != nil {
				return nil, err
			}
		}
		log.Info("no analysis provider configured; using fallback estimate")
		return nil, nil
	}

	results := make([]*models.AnalysisResult, len(proj.Files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Workers)
	for i, f := range proj.Files {
		g.Go(func() error {
			if err := p.store.UpdateFileStatus(gctx, proj.OwnerID, proj.ID, f.ID, models.FileProcessing, ""); err != nil {
				return err
			}
			start := time.Now()
			res, ferr := p.processFile(gctx, f, proj.Type)
			flog := log.With(zap.String("file_id", f.ID), zap.String("file", f.FileName), zap.Duration("duration", time.Since(start)))
			if ferr != nil {
				flog.Warn("file analysis failed", zap.Error(ferr))
				if err := p.store.UpdateFileStatus(gctx, proj.OwnerID, proj.ID, f.ID, models.FileError, ferr.Error()); err != nil {
					return err
				}
				return nil
			}
			flog.Info("file analyzed", zap.Int("items", len(res.Items)))
			results[i] = res
			if err := p.store.UpdateFileStatus(gctx, proj.OwnerID, proj.ID, f.ID, models.FileCompleted, ""); err != nil {
				return err
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

func (p *Pipeline) processFile(ctx context.Context, f models.FileRecord, projectType models.ProjectType) (*models.AnalysisResult, error) {
	data, err := p.blobs.Get(ctx, f.StorageRef)
	if err != nil {
		return nil, fmt.Errorf("load file: %w", err)
	}
	mime, err := Validate(f.FileName, data, p.cfg.MaxFileSize)
	if err != nil {
		return nil, err
	}
	content, err := p.extractor.Extract(f.FileName, data)
	if err != nil {
		return nil, err
	}
	if content.MIMEType == "" {
		content.MIMEType = mime
	}

	actx := ctx
	if p.cfg.FileTimeout > 0 {
		var cancel context.CancelFunc
		actx, cancel = context.WithTimeout(ctx, p.cfg.FileTimeout)
		defer cancel()
	}
	res, err := p.analyzer.Analyze(actx, analysis.Document{
		FileName:    f.FileName,
		MIMEType:    content.MIMEType,
		Text:        content.Text,
		Data:        content.Data,
		ProjectType: projectType,
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, fmt.Errorf("analysis timed out after %s", p.cfg.FileTimeout)
		}
		return nil, fmt.Errorf("analysis: %w", err)
	}
	if res == nil {
		res = &models.AnalysisResult{}
	}
	res.FileName = f.FileName
	return res, nil
}
