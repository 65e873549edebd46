// Package project is the application layer behind the HTTP API and the CLI. It ties the metadata
// store, uploaded blobs, the search index, the intake pipeline and the chat assistant together and
// enforces input validation before anything is persisted.
package project

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/buildcost/internal/analysis"
	"github.com/hyperjump/buildcost/internal/convert"
	"github.com/hyperjump/buildcost/internal/keyword"
	"github.com/hyperjump/buildcost/internal/locale"
	"github.com/hyperjump/buildcost/internal/models"
	"github.com/hyperjump/buildcost/internal/pipeline"
	"github.com/hyperjump/buildcost/internal/storage"
)

// ErrInvalidInput is wrapped by every InputError.
var ErrInvalidInput = errors.New("invalid input")

// InputError reports request fields that failed validation, keyed by field name.
type InputError struct {
	Fields map[string]string
}

func (e *InputError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + ": " + e.Fields[k]
	}
	return "invalid input: " + strings.Join(parts, ", ")
}

func (e *InputError) Unwrap() error { return ErrInvalidInput }

func fieldError(field, tag string) *InputError {
	return &InputError{Fields: map[string]string{field: tag}}
}

// Upload is one file received from a client.
type Upload struct {
	FileName string
	Content  []byte
}

// LocaleHint carries what a viewer told us about where they are.
type LocaleHint struct {
	Country  string
	Locale   string
	Timezone string
}

// ListResult is a page of projects.
type ListResult struct {
	Projects []*models.Project `json:"projects"`
	Total    int64             `json:"total"`
	Offset   int               `json:"offset"`
	Limit    int               `json:"limit"`
}

// SearchHit is a project matched by a search query.
type SearchHit struct {
	Project   *models.Project     `json:"project"`
	Score     float64             `json:"score"`
	Fragments map[string][]string `json:"fragments,omitempty"`
}

const (
	defaultListLimit   = 50
	maxListLimit       = 200
	defaultSearchLimit = 20
)

// Service implements project operations for one owner at a time.
type Service struct {
	store          storage.Storage
	blobs          storage.BlobStore
	index          keyword.ProjectIndex
	pipeline       *pipeline.Pipeline
	assistant      analysis.Assistant
	conv           *convert.Converter
	validate       *validator.Validate
	defaultCountry string
	logger         *zap.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithIndex enables project search.
func WithIndex(idx keyword.ProjectIndex) Option {
	return func(s *Service) { s.index = idx }
}

// WithAssistant sets the chat assistant. Without one, chat answers with an offline summary.
func WithAssistant(a analysis.Assistant) Option {
	return func(s *Service) { s.assistant = a }
}

// WithDefaultCountry sets the country used when a viewer gives no hint at all.
func WithDefaultCountry(code string) Option {
	return func(s *Service) { s.defaultCountry = code }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewService returns a Service.
func NewService(store storage.Storage, blobs storage.BlobStore, pipe *pipeline.Pipeline, conv *convert.Converter, opts ...Option) *Service {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	s := &Service{
		store:    store,
		blobs:    blobs,
		pipeline: pipe,
		conv:     conv,
		validate: v,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Registry returns the country registry used for localization.
func (s *Service) Registry() *locale.Registry { return s.conv.Registry() }

// MaxFileSize returns the per-file upload limit.
func (s *Service) MaxFileSize() int64 { return s.pipeline.MaxFileSize() }

// SearchEnabled reports whether a search index is attached.
func (s *Service) SearchEnabled() bool { return s.index != nil }

func (s *Service) validateStruct(v any) error {
	err := s.validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[fe.Field()] = fe.Tag()
	}
	return &InputError{Fields: fields}
}

// Create validates input and stores a new draft project.
func (s *Service) Create(ctx context.Context, ownerID string, in models.ProjectInput) (*models.Project, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Type = strings.ToLower(strings.TrimSpace(in.Type))
	in.Description = strings.TrimSpace(in.Description)
	if err := s.validateStruct(in); err != nil {
		return nil, err
	}
	projectType, err := models.ParseProjectType(in.Type)
	if err != nil {
		return nil, fieldError("type", "oneof")
	}
	p := &models.Project{
		OwnerID:     ownerID,
		Name:        in.Name,
		Type:        projectType,
		Description: in.Description,
		Items:       []models.LineItem{},
		Files:       []models.FileRecord{},
	}
	if err := s.store.CreateProject(ctx, p); err != nil {
		return nil, fmt.Errorf("create project: %w", err)
	}
	s.reindex(ctx, p)
	s.logger.Info("project created", zap.String("project_id", p.ID), zap.String("type", string(p.Type)))
	return p, nil
}

// Get returns the owner's project with its items and files.
func (s *Service) Get(ctx context.Context, ownerID, id string) (*models.Project, error) {
	return s.store.GetProject(ctx, ownerID, id)
}

// ResolveCountry picks the display profile for a viewer. With no hint at all the configured
// default country is used.
func (s *Service) ResolveCountry(h LocaleHint) locale.CountryProfile {
	explicit := h.Country
	if explicit == "" && h.Locale == "" && h.Timezone == "" {
		explicit = s.defaultCountry
	}
	return s.Registry().ResolveCountry(h.Locale, h.Timezone, explicit)
}

// Localized returns the owner's project converted for the viewer described by h.
func (s *Service) Localized(ctx context.Context, ownerID, id string, h LocaleHint) (*convert.ProjectView, error) {
	p, err := s.store.GetProject(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	view := s.conv.LocalizeProject(p, s.ResolveCountry(h))
	return &view, nil
}

// List returns a page of the owner's projects, newest first.
func (s *Service) List(ctx context.Context, ownerID string, offset, limit int) (*ListResult, error) {
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	projects, err := s.store.ListProjects(ctx, ownerID, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	total, err := s.store.CountProjects(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("count projects: %w", err)
	}
	return &ListResult{Projects: projects, Total: total, Offset: offset, Limit: limit}, nil
}

// Delete removes the project, its uploaded blobs and its search entry.
func (s *Service) Delete(ctx context.Context, ownerID, id string) error {
	files, err := s.store.DeleteProject(ctx, ownerID, id)
	if err != nil {
		return err
	}
	for _, f := range files {
		if err := s.blobs.Delete(ctx, f.StorageRef); err != nil {
			s.logger.Warn("blob delete failed", zap.String("project_id", id), zap.String("file_id", f.ID), zap.Error(err))
		}
	}
	if s.index != nil {
		if err := s.index.Delete(ctx, id); err != nil {
			s.logger.Warn("search index delete failed", zap.String("project_id", id), zap.Error(err))
		}
	}
	s.logger.Info("project deleted", zap.String("project_id", id), zap.Int("files", len(files)))
	return nil
}

// Upload attaches files to a draft project. Every file is validated first; if any is rejected
// nothing is stored and the joined *pipeline.ValidationError values are returned.
func (s *Service) Upload(ctx context.Context, ownerID, projectID string, files []Upload) ([]models.FileRecord, error) {
	if len(files) == 0 {
		return nil, fieldError("files", "required")
	}
	mimes := make([]string, len(files))
	var errs []error
	for i, f := range files {
		mime, err := pipeline.Validate(filepath.Base(f.FileName), f.Content, s.pipeline.MaxFileSize())
		if err != nil {
			errs = append(errs, err)
			continue
		}
		mimes[i] = mime
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	p, err := s.store.GetProject(ctx, ownerID, projectID)
	if err != nil {
		return nil, err
	}
	if p.Status != models.StatusDraft {
		return nil, storage.ErrNotDraft
	}

	records := make([]models.FileRecord, 0, len(files))
	for i, f := range files {
		id := uuid.NewString()
		rec := models.FileRecord{
			ID:         id,
			ProjectID:  projectID,
			FileName:   filepath.Base(f.FileName),
			MIMEType:   mimes[i],
			Size:       int64(len(f.Content)),
			StorageRef: storage.BlobKey(projectID, id),
			Status:     models.FilePending,
		}
		if err := s.blobs.Put(ctx, rec.StorageRef, f.Content); err != nil {
			return records, fmt.Errorf("store %s: %w", rec.FileName, err)
		}
		if err := s.store.AddFile(ctx, ownerID, &rec); err != nil {
			if derr := s.blobs.Delete(ctx, rec.StorageRef); derr != nil {
				s.logger.Warn("blob cleanup failed", zap.String("file_id", id), zap.Error(derr))
			}
			return records, fmt.Errorf("add %s: %w", rec.FileName, err)
		}
		records = append(records, rec)
	}
	s.logger.Info("files uploaded", zap.String("project_id", projectID), zap.Int("files", len(records)))
	if p, err := s.store.GetProject(ctx, ownerID, projectID); err == nil {
		s.reindex(ctx, p)
	}
	return records, nil
}

// Process runs the intake pipeline on a draft project and reindexes the result.
func (s *Service) Process(ctx context.Context, ownerID, id string) (*models.Project, error) {
	p, err := s.pipeline.Run(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	s.reindex(ctx, p)
	return p, nil
}

// Reset returns a completed or review project to draft so it can be processed again.
// Its current estimate stays visible until the next run replaces it.
func (s *Service) Reset(ctx context.Context, ownerID, id string) (*models.Project, error) {
	if err := s.store.ResetProject(ctx, ownerID, id); err != nil {
		return nil, err
	}
	return s.store.GetProject(ctx, ownerID, id)
}

// Search returns the owner's projects matching query, best first. Without an index it returns no hits.
func (s *Service) Search(ctx context.Context, ownerID, query string, limit int, fuzzy bool) ([]SearchHit, error) {
	hits := []SearchHit{}
	if s.index == nil || strings.TrimSpace(query) == "" {
		return hits, nil
	}
	if limit <= 0 || limit > maxListLimit {
		limit = defaultSearchLimit
	}
	results, err := s.index.Search(ctx, ownerID, query, limit, &keyword.SearchOptions{
		NameBoost:    2,
		FuzzyEnabled: fuzzy,
	})
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	for _, r := range results {
		p, err := s.store.GetProject(ctx, ownerID, r.ID)
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		hits = append(hits, SearchHit{Project: p, Score: r.Score, Fragments: r.Fragments})
	}
	return hits, nil
}

// reindex refreshes the project's search entry. Index failures are logged, never surfaced: the
// metadata store is the source of truth.
func (s *Service) reindex(ctx context.Context, p *models.Project) {
	if s.index == nil || p == nil {
		return
	}
	if err := s.index.IndexProject(ctx, p); err != nil {
		s.logger.Warn("search index update failed", zap.String("project_id", p.ID), zap.Error(err))
	}
}

// Health summarizes the service's dependencies for the health endpoint.
type Health struct {
	Provider        string `json:"provider"`
	Configured      bool   `json:"provider_configured"`
	SearchEnabled   bool   `json:"search_enabled"`
	IndexedProjects uint64 `json:"indexed_projects"`
	BaseCurrency    string `json:"base_currency"`
	Currencies      int    `json:"currencies"`
}

// Health reports the analysis provider, the search index and the active rate table.
func (s *Service) Health() Health {
	a := s.pipeline.Analyzer()
	rates := s.Registry().Rates()
	h := Health{
		Provider:      a.Name(),
		Configured:    a.Configured(),
		SearchEnabled: s.index != nil,
		BaseCurrency:  rates.Base(),
		Currencies:    len(rates.Codes()),
	}
	if s.index != nil {
		if n, err := s.index.DocCount(); err == nil {
			h.IndexedProjects = n
		}
	}
	return h
}
