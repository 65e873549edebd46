// Package storage persists projects, their line items and uploaded file records, and the uploaded
// file contents. Every project-level call is scoped by owner ID; a project owned by someone else is
// indistinguishable from one that does not exist.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/hyperjump/buildcost/internal/models"
)

var (
	// ErrNotFound is returned when the project or file does not exist for the owner.
	ErrNotFound = errors.New("not found")
	// ErrNotDraft is returned when an operation requires a draft project.
	ErrNotDraft = errors.New("project is not in draft status")
	// ErrNotProcessing is returned when completing a project that is not processing.
	ErrNotProcessing = errors.New("project is not processing")
	// ErrProcessing is returned when resetting a project that is being processed.
	ErrProcessing = errors.New("project is processing")
)

// Completion is the outcome of one pipeline run, committed atomically.
type Completion struct {
	Estimate       models.Estimate
	ProcessingTime time.Duration
}

// Storage defines project, line item and file persistence.
type Storage interface {
	// Project operations
	CreateProject(ctx context.Context, p *models.Project) error
	GetProject(ctx context.Context, ownerID, id string) (*models.Project, error)
	ListProjects(ctx context.Context, ownerID string, offset, limit int) ([]*models.Project, error)
	DeleteProject(ctx context.Context, ownerID, id string) ([]models.FileRecord, error)
	CountProjects(ctx context.Context, ownerID string) (int64, error)

	// File operations
	AddFile(ctx context.Context, ownerID string, f *models.FileRecord) error
	UpdateFileStatus(ctx context.Context, ownerID, projectID, fileID string, status models.FileStatus, errMsg string) error

	// Status transitions
	BeginProcessing(ctx context.Context, ownerID, id string) (*models.Project, error)
	RevertToDraft(ctx context.Context, ownerID, id string) error
	CompleteProject(ctx context.Context, ownerID, id string, c Completion) (*models.Project, error)
	ResetProject(ctx context.Context, ownerID, id string) error

	Close() error
}

// BlobStore holds uploaded file contents by opaque key.
type BlobStore interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}
