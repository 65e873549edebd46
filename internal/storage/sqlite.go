package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/buildcost/internal/models"
)

// SQLiteStorage implements Storage using SQLite.
type SQLiteStorage struct {
	db  *sql.DB
	now func() time.Time
}

var _ Storage = (*SQLiteStorage)(nil)

// NewSQLiteStorage opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_busy_timeout=5000&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStorage{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS projects (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		name TEXT NOT NULL,
		type TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		total_cost REAL NOT NULL DEFAULT 0,
		accuracy REAL NOT NULL DEFAULT 0,
		processing_time_ms INTEGER NOT NULL DEFAULT 0,
		estimate_source TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_projects_owner ON projects(owner_id, created_at);

	CREATE TABLE IF NOT EXISTS line_items (
		id TEXT PRIMARY KEY,
		project_id TEXT NOT NULL,
		position INTEGER NOT NULL,
		category TEXT NOT NULL,
		description TEXT NOT NULL,
		quantity REAL NOT NULL,
		unit TEXT NOT NULL,
		rate REAL NOT NULL,
		amount REAL NOT NULL,
		confidence REAL NOT NULL DEFAULT 0,
		source_file TEXT NOT NULL DEFAULT '',
		FOREIGN KEY (project_id) REFERENCES projects(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_items_project ON line_items(project_id, position);

	CREATE TABLE IF NOT EXISTS files (
		id TEXT PRIMARY KEY,
		project_id TEXT NOT NULL,
		file_name TEXT NOT NULL,
		mime_type TEXT NOT NULL,
		size INTEGER NOT NULL,
		storage_ref TEXT NOT NULL,
		status TEXT NOT NULL,
		error TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		FOREIGN KEY (project_id) REFERENCES projects(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_files_project ON files(project_id, created_at);
	`
	_, err := db.Exec(schema)
	return err
}

const projectColumns = `id, owner_id, name, type, description, status, total_cost, accuracy,
	processing_time_ms, estimate_source, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanProject(row scanner) (*models.Project, error) {
	var p models.Project
	err := row.Scan(&p.ID, &p.OwnerID, &p.Name, &p.Type, &p.Description, &p.Status, &p.TotalCost,
		&p.Accuracy, &p.ProcessingTime, &p.EstimateSource, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// CreateProject inserts a project. ID, status and timestamps are filled in when empty.
func (s *SQLiteStorage) CreateProject(ctx context.Context, p *models.Project) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.Status == "" {
		p.Status = models.StatusDraft
	}
	if p.Type == "" {
		p.Type = models.TypeOther
	}
	now := s.now()
	p.CreatedAt = now
	p.UpdatedAt = now

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO projects (`+projectColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.OwnerID, p.Name, p.Type, p.Description, p.Status, p.TotalCost, p.Accuracy,
		p.ProcessingTime, p.EstimateSource, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert project: %w", err)
	}
	return nil
}

// GetProject returns a project with its line items and files.
func (s *SQLiteStorage) GetProject(ctx context.Context, ownerID, id string) (*models.Project, error) {
	p, err := s.getProject(ctx, s.db, ownerID, id)
	if err != nil {
		return nil, err
	}
	if p.Items, err = s.lineItems(ctx, s.db, id); err != nil {
		return nil, err
	}
	if p.Files, err = s.files(ctx, s.db, id); err != nil {
		return nil, err
	}
	return p, nil
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *SQLiteStorage) getProject(ctx context.Context, q querier, ownerID, id string) (*models.Project, error) {
	p, err := scanProject(q.QueryRowContext(ctx,
		`SELECT `+projectColumns+` FROM projects WHERE id = ? AND owner_id = ?`, id, ownerID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("project %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get project: %w", err)
	}
	return p, nil
}

func (s *SQLiteStorage) lineItems(ctx context.Context, q querier, projectID string) ([]models.LineItem, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT id, project_id, position, category, description, quantity, unit, rate, amount, confidence, source_file
		 FROM line_items WHERE project_id = ? ORDER BY position`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list line items: %w", err)
	}
	defer rows.Close()

	items := []models.LineItem{}
	for rows.Next() {
		var it models.LineItem
		if err := rows.Scan(&it.ID, &it.ProjectID, &it.Position, &it.Category, &it.Description, &it.Quantity,
			&it.Unit, &it.Rate, &it.Amount, &it.Confidence, &it.SourceFile); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func (s *SQLiteStorage) files(ctx context.Context, q querier, projectID string) ([]models.FileRecord, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT id, project_id, file_name, mime_type, size, storage_ref, status, error, created_at, updated_at
		 FROM files WHERE project_id = ? ORDER BY created_at, id`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	defer rows.Close()

	files := []models.FileRecord{}
	for rows.Next() {
		var f models.FileRecord
		if err := rows.Scan(&f.ID, &f.ProjectID, &f.FileName, &f.MIMEType, &f.Size, &f.StorageRef,
			&f.Status, &f.Error, &f.CreatedAt, &f.UpdatedAt); err != nil {
			return nil, err
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

// ListProjects returns the owner's projects, newest first, without items or files.
func (s *SQLiteStorage) ListProjects(ctx context.Context, ownerID string, offset, limit int) ([]*models.Project, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+projectColumns+` FROM projects WHERE owner_id = ?
		 ORDER BY created_at DESC, id LIMIT ? OFFSET ?`,
		ownerID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	projects := []*models.Project{}
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

// CountProjects returns the number of projects the owner has.
func (s *SQLiteStorage) CountProjects(ctx context.Context, ownerID string) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM projects WHERE owner_id = ?`, ownerID).Scan(&count)
	return count, err
}

// DeleteProject removes a project with its items and file records and returns the removed files
// so their blobs can be deleted.
func (s *SQLiteStorage) DeleteProject(ctx context.Context, ownerID, id string) ([]models.FileRecord, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if _, err := s.getProject(ctx, tx, ownerID, id); err != nil {
		return nil, err
	}
	files, err := s.files(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	for _, q := range []string{
		`DELETE FROM line_items WHERE project_id = ?`,
		`DELETE FROM files WHERE project_id = ?`,
		`DELETE FROM projects WHERE id = ?`,
	} {
		if _, err := tx.ExecContext(ctx, q, id); err != nil {
			return nil, fmt.Errorf("delete project: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return files, nil
}

// AddFile attaches a file record to a draft project owned by ownerID.
func (s *SQLiteStorage) AddFile(ctx context.Context, ownerID string, f *models.FileRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	p, err := s.getProject(ctx, tx, ownerID, f.ProjectID)
	if err != nil {
		return err
	}
	if p.Status != models.StatusDraft {
		return ErrNotDraft
	}

	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	if f.Status == "" {
		f.Status = models.FilePending
	}
	now := s.now()
	f.CreatedAt = now
	f.UpdatedAt = now
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO files (id, project_id, file_name, mime_type, size, storage_ref, status, error, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		f.ID, f.ProjectID, f.FileName, f.MIMEType, f.Size, f.StorageRef, f.Status, f.Error, f.CreatedAt, f.UpdatedAt,
	); err != nil {
		return fmt.Errorf("insert file: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE projects SET updated_at = ? WHERE id = ?`, now, f.ProjectID); err != nil {
		return err
	}
	return tx.Commit()
}

// UpdateFileStatus records a file's processing state. The error message is cleared unless status is error.
// The file must belong to projectID and the project to ownerID.
func (s *SQLiteStorage) UpdateFileStatus(ctx context.Context, ownerID, projectID, fileID string, status models.FileStatus, errMsg string) error {
	if status != models.FileError {
		errMsg = ""
	}
	result, err := s.db.ExecContext(ctx,
		`UPDATE files SET status = ?, error = ?, updated_at = ?
		 WHERE id = ? AND project_id = (SELECT id FROM projects WHERE id = ? AND owner_id = ?)`,
		status, errMsg, s.now(), fileID, projectID, ownerID,
	)
	if err != nil {
		return fmt.Errorf("update file status: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("file %s: %w", fileID, ErrNotFound)
	}
	return nil
}

// BeginProcessing moves a draft project to processing in a single conditional update and returns
// it with its files. ErrNotDraft means another run holds the project or it was already processed.
func (s *SQLiteStorage) BeginProcessing(ctx context.Context, ownerID, id string) (*models.Project, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE projects SET status = ?, updated_at = ? WHERE id = ? AND owner_id = ? AND status = ?`,
		models.StatusProcessing, s.now(), id, ownerID, models.StatusDraft,
	)
	if err != nil {
		return nil, fmt.Errorf("begin processing: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		if _, err := s.getProject(ctx, s.db, ownerID, id); err != nil {
			return nil, err
		}
		return nil, ErrNotDraft
	}
	return s.GetProject(ctx, ownerID, id)
}

// RevertToDraft returns a processing project to draft after a failed run. Files left processing go
// back to pending in the same transaction. Items are untouched.
func (s *SQLiteStorage) RevertToDraft(ctx context.Context, ownerID, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := s.now()
	result, err := tx.ExecContext(ctx,
		`UPDATE projects SET status = ?, updated_at = ? WHERE id = ? AND owner_id = ? AND status = ?`,
		models.StatusDraft, now, id, ownerID, models.StatusProcessing,
	)
	if err != nil {
		return fmt.Errorf("revert to draft: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		if _, err := s.getProject(ctx, tx, ownerID, id); err != nil {
			return err
		}
		return ErrNotProcessing
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE files SET status = ?, error = '', updated_at = ? WHERE project_id = ? AND status = ?`,
		models.FilePending, now, id, models.FileProcessing,
	); err != nil {
		return fmt.Errorf("revert file status: %w", err)
	}
	return tx.Commit()
}

// CompleteProject replaces the project's line items with the estimate and marks it completed,
// all in one transaction. The stored total is the sum of the stored item amounts.
func (s *SQLiteStorage) CompleteProject(ctx context.Context, ownerID, id string, c Completion) (*models.Project, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	p, err := s.getProject(ctx, tx, ownerID, id)
	if err != nil {
		return nil, err
	}
	if p.Status != models.StatusProcessing {
		return nil, ErrNotProcessing
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM line_items WHERE project_id = ?`, id); err != nil {
		return nil, fmt.Errorf("clear line items: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO line_items (id, project_id, position, category, description, quantity, unit, rate, amount, confidence, source_file)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return nil, err
	}
	defer stmt.Close()

	items := make([]models.LineItem, len(c.Estimate.Items))
	for i, it := range c.Estimate.Items {
		if it.ID == "" {
			it.ID = uuid.NewString()
		}
		it.ProjectID = id
		it.Position = i
		if _, err := stmt.ExecContext(ctx, it.ID, it.ProjectID, it.Position, it.Category, it.Description,
			it.Quantity, it.Unit, it.Rate, it.Amount, it.Confidence, it.SourceFile); err != nil {
			return nil, fmt.Errorf("insert line item: %w", err)
		}
		items[i] = it
	}

	now := s.now()
	if _, err := tx.ExecContext(ctx,
		`UPDATE projects SET status = ?, total_cost = ?, accuracy = ?, processing_time_ms = ?, estimate_source = ?, updated_at = ?
		 WHERE id = ?`,
		models.StatusCompleted, c.Estimate.TotalCost, c.Estimate.Accuracy, c.ProcessingTime.Milliseconds(),
		c.Estimate.Source, now, id,
	); err != nil {
		return nil, fmt.Errorf("complete project: %w", err)
	}
	files, err := s.files(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	p.Status = models.StatusCompleted
	p.TotalCost = c.Estimate.TotalCost
	p.Accuracy = c.Estimate.Accuracy
	p.ProcessingTime = c.ProcessingTime.Milliseconds()
	p.EstimateSource = c.Estimate.Source
	p.UpdatedAt = now
	p.Items = items
	p.Files = files
	return p, nil
}

// ResetProject moves a completed or review project back to draft so it can be re-processed; the
// next completion supersedes its items. Files are set back to pending. Resetting a draft is a no-op.
func (s *SQLiteStorage) ResetProject(ctx context.Context, ownerID, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	p, err := s.getProject(ctx, tx, ownerID, id)
	if err != nil {
		return err
	}
	switch p.Status {
	case models.StatusDraft:
		return nil
	case models.StatusProcessing:
		return ErrProcessing
	}
	now := s.now()
	if _, err := tx.ExecContext(ctx, `UPDATE projects SET status = ?, updated_at = ? WHERE id = ?`,
		models.StatusDraft, now, id); err != nil {
		return fmt.Errorf("reset project: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE files SET status = ?, error = '', updated_at = ? WHERE project_id = ?`,
		models.FilePending, now, id); err != nil {
		return fmt.Errorf("reset files: %w", err)
	}
	return tx.Commit()
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
