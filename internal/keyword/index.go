// Package keyword provides owner-scoped full-text search over projects: names, descriptions,
// line item descriptions and uploaded file names.
package keyword

import (
	"context"

	"github.com/hyperjump/buildcost/internal/models"
)

// SearchOptions optional parameters for project search. Nil means use defaults.
type SearchOptions struct {
	// NameBoost multiplies the score contribution of matches in the project name (e.g. 3.0).
	NameBoost float64
	// FuzzyEnabled enables typo tolerance.
	FuzzyEnabled bool
	// Fuzziness is the maximum Levenshtein edit distance for fuzzy matching (1 or 2). Default 1.
	Fuzziness int
	// Offset skips the first hits.
	Offset int
}

// ProjectIndex defines project search operations.
type ProjectIndex interface {
	IndexProject(ctx context.Context, p *models.Project) error
	Search(ctx context.Context, ownerID, query string, limit int, opts *SearchOptions) ([]*Result, error)
	Delete(ctx context.Context, id string) error
	// DocCount returns the total number of projects in the index.
	DocCount() (uint64, error)
	Close() error
}

// Result is a single search hit. Fragments holds highlighted snippets keyed by field.
type Result struct {
	ID        string
	Score     float64
	Fragments map[string][]string
}
