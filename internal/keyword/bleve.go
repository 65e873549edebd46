package keyword

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	blevequery "github.com/blevesearch/bleve/v2/search/query"

	"github.com/hyperjump/buildcost/internal/models"
)

// Indexed fields.
const (
	fieldOwner       = "owner_id"
	fieldName        = "name"
	fieldType        = "type"
	fieldDescription = "description"
	fieldItems       = "items"
	fieldFiles       = "files"
)

var textFields = []string{fieldName, fieldDescription, fieldItems, fieldFiles}

// projectDoc is the indexed form of a project.
type projectDoc struct {
	OwnerID     string `json:"owner_id"`
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description"`
	Items       string `json:"items"`
	Files       string `json:"files"`
}

// BleveIndex implements ProjectIndex using Bleve.
type BleveIndex struct {
	index bleve.Index
}

var _ ProjectIndex = (*BleveIndex)(nil)

func newMapping() *mapping.IndexMappingImpl {
	im := bleve.NewIndexMapping()

	docMapping := bleve.NewDocumentMapping()
	textFieldMapping := bleve.NewTextFieldMapping()
	// Standard analyzer (lowercase + tokenize, no stemming) so "rebar" matches exactly.
	textFieldMapping.Analyzer = standard.Name
	for _, f := range textFields {
		docMapping.AddFieldMappingsAt(f, textFieldMapping)
	}
	keywordFieldMapping := bleve.NewKeywordFieldMapping()
	docMapping.AddFieldMappingsAt(fieldOwner, keywordFieldMapping)
	docMapping.AddFieldMappingsAt(fieldType, keywordFieldMapping)
	im.AddDocumentMapping("project", docMapping)
	im.DefaultType = "project"
	im.DefaultMapping = docMapping
	return im
}

// NewBleveIndex creates or opens a Bleve index at path. An empty path creates an in-memory index.
// If you change the index mapping in code, remove the index directory to force a re-index.
func NewBleveIndex(path string) (*BleveIndex, error) {
	if path == "" {
		index, err := bleve.NewMemOnly(newMapping())
		if err != nil {
			return nil, fmt.Errorf("failed to create in-memory Bleve index: %w", err)
		}
		return &BleveIndex{index: index}, nil
	}

	if _, err := os.Stat(path); err == nil {
		index, openErr := bleve.Open(path)
		if openErr != nil {
			return nil, fmt.Errorf("failed to open Bleve index: %w", openErr)
		}
		return &BleveIndex{index: index}, nil
	}

	index, err := bleve.New(path, newMapping())
	if err != nil {
		return nil, fmt.Errorf("failed to create Bleve index: %w", err)
	}
	return &BleveIndex{index: index}, nil
}

// IndexProject indexes (or re-indexes) a project by ID.
func (b *BleveIndex) IndexProject(_ context.Context, p *models.Project) error {
	doc := projectDoc{
		OwnerID:     p.OwnerID,
		Name:        p.Name,
		Type:        string(p.Type),
		Description: p.Description,
	}
	items := make([]string, 0, len(p.Items))
	for _, it := range p.Items {
		items = append(items, it.Description)
	}
	doc.Items = strings.Join(items, "\n")
	files := make([]string, 0, len(p.Files))
	for _, f := range p.Files {
		files = append(files, normalizeFileName(f.FileName))
	}
	doc.Files = strings.Join(files, "\n")

	if err := b.index.Index(p.ID, doc); err != nil {
		return fmt.Errorf("index project %s: %w", p.ID, err)
	}
	return nil
}

// normalizeFileName turns "ground_floor-plan.v2.pdf" into "ground floor plan v2 pdf"; the standard
// analyzer does not split on underscores.
func normalizeFileName(name string) string {
	return strings.NewReplacer("_", " ", "-", " ", ".", " ").Replace(name)
}

// Search returns the owner's projects matching query, best first.
func (b *BleveIndex) Search(ctx context.Context, ownerID, query string, limit int, opts *SearchOptions) ([]*Result, error) {
	if strings.TrimSpace(query) == "" {
		return []*Result{}, nil
	}
	if limit <= 0 {
		limit = 20
	}
	nameBoost := 1.0
	fuzzy := false
	fuzziness := 1
	offset := 0
	if opts != nil {
		if opts.NameBoost > 0 {
			nameBoost = opts.NameBoost
		}
		fuzzy = opts.FuzzyEnabled
		if opts.Fuzziness > 0 {
			fuzziness = opts.Fuzziness
		}
		if opts.Offset > 0 {
			offset = opts.Offset
		}
	}

	owner := bleve.NewTermQuery(ownerID)
	owner.SetField(fieldOwner)
	q := bleve.NewConjunctionQuery(owner, buildTextQuery(query, nameBoost, fuzzy, fuzziness))

	req := bleve.NewSearchRequestOptions(q, limit, offset, false)
	req.Highlight = bleve.NewHighlight()
	req.Highlight.Fields = []string{fieldName, fieldItems}
	results, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("bleve search failed: %w", err)
	}
	out := make([]*Result, len(results.Hits))
	for i, hit := range results.Hits {
		out[i] = &Result{ID: hit.ID, Score: hit.Score, Fragments: hit.Fragments}
	}
	return out, nil
}

// buildTextQuery matches query against every text field, any field being enough.
func buildTextQuery(query string, nameBoost float64, fuzzy bool, fuzziness int) blevequery.Query {
	var queries []blevequery.Query
	for _, field := range textFields {
		boost := 1.0
		if field == fieldName {
			boost = nameBoost
		}
		if !fuzzy {
			mq := bleve.NewMatchQuery(query)
			mq.SetField(field)
			mq.SetBoost(boost)
			queries = append(queries, mq)
			continue
		}
		for _, term := range tokenizeQuery(query) {
			fq := bleve.NewFuzzyQuery(term)
			fq.SetFuzziness(fuzziness)
			fq.SetField(field)
			fq.SetBoost(boost)
			queries = append(queries, fq)
		}
	}
	return bleve.NewDisjunctionQuery(queries...)
}

// tokenizeQuery splits query into lowercase terms.
func tokenizeQuery(query string) []string {
	return strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return r == ' ' || r == '\t' || r == '\n' || r == ',' || r == ';'
	})
}

// Delete removes a project from the index.
func (b *BleveIndex) Delete(_ context.Context, id string) error {
	return b.index.Delete(id)
}

// DocCount returns the total number of projects in the index.
func (b *BleveIndex) DocCount() (uint64, error) {
	return b.index.DocCount()
}

// Close closes the Bleve index.
func (b *BleveIndex) Close() error {
	return b.index.Close()
}
