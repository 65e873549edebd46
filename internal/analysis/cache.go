package analysis

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/hyperjump/buildcost/internal/models"
)

// CachedAnalyzer memoizes results by document content so re-processing an unchanged file
// does not call the provider again. Errors and results without items are never cached, so a
// degraded answer is retried on the next run.
type CachedAnalyzer struct {
	next  Analyzer
	cache *gocache.Cache
}

var _ Analyzer = (*CachedAnalyzer)(nil)

// Cached wraps a with a TTL cache. Unconfigured analyzers and a non-positive ttl are returned as is.
func Cached(a Analyzer, ttl time.Duration) Analyzer {
	if a == nil || !a.Configured() || ttl <= 0 {
		return a
	}
	return &CachedAnalyzer{next: a, cache: gocache.New(ttl, 2*ttl)}
}

func (c *CachedAnalyzer) Name() string     { return c.next.Name() }
func (c *CachedAnalyzer) Configured() bool { return c.next.Configured() }

func (c *CachedAnalyzer) Analyze(ctx context.Context, doc Document) (*models.AnalysisResult, error) {
	key := cacheKey(c.next.Name(), doc)
	if v, ok := c.cache.Get(key); ok {
		return copyResult(v.(*models.AnalysisResult), doc.FileName), nil
	}
	res, err := c.next.Analyze(ctx, doc)
	if err != nil {
		return nil, err
	}
	if res != nil && len(res.Items) > 0 {
		c.cache.SetDefault(key, copyResult(res, ""))
	}
	return res, nil
}

// Len reports the number of cached entries.
func (c *CachedAnalyzer) Len() int { return c.cache.ItemCount() }

func cacheKey(provider string, doc Document) string {
	h := sha256.New()
	h.Write([]byte(provider))
	h.Write([]byte{0})
	h.Write([]byte(doc.MIMEType))
	h.Write([]byte{0})
	h.Write([]byte(doc.ProjectType))
	h.Write([]byte{0})
	if len(doc.Data) > 0 {
		h.Write(doc.Data)
	} else {
		h.Write([]byte(doc.Text))
	}
	return hex.EncodeToString(h.Sum(nil))
}

func copyResult(r *models.AnalysisResult, fileName string) *models.AnalysisResult {
	if r == nil {
		return &models.AnalysisResult{FileName: fileName}
	}
	out := *r
	out.FileName = fileName
	out.Items = append([]models.ExtractedItem(nil), r.Items...)
	out.Insights = append([]string(nil), r.Insights...)
	return &out
}
