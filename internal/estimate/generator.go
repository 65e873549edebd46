package estimate

import (
	"math/rand/v2"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/hyperjump/buildcost/internal/models"
)

const (
	minRandomItems = 8
	maxRandomItems = 12
	rateJitter     = 0.2
	minAccuracy    = 90.0
	maxAccuracy    = 98.0
)

const fallbackInsight = "Estimate synthesized from standard unit rates; no document analysis result was available."

// Generator synthesizes plausible cost breakdowns. It is safe for concurrent use.
type Generator struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewGenerator returns a Generator drawing from src. A nil src seeds from the clock.
func NewGenerator(src rand.Source) *Generator {
	if src == nil {
		now := uint64(time.Now().UnixNano())
		src = rand.NewPCG(now, now>>17|1)
	}
	return &Generator{rng: rand.New(src)}
}

// Generate returns a non-empty estimate. Known project types use their fixed catalog subset;
// anything else draws 8 to 12 distinct items from the full catalog.
func (g *Generator) Generate(projectType models.ProjectType) models.Estimate {
	g.mu.Lock()
	defer g.mu.Unlock()

	pool := CatalogFor(projectType)
	if len(pool) == 0 {
		pool = g.sample(Catalog, minRandomItems+g.rng.IntN(maxRandomItems-minRandomItems+1))
	}

	items := make([]models.LineItem, 0, len(pool))
	total := decimal.Zero
	for i, c := range pool {
		qty := roundTo(c.MinQty+g.rng.Float64()*(c.MaxQty-c.MinQty), 2)
		if qty <= 0 {
			qty = 0.01
		}
		jitter := 1 - rateJitter + g.rng.Float64()*2*rateJitter
		rate := roundTo(c.BaseRate*jitter, 2)
		if rate <= 0 {
			rate = 0.01
		}
		amount := decimal.NewFromFloat(qty).Mul(decimal.NewFromFloat(rate)).Round(2)
		total = total.Add(amount)

		amt, _ := amount.Float64()
		items = append(items, models.LineItem{
			Category:    c.Category,
			Description: c.Description,
			Quantity:    qty,
			Unit:        c.Unit,
			Rate:        rate,
			Amount:      amt,
			Position:    i,
		})
	}

	totalCost, _ := total.Float64()
	return models.Estimate{
		Items:     items,
		TotalCost: totalCost,
		Accuracy:  roundTo(minAccuracy+g.rng.Float64()*(maxAccuracy-minAccuracy), 1),
		Source:    models.SourceFallback,
		Insights:  []string{fallbackInsight},
	}
}

// sample returns n distinct items from pool in random order.
func (g *Generator) sample(pool []CatalogItem, n int) []CatalogItem {
	if n > len(pool) {
		n = len(pool)
	}
	out := make([]CatalogItem, 0, n)
	for _, idx := range g.rng.Perm(len(pool))[:n] {
		out = append(out, pool[idx])
	}
	return out
}

func roundTo(v float64, places int32) float64 {
	f, _ := decimal.NewFromFloat(v).Round(places).Float64()
	return f
}
