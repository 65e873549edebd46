package estimate

import (
	"math"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/hyperjump/buildcost/internal/models"
)

// FallbackFunc produces the synthetic estimate used when no usable analysis items exist.
type FallbackFunc func() models.Estimate

// Aggregate reduces per-document results into one estimate. Nil results (documents that failed)
// contribute nothing. Items with an empty name, a non-finite or non-positive quantity or rate, or an
// amount that rounds to zero are dropped. The total is always recomputed from the kept items; self-reported document totals are
// ignored. When no item survives, the fallback output is returned unchanged.
func Aggregate(results []*models.AnalysisResult, fallback FallbackFunc) models.Estimate {
	var (
		items      []models.LineItem
		total      = decimal.Zero
		accuracies []float64
		insights   []string
		seen       = map[string]bool{}
	)
	for _, res := range results {
		if res == nil {
			continue
		}
		kept := 0
		var confSum float64
		for _, ex := range res.Items {
			item, ok := toLineItem(ex, res.FileName)
			if !ok {
				continue
			}
			item.Position = len(items)
			items = append(items, item)
			total = total.Add(decimal.NewFromFloat(item.Amount))
			confSum += item.Confidence
			kept++
		}
		if kept == 0 {
			continue
		}
		acc := clamp(res.Accuracy, 0, 100)
		if acc == 0 {
			acc = confSum / float64(kept)
		}
		accuracies = append(accuracies, acc)
		for _, s := range res.Insights {
			s = strings.TrimSpace(s)
			if s != "" && !seen[s] {
				seen[s] = true
				insights = append(insights, s)
			}
		}
	}

	if len(items) == 0 {
		if fallback == nil {
			return NewGenerator(nil).Generate(models.TypeOther)
		}
		return fallback()
	}

	totalCost, _ := total.Float64()
	return models.Estimate{
		Items:     items,
		TotalCost: totalCost,
		Accuracy:  roundTo(mean(accuracies), 1),
		Source:    models.SourceAnalysis,
		Insights:  insights,
	}
}

func toLineItem(ex models.ExtractedItem, fileName string) (models.LineItem, bool) {
	name := strings.TrimSpace(ex.Name)
	if name == "" || !validAmount(ex.Quantity) || !validAmount(ex.EstimatedRate) {
		return models.LineItem{}, false
	}
	amount, _ := decimal.NewFromFloat(ex.Quantity).Mul(decimal.NewFromFloat(ex.EstimatedRate)).Round(2).Float64()
	if amount <= 0 {
		return models.LineItem{}, false
	}
	return models.LineItem{
		Category:    NormalizeCategory(ex.Category, name),
		Description: name,
		Quantity:    ex.Quantity,
		Unit:        strings.TrimSpace(ex.Unit),
		Rate:        ex.EstimatedRate,
		Amount:      amount,
		Confidence:  clamp(ex.Confidence, 0, 100),
		SourceFile:  fileName,
	}, true
}

// validAmount reports whether v is a finite positive number. Unpriced or zero-quantity items
// carry no cost and are dropped.
func validAmount(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v > 0
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}

func mean(vs []float64) float64 {
	if len(vs) == 0 {
		return 0
	}
	var sum float64
	for _, v := range vs {
		sum += v
	}
	return sum / float64(len(vs))
}

var categoryKeywords = []struct {
	category string
	words    []string
}{
	{models.CategoryHVAC, []string{"hvac", "mechanical", "ventilation", "duct", "heating", "cooling", "air condition"}},
	{models.CategoryElectrical, []string{"electric", "lighting", "wiring", "power", "cable", "switchgear"}},
	{models.CategoryPlumbing, []string{"plumb", "sanitary", "water supply", "fixture", "sewer"}},
	{models.CategoryCivil, []string{"civil", "site", "earthwork", "excavat", "grading", "paving", "asphalt", "drainage"}},
	{models.CategoryStructural, []string{"struct", "concrete", "steel", "foundation", "framing", "masonry", "rebar", "beam", "column", "truss"}},
	{models.CategoryFinishing, []string{"finish", "paint", "tile", "tiling", "floor", "ceiling", "door", "window", "cladding", "drywall", "interior"}},
	{models.CategoryLabor, []string{"labor", "labour", "workforce", "crew", "manpower"}},
	{models.CategoryEquipment, []string{"equipment", "machinery", "crane", "rental", "scaffold"}},
}

// NormalizeCategory maps a free-form category onto the canonical set. The category text is tried
// first, then the item name; anything unrecognized becomes materials.
func NormalizeCategory(category, name string) string {
	c := strings.ToLower(strings.TrimSpace(category))
	for _, canon := range models.Categories {
		if c == canon {
			return canon
		}
	}
	if m := matchKeywords(c); m != "" {
		return m
	}
	if m := matchKeywords(strings.ToLower(name)); m != "" {
		return m
	}
	return models.CategoryMaterials
}

func matchKeywords(s string) string {
	if s == "" {
		return ""
	}
	for _, rule := range categoryKeywords {
		for _, w := range rule.words {
			if strings.Contains(s, w) {
				return rule.category
			}
		}
	}
	return ""
}
