package estimate

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/buildcost/internal/models"
)

func sumAmounts(items []models.LineItem) float64 {
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(decimal.NewFromFloat(it.Amount))
	}
	f, _ := total.Float64()
	return f
}

func TestCatalog(t *testing.T) {
	require.GreaterOrEqual(t, len(Catalog), 24)
	cats := map[string]bool{}
	for _, c := range Catalog {
		cats[c.Category] = true
		assert.Greater(t, c.BaseRate, 0.0, c.Description)
		assert.Greater(t, c.MinQty, 0.0, c.Description)
		assert.GreaterOrEqual(t, c.MaxQty, c.MinQty, c.Description)
	}
	for _, want := range []string{"structural", "civil", "electrical", "plumbing", "finishing", "hvac"} {
		assert.True(t, cats[want], "catalog missing %s", want)
	}
	for pt, names := range typeCatalog {
		assert.Len(t, CatalogFor(pt), len(names), "every %s entry must exist in the catalog", pt)
		assert.GreaterOrEqual(t, len(names), 8, pt)
	}
	assert.Nil(t, CatalogFor(models.TypeOther))
}

func TestGenerate_invariants(t *testing.T) {
	gen := NewGenerator(rand.NewPCG(1, 2))
	types := append([]models.ProjectType{""}, models.ProjectTypes...)
	for i := 0; i < 200; i++ {
		pt := types[i%len(types)]
		est := gen.Generate(pt)

		require.NotEmpty(t, est.Items, "type %q", pt)
		assert.Equal(t, models.SourceFallback, est.Source)
		assert.GreaterOrEqual(t, est.Accuracy, 90.0)
		assert.LessOrEqual(t, est.Accuracy, 98.0)
		assert.Equal(t, sumAmounts(est.Items), est.TotalCost)

		for _, it := range est.Items {
			assert.Greater(t, it.Quantity, 0.0)
			assert.Greater(t, it.Rate, 0.0)
			want, _ := decimal.NewFromFloat(it.Quantity).Mul(decimal.NewFromFloat(it.Rate)).Round(2).Float64()
			assert.Equal(t, want, it.Amount)
		}
	}
}

func TestGenerate_randomSubsetSize(t *testing.T) {
	gen := NewGenerator(rand.NewPCG(7, 7))
	for i := 0; i < 100; i++ {
		est := gen.Generate(models.TypeOther)
		assert.GreaterOrEqual(t, len(est.Items), 8)
		assert.LessOrEqual(t, len(est.Items), 12)
		seen := map[string]bool{}
		for _, it := range est.Items {
			assert.False(t, seen[it.Description], "duplicate %s", it.Description)
			seen[it.Description] = true
		}
	}
}

func TestGenerate_typedCatalog(t *testing.T) {
	gen := NewGenerator(rand.NewPCG(3, 4))
	est := gen.Generate(models.TypeResidential)
	require.Len(t, est.Items, len(typeCatalog[models.TypeResidential]))
	for i, it := range est.Items {
		assert.Equal(t, typeCatalog[models.TypeResidential][i], it.Description)
	}
}

func TestGenerate_rateJitterBounds(t *testing.T) {
	gen := NewGenerator(rand.NewPCG(11, 13))
	base := map[string]float64{}
	for _, c := range Catalog {
		base[c.Description] = c.BaseRate
	}
	for i := 0; i < 50; i++ {
		for _, it := range gen.Generate("").Items {
			b := base[it.Description]
			assert.GreaterOrEqual(t, it.Rate, math.Floor(b*0.8*100)/100, it.Description)
			assert.LessOrEqual(t, it.Rate, math.Ceil(b*1.2*100)/100, it.Description)
		}
	}
}

func TestGenerate_seededIsDeterministic(t *testing.T) {
	a := NewGenerator(rand.NewPCG(42, 42)).Generate(models.TypeCommercial)
	b := NewGenerator(rand.NewPCG(42, 42)).Generate(models.TypeCommercial)
	assert.Equal(t, a, b)
}

func TestAggregate_recomputesTotal(t *testing.T) {
	results := []*models.AnalysisResult{
		{
			FileName:           "a.pdf",
			Accuracy:           80,
			TotalEstimatedCost: 999999,
			Items: []models.ExtractedItem{
				{Name: "Concrete", Category: "Structural", Quantity: 10, Unit: "m³", EstimatedRate: 150.556},
				{Name: "Wiring", Category: "electrical work", Quantity: 100, Unit: "m", EstimatedRate: 2.5},
			},
		},
		nil,
		{
			FileName: "b.xlsx",
			Accuracy: 90,
			Items: []models.ExtractedItem{
				{Name: "Paint", Quantity: 200, Unit: "m²", EstimatedRate: 4},
			},
		},
	}
	est := Aggregate(results, func() models.Estimate {
		t.Fatal("fallback must not run when items exist")
		return models.Estimate{}
	})

	require.Len(t, est.Items, 3)
	assert.Equal(t, models.SourceAnalysis, est.Source)
	assert.Equal(t, 1505.56+250+800, est.TotalCost)
	assert.Equal(t, sumAmounts(est.Items), est.TotalCost)
	assert.Equal(t, 85.0, est.Accuracy)
	assert.Equal(t, "structural", est.Items[0].Category)
	assert.Equal(t, "electrical", est.Items[1].Category)
	assert.Equal(t, "finishing", est.Items[2].Category)
	assert.Equal(t, "b.xlsx", est.Items[2].SourceFile)
}

func TestAggregate_filtersInvalidItems(t *testing.T) {
	results := []*models.AnalysisResult{{
		Accuracy: 70,
		Items: []models.ExtractedItem{
			{Name: "", Quantity: 1, EstimatedRate: 1},
			{Name: "negative", Quantity: -1, EstimatedRate: 10},
			{Name: "nan", Quantity: math.NaN(), EstimatedRate: 10},
			{Name: "inf", Quantity: 1, EstimatedRate: math.Inf(1)},
			{Name: "ok", Quantity: 2, EstimatedRate: 3},
		},
	}}
	est := Aggregate(results, nil)
	require.Len(t, est.Items, 1)
	assert.Equal(t, "ok", est.Items[0].Description)
	assert.Equal(t, 6.0, est.TotalCost)
}

func TestAggregate_unpricedItemsFallBack(t *testing.T) {
	results := []*models.AnalysisResult{{
		FileName: "boq.pdf",
		Accuracy: 80,
		Items: []models.ExtractedItem{
			{Name: "Concrete", Quantity: 10},
			{Name: "Steel", Quantity: 0, EstimatedRate: 5},
			{Name: "Nails", Quantity: 1, EstimatedRate: 0.001},
		},
	}}
	calls := 0
	est := Aggregate(results, func() models.Estimate {
		calls++
		return NewGenerator(rand.NewPCG(3, 4)).Generate(models.TypeResidential)
	})
	assert.Equal(t, 1, calls)
	assert.Equal(t, models.SourceFallback, est.Source)
	assert.Greater(t, est.TotalCost, 0.0)

	results[0].Items = append(results[0].Items, models.ExtractedItem{Name: "Rebar", Quantity: 2, EstimatedRate: 4})
	est = Aggregate(results, func() models.Estimate {
		t.Fatal("fallback must not run when a priced item exists")
		return models.Estimate{}
	})
	require.Len(t, est.Items, 1)
	assert.Equal(t, "Rebar", est.Items[0].Description)
	assert.Equal(t, 8.0, est.TotalCost)
	assert.Equal(t, 80.0, est.Accuracy)
}

func TestAggregate_emptySubstitutesFallback(t *testing.T) {
	gen := NewGenerator(rand.NewPCG(5, 6))
	calls := 0
	fallback := func() models.Estimate {
		calls++
		return gen.Generate(models.TypeIndustrial)
	}

	for name, results := range map[string][]*models.AnalysisResult{
		"no results":     nil,
		"all errored":    {nil, nil},
		"empty items":    {{Accuracy: 95}, {Items: []models.ExtractedItem{}}},
		"only bad items": {{Items: []models.ExtractedItem{{Name: "x", Quantity: -5}}}},
	} {
		calls = 0
		est := Aggregate(results, fallback)
		assert.Equal(t, 1, calls, name)
		assert.Equal(t, models.SourceFallback, est.Source, name)
		assert.NotEmpty(t, est.Items, name)
		assert.Greater(t, est.TotalCost, 0.0, name)
	}
}

func TestAggregate_accuracyExcludesEmptyAndErroredDocs(t *testing.T) {
	results := []*models.AnalysisResult{
		{Accuracy: 90, Items: []models.ExtractedItem{{Name: "a", Quantity: 1, EstimatedRate: 1}}},
		{Accuracy: 10},
		nil,
		{Accuracy: 150, Items: []models.ExtractedItem{{Name: "b", Quantity: 1, EstimatedRate: 1}}},
		{Items: []models.ExtractedItem{{Name: "c", Quantity: 1, EstimatedRate: 1, Confidence: 60}}},
	}
	est := Aggregate(results, nil)
	// 90, clamp(150)=100, confidence mean 60
	assert.InDelta(t, 83.3, est.Accuracy, 1e-9)
}

func TestNormalizeCategory(t *testing.T) {
	cases := []struct{ category, name, want string }{
		{"HVAC", "", "hvac"},
		{"Mechanical", "", "hvac"},
		{"Site Work", "", "civil"},
		{"", "Reinforced concrete slab", "structural"},
		{"", "Ceramic tiling", "finishing"},
		{"Labour", "", "labor"},
		{"Crane rental", "", "equipment"},
		{"misc", "widgets", "materials"},
		{"", "", "materials"},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, NormalizeCategory(c.category, c.name), "%q/%q", c.category, c.name)
	}
}
