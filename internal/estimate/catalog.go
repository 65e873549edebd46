// Package estimate produces project-level cost breakdowns: the synthetic fallback estimator and
// the aggregator that reduces per-document analysis results into line items.
package estimate

import "github.com/hyperjump/buildcost/internal/models"

// CatalogItem is a priced work item with a plausible quantity range. Rates are canonical (USD per unit).
type CatalogItem struct {
	Category    string
	Description string
	Unit        string
	BaseRate    float64
	MinQty      float64
	MaxQty      float64
}

// Catalog is the full list of work items the fallback estimator draws from.
var Catalog = []CatalogItem{
	{models.CategoryStructural, "Reinforced concrete foundation", "m³", 185, 20, 120},
	{models.CategoryStructural, "Structural steel framing", "kg", 3.2, 2000, 15000},
	{models.CategoryStructural, "Concrete slab on grade", "m²", 62, 150, 1200},
	{models.CategoryStructural, "Load-bearing masonry walls", "m²", 95, 80, 600},
	{models.CategoryStructural, "Timber roof trusses", "m²", 48, 100, 500},
	{models.CategoryStructural, "Rebar supply and placement", "kg", 1.85, 1500, 12000},

	{models.CategoryCivil, "Site clearing and grading", "m²", 4.5, 500, 5000},
	{models.CategoryCivil, "Bulk excavation", "m³", 18, 100, 2000},
	{models.CategoryCivil, "Asphalt paving", "m²", 38, 200, 3000},
	{models.CategoryCivil, "Storm drainage piping", "m", 72, 50, 600},
	{models.CategoryCivil, "Compacted aggregate base", "m³", 42, 50, 800},

	{models.CategoryElectrical, "Main distribution panel", "ea", 4200, 1, 4},
	{models.CategoryElectrical, "Branch circuit wiring", "m", 12.5, 300, 4000},
	{models.CategoryElectrical, "LED lighting fixtures", "ea", 145, 20, 250},
	{models.CategoryElectrical, "Power outlets and switches", "ea", 68, 30, 400},

	{models.CategoryPlumbing, "Water supply piping", "m", 28, 80, 900},
	{models.CategoryPlumbing, "Sanitary drain and vent piping", "m", 36, 60, 700},
	{models.CategoryPlumbing, "Plumbing fixtures installation", "ea", 650, 4, 60},
	{models.CategoryPlumbing, "Water heater", "ea", 1850, 1, 6},

	{models.CategoryFinishing, "Interior drywall and painting", "m²", 32, 200, 3000},
	{models.CategoryFinishing, "Ceramic floor tiling", "m²", 58, 60, 900},
	{models.CategoryFinishing, "Suspended acoustic ceiling", "m²", 44, 100, 2000},
	{models.CategoryFinishing, "Interior doors and hardware", "ea", 520, 6, 80},
	{models.CategoryFinishing, "Exterior cladding", "m²", 110, 100, 1500},

	{models.CategoryHVAC, "Rooftop HVAC units", "ea", 12500, 1, 8},
	{models.CategoryHVAC, "Ductwork fabrication and install", "kg", 9.5, 400, 6000},
	{models.CategoryHVAC, "Ventilation fans and diffusers", "ea", 380, 6, 90},
	{models.CategoryHVAC, "Split system air conditioning", "ea", 3200, 1, 20},
}

// typeCatalog lists, per project type, the catalog descriptions that make sense for it.
var typeCatalog = map[models.ProjectType][]string{
	models.TypeResidential: {
		"Reinforced concrete foundation", "Timber roof trusses", "Load-bearing masonry walls",
		"Branch circuit wiring", "Power outlets and switches", "Water supply piping",
		"Plumbing fixtures installation", "Water heater", "Interior drywall and painting",
		"Ceramic floor tiling", "Interior doors and hardware", "Split system air conditioning",
	},
	models.TypeCommercial: {
		"Reinforced concrete foundation", "Structural steel framing", "Concrete slab on grade",
		"Asphalt paving", "Main distribution panel", "LED lighting fixtures",
		"Sanitary drain and vent piping", "Suspended acoustic ceiling", "Exterior cladding",
		"Rooftop HVAC units", "Ductwork fabrication and install",
	},
	models.TypeIndustrial: {
		"Structural steel framing", "Concrete slab on grade", "Rebar supply and placement",
		"Site clearing and grading", "Compacted aggregate base", "Main distribution panel",
		"Branch circuit wiring", "LED lighting fixtures", "Storm drainage piping",
		"Ventilation fans and diffusers", "Ductwork fabrication and install",
	},
	models.TypeInfrastructure: {
		"Site clearing and grading", "Bulk excavation", "Asphalt paving", "Storm drainage piping",
		"Compacted aggregate base", "Rebar supply and placement", "Reinforced concrete foundation",
		"Branch circuit wiring", "LED lighting fixtures",
	},
	models.TypeRenovation: {
		"Interior drywall and painting", "Ceramic floor tiling", "Suspended acoustic ceiling",
		"Interior doors and hardware", "Power outlets and switches", "LED lighting fixtures",
		"Plumbing fixtures installation", "Water supply piping", "Split system air conditioning",
	},
}

// CatalogFor returns the catalog subset for projectType, or nil when the type has none.
func CatalogFor(projectType models.ProjectType) []CatalogItem {
	names, ok := typeCatalog[projectType]
	if !ok {
		return nil
	}
	out := make([]CatalogItem, 0, len(names))
	for _, name := range names {
		for _, c := range Catalog {
			if c.Description == name {
				out = append(out, c)
				break
			}
		}
	}
	return out
}
