// Package locale provides the country registry: country profiles, exchange rates against a
// fixed base currency, and regional cost factors.
package locale

import "strings"

// UnitSystem is the measurement system a country builds with.
type UnitSystem string

const (
	Metric   UnitSystem = "metric"
	Imperial UnitSystem = "imperial"
)

// Grouping styles for integer digits.
const (
	GroupingStandard = "standard" // 1,234,567
	GroupingIndian   = "indian"   // 12,34,567
)

// Symbol positions relative to the number.
const (
	SymbolBefore = "before"
	SymbolAfter  = "after"
)

// NumberFormat describes how a locale renders numbers and money.
type NumberFormat struct {
	Decimal        string `yaml:"decimal" json:"decimal"`
	Group          string `yaml:"group" json:"group"`
	Grouping       string `yaml:"grouping" json:"grouping"`
	SymbolPosition string `yaml:"symbol_position" json:"symbol_position"`
	SymbolSpace    bool   `yaml:"symbol_space" json:"symbol_space"`
}

// ConstructionUnits are the unit symbols a country quotes construction quantities in.
type ConstructionUnits struct {
	Area   string `yaml:"area" json:"area"`
	Volume string `yaml:"volume" json:"volume"`
	Length string `yaml:"length" json:"length"`
	Weight string `yaml:"weight" json:"weight"`
}

// MetricUnits is the canonical unit set line items are stored in.
var MetricUnits = ConstructionUnits{Area: "m²", Volume: "m³", Length: "m", Weight: "kg"}

// CountryProfile is an immutable description of one supported country.
type CountryProfile struct {
	Code           string            `json:"code"`
	Name           string            `json:"name"`
	Currency       string            `json:"currency"`
	Symbol         string            `json:"symbol"`
	FractionDigits int               `json:"fraction_digits"`
	Locale         string            `json:"locale"`
	DateFormat     string            `json:"date_format"`
	NumberFormat   NumberFormat      `json:"number_format"`
	Timezone       string            `json:"timezone"`
	UnitSystem     UnitSystem        `json:"unit_system"`
	Units          ConstructionUnits `json:"units"`
}

// Language returns the lower-case primary language subtag of the profile's locale ("de" for "de-CH").
func (p CountryProfile) Language() string {
	lang, _, _ := strings.Cut(strings.ToLower(p.Locale), "-")
	return lang
}

// Factors maps cost category to a positive multiplier over canonical US rates.
type Factors map[string]float64

// For returns the multiplier for category, or 1.0 when the category is not listed.
func (f Factors) For(category string) float64 {
	if v, ok := f[strings.ToLower(category)]; ok && v > 0 {
		return v
	}
	return 1.0
}

// neutralFactors is returned for unknown countries.
var neutralFactors = Factors{}
