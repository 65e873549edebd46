package locale

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"strings"
	"sync/atomic"

	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

//go:embed countries.yaml
var defaultAsset []byte

// Registry is the process-wide country table. Profiles and factors are fixed at load time;
// the exchange-rate table can only be replaced as a whole via SwapRates.
type Registry struct {
	countries  []CountryProfile
	byCode     map[string]int
	byLocale   map[string]int
	byTimezone map[string]int
	factors    map[string]Factors
	base       int
	rates      atomic.Pointer[RateTable]
}

type registryFile struct {
	BaseCountry  string             `yaml:"base_country"`
	BaseCurrency string             `yaml:"base_currency"`
	Rates        map[string]float64 `yaml:"rates"`
	Countries    []countryEntry     `yaml:"countries"`
}

type countryEntry struct {
	Code           string             `yaml:"code"`
	Name           string             `yaml:"name"`
	Currency       string             `yaml:"currency"`
	Symbol         string             `yaml:"symbol"`
	FractionDigits *int               `yaml:"fraction_digits"`
	Locale         string             `yaml:"locale"`
	DateFormat     string             `yaml:"date_format"`
	NumberFormat   NumberFormat       `yaml:"number_format"`
	Timezone       string             `yaml:"timezone"`
	UnitSystem     UnitSystem         `yaml:"unit_system"`
	Units          *ConstructionUnits `yaml:"units"`
	Factors        map[string]float64 `yaml:"factors"`
}

// LoadDefault builds the registry from the embedded country table.
func LoadDefault() (*Registry, error) {
	return Load(bytes.NewReader(defaultAsset))
}

// Load parses a registry document and validates it. Every country currency must be present
// in the rate table, and country codes, locales and timezones must be unique.
func Load(r io.Reader) (*Registry, error) {
	var f registryFile
	if err := yaml.NewDecoder(r).Decode(&f); err != nil {
		return nil, fmt.Errorf("failed to parse country registry: %w", err)
	}
	if len(f.Countries) == 0 {
		return nil, fmt.Errorf("country registry: no countries")
	}
	rates, err := NewRateTable(f.BaseCurrency, f.Rates)
	if err != nil {
		return nil, err
	}

	reg := &Registry{
		byCode:     make(map[string]int, len(f.Countries)),
		byLocale:   make(map[string]int, len(f.Countries)),
		byTimezone: make(map[string]int, len(f.Countries)),
		factors:    make(map[string]Factors, len(f.Countries)),
		base:       -1,
	}
	for _, e := range f.Countries {
		p, err := e.profile()
		if err != nil {
			return nil, err
		}
		if _, dup := reg.byCode[p.Code]; dup {
			return nil, fmt.Errorf("country registry: duplicate country %s", p.Code)
		}
		if _, ok := rates.Rate(p.Currency); !ok {
			return nil, fmt.Errorf("country registry: %s uses currency %s with no exchange rate", p.Code, p.Currency)
		}
		factors := make(Factors, len(e.Factors))
		for cat, v := range e.Factors {
			if v <= 0 {
				return nil, fmt.Errorf("country registry: %s factor %s must be positive", p.Code, cat)
			}
			factors[strings.ToLower(cat)] = v
		}

		i := len(reg.countries)
		reg.countries = append(reg.countries, p)
		reg.byCode[p.Code] = i
		reg.factors[p.Code] = factors
		if _, dup := reg.byLocale[strings.ToLower(p.Locale)]; !dup {
			reg.byLocale[strings.ToLower(p.Locale)] = i
		}
		if _, dup := reg.byTimezone[p.Timezone]; !dup && p.Timezone != "" {
			reg.byTimezone[p.Timezone] = i
		}
		if p.Code == strings.ToUpper(f.BaseCountry) {
			reg.base = i
		}
	}
	if reg.base < 0 {
		return nil, fmt.Errorf("country registry: base country %q not defined", f.BaseCountry)
	}
	if reg.countries[reg.base].Currency != rates.Base() {
		return nil, fmt.Errorf("country registry: base country currency %s differs from base currency %s",
			reg.countries[reg.base].Currency, rates.Base())
	}
	reg.rates.Store(rates)
	return reg, nil
}

func (e countryEntry) profile() (CountryProfile, error) {
	code := strings.ToUpper(strings.TrimSpace(e.Code))
	if code == "" {
		return CountryProfile{}, fmt.Errorf("country registry: country code is required")
	}
	if e.Currency == "" || e.Locale == "" {
		return CountryProfile{}, fmt.Errorf("country registry: %s needs currency and locale", code)
	}
	digits := 2
	if e.FractionDigits != nil {
		digits = *e.FractionDigits
	}
	system := e.UnitSystem
	if system == "" {
		system = Metric
	}
	units := MetricUnits
	if e.Units != nil {
		units = *e.Units
	}
	nf := e.NumberFormat
	if nf.Decimal == "" {
		nf.Decimal = "."
	}
	if nf.Grouping == "" {
		nf.Grouping = GroupingStandard
	}
	if nf.SymbolPosition == "" {
		nf.SymbolPosition = SymbolBefore
	}
	dateFormat := e.DateFormat
	if dateFormat == "" {
		dateFormat = "2006-01-02"
	}
	return CountryProfile{
		Code:           code,
		Name:           e.Name,
		Currency:       strings.ToUpper(e.Currency),
		Symbol:         e.Symbol,
		FractionDigits: digits,
		Locale:         e.Locale,
		DateFormat:     dateFormat,
		NumberFormat:   nf,
		Timezone:       e.Timezone,
		UnitSystem:     system,
		Units:          units,
	}, nil
}

// Countries returns all profiles in registry order.
func (r *Registry) Countries() []CountryProfile {
	return append([]CountryProfile(nil), r.countries...)
}

// Country returns the profile for code (case-insensitive).
func (r *Registry) Country(code string) (CountryProfile, bool) {
	i, ok := r.byCode[strings.ToUpper(strings.TrimSpace(code))]
	if !ok {
		return CountryProfile{}, false
	}
	return r.countries[i], true
}

// Base returns the base country profile.
func (r *Registry) Base() CountryProfile {
	return r.countries[r.base]
}

// ResolveCountry picks a profile for a viewer. Resolution order: explicit code, exact locale,
// exact timezone, language of the locale, then the base country. It always returns a profile.
func (r *Registry) ResolveCountry(candidateLocale, candidateTimezone, explicitCode string) CountryProfile {
	if p, ok := r.Country(explicitCode); ok {
		return p
	}
	loc := normalizeLocale(candidateLocale)
	if loc != "" {
		if i, ok := r.byLocale[loc]; ok {
			return r.countries[i]
		}
	}
	if tz := strings.TrimSpace(candidateTimezone); tz != "" {
		if i, ok := r.byTimezone[tz]; ok {
			return r.countries[i]
		}
	}
	if lang := primaryLanguage(candidateLocale); lang != "" {
		for _, p := range r.countries {
			if p.Language() == lang {
				return p
			}
		}
	}
	return r.Base()
}

// CostFactors returns the regional factors for code, or neutral (all 1.0) factors when unknown.
func (r *Registry) CostFactors(code string) Factors {
	if f, ok := r.factors[strings.ToUpper(strings.TrimSpace(code))]; ok {
		return f
	}
	return neutralFactors
}

// Rates returns the current exchange-rate table.
func (r *Registry) Rates() *RateTable {
	return r.rates.Load()
}

// SwapRates atomically replaces the exchange-rate table. The new table must share the base
// currency and cover every country currency; otherwise the current table is kept.
func (r *Registry) SwapRates(t *RateTable) error {
	if t == nil {
		return fmt.Errorf("swap rates: nil table")
	}
	if cur := r.rates.Load(); cur != nil && cur.Base() != t.Base() {
		return fmt.Errorf("swap rates: base currency %s differs from %s", t.Base(), cur.Base())
	}
	for _, p := range r.countries {
		if _, ok := t.Rate(p.Currency); !ok {
			return fmt.Errorf("swap rates: missing rate for %s", p.Currency)
		}
	}
	r.rates.Store(t)
	return nil
}

// normalizeLocale lower-cases a locale tag and uses '-' as separator ("en_us" -> "en-us").
func normalizeLocale(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if tag, err := language.Parse(strings.ReplaceAll(s, "_", "-")); err == nil {
		return strings.ToLower(tag.String())
	}
	return strings.ToLower(strings.ReplaceAll(s, "_", "-"))
}

func primaryLanguage(s string) string {
	s = strings.TrimSpace(strings.ReplaceAll(s, "_", "-"))
	if s == "" {
		return ""
	}
	if tag, err := language.Parse(s); err == nil {
		if base, conf := tag.Base(); conf != language.No {
			return base.String()
		}
	}
	lang, _, _ := strings.Cut(strings.ToLower(s), "-")
	return lang
}
