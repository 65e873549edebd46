package locale

import (
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// RateTable maps currency code to units of that currency per one unit of Base.
// A RateTable is never mutated after construction; refreshes build a new table.
type RateTable struct {
	base  string
	rates map[string]float64
}

// NewRateTable validates rates and returns a table. The base currency must map to exactly 1.0
// and every rate must be finite and positive.
func NewRateTable(base string, rates map[string]float64) (*RateTable, error) {
	base = strings.ToUpper(strings.TrimSpace(base))
	if base == "" {
		return nil, fmt.Errorf("rate table: base currency is required")
	}
	copied := make(map[string]float64, len(rates))
	for code, rate := range rates {
		code = strings.ToUpper(strings.TrimSpace(code))
		if math.IsNaN(rate) || math.IsInf(rate, 0) || rate <= 0 {
			return nil, fmt.Errorf("rate table: invalid rate %v for %s", rate, code)
		}
		copied[code] = rate
	}
	if r, ok := copied[base]; !ok || r != 1.0 {
		return nil, fmt.Errorf("rate table: base currency %s must map to 1.0", base)
	}
	return &RateTable{base: base, rates: copied}, nil
}

// Base returns the base currency code.
func (t *RateTable) Base() string { return t.base }

// Rate returns the rate for code.
func (t *RateTable) Rate(code string) (float64, bool) {
	r, ok := t.rates[strings.ToUpper(code)]
	return r, ok
}

// Codes returns all currency codes in the table, sorted.
func (t *RateTable) Codes() []string {
	codes := make([]string, 0, len(t.rates))
	for c := range t.rates {
		codes = append(codes, c)
	}
	sort.Strings(codes)
	return codes
}

// Snapshot returns a copy of the rates.
func (t *RateTable) Snapshot() map[string]float64 {
	out := make(map[string]float64, len(t.rates))
	for k, v := range t.rates {
		out[k] = v
	}
	return out
}

type rateFile struct {
	Base  string             `yaml:"base"`
	Rates map[string]float64 `yaml:"rates"`
}

// LoadRates parses a rates document:
//
//	base: USD
//	rates:
//	  USD: 1.0
//	  EUR: 0.85
func LoadRates(r io.Reader) (*RateTable, error) {
	var f rateFile
	if err := yaml.NewDecoder(r).Decode(&f); err != nil {
		return nil, fmt.Errorf("failed to parse rates: %w", err)
	}
	return NewRateTable(f.Base, f.Rates)
}

// LoadRatesFile reads a rates document from path.
func LoadRatesFile(path string) (*RateTable, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open rates file: %w", err)
	}
	defer fh.Close()
	return LoadRates(fh)
}
