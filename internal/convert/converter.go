// Package convert turns canonical (USD, metric) values into a viewer's regional display values:
// currency and unit conversion, regional cost factors, and locale formatting.
package convert

import (
	"strings"

	"github.com/hyperjump/buildcost/internal/locale"
)

// Converter converts using the registry's current exchange-rate table.
type Converter struct {
	reg *locale.Registry
}

// New returns a Converter backed by reg.
func New(reg *locale.Registry) *Converter {
	return &Converter{reg: reg}
}

// Registry returns the registry the converter reads.
func (c *Converter) Registry() *locale.Registry {
	return c.reg
}

// ConvertCurrency converts amount from one currency to another through the base currency.
// Equal currencies return amount untouched; unknown currencies return amount unchanged.
func (c *Converter) ConvertCurrency(amount float64, from, to string) float64 {
	from, to = strings.ToUpper(strings.TrimSpace(from)), strings.ToUpper(strings.TrimSpace(to))
	if from == to {
		return amount
	}
	rates := c.reg.Rates()
	rf, ok := rates.Rate(from)
	if !ok {
		return amount
	}
	rt, ok := rates.Rate(to)
	if !ok {
		return amount
	}
	return amount / rf * rt
}

// DisplayUnit returns the unit a canonical unit is shown in for p. Only the canonical metric
// units (m², m³, m, kg) are mapped; anything else is shown as stored.
func DisplayUnit(unit string, p locale.CountryProfile) string {
	n := NormalizeUnit(unit)
	kind, ok := Kind(n)
	if !ok {
		return unit
	}
	var canonical, target string
	switch kind {
	case KindArea:
		canonical, target = locale.MetricUnits.Area, p.Units.Area
	case KindVolume:
		canonical, target = locale.MetricUnits.Volume, p.Units.Volume
	case KindLength:
		canonical, target = locale.MetricUnits.Length, p.Units.Length
	case KindWeight:
		canonical, target = locale.MetricUnits.Weight, p.Units.Weight
	}
	if n != canonical || target == "" {
		return unit
	}
	if _, known := Kind(target); !known {
		return unit
	}
	return target
}
