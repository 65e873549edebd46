package convert

import "strings"

// UnitKind groups units that can be converted into each other.
type UnitKind string

const (
	KindArea   UnitKind = "area"
	KindVolume UnitKind = "volume"
	KindLength UnitKind = "length"
	KindWeight UnitKind = "weight"
)

type unitDef struct {
	kind UnitKind
	// toBase multiplies a value in this unit into the kind's metric base (m², m³, m, kg).
	toBase float64
}

var units = map[string]unitDef{
	"m²":  {KindArea, 1},
	"ft²": {KindArea, 0.09290304},
	"yd²": {KindArea, 0.83612736},

	"m³":  {KindVolume, 1},
	"ft³": {KindVolume, 0.028316846592},
	"yd³": {KindVolume, 0.764554857984},

	"m":  {KindLength, 1},
	"ft": {KindLength, 0.3048},
	"yd": {KindLength, 0.9144},

	"kg":  {KindWeight, 1},
	"lb":  {KindWeight, 0.45359237},
	"t":   {KindWeight, 1000},
	"ton": {KindWeight, 907.18474},
}

var unitAliases = map[string]string{
	"m2": "m²", "sqm": "m²", "sq m": "m²", "sq.m": "m²", "square meter": "m²", "square meters": "m²", "square metre": "m²",
	"ft2": "ft²", "sqft": "ft²", "sq ft": "ft²", "sq.ft": "ft²", "square foot": "ft²", "square feet": "ft²",
	"yd2": "yd²", "sq yd": "yd²", "square yard": "yd²", "square yards": "yd²",
	"m3": "m³", "cbm": "m³", "cu m": "m³", "cubic meter": "m³", "cubic meters": "m³", "cubic metre": "m³",
	"ft3": "ft³", "cu ft": "ft³", "cubic foot": "ft³", "cubic feet": "ft³",
	"yd3": "yd³", "cu yd": "yd³", "cubic yard": "yd³", "cubic yards": "yd³",
	"meter": "m", "meters": "m", "metre": "m", "metres": "m", "lm": "m", "lin m": "m",
	"foot": "ft", "feet": "ft", "lf": "ft", "lin ft": "ft",
	"yard": "yd", "yards": "yd",
	"kgs": "kg", "kilogram": "kg", "kilograms": "kg",
	"lbs": "lb", "pound": "lb", "pounds": "lb",
	"tonne": "t", "tonnes": "t", "metric ton": "t",
	"tons": "ton", "short ton": "ton", "short tons": "ton",
}

// NormalizeUnit maps common spellings ("sqm", "sq ft", "ft2") onto the canonical unit symbol.
// Units it does not know are returned trimmed but otherwise unchanged.
func NormalizeUnit(u string) string {
	s := strings.TrimSpace(u)
	if _, ok := units[s]; ok {
		return s
	}
	lower := strings.ToLower(s)
	if _, ok := units[lower]; ok {
		return lower
	}
	if alias, ok := unitAliases[lower]; ok {
		return alias
	}
	return s
}

// Kind reports the kind of unit u, or false when u is not a convertible unit.
func Kind(u string) (UnitKind, bool) {
	def, ok := units[NormalizeUnit(u)]
	return def.kind, ok
}

// ConvertUnit converts value between two units of the same kind. Identical units, unknown units
// and mismatched kinds return value unchanged.
func ConvertUnit(value float64, from, to string) float64 {
	from, to = NormalizeUnit(from), NormalizeUnit(to)
	if from == to {
		return value
	}
	f, ok := units[from]
	if !ok {
		return value
	}
	t, ok := units[to]
	if !ok || f.kind != t.kind {
		return value
	}
	return value * f.toBase / t.toBase
}
