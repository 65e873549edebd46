package convert

import (
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/shopspring/decimal"

	"github.com/hyperjump/buildcost/internal/locale"
)

// Round rounds value half away from zero to digits decimal places.
func Round(value float64, digits int) float64 {
	f, _ := decimal.NewFromFloat(value).Round(int32(digits)).Float64()
	return f
}

// FormatNumber renders value with digits fraction digits using the separators of nf.
func FormatNumber(value float64, nf locale.NumberFormat, digits int) string {
	if digits < 0 {
		digits = 0
	}
	d := decimal.NewFromFloat(value).Round(int32(digits))
	neg := d.IsNegative()
	s := d.Abs().StringFixed(int32(digits))

	intPart, frac, _ := strings.Cut(s, ".")
	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	b.WriteString(group(intPart, nf))
	if digits > 0 {
		dec := nf.Decimal
		if dec == "" {
			dec = "."
		}
		b.WriteString(dec)
		b.WriteString(frac)
	}
	return b.String()
}

// group inserts the group separator into a run of integer digits.
func group(digits string, nf locale.NumberFormat) string {
	if nf.Group == "" || len(digits) <= 3 {
		return digits
	}
	head, tail := digits[:len(digits)-3], digits[len(digits)-3:]
	size := 3
	if nf.Grouping == locale.GroupingIndian {
		size = 2
	}
	var parts []string
	for len(head) > size {
		parts = append([]string{head[len(head)-size:]}, parts...)
		head = head[:len(head)-size]
	}
	if head != "" {
		parts = append([]string{head}, parts...)
	}
	parts = append(parts, tail)
	return strings.Join(parts, nf.Group)
}

// FormatCurrency renders amount in the country's currency: rounded to the currency's fraction
// digits, grouped per locale, with the symbol placed before or after the number.
func FormatCurrency(amount float64, p locale.CountryProfile) string {
	num := FormatNumber(amount, p.NumberFormat, p.FractionDigits)
	sign := ""
	if strings.HasPrefix(num, "-") {
		sign, num = "-", num[1:]
	}
	sym := p.Symbol
	if sym == "" {
		sym = p.Currency
	}
	sep := ""
	if p.NumberFormat.SymbolSpace {
		sep = " "
	}
	if p.NumberFormat.SymbolPosition == locale.SymbolAfter {
		return sign + num + sep + sym
	}
	return sign + sym + sep + num
}

// FormatDate renders t in the country's timezone using its date layout.
func FormatDate(t time.Time, p locale.CountryProfile) string {
	if loc, err := time.LoadLocation(p.Timezone); err == nil && p.Timezone != "" {
		t = t.In(loc)
	}
	layout := p.DateFormat
	if layout == "" {
		layout = "2006-01-02"
	}
	return t.Format(layout)
}
