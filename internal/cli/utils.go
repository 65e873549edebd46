// Package cli renders estimates and country lists for the buildcost command line.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/hyperjump/buildcost/internal/convert"
	"github.com/hyperjump/buildcost/internal/locale"
	"github.com/hyperjump/buildcost/internal/models"
	"github.com/hyperjump/buildcost/pkg/utils"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// ParseOutputFormat accepts "text", "json" or empty (text).
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch OutputFormat(strings.ToLower(strings.TrimSpace(s))) {
	case "", OutputText:
		return OutputText, nil
	case OutputJSON:
		return OutputJSON, nil
	}
	return "", fmt.Errorf("unknown output format %q (want text or json)", s)
}

const descriptionWidth = 48

// Estimate is what the estimate command prints: the localized view plus per-file outcomes.
type Estimate struct {
	View  convert.ProjectView `json:"estimate"`
	Files []models.FileRecord `json:"files"`
}

// WriteEstimate writes an estimate to w in the given format.
func WriteEstimate(w io.Writer, est Estimate, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, est)
	}
	v := est.View
	fmt.Fprintf(w, "\n%s (%s, %s)\n", v.Name, v.Type, v.Country)
	if v.EstimateSource == models.SourceFallback {
		fmt.Fprintln(w, "Reference estimate: no document produced usable line items.")
	}
	if len(est.Files) > 0 {
		fmt.Fprintln(w, "\nFiles:")
		for _, f := range est.Files {
			if f.Error != "" {
				fmt.Fprintf(w, "  %-30s %s: %s\n", f.FileName, f.Status, f.Error)
				continue
			}
			fmt.Fprintf(w, "  %-30s %s\n", f.FileName, f.Status)
		}
	}
	fmt.Fprintln(w)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CATEGORY\tDESCRIPTION\tQTY\tUNIT\tRATE\tAMOUNT")
	for _, it := range v.Items {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			it.Category,
			utils.Truncate(it.Description, descriptionWidth),
			strconv.FormatFloat(it.Quantity, 'f', -1, 64),
			it.Unit,
			it.FormattedRate,
			it.FormattedAmount,
		)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(w, "\nTotal: %s (%s)  Accuracy: %.0f%%\n", v.FormattedTotal, v.Currency, v.Accuracy)
	return nil
}

// WriteCountries writes the supported countries to w in the given format.
func WriteCountries(w io.Writer, countries []locale.CountryProfile, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, countries)
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CODE\tNAME\tCURRENCY\tLOCALE\tUNITS\tTIMEZONE")
	for _, c := range countries {
		fmt.Fprintf(tw, "%s\t%s\t%s %s\t%s\t%s\t%s\n", c.Code, c.Name, c.Currency, c.Symbol, c.Locale, c.UnitSystem, c.Timezone)
	}
	return tw.Flush()
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
