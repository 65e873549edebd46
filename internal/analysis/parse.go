package analysis

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/hyperjump/buildcost/internal/models"
)

// flexFloat accepts JSON numbers and numeric strings such as "1,200.50" or "$45".
// Unparseable strings decode to NaN so the aggregator drops the item.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*f = 0
		return nil
	}
	if b[0] != '"' {
		var v float64
		if err := json.Unmarshal(b, &v); err != nil {
			*f = flexFloat(math.NaN())
			return nil
		}
		*f = flexFloat(v)
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		*f = flexFloat(math.NaN())
		return nil
	}
	*f = flexFloat(parseLooseNumber(s))
	return nil
}

func parseLooseNumber(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	var b strings.Builder
scan:
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9', r == '.', r == '-':
			b.WriteRune(r)
		case r == ',' || r == '_' || r == ' ' || r == '%' || r == '$':
		default:
			// stop at trailing unit text, e.g. "120 m2"
			if b.Len() > 0 {
				break scan
			}
		}
	}
	v, err := strconv.ParseFloat(b.String(), 64)
	if err != nil {
		return math.NaN()
	}
	return v
}

// flexStrings accepts either a string or a list of strings.
type flexStrings []string

func (f *flexStrings) UnmarshalJSON(b []byte) error {
	var list []string
	if err := json.Unmarshal(b, &list); err == nil {
		*f = list
		return nil
	}
	var one string
	if err := json.Unmarshal(b, &one); err == nil && strings.TrimSpace(one) != "" {
		*f = []string{one}
	}
	return nil
}

type rawItem struct {
	Item          string    `json:"item"`
	Name          string    `json:"name"`
	Description   string    `json:"description"`
	Category      string    `json:"category"`
	Quantity      flexFloat `json:"quantity"`
	Unit          string    `json:"unit"`
	EstimatedRate flexFloat `json:"estimated_rate"`
	Rate          flexFloat `json:"rate"`
	UnitRate      flexFloat `json:"unit_rate"`
	Confidence    flexFloat `json:"confidence"`
}

type rawResult struct {
	Items              []rawItem   `json:"items"`
	LineItems          []rawItem   `json:"line_items"`
	ProjectType        string      `json:"project_type"`
	TotalEstimatedCost flexFloat   `json:"total_estimated_cost"`
	TotalCost          flexFloat   `json:"total_cost"`
	Accuracy           flexFloat   `json:"accuracy"`
	Confidence         flexFloat   `json:"confidence"`
	Insights           flexStrings `json:"insights"`
}

// ParseResult extracts the analysis JSON object from provider text, fenced or bare, and maps
// tolerant field spellings onto an AnalysisResult. Text without a decodable object yields an
// empty result; it never fails.
func ParseResult(text string) *models.AnalysisResult {
	raw, ok := decodeFirstObject(text)
	if !ok {
		return &models.AnalysisResult{}
	}

	items := raw.Items
	if len(items) == 0 {
		items = raw.LineItems
	}
	res := &models.AnalysisResult{
		ProjectType:        strings.ToLower(strings.TrimSpace(raw.ProjectType)),
		TotalEstimatedCost: firstNonZero(raw.TotalEstimatedCost, raw.TotalCost),
		Accuracy:           percent(firstNonZero(raw.Accuracy, raw.Confidence)),
		Insights:           []string(raw.Insights),
		Items:              make([]models.ExtractedItem, 0, len(items)),
	}
	for _, it := range items {
		name := firstString(it.Item, it.Name, it.Description)
		res.Items = append(res.Items, models.ExtractedItem{
			Name:          name,
			Category:      strings.TrimSpace(it.Category),
			Quantity:      float64(it.Quantity),
			Unit:          strings.TrimSpace(it.Unit),
			EstimatedRate: firstNonZero(it.EstimatedRate, it.Rate, it.UnitRate),
			Confidence:    percent(float64(it.Confidence)),
		})
	}
	return res
}

// decodeFirstObject tries each '{' in text until one starts a decodable result object.
func decodeFirstObject(text string) (rawResult, bool) {
	for i := strings.IndexByte(text, '{'); i >= 0; {
		var raw rawResult
		dec := json.NewDecoder(strings.NewReader(text[i:]))
		if err := dec.Decode(&raw); err == nil {
			return raw, true
		}
		next := strings.IndexByte(text[i+1:], '{')
		if next < 0 {
			break
		}
		i += next + 1
	}
	return rawResult{}, false
}

func firstNonZero(vs ...flexFloat) float64 {
	for _, v := range vs {
		if v != 0 && !math.IsNaN(float64(v)) {
			return float64(v)
		}
	}
	if len(vs) > 0 {
		return float64(vs[0])
	}
	return 0
}

func firstString(vs ...string) string {
	for _, v := range vs {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}

// percent scales 0..1 fractions to 0..100.
func percent(v float64) float64 {
	if v > 0 && v <= 1 {
		return v * 100
	}
	return v
}
