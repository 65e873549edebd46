package convert

import (
	"github.com/shopspring/decimal"

	"github.com/hyperjump/buildcost/internal/locale"
	"github.com/hyperjump/buildcost/internal/models"
)

// ItemView is a line item in a viewer's currency and units with the regional factor applied.
type ItemView struct {
	ID              string  `json:"id"`
	Category        string  `json:"category"`
	Description     string  `json:"description"`
	Quantity        float64 `json:"quantity"`
	Unit            string  `json:"unit"`
	Rate            float64 `json:"rate"`
	Amount          float64 `json:"amount"`
	Factor          float64 `json:"factor"`
	FormattedRate   string  `json:"formatted_rate"`
	FormattedAmount string  `json:"formatted_amount"`
	SourceFile      string  `json:"source_file,omitempty"`
}

// ProjectView is a project localized for one country. Stored values are never modified.
type ProjectView struct {
	ID             string                `json:"id"`
	Name           string                `json:"name"`
	Type           models.ProjectType    `json:"type"`
	Status         models.ProjectStatus  `json:"status"`
	Country        string                `json:"country"`
	Currency       string                `json:"currency"`
	Accuracy       float64               `json:"accuracy"`
	EstimateSource models.EstimateSource `json:"estimate_source,omitempty"`
	TotalCost      float64               `json:"total_cost"`
	FormattedTotal string                `json:"formatted_total"`
	CanonicalTotal float64               `json:"canonical_total"`
	Items          []ItemView            `json:"items"`
	CreatedAt      string                `json:"created_at"`
	UpdatedAt      string                `json:"updated_at"`
}

// LocalizeItem converts one canonical line item for p. The displayed amount is derived from the
// canonical amount so unit conversion never changes it; quantity and rate are rescaled together.
func (c *Converter) LocalizeItem(item models.LineItem, p locale.CountryProfile) ItemView {
	base := c.reg.Rates().Base()
	factor := c.reg.CostFactors(p.Code).For(item.Category)

	unit := DisplayUnit(item.Unit, p)
	qty := ConvertUnit(item.Quantity, item.Unit, unit)
	perUnit := ConvertUnit(1, item.Unit, unit)

	rate := c.ConvertCurrency(item.Rate, base, p.Currency) * factor
	if perUnit != 0 {
		rate /= perUnit
	}
	amount := Round(c.ConvertCurrency(item.Amount, base, p.Currency)*factor, p.FractionDigits)

	return ItemView{
		ID:              item.ID,
		Category:        item.Category,
		Description:     item.Description,
		Quantity:        Round(qty, 2),
		Unit:            unit,
		Rate:            Round(rate, 2),
		Amount:          amount,
		Factor:          factor,
		FormattedRate:   FormatCurrency(rate, p),
		FormattedAmount: FormatCurrency(amount, p),
		SourceFile:      item.SourceFile,
	}
}

// LocalizeProject converts a project for p. The total is the sum of the localized item amounts.
func (c *Converter) LocalizeProject(proj *models.Project, p locale.CountryProfile) ProjectView {
	view := ProjectView{
		ID:             proj.ID,
		Name:           proj.Name,
		Type:           proj.Type,
		Status:         proj.Status,
		Country:        p.Code,
		Currency:       p.Currency,
		Accuracy:       proj.Accuracy,
		EstimateSource: proj.EstimateSource,
		CanonicalTotal: proj.TotalCost,
		Items:          make([]ItemView, 0, len(proj.Items)),
		CreatedAt:      FormatDate(proj.CreatedAt, p),
		UpdatedAt:      FormatDate(proj.UpdatedAt, p),
	}
	total := decimal.Zero
	for _, item := range proj.Items {
		iv := c.LocalizeItem(item, p)
		total = total.Add(decimal.NewFromFloat(iv.Amount))
		view.Items = append(view.Items, iv)
	}
	view.TotalCost, _ = total.Float64()
	view.FormattedTotal = FormatCurrency(view.TotalCost, p)
	return view
}
