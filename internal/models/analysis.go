package models

// ExtractedItem is one quantity take-off row reported by document analysis.
type ExtractedItem struct {
	Name          string  `json:"item"`
	Category      string  `json:"category,omitempty"`
	Quantity      float64 `json:"quantity"`
	Unit          string  `json:"unit"`
	EstimatedRate float64 `json:"estimated_rate"`
	Confidence    float64 `json:"confidence"`
}

// AnalysisResult is the transient per-document output of an analysis provider.
// It is never persisted; the aggregator reduces it into line items.
type AnalysisResult struct {
	FileName           string          `json:"-"`
	Items              []ExtractedItem `json:"items"`
	ProjectType        string          `json:"project_type,omitempty"`
	TotalEstimatedCost float64         `json:"total_estimated_cost,omitempty"`
	Accuracy           float64         `json:"accuracy"`
	Insights           []string        `json:"insights,omitempty"`
	Provider           string          `json:"provider,omitempty"`
	Model              string          `json:"model,omitempty"`
}

// Estimate is an aggregated, project-level cost breakdown.
// TotalCost is always the sum of Items[i].Amount.
type Estimate struct {
	Items     []LineItem     `json:"items"`
	TotalCost float64        `json:"total_cost"`
	Accuracy  float64        `json:"accuracy"`
	Source    EstimateSource `json:"source"`
	Insights  []string       `json:"insights,omitempty"`
}
