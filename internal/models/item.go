package models

import "time"

// Canonical cost categories. Regional cost factors are keyed by these names.
const (
	CategoryStructural = "structural"
	CategoryCivil      = "civil"
	CategoryElectrical = "electrical"
	CategoryPlumbing   = "plumbing"
	CategoryFinishing  = "finishing"
	CategoryHVAC       = "hvac"
	CategoryLabor      = "labor"
	CategoryMaterials  = "materials"
	CategoryEquipment  = "equipment"
)

// Categories lists the canonical cost categories.
var Categories = []string{
	CategoryLabor, CategoryMaterials, CategoryEquipment,
	CategoryStructural, CategoryCivil, CategoryElectrical,
	CategoryPlumbing, CategoryFinishing, CategoryHVAC,
}

// LineItem is one priced row of a project estimate, in canonical currency (USD) and metric units.
// Amount is Quantity × Rate rounded to cents.
type LineItem struct {
	ID          string  `json:"id"`
	ProjectID   string  `json:"project_id"`
	Category    string  `json:"category"`
	Description string  `json:"description"`
	Quantity    float64 `json:"quantity"`
	Unit        string  `json:"unit"`
	Rate        float64 `json:"rate"`
	Amount      float64 `json:"amount"`
	Confidence  float64 `json:"confidence,omitempty"`
	SourceFile  string  `json:"source_file,omitempty"`
	Position    int     `json:"-"`
}

// FileStatus is the processing state of one uploaded file.
type FileStatus string

const (
	FilePending    FileStatus = "pending"
	FileProcessing FileStatus = "processing"
	FileCompleted  FileStatus = "completed"
	FileError      FileStatus = "error"
)

// FileRecord is an uploaded document attached to a project.
type FileRecord struct {
	ID         string     `json:"id"`
	ProjectID  string     `json:"project_id"`
	FileName   string     `json:"file_name"`
	MIMEType   string     `json:"mime_type"`
	Size       int64      `json:"size"`
	StorageRef string     `json:"-"`
	Status     FileStatus `json:"status"`
	Error      string     `json:"error,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}
