// Package models defines core data structures for projects, line items, uploaded files, and analysis results.
package models

import (
	"fmt"
	"strings"
	"time"
)

// ProjectStatus is the lifecycle state of a project.
type ProjectStatus string

const (
	StatusDraft      ProjectStatus = "draft"
	StatusProcessing ProjectStatus = "processing"
	StatusCompleted  ProjectStatus = "completed"
	StatusReview     ProjectStatus = "review"
)

// CanStartProcessing reports whether a project in status s may enter processing.
// Only drafts may; this is what keeps two pipeline runs off the same project.
func (s ProjectStatus) CanStartProcessing() bool {
	return s == StatusDraft
}

// Terminal reports whether s is a resting state the UI can show without polling.
func (s ProjectStatus) Terminal() bool {
	return s == StatusDraft || s == StatusCompleted || s == StatusReview
}

// ProjectType is the declared kind of construction project.
type ProjectType string

const (
	TypeResidential    ProjectType = "residential"
	TypeCommercial     ProjectType = "commercial"
	TypeIndustrial     ProjectType = "industrial"
	TypeInfrastructure ProjectType = "infrastructure"
	TypeRenovation     ProjectType = "renovation"
	TypeOther          ProjectType = "other"
)

// ProjectTypes lists every accepted project type.
var ProjectTypes = []ProjectType{
	TypeResidential, TypeCommercial, TypeIndustrial, TypeInfrastructure, TypeRenovation, TypeOther,
}

// ParseProjectType normalizes s to a known ProjectType. Empty input yields TypeOther.
func ParseProjectType(s string) (ProjectType, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return TypeOther, nil
	}
	for _, t := range ProjectTypes {
		if string(t) == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown project type: %q", s)
}

// EstimateSource records where a project's line items came from.
type EstimateSource string

const (
	SourceNone     EstimateSource = ""
	SourceAnalysis EstimateSource = "analysis"
	SourceFallback EstimateSource = "fallback"
)

// Project is a cost-estimation project owned by exactly one user.
// TotalCost is canonical (USD) and always equals the sum of item amounts.
type Project struct {
	ID             string         `json:"id"`
	OwnerID        string         `json:"-"`
	Name           string         `json:"name"`
	Type           ProjectType    `json:"type"`
	Description    string         `json:"description,omitempty"`
	Status         ProjectStatus  `json:"status"`
	TotalCost      float64        `json:"total_cost"`
	Accuracy       float64        `json:"accuracy"`
	ProcessingTime int64          `json:"processing_time_ms"`
	EstimateSource EstimateSource `json:"estimate_source,omitempty"`
	Items          []LineItem     `json:"items"`
	Files          []FileRecord   `json:"files"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// ProjectInput is the input for creating a project.
type ProjectInput struct {
	Name        string `json:"name" validate:"required,max=200"`
	Type        string `json:"type" validate:"omitempty,oneof=residential commercial industrial infrastructure renovation other"`
	Description string `json:"description,omitempty" validate:"max=2000"`
}
