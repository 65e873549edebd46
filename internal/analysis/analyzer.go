// Package analysis delegates document cost analysis and chat to hosted language-model providers.
// The pipeline depends only on the Analyzer interface; Unconfigured stands in when no provider is set.
package analysis

import (
	"context"
	"errors"

	"github.com/hyperjump/buildcost/internal/models"
)

// ErrNotConfigured is returned by Unconfigured for every call.
var ErrNotConfigured = errors.New("analysis provider not configured")

// Document is one uploaded file prepared for analysis. Text is set for text documents,
// Data for images.
type Document struct {
	FileName    string
	MIMEType    string
	Text        string
	Data        []byte
	ProjectType models.ProjectType
}

// Analyzer turns a document into a structured cost analysis.
type Analyzer interface {
	// Analyze returns the provider's analysis. A response the provider returned successfully but
	// that holds no usable structure yields an empty result and a nil error.
	Analyze(ctx context.Context, doc Document) (*models.AnalysisResult, error)
	Name() string
	Configured() bool
}

// Message is a chat message in a provider-agnostic format.
type Message struct {
	Role    string `json:"role"` // "user", "assistant", "system"
	Content string `json:"content"`
}

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Assistant answers chat questions about a project.
type Assistant interface {
	Chat(ctx context.Context, history []Message) (string, error)
}

// Provider is a configured backend offering both capabilities.
type Provider interface {
	Analyzer
	Assistant
}

// Unconfigured is the provider used when no API key is available.
type Unconfigured struct{}

var _ Provider = Unconfigured{}

func (Unconfigured) Analyze(context.Context, Document) (*models.AnalysisResult, error) {
	return nil, ErrNotConfigured
}

func (Unconfigured) Chat(context.Context, []Message) (string, error) {
	return "", ErrNotConfigured
}

func (Unconfigured) Name() string { return "none" }

func (Unconfigured) Configured() bool { return false }
