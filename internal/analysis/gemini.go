package analysis

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/hyperjump/buildcost/internal/models"
)

const (
	geminiBaseURL      = "https://generativelanguage.googleapis.com"
	geminiDefaultModel = "gemini-1.5-flash"
)

const (
	geminiRoleUser  = "user"
	geminiRoleModel = "model"
)

// Gemini talks to the generateContent API.
type Gemini struct {
	settings
}

var _ Provider = (*Gemini)(nil)

// NewGemini returns a Gemini client.
func NewGemini(apiKey string, opts ...Option) *Gemini {
	return &Gemini{settings: newSettings(apiKey, geminiDefaultModel, geminiBaseURL, opts)}
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inline_data,omitempty"`
}

type geminiInlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiGenerationConfig struct {
	ResponseMimeType string  `json:"responseMimeType,omitempty"`
	MaxOutputTokens  int     `json:"maxOutputTokens,omitempty"`
	Temperature      float64 `json:"temperature"`
}

type geminiRequest struct {
	SystemInstruction *geminiContent         `json:"systemInstruction,omitempty"`
	Contents          []geminiContent        `json:"contents"`
	GenerationConfig  geminiGenerationConfig `json:"generationConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

func (g *Gemini) Name() string     { return "google" }
func (g *Gemini) Configured() bool { return g.apiKey != "" }

func (g *Gemini) Analyze(ctx context.Context, doc Document) (*models.AnalysisResult, error) {
	parts := []geminiPart{{Text: userPrompt(doc)}}
	if len(doc.Data) > 0 {
		parts = append(parts, geminiPart{InlineData: &geminiInlineData{
			MimeType: doc.MIMEType,
			Data:     base64.StdEncoding.EncodeToString(doc.Data),
		}})
	}
	text, err := g.complete(ctx, geminiRequest{
		SystemInstruction: &geminiContent{Parts: []geminiPart{{Text: analysisSystemPrompt}}},
		Contents:          []geminiContent{{Role: geminiRoleUser, Parts: parts}},
		GenerationConfig: geminiGenerationConfig{
			ResponseMimeType: "application/json",
			MaxOutputTokens:  g.maxTokens,
			Temperature:      0.2,
		},
	})
	if err != nil {
		return nil, err
	}
	return finish(text, doc, g.Name(), g.model), nil
}

func (g *Gemini) Chat(ctx context.Context, history []Message) (string, error) {
	system, rest := splitSystem(history)
	contents := make([]geminiContent, 0, len(rest))
	for _, m := range rest {
		role := geminiRoleUser
		if m.Role == RoleAssistant {
			role = geminiRoleModel
		}
		contents = append(contents, geminiContent{Role: role, Parts: []geminiPart{{Text: m.Content}}})
	}
	return g.complete(ctx, geminiRequest{
		SystemInstruction: &geminiContent{Parts: []geminiPart{{Text: system}}},
		Contents:          contents,
		GenerationConfig:  geminiGenerationConfig{MaxOutputTokens: g.maxTokens, Temperature: 0.7},
	})
}

func (g *Gemini) complete(ctx context.Context, req geminiRequest) (string, error) {
	endpoint := g.baseURL + "/v1beta/models/" + url.PathEscape(g.model) + ":generateContent"
	body, err := g.postJSON(ctx, g.Name(), endpoint, map[string]string{"x-goog-api-key": g.apiKey}, req)
	if err != nil {
		return "", err
	}
	var resp geminiResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		g.logger.Warn("undecodable gemini response", zap.Error(err))
		return "", nil
	}
	if len(resp.Candidates) == 0 {
		return "", nil
	}
	var b strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		b.WriteString(p.Text)
	}
	return b.String(), nil
}
