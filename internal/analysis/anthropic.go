package analysis

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"strings"

	"go.uber.org/zap"

	"github.com/hyperjump/buildcost/internal/models"
)

const (
	anthropicBaseURL      = "https://api.anthropic.com"
	anthropicDefaultModel = "claude-3-5-sonnet-latest"
	anthropicVersion      = "2023-06-01"
)

// Anthropic talks to the messages API.
type Anthropic struct {
	settings
}

var _ Provider = (*Anthropic)(nil)

// NewAnthropic returns an Anthropic client.
func NewAnthropic(apiKey string, opts ...Option) *Anthropic {
	return &Anthropic{settings: newSettings(apiKey, anthropicDefaultModel, anthropicBaseURL, opts)}
}

type anthropicBlock struct {
	Type   string           `json:"type"`
	Text   string           `json:"text,omitempty"`
	Source *anthropicSource `json:"source,omitempty"`
}

type anthropicSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

type anthropicMessage struct {
	Role    string           `json:"role"`
	Content []anthropicBlock `json:"content"`
}

type anthropicRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	System    string             `json:"system,omitempty"`
	Messages  []anthropicMessage `json:"messages"`
}

type anthropicResponse struct {
	Content []anthropicBlock `json:"content"`
}

func (a *Anthropic) Name() string     { return "anthropic" }
func (a *Anthropic) Configured() bool { return a.apiKey != "" }

func (a *Anthropic) Analyze(ctx context.Context, doc Document) (*models.AnalysisResult, error) {
	blocks := []anthropicBlock{}
	if len(doc.Data) > 0 {
		blocks = append(blocks, anthropicBlock{Type: "image", Source: &anthropicSource{
			Type:      "base64",
			MediaType: doc.MIMEType,
			Data:      base64.StdEncoding.EncodeToString(doc.Data),
		}})
	}
	blocks = append(blocks, anthropicBlock{Type: "text", Text: userPrompt(doc)})

	text, err := a.complete(ctx, anthropicRequest{
		Model:     a.model,
		MaxTokens: a.maxTokens,
		System:    analysisSystemPrompt,
		Messages:  []anthropicMessage{{Role: RoleUser, Content: blocks}},
	})
	if err != nil {
		return nil, err
	}
	return finish(text, doc, a.Name(), a.model), nil
}

func (a *Anthropic) Chat(ctx context.Context, history []Message) (string, error) {
	system, rest := splitSystem(history)
	msgs := make([]anthropicMessage, 0, len(rest))
	for _, m := range rest {
		role := m.Role
		if role != RoleAssistant {
			role = RoleUser
		}
		msgs = append(msgs, anthropicMessage{Role: role, Content: []anthropicBlock{{Type: "text", Text: m.Content}}})
	}
	return a.complete(ctx, anthropicRequest{Model: a.model, MaxTokens: a.maxTokens, System: system, Messages: msgs})
}

func (a *Anthropic) complete(ctx context.Context, req anthropicRequest) (string, error) {
	body, err := a.postJSON(ctx, a.Name(), a.baseURL+"/v1/messages", map[string]string{
		"x-api-key":         a.apiKey,
		"anthropic-version": anthropicVersion,
	}, req)
	if err != nil {
		return "", err
	}
	var resp anthropicResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		a.logger.Warn("undecodable anthropic response", zap.Error(err))
		return "", nil
	}
	var b strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	return b.String(), nil
}
