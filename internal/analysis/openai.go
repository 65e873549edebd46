package analysis

import (
	"context"
	"encoding/base64"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/hyperjump/buildcost/internal/models"
)

const (
	openAIBaseURL      = "https://api.openai.com"
	openAIDefaultModel = "gpt-4o-mini"
)

// OpenAI talks to the chat completions API.
type OpenAI struct {
	settings
}

var _ Provider = (*OpenAI)(nil)

// NewOpenAI returns an OpenAI client.
func NewOpenAI(apiKey string, opts ...Option) *OpenAI {
	return &OpenAI{settings: newSettings(apiKey, openAIDefaultModel, openAIBaseURL, opts)}
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type openAIPart struct {
	Type     string          `json:"type"`
	Text     string          `json:"text,omitempty"`
	ImageURL *openAIImageURL `json:"image_url,omitempty"`
}

type openAIImageURL struct {
	URL string `json:"url"`
}

type openAIRequest struct {
	Model          string            `json:"model"`
	Messages       []openAIMessage   `json:"messages"`
	MaxTokens      int               `json:"max_tokens,omitempty"`
	Temperature    float64           `json:"temperature"`
	ResponseFormat map[string]string `json:"response_format,omitempty"`
}

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (o *OpenAI) Name() string     { return "openai" }
func (o *OpenAI) Configured() bool { return o.apiKey != "" }

func (o *OpenAI) Analyze(ctx context.Context, doc Document) (*models.AnalysisResult, error) {
	var user any = userPrompt(doc)
	if len(doc.Data) > 0 {
		user = []openAIPart{
			{Type: "text", Text: userPrompt(doc)},
			{Type: "image_url", ImageURL: &openAIImageURL{
				URL: "data:" + doc.MIMEType + ";base64," + base64.StdEncoding.EncodeToString(doc.Data),
			}},
		}
	}
	req := openAIRequest{
		Model: o.model,
		Messages: []openAIMessage{
			{Role: RoleSystem, Content: analysisSystemPrompt},
			{Role: RoleUser, Content: user},
		},
		MaxTokens:      o.maxTokens,
		Temperature:    0.2,
		ResponseFormat: map[string]string{"type": "json_object"},
	}
	text, err := o.complete(ctx, req)
	if err != nil {
		return nil, err
	}
	return finish(text, doc, o.Name(), o.model), nil
}

func (o *OpenAI) Chat(ctx context.Context, history []Message) (string, error) {
	system, rest := splitSystem(history)
	msgs := make([]openAIMessage, 0, len(rest)+1)
	msgs = append(msgs, openAIMessage{Role: RoleSystem, Content: system})
	for _, m := range rest {
		msgs = append(msgs, openAIMessage{Role: m.Role, Content: m.Content})
	}
	return o.complete(ctx, openAIRequest{Model: o.model, Messages: msgs, MaxTokens: o.maxTokens, Temperature: 0.7})
}

func (o *OpenAI) complete(ctx context.Context, req openAIRequest) (string, error) {
	body, err := o.postJSON(ctx, o.Name(), o.baseURL+"/v1/chat/completions",
		map[string]string{"Authorization": "Bearer " + o.apiKey}, req)
	if err != nil {
		return "", err
	}
	var resp openAIResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		o.logger.Warn("undecodable openai response", zap.Error(err))
		return "", nil
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}
