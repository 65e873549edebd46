package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/buildcost/internal/config"
	"github.com/hyperjump/buildcost/internal/models"
)

const sampleJSON = `{"items":[{"item":"Concrete slab","category":"structural","quantity":"12.5","unit":"m³","estimated_rate":"$150","confidence":0.9}],"project_type":"Residential","accuracy":0.92,"insights":"Slab thickness assumed"}`

func TestParseResult_fenced(t *testing.T) {
	res := ParseResult("Here is the take-off:\n```json\n" + sampleJSON + "\n```\nThanks")
	require.Len(t, res.Items, 1)
	it := res.Items[0]
	assert.Equal(t, "Concrete slab", it.Name)
	assert.Equal(t, "structural", it.Category)
	assert.Equal(t, 12.5, it.Quantity)
	assert.Equal(t, "m³", it.Unit)
	assert.Equal(t, 150.0, it.EstimatedRate)
	assert.InDelta(t, 90, it.Confidence, 1e-9)
	assert.InDelta(t, 92, res.Accuracy, 1e-9)
	assert.Equal(t, "residential", res.ProjectType)
	assert.Equal(t, []string{"Slab thickness assumed"}, res.Insights)
}

func TestParseResult_alternateSpellings(t *testing.T) {
	res := ParseResult(`{"line_items":[{"name":"Rebar","quantity":1200,"unit":"kg","rate":"1,250.50"}],"confidence":85}`)
	require.Len(t, res.Items, 1)
	assert.Equal(t, "Rebar", res.Items[0].Name)
	assert.Equal(t, 1250.5, res.Items[0].EstimatedRate)
	assert.Equal(t, 85.0, res.Accuracy)
}

func TestParseResult_skipsUndecodablePrefix(t *testing.T) {
	res := ParseResult(`{not json} then {"items":[{"item":"Paint","quantity":"40 m2","unit":"m²","estimated_rate":12}]}`)
	require.Len(t, res.Items, 1)
	assert.Equal(t, 40.0, res.Items[0].Quantity)
}

func TestParseResult_noObject(t *testing.T) {
	for _, text := range []string{"", "I could not read this drawing.", "```\n[1,2,3]\n```"} {
		res := ParseResult(text)
		require.NotNil(t, res, "%q", text)
		assert.Empty(t, res.Items, "%q", text)
	}
}

func TestParseResult_unparseableNumberIsNaN(t *testing.T) {
	res := ParseResult(`{"items":[{"item":"Tiles","quantity":"lots","unit":"m²","estimated_rate":30}]}`)
	require.Len(t, res.Items, 1)
	assert.True(t, math.IsNaN(res.Items[0].Quantity))
}

func TestUnconfigured(t *testing.T) {
	var p Provider = Unconfigured{}
	assert.False(t, p.Configured())
	assert.Equal(t, "none", p.Name())
	_, err := p.Analyze(context.Background(), Document{FileName: "a.pdf"})
	assert.ErrorIs(t, err, ErrNotConfigured)
	_, err = p.Chat(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func decodeBody(t *testing.T, r *http.Request) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
	return body
}

func TestOpenAI_Analyze(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		body := decodeBody(t, r)
		assert.Equal(t, "gpt-4o-mini", body["model"])
		assert.Equal(t, map[string]any{"type": "json_object"}, body["response_format"])
		msgs := body["messages"].([]any)
		require.Len(t, msgs, 2)
		assert.Equal(t, "system", msgs[0].(map[string]any)["role"])
		assert.Contains(t, msgs[1].(map[string]any)["content"], "plans.pdf")
		resp := map[string]any{"choices": []any{map[string]any{"message": map[string]any{"content": "```json\n" + sampleJSON + "\n```"}}}}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	c := NewOpenAI("sk-test", WithBaseURL(srv.URL))
	res, err := c.Analyze(context.Background(), Document{FileName: "plans.pdf", MIMEType: "application/pdf", Text: "slab 12.5 m3"})
	require.NoError(t, err)
	require.Len(t, res.Items, 1)
	assert.Equal(t, "plans.pdf", res.FileName)
	assert.Equal(t, "openai", res.Provider)
	assert.Equal(t, "gpt-4o-mini", res.Model)
}

func TestOpenAI_imageUsesDataURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body := decodeBody(t, r)
		msgs := body["messages"].([]any)
		parts := msgs[1].(map[string]any)["content"].([]any)
		require.Len(t, parts, 2)
		img := parts[1].(map[string]any)["image_url"].(map[string]any)["url"].(string)
		assert.True(t, strings.HasPrefix(img, "data:image/png;base64,"), img)
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"{}"}}]}`))
	}))
	defer srv.Close()

	c := NewOpenAI("sk-test", WithBaseURL(srv.URL))
	res, err := c.Analyze(context.Background(), Document{FileName: "site.png", MIMEType: "image/png", Data: []byte{0x89, 'P', 'N', 'G'}})
	require.NoError(t, err)
	assert.Empty(t, res.Items)
}

func TestOpenAI_Chat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body := decodeBody(t, r)
		msgs := body["messages"].([]any)
		require.Len(t, msgs, 3)
		first := msgs[0].(map[string]any)
		assert.Equal(t, "system", first["role"])
		assert.True(t, strings.HasPrefix(first["content"].(string), chatSystemPrompt))
		assert.Contains(t, first["content"], "Total: $1,000.00")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"About a thousand dollars."}}]}`))
	}))
	defer srv.Close()

	c := NewOpenAI("sk-test", WithBaseURL(srv.URL))
	reply, err := c.Chat(context.Background(), []Message{
		{Role: RoleSystem, Content: "Total: $1,000.00"},
		{Role: RoleUser, Content: "How much?"},
		{Role: RoleAssistant, Content: "Let me check."},
	})
	require.NoError(t, err)
	assert.Equal(t, "About a thousand dollars.", reply)
}

func TestAnthropic_Analyze(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "ak-test", r.Header.Get("x-api-key"))
		assert.Equal(t, anthropicVersion, r.Header.Get("anthropic-version"))
		body := decodeBody(t, r)
		assert.Equal(t, analysisSystemPrompt, body["system"])
		assert.Equal(t, "claude-custom", body["model"])
		msgs := body["messages"].([]any)
		blocks := msgs[0].(map[string]any)["content"].([]any)
		require.Len(t, blocks, 2)
		assert.Equal(t, "image", blocks[0].(map[string]any)["type"])
		resp := map[string]any{"content": []any{map[string]any{"type": "text", "text": sampleJSON}}}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	c := NewAnthropic("ak-test", WithBaseURL(srv.URL+"/"), WithModel("claude-custom"))
	res, err := c.Analyze(context.Background(), Document{FileName: "photo.jpg", MIMEType: "image/jpeg", Data: []byte{0xff, 0xd8}})
	require.NoError(t, err)
	require.Len(t, res.Items, 1)
	assert.Equal(t, "anthropic", res.Provider)
	assert.Equal(t, "claude-custom", res.Model)
}

func TestAnthropic_ChatMapsRoles(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body := decodeBody(t, r)
		assert.True(t, strings.HasPrefix(body["system"].(string), chatSystemPrompt))
		msgs := body["messages"].([]any)
		require.Len(t, msgs, 2)
		assert.Equal(t, "user", msgs[0].(map[string]any)["role"])
		assert.Equal(t, "assistant", msgs[1].(map[string]any)["role"])
		_, _ = w.Write([]byte(`{"content":[{"type":"text","text":"Hello "},{"type":"text","text":"there"}]}`))
	}))
	defer srv.Close()

	c := NewAnthropic("ak-test", WithBaseURL(srv.URL))
	reply, err := c.Chat(context.Background(), []Message{{Role: RoleUser, Content: "hi"}, {Role: RoleAssistant, Content: "hey"}})
	require.NoError(t, err)
	assert.Equal(t, "Hello there", reply)
}

func TestGemini_Analyze(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1beta/models/gemini-1.5-flash:generateContent", r.URL.Path)
		assert.Equal(t, "gk-test", r.Header.Get("x-goog-api-key"))
		body := decodeBody(t, r)
		gen := body["generationConfig"].(map[string]any)
		assert.Equal(t, "application/json", gen["responseMimeType"])
		resp := map[string]any{"candidates": []any{map[string]any{"content": map[string]any{"parts": []any{map[string]any{"text": sampleJSON}}}}}}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	c := NewGemini("gk-test", WithBaseURL(srv.URL))
	res, err := c.Analyze(context.Background(), Document{FileName: "boq.xlsx", Text: "Concrete 12.5 m3"})
	require.NoError(t, err)
	require.Len(t, res.Items, 1)
	assert.Equal(t, "google", res.Provider)
}

func TestGemini_ChatUsesModelRole(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body := decodeBody(t, r)
		contents := body["contents"].([]any)
		require.Len(t, contents, 2)
		assert.Equal(t, "model", contents[1].(map[string]any)["role"])
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"ok"}]}}]}`))
	}))
	defer srv.Close()

	c := NewGemini("gk-test", WithBaseURL(srv.URL))
	reply, err := c.Chat(context.Background(), []Message{{Role: RoleUser, Content: "q"}, {Role: RoleAssistant, Content: "a"}})
	require.NoError(t, err)
	assert.Equal(t, "ok", reply)
}

func TestProvider_non2xxIsAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"overloaded"}`, http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	providers := []Provider{
		NewOpenAI("k", WithBaseURL(srv.URL)),
		NewAnthropic("k", WithBaseURL(srv.URL)),
		NewGemini("k", WithBaseURL(srv.URL)),
	}
	for _, p := range providers {
		_, err := p.Analyze(context.Background(), Document{FileName: "a.txt", Text: "x"})
		var apiErr *APIError
		require.True(t, errors.As(err, &apiErr), "%s: %v", p.Name(), err)
		assert.Equal(t, http.StatusServiceUnavailable, apiErr.StatusCode)
		assert.Equal(t, p.Name(), apiErr.Provider)
		assert.Contains(t, apiErr.Body, "overloaded")
	}
}

func TestProvider_malformedSuccessIsEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html>gateway</html>"))
	}))
	defer srv.Close()

	providers := []Provider{
		NewOpenAI("k", WithBaseURL(srv.URL)),
		NewAnthropic("k", WithBaseURL(srv.URL)),
		NewGemini("k", WithBaseURL(srv.URL)),
	}
	for _, p := range providers {
		res, err := p.Analyze(context.Background(), Document{FileName: "a.txt", Text: "x"})
		require.NoError(t, err, p.Name())
		assert.Empty(t, res.Items, p.Name())
		assert.Equal(t, "a.txt", res.FileName)
	}
}

func TestProvider_contextCancel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := NewOpenAI("k", WithBaseURL(srv.URL)).Analyze(ctx, Document{FileName: "a.txt", Text: "x"})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

type countingAnalyzer struct {
	calls atomic.Int32
	fail  bool
}

func (c *countingAnalyzer) Name() string     { return "counting" }
func (c *countingAnalyzer) Configured() bool { return true }

func (c *countingAnalyzer) Analyze(_ context.Context, doc Document) (*models.AnalysisResult, error) {
	c.calls.Add(1)
	if c.fail {
		return nil, errors.New("boom")
	}
	return &models.AnalysisResult{
		FileName: doc.FileName,
		Items:    []models.ExtractedItem{{Name: "Brick", Quantity: 100, Unit: "ea", EstimatedRate: 0.5}},
		Accuracy: 90,
	}, nil
}

func TestCached_hitsOnSameContent(t *testing.T) {
	inner := &countingAnalyzer{}
	a := Cached(inner, time.Minute)
	ctx := context.Background()

	first, err := a.Analyze(ctx, Document{FileName: "a.txt", MIMEType: "text/plain", Text: "brick wall"})
	require.NoError(t, err)
	second, err := a.Analyze(ctx, Document{FileName: "b.txt", MIMEType: "text/plain", Text: "brick wall"})
	require.NoError(t, err)

	assert.Equal(t, int32(1), inner.calls.Load())
	assert.Equal(t, "a.txt", first.FileName)
	assert.Equal(t, "b.txt", second.FileName)
	assert.Equal(t, first.Items, second.Items)

	second.Items[0].Name = "mutated"
	third, err := a.Analyze(ctx, Document{FileName: "c.txt", MIMEType: "text/plain", Text: "brick wall"})
	require.NoError(t, err)
	assert.Equal(t, "Brick", third.Items[0].Name)

	_, err = a.Analyze(ctx, Document{FileName: "a.txt", MIMEType: "text/plain", Text: "other"})
	require.NoError(t, err)
	assert.Equal(t, int32(2), inner.calls.Load())
	assert.Equal(t, 2, a.(*CachedAnalyzer).Len())
}

func TestCached_errorsNotCached(t *testing.T) {
	inner := &countingAnalyzer{fail: true}
	a := Cached(inner, time.Minute)
	for range 2 {
		_, err := a.Analyze(context.Background(), Document{Text: "x"})
		require.Error(t, err)
	}
	assert.Equal(t, int32(2), inner.calls.Load())
}

type emptyAnalyzer struct{ calls atomic.Int32 }

func (e *emptyAnalyzer) Name() string     { return "empty" }
func (e *emptyAnalyzer) Configured() bool { return true }

func (e *emptyAnalyzer) Analyze(context.Context, Document) (*models.AnalysisResult, error) {
	e.calls.Add(1)
	return ParseResult("no estimate available"), nil
}

func TestCached_emptyResultsNotCached(t *testing.T) {
	inner := &emptyAnalyzer{}
	a := Cached(inner, time.Minute)
	for range 2 {
		res, err := a.Analyze(context.Background(), Document{FileName: "a.txt", Text: "brick wall"})
		require.NoError(t, err)
		assert.Empty(t, res.Items)
	}
	assert.Equal(t, int32(2), inner.calls.Load())
	assert.Equal(t, 0, a.(*CachedAnalyzer).Len())
}

func TestCached_passthrough(t *testing.T) {
	assert.Equal(t, Analyzer(Unconfigured{}), Cached(Unconfigured{}, time.Minute))
	inner := &countingAnalyzer{}
	assert.Same(t, inner, Cached(inner, 0))
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.AnalysisConfig
		want    string
		wantErr bool
	}{
		{name: "no keys", cfg: config.AnalysisConfig{}, want: "none"},
		{name: "auto openai first", cfg: config.AnalysisConfig{OpenAIKey: "o", GoogleKey: "g"}, want: "openai"},
		{name: "auto anthropic", cfg: config.AnalysisConfig{AnthropicKey: "a"}, want: "anthropic"},
		{name: "explicit gemini", cfg: config.AnalysisConfig{Provider: "gemini", OpenAIKey: "o", GoogleKey: "g"}, want: "google"},
		{name: "explicit none", cfg: config.AnalysisConfig{Provider: "none", OpenAIKey: "o"}, want: "none"},
		{name: "named without key", cfg: config.AnalysisConfig{Provider: "anthropic"}, wantErr: true},
		{name: "unknown", cfg: config.AnalysisConfig{Provider: "llama"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := New(tt.cfg)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, p.Name())
			assert.Equal(t, tt.want != "none", p.Configured())
		})
	}
}

func TestNew_appliesModelAndBaseURL(t *testing.T) {
	var gotModel atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotModel.Store(decodeBody(t, r)["model"])
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"fine"}}]}`))
	}))
	defer srv.Close()

	p, err := New(config.AnalysisConfig{OpenAIKey: "o", Model: "gpt-4.1", BaseURL: srv.URL, Timeout: time.Second})
	require.NoError(t, err)
	reply, err := p.Chat(context.Background(), []Message{{Role: RoleUser, Content: "hi"}})
	require.NoError(t, err)
	assert.Equal(t, "fine", reply)
	assert.Equal(t, "gpt-4.1", gotModel.Load())
}
