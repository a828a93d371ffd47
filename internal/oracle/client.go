package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	openai "github.com/sashabaranov/go-openai"
)

// MaxCompletionTokens bounds the length of a single verdict.
const MaxCompletionTokens = 500

// callTimeout caps one chat completion so a hung upstream cannot
// stall the whole run.
const callTimeout = 2 * time.Minute

// DefaultFallbackModel answers when no fallback is configured.
const DefaultFallbackModel = "gpt-4o-mini"

// Client asks an OpenAI-compatible chat endpoint for verdicts.
type Client struct {
	api    *openai.Client
	apiKey string
}

// NewClient builds a Client for the given API key. An empty key is
// allowed; every request then fails with a descriptive reason so the
// pipeline can record it per article instead of crashing a run.
func NewClient(apiKey string) *Client {
	return newClient(apiKey, "")
}

// newClient lets tests point the client at a fake endpoint.
func newClient(apiKey, baseURL string) *Client {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &Client{api: openai.NewClientWithConfig(cfg), apiKey: apiKey}
}

// verdict is the JSON shape the model is instructed to emit.
type verdict struct {
	IsRelevant bool   `json:"is_relevant"`
	Title      string `json:"title"`
	Summary    string `json:"summary"`
}

// resolveModel maps configured model names onto API identifiers.
// Gemini models have no backing integration yet.
func resolveModel(model string) (string, error) {
	if strings.Contains(strings.ToLower(model), "gemini") {
		return "", fmt.Errorf("gemini model support not yet implemented")
	}
	switch model {
	case "chatgpt-5-mini", "gpt-5-mini":
		return "gpt-5-mini", nil
	default:
		return model, nil
	}
}

// Process asks for a verdict on one article. The configured model gets
// one chance; when it errors out or returns nothing and a different
// fallback model is configured, the fallback gets one more.
func (c *Client) Process(ctx context.Context, req Request) Outcome {
	if c.apiKey == "" {
		return Failed("OPENAI_API_KEY not found")
	}

	model, err := resolveModel(req.Model)
	if err != nil {
		return Failed(err.Error())
	}

	fallback := req.FallbackModel
	if fallback == "" {
		fallback = DefaultFallbackModel
	}
	fallbackModel, err := resolveModel(fallback)
	if err != nil {
		fallbackModel = model // no usable fallback, skip the retry
	}

	raw, err := c.complete(ctx, model, req)
	if (err != nil || raw == "") && fallbackModel != model {
		log.Warn().Err(err).Str("model", model).Str("fallback", fallbackModel).
			Msg("Primary model produced no verdict, retrying with fallback")
		raw, err = c.complete(ctx, fallbackModel, req)
	}
	if err != nil {
		return Failed(err.Error())
	}
	if raw == "" {
		return Failed("empty summary returned by model")
	}

	var v verdict
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		// Model ignored the JSON instruction; keep its prose as the summary.
		return Processed(req.Title, raw)
	}
	if !v.IsRelevant {
		return Irrelevant()
	}
	if v.Summary == "" {
		return Failed("empty summary returned by model")
	}

	title := v.Title
	if title == "" {
		title = req.Title
	}
	return Processed(title, v.Summary)
}

func (c *Client) complete(ctx context.Context, model string, req Request) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:               model,
		MaxCompletionTokens: MaxCompletionTokens,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt(req.Criterion, req.Language)},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt(req.Title, req.Body)},
		},
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("empty response from model %s", model)
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func systemPrompt(criterion, language string) string {
	return fmt.Sprintf(`You are a helpful assistant. First, evaluate if the article matches this criteria: '%s'. `+
		`If it DOES NOT match, output JSON: {"is_relevant": false}. `+
		`If it DOES match: Translate the news title to %s. Provide a concise 4-5 line summary of the article in %s. `+
		`Output strictly in JSON format: {"is_relevant": true, "title": "...", "summary": "..."}`,
		criterion, language, language)
}

func userPrompt(title, body string) string {
	return fmt.Sprintf("Title: %s\n\nArticle Text:\n%s", title, body)
}
