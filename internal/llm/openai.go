package llm

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"visiontriage/internal/config"
	"visiontriage/internal/metrics"
	"visiontriage/pkg"
)

// Client defines the two outbound request shapes used by the consultation
// service: a structured call that is expected to return JSON text, and a
// narrative call that returns free-form Markdown.  Both perform exactly one
// network call per invocation; there are no retries and no caching.
type Client interface {
	RequestStructured(ctx context.Context, prompt string, image *pkg.ImageAttachment) (string, error)
	RequestNarrative(ctx context.Context, prompt string, image *pkg.ImageAttachment) (string, error)
}

// TransportError wraps any failure of the outbound model call.  Callers
// branch on the error type rather than inspecting reply contents.
type TransportError struct {
	Kind string // "structured" or "narrative"
	Err  error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("model %s call failed: %v", e.Kind, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// OpenAIClient calls an OpenAI-compatible chat completion API.  When an image
// is attached it is sent inline as a base64 data URL content part.
type OpenAIClient struct {
	client *openai.Client
	model  string
}

// NewOpenAIClient constructs the gateway from configuration.  The API key is
// validated earlier, at config load; a custom base URL allows pointing at any
// OpenAI-compatible endpoint.
func NewOpenAIClient(cfg *config.Config) *OpenAIClient {
	oc := openai.DefaultConfig(cfg.Model.APIKey)
	if cfg.Model.BaseURL != "" {
		oc.BaseURL = cfg.Model.BaseURL
	}
	return &OpenAIClient{
		client: openai.NewClientWithConfig(oc),
		model:  cfg.Model.Name,
	}
}

// RequestStructured sends the prompt (plus optional image) and returns the
// reply with Markdown code fences stripped, so a fenced ```json block and a
// bare JSON object come back the same way.  The single parse attempt belongs
// to the caller.
func (c *OpenAIClient) RequestStructured(ctx context.Context, prompt string, image *pkg.ImageAttachment) (string, error) {
	raw, err := c.complete(ctx, "structured", prompt, image)
	if err != nil {
		return "", err
	}
	return stripCodeFences(raw), nil
}

// RequestNarrative sends the prompt (plus optional image) and returns the raw
// text reply without any post-processing.
func (c *OpenAIClient) RequestNarrative(ctx context.Context, prompt string, image *pkg.ImageAttachment) (string, error) {
	return c.complete(ctx, "narrative", prompt, image)
}

// complete performs the single outbound chat completion call shared by both
// request shapes.
func (c *OpenAIClient) complete(ctx context.Context, kind, prompt string, image *pkg.ImageAttachment) (string, error) {
	msg := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser}
	if image != nil {
		msg.MultiContent = []openai.ChatMessagePart{
			{Type: openai.ChatMessagePartTypeText, Text: prompt},
			{
				Type: openai.ChatMessagePartTypeImageURL,
				ImageURL: &openai.ChatMessageImageURL{
					URL:    dataURL(image),
					Detail: openai.ImageURLDetailAuto,
				},
			},
		}
	} else {
		msg.Content = prompt
	}

	start := time.Now()
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    []openai.ChatCompletionMessage{msg},
		Temperature: 0.2,
	})
	metrics.ModelCallDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.ModelCalls.WithLabelValues(kind, "error").Inc()
		return "", &TransportError{Kind: kind, Err: err}
	}
	metrics.ModelCalls.WithLabelValues(kind, "ok").Inc()
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}

// dataURL encodes the attachment as an inline data URL suitable for a vision
// content part.
func dataURL(image *pkg.ImageAttachment) string {
	return "data:" + image.MIME + ";base64," + base64.StdEncoding.EncodeToString(image.Data)
}

// stripCodeFences removes ```json and ``` markers that models often wrap
// around JSON replies despite being told not to.
func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, "```json", "")
	s = strings.ReplaceAll(s, "```", "")
	return strings.TrimSpace(s)
}
