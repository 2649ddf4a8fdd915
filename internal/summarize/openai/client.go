// Package openai implements summarize.Summarizer on the OpenAI chat
// completions API.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"

	"github.com/docpipe/docpipe/internal/common"
	"github.com/docpipe/docpipe/internal/summarize"
)

const (
	// maxInputChars bounds how much extracted text goes into the prompt.
	maxInputChars = 12000

	// maxRetries is the rate-limit retry ceiling; backoff doubles from
	// baseBackoff each time.
	maxRetries  = 3
	baseBackoff = 2 * time.Second
)

// ErrAPIKeyNotSet means the client was constructed without credentials.
var ErrAPIKeyNotSet = errors.New("openai api key not set")

type Client struct {
	client      openai.Client
	model       string
	temperature float64
	timeout     time.Duration
	logger      *slog.Logger
}

func NewClient(cfg common.LLMConfig, logger *slog.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, ErrAPIKeyNotSet
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 45 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		client:      openai.NewClient(option.WithAPIKey(cfg.APIKey)),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		timeout:     cfg.Timeout,
		logger:      logger,
	}, nil
}

// Summarize sends the extracted text and returns the structured summary plus
// usage metadata. The call carries its own timeout so a hung upstream cannot
// pin a worker.
func (c *Client) Summarize(ctx context.Context, text string) (summarize.Result, error) {
	rid := uuid.New().String()
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	schema := summarize.BuildSummaryJSONSchema()
	c.logger.Info("summarize.start",
		"req_id", rid,
		"model", c.model,
		"text_len", len(text),
	)

	params := openai.ChatCompletionNewParams{
		Model: shared.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.SystemMessage("JSON Schema:\n" + mustJSON(schema)),
			openai.UserMessage(buildUserPrompt(text)),
		},
		Temperature: openai.Float(c.temperature),
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{Type: "json_object"},
		},
	}

	completion, err := c.createWithRetry(ctx, params)
	if err != nil {
		c.logger.Error("summarize.http_error",
			"req_id", rid, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return summarize.Result{}, err
	}
	if len(completion.Choices) == 0 {
		return summarize.Result{}, fmt.Errorf("no choices in completion response")
	}

	raw := []byte(strings.TrimSpace(completion.Choices[0].Message.Content))

	// Validate strictly first; fall back to a lenient sanitize pass.
	if err := summarize.ValidateJSONAgainstSchema(schema, raw); err != nil {
		cleaned, dropped, sErr := summarize.SanitizeSummaryJSON(raw)
		if sErr != nil {
			c.logger.Error("summarize.sanitize_failed", "req_id", rid, "error", sErr)
			return summarize.Result{}, fmt.Errorf("sanitize summary: %w", sErr)
		}
		if vErr := summarize.ValidateJSONAgainstSchema(schema, cleaned); vErr != nil {
			c.logger.Error("summarize.schema_validation_failed",
				"req_id", rid, "error", vErr, "content", string(raw),
			)
			return summarize.Result{}, fmt.Errorf("schema validation failed: %w", vErr)
		}
		c.logger.Warn("summarize.lenient_sanitize_applied", "req_id", rid, "dropped", dropped)
		raw = cleaned
	}

	var out summarize.CandidateSummary
	if err := json.Unmarshal(raw, &out); err != nil {
		return summarize.Result{}, fmt.Errorf("unmarshal summary: %w", err)
	}

	c.logger.Info("summarize.ok",
		"req_id", rid,
		"role", out.Role,
		"score", out.Score,
		"total_tokens", completion.Usage.TotalTokens,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return summarize.Result{
		Summary:          out,
		Raw:              raw,
		Model:            c.model,
		PromptTokens:     completion.Usage.PromptTokens,
		CompletionTokens: completion.Usage.CompletionTokens,
		TotalTokens:      completion.Usage.TotalTokens,
		GeneratedAt:      time.Now().UTC(),
	}, nil
}

func (c *Client) createWithRetry(ctx context.Context, params openai.ChatCompletionNewParams) (*openai.ChatCompletion, error) {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			backoff := baseBackoff << (attempt - 1)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		completion, err := c.client.Chat.Completions.New(ctx, params)
		if err == nil {
			return completion, nil
		}
		lastErr = err
		if !isRateLimitError(err) {
			return nil, fmt.Errorf("openai call failed: %w", err)
		}
	}
	return nil, fmt.Errorf("openai rate limited after %d retries: %w", maxRetries, lastErr)
}

func isRateLimitError(err error) bool {
	var apiErr *openai.Error
	return errors.As(err, &apiErr) && apiErr.StatusCode == 429
}

const systemPrompt = "You are a resume analyst. Return ONLY JSON that matches the JSON Schema provided. " +
	"Summarize the candidate's primary role and experience, list concrete skills and strengths, " +
	"capture education, certifications and any contact details present in the text. " +
	"Score overall employability from 1 to 10 and justify the score in a single line. " +
	"Never output null. If a field is not present in the text, omit it."

func buildUserPrompt(text string) string {
	var b strings.Builder
	b.WriteString("Extracted document text:\n")
	if len(text) > maxInputChars {
		b.WriteString(text[:maxInputChars])
	} else {
		b.WriteString(text)
	}
	b.WriteString("\n\nReturn ONLY JSON that matches the provided schema.")
	return b.String()
}

func mustJSON(v any) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}
