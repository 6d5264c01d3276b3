// Package llm wraps the hosted structured-output LLM (Anthropic Claude
// via anthropic-sdk-go) behind the single GenerateObject operation
// spec §4.3 describes, grounded on ternarybob-quaero's ClaudeService:
// a struct holding *anthropic.Client plus model/temperature/maxTokens,
// a messages-conversion helper, and a single completion call.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/tucentropdf/engine-v2/internal/config"
	"github.com/tucentropdf/engine-v2/internal/errs"
	"github.com/tucentropdf/engine-v2/internal/llm/schema"
	"github.com/tucentropdf/engine-v2/internal/metrics"
	"github.com/tucentropdf/engine-v2/internal/resilience"
	"github.com/tucentropdf/engine-v2/internal/retrypolicy"
	"github.com/tucentropdf/engine-v2/pkg/logger"
)

const defaultMaxTokens = 4096
const truncatedSampleBytes = 300

// Role is a message role, spec §4.3.
type Role string

const (
	RoleSystem Role = "system"
	RoleUser   Role = "user"
)

// Message is one entry in the ordered prompt, spec §4.3.
type Message struct {
	Role    Role
	Content string
}

// Object is the GenerateObject result, spec §4.3.
type Object struct {
	Data       map[string]interface{}
	TokensUsed int
}

// Client is the single LLM client instance shared by classify and
// extract calls (Open Question resolution, SPEC_FULL §9).
type Client struct {
	anthropic   *anthropic.Client
	model       string
	temperature float64
	maxTokens   int
	breaker     *resilience.CircuitBreaker
	retry       *retrypolicy.Policy
	logger      *logger.Logger
}

func NewClient(cfg *config.LLMConfig, log *logger.Logger, cbm *resilience.CircuitBreakerManager) *Client {
	client := anthropic.NewClient(option.WithAPIKey(cfg.APIKey), option.WithBaseURL(cfg.Endpoint))
	return &Client{
		anthropic:   &client,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   defaultMaxTokens,
		breaker:     cbm.Get("llm", resilience.LLMConfig()),
		retry:       retrypolicy.Default(log),
		logger:      log,
	}
}

// GenerateObject sends messages to the model and validates the
// returned JSON against schemaName before returning it. Retries on
// errs.TRANSIENT and once on a first QUOTA error (retrypolicy.Run);
// protocol violations (non-JSON, schema mismatch) are VALIDATION and
// never retried, per spec §4.3.
func (c *Client) GenerateObject(ctx context.Context, messages []Message, schemaName string) (*Object, error) {
	start := time.Now()
	var obj *Object

	err := c.retry.Run(ctx, "llm.generate_object:"+schemaName, func(ctx context.Context) error {
		return c.breaker.Execute(ctx, func() error {
			o, callErr := c.call(ctx, messages, schemaName)
			if callErr != nil {
				return callErr
			}
			obj = o
			return nil
		})
	})

	outcome := "ok"
	if err != nil {
		outcome = strings.ToLower(string(errs.KindOf(err)))
	}
	tokens := 0
	if obj != nil {
		tokens = obj.TokensUsed
	}
	metrics.RecordLLMCall(schemaName, outcome, time.Since(start).Seconds(), tokens)

	if err != nil {
		return nil, err
	}
	return obj, nil
}

func (c *Client) call(ctx context.Context, messages []Message, schemaName string) (*Object, error) {
	var claudeMessages []anthropic.MessageParam
	var systemText string
	for _, m := range messages {
		if m.Role == RoleSystem {
			if systemText == "" {
				systemText = m.Content
			}
			continue
		}
		claudeMessages = append(claudeMessages, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
	}
	if len(claudeMessages) == 0 {
		return nil, errs.Validation(errs.StageLLM, "at least one user message is required", nil)
	}

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(c.model),
		MaxTokens:   int64(c.maxTokens),
		Temperature: anthropic.Float(c.temperature),
		Messages:    claudeMessages,
	}
	if systemText != "" {
		params.System = []anthropic.TextBlockParam{{Text: systemText}}
	}

	resp, err := c.anthropic.Messages.New(ctx, params)
	if err != nil {
		return nil, classifyAnthropicError(err)
	}

	var raw strings.Builder
	for _, block := range resp.Content {
		if block.Type == anthropic.ContentBlockTypeText {
			raw.WriteString(block.Text)
		}
	}
	text := strings.TrimSpace(stripCodeFences(raw.String()))

	var data map[string]interface{}
	if err := json.Unmarshal([]byte(text), &data); err != nil {
		return nil, errs.Validation(errs.StageLLM, fmt.Sprintf("non-JSON response: %s", sample(text)), err)
	}

	if err := schema.Validate(schemaName, data); err != nil {
		return nil, errs.Validation(errs.StageLLM, fmt.Sprintf("schema violation for %s: %v, sample=%s", schemaName, err, sample(text)), err)
	}

	tokensUsed := int(resp.Usage.InputTokens + resp.Usage.OutputTokens)
	return &Object{Data: data, TokensUsed: tokensUsed}, nil
}

// classifyAnthropicError maps SDK errors to the shared taxonomy. The
// SDK surfaces an *anthropic.Error carrying the HTTP status for API
// failures; anything else (DNS, connection reset) is transport-level.
func classifyAnthropicError(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return errs.Classify(errs.StageLLM, apiErr.StatusCode, apiErr.Error(), nil)
	}
	return errs.Classify(errs.StageLLM, 0, "", err)
}

// stripCodeFences defensively removes ```json ... ``` wrapping the
// model was instructed not to emit but occasionally does anyway.
func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(s, "```")
	}
	return strings.TrimSpace(s)
}

func sample(s string) string {
	if len(s) <= truncatedSampleBytes {
		return s
	}
	return s[:truncatedSampleBytes] + "..."
}
