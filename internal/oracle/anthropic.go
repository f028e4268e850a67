package oracle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.uber.org/zap"

	"github.com/cory-johannsen/arbiter/internal/config"
	"github.com/cory-johannsen/arbiter/internal/game/transcript"
)

// Client is an Oracle backed by the Anthropic Messages API.
type Client struct {
	client    anthropic.Client
	model     anthropic.Model
	maxTokens int64
	timeout   time.Duration
	logger    *zap.Logger
}

// NewClient creates an Anthropic-backed oracle from the given configuration.
//
// Precondition: cfg.APIKey and cfg.Model must be non-empty; logger must be non-nil.
func NewClient(cfg config.OracleConfig, logger *zap.Logger) *Client {
	return &Client{
		client:    anthropic.NewClient(option.WithAPIKey(cfg.APIKey)),
		model:     anthropic.Model(cfg.Model),
		maxTokens: int64(cfg.MaxTokens),
		timeout:   cfg.RequestTimeout,
		logger:    logger,
	}
}

// Complete implements Oracle.
//
// System messages anywhere in msgs are lifted into the request's system
// blocks; consecutive same-role turns are merged, since the API treats a
// conversation as strictly alternating.
func (c *Client) Complete(ctx context.Context, msgs []transcript.Message, temperature float64) (string, error) {
	system, turns := splitConversation(msgs)
	if len(turns) == 0 {
		return "", fmt.Errorf("conversation has no user or assistant messages")
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       c.model,
		MaxTokens:   c.maxTokens,
		Temperature: anthropic.Float(temperature),
		System:      system,
		Messages:    turns,
	})
	if err != nil {
		return "", fmt.Errorf("completing conversation: %w", err)
	}

	var b strings.Builder
	for _, block := range resp.Content {
		if block.Text != "" {
			b.WriteString(block.Text)
		}
	}

	c.logger.Debug("oracle completion",
		zap.String("model", string(c.model)),
		zap.Float64("temperature", temperature),
		zap.Int("messages", len(msgs)),
		zap.Int("response_chars", b.Len()),
		zap.Duration("elapsed", time.Since(start)),
	)
	return b.String(), nil
}

// splitConversation separates system context from the alternating turns,
// merging consecutive same-role turns.
func splitConversation(msgs []transcript.Message) ([]anthropic.TextBlockParam, []anthropic.MessageParam) {
	var system []anthropic.TextBlockParam
	var turns []anthropic.MessageParam

	var pendingRole transcript.Role
	var pending []string

	flush := func() {
		if len(pending) == 0 {
			return
		}
		text := strings.Join(pending, "\n\n")
		if pendingRole == transcript.RoleAssistant {
			turns = append(turns, anthropic.NewAssistantMessage(anthropic.NewTextBlock(text)))
		} else {
			turns = append(turns, anthropic.NewUserMessage(anthropic.NewTextBlock(text)))
		}
		pending = nil
	}

	for _, m := range msgs {
		if m.Role == transcript.RoleSystem {
			system = append(system, anthropic.TextBlockParam{Text: m.Content})
			continue
		}
		if m.Role != pendingRole {
			flush()
			pendingRole = m.Role
		}
		pending = append(pending, m.Content)
	}
	flush()

	return system, turns
}

// IsTransient reports whether err looks like a retryable API failure:
// rate limiting, server errors, or a timed-out request.
func IsTransient(err error) bool {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429 || apiErr.StatusCode >= 500
	}
	return errors.Is(err, context.DeadlineExceeded)
}
