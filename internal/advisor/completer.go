package advisor

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	log "github.com/sirupsen/logrus"

	"github.com/ukydev/carbuddy/internal/retry"
)

// ErrMissingAPIKey is returned when no Anthropic API key is configured.
var ErrMissingAPIKey = errors.New("advisor: ANTHROPIC_API_KEY is not set")

// Completer sends a single prompt to a generative model and returns its text.
type Completer interface {
	Complete(ctx context.Context, system, prompt string, temperature float64) (string, error)
}

// DefaultPolicy retries rate limits and server errors.
var DefaultPolicy = retry.Policy{
	MaxAttempts:     4,
	InitialInterval: time.Second,
	Multiplier:      2,
	MaxInterval:     10 * time.Second,
}

// AnthropicCompleter calls the Anthropic Messages API.
type AnthropicCompleter struct {
	client    anthropic.Client
	model     anthropic.Model
	maxTokens int64
	policy    retry.Policy
}

// NewAnthropicCompleter creates a completer for model. Extra request options
// (base URL, HTTP client) are passed through to the SDK.
func NewAnthropicCompleter(apiKey, model string, opts ...option.RequestOption) (*AnthropicCompleter, error) {
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	// Retries are handled by policy, not by the SDK.
	opts = append([]option.RequestOption{option.WithAPIKey(apiKey), option.WithMaxRetries(0)}, opts...)
	return &AnthropicCompleter{
		client:    anthropic.NewClient(opts...),
		model:     anthropic.Model(model),
		maxTokens: 1024,
		policy:    DefaultPolicy,
	}, nil
}

// WithPolicy overrides the retry policy.
func (a *AnthropicCompleter) WithPolicy(p retry.Policy) *AnthropicCompleter {
	a.policy = p
	return a
}

// Complete implements Completer.
func (a *AnthropicCompleter) Complete(ctx context.Context, system, prompt string, temperature float64) (string, error) {
	return a.send(ctx, anthropic.MessageNewParams{
		Model:     a.model,
		MaxTokens: a.maxTokens,
		System:    []anthropic.TextBlockParam{{Text: system}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
		Temperature: anthropic.Float(temperature),
	})
}

// CompleteImage implements ImageCompleter. The image goes before the prompt.
func (a *AnthropicCompleter) CompleteImage(ctx context.Context, system, prompt string, image []byte, mediaType string) (string, error) {
	return a.send(ctx, anthropic.MessageNewParams{
		Model:     a.model,
		MaxTokens: a.maxTokens,
		System:    []anthropic.TextBlockParam{{Text: system}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(
				anthropic.NewImageBlockBase64(mediaType, base64.StdEncoding.EncodeToString(image)),
				anthropic.NewTextBlock(prompt),
			),
		},
	})
}

func (a *AnthropicCompleter) send(ctx context.Context, params anthropic.MessageNewParams) (string, error) {
	var text string
	attempts, err := a.policy.Do(ctx, "anthropic.messages.new", func(ctx context.Context) error {
		message, err := a.client.Messages.New(ctx, params)
		if err != nil {
			if !isRetryable(err) {
				return retry.Permanent(err)
			}
			return err
		}

		var b strings.Builder
		for _, block := range message.Content {
			if block.Type == "text" {
				b.WriteString(block.Text)
			}
		}
		if b.Len() == 0 {
			return retry.Permanent(errors.New("unexpected response format: no text blocks"))
		}
		text = b.String()

		log.WithFields(log.Fields{
			"model":         a.model,
			"input_tokens":  message.Usage.InputTokens,
			"output_tokens": message.Usage.OutputTokens,
		}).Debug("Anthropic completion")
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("advisor: completion failed after %d attempt(s): %w", attempts, err)
	}
	return text, nil
}

func isRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429 || apiErr.StatusCode >= 500
	}
	return false
}
