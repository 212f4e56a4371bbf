package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicOpts configures an Anthropic Messages API client.
type AnthropicOpts struct {
	APIKey     string
	BaseURL    string // optional
	Model      string
	MaxTokens  int
	Timeout    time.Duration
	HTTPClient *http.Client // optional
}

// Anthropic asks the Anthropic Messages API.
type Anthropic struct {
	client    anthropic.Client
	model     anthropic.Model
	maxTokens int64
	timeout   time.Duration
}

// NewAnthropic creates an Anthropic client. The SDK's automatic retries are
// disabled; a failed call surfaces immediately.
func NewAnthropic(opts AnthropicOpts) (*Anthropic, error) {
	if opts.APIKey == "" {
		return nil, fmt.Errorf("llm: anthropic: api key is required")
	}
	if opts.Model == "" {
		return nil, fmt.Errorf("llm: anthropic: model is required")
	}
	reqOpts := []option.RequestOption{
		option.WithAPIKey(opts.APIKey),
		option.WithMaxRetries(0),
	}
	if opts.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(opts.BaseURL))
	}
	if opts.HTTPClient != nil {
		reqOpts = append(reqOpts, option.WithHTTPClient(opts.HTTPClient))
	}
	maxTokens := int64(opts.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	return &Anthropic{
		client:    anthropic.NewClient(reqOpts...),
		model:     anthropic.Model(opts.Model),
		maxTokens: maxTokens,
		timeout:   opts.Timeout,
	}, nil
}

// Ask sends the vocabulary prompt for text and returns the concatenated text
// blocks of the reply.
func (a *Anthropic) Ask(ctx context.Context, text string) (string, error) {
	ctx, cancel, prompt, err := prepare(ctx, text, a.timeout)
	defer cancel()
	if err != nil {
		return "", err
	}

	msg, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     a.model,
		MaxTokens: a.maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("llm: anthropic: %w", err)
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if v, ok := block.AsAny().(anthropic.TextBlock); ok {
			sb.WriteString(v.Text)
		}
	}
	if sb.Len() == 0 {
		return "", fmt.Errorf("llm: anthropic: empty response")
	}
	return sb.String(), nil
}
