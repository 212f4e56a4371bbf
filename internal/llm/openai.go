package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// OpenAIOpts configures an OpenAI-compatible client. Gemini, among others,
// serves this API shape.
type OpenAIOpts struct {
	APIKey     string
	BaseURL    string
	Model      string
	MaxTokens  int
	Timeout    time.Duration
	HTTPClient *http.Client // optional
}

// OpenAI asks an OpenAI-compatible chat completions endpoint.
type OpenAI struct {
	llm       llms.Model
	maxTokens int
	timeout   time.Duration
}

// NewOpenAI creates an OpenAI-compatible client.
func NewOpenAI(opts OpenAIOpts) (*OpenAI, error) {
	if opts.APIKey == "" {
		return nil, fmt.Errorf("llm: openai: api key is required")
	}
	if opts.Model == "" {
		return nil, fmt.Errorf("llm: openai: model is required")
	}
	options := []openai.Option{
		openai.WithToken(opts.APIKey),
		openai.WithModel(opts.Model),
	}
	if opts.BaseURL != "" {
		options = append(options, openai.WithBaseURL(strings.TrimSuffix(opts.BaseURL, "/")))
	}
	if opts.HTTPClient != nil {
		options = append(options, openai.WithHTTPClient(opts.HTTPClient))
	}
	model, err := openai.New(options...)
	if err != nil {
		return nil, fmt.Errorf("llm: openai: %w", err)
	}
	return &OpenAI{llm: model, maxTokens: opts.MaxTokens, timeout: opts.Timeout}, nil
}

// Ask sends the vocabulary prompt for text and returns the raw answer.
func (o *OpenAI) Ask(ctx context.Context, text string) (string, error) {
	ctx, cancel, prompt, err := prepare(ctx, text, o.timeout)
	defer cancel()
	if err != nil {
		return "", err
	}

	var callOpts []llms.CallOption
	if o.maxTokens > 0 {
		callOpts = append(callOpts, llms.WithMaxTokens(o.maxTokens))
	}
	answer, err := llms.GenerateFromSinglePrompt(ctx, o.llm, prompt, callOpts...)
	if err != nil {
		return "", fmt.Errorf("llm: openai: %w", err)
	}
	return answer, nil
}
