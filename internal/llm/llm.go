// Package llm asks a hosted language model one vocabulary question at a time.
// Every call is stateless: no conversation context is sent to the model.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/zulandar/quickvocab/internal/config"
)

// ErrEmptyInput is returned by Ask for blank input.
var ErrEmptyInput = errors.New("llm: input is empty")

// Client answers a single user question with free text.
type Client interface {
	Ask(ctx context.Context, text string) (string, error)
}

// New builds the Client selected by cfg.Provider. httpClient may be nil.
func New(cfg config.ModelConfig, httpClient *http.Client) (Client, error) {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	switch cfg.Provider {
	case config.ProviderOpenAI, "":
		c, err := NewOpenAI(OpenAIOpts{
			APIKey:     cfg.APIKey,
			BaseURL:    cfg.BaseURL,
			Model:      cfg.Name,
			MaxTokens:  cfg.MaxTokens,
			Timeout:    timeout,
			HTTPClient: httpClient,
		})
		if err != nil {
			return nil, err
		}
		return c, nil
	case config.ProviderAnthropic:
		c, err := NewAnthropic(AnthropicOpts{
			APIKey:     cfg.APIKey,
			BaseURL:    cfg.BaseURL,
			Model:      cfg.Name,
			MaxTokens:  cfg.MaxTokens,
			Timeout:    timeout,
			HTTPClient: httpClient,
		})
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, fmt.Errorf("llm: unknown provider %q", cfg.Provider)
	}
}

// prepare validates input, renders the prompt and applies the call timeout.
func prepare(ctx context.Context, text string, timeout time.Duration) (context.Context, context.CancelFunc, string, error) {
	if strings.TrimSpace(text) == "" {
		return ctx, func() {}, "", ErrEmptyInput
	}
	prompt, err := BuildPrompt(text)
	if err != nil {
		return ctx, func() {}, "", err
	}
	if timeout <= 0 {
		return ctx, func() {}, prompt, nil
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	return ctx, cancel, prompt, nil
}
