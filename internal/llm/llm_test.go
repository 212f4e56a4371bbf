package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/zulandar/quickvocab/internal/config"
)

// ---------------------------------------------------------------------------
// Prompt
// ---------------------------------------------------------------------------

func TestBuildPrompt_IncludesInputAndMarker(t *testing.T) {
	prompt, err := BuildPrompt("What does ubiquitous mean?")
	if err != nil {
		t.Fatalf("BuildPrompt: %v", err)
	}
	if !strings.Contains(prompt, `"What does ubiquitous mean?"`) {
		t.Errorf("prompt missing quoted input:\n%s", prompt)
	}
	if !strings.Contains(prompt, `add "VOCABULARIES:"`) {
		t.Errorf("prompt missing vocabulary instruction:\n%s", prompt)
	}
	if !strings.Contains(prompt, "**double asterisks**") {
		t.Errorf("prompt missing markup instruction:\n%s", prompt)
	}
}

// ---------------------------------------------------------------------------
// New
// ---------------------------------------------------------------------------

func TestNew_UnknownProvider(t *testing.T) {
	_, err := New(config.ModelConfig{Provider: "llama", APIKey: "k", Name: "m"}, nil)
	if err == nil {
		t.Fatal("expected error for unknown provider")
	}
	if !strings.Contains(err.Error(), "unknown provider") {
		t.Errorf("error = %q", err.Error())
	}
}

func TestNew_MissingKey(t *testing.T) {
	for _, provider := range []string{config.ProviderOpenAI, config.ProviderAnthropic} {
		t.Run(provider, func(t *testing.T) {
			_, err := New(config.ModelConfig{Provider: provider, Name: "m"}, nil)
			if err == nil {
				t.Fatal("expected error for missing api key")
			}
			if !strings.Contains(err.Error(), "api key is required") {
				t.Errorf("error = %q", err.Error())
			}
		})
	}
}

func TestNew_SelectsProvider(t *testing.T) {
	c, err := New(config.ModelConfig{Provider: config.ProviderAnthropic, APIKey: "k", Name: "m"}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, ok := c.(*Anthropic); !ok {
		t.Errorf("client type = %T, want *Anthropic", c)
	}

	c, err = New(config.ModelConfig{Provider: config.ProviderOpenAI, APIKey: "k", Name: "m", BaseURL: "http://localhost"}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, ok := c.(*OpenAI); !ok {
		t.Errorf("client type = %T, want *OpenAI", c)
	}
}

// ---------------------------------------------------------------------------
// OpenAI-compatible provider
// ---------------------------------------------------------------------------

func newOpenAIServer(t *testing.T, status int, content string, gotBody *[]byte) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("Authorization = %q", got)
		}
		body, _ := io.ReadAll(r.Body)
		if gotBody != nil {
			*gotBody = body
		}
		w.Header().Set("Content-Type", "application/json")
		if status != http.StatusOK {
			w.WriteHeader(status)
			w.Write([]byte(`{"error":{"message":"quota exceeded","type":"rate_limit"}}`))
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"created": 1700000000,
			"model":   "gemini-1.5-flash",
			"choices": []map[string]any{
				{
					"index":         0,
					"message":       map[string]any{"role": "assistant", "content": content},
					"finish_reason": "stop",
				},
			},
			"usage": map[string]any{"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestOpenAI_Ask(t *testing.T) {
	var body []byte
	srv := newOpenAIServer(t, http.StatusOK, "A **quokka** is a marsupial.\nVOCABULARIES: quokka, marsupial", &body)

	client, err := NewOpenAI(OpenAIOpts{
		APIKey:  "test-key",
		BaseURL: srv.URL + "/",
		Model:   "gemini-1.5-flash",
		Timeout: 5 * time.Second,
	})
	if err != nil {
		t.Fatalf("NewOpenAI: %v", err)
	}

	got, err := client.Ask(context.Background(), "What is a quokka?")
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if got != "A **quokka** is a marsupial.\nVOCABULARIES: quokka, marsupial" {
		t.Errorf("Ask = %q", got)
	}
	if !bytes.Contains(body, []byte("What is a quokka?")) {
		t.Errorf("request body missing user text: %s", body)
	}
	if !bytes.Contains(body, []byte(`"gemini-1.5-flash"`)) {
		t.Errorf("request body missing model: %s", body)
	}
}

func TestOpenAI_AskError(t *testing.T) {
	srv := newOpenAIServer(t, http.StatusTooManyRequests, "", nil)
	client, err := NewOpenAI(OpenAIOpts{APIKey: "test-key", BaseURL: srv.URL, Model: "m"})
	if err != nil {
		t.Fatalf("NewOpenAI: %v", err)
	}
	_, err = client.Ask(context.Background(), "hello")
	if err == nil {
		t.Fatal("expected error for non-success status")
	}
	if !strings.Contains(err.Error(), "llm: openai") {
		t.Errorf("error = %q, want llm: openai prefix", err.Error())
	}
}

func TestOpenAI_AskEmptyInput(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
	}))
	defer srv.Close()

	client, err := NewOpenAI(OpenAIOpts{APIKey: "test-key", BaseURL: srv.URL, Model: "m"})
	if err != nil {
		t.Fatalf("NewOpenAI: %v", err)
	}
	_, err = client.Ask(context.Background(), "   ")
	if !errors.Is(err, ErrEmptyInput) {
		t.Errorf("err = %v, want ErrEmptyInput", err)
	}
	if calls != 0 {
		t.Errorf("server called %d times, want 0", calls)
	}
}

// ---------------------------------------------------------------------------
// Anthropic provider
// ---------------------------------------------------------------------------

type fakeTransport struct {
	status int
	body   string
	calls  int
	req    []byte
}

func (f *fakeTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	f.calls++
	if req.Body != nil {
		f.req, _ = io.ReadAll(req.Body)
		req.Body.Close()
	}
	resp := &http.Response{
		StatusCode: f.status,
		Body:       io.NopCloser(strings.NewReader(f.body)),
		Header:     make(http.Header),
		Request:    req,
	}
	resp.Header.Set("Content-Type", "application/json")
	return resp, nil
}

func TestAnthropic_Ask(t *testing.T) {
	ft := &fakeTransport{
		status: http.StatusOK,
		body: `{"id":"msg_1","type":"message","role":"assistant","model":"claude-3-5-haiku-latest",
			"content":[{"type":"text","text":"*Petrichor* is the smell of rain."},{"type":"text","text":"\nVOCABULARIES: petrichor"}],
			"stop_reason":"end_turn","usage":{"input_tokens":12,"output_tokens":9}}`,
	}
	client, err := NewAnthropic(AnthropicOpts{
		APIKey:     "test-key",
		Model:      "claude-3-5-haiku-latest",
		HTTPClient: &http.Client{Transport: ft},
	})
	if err != nil {
		t.Fatalf("NewAnthropic: %v", err)
	}

	got, err := client.Ask(context.Background(), "petrichor?")
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if got != "*Petrichor* is the smell of rain.\nVOCABULARIES: petrichor" {
		t.Errorf("Ask = %q", got)
	}
	if !bytes.Contains(ft.req, []byte("petrichor?")) {
		t.Errorf("request body missing user text: %s", ft.req)
	}
}

func TestAnthropic_NoRetryOnError(t *testing.T) {
	ft := &fakeTransport{
		status: http.StatusInternalServerError,
		body:   `{"type":"error","error":{"type":"api_error","message":"boom"}}`,
	}
	client, err := NewAnthropic(AnthropicOpts{
		APIKey:     "test-key",
		Model:      "m",
		HTTPClient: &http.Client{Transport: ft},
	})
	if err != nil {
		t.Fatalf("NewAnthropic: %v", err)
	}
	_, err = client.Ask(context.Background(), "hello")
	if err == nil {
		t.Fatal("expected error")
	}
	if ft.calls != 1 {
		t.Errorf("transport called %d times, want 1 (no retries)", ft.calls)
	}
}

func TestAnthropic_EmptyResponse(t *testing.T) {
	ft := &fakeTransport{
		status: http.StatusOK,
		body:   `{"id":"msg_2","type":"message","role":"assistant","model":"m","content":[],"stop_reason":"end_turn","usage":{"input_tokens":1,"output_tokens":0}}`,
	}
	client, _ := NewAnthropic(AnthropicOpts{APIKey: "k", Model: "m", HTTPClient: &http.Client{Transport: ft}})
	_, err := client.Ask(context.Background(), "hello")
	if err == nil || !strings.Contains(err.Error(), "empty response") {
		t.Errorf("err = %v, want empty response error", err)
	}
}
