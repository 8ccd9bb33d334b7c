package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/itsneelabh/taskctl/core"
)

// APIBackend issues a single HTTP POST per request and emits one synthetic
// event carrying the full reply. Grounded on ai/providers/base.go's
// BaseClient (HTTP client lifecycle, retry/backoff, error classification).
type APIBackend struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	logger     core.Logger

	maxRetries int
	retryDelay time.Duration
}

// APIBackendOption configures an APIBackend.
type APIBackendOption func(*APIBackend)

func WithAPITimeout(d time.Duration) APIBackendOption {
	return func(b *APIBackend) { b.httpClient.Timeout = d }
}

func WithAPILogger(logger core.Logger) APIBackendOption {
	return func(b *APIBackend) { b.logger = logger }
}

func WithAPIRetries(maxRetries int, delay time.Duration) APIBackendOption {
	return func(b *APIBackend) {
		b.maxRetries = maxRetries
		b.retryDelay = delay
	}
}

// NewAPIBackend constructs an APIBackend targeting baseURL, authenticated
// with apiKey. The outbound client is instrumented with otelhttp so every
// call produces a span.
func NewAPIBackend(baseURL, apiKey string, opts ...APIBackendOption) *APIBackend {
	b := &APIBackend{
		httpClient: &http.Client{
			Timeout:   30 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		baseURL:    baseURL,
		apiKey:     apiKey,
		logger:     &core.NoOpLogger{},
		maxRetries: 3,
		retryDelay: time.Second,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *APIBackend) Name() string { return "api" }

type apiChatRequest struct {
	Model       string                 `json:"model"`
	Messages    []apiChatMessage       `json:"messages"`
	Temperature float32                `json:"temperature,omitempty"`
	MaxTokens   int                    `json:"max_tokens,omitempty"`
}

type apiChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type apiChatResponse struct {
	Choices []struct {
		Message apiChatMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

func (b *APIBackend) Generate(ctx context.Context, req Request) EventSequence {
	out := make(chan EventOrError, 1)
	go func() {
		defer close(out)

		payload := apiChatRequest{Model: req.Model, Temperature: req.Config.Temperature, MaxTokens: req.Config.MaxOutputTokens}
		if req.Config.SystemInstruction != "" {
			payload.Messages = append(payload.Messages, apiChatMessage{Role: "system", Content: req.Config.SystemInstruction})
		}
		for _, c := range req.Contents {
			role := c.Role
			if role == "model" {
				role = "assistant"
			}
			for _, p := range c.Parts {
				if p.Text != "" {
					payload.Messages = append(payload.Messages, apiChatMessage{Role: role, Content: p.Text})
				}
			}
		}

		body, err := json.Marshal(payload)
		if err != nil {
			out <- EventOrError{Err: &PortError{Kind: ErrorKindProviderError, Message: "encode request", Err: err}}
			return
		}

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/chat/completions", bytes.NewReader(body))
		if err != nil {
			out <- EventOrError{Err: &PortError{Kind: ErrorKindProviderError, Message: "build request", Err: err}}
			return
		}
		httpReq.Header.Set("Content-Type", "application/json")
		if b.apiKey != "" {
			httpReq.Header.Set("Authorization", "Bearer "+b.apiKey)
		}

		resp, err := b.doWithRetry(httpReq)
		if err != nil {
			if ctx.Err() == context.DeadlineExceeded {
				out <- EventOrError{Err: &PortError{Kind: ErrorKindTimeout, Message: "request timed out", Err: err}}
				return
			}
			out <- EventOrError{Err: &PortError{Kind: ErrorKindProviderUnavailable, Message: "request failed", Err: err}}
			return
		}
		defer resp.Body.Close()

		respBody, _ := io.ReadAll(resp.Body)
		if resp.StatusCode >= 400 {
			out <- EventOrError{Err: &PortError{Kind: ErrorKindProviderError, Message: fmt.Sprintf("http %d: %s", resp.StatusCode, string(respBody))}}
			return
		}

		var parsed apiChatResponse
		if err := json.Unmarshal(respBody, &parsed); err != nil {
			out <- EventOrError{Err: &PortError{Kind: ErrorKindProviderError, Message: "decode response", Err: err}}
			return
		}

		text := ""
		if len(parsed.Choices) > 0 {
			text = parsed.Choices[0].Message.Content
		}

		out <- EventOrError{Event: &core.Event{
			Author:       "model",
			ContentParts: []core.ContentPart{{Text: text}},
			UsageMetadata: &core.UsageMetadata{
				PromptTokenCount:     parsed.Usage.PromptTokens,
				CandidatesTokenCount: parsed.Usage.CompletionTokens,
				TotalTokenCount:      parsed.Usage.TotalTokens,
			},
		}}
	}()
	return out
}

func (b *APIBackend) Connect(ctx context.Context, req Request) (EventSequence, error) {
	return nil, &PortError{Kind: ErrorKindProviderError, Message: "not supported"}
}

func (b *APIBackend) doWithRetry(req *http.Request) (*http.Response, error) {
	var lastErr error
	for attempt := 0; attempt <= b.maxRetries; attempt++ {
		reqClone := req.Clone(req.Context())
		resp, err := b.httpClient.Do(reqClone)
		if err == nil && resp.StatusCode < 500 && resp.StatusCode != 429 {
			return resp, nil
		}
		if err != nil {
			lastErr = err
		} else {
			lastErr = fmt.Errorf("server error: status %d", resp.StatusCode)
			resp.Body.Close()
		}
		if attempt < b.maxRetries {
			delay := b.retryDelay * time.Duration(1<<uint(attempt))
			select {
			case <-time.After(delay):
			case <-req.Context().Done():
				return nil, req.Context().Err()
			}
		}
	}
	return nil, fmt.Errorf("request failed after %d retries: %w", b.maxRetries, lastErr)
}
