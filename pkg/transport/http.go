package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/go-go-golems/ragchat/pkg/conversation"
	"github.com/go-go-golems/ragchat/pkg/security"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	DefaultBaseURL = "http://localhost:8000"
	DefaultTimeout = 60 * time.Second

	chatPath   = "/chat"
	healthPath = "/health"

	// bodies larger than this are treated as malformed
	maxResponseBytes = 8 << 20
)

// ChatMessage is the wire form of a conversation.Message.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the body of POST /chat.
type ChatRequest struct {
	Messages []ChatMessage `json:"messages"`
	TopK     int           `json:"top_k"`
}

// ChatResponse is the body returned by POST /chat. Answer is a pointer so
// that a missing field can be told apart from an empty answer.
type ChatResponse struct {
	Answer  *string  `json:"answer"`
	Sources []string `json:"sources,omitempty"`
}

type HealthResponse struct {
	Status string `json:"status"`
}

// HTTPTransport talks to the backend over JSON/HTTP.
type HTTPTransport struct {
	httpClient *http.Client
	BaseURL    string
}

type HTTPOption func(*HTTPTransport)

// WithTimeout bounds every request, in addition to the caller's context.
func WithTimeout(timeout time.Duration) HTTPOption {
	return func(t *HTTPTransport) {
		t.httpClient.Timeout = timeout
	}
}

// NewHTTPTransport validates baseURL and returns a transport for it.
func NewHTTPTransport(baseURL string, urlOptions security.BackendURLOptions, options ...HTTPOption) (*HTTPTransport, error) {
	normalized, err := security.NormalizeBackendURL(baseURL, urlOptions)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid backend base URL %q", baseURL)
	}

	ret := &HTTPTransport{
		httpClient: &http.Client{Timeout: DefaultTimeout},
		BaseURL:    normalized,
	}
	for _, o := range options {
		o(ret)
	}

	return ret, nil
}

var _ Transport = (*HTTPTransport)(nil)

func NewChatRequest(history conversation.Conversation, topK int) *ChatRequest {
	req := &ChatRequest{
		Messages: make([]ChatMessage, 0, len(history)),
		TopK:     topK,
	}
	for _, m := range history {
		req.Messages = append(req.Messages, ChatMessage{
			Role:    string(m.Role),
			Content: m.Content,
		})
	}
	return req
}

// Exchange sends the full history to POST /chat and returns the answer with its sources.
func (t *HTTPTransport) Exchange(ctx context.Context, history conversation.Conversation, topK int) (*Result, error) {
	body, err := json.Marshal(NewChatRequest(history, topK))
	if err != nil {
		return nil, newExchangeError(FailureMalformed, errors.Wrap(err, "could not encode chat request"))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.BaseURL+chatPath, bytes.NewReader(body))
	if err != nil {
		return nil, newExchangeError(FailureNetwork, errors.Wrap(err, "could not create chat request"))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	log.Debug().
		Str("url", req.URL.String()).
		Int("messages", len(history)).
		Int("top_k", topK).
		Msg("Sending chat exchange")

	respBody, statusCode, err := t.do(req)
	if err != nil {
		return nil, err
	}

	if statusCode < 200 || statusCode > 299 {
		ee := newExchangeError(FailureStatus, nil)
		ee.StatusCode = statusCode
		if len(respBody) > 0 {
			ee.Cause = errors.New(truncate(string(respBody), 512))
		}
		return nil, ee
	}

	var chatResp ChatResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return nil, newExchangeError(FailureMalformed, errors.Wrap(err, "could not decode chat response"))
	}
	if chatResp.Answer == nil {
		return nil, newExchangeError(FailureMalformed, errors.New("chat response has no answer"))
	}

	sources := chatResp.Sources
	if sources == nil {
		sources = []string{}
	}

	log.Debug().
		Dur("duration", time.Since(start)).
		Int("sources", len(sources)).
		Msg("Chat exchange completed")

	return &Result{
		Answer:  *chatResp.Answer,
		Sources: sources,
	}, nil
}

// Health probes GET /health. The backend answers {"status": "ok"} when it is up.
func (t *HTTPTransport) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.BaseURL+healthPath, nil)
	if err != nil {
		return newExchangeError(FailureNetwork, errors.Wrap(err, "could not create health request"))
	}
	req.Header.Set("Accept", "application/json")

	respBody, statusCode, err := t.do(req)
	if err != nil {
		return err
	}
	if statusCode != http.StatusOK {
		ee := newExchangeError(FailureStatus, nil)
		ee.StatusCode = statusCode
		return ee
	}

	var health HealthResponse
	if err := json.Unmarshal(respBody, &health); err != nil {
		return newExchangeError(FailureMalformed, errors.Wrap(err, "could not decode health response"))
	}
	if health.Status != "ok" {
		return newExchangeError(FailureStatus, errors.Errorf("backend reports status %q", health.Status))
	}

	return nil
}

func (t *HTTPTransport) do(req *http.Request) ([]byte, int, error) {
	// #nosec G107 -- BaseURL is validated in NewHTTPTransport.
	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, 0, newExchangeError(FailureNetwork, err)
	}
	defer func(Body io.ReadCloser) {
		_ = Body.Close()
	}(resp.Body)

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes+1))
	if err != nil {
		return nil, resp.StatusCode, newExchangeError(FailureNetwork, errors.Wrap(err, "could not read response body"))
	}
	if len(respBody) > maxResponseBytes {
		return nil, resp.StatusCode, newExchangeError(FailureMalformed, errors.New("response body too large"))
	}

	return respBody, resp.StatusCode, nil
}

// truncate keeps at most n bytes of s without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
