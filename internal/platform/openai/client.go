// Package openai is a chat completions client for OpenAI-compatible
// endpoints. Groq is the default upstream.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/yungbote/chatmemory-backend/internal/observability"
	"github.com/yungbote/chatmemory-backend/internal/pkg/httpx"
	"github.com/yungbote/chatmemory-backend/internal/platform/ctxutil"
	"github.com/yungbote/chatmemory-backend/internal/platform/envutil"
	"github.com/yungbote/chatmemory-backend/internal/platform/llm"
	"github.com/yungbote/chatmemory-backend/internal/platform/logger"
)

const (
	DefaultGroqBaseURL   = "https://api.groq.com/openai/v1"
	DefaultOpenAIBaseURL = "https://api.openai.com/v1"
	DefaultGroqModel     = "llama-3.3-70b-versatile"
	DefaultOpenAIModel   = "gpt-4o-mini"
)

type Config struct {
	// Provider labels metrics and logs ("groq", "openai").
	Provider    string
	BaseURL     string
	APIKey      string
	Model       string
	Temperature *float64
	MaxTokens   int
	Timeout     time.Duration
	MaxRetries  int
}

// ConfigFromEnv reads GROQ_* for provider "groq" and OPENAI_* otherwise.
func ConfigFromEnv(provider string) Config {
	provider = strings.ToLower(strings.TrimSpace(provider))
	prefix, baseURL, model := "OPENAI", DefaultOpenAIBaseURL, DefaultOpenAIModel
	if provider == "" || provider == "groq" {
		provider = "groq"
		prefix, baseURL, model = "GROQ", DefaultGroqBaseURL, DefaultGroqModel
	}
	cfg := Config{
		Provider:   provider,
		BaseURL:    envutil.String(prefix+"_BASE_URL", baseURL),
		APIKey:     envutil.String(prefix+"_API_KEY", ""),
		Model:      envutil.String(prefix+"_MODEL", model),
		MaxTokens:  envutil.Int(prefix+"_MAX_TOKENS", 1024),
		Timeout:    envutil.Seconds(prefix+"_TIMEOUT_SECONDS", 60*time.Second),
		MaxRetries: envutil.Int(prefix+"_MAX_RETRIES", 3),
	}
	if raw := strings.ToLower(envutil.String(prefix+"_TEMPERATURE", "0.3")); raw != "off" && raw != "none" {
		if f, err := strconv.ParseFloat(raw, 64); err == nil {
			cfg.Temperature = &f
		}
	}
	return cfg
}

// maxRetryWait caps the sleep between attempts in doWithRetry.
const maxRetryWait = 10 * time.Second

// CallBudget is the longest one Complete call can take when every attempt
// runs to its timeout.
func (c Config) CallBudget() time.Duration {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	retries := c.MaxRetries
	if retries < 0 {
		retries = 0
	}
	return time.Duration(retries+1)*timeout + time.Duration(retries)*maxRetryWait
}

type client struct {
	log        *logger.Logger
	provider   string
	baseURL    string
	apiKey     string
	model      string
	maxTokens  int
	httpClient *http.Client
	maxRetries int
	retryBase  time.Duration

	temperature *float64
	// Models that rejected the temperature parameter once are sent without it.
	noTempMu   sync.RWMutex
	noTempSeen map[string]bool
}

func NewClient(log *logger.Logger, cfg Config) (llm.Client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("missing %s api key", strings.ToUpper(cfg.Provider))
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultGroqBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultGroqModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.Provider == "" {
		cfg.Provider = "openai"
	}
	return &client{
		log:         log.With("service", "LLMClient", "provider", cfg.Provider),
		provider:    cfg.Provider,
		baseURL:     strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		apiKey:      strings.TrimSpace(cfg.APIKey),
		model:       strings.TrimSpace(cfg.Model),
		maxTokens:   cfg.MaxTokens,
		httpClient:  &http.Client{Timeout: cfg.Timeout},
		maxRetries:  cfg.MaxRetries,
		retryBase:   time.Second,
		temperature: cfg.Temperature,
		noTempSeen:  map[string]bool{},
	}, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature *float64      `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
			Refusal string `json:"refusal"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

func (c *client) Complete(ctx context.Context, messages []llm.Message) (string, error) {
	ctx = ctxutil.Default(ctx)
	if len(messages) == 0 {
		return "", fmt.Errorf("no messages")
	}
	req := chatRequest{
		Model:     c.model,
		Messages:  make([]chatMessage, 0, len(messages)),
		MaxTokens: c.maxTokens,
	}
	for _, m := range messages {
		req.Messages = append(req.Messages, chatMessage{Role: string(m.Role), Content: m.Content})
	}
	c.applyTemperature(&req)

	ctx, span := observability.StartSpan(ctx, "llm.complete",
		attribute.String("llm.provider", c.provider),
		attribute.String("llm.model", c.model),
		attribute.Int("llm.messages", len(messages)),
	)
	var out chatResponse
	err := c.doWithTempFallback(ctx, &req, &out)
	observability.EndSpan(span, err)
	if err != nil {
		return "", err
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("%s: empty choices", c.provider)
	}
	choice := out.Choices[0]
	if r := strings.TrimSpace(choice.Message.Refusal); r != "" {
		return "", fmt.Errorf("model refused: %s", r)
	}
	return strings.TrimSpace(choice.Message.Content), nil
}

func (c *client) applyTemperature(req *chatRequest) {
	if req == nil || c.temperature == nil {
		return
	}
	c.noTempMu.RLock()
	skip := c.noTempSeen[strings.ToLower(req.Model)]
	c.noTempMu.RUnlock()
	if skip {
		return
	}
	req.Temperature = c.temperature
}

// doWithTempFallback retries exactly once without temperature if the model rejects it.
func (c *client) doWithTempFallback(ctx context.Context, req *chatRequest, out any) error {
	err := c.doWithRetry(ctx, http.MethodPost, "/chat/completions", req, out)
	if err == nil || req.Temperature == nil || !isUnsupportedTemperatureParam(err) {
		return err
	}
	c.noTempMu.Lock()
	c.noTempSeen[strings.ToLower(req.Model)] = true
	c.noTempMu.Unlock()
	req.Temperature = nil
	return c.doWithRetry(ctx, http.MethodPost, "/chat/completions", req, out)
}

type httpError struct {
	StatusCode int
	Body       string
}

func (e *httpError) Error() string {
	return fmt.Sprintf("llm http %d: %s", e.StatusCode, e.Body)
}

func (e *httpError) HTTPStatusCode() int {
	if e == nil {
		return 0
	}
	return e.StatusCode
}

func isUnsupportedTemperatureParam(err error) bool {
	var he *httpError
	if !errors.As(err, &he) || he.StatusCode != http.StatusBadRequest {
		return false
	}
	msg := strings.ToLower(he.Body)
	if !strings.Contains(msg, "temperature") {
		return false
	}
	for _, needle := range []string{"unsupported", "unknown parameter", "not supported", "does not support", "only the default"} {
		if strings.Contains(msg, needle) {
			return true
		}
	}
	return false
}

func (c *client) doOnce(ctx context.Context, method, path string, body any) (*http.Response, []byte, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, nil, err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, &buf)
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, err
	}
	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return resp, nil, readErr
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp, raw, &httpError{StatusCode: resp.StatusCode, Body: string(raw)}
	}
	return resp, raw, nil
}

func (c *client) doWithRetry(ctx context.Context, method, path string, body *chatRequest, out any) error {
	start := time.Now()
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		resp, raw, err := c.doOnce(ctx, method, path, body)
		if err == nil {
			in, outTok := extractUsageFromRaw(raw)
			observability.Current().ObserveLLMRequest(c.provider, body.Model, statusFromResp(resp), time.Since(start), in, outTok)
			if uErr := json.Unmarshal(raw, out); uErr != nil {
				return fmt.Errorf("%s decode error: %w", c.provider, uErr)
			}
			return nil
		}
		if !httpx.IsRetryableError(err) || attempt == c.maxRetries {
			observability.Current().ObserveLLMRequest(c.provider, body.Model, statusFromRespErr(resp, err), time.Since(start), 0, 0)
			return err
		}

		sleepFor := httpx.RetryAfterDuration(resp, httpx.Backoff(c.retryBase, maxRetryWait, attempt+1), maxRetryWait)
		sleepFor = httpx.JitterSleep(sleepFor)
		c.log.Warn("LLM request retrying",
			"path", path,
			"attempt", attempt+1,
			"max_retries", c.maxRetries,
			"sleep", sleepFor.String(),
			"error", err.Error(),
		)
		if err := httpx.Sleep(ctx, sleepFor); err != nil {
			return err
		}
	}
	return fmt.Errorf("unreachable retry loop")
}

func extractUsageFromRaw(raw []byte) (int, int) {
	var payload struct {
		Usage struct {
			PromptTokens     int `json:"prompt_tokens"`
			CompletionTokens int `json:"completion_tokens"`
			TotalTokens      int `json:"total_tokens"`
		} `json:"usage"`
	}
	if len(raw) == 0 || json.Unmarshal(raw, &payload) != nil {
		return 0, 0
	}
	u := payload.Usage
	if u.PromptTokens == 0 && u.CompletionTokens == 0 && u.TotalTokens > 0 {
		return u.TotalTokens, 0
	}
	return u.PromptTokens, u.CompletionTokens
}

func statusFromResp(resp *http.Response) string {
	if resp == nil {
		return "unknown"
	}
	return strconv.Itoa(resp.StatusCode)
}

func statusFromRespErr(resp *http.Response, err error) string {
	if resp != nil {
		return strconv.Itoa(resp.StatusCode)
	}
	var he *httpError
	if errors.As(err, &he) {
		return strconv.Itoa(he.StatusCode)
	}
	if errors.Is(err, context.Canceled) {
		return "canceled"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	return "error"
}
