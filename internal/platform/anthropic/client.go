// Package anthropic adapts the Anthropic Messages API to llm.Client.
package anthropic

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.opentelemetry.io/otel/attribute"

	"github.com/yungbote/chatmemory-backend/internal/observability"
	"github.com/yungbote/chatmemory-backend/internal/platform/envutil"
	"github.com/yungbote/chatmemory-backend/internal/platform/llm"
	"github.com/yungbote/chatmemory-backend/internal/platform/logger"
)

const (
	providerName = "anthropic"
	DefaultModel = "claude-3-5-haiku-latest"
)

type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int64
	Temperature float64
	Timeout     time.Duration
	MaxRetries  int
}

func ConfigFromEnv() Config {
	cfg := Config{
		APIKey:     envutil.String("ANTHROPIC_API_KEY", ""),
		BaseURL:    envutil.String("ANTHROPIC_BASE_URL", ""),
		Model:      envutil.String("ANTHROPIC_MODEL", DefaultModel),
		MaxTokens:  int64(envutil.Int("ANTHROPIC_MAX_TOKENS", 1024)),
		Timeout:    envutil.Seconds("ANTHROPIC_TIMEOUT_SECONDS", 60*time.Second),
		MaxRetries: envutil.Int("ANTHROPIC_MAX_RETRIES", 2),
	}
	cfg.Temperature = 0.3
	if v, err := strconv.ParseFloat(envutil.String("ANTHROPIC_TEMPERATURE", "0.3"), 64); err == nil {
		cfg.Temperature = v
	}
	return cfg
}

// maxRetryWait bounds the SDK's wait between attempts, which honours
// Retry-After up to a minute.
const maxRetryWait = time.Minute

// CallBudget is the longest one Complete call can take when every attempt
// runs to its timeout.
func (c Config) CallBudget() time.Duration {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	retries := c.MaxRetries
	if retries < 0 {
		retries = 0
	}
	return time.Duration(retries+1)*timeout + time.Duration(retries)*maxRetryWait
}

type client struct {
	log       *logger.Logger
	api       sdk.Client
	model     string
	maxTokens int64
	temp      float64
}

func NewClient(log *logger.Logger, cfg Config) (llm.Client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("missing ANTHROPIC_API_KEY")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 1024
	}
	opts := []option.RequestOption{
		option.WithAPIKey(strings.TrimSpace(cfg.APIKey)),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}
	return &client{
		log:       log.With("service", "LLMClient", "provider", providerName),
		api:       sdk.NewClient(opts...),
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		temp:      cfg.Temperature,
	}, nil
}

func (c *client) Complete(ctx context.Context, messages []llm.Message) (string, error) {
	system, turns := llm.SplitSystem(messages)
	params := sdk.MessageNewParams{
		Model:       sdk.Model(c.model),
		MaxTokens:   c.maxTokens,
		Messages:    toParams(turns),
		Temperature: sdk.Float(c.temp),
	}
	if len(params.Messages) == 0 {
		return "", fmt.Errorf("no user or assistant messages")
	}
	if system != "" {
		params.System = []sdk.TextBlockParam{{Text: system}}
	}

	ctx, span := observability.StartSpan(ctx, "llm.complete",
		attribute.String("llm.provider", providerName),
		attribute.String("llm.model", c.model),
		attribute.Int("llm.messages", len(messages)),
	)
	start := time.Now()
	resp, err := c.api.Messages.New(ctx, params)
	observability.EndSpan(span, err)
	if err != nil {
		observability.Current().ObserveLLMRequest(providerName, c.model, statusFromErr(err), time.Since(start), 0, 0)
		return "", fmt.Errorf("anthropic: %w", err)
	}
	observability.Current().ObserveLLMRequest(providerName, c.model, "200", time.Since(start), int(resp.Usage.InputTokens), int(resp.Usage.OutputTokens))

	var b strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	return strings.TrimSpace(b.String()), nil
}

// toParams folds consecutive same-role turns together and makes sure the
// transcript opens with a user turn, as the Messages API requires.
func toParams(turns []llm.Message) []sdk.MessageParam {
	type folded struct {
		role llm.Role
		text []string
	}
	var seq []folded
	for _, m := range turns {
		role := m.Role
		if role != llm.RoleAssistant {
			role = llm.RoleUser
		}
		text := strings.TrimSpace(m.Content)
		if text == "" {
			continue
		}
		if n := len(seq); n > 0 && seq[n-1].role == role {
			seq[n-1].text = append(seq[n-1].text, text)
			continue
		}
		seq = append(seq, folded{role: role, text: []string{text}})
	}
	if len(seq) > 0 && seq[0].role == llm.RoleAssistant {
		seq = append([]folded{{role: llm.RoleUser, text: []string{"(earlier conversation)"}}}, seq...)
	}
	out := make([]sdk.MessageParam, 0, len(seq))
	for _, f := range seq {
		block := sdk.NewTextBlock(strings.Join(f.text, "\n\n"))
		if f.role == llm.RoleAssistant {
			out = append(out, sdk.NewAssistantMessage(block))
		} else {
			out = append(out, sdk.NewUserMessage(block))
		}
	}
	return out
}

func statusFromErr(err error) string {
	var apiErr *sdk.Error
	if errors.As(err, &apiErr) {
		return strconv.Itoa(apiErr.StatusCode)
	}
	if errors.Is(err, context.Canceled) {
		return "canceled"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	return "error"
}
