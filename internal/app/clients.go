package app

import (
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
	temporalsdkclient "go.temporal.io/sdk/client"

	redisclient "github.com/yungbote/chatmemory-backend/internal/clients/redis"
	"github.com/yungbote/chatmemory-backend/internal/clients/twilio"
	"github.com/yungbote/chatmemory-backend/internal/platform/anthropic"
	"github.com/yungbote/chatmemory-backend/internal/platform/llm"
	"github.com/yungbote/chatmemory-backend/internal/platform/logger"
	"github.com/yungbote/chatmemory-backend/internal/platform/openai"
	"github.com/yungbote/chatmemory-backend/internal/temporalx"
)

type Clients struct {
	LLM         llm.Client
	LLMProvider string
	// LLMBudget is the worst-case duration of one LLM call, retries included.
	LLMBudget time.Duration

	// Optional: nil when the integration is not configured.
	Twilio   twilio.Client
	Redis    *goredis.Client
	Locker   *redisclient.Locker
	Temporal temporalsdkclient.Client
}

func wireClients(log *logger.Logger, cfg Config, needTemporal bool) (Clients, error) {
	log.Info("Wiring clients...")
	var out Clients

	client, provider, err := newLLMClient(log, cfg.LLMProvider)
	if err != nil {
		return out, err
	}
	out.LLM, out.LLMProvider = client, provider
	out.LLMBudget = llmCallBudget(provider)

	if strings.TrimSpace(cfg.Twilio.AccountSID) != "" {
		tw, err := twilio.New(log, cfg.Twilio)
		if err != nil {
			return out, fmt.Errorf("init twilio client: %w", err)
		}
		out.Twilio = tw
	} else {
		log.Warn("TWILIO_ACCOUNT_SID not set; WhatsApp replies are disabled")
	}

	if strings.TrimSpace(cfg.Redis.Addr) != "" {
		rdb, err := redisclient.NewClient(log, cfg.Redis)
		if err != nil {
			out.Close()
			return out, fmt.Errorf("init redis: %w", err)
		}
		out.Redis = rdb
		locker, err := redisclient.NewLocker(log, rdb, cfg.Redis.Prefix)
		if err != nil {
			out.Close()
			return out, fmt.Errorf("init redis locker: %w", err)
		}
		out.Locker = locker
	}

	if needTemporal {
		tc, err := temporalx.NewClient(log, cfg.Temporal)
		if err != nil {
			out.Close()
			return out, fmt.Errorf("init temporal client: %w", err)
		}
		if tc == nil {
			out.Close()
			return out, fmt.Errorf("TEMPORAL_ADDRESS is required for temporal compaction")
		}
		out.Temporal = tc
	}
	return out, nil
}

// newLLMClient picks the provider named by LLM_PROVIDER. Groq and OpenAI share
// the chat completions client.
func newLLMClient(log *logger.Logger, provider string) (llm.Client, string, error) {
	switch provider {
	case "anthropic", "claude":
		c, err := anthropic.NewClient(log, anthropic.ConfigFromEnv())
		if err != nil {
			return nil, "", fmt.Errorf("init anthropic client: %w", err)
		}
		return c, "anthropic", nil
	case "", "groq", "openai":
		cfg := openai.ConfigFromEnv(provider)
		c, err := openai.NewClient(log, cfg)
		if err != nil {
			return nil, "", fmt.Errorf("init %s client: %w", cfg.Provider, err)
		}
		return c, cfg.Provider, nil
	default:
		return nil, "", fmt.Errorf("unknown LLM_PROVIDER %q", provider)
	}
}

func llmCallBudget(provider string) time.Duration {
	if provider == "anthropic" {
		return anthropic.ConfigFromEnv().CallBudget()
	}
	return openai.ConfigFromEnv(provider).CallBudget()
}

func (c *Clients) Close() {
	if c == nil {
		return
	}
	if c.Temporal != nil {
		c.Temporal.Close()
	}
	if c.Redis != nil {
		_ = c.Redis.Close()
	}
}
