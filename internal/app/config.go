package app

import (
	"strings"
	"time"

	redisclient "github.com/yungbote/chatmemory-backend/internal/clients/redis"
	"github.com/yungbote/chatmemory-backend/internal/clients/twilio"
	"github.com/yungbote/chatmemory-backend/internal/platform/envutil"
	"github.com/yungbote/chatmemory-backend/internal/platform/logger"
	"github.com/yungbote/chatmemory-backend/internal/services/memory"
	"github.com/yungbote/chatmemory-backend/internal/temporalx"
)

const (
	DispatchInline   = "inline"
	DispatchQueue    = "queue"
	DispatchTemporal = "temporal"
)

type Config struct {
	Port            string
	ServiceName     string
	Environment     string
	ShutdownTimeout time.Duration

	DBDriver string

	Policy memory.Policy

	CompactionDispatch   string
	CompactionWorkers    int
	CompactionQueueSize  int
	CompactionSweepSpec  string
	CompactionSweepBatch int

	LLMProvider       string
	AgentPersonasPath string

	JWTSecretKey          string
	CORSOrigins           string
	PublicBaseURL         string
	TwilioWebhookValidate bool
	MetricsAddr           string

	Twilio   twilio.Config
	Redis    redisclient.Config
	Temporal temporalx.Config
}

func LoadConfig(log *logger.Logger) Config {
	policy := memory.DefaultPolicy()
	policy.Threshold = envutil.GetEnvAsInt("MEMORY_COMPACTION_THRESHOLD", policy.Threshold, log)
	policy.Window = envutil.GetEnvAsInt("MEMORY_COMPACTION_WINDOW", policy.Window, log)
	policy.ReArmBacklog = envutil.GetEnvAsInt("MEMORY_REARM_BACKLOG", policy.ReArmBacklog, log)
	policy.HistoryLimit = envutil.GetEnvAsInt("MEMORY_HISTORY_LIMIT", policy.HistoryLimit, log)
	policy.BackoffBase = envutil.Seconds("COMPACTION_BACKOFF_BASE_SECONDS", policy.BackoffBase)
	policy.BackoffMax = envutil.Seconds("COMPACTION_BACKOFF_MAX_SECONDS", policy.BackoffMax)

	return Config{
		Port:            envutil.GetEnv("PORT", "8080", log),
		ServiceName:     envutil.String("OTEL_SERVICE_NAME", "chatmemory"),
		Environment:     envutil.String("ENVIRONMENT", "development"),
		ShutdownTimeout: envutil.Seconds("SHUTDOWN_TIMEOUT_SECONDS", 15*time.Second),

		DBDriver: envutil.GetEnv("DB_DRIVER", "postgres", log),

		Policy: policy.Normalize(),

		CompactionDispatch:   strings.ToLower(envutil.GetEnv("COMPACTION_DISPATCH", DispatchInline, log)),
		CompactionWorkers:    envutil.GetEnvAsInt("COMPACTION_WORKERS", 2, log),
		CompactionQueueSize:  envutil.GetEnvAsInt("COMPACTION_QUEUE_SIZE", 256, log),
		CompactionSweepSpec:  envutil.GetEnv("COMPACTION_SWEEP_SPEC", "@every 1m", log),
		CompactionSweepBatch: envutil.GetEnvAsInt("COMPACTION_SWEEP_BATCH", 50, log),

		LLMProvider:       strings.ToLower(envutil.GetEnv("LLM_PROVIDER", "groq", log)),
		AgentPersonasPath: envutil.String("AGENT_PERSONAS_PATH", ""),

		JWTSecretKey:          envutil.String("JWT_SECRET_KEY", ""),
		CORSOrigins:           envutil.String("CORS_ALLOWED_ORIGINS", ""),
		PublicBaseURL:         envutil.String("PUBLIC_BASE_URL", ""),
		TwilioWebhookValidate: envutil.Bool("TWILIO_WEBHOOK_VALIDATE", false),
		MetricsAddr:           envutil.String("METRICS_ADDR", ""),

		Twilio:   twilio.ConfigFromEnv(),
		Redis:    redisclient.ConfigFromEnv(),
		Temporal: temporalx.LoadConfig(),
	}
}

// SweepEnabled is false when COMPACTION_SWEEP_SPEC is "off".
func (c Config) SweepEnabled() bool {
	return strings.ToLower(strings.TrimSpace(c.CompactionSweepSpec)) != "off"
}
