package app

import (
	"testing"
	"time"

	"github.com/yungbote/chatmemory-backend/internal/platform/logger"
	"github.com/yungbote/chatmemory-backend/internal/services/memory"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg := LoadConfig(logger.Nop())
	if cfg.Port != "8080" || cfg.DBDriver != "postgres" {
		t.Fatalf("defaults: port=%q driver=%q", cfg.Port, cfg.DBDriver)
	}
	if cfg.CompactionDispatch != DispatchInline || cfg.LLMProvider != "groq" {
		t.Fatalf("defaults: dispatch=%q provider=%q", cfg.CompactionDispatch, cfg.LLMProvider)
	}
	p := cfg.Policy
	if p.Threshold != 10 || p.Window != 5 || p.HistoryLimit != 10 {
		t.Fatalf("policy: %+v", p)
	}
	if !cfg.SweepEnabled() {
		t.Fatalf("sweeper should default on")
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("MEMORY_COMPACTION_THRESHOLD", "20")
	t.Setenv("MEMORY_COMPACTION_WINDOW", "8")
	t.Setenv("MEMORY_HISTORY_LIMIT", "6")
	t.Setenv("COMPACTION_BACKOFF_BASE_SECONDS", "5")
	t.Setenv("COMPACTION_DISPATCH", "Queue")
	t.Setenv("COMPACTION_SWEEP_SPEC", "off")
	t.Setenv("LLM_PROVIDER", "Anthropic")

	cfg := LoadConfig(logger.Nop())
	p := cfg.Policy
	if p.Threshold != 20 || p.Window != 8 || p.HistoryLimit != 6 || p.BackoffBase != 5*time.Second {
		t.Fatalf("policy: %+v", p)
	}
	if cfg.CompactionDispatch != DispatchQueue || cfg.LLMProvider != "anthropic" {
		t.Fatalf("overrides: dispatch=%q provider=%q", cfg.CompactionDispatch, cfg.LLMProvider)
	}
	if cfg.SweepEnabled() {
		t.Fatalf("sweeper should be off")
	}
}

func TestNewLLMClient(t *testing.T) {
	t.Setenv("GROQ_API_KEY", "gk")
	t.Setenv("OPENAI_API_KEY", "ok")
	t.Setenv("ANTHROPIC_API_KEY", "ak")
	for in, want := range map[string]string{
		"":          "groq",
		"groq":      "groq",
		"openai":    "openai",
		"anthropic": "anthropic",
	} {
		c, provider, err := newLLMClient(logger.Nop(), in)
		if err != nil {
			t.Fatalf("newLLMClient(%q): %v", in, err)
		}
		if c == nil || provider != want {
			t.Fatalf("newLLMClient(%q): provider=%q", in, provider)
		}
	}
	if _, _, err := newLLMClient(logger.Nop(), "palm"); err == nil {
		t.Fatalf("expected error for unknown provider")
	}
}

func TestNewLLMClientRequiresKey(t *testing.T) {
	t.Setenv("GROQ_API_KEY", "")
	if _, _, err := newLLMClient(logger.Nop(), "groq"); err == nil {
		t.Fatalf("expected missing key error")
	}
}

func TestCompactionLockOutlivesLLMCall(t *testing.T) {
	for _, provider := range []string{"groq", "openai", "anthropic"} {
		budget := llmCallBudget(provider)
		if budget < time.Minute {
			t.Fatalf("%s budget too small: %s", provider, budget)
		}
		if ttl := memory.LockTTLFor(budget); ttl <= budget {
			t.Fatalf("%s: lock ttl %s does not outlive call budget %s", provider, ttl, budget)
		}
	}
	t.Setenv("ANTHROPIC_TIMEOUT_SECONDS", "600")
	t.Setenv("ANTHROPIC_MAX_RETRIES", "3")
	budget := llmCallBudget("anthropic")
	if ttl := memory.LockTTLFor(budget); ttl <= budget || ttl <= memory.DefaultCompactionLockTTL {
		t.Fatalf("slow provider: ttl=%s budget=%s", ttl, budget)
	}
}
