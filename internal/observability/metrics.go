package observability

import (
	"context"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/yungbote/chatmemory-backend/internal/platform/envutil"
	"github.com/yungbote/chatmemory-backend/internal/platform/logger"
)

type Metrics struct {
	apiRequests *CounterVec
	apiLatency  *HistogramVec
	apiInflight *Gauge

	inbound *CounterVec

	llmRequests *CounterVec
	llmLatency  *HistogramVec
	llmTokens   *CounterVec

	compactionRuns     *CounterVec
	compactionLatency  *HistogramVec
	compactionDispatch *CounterVec

	aggregateOps       *CounterVec
	aggregateLatency   *HistogramVec
	aggregateConflicts *CounterVec
	aggregateRetries   *CounterVec

	dbStats   *GaugeVec
	redisUp   *Gauge
	redisPing *Gauge
}

var (
	initOnce sync.Once
	instance *Metrics
)

func Enabled() bool {
	return envutil.Bool("METRICS_ENABLED", false)
}

// Current returns the process registry, or nil when metrics are disabled.
// Every Metrics method is nil-safe.
func Current() *Metrics {
	return instance
}

func Init(log *logger.Logger) *Metrics {
	if !Enabled() {
		return nil
	}
	initOnce.Do(func() {
		instance = New()
		if log != nil {
			log.Info("metrics registry initialized")
		}
	})
	return instance
}

// New builds an unregistered registry. Tests use it to observe one component.
func New() *Metrics {
	latency := []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30}
	return &Metrics{
		apiRequests: NewCounterVec("chatmem_api_requests_total", "API requests by method/route/status.", []string{"method", "route", "status"}),
		apiLatency:  NewHistogramVec("chatmem_api_request_duration_seconds", "API request latency by method/route/status.", []string{"method", "route", "status"}, latency),
		apiInflight: NewGauge("chatmem_api_inflight_requests", "In-flight API requests."),

		inbound: NewCounterVec("chatmem_inbound_messages_total", "Inbound chat messages by channel/outcome.", []string{"channel", "outcome"}),

		llmRequests: NewCounterVec("chatmem_llm_requests_total", "LLM requests by provider/model/status.", []string{"provider", "model", "status"}),
		llmLatency:  NewHistogramVec("chatmem_llm_request_duration_seconds", "LLM request latency by provider/model.", []string{"provider", "model"}, latency),
		llmTokens:   NewCounterVec("chatmem_llm_tokens_total", "LLM tokens by model/kind.", []string{"model", "kind"}),

		compactionRuns:     NewCounterVec("chatmem_compaction_runs_total", "Summary compaction runs by source/status.", []string{"source", "status"}),
		compactionLatency:  NewHistogramVec("chatmem_compaction_duration_seconds", "Summary compaction latency by status.", []string{"status"}, latency),
		compactionDispatch: NewCounterVec("chatmem_compaction_dispatch_total", "Compaction dispatch decisions by mode/result.", []string{"mode", "result"}),

		aggregateOps:       NewCounterVec("chatmem_aggregate_operations_total", "Aggregate writes by operation/status.", []string{"operation", "status"}),
		aggregateLatency:   NewHistogramVec("chatmem_aggregate_operation_duration_seconds", "Aggregate write latency by operation.", []string{"operation"}, latency),
		aggregateConflicts: NewCounterVec("chatmem_aggregate_conflicts_total", "Aggregate write conflicts by operation.", []string{"operation"}),
		aggregateRetries:   NewCounterVec("chatmem_aggregate_retries_total", "Retryable aggregate failures by operation.", []string{"operation"}),

		dbStats:   NewGaugeVec("chatmem_db_pool", "Database pool stats.", []string{"stat"}),
		redisUp:   NewGauge("chatmem_redis_up", "Redis reachability (1 up, 0 down)."),
		redisPing: NewGauge("chatmem_redis_ping_seconds", "Redis ping latency in seconds."),
	}
}

func (m *Metrics) StartServer(ctx context.Context, log *logger.Logger, addr string) {
	if m == nil {
		return
	}
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           http.HandlerFunc(m.WriteHTTP),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = srv.Shutdown(shutdownCtx)
		cancel()
	}()
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			if log != nil {
				log.Error("metrics server failed", "error", err, "addr", addr)
			}
		}
	}()
}

func (m *Metrics) WriteHTTP(w http.ResponseWriter, r *http.Request) {
	if m == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	_ = m.WritePrometheus(w)
}

type promWriter interface {
	WritePrometheus(w io.Writer) error
}

func (m *Metrics) WritePrometheus(w io.Writer) error {
	if m == nil {
		return nil
	}
	for _, f := range []promWriter{
		m.apiRequests, m.apiLatency, m.apiInflight,
		m.inbound,
		m.llmRequests, m.llmLatency, m.llmTokens,
		m.compactionRuns, m.compactionLatency, m.compactionDispatch,
		m.aggregateOps, m.aggregateLatency, m.aggregateConflicts, m.aggregateRetries,
		m.dbStats, m.redisUp, m.redisPing,
	} {
		if err := f.WritePrometheus(w); err != nil {
			return err
		}
	}
	return nil
}

func (m *Metrics) ObserveAPI(method, route, status string, dur time.Duration) {
	if m == nil {
		return
	}
	if method == "" {
		method = "UNKNOWN"
	}
	if route == "" {
		route = "unknown"
	}
	if status == "" {
		status = "0"
	}
	m.apiRequests.Inc(method, route, status)
	m.apiLatency.Observe(dur.Seconds(), method, route, status)
}

func (m *Metrics) ApiInflightInc() {
	if m == nil {
		return
	}
	m.apiInflight.Inc()
}

func (m *Metrics) ApiInflightDec() {
	if m == nil {
		return
	}
	m.apiInflight.Dec()
}

func (m *Metrics) IncInbound(channel, outcome string) {
	if m == nil {
		return
	}
	m.inbound.Inc(channel, outcome)
}

func (m *Metrics) ObserveLLMRequest(provider, model, status string, dur time.Duration, inputTokens, outputTokens int) {
	if m == nil {
		return
	}
	provider = strings.TrimSpace(provider)
	model = strings.TrimSpace(model)
	m.llmRequests.Inc(provider, model, status)
	if dur > 0 {
		m.llmLatency.Observe(dur.Seconds(), provider, model)
	}
	if inputTokens > 0 {
		m.llmTokens.Add(float64(inputTokens), model, "input")
	}
	if outputTokens > 0 {
		m.llmTokens.Add(float64(outputTokens), model, "output")
	}
}

func (m *Metrics) ObserveCompaction(source, status string, dur time.Duration) {
	if m == nil {
		return
	}
	m.compactionRuns.Inc(source, status)
	m.compactionLatency.Observe(dur.Seconds(), status)
}

// CompactionRuns reports the run counter for one source/status pair.
func (m *Metrics) CompactionRuns(source, status string) float64 {
	if m == nil {
		return 0
	}
	return m.compactionRuns.Value(source, status)
}

func (m *Metrics) IncCompactionDispatch(mode, result string) {
	if m == nil {
		return
	}
	m.compactionDispatch.Inc(mode, result)
}

func (m *Metrics) ObserveAggregateOperation(name, status string, dur time.Duration) {
	if m == nil {
		return
	}
	m.aggregateOps.Inc(name, status)
	m.aggregateLatency.Observe(dur.Seconds(), name)
}

func (m *Metrics) IncAggregateConflict(name string) {
	if m == nil {
		return
	}
	m.aggregateConflicts.Inc(name)
}

func (m *Metrics) IncAggregateRetry(name string) {
	if m == nil {
		return
	}
	m.aggregateRetries.Inc(name)
}

func (m *Metrics) StartDBCollector(ctx context.Context, log *logger.Logger, db *gorm.DB) {
	if m == nil || db == nil {
		return
	}
	sqlDB, err := db.DB()
	if err != nil {
		if log != nil {
			log.Warn("metrics: db handle unavailable", "error", err)
		}
		return
	}
	interval := envutil.Seconds("METRICS_SCRAPE_INTERVAL_SECONDS", 10*time.Second)
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				stats := sqlDB.Stats()
				m.dbStats.Set(float64(stats.OpenConnections), "open")
				m.dbStats.Set(float64(stats.InUse), "in_use")
				m.dbStats.Set(float64(stats.Idle), "idle")
				m.dbStats.Set(float64(stats.WaitCount), "wait_count")
				m.dbStats.Set(stats.WaitDuration.Seconds(), "wait_seconds")
			}
		}
	}()
}

func (m *Metrics) StartRedisCollector(ctx context.Context, log *logger.Logger, rdb redis.UniversalClient) {
	if m == nil || rdb == nil {
		return
	}
	interval := envutil.Seconds("METRICS_SCRAPE_INTERVAL_SECONDS", 10*time.Second)
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				start := time.Now()
				if err := rdb.Ping(ctx).Err(); err != nil {
					m.redisUp.Set(0)
					if log != nil {
						log.Warn("metrics: redis ping failed", "error", err)
					}
					continue
				}
				m.redisUp.Set(1)
				m.redisPing.Set(time.Since(start).Seconds())
			}
		}
	}()
}
