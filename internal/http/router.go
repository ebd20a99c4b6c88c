package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/chatmemory-backend/internal/http/handlers"
	httpMW "github.com/yungbote/chatmemory-backend/internal/http/middleware"
	"github.com/yungbote/chatmemory-backend/internal/observability"
	"github.com/yungbote/chatmemory-backend/internal/platform/logger"
)

type RouterConfig struct {
	Log         *logger.Logger
	ServiceName string
	CORSOrigins string
	Metrics     *observability.Metrics

	// MetricsRoute serves the registry at /metrics on this router.
	MetricsRoute bool

	IdentityMiddleware *httpMW.IdentityMiddleware

	HealthHandler   *httpH.HealthHandler
	ChatHandler     *httpH.ChatHandler
	WhatsAppHandler *httpH.WhatsAppHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.ServiceName != "" {
		r.Use(otelgin.Middleware(cfg.ServiceName))
	}
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.Metrics(cfg.Metrics))
	r.Use(httpMW.CORS(cfg.CORSOrigins))

	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
	}
	if cfg.Metrics != nil && cfg.MetricsRoute {
		r.GET("/metrics", gin.WrapF(cfg.Metrics.WriteHTTP))
	}

	api := r.Group("/api")

	// Twilio signs its requests instead of sending bearer tokens.
	if cfg.WhatsAppHandler != nil {
		api.POST("/whatsapp/webhook", cfg.WhatsAppHandler.Webhook)
	}

	chat := api.Group("/chat")
	{
		if cfg.IdentityMiddleware != nil {
			chat.Use(cfg.IdentityMiddleware.OptionalIdentity())
		}
		if cfg.ChatHandler != nil {
			chat.POST("/message", cfg.ChatHandler.SendMessage)
			chat.GET("/context", cfg.ChatHandler.GetContext)
		}
	}

	return r
}
