package app

import (
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	chathttp "github.com/yungbote/chatmemory-backend/internal/http"
	httpH "github.com/yungbote/chatmemory-backend/internal/http/handlers"
	httpMW "github.com/yungbote/chatmemory-backend/internal/http/middleware"
	"github.com/yungbote/chatmemory-backend/internal/observability"
	"github.com/yungbote/chatmemory-backend/internal/platform/logger"
)

type Handlers struct {
	Health   *httpH.HealthHandler
	Chat     *httpH.ChatHandler
	WhatsApp *httpH.WhatsAppHandler
}

type Middleware struct {
	Identity *httpMW.IdentityMiddleware
}

func wireHandlers(log *logger.Logger, db *gorm.DB, cfg Config, svc Services, c Clients) Handlers {
	log.Info("Wiring handlers...")
	var pinger httpH.Pinger
	if sqlDB, err := db.DB(); err == nil {
		pinger = sqlDB
	}
	if cfg.TwilioWebhookValidate && cfg.PublicBaseURL == "" {
		log.Warn("TWILIO_WEBHOOK_VALIDATE set without PUBLIC_BASE_URL; every webhook will be rejected")
	}
	return Handlers{
		Health: httpH.NewHealthHandler(pinger),
		Chat:   httpH.NewChatHandler(svc.Chat),
		WhatsApp: httpH.NewWhatsAppHandler(log, svc.Chat, c.Twilio, httpH.WhatsAppConfig{
			AuthToken:         cfg.Twilio.AuthToken,
			PublicBaseURL:     cfg.PublicBaseURL,
			ValidateSignature: cfg.TwilioWebhookValidate,
		}),
	}
}

func wireMiddleware(log *logger.Logger, cfg Config) Middleware {
	if cfg.JWTSecretKey == "" {
		log.Info("JWT_SECRET_KEY not set; web chat accepts anonymous identities only")
	}
	return Middleware{Identity: httpMW.NewIdentityMiddleware(log, cfg.JWTSecretKey)}
}

func wireRouter(log *logger.Logger, cfg Config, h Handlers, mw Middleware, metrics *observability.Metrics) *gin.Engine {
	return chathttp.NewRouter(chathttp.RouterConfig{
		Log:                log,
		ServiceName:        cfg.ServiceName,
		CORSOrigins:        cfg.CORSOrigins,
		Metrics:            metrics,
		MetricsRoute:       cfg.MetricsAddr == "",
		IdentityMiddleware: mw.Identity,
		HealthHandler:      h.Health,
		ChatHandler:        h.Chat,
		WhatsAppHandler:    h.WhatsApp,
	})
}
