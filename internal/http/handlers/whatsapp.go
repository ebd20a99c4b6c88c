package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/chatmemory-backend/internal/clients/twilio"
	types "github.com/yungbote/chatmemory-backend/internal/domain"
	"github.com/yungbote/chatmemory-backend/internal/http/response"
	"github.com/yungbote/chatmemory-backend/internal/platform/ctxutil"
	"github.com/yungbote/chatmemory-backend/internal/platform/logger"
	"github.com/yungbote/chatmemory-backend/internal/services"
)

type WhatsAppConfig struct {
	// AuthToken and PublicBaseURL are needed only when ValidateSignature is set.
	AuthToken         string
	PublicBaseURL     string
	ValidateSignature bool
}

// WhatsAppHandler acknowledges Twilio webhooks immediately and does the
// memory and agent work in the background; Twilio times out after 15s.
type WhatsAppHandler struct {
	log    *logger.Logger
	chat   services.ChatService
	twilio twilio.Client
	cfg    WhatsAppConfig
	spawn  func(func())
}

func NewWhatsAppHandler(log *logger.Logger, chat services.ChatService, tw twilio.Client, cfg WhatsAppConfig) *WhatsAppHandler {
	return &WhatsAppHandler{
		log:    log.With("handler", "WhatsAppHandler"),
		chat:   chat,
		twilio: tw,
		cfg:    cfg,
		spawn:  func(fn func()) { go fn() },
	}
}

// POST /api/whatsapp/webhook
func (h *WhatsAppHandler) Webhook(c *gin.Context) {
	if err := c.Request.ParseForm(); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	form := c.Request.PostForm
	if h.cfg.ValidateSignature {
		full := strings.TrimRight(h.cfg.PublicBaseURL, "/") + c.Request.URL.RequestURI()
		if !twilio.ValidateSignature(h.cfg.AuthToken, full, form, c.GetHeader("X-Twilio-Signature")) {
			response.RespondError(c, http.StatusForbidden, "invalid_signature", errors.New("signature mismatch"))
			return
		}
	}
	from := strings.TrimSpace(form.Get("From"))
	if from == "" {
		response.RespondError(c, http.StatusBadRequest, "validation", errors.New("missing From"))
		return
	}
	in := services.InboundMessage{
		Channel:        types.ChannelWhatsApp,
		Identifier:     types.PhoneIdentifier(from),
		DisplayName:    form.Get("ProfileName"),
		Text:           form.Get("Body"),
		IdempotencyKey: form.Get("MessageSid"),
	}
	if n, _ := strconv.Atoi(form.Get("NumMedia")); n > 0 {
		in.MediaURL = form.Get("MediaUrl0")
	}
	if strings.TrimSpace(in.Text) == "" && in.MediaURL == "" {
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
		return
	}

	ctx := ctxutil.Detach(c.Request.Context())
	h.spawn(func() { h.process(ctx, from, in) })
	c.JSON(http.StatusOK, gin.H{"status": "received"})
}

func (h *WhatsAppHandler) process(ctx context.Context, from string, in services.InboundMessage) {
	log := h.log.With("message_sid", in.IdempotencyKey)
	res, err := h.chat.HandleInbound(ctx, in)
	if err != nil {
		log.Error("whatsapp inbound failed", "error", err)
		return
	}
	if res.Duplicate || strings.TrimSpace(res.Reply) == "" {
		log.Debug("no reply to send", "duplicate", res.Duplicate)
		return
	}
	if h.twilio == nil {
		log.Warn("twilio not configured, reply dropped", "conversation_id", res.ConversationID.String())
		return
	}
	if _, err := h.twilio.SendWhatsApp(ctx, from, res.Reply); err != nil {
		log.Error("whatsapp reply failed", "conversation_id", res.ConversationID.String(), "error", err)
	}
}
