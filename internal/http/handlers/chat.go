package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	types "github.com/yungbote/chatmemory-backend/internal/domain"
	domainagg "github.com/yungbote/chatmemory-backend/internal/domain/aggregates"
	"github.com/yungbote/chatmemory-backend/internal/http/response"
	"github.com/yungbote/chatmemory-backend/internal/platform/apierr"
	"github.com/yungbote/chatmemory-backend/internal/platform/ctxutil"
	"github.com/yungbote/chatmemory-backend/internal/services"
)

type ChatHandler struct {
	chat services.ChatService
}

func NewChatHandler(chat services.ChatService) *ChatHandler {
	return &ChatHandler{chat: chat}
}

type chatMessageRequest struct {
	Message  string `json:"message"`
	UserID   string `json:"user_id"`
	IDKind   string `json:"id_kind"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	ImageURL string `json:"image_url"`
	Channel  string `json:"channel"`
}

type chatMessageResponse struct {
	Response       string `json:"response"`
	Agent          string `json:"agent"`
	ConversationID string `json:"conversation_id"`
	UserID         string `json:"user_id"`
	Duplicate      bool   `json:"duplicate,omitempty"`
}

// POST /api/chat/message
func (h *ChatHandler) SendMessage(c *gin.Context) {
	var req chatMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	if strings.TrimSpace(req.Message) == "" && strings.TrimSpace(req.ImageURL) == "" {
		response.RespondError(c, http.StatusBadRequest, "validation", errors.New("message or image_url required"))
		return
	}
	id, name, email, err := requestIdentity(c, req.UserID, req.IDKind, req.Email)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	if req.Name != "" {
		name = req.Name
	}
	channel := strings.TrimSpace(req.Channel)
	if channel == "" {
		channel = types.ChannelWeb
	}

	res, err := h.chat.HandleInbound(c.Request.Context(), services.InboundMessage{
		Channel:        channel,
		Identifier:     id,
		DisplayName:    name,
		Email:          email,
		Text:           req.Message,
		MediaURL:       req.ImageURL,
		IdempotencyKey: c.GetHeader("Idempotency-Key"),
	})
	if err != nil {
		if errors.Is(err, services.ErrAgentUnavailable) {
			err = apierr.New(http.StatusBadGateway, "agent_unavailable", err)
		}
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, chatMessageResponse{
		Response:       res.Reply,
		Agent:          res.Agent,
		ConversationID: res.ConversationID.String(),
		UserID:         res.UserID.String(),
		Duplicate:      res.Duplicate,
	})
}

type historyItem struct {
	Seq       int64     `json:"seq"`
	Sender    string    `json:"sender"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// GET /api/chat/context?user_id=&kind=&channel=
func (h *ChatHandler) GetContext(c *gin.Context) {
	id, _, _, err := requestIdentity(c, c.Query("user_id"), c.Query("kind"), c.Query("email"))
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	channel := strings.TrimSpace(c.Query("channel"))
	if channel == "" {
		channel = types.ChannelWeb
	}
	mc, err := h.chat.Context(c.Request.Context(), id, channel)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	history := make([]historyItem, 0, len(mc.History))
	for _, m := range mc.History {
		history = append(history, historyItem{Seq: m.Seq, Sender: m.Sender, Content: m.Content, CreatedAt: m.CreatedAt})
	}
	response.RespondOK(c, gin.H{
		"conversation_id": mc.ConversationID.String(),
		"summary":         mc.Summary,
		"history":         history,
	})
}

// requestIdentity prefers the bearer token subject, then an explicit user id,
// then the email address.
func requestIdentity(c *gin.Context, userID, kind, email string) (types.Identifier, string, string, error) {
	const op = "http.ChatHandler.identity"
	if who := ctxutil.GetIdentityData(c.Request.Context()); who != nil && who.Subject != "" {
		if email == "" {
			email = who.Email
		}
		return types.OpaqueIdentifier(who.Subject), who.DisplayName, email, nil
	}
	if v := strings.TrimSpace(userID); v != "" {
		k, err := types.ParseKind(kind)
		if err != nil {
			return types.Identifier{}, "", "", domainagg.Validation(op, "%v", err)
		}
		return types.Identifier{Kind: k, Value: v}, "", email, nil
	}
	if v := strings.TrimSpace(email); v != "" {
		return types.EmailIdentifier(v), "", v, nil
	}
	return types.Identifier{}, "", "", domainagg.Validation(op, "user_id or email required")
}
