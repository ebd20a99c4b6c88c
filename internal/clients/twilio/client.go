// Package twilio sends WhatsApp replies through the Twilio Messages API and
// validates inbound webhook signatures.
package twilio

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/yungbote/chatmemory-backend/internal/pkg/httpx"
	"github.com/yungbote/chatmemory-backend/internal/platform/ctxutil"
	"github.com/yungbote/chatmemory-backend/internal/platform/envutil"
	"github.com/yungbote/chatmemory-backend/internal/platform/logger"
)

const whatsappPrefix = "whatsapp:"

type Client interface {
	SendMessage(ctx context.Context, req SendMessageRequest) (*Message, error)
	// SendWhatsApp sends body (and optional media) to a WhatsApp number.
	SendWhatsApp(ctx context.Context, to, body string, mediaURLs ...string) (*Message, error)
}

type Config struct {
	AccountSID   string
	AuthToken    string
	APIKey       string
	APIKeySecret string
	BaseURL      string
	// WhatsAppFrom is the sender number, with or without the whatsapp: prefix.
	WhatsAppFrom      string
	StatusCallbackURL string
	Timeout           time.Duration
	MaxRetries        int
}

func ConfigFromEnv() Config {
	return Config{
		AccountSID:        envutil.String("TWILIO_ACCOUNT_SID", ""),
		AuthToken:         envutil.String("TWILIO_AUTH_TOKEN", ""),
		APIKey:            envutil.String("TWILIO_API_KEY", ""),
		APIKeySecret:      envutil.String("TWILIO_API_KEY_SECRET", ""),
		BaseURL:           envutil.String("TWILIO_BASE_URL", ""),
		WhatsAppFrom:      envutil.String("TWILIO_WHATSAPP_FROM", ""),
		StatusCallbackURL: envutil.String("TWILIO_STATUS_CALLBACK_URL", ""),
		Timeout:           envutil.Seconds("TWILIO_TIMEOUT_SECONDS", 30*time.Second),
		MaxRetries:        envutil.Int("TWILIO_MAX_RETRIES", 3),
	}
}

func New(log *logger.Logger, cfg Config) (Client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	cfg.AccountSID = strings.TrimSpace(cfg.AccountSID)
	if cfg.AccountSID == "" {
		return nil, fmt.Errorf("missing TWILIO_ACCOUNT_SID")
	}
	if cfg.APIKey != "" && cfg.APIKeySecret == "" {
		return nil, fmt.Errorf("missing TWILIO_API_KEY_SECRET (required when TWILIO_API_KEY is set)")
	}
	if cfg.APIKey == "" && cfg.AuthToken == "" {
		return nil, fmt.Errorf("missing TWILIO_AUTH_TOKEN (or provide TWILIO_API_KEY + TWILIO_API_KEY_SECRET)")
	}
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = "https://api.twilio.com/2010-04-01"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	return &client{
		log:        log.With("client", "TwilioClient"),
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		retryBase:  time.Second,
	}, nil
}

type client struct {
	log        *logger.Logger
	cfg        Config
	httpClient *http.Client
	retryBase  time.Duration
}

type SendMessageRequest struct {
	To                string
	From              string
	Body              string
	MediaURLs         []string
	StatusCallbackURL string
}

type Message struct {
	SID          string  `json:"sid,omitempty"`
	To           string  `json:"to,omitempty"`
	From         string  `json:"from,omitempty"`
	Body         string  `json:"body,omitempty"`
	Status       string  `json:"status,omitempty"`
	ErrorCode    *int    `json:"error_code,omitempty"`
	ErrorMessage *string `json:"error_message,omitempty"`
	DateCreated  string  `json:"date_created,omitempty"`
}

// WhatsAppAddress adds the whatsapp: prefix when missing.
func WhatsAppAddress(number string) string {
	number = strings.TrimSpace(number)
	if number == "" || strings.HasPrefix(number, whatsappPrefix) {
		return number
	}
	return whatsappPrefix + number
}

func (c *client) SendWhatsApp(ctx context.Context, to, body string, mediaURLs ...string) (*Message, error) {
	return c.SendMessage(ctx, SendMessageRequest{
		To:        WhatsAppAddress(to),
		From:      WhatsAppAddress(c.cfg.WhatsAppFrom),
		Body:      body,
		MediaURLs: mediaURLs,
	})
}

func (c *client) SendMessage(ctx context.Context, req SendMessageRequest) (*Message, error) {
	req.To = strings.TrimSpace(req.To)
	req.From = strings.TrimSpace(req.From)
	req.Body = strings.TrimSpace(req.Body)
	if req.To == "" {
		return nil, fmt.Errorf("twilio: To required")
	}
	if req.From == "" {
		return nil, fmt.Errorf("twilio: From required")
	}
	if req.StatusCallbackURL == "" {
		req.StatusCallbackURL = c.cfg.StatusCallbackURL
	}

	form := url.Values{}
	form.Set("To", req.To)
	form.Set("From", req.From)
	if req.Body != "" {
		form.Set("Body", req.Body)
	}
	for _, mu := range req.MediaURLs {
		if mu = strings.TrimSpace(mu); mu != "" {
			form.Add("MediaUrl", mu)
		}
	}
	if form.Get("Body") == "" && form.Get("MediaUrl") == "" {
		return nil, fmt.Errorf("twilio: content required (Body or MediaURLs)")
	}
	if req.StatusCallbackURL != "" {
		form.Set("StatusCallback", req.StatusCallbackURL)
	}

	endpoint := fmt.Sprintf("%s/Accounts/%s/Messages.json", c.cfg.BaseURL, c.cfg.AccountSID)
	return doForm[Message](ctx, c, http.MethodPost, endpoint, form)
}

type apiError struct {
	Code     int    `json:"code"`
	Message  string `json:"message"`
	MoreInfo string `json:"more_info"`
	Status   int    `json:"status"`
}

type HTTPError struct {
	StatusCode int
	Body       string
	APIError   *apiError
}

func (e *HTTPError) Error() string {
	if e == nil {
		return "twilio: <nil error>"
	}
	if e.APIError != nil && strings.TrimSpace(e.APIError.Message) != "" {
		if e.APIError.Code != 0 {
			return fmt.Sprintf("twilio http %d: %s (code=%d)", e.StatusCode, e.APIError.Message, e.APIError.Code)
		}
		return fmt.Sprintf("twilio http %d: %s", e.StatusCode, e.APIError.Message)
	}
	msg := strings.TrimSpace(e.Body)
	if msg == "" {
		msg = "<empty body>"
	}
	if len(msg) > 2000 {
		msg = msg[:2000] + "..."
	}
	return fmt.Sprintf("twilio http %d: %s", e.StatusCode, msg)
}

func (e *HTTPError) HTTPStatusCode() int {
	if e == nil {
		return 0
	}
	return e.StatusCode
}

func (c *client) basicAuth() (user, pass string) {
	if c.cfg.APIKey != "" {
		return c.cfg.APIKey, c.cfg.APIKeySecret
	}
	return c.cfg.AccountSID, c.cfg.AuthToken
}

func doForm[T any](ctx context.Context, c *client, method, urlStr string, form url.Values) (*T, error) {
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		out, resp, err := doFormOnce[T](ctx, c, method, urlStr, form)
		if err == nil {
			return out, nil
		}
		if !httpx.IsRetryableError(err) || attempt == c.cfg.MaxRetries {
			return nil, err
		}
		sleepFor := httpx.RetryAfterDuration(resp, httpx.Backoff(c.retryBase, 10*time.Second, attempt+1), 10*time.Second)
		sleepFor = httpx.JitterSleep(sleepFor)
		c.log.Warn("Twilio request retrying",
			"attempt", attempt+1,
			"max_retries", c.cfg.MaxRetries,
			"sleep", sleepFor.String(),
			"error", err.Error(),
		)
		if err := httpx.Sleep(ctx, sleepFor); err != nil {
			return nil, err
		}
	}
	return nil, fmt.Errorf("unreachable retry loop")
}

func doFormOnce[T any](ctx context.Context, c *client, method, urlStr string, form url.Values) (*T, *http.Response, error) {
	req, err := http.NewRequestWithContext(ctxutil.Default(ctx), method, urlStr, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	u, p := c.basicAuth()
	req.SetBasicAuth(u, p)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, resp, err
	}
	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return nil, resp, readErr
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var ae apiError
		if json.Unmarshal(raw, &ae) == nil && strings.TrimSpace(ae.Message) != "" {
			return nil, resp, &HTTPError{StatusCode: resp.StatusCode, Body: string(raw), APIError: &ae}
		}
		return nil, resp, &HTTPError{StatusCode: resp.StatusCode, Body: string(raw)}
	}

	var out T
	if len(raw) == 0 {
		return &out, resp, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, resp, fmt.Errorf("twilio decode error: %w", err)
	}
	return &out, resp, nil
}
