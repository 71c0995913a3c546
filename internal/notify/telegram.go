package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

// Telegram sends messages through the Telegram Bot API. Channels map to chat ids.
type Telegram struct {
	baseURL    string
	token      string
	chats      map[string]string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewTelegram creates a Telegram sender.
func NewTelegram(baseURL, token string, chats map[string]string, logger *zap.Logger) *Telegram {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Telegram{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		chats:   chats,
		httpClient: &http.Client{
			Timeout:   10 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		logger: logger,
	}
}

// Send posts message to the chat mapped to channel, falling back to the
// default chat.
func (t *Telegram) Send(ctx context.Context, channel, message string) error {
	chatID, ok := t.chats[channel]
	if !ok {
		chatID, ok = t.chats[ChannelDefault]
	}
	if !ok {
		return fmt.Errorf("telegram %q: %w", channel, ErrUnknownChannel)
	}

	body, err := json.Marshal(map[string]any{
		"chat_id":                  chatID,
		"text":                     message,
		"disable_web_page_preview": true,
	})
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/bot"+t.token+"/sendMessage", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		// the request URL embeds the bot token
		return fmt.Errorf("telegram send to %q failed", channel)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	var out struct {
		OK          bool   `json:"ok"`
		Description string `json:"description"`
	}
	data, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(data, &out); err != nil || !out.OK {
		return fmt.Errorf("telegram send to %q: status %d: %s", channel, resp.StatusCode, out.Description)
	}
	t.logger.Debug("telegram message sent", zap.String("channel", channel))
	return nil
}
