package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/patrickwarner/creativeloop/internal/config"
)

func TestWebhookURL(t *testing.T) {
	cfg := config.Config{CreatomateWebhookURL: "https://hooks.example.com/webhooks/creatomate"}
	assert.Equal(t, "https://hooks.example.com/webhooks/creatomate", webhookURL(cfg))

	cfg.WebhookToken = "abc"
	assert.Equal(t, "https://hooks.example.com/webhooks/creatomate?token=abc", webhookURL(cfg))

	cfg.CreatomateWebhookURL = "https://hooks.example.com/cb?src=cl"
	assert.Equal(t, "https://hooks.example.com/cb?src=cl&token=abc", webhookURL(cfg))

	assert.Empty(t, webhookURL(config.Config{WebhookToken: "abc"}))
}

func TestNewNotifier_Sinks(t *testing.T) {
	n := NewNotifier(config.Config{}, zap.NewNop(), nil)
	assert.Nil(t, n.Chat)
	assert.Nil(t, n.Board)

	n = NewNotifier(config.Config{
		TelegramBotToken: "bot",
		TelegramURL:      "https://api.telegram.org",
		TrelloKey:        "k",
		TrelloListID:     "list",
	}, zap.NewNop(), nil)
	assert.NotNil(t, n.Chat)
	assert.NotNil(t, n.Board)
}
