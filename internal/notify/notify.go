// Package notify delivers operator notifications to chat and task-board sinks.
package notify

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/patrickwarner/creativeloop/internal/observability"
)

// Channels the decision engine posts to.
const (
	ChannelPaused  = "paused"
	ChannelHooks   = "hooks"
	ChannelScaling = "scaling"
	ChannelGrowth  = "growth"
	// ChannelDefault receives messages for channels without their own chat.
	ChannelDefault = "default"
)

// ErrUnknownChannel is returned when a channel has no configured destination.
var ErrUnknownChannel = errors.New("no destination for channel")

// Sender posts a chat message to a named channel.
type Sender interface {
	Send(ctx context.Context, channel, message string) error
}

// CardCreator creates a task-board work item.
type CardCreator interface {
	CreateCard(ctx context.Context, name, description string) error
}

// Notifier fans notifications out to a chat sink and a task board. Either
// sink may be nil, in which case that kind of notification is dropped.
type Notifier struct {
	Chat    Sender
	Board   CardCreator
	Logger  *zap.Logger
	Metrics observability.MetricsRegistry
}

// New creates a Notifier.
func New(chat Sender, board CardCreator, logger *zap.Logger, metrics observability.MetricsRegistry) *Notifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = observability.NewNoOpRegistry()
	}
	return &Notifier{Chat: chat, Board: board, Logger: logger, Metrics: metrics}
}

// Send posts message to channel on the chat sink.
func (n *Notifier) Send(ctx context.Context, channel, message string) error {
	if n.Chat == nil {
		n.Logger.Debug("chat sink disabled, dropping message", zap.String("channel", channel))
		return nil
	}
	err := n.Chat.Send(ctx, channel, message)
	n.record("chat", err)
	return err
}

// CreateCard creates a card on the task board.
func (n *Notifier) CreateCard(ctx context.Context, name, description string) error {
	if n.Board == nil {
		n.Logger.Debug("task board disabled, dropping card", zap.String("name", name))
		return nil
	}
	err := n.Board.CreateCard(ctx, name, description)
	n.record("board", err)
	return err
}

func (n *Notifier) record(sink string, err error) {
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	n.Metrics.IncrementNotifications(sink, outcome)
}
