package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/sirupsen/logrus"

	"github.com/spxlabs/command-core/internal/models"
)

// TelegramNotifier pushes trigger alerts to a Telegram chat.
type TelegramNotifier struct {
	bot    *bot.Bot
	chatID string
	logger *logrus.Logger
}

// NewTelegramNotifier builds a notifier from a bot token and target chat.
func NewTelegramNotifier(token, chatID string, logger *logrus.Logger) (*TelegramNotifier, error) {
	if token == "" || chatID == "" {
		return nil, fmt.Errorf("telegram notifier requires bot_token and chat_id")
	}
	b, err := bot.New(token)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	return &TelegramNotifier{bot: b, chatID: chatID, logger: logger}, nil
}

func formatTriggeredAlert(item models.TriggeredAlertHistoryItem) string {
	var sb strings.Builder
	arrow := "📈"
	if item.Direction == models.DirectionBearish {
		arrow = "📉"
	}
	fmt.Fprintf(&sb, "%s %s %s TRIGGERED\n", arrow, strings.ToUpper(string(item.Direction)), item.SetupType)
	fmt.Fprintf(&sb, "Entry: %.2f - %.2f\n", item.EntryLow, item.EntryHigh)
	fmt.Fprintf(&sb, "Stop: %.2f | T1: %.2f | T2: %.2f\n", item.Stop, item.Target1, item.Target2)
	fmt.Fprintf(&sb, "Confluence: %.1f | Probability: %.0f%%\n", item.ConfluenceScore, item.Probability)
	fmt.Fprintf(&sb, "Regime: %s | %s", item.Regime, item.TriggeredAt.Format("15:04:05 MST"))
	return sb.String()
}

// NotifyTriggered sends one trigger alert message.
func (n *TelegramNotifier) NotifyTriggered(ctx context.Context, item models.TriggeredAlertHistoryItem) error {
	_, err := n.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: n.chatID,
		Text:   formatTriggeredAlert(item),
	})
	if err != nil {
		return fmt.Errorf("send telegram alert: %w", err)
	}
	if n.logger != nil {
		n.logger.WithField("setup_id", item.SetupID).Debug("trigger alert sent")
	}
	return nil
}
