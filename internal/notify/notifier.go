// Package notify pushes session events to an external channel.
package notify

import (
	"fmt"

	tgbot "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// Notifier receives human-readable session notifications.
type Notifier interface {
	Send(msg string)
	Sendf(format string, args ...any)
}

// Telegram is a passive notifier: it only sends, it never reads commands.
type Telegram struct {
	bot    *tgbot.BotAPI
	chatID int64
	logger *zap.Logger
}

// NewTelegram connects the bot API with the given token.
func NewTelegram(token string, chatID int64, logger *zap.Logger) (*Telegram, error) {
	b, err := tgbot.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram init: %w", err)
	}
	return &Telegram{
		bot:    b,
		chatID: chatID,
		logger: logger.Named("telegram"),
	}, nil
}

func (t *Telegram) Send(msg string) {
	if t == nil || t.bot == nil || t.chatID == 0 {
		return
	}
	if _, err := t.bot.Send(tgbot.NewMessage(t.chatID, msg)); err != nil {
		t.logger.Warn("Failed to send telegram notification", zap.Error(err))
	}
}

func (t *Telegram) Sendf(format string, args ...any) { t.Send(fmt.Sprintf(format, args...)) }

// Log is the fallback notifier used when no telegram token is configured; it
// writes notifications to the ordinary log stream.
type Log struct {
	logger *zap.Logger
}

func NewLog(logger *zap.Logger) *Log {
	return &Log{logger: logger.Named("notify")}
}

func (l *Log) Send(msg string)                  { l.logger.Info(msg) }
func (l *Log) Sendf(format string, args ...any) { l.logger.Info(fmt.Sprintf(format, args...)) }
