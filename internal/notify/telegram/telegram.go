// Package telegram is the Telegram delivery backend for internal/notify,
// adapted from the teacher's bot/telegram.go: same tgbotapi.NewBotAPI
// construction from environment variables, same sendMarkdown pattern, same
// emoji-and-rule-line message formatting — but posting position lifecycle
// events instead of trade P&L, and with no inbound /command loop since this
// engine takes orders from the CLI and the command bus, not from chat.
package telegram

import (
	"fmt"
	"os"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"

	"github.com/discretionary-eng/discretionary-engine/internal/notify"
)

// Bot posts position lifecycle events to one fixed Telegram chat.
type Bot struct {
	api    *tgbotapi.BotAPI
	chatID int64
}

var _ notify.Notifier = (*Bot)(nil)

// New constructs a Bot from TELEGRAM_BOT_TOKEN/TELEGRAM_CHAT_ID. Returns
// notify.Noop{} (not an error) when the token is unset, since Telegram
// notifications are strictly optional (spec.md SPEC_FULL §4.8).
func New() (notify.Notifier, error) {
	token := os.Getenv("TELEGRAM_BOT_TOKEN")
	if token == "" {
		return notify.Noop{}, nil
	}

	chatIDStr := os.Getenv("TELEGRAM_CHAT_ID")
	if chatIDStr == "" {
		return nil, fmt.Errorf("TELEGRAM_BOT_TOKEN set but TELEGRAM_CHAT_ID missing")
	}
	chatID, err := strconv.ParseInt(chatIDStr, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid TELEGRAM_CHAT_ID: %w", err)
	}

	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("while constructing telegram bot: %w", err)
	}

	log.Info().Str("username", api.Self.UserName).Msg("notify/telegram: bot ready")
	return &Bot{api: api, chatID: chatID}, nil
}

func (b *Bot) PositionOpened(positionID, symbol, side string) {
	b.sendMarkdown(fmt.Sprintf("✅ *POSITION OPENED*\n\n📊 %s — %s\n🆔 `%s`", symbol, side, positionID))
}

func (b *Bot) PhaseTransition(positionID, phase, detail string) {
	b.sendMarkdown(fmt.Sprintf("🔄 *PHASE TRANSITION*\n\n📌 %s\n🆔 `%s`\n📝 %s", phase, positionID, detail))
}

func (b *Bot) PositionClosed(positionID, detail string) {
	b.sendMarkdown(fmt.Sprintf("📊 *POSITION CLOSED*\n\n🆔 `%s`\n📝 %s", positionID, detail))
}

func (b *Bot) FatalError(err error) {
	b.sendMarkdown(fmt.Sprintf("⚠️ *FATAL ERROR*\n\n`%s`", err.Error()))
}

func (b *Bot) sendMarkdown(text string) {
	msg := tgbotapi.NewMessage(b.chatID, text)
	msg.ParseMode = "Markdown"
	if _, err := b.api.Send(msg); err != nil {
		log.Error().Err(err).Msg("notify/telegram: send failed")
	}
}
