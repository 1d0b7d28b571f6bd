// Package telegram serves the assistant over a Telegram bot in private
// chats.
package telegram

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"github.com/dvloznov/bank-assistant/internal/session"
)

const helpText = "Hi! I am your banking assistant.\n\n" +
	"Ask me about your balance, cards, transactions, loans or account details.\n\n" +
	"Commands:\n/reset - start a new conversation\n/help - show this message"

const unknownUserText = "Sorry, this Telegram account is not linked to a bank account."

// Sender delivers messages to Telegram. *tgbotapi.BotAPI implements it.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Responder answers one query within a session.
type Responder interface {
	Respond(ctx context.Context, query, userID string, sess *session.Session) string
}

// Bot routes Telegram updates to the assistant. Each chat gets its own
// session.
type Bot struct {
	api       Sender
	assistant Responder
	sessions  *session.Manager
	// users maps Telegram user ids to ledger user ids. When empty every
	// user is served with the default account.
	users map[int64]string
	log   zerolog.Logger
}

// New creates a Bot.
func New(api Sender, assistant Responder, sessions *session.Manager, users map[int64]string, log zerolog.Logger) *Bot {
	return &Bot{api: api, assistant: assistant, sessions: sessions, users: users, log: log}
}

// SessionID returns the session id used for a Telegram chat.
func SessionID(chatID int64) string {
	return fmt.Sprintf("tg-%d", chatID)
}

// Run handles updates until ctx is cancelled or the channel closes.
func (b *Bot) Run(ctx context.Context, updates <-chan tgbotapi.Update) {
	for {
		select {
		case <-ctx.Done():
			return
		case upd, ok := <-updates:
			if !ok {
				return
			}
			b.HandleUpdate(ctx, upd)
		}
	}
}

// HandleUpdate answers a single update. Non-message updates and group chats
// are ignored.
func (b *Bot) HandleUpdate(ctx context.Context, upd tgbotapi.Update) {
	msg := upd.Message
	if msg == nil || msg.Chat == nil || !msg.Chat.IsPrivate() || msg.From == nil {
		return
	}

	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return
	}

	chatID := msg.Chat.ID
	log := b.log.With().Int64("chat_id", chatID).Logger()

	if msg.IsCommand() {
		switch msg.Command() {
		case "start", "help":
			b.reply(log, chatID, helpText)
		case "reset":
			b.sessions.End(SessionID(chatID))
			b.reply(log, chatID, "Conversation cleared.")
		default:
			b.reply(log, chatID, "Unknown command. Try /help.")
		}
		return
	}

	userID, ok := b.resolveUser(msg.From.ID)
	if !ok {
		log.Warn().Int64("telegram_user", msg.From.ID).Msg("Message from unlinked Telegram user")
		b.reply(log, chatID, unknownUserText)
		return
	}

	var answer string
	b.sessions.WithSession(SessionID(chatID), func(s *session.Session) {
		answer = b.assistant.Respond(ctx, text, userID, s)
	})
	b.reply(log, chatID, answer)
}

func (b *Bot) resolveUser(tgID int64) (string, bool) {
	if len(b.users) == 0 {
		return "", true
	}
	id, ok := b.users[tgID]
	return id, ok
}

// reply sends plain text; responses may contain characters Markdown would
// misread.
func (b *Bot) reply(log zerolog.Logger, chatID int64, text string) {
	if _, err := b.api.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		log.Error().Err(err).Msg("Failed to send Telegram message")
	}
}
