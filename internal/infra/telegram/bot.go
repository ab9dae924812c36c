// Package telegram is the operator surface: a command bot that
// starts/pauses the trading loop and a best-effort notifier used for
// trade confirmations, warnings and crash alerts.
package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"dipbot/internal/domain"
	"dipbot/internal/infra"
	"dipbot/internal/infra/storage"
	"dipbot/internal/trader"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/shopspring/decimal"
)

const updateTimeoutSec = 30

// Bot serves operator commands and implements domain.Notifier.
// With an empty token the bot is disabled: commands are unavailable
// and Notify only logs.
type Bot struct {
	api      *tgbotapi.BotAPI
	chatID   int64
	trader   *trader.Trader
	journal  domain.TradeJournal
	store    *storage.Storage
	shutdown func()
	log      *slog.Logger
}

// NewBot connects to the Telegram API. shutdown terminates the whole
// process (wired to the root context cancel).
func NewBot(token string, chatID int64, t *trader.Trader, journal domain.TradeJournal, store *storage.Storage, shutdown func()) (*Bot, error) {
	b := &Bot{
		chatID:   chatID,
		trader:   t,
		journal:  journal,
		store:    store,
		shutdown: shutdown,
		log:      slog.Default().With("module", "telegram"),
	}
	if token == "" {
		b.log.Warn("telegram token empty: operator bot disabled")
		return b, nil
	}

	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram connect failed: %w", err)
	}
	api.Debug = false
	b.api = api
	b.log.Info("✅ Telegram connected", slog.String("username", api.Self.UserName))
	return b, nil
}

// Notify sends one best-effort message. Failures are logged locally
// and never retried or escalated.
func (b *Bot) Notify(text string) {
	if b.api == nil || b.chatID == 0 {
		b.log.Info("notification (telegram disabled)", slog.String("text", text))
		return
	}
	if _, err := b.api.Send(tgbotapi.NewMessage(b.chatID, text)); err != nil {
		b.log.Error("failed to send notification", slog.Any("error", err))
	}
}

// Run polls for operator commands until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) error {
	if b.api == nil {
		return nil
	}

	u := tgbotapi.NewUpdate(0)
	u.Timeout = updateTimeoutSec
	updates := b.api.GetUpdatesChan(u)
	defer b.api.StopReceivingUpdates()

	for {
		select {
		case <-ctx.Done():
			return nil
		case up := <-updates:
			if up.Message == nil {
				continue
			}
			if b.chatID != 0 && up.Message.Chat.ID != b.chatID {
				b.log.Warn("ignoring command from unknown chat", slog.Int64("chat_id", up.Message.Chat.ID))
				continue
			}
			if err := b.handleUpdate(up.Message); err != nil {
				return err
			}
		}
	}
}

// handleUpdate dispatches one command and converts a handler panic
// into an error, so Run's caller can send the final crash alert
// instead of the process dying silently.
func (b *Bot) handleUpdate(msg *tgbotapi.Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("command handler panic", slog.String("command", msg.Command()), slog.Any("panic", r))
			err = fmt.Errorf("command /%s panicked: %v", msg.Command(), r)
		}
	}()
	b.handleCommand(msg)
	return nil
}

func (b *Bot) handleCommand(msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	switch msg.Command() {
	case "start":
		if b.trader.Start() {
			b.reply(chatID, "✅ Trading bot started.")
		} else {
			b.reply(chatID, "Bot is already running.")
		}
	case "pause":
		b.trader.Pause()
		b.reply(chatID, "⏸ Trading bot paused.")
	case "resume":
		if b.trader.Resume() {
			b.reply(chatID, "▶️ Trading bot resumed.")
		} else {
			b.reply(chatID, "Bot is already running.")
		}
	case "status":
		b.reply(chatID, formatStatus(b.trader.Status()))
	case "summary":
		b.replySummary(chatID)
	case "tax":
		b.handleTax(chatID, msg.CommandArguments())
	case "chart":
		b.replyChart(chatID, strings.TrimSpace(msg.CommandArguments()))
	case "shutdown":
		b.reply(chatID, "🛑 Shutting down.")
		b.shutdown()
	case "help":
		b.reply(chatID, "Commands: /start /pause /resume /status /summary /tax <amount> <reason> /chart <symbol> /shutdown")
	default:
		b.reply(chatID, "Unknown command. Try /help")
	}
}

func (b *Bot) replySummary(chatID int64) {
	sum, err := b.journal.Summarize(time.Now())
	if err != nil {
		b.reply(chatID, fmt.Sprintf("⚠️ Summary failed: %v", err))
		return
	}
	b.reply(chatID, fmt.Sprintf("📊 Today so far: %d trades, net %s", sum.TradeCount, sum.NetQuoteDelta.StringFixed(2)))
}

func (b *Bot) handleTax(chatID int64, args string) {
	parts := strings.Fields(args)
	if len(parts) < 2 {
		b.reply(chatID, "⚠️ Usage: /tax <amount> <reason>")
		return
	}
	amount, err := decimal.NewFromString(parts[0])
	if err != nil {
		b.reply(chatID, fmt.Sprintf("⚠️ Bad amount %q", parts[0]))
		return
	}
	reason := strings.Join(parts[1:], " ")
	if err := b.store.SaveTaxEvent(amount, reason); err != nil {
		b.reply(chatID, fmt.Sprintf("⚠️ Failed to log tax event: %v", err))
		return
	}
	b.reply(chatID, fmt.Sprintf("🧾 Logged tax event: $%s - %s", amount.String(), reason))
}

func (b *Bot) replyChart(chatID int64, symbol string) {
	if symbol == "" {
		b.reply(chatID, "⚠️ Usage: /chart <symbol>")
		return
	}
	prices := b.trader.PriceHistory(symbol)
	png, err := infra.RenderPriceChart(prices)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("⚠️ No chart for %s yet: %v", symbol, err))
		return
	}
	photo := tgbotapi.NewPhoto(chatID, tgbotapi.FileBytes{Name: symbol + ".png", Bytes: png})
	photo.Caption = fmt.Sprintf("%s (last %d polls)", symbol, len(prices))
	if _, err := b.api.Send(photo); err != nil {
		b.log.Error("failed to send chart", slog.Any("error", err))
	}
}

func (b *Bot) reply(chatID int64, text string) {
	if _, err := b.api.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		b.log.Error("failed to send reply", slog.Any("error", err))
	}
}

func formatStatus(st trader.Status) string {
	var sb strings.Builder
	switch {
	case st.Running:
		sb.WriteString("📊 Status: running")
	case st.PausedByBreaker:
		sb.WriteString("📊 Status: paused by drawdown breaker (/resume to continue)")
	default:
		sb.WriteString("📊 Status: idle")
	}
	if st.Baseline.IsPositive() {
		fmt.Fprintf(&sb, "\nBaseline: %s", st.Baseline.StringFixed(2))
	}
	for _, p := range st.Positions {
		if p.State == domain.StateHolding {
			fmt.Fprintf(&sb, "\n%s: HOLDING since %s ago, entry %s",
				p.Symbol, p.HeldFor.Round(time.Second), p.EntryPrice.String())
		} else {
			fmt.Fprintf(&sb, "\n%s: FLAT, reference %s", p.Symbol, p.ReferencePrice.String())
		}
	}
	if len(st.Positions) == 0 {
		sb.WriteString("\nNo prices observed yet.")
	}
	return sb.String()
}
