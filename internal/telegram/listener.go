package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mkaveh/tagnotify/internal/domain"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const (
	updateTimeout = 60 * time.Second
	sessionTTL    = 5 * time.Minute

	msgStart         = "سلام! من ربات اطلاع‌رسانی هستم. یکی از گزینه‌ها را انتخاب کن:"
	msgSearchPrompt  = "🔎 لطفاً کلیدواژهٔ جستجو را بفرست (جستجو فقط در عنوان‌ها انجام می‌شود):"
	msgNoResults     = "❌ موردی پیدا نشد."
	msgNoTags        = "هنوز هیچ هشتگی ثبت نشده است."
	msgTagMenu       = "📌 دسته‌های موجود (برای فعال/غیرفعال کردن کلیک کن):"
	msgOperationFail = "⚠️ عملیات ناموفق بود. دوباره تلاش کن."
)

// Listener runs the long-polling update loop: it resolves each update into
// a typed intent and dispatches it in its own goroutine, so one hung
// conversation never blocks the rest.
type Listener struct {
	bot      *tgbotapi.BotAPI
	service  *domain.Service
	gateway  *Gateway
	sessions *Sessions
	channel  int64
	logger   *slog.Logger
}

// NewListener creates a Listener watching the given channel.
func NewListener(bot *tgbotapi.BotAPI, service *domain.Service, gateway *Gateway, channelID int64, logger *slog.Logger) *Listener {
	return &Listener{
		bot:      bot,
		service:  service,
		gateway:  gateway,
		sessions: NewSessions(sessionTTL),
		channel:  channelID,
		logger:   logger,
	}
}

// Run receives updates until the context is cancelled.
func (l *Listener) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = int(updateTimeout.Seconds())
	updates := l.bot.GetUpdatesChan(u)

	l.logger.Info("listening for updates", "channel_id", l.channel)

	for {
		select {
		case <-ctx.Done():
			l.bot.StopReceivingUpdates()
			return ctx.Err()
		case update, ok := <-updates:
			if !ok {
				return fmt.Errorf("update channel closed")
			}
			intent := ResolveIntent(update, l.channel, l.sessions)
			if intent.Kind == IntentNone {
				continue
			}
			go l.dispatch(ctx, intent)
		}
	}
}

func (l *Listener) dispatch(ctx context.Context, intent Intent) {
	switch intent.Kind {
	case IntentChannelPost:
		l.handleChannelPost(ctx, intent)
	case IntentStart:
		l.handleStart(intent)
	case IntentOpenSearch:
		l.handleOpenSearch(intent)
	case IntentOpenSubscriptions:
		l.handleOpenSubscriptions(ctx, intent)
	case IntentSearchInput:
		l.handleSearchInput(ctx, intent)
	case IntentToggleTag:
		l.handleToggleTag(ctx, intent)
	case IntentTagSearch:
		l.handleTagSearch(ctx, intent)
	}
}

// handleChannelPost ingests a channel post. Authors are never notified of
// failures; they are only logged.
func (l *Listener) handleChannelPost(ctx context.Context, intent Intent) {
	ingested, err := l.service.IngestChannelPost(ctx, int64(intent.MessageID), intent.Text)
	if err != nil {
		l.logger.Error("ingest failed", "source_message_id", intent.MessageID, "error", err)
		return
	}
	if !ingested {
		l.logger.Debug("channel message skipped", "source_message_id", intent.MessageID)
	}
}

func (l *Listener) handleStart(intent Intent) {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(buttonSearch),
			tgbotapi.NewKeyboardButton(buttonSubscriptions),
		),
	)
	kb.ResizeKeyboard = true

	msg := tgbotapi.NewMessage(intent.ChatID, msgStart)
	msg.ReplyMarkup = kb
	l.send(msg)
}

func (l *Listener) handleOpenSearch(intent Intent) {
	l.sessions.Begin(intent.ChatID, StateAwaitingKeyword)
	l.send(tgbotapi.NewMessage(intent.ChatID, msgSearchPrompt))
}

func (l *Listener) handleOpenSubscriptions(ctx context.Context, intent Intent) {
	markup, empty, err := l.subscriptionMarkup(ctx, intent.UserID)
	if err != nil {
		l.logger.Error("subscription menu failed", "user_id", intent.UserID, "error", err)
		l.send(tgbotapi.NewMessage(intent.ChatID, msgOperationFail))
		return
	}
	if empty {
		l.send(tgbotapi.NewMessage(intent.ChatID, msgNoTags))
		return
	}
	msg := tgbotapi.NewMessage(intent.ChatID, msgTagMenu)
	msg.ReplyMarkup = markup
	l.send(msg)
}

func (l *Listener) handleSearchInput(ctx context.Context, intent Intent) {
	results, err := l.service.SearchKeyword(ctx, intent.Text, 0)
	if err != nil {
		l.logger.Error("keyword search failed", "keyword", intent.Text, "error", err)
		l.send(tgbotapi.NewMessage(intent.ChatID, msgOperationFail))
		return
	}
	l.deliverResults(ctx, intent.ChatID, results)
}

func (l *Listener) handleToggleTag(ctx context.Context, intent Intent) {
	subscribed, err := l.service.ToggleSubscription(ctx, intent.UserID, intent.Tag)
	if err != nil {
		l.logger.Error("toggle failed", "user_id", intent.UserID, "tag", intent.Tag, "error", err)
		l.answerCallback(intent.CallbackID, msgOperationFail)
		return
	}

	if subscribed {
		l.answerCallback(intent.CallbackID, fmt.Sprintf("✅ اشتراک %s فعال شد", intent.Tag))
	} else {
		l.answerCallback(intent.CallbackID, fmt.Sprintf("❌ اشتراک %s لغو شد", intent.Tag))
	}

	// Re-render the menu in place so the ✅/❌ markers stay accurate.
	markup, empty, err := l.subscriptionMarkup(ctx, intent.UserID)
	if err != nil || empty {
		return
	}
	edit := tgbotapi.NewEditMessageTextAndMarkup(intent.ChatID, intent.MessageID, msgTagMenu, markup)
	if _, err := l.bot.Send(edit); err != nil {
		// Editing can fail when the menu message is too old; fall back to a
		// fresh message.
		msg := tgbotapi.NewMessage(intent.ChatID, msgTagMenu)
		msg.ReplyMarkup = markup
		l.send(msg)
	}
}

func (l *Listener) handleTagSearch(ctx context.Context, intent Intent) {
	results, err := l.service.SearchTag(ctx, intent.Tag, 0)
	if err != nil {
		l.logger.Error("tag search failed", "tag", intent.Tag, "error", err)
		l.answerCallback(intent.CallbackID, msgOperationFail)
		return
	}
	if len(results) == 0 {
		l.answerCallback(intent.CallbackID, msgNoResults)
		return
	}
	l.answerCallback(intent.CallbackID, fmt.Sprintf("در حال ارسال %d پست اخیر با %s ...", len(results), intent.Tag))
	l.deliverResults(ctx, intent.ChatID, results)
}

// deliverResults copies each hit to the chat, degrading per post to the
// fallback notice.
func (l *Listener) deliverResults(ctx context.Context, chatID int64, results []domain.SearchResult) {
	if len(results) == 0 {
		l.send(tgbotapi.NewMessage(chatID, msgNoResults))
		return
	}
	for _, r := range results {
		if err := l.gateway.Deliver(ctx, chatID, r.SourceMessageID, r.Tags); err != nil {
			l.logger.Warn("result delivery failed, sending fallback", "chat_id", chatID, "source_message_id", r.SourceMessageID, "error", err)
			if err := l.gateway.SendFallbackNotice(ctx, chatID, r.SourceMessageID); err != nil {
				l.logger.Error("fallback notice failed", "chat_id", chatID, "source_message_id", r.SourceMessageID, "error", err)
			}
		}
	}
}

// subscriptionMarkup renders the toggle menu for one user: every known tag,
// prefixed with its subscription state, two per row.
func (l *Listener) subscriptionMarkup(ctx context.Context, userID int64) (tgbotapi.InlineKeyboardMarkup, bool, error) {
	all, err := l.service.AllTags(ctx)
	if err != nil {
		return tgbotapi.InlineKeyboardMarkup{}, false, err
	}
	if len(all) == 0 {
		return tgbotapi.InlineKeyboardMarkup{}, true, nil
	}
	mine, err := l.service.Subscriptions(ctx, userID)
	if err != nil {
		return tgbotapi.InlineKeyboardMarkup{}, false, err
	}
	subscribed := make(map[string]struct{}, len(mine))
	for _, t := range mine {
		subscribed[t] = struct{}{}
	}

	var rows [][]tgbotapi.InlineKeyboardButton
	var row []tgbotapi.InlineKeyboardButton
	for _, tag := range all {
		status := "❌"
		if _, ok := subscribed[tag]; ok {
			status = "✅"
		}
		row = append(row, tgbotapi.NewInlineKeyboardButtonData(status+" "+tag, callbackToggle+tag))
		if len(row) == 2 {
			rows = append(rows, row)
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...), false, nil
}

func (l *Listener) send(msg tgbotapi.MessageConfig) {
	if _, err := l.bot.Send(msg); err != nil {
		l.logger.Error("send failed", "chat_id", msg.ChatID, "error", err)
	}
}

func (l *Listener) answerCallback(id, text string) {
	if _, err := l.bot.Request(tgbotapi.NewCallback(id, text)); err != nil {
		l.logger.Error("answer callback failed", "error", err)
	}
}
