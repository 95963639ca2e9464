package telegram

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Gateway delivers archived channel posts to individual users over the
// Telegram Bot API. It implements domain.Gateway.
type Gateway struct {
	bot             *tgbotapi.BotAPI
	channelID       int64
	channelUsername string
}

// NewGateway creates a Gateway delivering copies of posts from the given
// channel. channelUsername (without @) is optional and enables public
// fallback links.
func NewGateway(bot *tgbotapi.BotAPI, channelID int64, channelUsername string) *Gateway {
	return &Gateway{
		bot:             bot,
		channelID:       channelID,
		channelUsername: channelUsername,
	}
}

// Deliver copies the original channel message to the user with the post's
// tags as inline buttons underneath, so every tag is one tap away from a
// follow-up search.
func (g *Gateway) Deliver(_ context.Context, userID int64, sourceMessageID int64, tags []string) error {
	copyMsg := tgbotapi.NewCopyMessage(userID, g.channelID, int(sourceMessageID))
	if kb, ok := tagKeyboard(tags); ok {
		copyMsg.ReplyMarkup = kb
	}
	if _, err := g.bot.CopyMessage(copyMsg); err != nil {
		return fmt.Errorf("copy message %d to user %d: %w", sourceMessageID, userID, err)
	}
	return nil
}

// SendFallbackNotice sends a degraded plain-text reference to the post: a
// public t.me link when the channel has a username, otherwise the message
// id.
func (g *Gateway) SendFallbackNotice(_ context.Context, userID int64, sourceMessageID int64) error {
	var text string
	if g.channelUsername != "" {
		text = fmt.Sprintf("📌 پست کانال:\n🔗 https://t.me/%s/%d", g.channelUsername, sourceMessageID)
	} else {
		text = fmt.Sprintf("📌 شناسهٔ پیام کانال: %d", sourceMessageID)
	}
	if _, err := g.bot.Send(tgbotapi.NewMessage(userID, text)); err != nil {
		return fmt.Errorf("send fallback notice to user %d: %w", userID, err)
	}
	return nil
}

// tagKeyboard builds an inline keyboard of tag-search buttons, three per
// row. ok is false for posts without tags.
func tagKeyboard(tags []string) (tgbotapi.InlineKeyboardMarkup, bool) {
	if len(tags) == 0 {
		return tgbotapi.InlineKeyboardMarkup{}, false
	}
	var rows [][]tgbotapi.InlineKeyboardButton
	var row []tgbotapi.InlineKeyboardButton
	for _, tag := range tags {
		row = append(row, tgbotapi.NewInlineKeyboardButtonData(tag, callbackTagSearch+tag))
		if len(row) == 3 {
			rows = append(rows, row)
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...), true
}
