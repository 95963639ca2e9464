package telegram

import (
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Button labels and callback prefixes of the user-facing menu.
const (
	buttonSearch        = "🔍 جستجو اطلاعیه/خبر"
	buttonSubscriptions = "🔔 دریافت خودکار اطلاعیه/خبر"

	callbackToggle    = "toggle:"
	callbackTagSearch = "tag:"
)

// IntentKind enumerates everything an inbound update can mean. Updates are
// resolved exactly once at the boundary and dispatched through one switch;
// handlers never match on raw message text themselves.
type IntentKind int

const (
	IntentNone IntentKind = iota

	// IntentChannelPost is a new or edited post in the watched channel.
	IntentChannelPost

	// IntentStart is the /start command.
	IntentStart

	// IntentOpenSearch is the search menu button.
	IntentOpenSearch

	// IntentOpenSubscriptions is the subscription menu button.
	IntentOpenSubscriptions

	// IntentSearchInput is free text sent while a search session is active.
	IntentSearchInput

	// IntentToggleTag is a toggle button press on the subscription menu.
	IntentToggleTag

	// IntentTagSearch is a tag button press under a delivered post.
	IntentTagSearch
)

// Intent is one resolved inbound event.
type Intent struct {
	Kind IntentKind

	// ChatID is where replies go.
	ChatID int64

	// UserID identifies the requesting user (callback and message intents).
	UserID int64

	// MessageID is the channel message id for IntentChannelPost, or the
	// menu message id for IntentToggleTag.
	MessageID int

	// Text is the raw post text for IntentChannelPost (caption for media
	// posts) or the keyword for IntentSearchInput.
	Text string

	// Tag is the tag name for IntentToggleTag and IntentTagSearch.
	Tag string

	// CallbackID must be answered for callback intents.
	CallbackID string
}

// ResolveIntent classifies one update. channelID scopes which channel's
// posts are ingested; sessions supplies the awaiting-input state for free
// text. Free text consumed as search input ends the session.
func ResolveIntent(update tgbotapi.Update, channelID int64, sessions *Sessions) Intent {
	if post := update.ChannelPost; post != nil {
		return channelPostIntent(post, channelID)
	}
	if post := update.EditedChannelPost; post != nil {
		return channelPostIntent(post, channelID)
	}

	if cb := update.CallbackQuery; cb != nil {
		intent := Intent{
			UserID:     cb.From.ID,
			CallbackID: cb.ID,
		}
		if cb.Message != nil {
			intent.ChatID = cb.Message.Chat.ID
			intent.MessageID = cb.Message.MessageID
		} else {
			intent.ChatID = cb.From.ID
		}
		switch {
		case strings.HasPrefix(cb.Data, callbackToggle):
			intent.Kind = IntentToggleTag
			intent.Tag = strings.TrimPrefix(cb.Data, callbackToggle)
		case strings.HasPrefix(cb.Data, callbackTagSearch):
			intent.Kind = IntentTagSearch
			intent.Tag = strings.TrimPrefix(cb.Data, callbackTagSearch)
		}
		return intent
	}

	if msg := update.Message; msg != nil {
		intent := Intent{
			ChatID: msg.Chat.ID,
			Text:   msg.Text,
		}
		if msg.From != nil {
			intent.UserID = msg.From.ID
		}
		switch {
		case msg.IsCommand() && msg.Command() == "start":
			intent.Kind = IntentStart
		case msg.Text == buttonSearch:
			intent.Kind = IntentOpenSearch
		case msg.Text == buttonSubscriptions:
			intent.Kind = IntentOpenSubscriptions
		case msg.Text != "" && sessions.Consume(msg.Chat.ID) == StateAwaitingKeyword:
			intent.Kind = IntentSearchInput
		}
		return intent
	}

	return Intent{}
}

func channelPostIntent(post *tgbotapi.Message, channelID int64) Intent {
	if post.Chat.ID != channelID {
		return Intent{}
	}
	text := post.Text
	if text == "" {
		text = post.Caption
	}
	return Intent{
		Kind:      IntentChannelPost,
		ChatID:    post.Chat.ID,
		MessageID: post.MessageID,
		Text:      text,
	}
}
