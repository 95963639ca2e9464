// Command announce publishes one structured post into the channel from the
// command line: a marker-prefixed title line, a body and a trailing tag
// line. The bot then picks it up through the normal channel-post flow.
package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/joho/godotenv"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	godotenv.Load()

	var (
		token   string
		channel string
		marker  string
		title   string
		body    string
		tags    string
	)

	flag.StringVar(&token, "token", envOrDefault("BOT_TOKEN", ""), "Telegram bot token")
	flag.StringVar(&channel, "channel", envOrDefault("CHANNEL_ID", ""), "numeric channel id to post into")
	flag.StringVar(&marker, "marker", envOrDefault("TITLE_MARKER", "📌"), "title marker prefix")
	flag.StringVar(&title, "title", "", "post title (required)")
	flag.StringVar(&body, "body", "", "post body")
	flag.StringVar(&tags, "tags", "", "comma-separated tags, with or without leading #")
	flag.Parse()

	if token == "" || channel == "" {
		return fmt.Errorf("--token and --channel are required (or set BOT_TOKEN and CHANNEL_ID)")
	}
	if title == "" {
		return fmt.Errorf("--title is required")
	}

	channelID, err := strconv.ParseInt(channel, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid channel id %q: %w", channel, err)
	}

	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return fmt.Errorf("create bot: %w", err)
	}

	text := composePost(marker, title, body, splitTags(tags))
	sent, err := bot.Send(tgbotapi.NewMessage(channelID, text))
	if err != nil {
		return fmt.Errorf("send post: %w", err)
	}

	fmt.Printf("published message %d to channel %d\n", sent.MessageID, channelID)
	return nil
}

// composePost renders the text the ingest pipeline expects: marker + title
// on the first line, then the body, then one line of tags.
func composePost(marker, title, body string, tags []string) string {
	var b strings.Builder
	b.WriteString(marker)
	b.WriteString(" ")
	b.WriteString(title)
	if body != "" {
		b.WriteString("\n")
		b.WriteString(body)
	}
	if len(tags) > 0 {
		b.WriteString("\n")
		b.WriteString(strings.Join(tags, " "))
	}
	return b.String()
}

func splitTags(raw string) []string {
	var tags []string
	for _, t := range strings.Split(raw, ",") {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if !strings.HasPrefix(t, "#") {
			t = "#" + t
		}
		tags = append(tags, t)
	}
	return tags
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
