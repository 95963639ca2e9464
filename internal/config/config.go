package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config holds all configuration for the application.
type Config struct {
	// BotToken is the Telegram bot token.
	BotToken string

	// ChannelID is the numeric id of the channel whose posts are ingested.
	ChannelID int64

	// ChannelUsername is the channel's public username (without @), used to
	// build fallback links. Optional; empty for private channels.
	ChannelUsername string

	// DatabaseURL is either a postgres:// connection string or a SQLite
	// file path.
	DatabaseURL string

	// MaxPosts is the archive capacity bound.
	MaxPosts int

	// DefaultSearchLimit is used when a search carries no explicit limit.
	DefaultSearchLimit int

	// MaxSearchLimit is the upper clamp for requested limits (lower is 1).
	MaxSearchLimit int

	// TitleMarker is the prefix that makes a channel message a structured
	// post.
	TitleMarker string

	// Port is the ops HTTP server port. Empty disables the server.
	Port string
}

// Load reads configuration from environment variables with sensible
// defaults.
func Load() (*Config, error) {
	token := os.Getenv("BOT_TOKEN")
	if token == "" {
		return nil, fmt.Errorf("BOT_TOKEN is required")
	}

	rawChannel := os.Getenv("CHANNEL_ID")
	if rawChannel == "" {
		return nil, fmt.Errorf("CHANNEL_ID is required")
	}
	channelID, err := strconv.ParseInt(rawChannel, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid CHANNEL_ID: %w", err)
	}

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		dbURL = "tagnotify.db"
	}

	maxPosts, err := intEnv("MAX_POSTS", 1000)
	if err != nil {
		return nil, err
	}
	defaultLimit, err := intEnv("DEFAULT_SEARCH_LIMIT", 5)
	if err != nil {
		return nil, err
	}
	maxLimit, err := intEnv("MAX_SEARCH_LIMIT", 50)
	if err != nil {
		return nil, err
	}

	marker := os.Getenv("TITLE_MARKER")
	if marker == "" {
		marker = "📌"
	}

	return &Config{
		BotToken:           token,
		ChannelID:          channelID,
		ChannelUsername:    os.Getenv("CHANNEL_USERNAME"),
		DatabaseURL:        dbURL,
		MaxPosts:           maxPosts,
		DefaultSearchLimit: defaultLimit,
		MaxSearchLimit:     maxLimit,
		TitleMarker:        marker,
		Port:               os.Getenv("PORT"),
	}, nil
}

func intEnv(name string, def int) (int, error) {
	raw := os.Getenv(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", name, err)
	}
	if v <= 0 {
		return 0, fmt.Errorf("invalid %s: must be positive, got %d", name, v)
	}
	return v, nil
}
