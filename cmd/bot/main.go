package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/mkaveh/tagnotify/internal/config"
	"github.com/mkaveh/tagnotify/internal/domain"
	"github.com/mkaveh/tagnotify/internal/httpserver"
	"github.com/mkaveh/tagnotify/internal/postgres"
	"github.com/mkaveh/tagnotify/internal/sqlite"
	"github.com/mkaveh/tagnotify/internal/telegram"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/joho/godotenv"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// repository is what both storage backends provide.
type repository interface {
	domain.ArchiveRepository
	domain.SubscriptionRepository
	Close() error
}

func run() error {
	godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	repo, err := openRepository(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("open repository: %w", err)
	}
	defer repo.Close()
	logger.Info("connected to database")

	bot, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return fmt.Errorf("create bot: %w", err)
	}
	logger.Info("authorized", "bot", bot.Self.UserName)

	gateway := telegram.NewGateway(bot, cfg.ChannelID, cfg.ChannelUsername)

	service, err := domain.NewService(repo, repo, gateway, domain.Options{
		MaxPosts:           cfg.MaxPosts,
		DefaultSearchLimit: cfg.DefaultSearchLimit,
		MinSearchLimit:     1,
		MaxSearchLimit:     cfg.MaxSearchLimit,
		TitleMarker:        cfg.TitleMarker,
	}, logger)
	if err != nil {
		return fmt.Errorf("create service: %w", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	var opsServer *httpserver.Server
	if cfg.Port != "" {
		opsServer = httpserver.NewServer(":"+cfg.Port, service, logger)
		go func() {
			if err := opsServer.Start(); err != nil && err != http.ErrServerClosed {
				logger.Error("ops server exited with error", "error", err)
			}
		}()
	}

	listener := telegram.NewListener(bot, service, gateway, cfg.ChannelID, logger)
	go func() {
		if err := listener.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Error("listener exited with error", "error", err)
		}
	}()

	logger.Info("bot started", "channel_id", cfg.ChannelID, "max_posts", cfg.MaxPosts)

	sig := <-sigCh
	logger.Info("received signal, shutting down", "signal", sig)
	cancel()

	if opsServer != nil {
		if err := opsServer.Shutdown(context.Background()); err != nil {
			logger.Error("error shutting down ops server", "error", err)
		}
	}

	return nil
}

// openRepository picks the storage backend from the URL: a postgres://
// connection string selects Postgres, anything else is a SQLite path.
func openRepository(ctx context.Context, databaseURL string) (repository, error) {
	if strings.HasPrefix(databaseURL, "postgres://") || strings.HasPrefix(databaseURL, "postgresql://") {
		return postgres.NewRepository(ctx, databaseURL)
	}
	return sqlite.NewRepository(ctx, databaseURL)
}
