// Command messenger is a minimal terminal frontend for the client core:
// it connects, logs in, and prints timeline activity as it happens.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"

	"github.com/noveo/messenger-core/avatar"
	"github.com/noveo/messenger-core/client"
	"github.com/noveo/messenger-core/ws"
	"github.com/noveo/messenger-core/ws/validator"
)

type config struct {
	ServerURL string
	BaseURL   string
	CacheDir  string
	Username  string
	Password  string
	Insecure  bool
}

func loadConfig() (config, error) {
	// .env is optional; real env vars win either way.
	_ = godotenv.Load()

	cfg := config{
		ServerURL: getenv("MESSENGER_WS_URL", "wss://localhost:8443/ws"),
		BaseURL:   getenv("MESSENGER_BASE_URL", "https://localhost:8443"),
		Username:  os.Getenv("MESSENGER_USERNAME"),
		Password:  os.Getenv("MESSENGER_PASSWORD"),
		Insecure:  getenv("MESSENGER_INSECURE", "1") == "1",
	}
	if cfg.Username == "" || cfg.Password == "" {
		return config{}, fmt.Errorf("MESSENGER_USERNAME and MESSENGER_PASSWORD must be set")
	}

	cfg.CacheDir = os.Getenv("MESSENGER_CACHE_DIR")
	if cfg.CacheDir == "" {
		base, err := os.UserCacheDir()
		if err != nil {
			return config{}, fmt.Errorf("resolve cache dir: %w", err)
		}
		cfg.CacheDir = filepath.Join(base, "messenger", "avatars")
	}
	return cfg, nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	if err := run(logger); err != nil {
		logger.Error("Exiting", "error", err.Error())
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	avatars, err := avatar.New(logger, cfg.BaseURL, cfg.CacheDir)
	if err != nil {
		return err
	}

	conn := &ws.Conn{
		Logger:   logger,
		URL:      cfg.ServerURL,
		Val:      validator.New(),
		Insecure: cfg.Insecure,
	}

	core := &client.Client{
		Logger:  logger,
		Adapter: conn,
	}
	core.OnTimelineChanged = func(chatID client.ChatID) {
		tl := core.Timeline(chatID)
		if len(tl) == 0 {
			return
		}
		last := tl[len(tl)-1]
		sender := string(last.SenderID)
		if u, ok := core.User(last.SenderID); ok {
			sender = u.Username
			avatars.Get(u.Username, u.AvatarURL)
		}
		fmt.Printf("[%s] %s: %s\n", core.ChatTitle(chatID), sender, last.Text)
	}
	core.OnError = func(message string) {
		fmt.Fprintf(os.Stderr, "server error: %s\n", message)
	}
	conn.Handler = core

	ctx := context.Background()
	if err := conn.Dial(ctx); err != nil {
		return err
	}
	defer conn.Close()

	if err := conn.Login(ctx, cfg.Username, cfg.Password); err != nil {
		return err
	}

	logger.Info("Connected", "url", cfg.ServerURL)
	return conn.Listen(ctx)
}
