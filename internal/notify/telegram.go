package notify

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-telegram/bot"

	"github.com/animus-labs/freezer/internal/platform/env"
)

const defaultTelegramAPI = "https://api.telegram.org"

type TelegramConfig struct {
	Token   string
	ChatID  string
	BaseURL string
	Timeout time.Duration
}

// TelegramConfigFromEnv overlays FREEZER_TELEGRAM_* variables onto base and
// returns ok=false when no bot token is configured.
func TelegramConfigFromEnv(base TelegramConfig) (TelegramConfig, bool, error) {
	if base.BaseURL == "" {
		base.BaseURL = defaultTelegramAPI
	}
	if base.Timeout <= 0 {
		base.Timeout = 10 * time.Second
	}
	timeout, err := env.Duration("FREEZER_TELEGRAM_TIMEOUT", base.Timeout)
	if err != nil {
		return TelegramConfig{}, false, err
	}
	cfg := TelegramConfig{
		Token:   env.String("FREEZER_TELEGRAM_BOT_TOKEN", base.Token),
		ChatID:  env.String("FREEZER_TELEGRAM_CHAT_ID", base.ChatID),
		BaseURL: env.String("FREEZER_TELEGRAM_API_URL", base.BaseURL),
		Timeout: timeout,
	}
	if strings.TrimSpace(cfg.Token) == "" {
		return cfg, false, nil
	}
	if err := cfg.Validate(); err != nil {
		return TelegramConfig{}, false, err
	}
	return cfg, true, nil
}

func (c TelegramConfig) Validate() error {
	if strings.TrimSpace(c.Token) == "" {
		return errors.New("telegram bot token is required")
	}
	if strings.TrimSpace(c.ChatID) == "" {
		return errors.New("telegram chat id is required")
	}
	if strings.TrimSpace(c.BaseURL) == "" {
		return errors.New("telegram api url is required")
	}
	if c.Timeout <= 0 {
		return errors.New("telegram timeout must be positive")
	}
	return nil
}

// Telegram posts notifications through the Bot API sendMessage method.
type Telegram struct {
	bot    *bot.Bot
	chatID string
	token  string
}

// NewTelegram builds the bot client without calling getMe, so a process can
// start while the Bot API is unreachable.
func NewTelegram(cfg TelegramConfig) (*Telegram, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	b, err := bot.New(cfg.Token,
		bot.WithServerURL(strings.TrimRight(cfg.BaseURL, "/")),
		bot.WithHTTPClient(cfg.Timeout, &http.Client{Timeout: cfg.Timeout}),
		bot.WithSkipGetMe(),
	)
	if err != nil {
		return nil, errors.New("telegram client: " + redact(err.Error(), cfg.Token))
	}
	return &Telegram{bot: b, chatID: cfg.ChatID, token: cfg.Token}, nil
}

func (t *Telegram) Notify(ctx context.Context, text string) error {
	_, err := t.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: t.chatID,
		Text:   Truncate(text, MaxLength),
	})
	if err != nil {
		// request errors carry the URL, which embeds the token
		return errors.New("telegram send failed: " + redact(err.Error(), t.token))
	}
	return nil
}

func redact(s, secret string) string {
	if secret == "" {
		return s
	}
	return strings.ReplaceAll(s, secret, "<redacted>")
}
