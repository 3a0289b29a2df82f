// Package telegram sends operator notifications to a Telegram chat.
package telegram

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/time/rate"

	"github.com/example/recreserve/internal/domain/reservation"
)

type Config struct {
	BotToken string
	ChatID   int64

	// Endpoint is the Bot API URL pattern (token, method). Defaults to
	// tgbotapi.APIEndpoint.
	Endpoint string
	Client   *http.Client

	// SendInterval spaces Bot API calls once a short burst is used up.
	// Telegram throttles bots posting faster than about one message per
	// second to a chat. Defaults to 1s.
	SendInterval time.Duration
}

const sendBurst = 3

// Notifier is a reservation.Notifier backed by the Telegram Bot API. The bot is
// created on first use, so building a Notifier never touches the network.
type Notifier struct {
	cfg     Config
	limiter *rate.Limiter

	mu  sync.Mutex
	bot *tgbotapi.BotAPI
}

func New(cfg Config) (*Notifier, error) {
	if cfg.BotToken == "" {
		return nil, fmt.Errorf("bot token is required")
	}
	if cfg.ChatID == 0 {
		return nil, fmt.Errorf("chat ID is required")
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = tgbotapi.APIEndpoint
	}
	if cfg.Client == nil {
		cfg.Client = &http.Client{Timeout: 30 * time.Second}
	}
	if cfg.SendInterval <= 0 {
		cfg.SendInterval = time.Second
	}
	return &Notifier{cfg: cfg, limiter: rate.NewLimiter(rate.Every(cfg.SendInterval), sendBurst)}, nil
}

func (n *Notifier) Name() string { return "telegram" }

// Ping checks the token with getMe.
func (n *Notifier) Ping(ctx context.Context) error {
	return n.do(ctx, func(bot *tgbotapi.BotAPI) error {
		_, err := bot.GetMe()
		return err
	})
}

func (n *Notifier) SendMessage(ctx context.Context, text string) error {
	return n.do(ctx, func(bot *tgbotapi.BotAPI) error {
		_, err := bot.Send(tgbotapi.NewMessage(n.cfg.ChatID, text))
		return err
	})
}

func (n *Notifier) SendPhoto(ctx context.Context, png []byte) error {
	if len(png) == 0 {
		return fmt.Errorf("telegram: empty photo")
	}
	photo := tgbotapi.NewPhoto(n.cfg.ChatID, tgbotapi.FileBytes{Name: "screenshot.png", Bytes: png})
	return n.do(ctx, func(bot *tgbotapi.BotAPI) error {
		_, err := bot.Send(photo)
		return err
	})
}

// do runs fn with the bot's HTTP client bound to ctx. Calls are serialized
// and rate limited.
func (n *Notifier) do(ctx context.Context, fn func(*tgbotapi.BotAPI) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	n.mu.Lock()
	defer n.mu.Unlock()

	if err := n.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("telegram: %w", err)
	}

	client := ctxClient{ctx: ctx, c: n.cfg.Client}
	if n.bot == nil {
		bot, err := tgbotapi.NewBotAPIWithClient(n.cfg.BotToken, n.cfg.Endpoint, client)
		if err != nil {
			return fmt.Errorf("telegram: connect: %w", err)
		}
		n.bot = bot
	}
	n.bot.Client = client
	if err := fn(n.bot); err != nil {
		return fmt.Errorf("telegram: %w", err)
	}
	return nil
}

type ctxClient struct {
	ctx context.Context
	c   *http.Client
}

func (c ctxClient) Do(req *http.Request) (*http.Response, error) {
	return c.c.Do(req.WithContext(c.ctx))
}

var _ reservation.Notifier = (*Notifier)(nil)
