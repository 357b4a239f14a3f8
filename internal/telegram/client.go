// Package telegram provides a client for sending notifications via Telegram Bot API.
package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/time/rate"

	"github.com/rewired-gh/aurorawatch/internal/logger"
	"github.com/rewired-gh/aurorawatch/internal/models"
)

// Config holds the bot settings.
type Config struct {
	BotToken       string
	ChatID         string
	MaxRetries     int
	RetryDelayBase time.Duration
	RatePerSec     float64
}

// StatusFunc reports the most recent decision for the /status command.
type StatusFunc func() (models.Decision, bool)

// Client handles Telegram notifications.
type Client struct {
	bot            *tgbotapi.BotAPI
	send           func(tgbotapi.Chattable) (tgbotapi.Message, error)
	chatID         int64
	maxRetries     int
	retryDelayBase time.Duration
	limiter        *rate.Limiter
}

// NewClient creates a new Telegram client. The chat ID is checked before the
// bot token, which costs a network round trip.
func NewClient(cfg Config) (*Client, error) {
	chatID, err := strconv.ParseInt(strings.TrimSpace(cfg.ChatID), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid chat ID: %v", models.ErrInvalidInput, err)
	}

	bot, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot: %w", err)
	}

	c := newClient(chatID, cfg)
	c.bot = bot
	c.send = bot.Send
	return c, nil
}

func newClient(chatID int64, cfg Config) *Client {
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	retryDelayBase := cfg.RetryDelayBase
	if retryDelayBase <= 0 {
		retryDelayBase = time.Second
	}
	limit := rate.Inf
	if cfg.RatePerSec > 0 {
		limit = rate.Limit(cfg.RatePerSec)
	}
	return &Client{
		chatID:         chatID,
		maxRetries:     maxRetries,
		retryDelayBase: retryDelayBase,
		limiter:        rate.NewLimiter(limit, 1),
	}
}

func (c *Client) Name() string {
	return "telegram"
}

// ListenForCommands starts a goroutine that polls for Telegram updates and handles bot commands.
// It returns immediately; the goroutine stops when ctx is cancelled.
func (c *Client) ListenForCommands(ctx context.Context, status StatusFunc) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := c.bot.GetUpdatesChan(u)

	go func() {
		for {
			select {
			case <-ctx.Done():
				c.bot.StopReceivingUpdates()
				return
			case update, ok := <-updates:
				if !ok {
					return
				}
				if update.Message != nil && update.Message.IsCommand() {
					c.handleCommand(update.Message, status)
				}
			}
		}
	}()
}

// handleCommand answers only the configured chat.
func (c *Client) handleCommand(msg *tgbotapi.Message, status StatusFunc) {
	if msg.Chat == nil || msg.Chat.ID != c.chatID {
		logger.Debug("Ignoring /%s from chat outside the configured one", msg.Command())
		return
	}
	var reply tgbotapi.MessageConfig
	switch msg.Command() {
	case "ping":
		reply = tgbotapi.NewMessage(msg.Chat.ID, "Pong")
	case "status":
		reply = tgbotapi.NewMessage(msg.Chat.ID, formatStatus(status))
		reply.ParseMode = tgbotapi.ModeMarkdownV2
	default:
		return
	}
	if _, err := c.send(reply); err != nil {
		logger.Warn("Failed to answer /%s: %v", msg.Command(), err)
	}
}

// Send delivers the report text and, when present, the map as a document.
// Delivery counts as successful once the text is sent; a failed map upload
// is only logged.
func (c *Client) Send(ctx context.Context, report models.Report, artifactPath string) error {
	msg := tgbotapi.NewMessage(c.chatID, formatMessage(report))
	msg.ParseMode = tgbotapi.ModeMarkdownV2
	if err := c.sendWithRetry(ctx, msg); err != nil {
		return fmt.Errorf("%w: %v", models.ErrNotifierFailure, err)
	}

	if artifactPath == "" {
		return nil
	}
	doc := tgbotapi.NewDocument(c.chatID, tgbotapi.FilePath(artifactPath))
	doc.Caption = "Aurora forecast map"
	if err := c.sendWithRetry(ctx, doc); err != nil {
		logger.Warn("Telegram %s sent without map, upload failed: %v", report.Kind, err)
	}
	return nil
}

// sendWithRetry sends with linear-backoff retry, honouring the rate limit.
func (c *Client) sendWithRetry(ctx context.Context, msg tgbotapi.Chattable) error {
	var lastErr error
	for i := 0; i < c.maxRetries; i++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
		if _, err := c.send(msg); err == nil {
			return nil
		} else {
			lastErr = err
		}
		if i == c.maxRetries-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.retryDelayBase * time.Duration(i+1)):
		}
	}
	return fmt.Errorf("failed after %d retries: %w", c.maxRetries, lastErr)
}

// formatMessage formats a report into a Telegram MarkdownV2 message.
func formatMessage(report models.Report) string {
	var b strings.Builder
	kp := escapeMarkdownV2(fmt.Sprintf("%.1f", report.Reading.Value))

	switch report.Kind {
	case models.MessageAlert:
		fmt.Fprintf(&b, "🌌 *Aurora Alert\\!* Kp\\=%s\n\n", kp)
		b.WriteString("Aurora may be visible from your location tonight\\!\n\n")
	case models.MessageDailyReport:
		fmt.Fprintf(&b, "📋 *Daily Aurora Report* Kp\\=%s\n\n", kp)
		if report.Verdict.IsVisible {
			b.WriteString("✅ *VISIBLE* \\- aurora may be visible tonight\\!\n\n")
		} else {
			b.WriteString("❌ *NOT VISIBLE* \\- aurora not expected to be visible\n\n")
		}
	default:
		b.WriteString("🟢 *Aurora Monitoring System Started*\n\n")
		fmt.Fprintf(&b, "📍 %s \\(%s\\)\n", escapeMarkdownV2(report.Observer.DisplayName()), escapeMarkdownV2(report.Observer.Coordinates()))
		fmt.Fprintf(&b, "🎯 Alert threshold: Kp ≥ %s\n", escapeMarkdownV2(strconv.FormatFloat(report.KpThreshold, 'f', -1, 64)))
		fmt.Fprintf(&b, "⏱ Checks every %s, cooldown %s\n", escapeMarkdownV2(report.CheckInterval.String()), escapeMarkdownV2(report.Cooldown.String()))
		fmt.Fprintf(&b, "📅 Daily report at %s\n", escapeMarkdownV2(report.DailyReportTime))
		fmt.Fprintf(&b, "🕐 Started: %s\n", escapeMarkdownV2(report.GeneratedAtDisplay()))
		return b.String()
	}

	fmt.Fprintf(&b, "%s\n", escapeMarkdownV2(report.Verdict.Description))
	fmt.Fprintf(&b, "📍 %s \\(%s\\)\n", escapeMarkdownV2(report.Observer.DisplayName()), escapeMarkdownV2(report.Observer.Coordinates()))
	fmt.Fprintf(&b, "📡 Data from: %s\n", escapeMarkdownV2(report.Reading.FormattedObservedAt()))
	fmt.Fprintf(&b, "🕐 %s\n", escapeMarkdownV2(report.GeneratedAtDisplay()))
	return b.String()
}

func formatStatus(status StatusFunc) string {
	if status == nil {
		return "No status available"
	}
	d, ok := status()
	if !ok {
		return "⏳ No check has completed yet"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "*Last check:* %s\n", escapeMarkdownV2(d.At.UTC().Format(models.DisplayTimeLayout)))
	fmt.Fprintf(&b, "*Decision:* %s\n", escapeMarkdownV2(string(d.Kind)))
	if d.Kind != models.DecisionNoData {
		fmt.Fprintf(&b, "*Kp:* %s\n", escapeMarkdownV2(fmt.Sprintf("%.1f", d.Reading.Value)))
		fmt.Fprintf(&b, "%s\n", escapeMarkdownV2(d.Verdict.Description))
	}
	return b.String()
}

// escapeMarkdownV2 escapes special characters for Telegram MarkdownV2.
func escapeMarkdownV2(text string) string {
	var b strings.Builder
	b.Grow(len(text) + len(text)/4) // pre-allocate with room for escapes
	for _, char := range text {
		switch char {
		case '_', '*', '[', ']', '(', ')', '~', '`', '>', '#', '+', '-', '=', '|', '{', '}', '.', '!':
			b.WriteByte('\\')
		}
		b.WriteRune(char)
	}
	return b.String()
}
