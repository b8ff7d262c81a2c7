// Package telegram sends session and export notifications through the
// Telegram Bot API. Messages use MarkdownV2 and are delivered with a linear
// backoff retry.
package telegram

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/rewired-gh/hdts/internal/session"
)

type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Client handles Telegram notifications
type Client struct {
	bot            sender
	chatID         int64
	maxRetries     int
	retryDelayBase time.Duration
	now            func() time.Time
}

// NewClient creates a new Telegram client
func NewClient(botToken, chatID string, maxRetries int, retryDelayBase time.Duration) (*Client, error) {
	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot: %w", err)
	}
	return newClient(bot, chatID, maxRetries, retryDelayBase)
}

func newClient(bot sender, chatID string, maxRetries int, retryDelayBase time.Duration) (*Client, error) {
	chatIDInt, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid chat ID: %w", err)
	}

	if maxRetries <= 0 {
		maxRetries = 3
	}
	if retryDelayBase <= 0 {
		retryDelayBase = time.Second
	}

	return &Client{
		bot:            bot,
		chatID:         chatIDInt,
		maxRetries:     maxRetries,
		retryDelayBase: retryDelayBase,
		now:            time.Now,
	}, nil
}

// SessionStarted announces a new logging session and its sample names.
func (c *Client) SessionStarted(st session.Status, samples map[string]string) error {
	return c.send(c.formatStarted(st, samples))
}

// SessionStopped announces the end of a session with its entry count.
func (c *Client) SessionStopped(st session.Status) error {
	return c.send(c.formatStopped(st))
}

// Exported announces a finished CSV export.
func (c *Client) Exported(path string, rows int, size int) error {
	return c.send(formatExported(path, rows, size))
}

func (c *Client) send(message string) error {
	msg := tgbotapi.NewMessage(c.chatID, message)
	msg.ParseMode = "MarkdownV2"

	var lastErr error
	for i := 0; i < c.maxRetries; i++ {
		_, err := c.bot.Send(msg)
		if err == nil {
			return nil
		}
		lastErr = err
		time.Sleep(c.retryDelayBase * time.Duration(i+1))
	}

	return fmt.Errorf("failed to send message after %d retries: %w", c.maxRetries, lastErr)
}

func (c *Client) formatStarted(st session.Status, samples map[string]string) string {
	var b strings.Builder
	b.WriteString("▶️ *Logging session started*\n\n")
	fmt.Fprintf(&b, "🆔 `%s`\n", escapeMarkdownV2(st.ID))
	if st.StartedAt != nil {
		fmt.Fprintf(&b, "📅 %s\n", escapeMarkdownV2(st.StartedAt.Local().Format("2006-01-02 15:04:05")))
	}

	channels := make([]string, 0, len(samples))
	for ch := range samples {
		channels = append(channels, ch)
	}
	sort.Strings(channels)

	if len(channels) > 0 {
		b.WriteString("\n🧪 Samples:\n")
		for _, ch := range channels {
			fmt.Fprintf(&b, "   %s: *%s*\n", escapeMarkdownV2(ch), escapeMarkdownV2(samples[ch]))
		}
	}
	return b.String()
}

func (c *Client) formatStopped(st session.Status) string {
	var b strings.Builder
	b.WriteString("⏹ *Logging session stopped*\n\n")
	fmt.Fprintf(&b, "🆔 `%s`\n", escapeMarkdownV2(st.ID))
	fmt.Fprintf(&b, "📊 Entries: %s\n", escapeMarkdownV2(humanize.Comma(int64(st.Entries))))

	if st.StartedAt != nil {
		end := c.now()
		if st.StoppedAt != nil {
			end = *st.StoppedAt
		}
		fmt.Fprintf(&b, "⏱ Duration: %s\n", escapeMarkdownV2(formatDuration(end.Sub(*st.StartedAt))))
	}
	return b.String()
}

func formatExported(path string, rows int, size int) string {
	var b strings.Builder
	b.WriteString("💾 *CSV export ready*\n\n")
	fmt.Fprintf(&b, "📄 `%s`\n", escapeMarkdownV2(path))
	fmt.Fprintf(&b, "📊 %s rows, %s\n",
		escapeMarkdownV2(humanize.Comma(int64(rows))),
		escapeMarkdownV2(humanize.Bytes(uint64(size))))
	return b.String()
}

// escapeMarkdownV2 escapes special characters for Telegram MarkdownV2
func escapeMarkdownV2(text string) string {
	// _ * [ ] ( ) ~ ` > # + - = | { } . !
	var b strings.Builder
	for _, char := range text {
		switch char {
		case '_', '*', '[', ']', '(', ')', '~', '`', '>', '#', '+', '-', '=', '|', '{', '}', '.', '!', '\\':
			b.WriteRune('\\')
		}
		b.WriteRune(char)
	}
	return b.String()
}

// formatDuration formats a duration in a human-readable way
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	hours := int(d.Hours())
	mins := int(d.Minutes()) % 60
	if hours == 0 {
		return fmt.Sprintf("%dm", mins)
	}
	if mins == 0 {
		return fmt.Sprintf("%dh", hours)
	}
	return fmt.Sprintf("%dh%dm", hours, mins)
}
