// Package reporter sends run summaries to a Telegram chat.
package reporter

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"

	"jobharvest/internal/analyze"
	"jobharvest/internal/scrape"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// maxListedFailures caps how many failures a summary spells out.
const maxListedFailures = 5

type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type Telegram struct {
	bot    sender
	chatID int64
}

func NewTelegram(token string, chatID int64) (*Telegram, error) {
	if token == "" || chatID == 0 {
		return nil, errors.New("telegram: token and chat id are required")
	}
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to init telegram bot: %w", err)
	}
	return &Telegram{bot: bot, chatID: chatID}, nil
}

func (t *Telegram) SendMessage(text string) error {
	msg := tgbotapi.NewMessage(t.chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	_, err := t.bot.Send(msg)
	return err
}

// Report sends the summary of one scrape run.
func (t *Telegram) Report(_ context.Context, rep scrape.RunReport) error {
	return t.SendMessage(RunSummary(rep))
}

// ReportBuild sends the summary of a dataset build.
func (t *Telegram) ReportBuild(_ context.Context, rep analyze.Report) error {
	return t.SendMessage(BuildSummary(rep))
}

func RunSummary(rep scrape.RunReport) string {
	var b strings.Builder
	icon := "✅"
	if rep.Error != "" {
		icon = "⚠️"
	}
	fmt.Fprintf(&b, "%s <b>%s</b> in <b>%s</b>\n", icon, html.EscapeString(rep.Job), html.EscapeString(rep.Location))
	fmt.Fprintf(&b, "🔎 discovered %d, saved %d, failed %d\n", rep.Discovered, rep.Records, len(rep.Failures))
	if len(rep.SkippedPages) > 0 {
		fmt.Fprintf(&b, "📄 skipped pages: %v\n", rep.SkippedPages)
	}
	if rep.Snapshot != "" {
		fmt.Fprintf(&b, "💾 <code>%s</code>\n", html.EscapeString(rep.Snapshot))
	}
	for i, f := range rep.Failures {
		if i == maxListedFailures {
			fmt.Fprintf(&b, "… and %d more\n", len(rep.Failures)-maxListedFailures)
			break
		}
		fmt.Fprintf(&b, "• %s: %s\n", html.EscapeString(f.Identifier), html.EscapeString(f.Reason))
	}
	if rep.Error != "" {
		fmt.Fprintf(&b, "error: %s\n", html.EscapeString(rep.Error))
	}
	return strings.TrimRight(b.String(), "\n")
}

func BuildSummary(rep analyze.Report) string {
	return fmt.Sprintf("📊 <b>dataset built</b>\n%d snapshots, %d merged, %d rows, %d excluded, %d warnings",
		rep.Files, rep.Merged, rep.Rows, len(rep.Failures), len(rep.Warnings))
}
