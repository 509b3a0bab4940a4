// Package notify delivers completion reports for processed directives.
package notify

import (
	"context"
	"log/slog"
	"unicode/utf8"
)

// MaxLength is the longest text a notification may carry.
const MaxLength = 4000

const truncationMarker = "..."

type Notifier interface {
	Notify(ctx context.Context, text string) error
}

// Truncate shortens text to at most max runes, ending in "..." when cut.
func Truncate(text string, max int) string {
	if max <= 0 || utf8.RuneCountInString(text) <= max {
		return text
	}
	keep := max - len(truncationMarker)
	if keep < 0 {
		keep = 0
	}
	runes := []rune(text)
	return string(runes[:keep]) + truncationMarker
}

// LogNotifier writes notifications to a structured logger.
type LogNotifier struct {
	Logger *slog.Logger
}

func (n LogNotifier) Notify(ctx context.Context, text string) error {
	logger := n.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "notification", "text", Truncate(text, MaxLength))
	return nil
}
