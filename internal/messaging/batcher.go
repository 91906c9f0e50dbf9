package messaging

import (
	"context"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"
)

// Batching defaults for the Telegram transport.
const (
	DefaultCharLimit = 4096
	DefaultDelimiter = "\n\n"
	DefaultSendDelay = 300 * time.Millisecond
)

// SendFunc delivers one already batched message.
type SendFunc func(ctx context.Context, text string) error

// BatchOptions controls how paragraphs are grouped and paced.
type BatchOptions struct {
	CharLimit int
	Delimiter string
	Delay     time.Duration
}

// DefaultBatchOptions returns the options used when nothing is configured.
func DefaultBatchOptions() BatchOptions {
	return BatchOptions{CharLimit: DefaultCharLimit, Delimiter: DefaultDelimiter, Delay: DefaultSendDelay}
}

// Batch groups paragraphs into messages no longer than charLimit characters.
//
// Paragraphs are joined with delimiter and never split unless a single paragraph is itself
// at least charLimit long. Such a paragraph is cut at the last newline inside the first
// charLimit characters (the newline is dropped), or at charLimit-1 when the window has none,
// until the remainder fits. A cut without a newline moves back so it does not break an HTML
// tag, entity or element, when the window allows it. Lengths are counted in runes. Empty
// paragraphs are skipped.
func Batch(paragraphs []string, charLimit int, delimiter string) []string {
	if len(paragraphs) == 0 {
		slog.Debug("Batch: no paragraphs, nothing to send")
		return nil
	}
	if charLimit < 2 {
		slog.Warn("Batch: char limit too small, using minimum", "charLimit", charLimit)
		charLimit = 2
	}

	delimLen := utf8.RuneCountInString(delimiter)
	var (
		messages []string
		group    []string
		groupLen int
	)
	flush := func() {
		if len(group) == 0 {
			return
		}
		messages = append(messages, strings.Join(group, delimiter))
		group = nil
		groupLen = 0
	}

	for _, p := range paragraphs {
		if p == "" {
			continue
		}
		runes := []rune(p)
		if len(runes) >= charLimit {
			flush()
			var parts []string
			parts, runes = forceSplit(runes, charLimit)
			messages = append(messages, parts...)
			if len(runes) == 0 {
				continue
			}
			p = string(runes)
		}

		n := len(runes)
		if len(group) > 0 && groupLen+delimLen+n >= charLimit {
			flush()
		}
		if len(group) > 0 {
			groupLen += delimLen
		}
		group = append(group, p)
		groupLen += n
	}
	flush()

	slog.Debug("Batch: paragraphs batched", "paragraphs", len(paragraphs), "messages", len(messages), "charLimit", charLimit)
	return messages
}

// forceSplit cuts chunks off runes until the remainder is shorter than limit.
func forceSplit(runes []rune, limit int) (chunks []string, rest []rune) {
	for len(runes) >= limit {
		cut := lastNewline(runes[:limit])
		if cut <= 0 {
			cut = limit - 1
			if b := markupBoundary(runes[:cut]); b > 0 {
				cut = b
			}
			chunks = append(chunks, string(runes[:cut]))
			runes = runes[cut:]
			continue
		}
		chunks = append(chunks, string(runes[:cut]))
		runes = runes[cut+1:]
	}
	return chunks, runes
}

func lastNewline(window []rune) int {
	for i := len(window) - 1; i >= 0; i-- {
		if window[i] == '\n' {
			return i
		}
	}
	return -1
}

// markupBoundary returns the largest i such that window[:i] leaves no tag, entity or element
// open, or 0 when there is none.
func markupBoundary(window []rune) int {
	var (
		best, depth       int
		inTag, closingTag bool
		inEntity          bool
	)
	for i, r := range window {
		if i > 0 && depth == 0 && !inTag && !inEntity {
			best = i
		}
		switch {
		case inTag:
			if r == '>' {
				inTag = false
				if closingTag {
					depth = max(depth-1, 0)
				} else {
					depth++
				}
			}
		case inEntity:
			if r == ';' || r == ' ' || r == '\n' {
				inEntity = false
			}
		case r == '<':
			inTag = true
			closingTag = i+1 < len(window) && window[i+1] == '/'
		case r == '&':
			inEntity = true
		}
	}
	if depth == 0 && !inTag && !inEntity {
		best = len(window)
	}
	return best
}

// SendBatched batches paragraphs and sends each message with opts.Delay between consecutive sends.
// It stops at the first send error or when ctx is cancelled.
func SendBatched(ctx context.Context, send SendFunc, paragraphs []string, opts BatchOptions) error {
	if opts.CharLimit <= 0 {
		opts.CharLimit = DefaultCharLimit
	}
	if opts.Delimiter == "" {
		opts.Delimiter = DefaultDelimiter
	}

	messages := Batch(paragraphs, opts.CharLimit, opts.Delimiter)
	for i, msg := range messages {
		if i > 0 && opts.Delay > 0 {
			timer := time.NewTimer(opts.Delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
		if err := send(ctx, msg); err != nil {
			slog.Error("SendBatched: send failed", "error", err, "message", i+1, "total", len(messages))
			return err
		}
	}
	return nil
}
