package messaging

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/google/go-cmp/cmp"
)

func TestBatchEmptyInput(t *testing.T) {
	if got := Batch(nil, 20, "\n\n"); len(got) != 0 {
		t.Errorf("expected no messages, got %v", got)
	}
	if got := Batch([]string{}, 20, "\n\n"); len(got) != 0 {
		t.Errorf("expected no messages, got %v", got)
	}
}

func TestBatchExamples(t *testing.T) {
	tests := []struct {
		name       string
		paragraphs []string
		limit      int
		want       []string
	}{
		{
			name:       "delimiter pushes second paragraph out",
			paragraphs: []string{"short one", "another short"},
			limit:      20,
			want:       []string{"short one", "another short"},
		},
		{
			name:       "small paragraphs share a message",
			paragraphs: []string{"a", "b", "c"},
			limit:      20,
			want:       []string{"a\n\nb\n\nc"},
		},
		{
			name:       "empty paragraphs are skipped",
			paragraphs: []string{"", "a", "", "b"},
			limit:      20,
			want:       []string{"a\n\nb"},
		},
		{
			name:       "oversized paragraph splits at newline",
			paragraphs: []string{"first line\nsecond line is long"},
			limit:      20,
			want:       []string{"first line", "second line is long"},
		},
		{
			name:       "remainder keeps accumulating",
			paragraphs: []string{"intro", strings.Repeat("x", 25), "tail"},
			limit:      20,
			want:       []string{"intro", strings.Repeat("x", 19), "xxxxxx\n\ntail"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Batch(tt.paragraphs, tt.limit, "\n\n")
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Batch() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestBatchLengthInvariant(t *testing.T) {
	paragraphs := []string{
		"Deadline: write the weekly digest",
		strings.Repeat("word ", 40),
		"line one\nline two\nline three\nline four\nline five",
		"Ёжик в тумане ищет лошадку и не находит её никак",
		"ok",
	}
	for _, limit := range []int{10, 20, 33, 64, 4096} {
		for _, msg := range Batch(paragraphs, limit, "\n\n") {
			if n := utf8.RuneCountInString(msg); n > limit {
				t.Errorf("limit %d: message of %d runes: %q", limit, n, msg)
			}
			if msg == "" {
				t.Errorf("limit %d: empty message emitted", limit)
			}
		}
	}
}

func TestBatchSafeInputKeepsParagraphsWhole(t *testing.T) {
	paragraphs := []string{"alpha", "beta gamma", "delta", "epsilon zeta eta", "theta"}
	messages := Batch(paragraphs, 20, "\n\n")

	var rebuilt []string
	for _, msg := range messages {
		rebuilt = append(rebuilt, strings.Split(msg, "\n\n")...)
	}
	if diff := cmp.Diff(paragraphs, rebuilt); diff != "" {
		t.Errorf("paragraphs not preserved (-want +got):\n%s", diff)
	}
}

func TestBatchCompletenessWithForcedSplits(t *testing.T) {
	paragraphs := []string{"head", strings.Repeat("abcdefghij", 7), "mid", "tail"}
	messages := Batch(paragraphs, 20, " | ")

	joined := strings.ReplaceAll(strings.Join(messages, ""), " | ", "")
	want := strings.Join(paragraphs, "")
	if joined != want {
		t.Errorf("content lost:\nwant %q\ngot  %q", want, joined)
	}
}

func TestBatchSingleOversizedParagraph(t *testing.T) {
	const limit = 20
	messages := Batch([]string{strings.Repeat("z", 5*limit)}, limit, "\n\n")

	if len(messages) != 6 {
		t.Fatalf("expected 6 chunks, got %d: %v", len(messages), messages)
	}
	total := 0
	for i, msg := range messages {
		if len(msg) >= limit {
			t.Errorf("chunk %d has length %d, want < %d", i, len(msg), limit)
		}
		total += len(msg)
	}
	if total != 5*limit {
		t.Errorf("expected %d characters in total, got %d", 5*limit, total)
	}
}

func TestBatchForcedCutKeepsMarkupWhole(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"tag", strings.Repeat("a", 10) + `<a href=u>x</a>`, []string{strings.Repeat("a", 10), `<a href=u>x</a>`}},
		{"element", strings.Repeat("a", 10) + "<b>x</b>bb", []string{strings.Repeat("a", 10), "<b>x</b>bb"}},
		{"entity", strings.Repeat("a", 13) + "&amp;b", []string{strings.Repeat("a", 13), "&amp;b"}},
		{"plain", strings.Repeat("a", 20), []string{strings.Repeat("a", 15), strings.Repeat("a", 5)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Batch([]string{tt.in}, 16, "\n\n")
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Batch mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestBatchCountsRunesNotBytes(t *testing.T) {
	p := strings.Repeat("ж", 30)
	messages := Batch([]string{p}, 20, "\n\n")
	if len(messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(messages))
	}
	for _, msg := range messages {
		if !utf8.ValidString(msg) {
			t.Errorf("message cut inside a rune: %q", msg)
		}
	}
	if utf8.RuneCountInString(messages[0]) != 19 || utf8.RuneCountInString(messages[1]) != 11 {
		t.Errorf("unexpected chunk sizes: %v", messages)
	}
}

func TestSendBatched(t *testing.T) {
	var sent []string
	send := func(ctx context.Context, text string) error {
		sent = append(sent, text)
		return nil
	}

	opts := BatchOptions{CharLimit: 20, Delimiter: "\n\n", Delay: time.Millisecond}
	if err := SendBatched(context.Background(), send, []string{"short one", "another short"}, opts); err != nil {
		t.Fatalf("SendBatched returned error: %v", err)
	}
	if diff := cmp.Diff([]string{"short one", "another short"}, sent); diff != "" {
		t.Errorf("sent mismatch (-want +got):\n%s", diff)
	}
}

func TestSendBatchedStopsOnError(t *testing.T) {
	calls := 0
	sendErr := errors.New("transport down")
	send := func(ctx context.Context, text string) error {
		calls++
		return sendErr
	}

	err := SendBatched(context.Background(), send, []string{"short one", "another short"}, BatchOptions{CharLimit: 20})
	if !errors.Is(err, sendErr) {
		t.Errorf("expected send error, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 send call, got %d", calls)
	}
}

func TestSendBatchedHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	send := func(ctx context.Context, text string) error {
		calls++
		cancel()
		return nil
	}

	err := SendBatched(ctx, send, []string{"short one", "another short"}, BatchOptions{CharLimit: 20, Delay: time.Hour})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 send before cancellation, got %d", calls)
	}
}
