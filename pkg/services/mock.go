package services

import (
	"context"
	"fmt"
	"iter"
	"math/rand/v2"
	"strings"
	"time"
)

// LocalCompleter answers without any network call. It stands in for Gemini
// when the API is disabled so the streaming path still behaves end to end.
type LocalCompleter struct {
	Delay time.Duration
}

func NewLocalCompleter() *LocalCompleter {
	return &LocalCompleter{Delay: 40 * time.Millisecond}
}

func LocalReply(history []ChatTurn, prompt string) string {
	topic := strings.TrimSpace(prompt)
	if topic == "" {
		topic = "your message"
	}
	b := &strings.Builder{}
	fmt.Fprintf(b, "You said: %s\n\n", truncate(topic, 200))
	fmt.Fprintf(b, "This reply comes from the offline assistant (%d earlier turns in this chat). ", len(history))
	fmt.Fprintln(b, "Set IS_GEMINI_ENABLED=true and GEMINI_API_KEY to talk to the real model.")
	return b.String()
}

func (l *LocalCompleter) StreamChat(ctx context.Context, history []ChatTurn, prompt string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		full := []rune(LocalReply(history, prompt))
		for i := 0; i < len(full); {
			if err := ctx.Err(); err != nil {
				yield("", err)
				return
			}
			step := 16 + rand.IntN(32)
			if i+step > len(full) {
				step = len(full) - i
			}
			if !yield(string(full[i:i+step]), nil) {
				return
			}
			i += step
			if l.Delay > 0 {
				sleepWithContext(ctx, l.Delay)
			}
		}
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 3 {
		return string(r[:n])
	}
	return string(r[:n-3]) + "..."
}
