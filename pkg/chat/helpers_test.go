package chat

import (
	"context"
	"errors"
	"io"
	"iter"
	"log/slog"
	"sync"
	"testing"

	"ChatPane/models"
	"ChatPane/pkg/kv"
	"ChatPane/pkg/services"
)

var errRemote = errors.New("remote exploded")

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestStore(t *testing.T) (*Store, *kv.Memory) {
	t.Helper()
	mem := kv.NewMemory()
	return NewStore(mem, "user-1", discardLogger()), mem
}

// fragments yields frags in order, then err if non-nil.
func fragments(err error, frags ...string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for _, f := range frags {
			if !yield(f, nil) {
				return
			}
		}
		if err != nil {
			yield("", err)
		}
	}
}

type fakeCompleter struct {
	mu      sync.Mutex
	frags   []string
	err     error
	calls   int
	history []services.ChatTurn
	prompt  string
	// gate, when set, blocks the stream until closed
	gate chan struct{}
}

func (f *fakeCompleter) StreamChat(ctx context.Context, history []services.ChatTurn, prompt string) iter.Seq2[string, error] {
	f.mu.Lock()
	f.calls++
	f.history = history
	f.prompt = prompt
	frags, err, gate := f.frags, f.err, f.gate
	f.mu.Unlock()
	return func(yield func(string, error) bool) {
		if gate != nil {
			<-gate
		}
		fragments(err, frags...)(yield)
	}
}

type fakeTranscriber struct {
	text string
	err  error
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error) {
	return f.text, f.err
}

func contents(c models.Conversation) []string {
	out := make([]string, len(c.Messages))
	for i, m := range c.Messages {
		out[i] = string(m.Role) + ":" + m.Content
	}
	return out
}

func mustCreate(t *testing.T, s *Store, seed models.Message) string {
	t.Helper()
	id, err := s.Create(seed)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	return id
}
