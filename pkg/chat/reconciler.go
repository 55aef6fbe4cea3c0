package chat

import (
	"errors"
	"iter"
	"log/slog"
	"strings"

	"ChatPane/models"
)

// StreamErrorMessage replaces the placeholder when the stream fails.
const StreamErrorMessage = "Sorry, I encountered an error. Please try again."

// StreamState tracks the placeholder message's content.
// Empty -> Streaming -> {Complete | Failed}; both terminal states are final.
type StreamState int

const (
	StateEmpty StreamState = iota
	StateStreaming
	StateComplete
	StateFailed
)

func (s StreamState) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateStreaming:
		return "streaming"
	case StateComplete:
		return "complete"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Outcome is how one stream ended.
type Outcome struct {
	State   StreamState
	Content string
	Err     error
}

type Reconciler struct {
	store *Store
	log   *slog.Logger
}

func NewReconciler(store *Store, logger *slog.Logger) *Reconciler {
	return &Reconciler{store: store, log: logger.With("component", "reconciler")}
}

// Run folds stream into the trailing model message of conversation id. The
// caller must already have appended the empty placeholder. Each fragment is
// added to a running buffer and the placeholder is replaced with the whole
// buffer, so content only ever grows. On error the placeholder becomes
// StreamErrorMessage; there is no retry and no rollback of what was shown.
// onDelta, when non-nil, sees every applied fragment.
func (r *Reconciler) Run(id string, stream iter.Seq2[string, error], onDelta func(string)) Outcome {
	var (
		buf   strings.Builder
		frags int
	)
	for frag, err := range stream {
		if err != nil {
			return r.fail(id, buf.String(), err)
		}
		if frag == "" {
			continue
		}
		buf.WriteString(frag)
		content := buf.String()
		if err := r.store.UpdateLast(id, setContent(content)); err != nil {
			// conversation vanished mid-stream; nothing left to write into
			r.log.Warn("stream target gone", "conversation", id, "error", err)
			return Outcome{State: StateFailed, Content: content, Err: err}
		}
		frags++
		if onDelta != nil {
			onDelta(frag)
		}
	}
	r.log.Debug("stream complete", "conversation", id, "fragments", frags, "bytes", buf.Len())
	return Outcome{State: StateComplete, Content: buf.String()}
}

func (r *Reconciler) fail(id, partial string, cause error) Outcome {
	r.log.Error("stream failed", "conversation", id, "partial_bytes", len(partial), "error", cause)
	if err := r.store.UpdateLast(id, setContent(StreamErrorMessage)); err != nil && !errors.Is(err, ErrNotFound) {
		r.log.Error("write stream error", "conversation", id, "error", err)
	}
	return Outcome{State: StateFailed, Content: StreamErrorMessage, Err: cause}
}

func setContent(content string) func(models.Message) models.Message {
	return func(m models.Message) models.Message {
		m.Content = content
		return m
	}
}
