package chat

import (
	"context"
	"iter"
	"log/slog"
	"strings"
	"sync/atomic"

	"ChatPane/models"
	"ChatPane/pkg/services"
)

const (
	// TranscribingLabel marks a voice message whose transcript is pending.
	TranscribingLabel = "Transcribing audio..."
	// TranscriptionErrorMessage replaces the label when transcription fails.
	TranscriptionErrorMessage = "Sorry, I couldn't transcribe the audio. Please try again."
)

type Completer interface {
	StreamChat(ctx context.Context, history []services.ChatTurn, prompt string) iter.Seq2[string, error]
}

type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error)
}

// Hooks let a transport follow a send as it progresses. Nil fields are skipped.
type Hooks struct {
	Conversation func(id string)
	Transcript   func(text string)
	Delta        func(fragment string)
}

type SendResult struct {
	ConversationID string
	Transcript     string
	// TranscriptionErr is set when the audio could not be transcribed; no
	// model call was made in that case.
	TranscriptionErr error
	Outcome          Outcome
}

// Session is the chat state of one signed-in identity.
type Session struct {
	Identity models.Identity

	store       *Store
	reconciler  *Reconciler
	completer   Completer
	transcriber Transcriber
	processing  atomic.Bool
	log         *slog.Logger
}

func NewSession(identity models.Identity, store *Store, completer Completer, transcriber Transcriber, logger *slog.Logger) *Session {
	logger = logger.With("identity", identity.ID)
	return &Session{
		Identity:    identity,
		store:       store,
		reconciler:  NewReconciler(store, logger),
		completer:   completer,
		transcriber: transcriber,
		log:         logger.With("component", "session"),
	}
}

func (s *Session) Store() *Store { return s.store }

// Processing reports whether a send is in flight.
func (s *Session) Processing() bool { return s.processing.Load() }

func (s *Session) acquire() (release func(), err error) {
	if !s.processing.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}
	return func() { s.processing.Store(false) }, nil
}

// SendText appends text to the active conversation (creating one if none is
// active) and streams the model reply into a placeholder after it.
func (s *Session) SendText(ctx context.Context, text string, hooks Hooks) (SendResult, error) {
	return s.SendTextTo(ctx, "", text, hooks)
}

// SendTextTo is SendText that first selects conversationID, unless it is
// empty. The selection only happens once the send has been admitted, so a
// send rejected with ErrBusy leaves the active conversation alone.
func (s *Session) SendTextTo(ctx context.Context, conversationID, text string, hooks Hooks) (SendResult, error) {
	release, err := s.acquire()
	if err != nil {
		return SendResult{}, err
	}
	defer release()

	text = strings.TrimSpace(text)
	if text == "" {
		return SendResult{}, ErrEmptyMessage
	}
	if conversationID != "" {
		if err := s.store.SetActive(conversationID); err != nil {
			return SendResult{}, err
		}
	}

	id, err := s.submit(models.UserMessage(text))
	if err != nil {
		return SendResult{}, err
	}
	if hooks.Conversation != nil {
		hooks.Conversation(id)
	}
	res := SendResult{ConversationID: id}
	res.Outcome, err = s.reply(ctx, id, text, hooks)
	return res, err
}

// SendAudio records a voice message, transcribes it, and sends the
// transcript like SendText. A failed transcription resolves the message to
// TranscriptionErrorMessage and skips the model call.
func (s *Session) SendAudio(ctx context.Context, audio models.Audio, hooks Hooks) (SendResult, error) {
	release, err := s.acquire()
	if err != nil {
		return SendResult{}, err
	}
	defer release()

	if len(audio.Data) == 0 {
		return SendResult{}, ErrEmptyMessage
	}

	placeholder := models.Message{Role: models.RoleUser, Content: TranscribingLabel, Audio: &audio}
	id, err := s.submit(placeholder)
	if err != nil {
		return SendResult{}, err
	}
	if hooks.Conversation != nil {
		hooks.Conversation(id)
	}
	res := SendResult{ConversationID: id}

	text, terr := s.transcriber.Transcribe(context.WithoutCancel(ctx), audio.Data, audio.MIMEType)
	text = strings.TrimSpace(text)
	if terr == nil && text == "" {
		terr = ErrEmptyMessage
	}
	if terr != nil {
		s.log.Error("transcription failed", "conversation", id, "error", terr)
		res.TranscriptionErr = terr
		return res, s.store.replaceLastUser(id, setContent(TranscriptionErrorMessage))
	}
	if err := s.store.replaceLastUser(id, setContent(text)); err != nil {
		return res, err
	}
	res.Transcript = text
	if hooks.Transcript != nil {
		hooks.Transcript(text)
	}
	res.Outcome, err = s.reply(ctx, id, text, hooks)
	return res, err
}

// submit places the user message in the active conversation, or in a new one.
func (s *Session) submit(msg models.Message) (string, error) {
	if id := s.store.ActiveID(); id != "" {
		if err := s.store.Append(id, msg); err != nil {
			return "", err
		}
		return id, nil
	}
	return s.store.Create(msg)
}

func (s *Session) reply(ctx context.Context, id, prompt string, hooks Hooks) (Outcome, error) {
	if err := s.store.Append(id, models.ModelPlaceholder()); err != nil {
		return Outcome{}, err
	}
	conv, err := s.store.Get(id)
	if err != nil {
		return Outcome{}, err
	}
	// history excludes the in-flight prompt and its placeholder
	history := BuildHistory(conv.Messages[:len(conv.Messages)-2])

	// a send runs to completion even if the caller goes away
	stream := s.completer.StreamChat(context.WithoutCancel(ctx), history, prompt)
	return s.reconciler.Run(id, stream, hooks.Delta), nil
}
