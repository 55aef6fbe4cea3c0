package chat

import (
	"context"
	"log/slog"
	"sync"

	"ChatPane/models"
	"ChatPane/pkg/kv"
)

// Registry holds the live Session of every signed-in identity. A session is
// loaded from storage when the identity signs in and dropped from memory when
// it signs out.
type Registry struct {
	mu          sync.Mutex
	sessions    map[string]*Session
	kv          kv.Store
	completer   Completer
	transcriber Transcriber
	log         *slog.Logger
}

func NewRegistry(store kv.Store, completer Completer, transcriber Transcriber, logger *slog.Logger) *Registry {
	return &Registry{
		sessions:    map[string]*Session{},
		kv:          store,
		completer:   completer,
		transcriber: transcriber,
		log:         logger,
	}
}

// Open returns the identity's session, loading its conversations on first use.
func (r *Registry) Open(ctx context.Context, identity models.Identity) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[identity.ID]; ok {
		return s, nil
	}
	store := NewStore(r.kv, identity.ID, r.log)
	if err := store.Load(ctx); err != nil {
		return nil, err
	}
	s := NewSession(identity, store, r.completer, r.transcriber, r.log)
	r.sessions[identity.ID] = s
	r.log.Info("session opened", "identity", identity.ID, "conversations", store.Len())
	return s, nil
}

func (r *Registry) Get(identityID string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[identityID]
	return s, ok
}

// Close clears the identity's in-memory conversations. Persisted state is kept
// for the next sign-in.
func (r *Registry) Close(identityID string) {
	r.mu.Lock()
	s, ok := r.sessions[identityID]
	delete(r.sessions, identityID)
	r.mu.Unlock()
	if ok {
		s.store.Clear()
		r.log.Info("session closed", "identity", identityID)
	}
}
