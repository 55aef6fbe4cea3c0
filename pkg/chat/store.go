package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"ChatPane/models"
	"ChatPane/pkg/kv"

	"github.com/google/uuid"
)

const persistTimeout = 5 * time.Second

// StorageKey is the key-value entry holding identityID's conversations.
func StorageKey(identityID string) string {
	return "chat_conversations_" + identityID
}

// Store is the conversation collection of one identity. Newest conversations
// come first; updates never reorder. Every mutation writes the whole
// collection back to storage.
type Store struct {
	mu            sync.Mutex
	kv            kv.Store
	key           string
	conversations []models.Conversation
	activeID      string
	closed        bool
	newID         func() string
	log           *slog.Logger
}

func NewStore(store kv.Store, identityID string, logger *slog.Logger) *Store {
	return &Store{
		kv:    store,
		key:   StorageKey(identityID),
		newID: func() string { return "conv-" + uuid.NewString() },
		log:   logger.With("component", "store", "identity", identityID),
	}
}

// Load replaces the in-memory collection with the persisted one.
// A missing entry loads as an empty collection.
func (s *Store) Load(ctx context.Context) error {
	raw, ok, err := s.kv.Get(ctx, s.key)
	if err != nil {
		return fmt.Errorf("load conversations: %w", err)
	}
	var convs []models.Conversation
	if ok && raw != "" {
		if err := json.Unmarshal([]byte(raw), &convs); err != nil {
			return fmt.Errorf("decode conversations: %w", err)
		}
	}
	s.mu.Lock()
	s.conversations = convs
	s.activeID = ""
	s.closed = false
	s.mu.Unlock()
	return nil
}

// Clear drops the in-memory collection without touching storage. The store
// then rejects mutations with ErrClosed until the next Load, so a holder of a
// stale reference cannot overwrite the persisted collection.
func (s *Store) Clear() {
	s.mu.Lock()
	s.conversations = nil
	s.activeID = ""
	s.closed = true
	s.mu.Unlock()
}

// Create starts a conversation from seed, prepends it and makes it active.
func (s *Store) Create(seed models.Message) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", ErrClosed
	}
	conv := models.Conversation{
		ID:       s.newID(),
		Title:    models.TitleFrom(seed.Content),
		Messages: []models.Message{seed},
	}
	s.conversations = slices.Insert(s.conversations, 0, conv)
	s.activeID = conv.ID
	s.persistLocked()
	return conv.ID, nil
}

func (s *Store) Append(id string, msg models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	i := s.indexLocked(id)
	if i < 0 {
		return ErrNotFound
	}
	c := &s.conversations[i]
	c.Messages = append(c.Messages, msg)
	s.persistLocked()
	return nil
}

// UpdateLast replaces the trailing message with mutator(last) when it is a
// model message. Any other tail leaves the conversation untouched.
func (s *Store) UpdateLast(id string, mutator func(models.Message) models.Message) error {
	return s.replaceLast(id, models.RoleModel, mutator)
}

// replaceLastUser is the user-role twin of UpdateLast, used to resolve a
// transcription placeholder. Resolving the opening message re-derives the title.
func (s *Store) replaceLastUser(id string, mutator func(models.Message) models.Message) error {
	return s.replaceLast(id, models.RoleUser, mutator)
}

func (s *Store) replaceLast(id string, role models.Role, mutator func(models.Message) models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	i := s.indexLocked(id)
	if i < 0 {
		return ErrNotFound
	}
	c := &s.conversations[i]
	n := len(c.Messages)
	if n == 0 || c.Messages[n-1].Role != role {
		return nil
	}
	next := mutator(c.Messages[n-1])
	next.Role = role
	msgs := slices.Clone(c.Messages)
	msgs[n-1] = next
	c.Messages = msgs
	if role == models.RoleUser && n == 1 {
		c.Title = models.TitleFrom(next.Content)
	}
	s.persistLocked()
	return nil
}

// Delete removes a conversation, clearing the active selection if it pointed there.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	i := s.indexLocked(id)
	if i < 0 {
		return ErrNotFound
	}
	s.conversations = slices.Delete(s.conversations, i, i+1)
	if s.activeID == id {
		s.activeID = ""
	}
	s.persistLocked()
	return nil
}

// SetActive selects a conversation; "" clears the selection.
func (s *Store) SetActive(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if id != "" && s.indexLocked(id) < 0 {
		return ErrNotFound
	}
	s.activeID = id
	return nil
}

func (s *Store) ActiveID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeID
}

func (s *Store) Active() (models.Conversation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexLocked(s.activeID)
	if i < 0 {
		return models.Conversation{}, false
	}
	return s.conversations[i].Clone(), true
}

func (s *Store) Get(id string) (models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexLocked(id)
	if i < 0 {
		return models.Conversation{}, ErrNotFound
	}
	return s.conversations[i].Clone(), nil
}

func (s *Store) List() []models.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Conversation, len(s.conversations))
	for i, c := range s.conversations {
		out[i] = c.Clone()
	}
	return out
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conversations)
}

func (s *Store) indexLocked(id string) int {
	if id == "" {
		return -1
	}
	return slices.IndexFunc(s.conversations, func(c models.Conversation) bool { return c.ID == id })
}

// persistLocked writes the whole collection. Failures are logged, never
// returned: the in-memory state stays authoritative until the next write.
func (s *Store) persistLocked() {
	convs := s.conversations
	if convs == nil {
		convs = []models.Conversation{}
	}
	data, err := json.Marshal(convs)
	if err != nil {
		s.log.Error("encode conversations", "error", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := s.kv.Set(ctx, s.key, string(data)); err != nil {
		s.log.Error("persist conversations", "error", err)
	}
}
