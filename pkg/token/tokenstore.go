package tokenstore

import (
	"sync"
	"time"
)

// Revocations remembers logged-out token ids until the token would have
// expired anyway. In-memory only; a restart forgets revocations.
type Revocations struct {
	mu      sync.Mutex
	revoked map[string]time.Time
	now     func() time.Time
}

func New() *Revocations {
	return &Revocations{revoked: map[string]time.Time{}, now: time.Now}
}

func (r *Revocations) Revoke(jti string, expiresAt time.Time) {
	if jti == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.revoked[jti] = expiresAt
	r.pruneNoLock()
}

func (r *Revocations) IsRevoked(jti string) bool {
	if jti == "" {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.revoked[jti]
	return ok
}

func (r *Revocations) pruneNoLock() {
	now := r.now()
	for jti, exp := range r.revoked {
		if !exp.IsZero() && now.After(exp) {
			delete(r.revoked, jti)
		}
	}
}
