// Package identity is the mock sign-in gate: any login yields the same
// fixed identity, which is remembered in global storage until sign-out.
package identity

import (
	"context"
	"encoding/json"
	"fmt"

	"ChatPane/models"
	"ChatPane/pkg/kv"
)

// UserKey is the global storage entry holding the signed-in identity.
const UserKey = "chat_user"

// Mock is the identity every login resolves to.
var Mock = models.Identity{
	ID:        "mock-user",
	Name:      "Demo User",
	Email:     "demo.user@example.com",
	AvatarURL: "https://www.gravatar.com/avatar/?d=mp",
}

type Provider struct {
	kv kv.Store
}

func NewProvider(store kv.Store) *Provider {
	return &Provider{kv: store}
}

// Login performs no credential check and records the mock identity.
func (p *Provider) Login(ctx context.Context) (models.Identity, error) {
	data, err := json.Marshal(Mock)
	if err != nil {
		return models.Identity{}, err
	}
	if err := p.kv.Set(ctx, UserKey, string(data)); err != nil {
		return models.Identity{}, fmt.Errorf("save identity: %w", err)
	}
	return Mock, nil
}

// Current returns the remembered identity, if any.
func (p *Provider) Current(ctx context.Context) (models.Identity, bool, error) {
	raw, ok, err := p.kv.Get(ctx, UserKey)
	if err != nil || !ok {
		return models.Identity{}, false, err
	}
	var id models.Identity
	if err := json.Unmarshal([]byte(raw), &id); err != nil {
		return models.Identity{}, false, fmt.Errorf("decode identity: %w", err)
	}
	return id, true, nil
}

func (p *Provider) Logout(ctx context.Context) error {
	return p.kv.Delete(ctx, UserKey)
}
