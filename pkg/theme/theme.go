// Package theme stores the global light/dark preference.
package theme

import (
	"context"
	"errors"
	"fmt"

	"ChatPane/models"
	"ChatPane/pkg/kv"
)

// Key is the global storage entry for the theme.
const Key = "theme"

var ErrInvalidTheme = errors.New("theme must be 'light' or 'dark'")

type Preferences struct {
	kv  kv.Store
	def models.Theme
}

// New falls back to def when nothing valid is stored.
func New(store kv.Store, def models.Theme) *Preferences {
	if !def.Valid() {
		def = models.ThemeLight
	}
	return &Preferences{kv: store, def: def}
}

func (p *Preferences) Get(ctx context.Context) (models.Theme, error) {
	raw, ok, err := p.kv.Get(ctx, Key)
	if err != nil {
		return p.def, fmt.Errorf("load theme: %w", err)
	}
	if t := models.Theme(raw); ok && t.Valid() {
		return t, nil
	}
	return p.def, nil
}

func (p *Preferences) Set(ctx context.Context, t models.Theme) error {
	if !t.Valid() {
		return ErrInvalidTheme
	}
	return p.kv.Set(ctx, Key, string(t))
}

func (p *Preferences) Toggle(ctx context.Context) (models.Theme, error) {
	cur, err := p.Get(ctx)
	if err != nil {
		return cur, err
	}
	next := models.ThemeDark
	if cur == models.ThemeDark {
		next = models.ThemeLight
	}
	return next, p.Set(ctx, next)
}
