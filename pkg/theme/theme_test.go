package theme

import (
	"context"
	"testing"

	"ChatPane/models"
	"ChatPane/pkg/kv"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultAndSet(t *testing.T) {
	ctx := context.Background()
	mem := kv.NewMemory()
	p := New(mem, models.ThemeDark)

	got, err := p.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.ThemeDark, got)

	require.NoError(t, p.Set(ctx, models.ThemeLight))
	got, err = p.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.ThemeLight, got)

	assert.ErrorIs(t, p.Set(ctx, "sepia"), ErrInvalidTheme)
}

func TestGarbageFallsBackToDefault(t *testing.T) {
	ctx := context.Background()
	mem := kv.NewMemory()
	require.NoError(t, mem.Set(ctx, Key, "neon"))
	got, err := New(mem, "").Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.ThemeLight, got)
}

func TestToggle(t *testing.T) {
	ctx := context.Background()
	p := New(kv.NewMemory(), models.ThemeLight)

	next, err := p.Toggle(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.ThemeDark, next)

	next, err = p.Toggle(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.ThemeLight, next)
}
