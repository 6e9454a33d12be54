package catalog

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"goalbreaker/internal/domain"
)

func TestEmbeddedCatalog(t *testing.T) {
	r, err := NewRegistry()
	require.NoError(t, err)

	models := r.Models()
	require.Len(t, models, 4)
	assert.Equal(t, "google/gemini-2.0-flash-lite-preview-02-05:free", models[0].ID)
	assert.Equal(t, 1000000, models[0].ContextLength)

	pool := r.FallbackPool()
	require.Len(t, pool, 4)
	for _, id := range pool {
		assert.True(t, r.Has(id), id)
	}
	assert.Equal(t, []string{models[0].ID}, r.Defaults())

	m, err := r.Model("deepseek/deepseek-r1:free")
	require.NoError(t, err)
	assert.Equal(t, "DeepSeek", m.Provider)

	_, err = r.Model("nope")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestParse(t *testing.T) {
	r, err := Parse([]byte("models:\n  - id: a\n    name: A\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, r.Defaults(), "first model when no defaults")
	assert.Empty(t, r.FallbackPool())

	_, err = Parse([]byte("models:\n  - id: a\n  - id: a\n"))
	assert.Error(t, err)

	_, err = Parse([]byte("models:\n  - name: nameless\n"))
	assert.Error(t, err)

	_, err = Parse([]byte("models: [unterminated"))
	assert.Error(t, err)
}
