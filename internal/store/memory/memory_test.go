package memory

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sundayezeilo/shortlink/internal/shortener"
	"github.com/sundayezeilo/shortlink/internal/store/storetest"
)

func TestStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) shortener.Store {
		return New()
	})
}

func TestStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := New()

	link, err := s.Create(ctx, shortener.LinkDraft{OriginalURL: "https://example.com", Slug: "abc123"})
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, link.ID, "missing ids are assigned")

	link.OriginalURL = "https://changed.example"
	got, err := s.GetBySlug(ctx, "abc123")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com", got.OriginalURL)
}
