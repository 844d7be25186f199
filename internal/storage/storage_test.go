package storage

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStorage_RoundTrip(t *testing.T) {
	s, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	key := QuotationPDFKey("q-1", "2026-01-02T03:04:05Z")
	require.NoError(t, s.Put(ctx, key, strings.NewReader("%PDF-1.3 body")))

	rc, err := s.Get(ctx, key)
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	rc.Close()
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.3 body", string(data))

	require.NoError(t, s.DeletePrefix(ctx, QuotationPDFPrefix("q-1")))
	_, err = s.Get(ctx, key)
	assert.ErrorIs(t, err, ErrNotFound)

	// Deleting something absent is not an error
	assert.NoError(t, s.Delete(ctx, key))
}

func TestLocalStorage_StaysInsideBaseDir(t *testing.T) {
	base := t.TempDir()
	s, err := NewLocalStorage(base)
	require.NoError(t, err)

	full, err := s.resolve("../../etc/passwd")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(full, base))

	_, err = s.resolve("")
	assert.Error(t, err)
}

func TestQuotationPDFKey(t *testing.T) {
	a := QuotationPDFKey("q-1", "v1")
	b := QuotationPDFKey("q-1", "v2")

	assert.NotEqual(t, a, b)
	assert.True(t, strings.HasPrefix(a, "quotations/q-1/"))
	assert.True(t, strings.HasSuffix(a, ".pdf"))
	assert.Equal(t, a, QuotationPDFKey("q-1", "v1"))
}
