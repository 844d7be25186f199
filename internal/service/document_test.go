package service

import (
	"bytes"
	"context"
	"io"
	"testing"

	"ecoquote/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderPDF(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.svc.RenderPDF(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	q, _ := sentQuotation(t, env)
	doc, err := env.svc.RenderPDF(ctx, q.ID)
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", doc.ContentType)
	assert.Equal(t, "quotation-"+q.ID+".pdf", doc.Filename)
	assert.True(t, bytes.HasPrefix(doc.Content, []byte("%PDF")))
}

func TestRenderPDF_CachesPerVersion(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	artifacts, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	env.svc.SetArtifacts(artifacts)

	q, err := env.svc.Create(ctx, validInput())
	require.NoError(t, err)
	current, err := env.svc.Get(ctx, q.ID)
	require.NoError(t, err)

	first, err := env.svc.RenderPDF(ctx, q.ID)
	require.NoError(t, err)

	version, err := documentVersion(current)
	require.NoError(t, err)
	rc, err := artifacts.Get(ctx, storage.QuotationPDFKey(q.ID, version))
	require.NoError(t, err)
	rc.Close()

	second, err := env.svc.RenderPDF(ctx, q.ID)
	require.NoError(t, err)
	assert.Equal(t, first.Content, second.Content)
}

func TestRenderPDF_CatalogEditInvalidatesCache(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	artifacts, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	env.svc.SetArtifacts(artifacts)

	ptID := env.seedPermitType(t, "Stormwater", 450)
	q, err := env.svc.Create(ctx, validInput(PermitRequestInput{PermitTypeID: &ptID}))
	require.NoError(t, err)

	first, err := env.svc.RenderPDF(ctx, q.ID)
	require.NoError(t, err)

	price := 9999.0
	_, err = env.catalog.UpdatePermitType(ctx, ptID, PermitTypeUpdate{Price: &price})
	require.NoError(t, err)

	current, err := env.svc.Get(ctx, q.ID)
	require.NoError(t, err)
	require.Len(t, current.PermitRequests, 1)
	require.NotNil(t, current.PermitRequests[0].PermitType)
	assert.Equal(t, 9999.0, current.PermitRequests[0].PermitType.Price)

	second, err := env.svc.RenderPDF(ctx, q.ID)
	require.NoError(t, err)
	assert.NotEqual(t, first.Content, second.Content)

	// Only the rendering of the current version is kept
	version, err := documentVersion(current)
	require.NoError(t, err)
	rc, err := artifacts.Get(ctx, storage.QuotationPDFKey(q.ID, version))
	require.NoError(t, err)
	cached, err := io.ReadAll(rc)
	rc.Close()
	require.NoError(t, err)
	assert.Equal(t, second.Content, cached)
}
