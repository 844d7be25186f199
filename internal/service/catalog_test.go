package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalogService(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.catalog.CreateAgency(ctx, "  ")
	assert.ErrorIs(t, err, ErrValidation)

	deq, err := env.catalog.CreateAgency(ctx, "State DEQ")
	require.NoError(t, err)
	corps, err := env.catalog.CreateAgency(ctx, "Army Corps")
	require.NoError(t, err)

	_, err = env.catalog.CreateAgency(ctx, "State DEQ")
	assert.ErrorIs(t, err, ErrValidation)

	storm, err := env.catalog.CreatePermitType(ctx, deq.ID, PermitTypeInput{Name: "Stormwater", Price: 450, ExternalID: "17"})
	require.NoError(t, err)
	assert.Equal(t, "State DEQ", storm.AgencyName)

	_, err = env.catalog.CreatePermitType(ctx, corps.ID, PermitTypeInput{Name: "Section 404", Price: 1200})
	require.NoError(t, err)

	_, err = env.catalog.CreatePermitType(ctx, deq.ID, PermitTypeInput{Name: "Negative", Price: -5})
	assert.ErrorIs(t, err, ErrValidation)
	_, err = env.catalog.CreatePermitType(ctx, "missing", PermitTypeInput{Name: "Orphan", Price: 5})
	assert.ErrorIs(t, err, ErrNotFound)

	all, err := env.catalog.ListPermitTypes(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	deqOnly, err := env.catalog.ListPermitTypes(ctx, deq.ID)
	require.NoError(t, err)
	require.Len(t, deqOnly, 1)
	assert.Equal(t, "Stormwater", deqOnly[0].Name)

	_, err = env.catalog.ListPermitTypes(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	agencies, err := env.catalog.ListAgencies(ctx)
	require.NoError(t, err)
	require.Len(t, agencies, 2)
	assert.Equal(t, "Army Corps", agencies[0].Name)
	assert.Len(t, agencies[0].PermitTypes, 1)

	price := 500.0
	updated, err := env.catalog.UpdatePermitType(ctx, storm.ID, PermitTypeUpdate{Price: &price})
	require.NoError(t, err)
	assert.Equal(t, 500.0, updated.Price)
	assert.Equal(t, "Stormwater", updated.Name)

	blank := " "
	_, err = env.catalog.UpdatePermitType(ctx, storm.ID, PermitTypeUpdate{Name: &blank})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = env.catalog.UpdatePermitType(ctx, "missing", PermitTypeUpdate{Price: &price})
	assert.ErrorIs(t, err, ErrNotFound)

	got, err := env.catalog.GetPermitType(ctx, storm.ID)
	require.NoError(t, err)
	assert.Equal(t, 500.0, got.Price)
}
