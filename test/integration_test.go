package test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"ecoquote/internal/db"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createQuotationRow(t *testing.T, pool *db.Pool) db.Quotation {
	t.Helper()
	custom := "Floodplain permit"
	id := ulid.Make().String()
	q, err := pool.Queries.CreateQuotation(context.Background(), db.CreateQuotationParams{
		ID:          id,
		Name:        "Integration Client",
		Email:       "client@example.com",
		ServiceType: "permit_acquisition",
		Description: "Barn extension",
		Status:      "pending",
		PermitRequests: []db.CreatePermitRequestParams{
			{ID: ulid.Make().String(), QuotationID: id, CustomName: &custom},
		},
	})
	require.NoError(t, err)
	return q
}

func TestQueries_ResolveQuotationOnce(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	q := createQuotationRow(t, pool)

	sent, err := pool.Queries.MarkQuotationSent(ctx, q.ID, "nonce-1", time.Now().Add(time.Hour).Truncate(time.Second))
	require.NoError(t, err)
	assert.Equal(t, "sent", sent.Status)

	const workers = 8
	var wg sync.WaitGroup
	var mu sync.Mutex
	wins, losses := 0, 0
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := pool.Queries.ResolveQuotation(ctx, db.ResolveQuotationParams{
				ResponseID:  ulid.Make().String(),
				QuotationID: q.ID,
				Nonce:       "nonce-1",
				Action:      "approve",
				Status:      "approved",
				RemoteAddr:  "10.0.0.1",
			})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				wins++
			} else if errors.Is(err, pgx.ErrNoRows) {
				losses++
			} else {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	assert.Equal(t, workers-1, losses)

	final, err := pool.Queries.GetQuotationByID(ctx, q.ID)
	require.NoError(t, err)
	assert.Equal(t, "approved", final.Status)
	assert.Nil(t, final.ResponseNonce)
	assert.NotNil(t, final.RespondedAt)

	resp, err := pool.Queries.GetResponseByQuotationID(ctx, q.ID)
	require.NoError(t, err)
	assert.Equal(t, "approve", resp.Action)

	// A terminal quotation cannot be sent again
	_, err = pool.Queries.MarkQuotationSent(ctx, q.ID, "nonce-2", time.Now().Add(time.Hour))
	assert.ErrorIs(t, err, pgx.ErrNoRows)
}

func TestQueries_AnsweredQuotationIsFrozen(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	q := createQuotationRow(t, pool)

	require.NoError(t, pool.Queries.SetQuotationEstimate(ctx, q.ID, nil, 100))
	before, err := pool.Queries.GetQuotationByID(ctx, q.ID)
	require.NoError(t, err)

	// Edits on an open quotation bump updated_at together with the change
	custom := "Grading permit"
	pr, err := pool.Queries.CreatePermitRequest(ctx, db.CreatePermitRequestParams{
		ID: ulid.Make().String(), QuotationID: q.ID, CustomName: &custom,
	})
	require.NoError(t, err)
	touched, err := pool.Queries.GetQuotationByID(ctx, q.ID)
	require.NoError(t, err)
	assert.True(t, touched.UpdatedAt.After(before.UpdatedAt))
	assert.Len(t, touched.PermitRequests, 2)

	_, err = pool.Queries.MarkQuotationSent(ctx, q.ID, "nonce-1", time.Now().Add(time.Hour))
	require.NoError(t, err)
	_, err = pool.Queries.ResolveQuotation(ctx, db.ResolveQuotationParams{
		ResponseID: ulid.Make().String(), QuotationID: q.ID, Nonce: "nonce-1", Action: "approve", Status: "approved",
	})
	require.NoError(t, err)

	estimateID := "est-late"
	assert.ErrorIs(t, pool.Queries.SetQuotationEstimate(ctx, q.ID, &estimateID, 450), pgx.ErrNoRows)
	_, err = pool.Queries.CreatePermitRequest(ctx, db.CreatePermitRequestParams{
		ID: ulid.Make().String(), QuotationID: q.ID, CustomName: &custom,
	})
	assert.ErrorIs(t, err, pgx.ErrNoRows)
	assert.ErrorIs(t, pool.Queries.DeletePermitRequest(ctx, q.ID, pr.ID), pgx.ErrNoRows)

	final, err := pool.Queries.GetQuotationByID(ctx, q.ID)
	require.NoError(t, err)
	require.NotNil(t, final.Amount)
	assert.Equal(t, 100.0, *final.Amount)
	assert.Nil(t, final.EstimateID)
	assert.Len(t, final.PermitRequests, 2)
}

func TestQueries_SupersededNonce(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	q := createQuotationRow(t, pool)

	_, err := pool.Queries.MarkQuotationSent(ctx, q.ID, "old", time.Now().Add(time.Hour))
	require.NoError(t, err)
	_, err = pool.Queries.MarkQuotationSent(ctx, q.ID, "new", time.Now().Add(time.Hour))
	require.NoError(t, err)

	_, err = pool.Queries.ResolveQuotation(ctx, db.ResolveQuotationParams{
		ResponseID: ulid.Make().String(), QuotationID: q.ID, Nonce: "old", Action: "reject", Status: "rejected",
	})
	assert.ErrorIs(t, err, pgx.ErrNoRows)

	current, err := pool.Queries.GetQuotationByID(ctx, q.ID)
	require.NoError(t, err)
	assert.Equal(t, "sent", current.Status)
}

func TestQueries_Catalog(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()

	agency, err := pool.Queries.CreateAgency(ctx, ulid.Make().String(), "State Water Board")
	require.NoError(t, err)

	pt, err := pool.Queries.CreatePermitType(ctx, db.CreatePermitTypeParams{
		ID: ulid.Make().String(), AgencyID: agency.ID, Name: "NPDES", Price: 2500, TimeEstimate: "90 days", ExternalID: "42",
	})
	require.NoError(t, err)

	price := 2750.0
	updated, err := pool.Queries.UpdatePermitType(ctx, db.UpdatePermitTypeParams{ID: pt.ID, Price: &price})
	require.NoError(t, err)
	assert.Equal(t, 2750.0, updated.Price)
	assert.Equal(t, "NPDES", updated.Name)

	_, err = pool.Queries.UpdatePermitType(ctx, db.UpdatePermitTypeParams{ID: "missing", Price: &price})
	assert.ErrorIs(t, err, pgx.ErrNoRows)

	list, err := pool.Queries.ListPermitTypes(ctx, &agency.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "State Water Board", list[0].AgencyName)
}
