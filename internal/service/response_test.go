package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"ecoquote/internal/auth"
	"ecoquote/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sentQuotation(t *testing.T, env *testEnv) (*model.Quotation, *SendResult) {
	t.Helper()
	ctx := context.Background()
	q, err := env.svc.Create(ctx, validInput(PermitRequestInput{CustomName: strPtr("Grading permit")}))
	require.NoError(t, err)
	res, err := env.svc.Send(ctx, q.ID)
	require.NoError(t, err)
	return q, res
}

func TestVerifyToken_NotFound(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	q, _ := sentQuotation(t, env)

	foreign, err := auth.NewResponseSigner("someone-else").Issue(q.ID, model.ActionApprove, "n", time.Now().Add(time.Hour))
	require.NoError(t, err)
	missing, err := env.signer.Issue("no-such-quotation", model.ActionApprove, "n", time.Now().Add(time.Hour))
	require.NoError(t, err)
	wrongNonce, err := env.signer.Issue(q.ID, model.ActionApprove, "not-the-nonce", time.Now().Add(time.Hour))
	require.NoError(t, err)

	for name, token := range map[string]string{
		"garbage":         "definitely-not-a-token",
		"foreign key":     foreign,
		"missing row":     missing,
		"unknown nonce":   wrongNonce,
		"truncated token": wrongNonce[:len(wrongNonce)-4],
	} {
		t.Run(name, func(t *testing.T) {
			_, err := env.svc.VerifyToken(ctx, token)
			assert.ErrorIs(t, err, ErrNotFound)

			_, err = env.svc.SubmitResponse(ctx, token, "127.0.0.1")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}

	_, err = env.svc.VerifyToken(ctx, "   ")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestVerifyToken_Success(t *testing.T) {
	env := newTestEnv(t)
	q, res := sentQuotation(t, env)

	v, err := env.svc.VerifyToken(context.Background(), res.RejectToken)
	require.NoError(t, err)
	assert.Equal(t, model.ActionReject, v.Action)
	assert.Equal(t, q.ID, v.QuotationID)
	require.Len(t, v.Quotation.PermitRequests, 1)
	assert.Equal(t, "Grading permit", v.Quotation.PermitRequests[0].DisplayName())

	// Verification is read-only
	got, err := env.svc.Get(context.Background(), q.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusSent, got.Status)
}

func TestSubmitResponse_OnceThenAlreadyResolved(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	q, res := sentQuotation(t, env)

	status, err := env.svc.SubmitResponse(ctx, res.ApproveToken, "203.0.113.9")
	require.NoError(t, err)
	assert.Equal(t, model.StatusApproved, status)

	for _, token := range []string{res.ApproveToken, res.RejectToken} {
		_, err = env.svc.SubmitResponse(ctx, token, "203.0.113.9")
		assert.ErrorIs(t, err, ErrAlreadyResolved)

		_, err = env.svc.VerifyToken(ctx, token)
		var resolved *AlreadyResolvedError
		require.True(t, errors.As(err, &resolved))
		assert.Equal(t, model.StatusApproved, resolved.Status)
		assert.Equal(t, q.ID, resolved.Quotation.ID)
	}

	got, err := env.svc.Get(ctx, q.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusApproved, got.Status)
	assert.NotNil(t, got.RespondedAt)

	resp, err := env.svc.GetResponse(ctx, q.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ActionApprove, resp.Action)
	assert.Equal(t, "203.0.113.9", resp.RemoteAddr)

	assert.Contains(t, env.bus.Types("staff:quotations"), "quotation.responded")
}

func TestSubmitResponse_TerminalQuotationUnchanged(t *testing.T) {
	for _, status := range []string{"approved", "rejected"} {
		t.Run(status, func(t *testing.T) {
			env := newTestEnv(t)
			ctx := context.Background()
			q, res := sentQuotation(t, env)
			env.store.SetStatus(q.ID, status)

			for _, token := range []string{res.ApproveToken, res.RejectToken} {
				_, err := env.svc.VerifyToken(ctx, token)
				assert.ErrorIs(t, err, ErrAlreadyResolved)
				_, err = env.svc.SubmitResponse(ctx, token, "")
				assert.ErrorIs(t, err, ErrAlreadyResolved)
			}

			got, err := env.svc.Get(ctx, q.ID)
			require.NoError(t, err)
			assert.Equal(t, model.Status(status), got.Status)
		})
	}
}

func TestSubmitResponse_ConcurrentSameToken(t *testing.T) {
	env := newTestEnv(t)
	_, res := sentQuotation(t, env)

	const attempts = 32
	var wins, resolved atomic.Int32
	var wg sync.WaitGroup
	start := make(chan struct{})

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := env.svc.SubmitResponse(context.Background(), res.ApproveToken, "")
			switch {
			case err == nil:
				wins.Add(1)
			case errors.Is(err, ErrAlreadyResolved):
				resolved.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
	assert.Equal(t, int32(attempts-1), resolved.Load())
}

func TestSubmitResponse_ApproveAndRejectRace(t *testing.T) {
	env := newTestEnv(t)
	q, res := sentQuotation(t, env)

	results := make(chan error, 2)
	var wg sync.WaitGroup
	for _, token := range []string{res.ApproveToken, res.RejectToken} {
		wg.Add(1)
		go func(token string) {
			defer wg.Done()
			_, err := env.svc.SubmitResponse(context.Background(), token, "")
			results <- err
		}(token)
	}
	wg.Wait()
	close(results)

	var wins int
	for err := range results {
		if err == nil {
			wins++
		} else {
			assert.ErrorIs(t, err, ErrAlreadyResolved)
		}
	}
	assert.Equal(t, 1, wins)

	got, err := env.svc.Get(context.Background(), q.ID)
	require.NoError(t, err)
	assert.True(t, got.Status.Terminal())
}

func TestSubmitResponse_Expired(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	q, res := sentQuotation(t, env)

	env.svc.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

	_, err := env.svc.VerifyToken(ctx, res.ApproveToken)
	assert.ErrorIs(t, err, ErrExpired)
	_, err = env.svc.SubmitResponse(ctx, res.ApproveToken, "")
	assert.ErrorIs(t, err, ErrExpired)

	got, err := env.svc.Get(ctx, q.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusSent, got.Status)

	// A new send issues working links again
	env.svc.now = time.Now
	again, err := env.svc.Send(ctx, q.ID)
	require.NoError(t, err)
	_, err = env.svc.VerifyToken(ctx, again.ApproveToken)
	assert.NoError(t, err)
}

func TestSend_SupersedesEarlierLinks(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	q, first := sentQuotation(t, env)

	second, err := env.svc.Send(ctx, q.ID)
	require.NoError(t, err)

	_, err = env.svc.VerifyToken(ctx, first.ApproveToken)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = env.svc.SubmitResponse(ctx, first.ApproveToken, "")
	assert.ErrorIs(t, err, ErrNotFound)

	status, err := env.svc.SubmitResponse(ctx, second.RejectToken, "")
	require.NoError(t, err)
	assert.Equal(t, model.StatusRejected, status)
}

func TestQuotationLifecycle(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	stormwater := env.seedPermitType(t, "Stormwater", 450)

	q, err := env.svc.Create(ctx, CreateQuotationInput{
		Name:        "Dana Ruiz",
		Email:       "dana@example.com",
		ServiceType: model.ServicePermitAcquisition,
		Description: "Barn expansion",
		PermitRequests: []PermitRequestInput{
			{PermitTypeID: &stormwater},
			{CustomName: strPtr("Floodplain development")},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, q.Status)
	assert.Len(t, q.PermitRequests, 2)

	sent, err := env.svc.Send(ctx, q.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusSent, sent.Quotation.Status)

	v, err := env.svc.VerifyToken(ctx, sent.ApproveToken)
	require.NoError(t, err)
	assert.Equal(t, model.ActionApprove, v.Action)

	status, err := env.svc.SubmitResponse(ctx, sent.ApproveToken, "")
	require.NoError(t, err)
	assert.Equal(t, model.StatusApproved, status)

	_, err = env.svc.VerifyToken(ctx, sent.ApproveToken)
	assert.ErrorIs(t, err, ErrAlreadyResolved)

	assert.Equal(t, []string{
		"quotation.created",
		"quotation.sent",
		"quotation.responded",
	}, env.bus.Types("quotation:"+q.ID))
}
