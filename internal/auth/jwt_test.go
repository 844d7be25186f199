package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"ecoquote/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTConfig_IssueAndParse(t *testing.T) {
	cfg := NewJWTConfig("secret")

	token, expiresAt, err := cfg.Issue("staff-1", model.RoleAdmin)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(SessionTTL), expiresAt, 5*time.Second)

	claims, err := cfg.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, "staff-1", claims.Subject)
	assert.Equal(t, model.RoleAdmin, claims.Role)
}

func TestJWTConfig_RejectsExpiredAndForeignTokens(t *testing.T) {
	cfg := NewJWTConfig("secret")
	cfg.now = func() time.Time { return time.Now().Add(-48 * time.Hour) }
	expired, _, err := cfg.Issue("staff-1", model.RoleEmployee)
	require.NoError(t, err)

	cfg.now = time.Now
	_, err = cfg.Parse(expired)
	assert.ErrorIs(t, err, ErrInvalidToken)

	other := NewJWTConfig("another-secret")
	foreign, _, err := other.Issue("staff-1", model.RoleEmployee)
	require.NoError(t, err)
	_, err = cfg.Parse(foreign)
	assert.ErrorIs(t, err, ErrInvalidToken)

	// Response links are signed with the same primitives but never act as bearer tokens
	link, err := NewResponseSigner("secret").Issue("q-1", model.ActionApprove, "n-1", time.Now().Add(time.Hour))
	require.NoError(t, err)
	_, err = cfg.Parse(link)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestMiddleware(t *testing.T) {
	cfg := NewJWTConfig("secret")
	token, _, err := cfg.Issue("staff-7", model.RoleManager)
	require.NoError(t, err)

	var gotID string
	var gotRole model.Role
	h := cfg.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotID = GetStaffID(r.Context())
		gotRole = GetRole(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	t.Run("anonymous passes", func(t *testing.T) {
		gotID = ""
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, gotID)
	})

	t.Run("valid bearer", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "staff-7", gotID)
		assert.Equal(t, model.RoleManager, gotRole)
	})

	t.Run("malformed header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Token abc")
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("bad signature", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+token+"x")
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestRequireStaff(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })
	h := RequireStaff(model.RoleManager, model.RoleAdmin)(ok)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(WithStaff(req.Context(), "s1", model.RoleEmployee))
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(WithStaff(req.Context(), "s1", model.RoleAdmin))
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestResponseSigner(t *testing.T) {
	signer := NewResponseSigner("links")
	exp := time.Now().Add(time.Hour).Truncate(time.Second)

	token, err := signer.Issue("q-1", model.ActionReject, "nonce-1", exp)
	require.NoError(t, err)

	parsed, err := signer.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, "q-1", parsed.QuotationID)
	assert.Equal(t, model.ActionReject, parsed.Action)
	assert.Equal(t, "nonce-1", parsed.Nonce)
	assert.True(t, exp.Equal(parsed.ExpiresAt))

	// Expired links still parse; the caller decides what expiry means
	old, err := signer.Issue("q-1", model.ActionApprove, "nonce-2", time.Now().Add(-time.Hour))
	require.NoError(t, err)
	_, err = signer.Parse(old)
	assert.NoError(t, err)

	_, err = NewResponseSigner("other").Parse(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = signer.Parse("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)

	staffToken, _, err := NewJWTConfig("links").Issue("staff-1", model.RoleAdmin)
	require.NoError(t, err)
	_, err = signer.Parse(staffToken)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
