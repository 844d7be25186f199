package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"ecoquote/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSession_Lifecycle(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "session.yaml")

	s, err := LoadSession(path)
	require.NoError(t, err)
	assert.False(t, s.Valid(time.Now()))

	s.Start("tok-1", model.Staff{ID: "s1", Email: "a@example.com", Role: model.RoleAdmin}, time.Now().Add(time.Hour))
	require.NoError(t, s.Save())

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	loaded, err := LoadSession(path)
	require.NoError(t, err)
	assert.True(t, loaded.Valid(time.Now()))
	assert.Equal(t, "tok-1", loaded.Token)
	assert.Equal(t, model.RoleAdmin, loaded.User.Role)
	assert.False(t, loaded.Valid(loaded.ExpiresAt.Add(time.Second)))

	require.NoError(t, loaded.Clear())
	assert.Empty(t, loaded.Token)
	_, err = os.Stat(path)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestSession_ExpiredIsClearedOnLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.yaml")
	s, err := LoadSession(path)
	require.NoError(t, err)
	s.Start("old", model.Staff{ID: "s1"}, time.Now().Add(-time.Minute))
	require.NoError(t, s.Save())

	loaded, err := LoadSession(path)
	require.NoError(t, err)
	assert.Empty(t, loaded.Token)
	_, err = os.Stat(path)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestSession_Corrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.yaml")
	require.NoError(t, os.WriteFile(path, []byte("token: [unterminated"), 0600))
	_, err := LoadSession(path)
	assert.Error(t, err)
}

func TestDefaultSessionPath(t *testing.T) {
	t.Setenv(SessionEnv, "/tmp/custom-session.yaml")
	assert.Equal(t, "/tmp/custom-session.yaml", DefaultSessionPath())
}

func TestClient_LoginAndList(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/api/staff/login":
			var body map[string]string
			json.NewDecoder(r.Body).Decode(&body)
			assert.Equal(t, "a@example.com", body["email"])
			w.Write([]byte(`{"token":"tok","expiresAt":"2030-01-01T00:00:00Z","user":{"id":"s1","name":"A","email":"a@example.com","role":"employee"}}`))
		case "/api/quotations":
			assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
			assert.Equal(t, "sent", r.URL.Query().Get("status"))
			w.Write([]byte(`{"quotations":[{"id":"q1","status":"sent","permitRequests":[]}]}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	ctx := context.Background()
	c := New(srv.URL+"/api/", "")
	login, err := c.Login(ctx, "a@example.com", "pw")
	require.NoError(t, err)
	assert.Equal(t, "tok", login.Token)
	assert.Equal(t, 2030, login.ExpiresAt.Year())
	assert.Equal(t, model.RoleEmployee, login.User.Role)

	c.Token = login.Token
	list, err := c.ListQuotations(ctx, "sent", 0, 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, model.StatusSent, list[0].Status)
}

func TestClient_UpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/custom-quotations/response":
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusConflict)
			w.Write([]byte(`{"error":"quotation already approved","code":"already_resolved","status":"approved","quotation":{"id":"q1","status":"approved","permitRequests":[]}}`))
		default:
			w.WriteHeader(http.StatusBadGateway)
			w.Write([]byte("bad gateway"))
		}
	}))
	defer srv.Close()

	c := New(srv.URL, "")
	_, err := c.SubmitResponse(context.Background(), "tok")
	var upstream *UpstreamError
	require.True(t, errors.As(err, &upstream))
	assert.Equal(t, http.StatusConflict, upstream.StatusCode)
	assert.Equal(t, "already_resolved", upstream.Code)
	assert.Equal(t, model.StatusApproved, upstream.Status)
	require.NotNil(t, upstream.Quotation)
	assert.Equal(t, "q1", upstream.Quotation.ID)

	_, err = c.DownloadPDF(context.Background(), "q1")
	require.True(t, errors.As(err, &upstream))
	assert.Equal(t, http.StatusBadGateway, upstream.StatusCode)
	assert.Equal(t, "bad gateway", upstream.Message)
}
