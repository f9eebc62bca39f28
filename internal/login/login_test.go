package login

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"OMSChat/internal/api"
	"OMSChat/internal/session"
	"OMSChat/internal/store"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type recordingNotifier struct {
	errors []string
}

func (n *recordingNotifier) Error(text string) {
	n.errors = append(n.errors, text)
}

type stubRemote struct{}

func (stubRemote) VerifySession(context.Context, session.Identity) (session.Identity, error) {
	return session.Identity{}, errors.New("not used")
}

func (stubRemote) Logout(context.Context, session.Identity) error { return nil }

func newBackend(t *testing.T, status int, body map[string]string) *api.Client {
	t.Helper()
	r := chi.NewRouter()
	r.Post(api.PathLogin, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(body)
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	c, err := api.New(srv.URL, discardLogger(), api.WithRequireToken(true))
	require.NoError(t, err)
	return c
}

func newManager(t *testing.T, kv store.KV) *session.Manager {
	t.Helper()
	m, err := session.NewManager(kv, stubRemote{}, "", discardLogger())
	require.NoError(t, err)
	return m
}

func TestSubmitSuccess(t *testing.T) {
	kv := store.NewMemory()
	mgr := newManager(t, kv)
	n := &recordingNotifier{}
	backend := newBackend(t, http.StatusOK, map[string]string{"userId": "u1", "sessionId": "s1", "accessToken": "t1"})

	err := NewFlow(backend, mgr, n, discardLogger()).Submit(context.Background(), Credentials{TenantCode: "acme", Username: "u", Password: "p"})
	require.NoError(t, err)

	assert.Empty(t, n.errors)
	assert.True(t, mgr.IsAuthenticated())
	assert.Equal(t, session.Identity{UserID: "u1", TenantCode: "acme", SessionID: "s1", AccessToken: "t1"}, mgr.Identity())

	for key, want := range map[string]string{
		session.KeyUserID:      "u1",
		session.KeyTenantCode:  "acme",
		session.KeySessionID:   "s1",
		session.KeyAccessToken: "t1",
	} {
		got, ok, err := kv.Get(key)
		require.NoError(t, err)
		assert.True(t, ok, key)
		assert.Equal(t, want, got, key)
	}
}

func TestSubmitShowsServerDetail(t *testing.T) {
	mgr := newManager(t, store.NewMemory())
	n := &recordingNotifier{}
	backend := newBackend(t, http.StatusUnauthorized, map[string]string{"detail": "User is locked"})

	err := NewFlow(backend, mgr, n, discardLogger()).Submit(context.Background(), Credentials{TenantCode: "acme", Username: "u", Password: "p"})
	require.Error(t, err)

	assert.Equal(t, []string{"User is locked"}, n.errors)
	assert.False(t, mgr.IsAuthenticated())
}

func TestSubmitMissingFieldsFallsBack(t *testing.T) {
	mgr := newManager(t, store.NewMemory())
	n := &recordingNotifier{}
	backend := newBackend(t, http.StatusOK, map[string]string{"userId": "u1"})

	err := NewFlow(backend, mgr, n, discardLogger()).Submit(context.Background(), Credentials{TenantCode: "acme", Username: "u", Password: "p"})
	require.Error(t, err)

	assert.Equal(t, []string{NoticeInvalidCredentials}, n.errors)
	assert.False(t, mgr.IsAuthenticated())
}

func TestSubmitSuccessStatusWithDetailShowsDetail(t *testing.T) {
	mgr := newManager(t, store.NewMemory())
	n := &recordingNotifier{}
	backend := newBackend(t, http.StatusOK, map[string]string{"detail": "Account locked"})

	err := NewFlow(backend, mgr, n, discardLogger()).Submit(context.Background(), Credentials{TenantCode: "acme", Username: "u", Password: "p"})
	require.Error(t, err)

	assert.Equal(t, []string{"Account locked"}, n.errors)
	assert.False(t, mgr.IsAuthenticated())
}

func TestSubmitNetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()
	backend, err := api.New(url, discardLogger())
	require.NoError(t, err)

	mgr := newManager(t, store.NewMemory())
	n := &recordingNotifier{}

	err = NewFlow(backend, mgr, n, discardLogger()).Submit(context.Background(), Credentials{TenantCode: "acme", Username: "u", Password: "p"})
	require.Error(t, err)
	assert.Equal(t, []string{NoticeConnectionFailed}, n.errors)
	assert.False(t, mgr.IsAuthenticated())
}

type failingSession struct{}

func (failingSession) Login(string, string, string, string) error {
	return errors.New("disk full")
}

func TestSubmitStoreFailureNotifies(t *testing.T) {
	n := &recordingNotifier{}
	backend := newBackend(t, http.StatusOK, map[string]string{"userId": "u1", "sessionId": "s1", "accessToken": "t1"})

	err := NewFlow(backend, failingSession{}, n, discardLogger()).Submit(context.Background(), Credentials{TenantCode: "acme", Username: "u", Password: "p"})
	require.Error(t, err)
	assert.Equal(t, []string{NoticeSaveFailed}, n.errors)
}

func TestSubmitRequiresAllFields(t *testing.T) {
	kv := store.NewMemory()
	mgr := newManager(t, kv)
	n := &recordingNotifier{}

	err := NewFlow(nil, mgr, n, discardLogger()).Submit(context.Background(), Credentials{TenantCode: " ", Username: "u", Password: "p"})
	assert.ErrorIs(t, err, ErrMissingField)
	assert.Len(t, n.errors, 1)
	assert.Equal(t, 0, kv.Len())
}
