package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"OMSChat/internal/api"
	"OMSChat/internal/message"
	"OMSChat/internal/session"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
	)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type recordingNotifier struct {
	mu     sync.Mutex
	errors []string
}

func (n *recordingNotifier) Error(text string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.errors = append(n.errors, text)
}

func (n *recordingNotifier) Errors() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.errors...)
}

type fakeSession struct {
	mu      sync.Mutex
	id      session.Identity
	adopted []string
}

func (s *fakeSession) Identity() session.Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

func (s *fakeSession) AdoptSessionID(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.adopted = append(s.adopted, id)
	s.id.SessionID = id
	return nil
}

type fakeBackend struct {
	mu            sync.Mutex
	initiate      api.InitiateResult
	initiateErr   error
	initiateCalls int
	sendErr       error
	sent          []string
	gate          chan struct{} // when set, SendMessage blocks until closed
}

func (b *fakeBackend) InitiateChat(ctx context.Context, tenantCode, sessionID, userID, accessToken string) (api.InitiateResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.initiateCalls++
	return b.initiate, b.initiateErr
}

func (b *fakeBackend) SendMessage(ctx context.Context, content, sessionID, userID, tenantCode, accessToken string) (api.SendResult, error) {
	if b.gate != nil {
		select {
		case <-b.gate:
		case <-ctx.Done():
			return api.SendResult{}, ctx.Err()
		}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sent = append(b.sent, content)
	if b.sendErr != nil {
		return api.SendResult{}, b.sendErr
	}
	return api.SendResult{Response: "re: " + content, Type: message.TypeText}, nil
}

func fullIdentity() session.Identity {
	return session.Identity{UserID: "u1", TenantCode: "acme", SessionID: "s1", AccessToken: "t1"}
}

func newTestController(backend Backend, sess Session, n Notifier) *Controller {
	return New(backend, sess, n, discardLogger(), Options{Timeout: time.Second, RequireToken: true})
}

func TestSyncBootstrapsOncePerIdentity(t *testing.T) {
	backend := &fakeBackend{initiate: api.InitiateResult{Message: "Welcome!", SessionID: "s2"}}
	sess := &fakeSession{id: fullIdentity()}
	c := newTestController(backend, sess, &recordingNotifier{})

	assert.Equal(t, Idle, c.State())
	assert.True(t, c.NeedsSync())
	require.NoError(t, c.Sync(context.Background()))
	assert.False(t, c.NeedsSync())
	require.NoError(t, c.Sync(context.Background()))

	assert.Equal(t, 1, backend.initiateCalls)
	assert.Equal(t, Ready, c.State())
	assert.False(t, c.IsLoading())
	assert.Equal(t, []string{"s2"}, sess.adopted)

	msgs := c.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "Welcome!", msgs[0].Content)
	assert.Equal(t, message.SenderBot, msgs[0].Sender)
}

func TestSyncSkipsIncompleteIdentity(t *testing.T) {
	backend := &fakeBackend{}
	sess := &fakeSession{id: session.Identity{UserID: "u1", TenantCode: "acme", SessionID: "s1"}}
	c := newTestController(backend, sess, &recordingNotifier{})

	assert.False(t, c.NeedsSync())
	require.NoError(t, c.Sync(context.Background()))
	assert.Equal(t, 0, backend.initiateCalls)
	assert.Equal(t, Idle, c.State())
}

func TestSyncRunsAgainForNewIdentity(t *testing.T) {
	backend := &fakeBackend{initiate: api.InitiateResult{Message: "Hi"}}
	sess := &fakeSession{id: fullIdentity()}
	c := newTestController(backend, sess, &recordingNotifier{})

	require.NoError(t, c.Sync(context.Background()))
	sess.mu.Lock()
	sess.id.UserID = "u2"
	sess.mu.Unlock()
	require.NoError(t, c.Sync(context.Background()))

	assert.Equal(t, 2, backend.initiateCalls)
}

func TestSyncFailureNotifiesAndBecomesReady(t *testing.T) {
	backend := &fakeBackend{initiateErr: errors.New("HTTP 503")}
	n := &recordingNotifier{}
	c := newTestController(backend, &fakeSession{id: fullIdentity()}, n)

	require.Error(t, c.Sync(context.Background()))
	assert.Equal(t, Ready, c.State())
	assert.False(t, c.IsLoading())
	assert.Error(t, c.Err())
	assert.Equal(t, []string{NoticeBootstrapFailed}, n.Errors())
	assert.Empty(t, c.Messages())

	// no automatic retry for the same identity
	require.NoError(t, c.Sync(context.Background()))
	assert.Equal(t, 1, backend.initiateCalls)
}

func TestSendOrdersMessages(t *testing.T) {
	backend := &fakeBackend{}
	c := newTestController(backend, &fakeSession{id: fullIdentity()}, &recordingNotifier{})

	for _, text := range []string{"one", "two", "three"} {
		require.NoError(t, c.Send(context.Background(), text))
	}

	var got []string
	for _, m := range c.Messages() {
		got = append(got, fmt.Sprintf("%s:%s", m.Sender, m.Content))
	}
	assert.Equal(t, []string{
		"user:one", "bot:re: one",
		"user:two", "bot:re: two",
		"user:three", "bot:re: three",
	}, got)
	assert.Equal(t, []string{"one", "two", "three"}, backend.sent)
}

func TestSendRejectsBlankText(t *testing.T) {
	backend := &fakeBackend{}
	n := &recordingNotifier{}
	c := newTestController(backend, &fakeSession{id: fullIdentity()}, n)

	assert.ErrorIs(t, c.Send(context.Background(), "   \n\t"), ErrEmptyMessage)
	assert.Empty(t, c.Messages())
	assert.Empty(t, backend.sent)
	assert.Empty(t, n.Errors())
}

func TestSendRequiresCompleteIdentity(t *testing.T) {
	backend := &fakeBackend{}
	n := &recordingNotifier{}
	c := newTestController(backend, &fakeSession{id: session.Identity{TenantCode: "acme"}}, n)

	assert.ErrorIs(t, c.Send(context.Background(), "hello"), ErrNotAuthenticated)
	assert.Empty(t, c.Messages())
	assert.Empty(t, backend.sent)
	assert.Equal(t, []string{NoticeLoginRequired}, n.Errors())
	assert.Equal(t, Idle, c.State())
	assert.False(t, c.CanSubmit())
}

func TestSendFailureKeepsUserMessage(t *testing.T) {
	backend := &fakeBackend{sendErr: errors.New("boom")}
	n := &recordingNotifier{}
	c := newTestController(backend, &fakeSession{id: fullIdentity()}, n)

	require.Error(t, c.Send(context.Background(), "where is my order?"))

	msgs := c.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, message.SenderUser, msgs[0].Sender)
	assert.Equal(t, []string{NoticeSendFailed}, n.Errors())
	assert.False(t, c.IsLoading())
	assert.Equal(t, Ready, c.State())
}

func TestSendRejectsWhileInFlight(t *testing.T) {
	backend := &fakeBackend{gate: make(chan struct{})}
	c := newTestController(backend, &fakeSession{id: fullIdentity()}, &recordingNotifier{})

	done := make(chan error, 1)
	go func() { done <- c.Send(context.Background(), "first") }()

	require.Eventually(t, c.IsLoading, time.Second, 5*time.Millisecond)
	assert.Equal(t, Sending, c.State())
	assert.False(t, c.CanSubmit())
	assert.ErrorIs(t, c.Send(context.Background(), "second"), ErrBusy)

	close(backend.gate)
	require.NoError(t, <-done)

	assert.Len(t, c.Messages(), 2)
	assert.False(t, c.IsLoading())
	assert.True(t, c.CanSubmit())
}

func TestSendTimesOut(t *testing.T) {
	backend := &fakeBackend{gate: make(chan struct{})}
	defer close(backend.gate)
	n := &recordingNotifier{}
	c := New(backend, &fakeSession{id: fullIdentity()}, n, discardLogger(), Options{Timeout: 20 * time.Millisecond, RequireToken: true})

	err := c.Send(context.Background(), "hello")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, c.IsLoading())
	assert.Equal(t, []string{NoticeSendFailed}, n.Errors())
}

func TestResetDropsLateReply(t *testing.T) {
	backend := &fakeBackend{gate: make(chan struct{})}
	c := newTestController(backend, &fakeSession{id: fullIdentity()}, &recordingNotifier{})

	done := make(chan error, 1)
	go func() { done <- c.Send(context.Background(), "hello") }()
	require.Eventually(t, c.IsLoading, time.Second, 5*time.Millisecond)

	c.Reset()
	close(backend.gate)
	require.NoError(t, <-done)

	assert.Empty(t, c.Messages())
	assert.Equal(t, Idle, c.State())
}

func TestSendHTTP500AgainstBackend(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	r := chi.NewRouter()
	r.Post(api.PathChat, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		mu.Unlock()
		http.Error(w, `{"detail":"internal"}`, http.StatusInternalServerError)
	})
	srv := httptest.NewServer(r)
	defer srv.Close()

	hc := &http.Client{}
	defer hc.CloseIdleConnections()
	client, err := api.New(srv.URL, discardLogger(), api.WithHTTPClient(hc))
	require.NoError(t, err)

	n := &recordingNotifier{}
	c := newTestController(client, &fakeSession{id: fullIdentity()}, n)

	err = c.Send(context.Background(), "status of order 7")
	var se *api.StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusInternalServerError, se.Status)

	assert.Equal(t, []string{NoticeSendFailed}, n.Errors())
	assert.False(t, c.IsLoading())
	msgs := c.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "status of order 7", msgs[0].Content)
	mu.Lock()
	assert.Equal(t, 1, calls)
	mu.Unlock()
}
