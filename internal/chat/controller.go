// Package chat drives the visible conversation: it bootstraps a chat session
// once per authenticated identity, sends user messages and collects replies.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"OMSChat/internal/api"
	"OMSChat/internal/message"
	"OMSChat/internal/session"
)

// User-visible notices
const (
	NoticeBootstrapFailed = "Failed to start chat. Please try again."
	NoticeSendFailed      = "Failed to send message. Please try again."
	NoticeLoginRequired   = "Please log in to send messages."
)

var (
	// ErrBusy is returned when a request is already outstanding
	ErrBusy = errors.New("a request is already in flight")

	// ErrEmptyMessage is returned for blank submissions
	ErrEmptyMessage = errors.New("message is empty")

	// ErrNotAuthenticated is returned when the identity is missing or incomplete
	ErrNotAuthenticated = errors.New("not authenticated")
)

// State is the controller's lifecycle position
type State int

const (
	Idle State = iota
	Bootstrapping
	Ready
	Sending
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Bootstrapping:
		return "bootstrapping"
	case Ready:
		return "ready"
	case Sending:
		return "sending"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Backend is the chat half of the API client
type Backend interface {
	InitiateChat(ctx context.Context, tenantCode, sessionID, userID, accessToken string) (api.InitiateResult, error)
	SendMessage(ctx context.Context, content, sessionID, userID, tenantCode, accessToken string) (api.SendResult, error)
}

// Session is the part of the session manager the controller reads from
type Session interface {
	Identity() session.Identity
	AdoptSessionID(sessionID string) error
}

// Notifier shows transient messages to the user
type Notifier interface {
	Error(text string)
}

// Options tunes a Controller
type Options struct {
	Timeout      time.Duration // per request; zero means no timeout
	RequireToken bool          // treat an identity without access token as incomplete
}

// Controller owns the conversation state
type Controller struct {
	mu           sync.Mutex
	messages     []message.Message
	state        State
	inFlight     bool
	err          error
	bootstrapped string // identity tuple the current conversation was started for
	epoch        uint64 // bumped by Reset so late replies are dropped

	backend  Backend
	session  Session
	notifier Notifier
	logger   *slog.Logger
	opts     Options
}

// New creates a controller in the Idle state
func New(backend Backend, sess Session, notifier Notifier, logger *slog.Logger, opts Options) *Controller {
	return &Controller{
		backend:  backend,
		session:  sess,
		notifier: notifier,
		logger:   logger,
		opts:     opts,
	}
}

// Sync starts the chat session if the identity is complete and no bootstrap
// has run for it yet. A failed bootstrap is not retried for the same identity.
func (c *Controller) Sync(ctx context.Context) error {
	id := c.session.Identity()
	if !id.Complete(c.opts.RequireToken) {
		return nil
	}
	key := identityKey(id)

	c.mu.Lock()
	if c.bootstrapped == key {
		c.mu.Unlock()
		return nil
	}
	if c.inFlight {
		c.mu.Unlock()
		return ErrBusy
	}
	c.inFlight = true
	c.state = Bootstrapping
	c.bootstrapped = key
	epoch := c.epoch
	c.mu.Unlock()

	c.logger.Info("starting chat session", "user_id", id.UserID, "tenant", id.TenantCode, "session_id", id.SessionID)

	reqCtx, cancel := c.requestContext(ctx)
	defer cancel()
	res, err := c.backend.InitiateChat(reqCtx, id.TenantCode, id.SessionID, id.UserID, id.AccessToken)

	c.mu.Lock()
	if c.epoch != epoch {
		c.mu.Unlock()
		return nil
	}
	c.inFlight = false
	c.state = Ready
	if err != nil {
		c.err = err
		c.mu.Unlock()
		c.logger.Error("failed to initiate chat", "error", err)
		c.notifier.Error(NoticeBootstrapFailed)
		return err
	}
	c.err = nil
	c.messages = append(c.messages, message.New(res.Message, message.SenderBot, message.TypeText))
	c.mu.Unlock()

	if res.SessionID != "" && res.SessionID != id.SessionID {
		if err := c.session.AdoptSessionID(res.SessionID); err != nil {
			c.logger.Warn("failed to store new chat session id", "error", err)
		}
		id.SessionID = res.SessionID
		c.mu.Lock()
		if c.epoch == epoch {
			c.bootstrapped = identityKey(id)
		}
		c.mu.Unlock()
	}

	return nil
}

// NeedsSync reports whether Sync would start a bootstrap request
func (c *Controller) NeedsSync() bool {
	id := c.session.Identity()
	if !id.Complete(c.opts.RequireToken) {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bootstrapped != identityKey(id) && !c.inFlight
}

// Send appends the user's message right away, then asks the backend for a
// reply. On failure the user message stays in place.
func (c *Controller) Send(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyMessage
	}

	id := c.session.Identity()
	if !id.Complete(c.opts.RequireToken) {
		c.notifier.Error(NoticeLoginRequired)
		return ErrNotAuthenticated
	}

	c.mu.Lock()
	if c.inFlight {
		c.mu.Unlock()
		return ErrBusy
	}
	c.messages = append(c.messages, message.New(text, message.SenderUser, message.TypeText))
	c.inFlight = true
	c.state = Sending
	epoch := c.epoch
	c.mu.Unlock()

	reqCtx, cancel := c.requestContext(ctx)
	defer cancel()
	res, err := c.backend.SendMessage(reqCtx, text, id.SessionID, id.UserID, id.TenantCode, id.AccessToken)

	c.mu.Lock()
	if c.epoch != epoch {
		c.mu.Unlock()
		return nil
	}
	c.inFlight = false
	c.state = Ready
	if err != nil {
		c.err = err
		c.mu.Unlock()
		c.logger.Error("failed to send message", "error", err)
		c.notifier.Error(NoticeSendFailed)
		return err
	}
	c.err = nil
	c.messages = append(c.messages, message.New(res.Response, message.SenderBot, res.Type))
	c.mu.Unlock()

	return nil
}

// Reset drops the conversation, e.g. after logout. A request still in flight
// completes but its result is discarded.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = nil
	c.state = Idle
	c.inFlight = false
	c.err = nil
	c.bootstrapped = ""
	c.epoch++
}

// Messages returns the conversation in display order
func (c *Controller) Messages() []message.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]message.Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// IsLoading reports whether a bootstrap or send request is outstanding
func (c *Controller) IsLoading() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inFlight
}

// CanSubmit reports whether the input surface should accept a message
func (c *Controller) CanSubmit() bool {
	if !c.session.Identity().Authenticated() {
		return false
	}
	return !c.IsLoading()
}

// State returns the current lifecycle state
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Err returns the error from the most recent request, if it failed
func (c *Controller) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *Controller) requestContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.opts.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.opts.Timeout)
}

func identityKey(id session.Identity) string {
	return strings.Join([]string{id.UserID, id.TenantCode, id.SessionID, id.AccessToken}, "\x00")
}
