// Package api is the HTTP client for the order-management assistant backend.
// Every call is a single request/response exchange with no retries.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"OMSChat/internal/message"
	"OMSChat/internal/session"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Endpoint paths relative to the base URL
const (
	PathLogin        = "/login"
	PathVerify       = "/session/verify"
	PathChatInitiate = "/chat/initiate"
	PathChat         = "/chat"
	PathLogout       = "/api/auth/logout"
)

// Identity request headers
const (
	HeaderTenantCode  = "x-tenant-code"
	HeaderSessionID   = "x-chat-session-id"
	HeaderUserID      = "x-user-id"
	HeaderAccessToken = "x-access-token"
)

// InitiateResult is the greeting returned when a chat session starts
type InitiateResult struct {
	Message   string
	SessionID string // empty when the backend kept the existing session
}

// SendResult is the assistant's reply to one user message
type SendResult struct {
	Response string
	Type     message.Type
}

// LoginResult is a validated login response
type LoginResult struct {
	UserID      string
	SessionID   string
	AccessToken string
}

// Client talks to the backend
type Client struct {
	baseURL      string
	httpClient   *http.Client
	requireToken bool
	logger       *slog.Logger
	tracer       trace.Tracer
	duration     metric.Float64Histogram
	failures     metric.Int64Counter
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithRequireToken makes a login response without an access token a failure
func WithRequireToken(require bool) Option {
	return func(c *Client) { c.requireToken = require }
}

// WithTelemetry sets the tracer and meter used for request spans and metrics
func WithTelemetry(tracer trace.Tracer, meter metric.Meter) Option {
	return func(c *Client) {
		c.tracer = tracer
		c.initInstruments(meter)
	}
}

// New creates a backend client for baseURL
func New(baseURL string, logger *slog.Logger, opts ...Option) (*Client, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	if baseURL == "" {
		return nil, fmt.Errorf("base URL cannot be empty")
	}

	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 60 * time.Second},
		logger:     logger,
		tracer:     otel.Tracer("omschat/api"),
	}
	c.initInstruments(otel.Meter("omschat/api"))

	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) initInstruments(meter metric.Meter) {
	duration, err := meter.Float64Histogram(
		"http.client.request.duration",
		metric.WithDescription("HTTP request duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		c.logger.Warn("failed to create duration histogram", "error", err)
	} else {
		c.duration = duration
	}

	failures, err := meter.Int64Counter(
		"omschat.api.errors",
		metric.WithDescription("Backend requests that failed"),
	)
	if err != nil {
		c.logger.Warn("failed to create error counter", "error", err)
	} else {
		c.failures = failures
	}
}

// Login submits credentials. A 2xx response still fails unless it carries a
// user ID and session ID (and an access token when tokens are required).
func (c *Client) Login(ctx context.Context, req LoginRequest) (LoginResult, error) {
	var resp LoginResponse
	if err := c.do(ctx, "login", PathLogin, nil, false, req, &resp); err != nil {
		return LoginResult{}, err
	}

	missing := []string{}
	if resp.UserID == "" {
		missing = append(missing, "userId")
	}
	if resp.SessionID == "" {
		missing = append(missing, "sessionId")
	}
	if c.requireToken && resp.AccessToken == "" {
		missing = append(missing, "accessToken")
	}
	if len(missing) > 0 {
		return LoginResult{}, &MalformedResponseError{
			Op:     "login",
			Reason: "missing " + strings.Join(missing, ", "),
			Detail: resp.Detail,
		}
	}

	return LoginResult{
		UserID:      resp.UserID,
		SessionID:   resp.SessionID,
		AccessToken: resp.AccessToken,
	}, nil
}

// VerifySession asks the backend to validate an identity. The returned
// identity only carries the user and session IDs the backend reported.
func (c *Client) VerifySession(ctx context.Context, id session.Identity) (session.Identity, error) {
	var resp VerifyResponse
	if err := c.do(ctx, "verify_session", PathVerify, &id, true, nil, &resp); err != nil {
		return session.Identity{}, err
	}
	return session.Identity{UserID: resp.UserID, SessionID: resp.SessionID}, nil
}

// Logout ends the session on the backend
func (c *Client) Logout(ctx context.Context, id session.Identity) error {
	return c.do(ctx, "logout", PathLogout, &id, false, nil, nil)
}

// InitiateChat starts a chat session and returns the greeting
func (c *Client) InitiateChat(ctx context.Context, tenantCode, sessionID, userID, accessToken string) (InitiateResult, error) {
	id := session.Identity{UserID: userID, TenantCode: tenantCode, SessionID: sessionID, AccessToken: accessToken}

	var resp InitiateResponse
	if err := c.do(ctx, "chat_initiate", PathChatInitiate, &id, true, nil, &resp); err != nil {
		return InitiateResult{}, err
	}
	if resp.Message == nil {
		return InitiateResult{}, &MalformedResponseError{Op: "chat_initiate", Reason: "missing message"}
	}

	return InitiateResult{Message: *resp.Message, SessionID: resp.SessionID}, nil
}

// SendMessage sends one user message and returns the assistant's reply
func (c *Client) SendMessage(ctx context.Context, content, sessionID, userID, tenantCode, accessToken string) (SendResult, error) {
	id := session.Identity{UserID: userID, TenantCode: tenantCode, SessionID: sessionID, AccessToken: accessToken}
	body := ChatRequest{
		Messages: []ChatPart{{Role: "user", Parts: []string{content}}},
	}

	var resp ChatResponse
	if err := c.do(ctx, "chat_send", PathChat, &id, true, body, &resp); err != nil {
		return SendResult{}, err
	}
	if resp.Response == nil {
		return SendResult{}, &MalformedResponseError{Op: "chat_send", Reason: "missing response"}
	}
	typ, err := message.ParseType(resp.Type)
	if err != nil {
		return SendResult{}, &MalformedResponseError{Op: "chat_send", Reason: "invalid type", Err: err}
	}

	return SendResult{Response: *resp.Response, Type: typ}, nil
}

// do performs a JSON POST. out may be nil when the body is ignored.
func (c *Client) do(ctx context.Context, op, path string, id *session.Identity, withToken bool, in, out interface{}) (err error) {
	ctx, span := c.tracer.Start(ctx, "api."+op, trace.WithAttributes(
		attribute.String("http.route", path),
	))
	defer span.End()

	start := time.Now()
	status := 0
	defer func() {
		attrs := metric.WithAttributes(
			attribute.String("op", op),
			attribute.Int("http.status_code", status),
		)
		if c.duration != nil {
			c.duration.Record(ctx, float64(time.Since(start).Milliseconds()), attrs)
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			if c.failures != nil {
				c.failures.Add(ctx, 1, attrs)
			}
			c.logger.Warn("api request failed", "op", op, "status", status, "error", err)
			return
		}
		c.logger.Debug("api request completed", "op", op, "status", status, "duration_ms", time.Since(start).Milliseconds())
	}()

	var reqBody io.Reader
	if in != nil {
		jsonData, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal %s request: %w", op, err)
		}
		reqBody = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create %s request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if id != nil {
		setIdentityHeaders(req.Header, *id, withToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &NetworkError{Op: op, Err: err}
	}
	defer resp.Body.Close()
	status = resp.StatusCode
	span.SetAttributes(attribute.Int("http.status_code", status))

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &NetworkError{Op: op, Err: fmt.Errorf("failed to read response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Op: op, Status: resp.StatusCode, Detail: errorDetail(body)}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &MalformedResponseError{Op: op, Reason: "invalid JSON", Err: err}
	}
	return nil
}

func setIdentityHeaders(h http.Header, id session.Identity, withToken bool) {
	h.Set(HeaderTenantCode, id.TenantCode)
	h.Set(HeaderSessionID, id.SessionID)
	h.Set(HeaderUserID, id.UserID)
	if withToken && id.AccessToken != "" {
		h.Set(HeaderAccessToken, id.AccessToken)
	}
}

// errorDetail pulls a human-readable message out of an error body
func errorDetail(body []byte) string {
	var eb errorBody
	if err := json.Unmarshal(body, &eb); err != nil {
		return ""
	}
	return eb.Detail
}
