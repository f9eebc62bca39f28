// Package login submits credentials to the backend and hands a successful
// identity to the session manager.
package login

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"OMSChat/internal/api"
)

// Fallback notices when the backend gives no detail
const (
	NoticeInvalidCredentials = "Invalid credentials"
	NoticeConnectionFailed   = "Failed to connect to server"
	NoticeSaveFailed         = "Failed to save login. Please try again."
)

// ErrMissingField is returned when a credential field is blank
var ErrMissingField = errors.New("tenant code, username and password are required")

// Credentials is what the user types into the login prompt
type Credentials struct {
	TenantCode string
	Username   string
	Password   string
}

// Authenticator is the login endpoint
type Authenticator interface {
	Login(ctx context.Context, req api.LoginRequest) (api.LoginResult, error)
}

// Session receives the identity on success
type Session interface {
	Login(userID, tenantCode, sessionID, accessToken string) error
}

// Notifier shows transient messages to the user
type Notifier interface {
	Error(text string)
}

// Flow runs a login attempt
type Flow struct {
	auth     Authenticator
	session  Session
	notifier Notifier
	logger   *slog.Logger
}

// NewFlow creates a login flow
func NewFlow(auth Authenticator, sess Session, notifier Notifier, logger *slog.Logger) *Flow {
	return &Flow{auth: auth, session: sess, notifier: notifier, logger: logger}
}

// Submit attempts a login. On any failure the user is notified and no state
// changes; the returned error describes what went wrong.
func (f *Flow) Submit(ctx context.Context, creds Credentials) error {
	creds.TenantCode = strings.TrimSpace(creds.TenantCode)
	creds.Username = strings.TrimSpace(creds.Username)
	if creds.TenantCode == "" || creds.Username == "" || creds.Password == "" {
		f.notifier.Error(ErrMissingField.Error())
		return ErrMissingField
	}

	res, err := f.auth.Login(ctx, api.LoginRequest{
		TenantCode: creds.TenantCode,
		Username:   creds.Username,
		Password:   creds.Password,
	})
	if err != nil {
		f.logger.Warn("login failed", "tenant", creds.TenantCode, "username", creds.Username, "error", err)
		f.notifier.Error(notice(err))
		return err
	}

	if err := f.session.Login(res.UserID, creds.TenantCode, res.SessionID, res.AccessToken); err != nil {
		f.logger.Error("failed to store identity", "error", err)
		f.notifier.Error(NoticeSaveFailed)
		return fmt.Errorf("failed to store identity: %w", err)
	}

	f.logger.Info("login succeeded", "tenant", creds.TenantCode, "user_id", res.UserID)
	return nil
}

func notice(err error) string {
	if detail := api.Detail(err); detail != "" {
		return detail
	}
	if api.IsNetwork(err) {
		return NoticeConnectionFailed
	}
	return NoticeInvalidCredentials
}
