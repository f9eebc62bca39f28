// Package session owns the authenticated identity: it keeps it in memory,
// mirrors it to durable storage and re-validates it against the backend
// on startup.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"OMSChat/internal/store"
)

// ErrIncompleteSession is returned by Initialize when verification succeeded
// but did not yield both a user ID and a session ID.
var ErrIncompleteSession = errors.New("session verification returned incomplete identity")

// Remote is the backend side of the session lifecycle
type Remote interface {
	// VerifySession validates the given identity. The returned identity carries
	// whatever user and session IDs the backend reported; either may be empty.
	VerifySession(ctx context.Context, id Identity) (Identity, error)

	// Logout tells the backend the session is over
	Logout(ctx context.Context, id Identity) error
}

// Manager is the single owner of the current Identity
type Manager struct {
	mu            sync.RWMutex
	identity      Identity
	version       uint64 // bumped on every mutation
	persisted     *Persisted
	remote        Remote
	defaultTenant string
	logger        *slog.Logger
}

// NewManager creates a Manager seeded from whatever identity is already stored
func NewManager(kv store.KV, remote Remote, defaultTenant string, logger *slog.Logger) (*Manager, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	if defaultTenant == "" {
		defaultTenant = DefaultTenant
	}

	persisted := NewPersisted(kv)
	stored, err := persisted.Load()
	if err != nil {
		return nil, err
	}
	if stored.TenantCode == "" {
		stored.TenantCode = defaultTenant
	}

	return &Manager{
		identity:      stored,
		persisted:     persisted,
		remote:        remote,
		defaultTenant: defaultTenant,
		logger:        logger,
	}, nil
}

// Identity returns a copy of the current identity
func (m *Manager) Identity() Identity {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.identity
}

// IsAuthenticated reports whether a user ID is currently held
func (m *Manager) IsAuthenticated() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.identity.Authenticated()
}

// Initialize re-validates the persisted identity against the backend.
// On success the identity is the union of the backend response and what was
// already known; on any failure it is cleared, keeping only the tenant code.
func (m *Manager) Initialize(ctx context.Context) error {
	stored, err := m.persisted.Load()
	if err != nil {
		m.logger.Warn("failed to read persisted identity", "error", err)
	}

	m.mu.RLock()
	known := m.identity
	version := m.version
	m.mu.RUnlock()

	req := Identity{
		UserID:      firstNonEmpty(known.UserID, stored.UserID),
		TenantCode:  firstNonEmpty(known.TenantCode, stored.TenantCode, m.defaultTenant),
		SessionID:   stored.SessionID,
		AccessToken: firstNonEmpty(known.AccessToken, stored.AccessToken),
	}

	resp, err := m.remote.VerifySession(ctx, req)
	if err != nil {
		m.logger.Warn("session verification failed", "tenant", req.TenantCode, "error", err)
		m.reset(version, req.TenantCode)
		return fmt.Errorf("failed to verify session: %w", err)
	}

	next := Identity{
		UserID:      firstNonEmpty(resp.UserID, req.UserID),
		TenantCode:  req.TenantCode,
		SessionID:   firstNonEmpty(resp.SessionID, req.SessionID),
		AccessToken: req.AccessToken,
	}
	if next.UserID == "" || next.SessionID == "" {
		m.logger.Info("session verification returned no identity", "tenant", req.TenantCode)
		m.reset(version, req.TenantCode)
		return ErrIncompleteSession
	}

	m.mu.Lock()
	if m.version != version {
		m.mu.Unlock()
		m.logger.Debug("discarding stale session verification")
		return nil
	}
	m.identity = next
	m.version++
	m.mu.Unlock()

	if err := m.persisted.Save(next); err != nil {
		return err
	}

	m.logger.Info("session verified", "user_id", next.UserID, "tenant", next.TenantCode, "session_id", next.SessionID)
	return nil
}

// Login replaces the identity and persists it. Storage is written first so a
// failed write leaves the previous identity in place.
func (m *Manager) Login(userID, tenantCode, sessionID, accessToken string) error {
	id := Identity{
		UserID:      userID,
		TenantCode:  tenantCode,
		SessionID:   sessionID,
		AccessToken: accessToken,
	}

	m.mu.RLock()
	previous := m.identity
	m.mu.RUnlock()

	if err := m.persisted.Save(id); err != nil {
		if rerr := m.persisted.Save(previous); rerr != nil {
			m.logger.Error("failed to restore persisted identity", "error", rerr)
		}
		return err
	}

	m.mu.Lock()
	m.identity = id
	m.version++
	m.mu.Unlock()

	m.logger.Info("logged in", "user_id", userID, "tenant", tenantCode, "session_id", sessionID)
	return nil
}

// Logout notifies the backend on a best-effort basis, then clears the
// identity in memory and in storage whatever the backend said.
func (m *Manager) Logout(ctx context.Context) error {
	m.mu.RLock()
	current := m.identity
	m.mu.RUnlock()

	if current.TenantCode == "" {
		current.TenantCode = m.defaultTenant
	}
	if err := m.remote.Logout(ctx, current); err != nil {
		m.logger.Warn("remote logout failed", "user_id", current.UserID, "error", err)
	}

	m.mu.Lock()
	m.identity = Identity{}
	m.version++
	m.mu.Unlock()

	if err := m.persisted.Clear(false); err != nil {
		return err
	}

	m.logger.Info("logged out", "user_id", current.UserID)
	return nil
}

// SwitchTenant changes the tenant code and re-runs verification when it differs
// from the current one.
func (m *Manager) SwitchTenant(ctx context.Context, tenantCode string) error {
	m.mu.Lock()
	if tenantCode == "" || tenantCode == m.identity.TenantCode {
		m.mu.Unlock()
		return nil
	}
	m.identity.TenantCode = tenantCode
	m.version++
	m.mu.Unlock()

	if err := m.persisted.SetTenant(tenantCode); err != nil {
		return err
	}

	m.logger.Info("tenant changed", "tenant", tenantCode)
	return m.Initialize(ctx)
}

// AdoptSessionID records a chat session ID handed out by the backend
func (m *Manager) AdoptSessionID(sessionID string) error {
	if sessionID == "" {
		return nil
	}

	m.mu.Lock()
	if m.identity.SessionID == sessionID {
		m.mu.Unlock()
		return nil
	}
	m.identity.SessionID = sessionID
	m.mu.Unlock()

	if err := m.persisted.SetSessionID(sessionID); err != nil {
		return fmt.Errorf("failed to persist session id: %w", err)
	}
	return nil
}

// reset clears everything but the tenant, unless a newer mutation won the race
func (m *Manager) reset(version uint64, tenantCode string) {
	m.mu.Lock()
	if m.version != version {
		m.mu.Unlock()
		return
	}
	m.identity = Identity{TenantCode: tenantCode}
	m.version++
	m.mu.Unlock()

	if err := m.persisted.Clear(true); err != nil {
		m.logger.Error("failed to clear persisted identity", "error", err)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
