package session

import (
	"fmt"

	"OMSChat/internal/store"
)

// Storage keys for the persisted identity
const (
	KeyUserID      = "userId"
	KeyTenantCode  = "tenantCode"
	KeySessionID   = "chatSessionId"
	KeyAccessToken = "accessToken"
)

// DefaultTenant is used when no tenant code has ever been stored
const DefaultTenant = "stguat"

// Identity is the authenticated user's tenant/user/session/token tuple.
// Empty fields mean "not known".
type Identity struct {
	UserID      string `json:"userId"`
	TenantCode  string `json:"tenantCode"`
	SessionID   string `json:"sessionId"`
	AccessToken string `json:"accessToken"`
}

// Authenticated reports whether a user ID is present
func (id Identity) Authenticated() bool {
	return id.UserID != ""
}

// Complete reports whether every field needed for chat requests is present.
// The access token is only required when requireToken is set.
func (id Identity) Complete(requireToken bool) bool {
	if id.UserID == "" || id.TenantCode == "" || id.SessionID == "" {
		return false
	}
	return !requireToken || id.AccessToken != ""
}

// Persisted wraps a store.KV and maps identity fields onto their storage keys
type Persisted struct {
	kv store.KV
}

// NewPersisted creates a persisted identity view over kv
func NewPersisted(kv store.KV) *Persisted {
	return &Persisted{kv: kv}
}

// Load reads whatever identity fields are stored. Missing keys are left empty.
func (p *Persisted) Load() (Identity, error) {
	var id Identity
	fields := []struct {
		key string
		dst *string
	}{
		{KeyUserID, &id.UserID},
		{KeyTenantCode, &id.TenantCode},
		{KeySessionID, &id.SessionID},
		{KeyAccessToken, &id.AccessToken},
	}
	for _, f := range fields {
		v, _, err := p.kv.Get(f.key)
		if err != nil {
			return Identity{}, fmt.Errorf("failed to load identity: %w", err)
		}
		*f.dst = v
	}
	return id, nil
}

// Save writes all four identity fields
func (p *Persisted) Save(id Identity) error {
	pairs := [][2]string{
		{KeyUserID, id.UserID},
		{KeyTenantCode, id.TenantCode},
		{KeySessionID, id.SessionID},
		{KeyAccessToken, id.AccessToken},
	}
	for _, kv := range pairs {
		if err := p.kv.Set(kv[0], kv[1]); err != nil {
			return fmt.Errorf("failed to save identity: %w", err)
		}
	}
	return nil
}

// SetSessionID replaces only the stored chat session ID
func (p *Persisted) SetSessionID(sessionID string) error {
	return p.kv.Set(KeySessionID, sessionID)
}

// SetTenant replaces only the stored tenant code
func (p *Persisted) SetTenant(tenantCode string) error {
	return p.kv.Set(KeyTenantCode, tenantCode)
}

// Clear removes the stored identity. When keepTenant is set the tenant code
// survives as the default for the next login.
func (p *Persisted) Clear(keepTenant bool) error {
	keys := []string{KeyUserID, KeySessionID, KeyAccessToken}
	if !keepTenant {
		keys = append(keys, KeyTenantCode)
	}
	if err := p.kv.Delete(keys...); err != nil {
		return fmt.Errorf("failed to clear identity: %w", err)
	}
	return nil
}
