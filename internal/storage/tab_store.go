package storage

import "github.com/spec-kit/adoption-client/internal/domain"

// Tab-scoped keys. The legacy alias is still written and read so older
// deployments sharing the same storage keep resolving the marker.
const (
	tabRoleKey       = "tab_role"
	legacyTabRoleKey = "role"
)

// TabStore records which role one tab (process instance) is acting as.
// It is backed by an ephemeral KV scoped to that instance.
type TabStore struct {
	kv KV
}

// NewTabStore wraps a tab-scoped KV.
func NewTabStore(kv KV) *TabStore {
	return &TabStore{kv: kv}
}

// Role returns the marker, consulting the legacy alias as fallback.
func (s *TabStore) Role() (domain.Role, bool) {
	if raw, ok := s.kv.Get(tabRoleKey); ok {
		if role, valid := domain.ParseRole(raw); valid {
			return role, true
		}
	}
	if raw, ok := s.kv.Get(legacyTabRoleKey); ok {
		if role, valid := domain.ParseRole(raw); valid {
			return role, true
		}
	}
	return "", false
}

// SetRole overwrites the marker and its legacy alias.
func (s *TabStore) SetRole(role domain.Role) {
	_ = s.kv.Set(tabRoleKey, string(role))
	_ = s.kv.Set(legacyTabRoleKey, string(role))
}

// Clear deletes the marker entirely.
func (s *TabStore) Clear() {
	_ = s.kv.Delete(tabRoleKey)
	_ = s.kv.Delete(legacyTabRoleKey)
}
