package session

import (
	"github.com/spec-kit/adoption-client/internal/domain"
	"github.com/spec-kit/adoption-client/internal/storage"
)

// RequestContext carries the hints available when a role must be resolved
// for one outgoing call or navigation.
type RequestContext struct {
	// Role is an explicit override on the current call; empty means unset.
	Role domain.Role
	// Path is the target request or navigation path.
	Path string
}

// Resolver decides which role a call acts as. Resolution is a pure
// synchronous lookup, no network or blocking I/O.
type Resolver struct {
	tab   *storage.TabStore
	creds *storage.CredentialStore
}

// NewResolver builds a resolver over the tab marker and persistent store.
func NewResolver(tab *storage.TabStore, creds *storage.CredentialStore) *Resolver {
	return &Resolver{tab: tab, creds: creds}
}

// Resolve applies the precedence order, first match wins:
// explicit role, tab marker, path prefix, persistent-store fallback, USER.
// Every successful resolution rewrites the tab marker so subsequent calls
// in the same tab stabilize on the same role.
func (r *Resolver) Resolve(rc RequestContext) domain.Role {
	role := r.resolve(rc)
	r.tab.SetRole(role)
	return role
}

func (r *Resolver) resolve(rc RequestContext) domain.Role {
	if rc.Role.Valid() {
		return rc.Role
	}
	if role, ok := r.tab.Role(); ok {
		return role
	}
	if role, ok := domain.RoleFromPath(rc.Path); ok {
		return role
	}
	// Cross-tab fallback: a single authenticated role in persistent storage
	// wins; an ambiguous pair falls through to the default.
	userStored := r.creds.HasToken(domain.RoleUser)
	adminStored := r.creds.HasToken(domain.RoleAdmin)
	if adminStored && !userStored {
		return domain.RoleAdmin
	}
	return domain.RoleUser
}
