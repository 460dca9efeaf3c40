// Package guard is the navigation-time access-control decision point.
package guard

import (
	"context"
	"net/url"

	"go.uber.org/zap"

	"github.com/spec-kit/adoption-client/internal/domain"
	"github.com/spec-kit/adoption-client/internal/session"
	"github.com/spec-kit/adoption-client/internal/storage"
)

// Decision is the terminal outcome of one navigation evaluation.
type Decision struct {
	Allow    bool
	Redirect string
}

func proceed() Decision {
	return Decision{Allow: true}
}

func redirect(target string) Decision {
	return Decision{Redirect: target}
}

// Guard evaluates every navigation against session state and the route
// policy table.
type Guard struct {
	sessions *session.Manager
	creds    *storage.CredentialStore
	routes   []Route
	logger   *zap.Logger
}

// New builds a guard over the default route table.
func New(sessions *session.Manager, creds *storage.CredentialStore, logger *zap.Logger) *Guard {
	return NewWithRoutes(sessions, creds, DefaultRoutes(), logger)
}

// NewWithRoutes builds a guard with a custom route table.
func NewWithRoutes(sessions *session.Manager, creds *storage.CredentialStore, routes []Route, logger *zap.Logger) *Guard {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Guard{sessions: sessions, creds: creds, routes: routes, logger: logger}
}

// Evaluate decides whether a navigation to dest may proceed, and where to
// send the caller otherwise.
func (g *Guard) Evaluate(ctx context.Context, dest string) Decision {
	path := dest
	if u, err := url.Parse(dest); err == nil && u.Path != "" {
		path = u.Path
	}
	route := g.match(path)

	// Persistent storage is consulted alongside in-memory state: right
	// after a reload the session may not be hydrated yet, and the stored
	// token is the source of truth.
	userLoggedIn := g.loggedIn(domain.RoleUser)
	adminLoggedIn := g.loggedIn(domain.RoleAdmin)

	destRole, hasRoleHint := domain.RoleFromPath(path)
	if !hasRoleHint {
		destRole = g.sessions.ActiveRole()
	}

	// Align the active role with the destination before gating, without
	// discarding the other role's session.
	if hasRoleHint && destRole != g.sessions.ActiveRole() {
		g.sessions.SetActiveRole(destRole)
	}

	if route.GuestOnly {
		if g.loggedIn(route.GuestRole) {
			return redirect(LandingPage(route.GuestRole))
		}
		return proceed()
	}

	if route.RequiresAuth {
		if !userLoggedIn && !adminLoggedIn {
			return redirect(loginRedirect(destRole, dest))
		}
		if !g.loggedIn(destRole) {
			return redirect(loginRedirect(destRole, dest))
		}
		if !g.sessions.ProfileLoaded(destRole) {
			// Navigation blocks until the profile load settles; a failed
			// load re-redirects to login.
			g.sessions.FetchProfile(ctx, destRole)
			if !g.sessions.ProfileLoaded(destRole) {
				g.logger.Warn("profile load failed during navigation",
					zap.String("role", string(destRole)), zap.String("dest", dest))
				return redirect(loginRedirect(destRole, dest))
			}
		}
	}

	if route.RequiresAdmin {
		if !adminLoggedIn || g.sessions.Profile(domain.RoleAdmin).Role != domain.RoleAdmin {
			return redirect(LandingPage(domain.RoleUser))
		}
	}

	return proceed()
}

func (g *Guard) loggedIn(role domain.Role) bool {
	return g.creds.HasToken(role) || g.sessions.Token(role) != ""
}

func loginRedirect(role domain.Role, dest string) string {
	return LoginPage(role) + "?redirect=" + url.QueryEscape(dest)
}
