package guard

import (
	"strings"

	"github.com/spec-kit/adoption-client/internal/domain"
)

// Route declares the access policy for one path prefix.
type Route struct {
	Prefix        string
	RequiresAuth  bool
	RequiresAdmin bool
	// GuestOnly pages (login/register) redirect away once GuestRole is
	// already authenticated.
	GuestOnly bool
	GuestRole domain.Role
}

// DefaultRoutes is the policy table for the adoption app. Longest prefix
// wins; unlisted paths are public.
func DefaultRoutes() []Route {
	return []Route{
		{Prefix: "/login", GuestOnly: true, GuestRole: domain.RoleUser},
		{Prefix: "/register", GuestOnly: true, GuestRole: domain.RoleUser},
		{Prefix: "/admin/login", GuestOnly: true, GuestRole: domain.RoleAdmin},
		{Prefix: "/admin", RequiresAuth: true, RequiresAdmin: true},
		{Prefix: "/user", RequiresAuth: true},
	}
}

func (g *Guard) match(path string) Route {
	best := Route{}
	bestLen := -1
	for _, route := range g.routes {
		if path == route.Prefix || strings.HasPrefix(path, route.Prefix+"/") {
			if len(route.Prefix) > bestLen {
				best = route
				bestLen = len(route.Prefix)
			}
		}
	}
	return best
}

// LoginPage returns the role-appropriate login page.
func LoginPage(role domain.Role) string {
	if role == domain.RoleAdmin {
		return "/admin/login"
	}
	return "/login"
}

// LandingPage returns the role-appropriate landing page.
func LandingPage(role domain.Role) string {
	if role == domain.RoleAdmin {
		return "/admin/dashboard"
	}
	return "/user/home"
}
