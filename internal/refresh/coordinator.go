// Package refresh serializes token refreshes: at most one refresh is in
// flight per process, and requests that hit an unauthorized response while
// one is running queue their continuations for replay.
package refresh

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/adoption-client/internal/domain"
	"github.com/spec-kit/adoption-client/internal/observability"
	"github.com/spec-kit/adoption-client/pkg/util"
)

// SessionController is the slice of the session manager the coordinator
// drives.
type SessionController interface {
	RefreshSession(ctx context.Context, role domain.Role) error
	Logout(ctx context.Context, role domain.Role) error
	Token(role domain.Role) string
}

// Navigator receives redirect decisions.
type Navigator interface {
	Redirect(target string)
}

// ReplayFunc retries the original request with a fresh access token. The
// any-typed result mirrors singleflight's shape; the caller owns the
// concrete type.
type ReplayFunc func(token string) (any, error)

type pending struct {
	role   domain.Role
	replay ReplayFunc
	done   chan outcome
}

type outcome struct {
	result any
	err    error
}

// Coordinator implements the IDLE -> REFRESHING -> IDLE state machine.
type Coordinator struct {
	sessions  SessionController
	nav       Navigator
	logger    *zap.Logger
	metrics   *observability.Metrics
	loginPath func(domain.Role) string

	redirectWindow time.Duration
	now            func() time.Time

	mu           sync.Mutex
	refreshing   bool
	queue        []*pending
	lastRedirect time.Time
}

// Options bundles Coordinator dependencies.
type Options struct {
	Sessions       SessionController
	Navigator      Navigator
	Logger         *zap.Logger
	Metrics        *observability.Metrics
	LoginPath      func(domain.Role) string
	RedirectWindow time.Duration
	Now            func() time.Time
}

// NewCoordinator builds a coordinator.
func NewCoordinator(opts Options) *Coordinator {
	c := &Coordinator{
		sessions:       opts.Sessions,
		nav:            opts.Navigator,
		logger:         opts.Logger,
		metrics:        opts.Metrics,
		loginPath:      opts.LoginPath,
		redirectWindow: opts.RedirectWindow,
		now:            opts.Now,
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	if c.loginPath == nil {
		c.loginPath = defaultLoginPath
	}
	if c.redirectWindow <= 0 {
		c.redirectWindow = time.Second
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c
}

func defaultLoginPath(role domain.Role) string {
	if role == domain.RoleAdmin {
		return "/admin/login"
	}
	return "/login"
}

// Execute enrolls one unauthorized request. The first arrival starts the
// refresh; later arrivals queue behind it rather than issuing a second
// refresh call. On success every queued request is replayed exactly once, in
// arrival order, with its own role's current token. On failure every queued
// request is
// rejected, the role is logged out once, and the caller is redirected to
// that role's login page.
func (c *Coordinator) Execute(ctx context.Context, role domain.Role, replay ReplayFunc) (any, error) {
	p := &pending{role: role, replay: replay, done: make(chan outcome, 1)}

	c.mu.Lock()
	c.queue = append(c.queue, p)
	started := !c.refreshing
	if started {
		c.refreshing = true
	}
	c.mu.Unlock()

	if started {
		go c.run(role)
	}

	select {
	case out := <-p.done:
		return out.result, out.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Coordinator) run(role domain.Role) {
	ctx := context.Background()
	err := c.sessions.RefreshSession(ctx, role)
	c.metrics.RecordRefresh(err == nil)

	c.mu.Lock()
	queue := c.queue
	c.queue = nil
	c.refreshing = false
	c.mu.Unlock()

	if err != nil {
		c.logger.Warn("token refresh failed",
			zap.String("role", string(role)),
			zap.Int("queued", len(queue)),
			zap.Error(err))

		failure := util.NewRefreshFailure("session refresh failed", err)
		for _, p := range queue {
			p.done <- outcome{err: failure}
		}
		if err := c.sessions.Logout(ctx, role); err != nil {
			c.logger.Warn("logout after failed refresh", zap.Error(err))
		}
		c.redirect(role)
		return
	}

	// Each pending replays with its own role's token: the queue is global,
	// so a request enrolled for the other role must not inherit the
	// refreshed role's token.
	for _, p := range queue {
		result, replayErr := p.replay(c.sessions.Token(p.role))
		p.done <- outcome{result: result, err: replayErr}
	}
}

// redirect sends the caller to the role's login page. Repeated redirects
// within the rate-limit window are suppressed so many concurrent rejections
// cannot cause a redirect storm.
func (c *Coordinator) redirect(role domain.Role) {
	if c.nav == nil {
		return
	}
	c.mu.Lock()
	now := c.now()
	if now.Sub(c.lastRedirect) < c.redirectWindow {
		c.mu.Unlock()
		return
	}
	c.lastRedirect = now
	c.mu.Unlock()

	c.nav.Redirect(c.loginPath(role))
}
