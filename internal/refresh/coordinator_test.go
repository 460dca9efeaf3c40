package refresh

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/adoption-client/internal/domain"
	"github.com/spec-kit/adoption-client/internal/observability"
	"github.com/spec-kit/adoption-client/pkg/util"
)

type fakeSessions struct {
	mu           sync.Mutex
	refreshCalls int
	logoutCalls  int
	refreshErr   error
	refreshGate  chan struct{}
	tokens       map[domain.Role]string
}

func newFakeSessions(gate chan struct{}) *fakeSessions {
	return &fakeSessions{refreshGate: gate, tokens: make(map[domain.Role]string)}
}

func (f *fakeSessions) RefreshSession(_ context.Context, role domain.Role) error {
	f.mu.Lock()
	f.refreshCalls++
	gate := f.refreshGate
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.refreshErr != nil {
		return f.refreshErr
	}
	f.tokens[role] = "fresh-token"
	return nil
}

func (f *fakeSessions) Logout(context.Context, domain.Role) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logoutCalls++
	return nil
}

func (f *fakeSessions) Token(role domain.Role) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tokens[role]
}

func (f *fakeSessions) counts() (refreshes, logouts int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.refreshCalls, f.logoutCalls
}

type recordingNavigator struct {
	mu      sync.Mutex
	targets []string
}

func (n *recordingNavigator) Redirect(target string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.targets = append(n.targets, target)
}

func (n *recordingNavigator) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.targets)
}

func TestSingleRefreshForConcurrentCallers(t *testing.T) {
	sessions := newFakeSessions(make(chan struct{}))
	metrics := observability.NewMetrics()
	coord := NewCoordinator(Options{Sessions: sessions, Metrics: metrics, Logger: zap.NewNop()})

	const callers = 8
	var replays int64
	results := make(chan error, callers)

	var launched sync.WaitGroup
	for i := 0; i < callers; i++ {
		launched.Add(1)
		go func() {
			launched.Done()
			_, err := coord.Execute(context.Background(), domain.RoleUser, func(token string) (any, error) {
				atomic.AddInt64(&replays, 1)
				assert.Equal(t, "fresh-token", token)
				return token, nil
			})
			results <- err
		}()
	}
	launched.Wait()
	// Give the queue time to fill while the refresh is held open.
	time.Sleep(50 * time.Millisecond)
	close(sessions.refreshGate)

	for i := 0; i < callers; i++ {
		require.NoError(t, <-results)
	}
	refreshes, _ := sessions.counts()
	assert.Equal(t, 1, refreshes, "exactly one refresh call")
	assert.Equal(t, int64(callers), atomic.LoadInt64(&replays), "each request replayed exactly once")
	assert.Equal(t, int64(1), metrics.Refreshes(true))
	assert.Equal(t, int64(0), metrics.Refreshes(false))
}

func TestRefreshFailureRejectsAllAndLogsOutOnce(t *testing.T) {
	sessions := newFakeSessions(make(chan struct{}))
	sessions.refreshErr = errors.New("refresh rejected")
	nav := &recordingNavigator{}
	metrics := observability.NewMetrics()
	coord := NewCoordinator(Options{Sessions: sessions, Navigator: nav, Metrics: metrics, Logger: zap.NewNop()})

	const callers = 5
	results := make(chan error, callers)
	for i := 0; i < callers; i++ {
		go func() {
			_, err := coord.Execute(context.Background(), domain.RoleAdmin, func(string) (any, error) {
				t.Error("replay must not run after a failed refresh")
				return nil, nil
			})
			results <- err
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(sessions.refreshGate)

	for i := 0; i < callers; i++ {
		err := <-results
		require.Error(t, err)
		assert.True(t, util.IsKind(err, util.KindRefreshFailure))
	}
	refreshes, logouts := sessions.counts()
	assert.Equal(t, 1, refreshes)
	assert.Equal(t, 1, logouts, "role logged out exactly once")

	// Redirect storm suppression: many rejections, one redirect.
	assert.Equal(t, 1, nav.count())
	assert.Equal(t, []string{"/admin/login"}, nav.targets)
	assert.Equal(t, int64(1), metrics.Refreshes(false))
	assert.Equal(t, int64(0), metrics.Refreshes(true))
}

func TestQueuedOtherRoleReplaysWithOwnToken(t *testing.T) {
	sessions := newFakeSessions(make(chan struct{}))
	sessions.tokens[domain.RoleAdmin] = "admin-token"
	coord := NewCoordinator(Options{Sessions: sessions, Logger: zap.NewNop()})

	results := make(chan error, 2)
	go func() {
		_, err := coord.Execute(context.Background(), domain.RoleUser, func(token string) (any, error) {
			assert.Equal(t, "fresh-token", token)
			return nil, nil
		})
		results <- err
	}()
	// Let the user refresh start before the admin request enrolls.
	time.Sleep(20 * time.Millisecond)
	go func() {
		_, err := coord.Execute(context.Background(), domain.RoleAdmin, func(token string) (any, error) {
			assert.Equal(t, "admin-token", token)
			return nil, nil
		})
		results <- err
	}()
	time.Sleep(20 * time.Millisecond)
	close(sessions.refreshGate)

	require.NoError(t, <-results)
	require.NoError(t, <-results)
	refreshes, _ := sessions.counts()
	assert.Equal(t, 1, refreshes, "the queued admin request rides the single in-flight refresh")
}

func TestReplayOrderFollowsArrival(t *testing.T) {
	sessions := newFakeSessions(make(chan struct{}))
	coord := NewCoordinator(Options{Sessions: sessions, Logger: zap.NewNop()})

	const callers = 4
	var order []int
	var orderMu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < callers; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := coord.Execute(context.Background(), domain.RoleUser, func(string) (any, error) {
				orderMu.Lock()
				order = append(order, i)
				orderMu.Unlock()
				return nil, nil
			})
			assert.NoError(t, err)
		}()
		// Stagger arrivals so queue order is deterministic.
		time.Sleep(20 * time.Millisecond)
	}
	close(sessions.refreshGate)
	wg.Wait()

	assert.Equal(t, []int{0, 1, 2, 3}, order)
}

func TestRedirectRateLimit(t *testing.T) {
	now := time.Unix(1000, 0)
	nav := &recordingNavigator{}
	coord := NewCoordinator(Options{
		Navigator:      nav,
		Logger:         zap.NewNop(),
		RedirectWindow: time.Second,
		Now:            func() time.Time { return now },
	})

	coord.redirect(domain.RoleUser)
	coord.redirect(domain.RoleUser)
	assert.Equal(t, 1, nav.count())

	now = now.Add(1100 * time.Millisecond)
	coord.redirect(domain.RoleUser)
	assert.Equal(t, 2, nav.count())
}
