package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/adoption-client/internal/domain"
	"github.com/spec-kit/adoption-client/internal/events"
	"github.com/spec-kit/adoption-client/internal/storage"
	"github.com/spec-kit/adoption-client/pkg/util"
)

type fakeAuthAPI struct {
	mu           sync.Mutex
	loginGrant   *domain.SessionGrant
	loginErr     error
	refreshGrant *domain.TokenGrant
	refreshErr   error
	refreshCalls int
	profile      *domain.ProfileSnapshot
	profileErr   error
	profileCalls int
}

func (f *fakeAuthAPI) Login(context.Context, domain.Credentials) (*domain.SessionGrant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.loginErr != nil {
		return nil, f.loginErr
	}
	grant := *f.loginGrant
	return &grant, nil
}

func (f *fakeAuthAPI) RefreshToken(context.Context, domain.Role, string) (*domain.TokenGrant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshCalls++
	if f.refreshErr != nil {
		return nil, f.refreshErr
	}
	grant := *f.refreshGrant
	return &grant, nil
}

func (f *fakeAuthAPI) Profile(context.Context, domain.Role, string) (*domain.ProfileSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.profileCalls++
	if f.profileErr != nil {
		return nil, f.profileErr
	}
	profile := *f.profile
	return &profile, nil
}

type manualTask struct {
	fn        func()
	cancelled bool
}

func (t *manualTask) Cancel() { t.cancelled = true }

type manualScheduler struct {
	mu    sync.Mutex
	tasks []*manualTask
}

func (s *manualScheduler) Schedule(_ time.Duration, fn func()) TaskHandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	task := &manualTask{fn: fn}
	s.tasks = append(s.tasks, task)
	return task
}

func (s *manualScheduler) fire() {
	s.mu.Lock()
	tasks := s.tasks
	s.tasks = nil
	s.mu.Unlock()
	for _, task := range tasks {
		if !task.cancelled {
			task.fn()
		}
	}
}

func (s *manualScheduler) armed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, task := range s.tasks {
		if !task.cancelled {
			count++
		}
	}
	return count
}

type fixture struct {
	api   *fakeAuthAPI
	creds *storage.CredentialStore
	tab   *storage.TabStore
	bus   events.Dispatcher
	sched *manualScheduler

	clearedRoles []domain.Role
}

func newFixture(t *testing.T) (*Manager, *fixture) {
	t.Helper()
	fx := &fixture{
		api:   &fakeAuthAPI{},
		creds: storage.NewCredentialStore(storage.NewMemoryStore(), zap.NewNop()),
		tab:   storage.NewTabStore(storage.NewMemoryStore()),
		bus:   events.NewInMemoryDispatcher(),
		sched: &manualScheduler{},
	}
	fx.bus.Subscribe(events.EventSessionCleared, func(_ context.Context, e events.Event) error {
		fx.clearedRoles = append(fx.clearedRoles, e.Role)
		return nil
	})

	m := NewManager(ManagerOptions{
		Credentials: fx.creds,
		Tab:         fx.tab,
		Bus:         fx.bus,
		API:         fx.api,
		Scheduler:   fx.sched,
		Logger:      zap.NewNop(),
	})
	t.Cleanup(m.Close)
	return m, fx
}

func userGrant() *domain.SessionGrant {
	return &domain.SessionGrant{
		AccessToken:  "user-access",
		RefreshToken: "user-refresh",
		ExpiresAt:    time.Now().Add(time.Hour),
		DeclaredRole: domain.RoleUser,
		Profile:      domain.ProfileSnapshot{UserID: 1, DisplayName: "Avery", Role: domain.RoleUser},
	}
}

func adminGrant() *domain.SessionGrant {
	return &domain.SessionGrant{
		AccessToken:  "admin-access",
		RefreshToken: "admin-refresh",
		ExpiresAt:    time.Now().Add(time.Hour),
		DeclaredRole: domain.RoleAdmin,
		Profile:      domain.ProfileSnapshot{UserID: 2, DisplayName: "Sam", Role: domain.RoleAdmin, AdminShelterID: 1},
	}
}

func TestLoginActivatesGrantedRole(t *testing.T) {
	m, fx := newFixture(t)
	fx.api.loginGrant = adminGrant()

	cred, err := m.Login(context.Background(), domain.Credentials{Email: "shelter@example.com", Password: "pw"})
	require.NoError(t, err)

	assert.Equal(t, domain.RoleAdmin, m.ActiveRole())
	assert.Equal(t, "admin-access", m.Token(domain.RoleAdmin))
	assert.Equal(t, "admin-access", cred.AccessToken)
	assert.True(t, m.HasValidSession(domain.RoleAdmin))
	assert.True(t, m.ProfileLoaded(domain.RoleAdmin))

	marker, ok := fx.tab.Role()
	require.True(t, ok)
	assert.Equal(t, domain.RoleAdmin, marker)

	stored, ok := fx.creds.Load(domain.RoleAdmin)
	require.True(t, ok)
	assert.Equal(t, "admin-refresh", stored.RefreshToken)

	assert.Equal(t, 1, fx.sched.armed(), "refresh timer should be armed")
}

func TestLoginPrefersProfileRoleOnMismatch(t *testing.T) {
	m, fx := newFixture(t)
	grant := adminGrant()
	grant.DeclaredRole = domain.RoleUser
	fx.api.loginGrant = grant

	_, err := m.Login(context.Background(), domain.Credentials{})
	require.NoError(t, err)
	assert.Equal(t, domain.RoleAdmin, m.ActiveRole())
}

func TestLoginMissingAccessTokenFails(t *testing.T) {
	m, fx := newFixture(t)
	grant := userGrant()
	grant.AccessToken = ""
	fx.api.loginGrant = grant

	_, err := m.Login(context.Background(), domain.Credentials{})
	require.Error(t, err)
	assert.True(t, util.IsKind(err, util.KindAuth))
}

func TestLogoutLeavesOtherRoleIntact(t *testing.T) {
	m, fx := newFixture(t)

	fx.api.loginGrant = userGrant()
	_, err := m.Login(context.Background(), domain.Credentials{})
	require.NoError(t, err)

	fx.api.loginGrant = adminGrant()
	_, err = m.Login(context.Background(), domain.Credentials{})
	require.NoError(t, err)
	require.Equal(t, domain.RoleAdmin, m.ActiveRole())

	require.NoError(t, m.Logout(context.Background(), domain.RoleAdmin))

	assert.Empty(t, m.Token(domain.RoleAdmin))
	assert.False(t, fx.creds.HasToken(domain.RoleAdmin))
	assert.Equal(t, "user-access", m.Token(domain.RoleUser))
	assert.True(t, fx.creds.HasToken(domain.RoleUser))

	// Active falls back to the surviving role.
	assert.Equal(t, domain.RoleUser, m.ActiveRole())
	marker, ok := fx.tab.Role()
	require.True(t, ok)
	assert.Equal(t, domain.RoleUser, marker)

	assert.Equal(t, []domain.Role{domain.RoleAdmin}, fx.clearedRoles)
}

func TestLogoutWithoutFallbackClearsTabMarker(t *testing.T) {
	m, fx := newFixture(t)
	fx.api.loginGrant = userGrant()
	_, err := m.Login(context.Background(), domain.Credentials{})
	require.NoError(t, err)

	require.NoError(t, m.Logout(context.Background(), domain.RoleUser))

	_, ok := fx.tab.Role()
	assert.False(t, ok)
	assert.False(t, m.HasValidSession(domain.RoleUser))
}

func TestSetActiveRoleLogoutRoundTrip(t *testing.T) {
	m, fx := newFixture(t)

	fx.api.loginGrant = userGrant()
	_, err := m.Login(context.Background(), domain.Credentials{})
	require.NoError(t, err)
	fx.api.loginGrant = adminGrant()
	_, err = m.Login(context.Background(), domain.Credentials{})
	require.NoError(t, err)

	m.SetActiveRole(domain.RoleAdmin)
	require.NoError(t, m.Logout(context.Background(), domain.RoleAdmin))
	assert.Equal(t, domain.RoleUser, m.ActiveRole())

	m.SetActiveRole(domain.RoleUser)
	require.NoError(t, m.Logout(context.Background(), domain.RoleUser))
	_, ok := fx.tab.Role()
	assert.False(t, ok, "tab marker should be absent once no role remains")
}

func TestFetchProfileIsNoopWithoutToken(t *testing.T) {
	m, fx := newFixture(t)
	m.FetchProfile(context.Background(), domain.RoleUser)
	assert.Zero(t, fx.api.profileCalls)
	assert.False(t, m.ProfileLoaded(domain.RoleUser))
}

func TestFetchProfileFailureIsLoggedNotThrown(t *testing.T) {
	m, fx := newFixture(t)
	fx.api.loginGrant = userGrant()
	_, err := m.Login(context.Background(), domain.Credentials{})
	require.NoError(t, err)

	fx.api.profileErr = errors.New("backend down")
	m.FetchProfile(context.Background(), domain.RoleUser)
	assert.False(t, m.ProfileLoaded(domain.RoleUser))

	fx.api.profileErr = nil
	fx.api.profile = &domain.ProfileSnapshot{UserID: 1, DisplayName: "Avery Updated", Role: domain.RoleUser}
	m.FetchProfile(context.Background(), domain.RoleUser)
	assert.True(t, m.ProfileLoaded(domain.RoleUser))
	assert.Equal(t, "Avery Updated", m.Profile(domain.RoleUser).DisplayName)
}

func TestRefreshSessionWithoutStoredTokenFails(t *testing.T) {
	m, _ := newFixture(t)
	err := m.RefreshSession(context.Background(), domain.RoleUser)
	require.Error(t, err)
	assert.True(t, util.IsKind(err, util.KindRefreshFailure))
}

func TestRefreshSessionUpdatesTokenAndReschedules(t *testing.T) {
	m, fx := newFixture(t)
	fx.api.loginGrant = userGrant()
	_, err := m.Login(context.Background(), domain.Credentials{})
	require.NoError(t, err)

	fx.api.refreshGrant = &domain.TokenGrant{
		AccessToken:  "user-access-2",
		RefreshToken: "user-refresh-2",
		ExpiresAt:    time.Now().Add(time.Hour),
	}
	require.NoError(t, m.RefreshSession(context.Background(), domain.RoleUser))

	assert.Equal(t, "user-access-2", m.Token(domain.RoleUser))
	assert.Equal(t, "user-refresh-2", fx.creds.RefreshToken(domain.RoleUser))
	assert.Equal(t, 1, fx.sched.armed(), "old timer cancelled, new one armed")
}

func TestScheduledRefreshFailureLogsOut(t *testing.T) {
	m, fx := newFixture(t)
	fx.api.loginGrant = userGrant()
	_, err := m.Login(context.Background(), domain.Credentials{})
	require.NoError(t, err)

	fx.api.refreshErr = errors.New("rejected")
	fx.sched.fire()

	assert.Empty(t, m.Token(domain.RoleUser))
	assert.False(t, fx.creds.HasToken(domain.RoleUser))
	assert.Equal(t, []domain.Role{domain.RoleUser}, fx.clearedRoles)
}

func TestRehydrationReconstructsState(t *testing.T) {
	m, fx := newFixture(t)
	fx.api.loginGrant = adminGrant()
	_, err := m.Login(context.Background(), domain.Credentials{})
	require.NoError(t, err)
	m.Close()

	// A fresh manager over the same stores stands in for a page reload.
	reloaded := NewManager(ManagerOptions{
		Credentials: fx.creds,
		Tab:         fx.tab,
		Bus:         fx.bus,
		API:         fx.api,
		Scheduler:   fx.sched,
		Logger:      zap.NewNop(),
	})
	defer reloaded.Close()

	assert.Equal(t, domain.RoleAdmin, reloaded.ActiveRole())
	assert.Equal(t, "admin-access", reloaded.Token(domain.RoleAdmin))
	assert.True(t, reloaded.HasValidSession(domain.RoleAdmin))
	// The persisted profile is presented, but a fresh fetch is still owed.
	assert.False(t, reloaded.ProfileLoaded(domain.RoleAdmin))
	assert.Equal(t, "Sam", reloaded.Profile(domain.RoleAdmin).DisplayName)
}
