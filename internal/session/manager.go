package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/spec-kit/adoption-client/internal/domain"
	"github.com/spec-kit/adoption-client/internal/events"
	"github.com/spec-kit/adoption-client/internal/storage"
	"github.com/spec-kit/adoption-client/pkg/util"
)

// AuthAPI is the collaborator contract the manager needs from the backend.
type AuthAPI interface {
	Login(ctx context.Context, creds domain.Credentials) (*domain.SessionGrant, error)
	RefreshToken(ctx context.Context, role domain.Role, refreshToken string) (*domain.TokenGrant, error)
	Profile(ctx context.Context, role domain.Role, accessToken string) (*domain.ProfileSnapshot, error)
}

// Manager owns the in-memory session state for both roles and keeps it in
// lockstep with persistent storage: every mutation writes through, so a
// restarted process reconstructs equivalent state.
type Manager struct {
	creds  *storage.CredentialStore
	tab    *storage.TabStore
	bus    events.Dispatcher
	api    AuthAPI
	sched  Scheduler
	logger *zap.Logger

	refreshMargin   time.Duration
	minRefreshDelay time.Duration
	now             func() time.Time

	mu            sync.Mutex
	active        domain.Role
	info          map[domain.Role]domain.ProfileSnapshot
	tokens        map[domain.Role]string
	profileLoaded map[domain.Role]bool
	refreshTasks  map[domain.Role]TaskHandle

	profileFlight singleflight.Group
}

// ManagerOptions bundles Manager dependencies.
type ManagerOptions struct {
	Credentials     *storage.CredentialStore
	Tab             *storage.TabStore
	Bus             events.Dispatcher
	API             AuthAPI
	Scheduler       Scheduler
	Logger          *zap.Logger
	RefreshMargin   time.Duration
	MinRefreshDelay time.Duration
	Now             func() time.Time
}

// NewManager builds a manager and hydrates session state from the stores.
func NewManager(opts ManagerOptions) *Manager {
	m := &Manager{
		creds:           opts.Credentials,
		tab:             opts.Tab,
		bus:             opts.Bus,
		api:             opts.API,
		sched:           opts.Scheduler,
		logger:          opts.Logger,
		refreshMargin:   opts.RefreshMargin,
		minRefreshDelay: opts.MinRefreshDelay,
		now:             opts.Now,
		info:            make(map[domain.Role]domain.ProfileSnapshot),
		tokens:          make(map[domain.Role]string),
		profileLoaded:   make(map[domain.Role]bool),
		refreshTasks:    make(map[domain.Role]TaskHandle),
	}
	if m.sched == nil {
		m.sched = NewTimerScheduler()
	}
	if m.logger == nil {
		m.logger = zap.NewNop()
	}
	if m.refreshMargin <= 0 {
		m.refreshMargin = 60 * time.Second
	}
	if m.minRefreshDelay <= 0 {
		m.minRefreshDelay = 5 * time.Second
	}
	if m.now == nil {
		m.now = time.Now
	}

	m.hydrate()
	return m
}

// hydrate loads both roles' credential records and the tab marker.
// Profiles restored from disk are presented immediately but the per-run
// "profile loaded" flag stays false until a fresh fetch succeeds.
func (m *Manager) hydrate() {
	for _, role := range []domain.Role{domain.RoleUser, domain.RoleAdmin} {
		cred, ok := m.creds.Load(role)
		if !ok {
			continue
		}
		m.tokens[role] = cred.AccessToken
		m.info[role] = cred.Profile
	}

	if role, ok := m.tab.Role(); ok {
		m.active = role
		return
	}
	switch {
	case m.tokens[domain.RoleUser] != "":
		m.active = domain.RoleUser
	case m.tokens[domain.RoleAdmin] != "":
		m.active = domain.RoleAdmin
	default:
		m.active = domain.RoleUser
	}
}

// Login posts credentials and, on success, activates the granted role.
func (m *Manager) Login(ctx context.Context, creds domain.Credentials) (domain.Credential, error) {
	grant, err := m.api.Login(ctx, creds)
	if err != nil {
		if _, ok := util.AsSessionError(err); ok {
			return domain.Credential{}, err
		}
		return domain.Credential{}, util.NewAuthError("login failed: " + err.Error())
	}
	if grant.AccessToken == "" {
		return domain.Credential{}, util.NewAuthError("login response missing access token")
	}

	role := m.grantRole(grant)
	profile := grant.Profile
	profile.Role = role

	m.mu.Lock()
	m.tokens[role] = grant.AccessToken
	m.info[role] = profile
	m.profileLoaded[role] = true
	m.active = role
	m.mu.Unlock()

	if err := m.creds.SaveTokens(role, grant.AccessToken, grant.RefreshToken, grant.ExpiresAt); err != nil {
		return domain.Credential{}, err
	}
	if err := m.creds.SaveProfile(role, profile); err != nil {
		return domain.Credential{}, err
	}
	m.tab.SetRole(role)
	m.scheduleRefresh(role, grant.ExpiresAt)

	return domain.Credential{
		AccessToken:  grant.AccessToken,
		RefreshToken: grant.RefreshToken,
		ExpiresAt:    grant.ExpiresAt,
		Profile:      profile,
	}, nil
}

// grantRole picks the role to activate. The profile's declared role wins
// over the top-level claim; a disagreement is logged as a consistency check
// against a backend sending mismatched role claims.
func (m *Manager) grantRole(grant *domain.SessionGrant) domain.Role {
	profileRole := grant.Profile.Role
	if profileRole.Valid() {
		if grant.DeclaredRole.Valid() && grant.DeclaredRole != profileRole {
			m.logger.Warn("login role claims disagree, preferring profile role",
				zap.String("declared", string(grant.DeclaredRole)),
				zap.String("profile", string(profileRole)))
		}
		return profileRole
	}
	if grant.DeclaredRole.Valid() {
		return grant.DeclaredRole
	}
	return domain.RoleUser
}

// Logout clears one role's session without touching the other role's
// credentials, then emits a session-cleared notification.
func (m *Manager) Logout(ctx context.Context, role domain.Role) error {
	if !role.Valid() {
		role = m.ActiveRole()
	}
	other := role.Other()

	m.mu.Lock()
	if handle := m.refreshTasks[role]; handle != nil {
		handle.Cancel()
		delete(m.refreshTasks, role)
	}
	delete(m.tokens, role)
	delete(m.info, role)
	m.profileLoaded[role] = false

	switchedTo := domain.Role("")
	clearedTab := false
	if m.active == role {
		if m.tokens[other] != "" || m.creds.HasToken(other) {
			m.active = other
			switchedTo = other
		} else {
			clearedTab = true
		}
	}
	m.mu.Unlock()

	if err := m.creds.Clear(role); err != nil {
		return err
	}
	if switchedTo.Valid() {
		m.tab.SetRole(switchedTo)
	} else if clearedTab {
		m.tab.Clear()
	}

	return m.bus.Publish(ctx, events.Event{
		ID:        uuid.NewString(),
		Type:      events.EventSessionCleared,
		Role:      role,
		Timestamp: m.now(),
	})
}

// FetchProfile loads the profile for a role. It is a no-op without a token,
// and failures are logged rather than returned; callers consult
// ProfileLoaded. Concurrent fetches for the same role are deduplicated and
// results are merged idempotently, so a superseded navigation's late fetch
// is harmless.
func (m *Manager) FetchProfile(ctx context.Context, role domain.Role) {
	if !role.Valid() {
		role = m.ActiveRole()
	}
	token := m.Token(role)
	if token == "" {
		return
	}

	_, err, _ := m.profileFlight.Do(string(role), func() (interface{}, error) {
		profile, err := m.api.Profile(ctx, role, token)
		if err != nil {
			return nil, err
		}
		if profile.Role == "" {
			profile.Role = role
		}

		m.mu.Lock()
		m.info[role] = *profile
		m.profileLoaded[role] = true
		m.mu.Unlock()

		if err := m.creds.SaveProfile(role, *profile); err != nil {
			m.logger.Warn("persisting profile failed", zap.String("role", string(role)), zap.Error(err))
		}
		return profile, nil
	})
	if err != nil {
		m.logger.Warn("profile fetch failed", zap.String("role", string(role)), zap.Error(err))
		m.mu.Lock()
		m.profileLoaded[role] = false
		m.mu.Unlock()
	}
}

// RefreshSession redeems the stored refresh token for a new access token.
// A missing or rejected refresh token yields a refresh failure; the caller
// is expected to log that role out.
func (m *Manager) RefreshSession(ctx context.Context, role domain.Role) error {
	return m.refresh(ctx, role, "request")
}

func (m *Manager) refresh(ctx context.Context, role domain.Role, source string) error {
	refreshToken := m.creds.RefreshToken(role)
	if refreshToken == "" {
		return util.NewRefreshFailure("no refresh token stored", nil)
	}

	grant, err := m.api.RefreshToken(ctx, role, refreshToken)
	if err != nil {
		return util.NewRefreshFailure("refresh token rejected", err)
	}
	if grant.AccessToken == "" {
		return util.NewRefreshFailure("refresh response missing access token", nil)
	}

	m.mu.Lock()
	m.tokens[role] = grant.AccessToken
	m.mu.Unlock()

	rotated := grant.RefreshToken
	if rotated == "" {
		rotated = refreshToken
	}
	if err := m.creds.SaveTokens(role, grant.AccessToken, rotated, grant.ExpiresAt); err != nil {
		return err
	}
	m.scheduleRefresh(role, grant.ExpiresAt)

	return m.bus.Publish(ctx, events.Event{
		ID:        uuid.NewString(),
		Type:      events.EventSessionRefreshed,
		Role:      role,
		Timestamp: m.now(),
		Payload: events.SessionRefreshedPayload{
			AccessToken: grant.AccessToken,
			ExpiresAt:   grant.ExpiresAt,
			Source:      source,
		},
	})
}

// scheduleRefresh arms the refresh timer at max(expiry-now-margin, floor).
// The previous timer for the role is cancelled first. Tokens without a known
// expiry are left to on-demand refresh via the gateway.
func (m *Manager) scheduleRefresh(role domain.Role, expiresAt time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if handle := m.refreshTasks[role]; handle != nil {
		handle.Cancel()
		delete(m.refreshTasks, role)
	}
	if expiresAt.IsZero() {
		return
	}

	delay := expiresAt.Sub(m.now()) - m.refreshMargin
	if delay < m.minRefreshDelay {
		delay = m.minRefreshDelay
	}
	m.refreshTasks[role] = m.sched.Schedule(delay, func() {
		m.onRefreshTimer(role)
	})
}

func (m *Manager) onRefreshTimer(role domain.Role) {
	ctx := context.Background()
	if err := m.refresh(ctx, role, "scheduler"); err != nil {
		m.logger.Warn("scheduled refresh failed, logging out",
			zap.String("role", string(role)), zap.Error(err))
		if err := m.Logout(ctx, role); err != nil {
			m.logger.Warn("logout after failed refresh", zap.Error(err))
		}
	}
}

// SetActiveRole switches which role's profile the UI presents. Tokens are
// untouched.
func (m *Manager) SetActiveRole(role domain.Role) {
	if !role.Valid() {
		return
	}
	m.mu.Lock()
	m.active = role
	m.mu.Unlock()
	m.tab.SetRole(role)
}

// ActiveRole returns the currently active role.
func (m *Manager) ActiveRole() domain.Role {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

// Token returns the in-memory access token for a role.
func (m *Manager) Token(role domain.Role) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tokens[role]
}

// Profile returns the cached profile snapshot for a role.
func (m *Manager) Profile(role domain.Role) domain.ProfileSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.info[role]
}

// ProfileLoaded reports whether a fresh profile fetch succeeded this run.
func (m *Manager) ProfileLoaded(role domain.Role) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.profileLoaded[role]
}

// HasValidSession reports whether a role has both a token and a real
// profile, the definition of a usable session.
func (m *Manager) HasValidSession(role domain.Role) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tokens[role] != "" && m.info[role].Loaded()
}

// Close cancels any armed refresh timers.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for role, handle := range m.refreshTasks {
		handle.Cancel()
		delete(m.refreshTasks, role)
	}
}
