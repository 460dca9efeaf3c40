package storage

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/adoption-client/internal/domain"
)

func TestCredentialStoreRoundTrip(t *testing.T) {
	store := NewCredentialStore(NewMemoryStore(), zap.NewNop())

	expiresAt := time.Unix(1900000000, 0)
	profile := domain.ProfileSnapshot{
		UserID:      42,
		DisplayName: "Avery",
		Email:       "avery@example.com",
		Role:        domain.RoleUser,
	}

	require.NoError(t, store.SaveTokens(domain.RoleUser, "access-1", "refresh-1", expiresAt))
	require.NoError(t, store.SaveProfile(domain.RoleUser, profile))

	cred, ok := store.Load(domain.RoleUser)
	require.True(t, ok)
	assert.Equal(t, "access-1", cred.AccessToken)
	assert.Equal(t, "refresh-1", cred.RefreshToken)
	assert.Equal(t, expiresAt.Unix(), cred.ExpiresAt.Unix())
	assert.Equal(t, profile, cred.Profile)
}

func TestCredentialStoreKeyScheme(t *testing.T) {
	kv := NewMemoryStore()
	store := NewCredentialStore(kv, zap.NewNop())

	require.NoError(t, store.SaveTokens(domain.RoleAdmin, "tok", "ref", time.Unix(100, 0)))
	require.NoError(t, store.SaveProfile(domain.RoleAdmin, domain.ProfileSnapshot{UserID: 7, DisplayName: "Sam"}))

	for _, key := range []string{
		"admin_jwt_token",
		"admin_refresh_token",
		"admin_jwt_expire_at",
		"admin_userId",
		"admin_userInfo",
		"admin_userName",
	} {
		_, ok := kv.Get(key)
		assert.True(t, ok, "expected key %s", key)
	}
}

func TestSaveTokensDropsStaleRefreshAndExpiry(t *testing.T) {
	store := NewCredentialStore(NewMemoryStore(), zap.NewNop())

	require.NoError(t, store.SaveTokens(domain.RoleUser, "tok-1", "ref-1", time.Unix(900, 0)))

	// A fresh grant without a refresh token or expiry replaces the record
	// rather than inheriting the previous session's values.
	require.NoError(t, store.SaveTokens(domain.RoleUser, "tok-2", "", time.Time{}))

	assert.Equal(t, "tok-2", store.AccessToken(domain.RoleUser))
	assert.Empty(t, store.RefreshToken(domain.RoleUser))
	cred, ok := store.Load(domain.RoleUser)
	require.True(t, ok)
	assert.True(t, cred.ExpiresAt.IsZero())
}

func TestClearLeavesOtherRoleIntact(t *testing.T) {
	kv := NewMemoryStore()
	store := NewCredentialStore(kv, zap.NewNop())

	require.NoError(t, store.SaveTokens(domain.RoleUser, "user-tok", "user-ref", time.Time{}))
	require.NoError(t, store.SaveTokens(domain.RoleAdmin, "admin-tok", "admin-ref", time.Time{}))
	// Role-scoped extras are cleared along with the credential keys.
	require.NoError(t, kv.Set("admin_filter_prefs", `{"species":"dog"}`))

	require.NoError(t, store.Clear(domain.RoleAdmin))

	assert.False(t, store.HasToken(domain.RoleAdmin))
	_, ok := kv.Get("admin_filter_prefs")
	assert.False(t, ok)

	assert.True(t, store.HasToken(domain.RoleUser))
	assert.Equal(t, "user-ref", store.RefreshToken(domain.RoleUser))
}

func TestFileStoreSurvivesReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.json")

	first, err := NewFileStore(path)
	require.NoError(t, err)
	store := NewCredentialStore(first, zap.NewNop())
	require.NoError(t, store.SaveTokens(domain.RoleUser, "tok", "ref", time.Unix(500, 0)))
	require.NoError(t, store.SaveProfile(domain.RoleUser, domain.ProfileSnapshot{UserID: 9, DisplayName: "Nico", Role: domain.RoleUser}))

	second, err := NewFileStore(path)
	require.NoError(t, err)
	reloaded := NewCredentialStore(second, zap.NewNop())

	cred, ok := reloaded.Load(domain.RoleUser)
	require.True(t, ok)
	assert.Equal(t, "tok", cred.AccessToken)
	assert.Equal(t, int64(9), cred.Profile.UserID)
}

func TestTabStoreLegacyAlias(t *testing.T) {
	kv := NewMemoryStore()
	tab := NewTabStore(kv)

	_, ok := tab.Role()
	assert.False(t, ok)

	// Only the legacy key present, as an older deployment would leave it.
	require.NoError(t, kv.Set("role", "ADMIN"))
	role, ok := tab.Role()
	require.True(t, ok)
	assert.Equal(t, domain.RoleAdmin, role)

	tab.SetRole(domain.RoleUser)
	primary, _ := kv.Get("tab_role")
	legacy, _ := kv.Get("role")
	assert.Equal(t, "USER", primary)
	assert.Equal(t, "USER", legacy)

	tab.Clear()
	_, ok = tab.Role()
	assert.False(t, ok)
}
