package storage

import (
	"encoding/json"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/adoption-client/internal/domain"
)

// Persistent storage key suffixes, prefixed by the role slug.
const (
	keyToken        = "_jwt_token"
	keyRefreshToken = "_refresh_token"
	keyExpireAt     = "_jwt_expire_at"
	keyUserID       = "_userId"
	keyUserInfo     = "_userInfo"
	keyUserName     = "_userName"
)

// CredentialStore reads and writes per-role Credential records through a KV.
// The two roles' records are fully independent: clearing one role never
// touches the other's keys.
type CredentialStore struct {
	kv     KV
	logger *zap.Logger
}

// NewCredentialStore wraps a KV with the credential key scheme.
func NewCredentialStore(kv KV, logger *zap.Logger) *CredentialStore {
	return &CredentialStore{kv: kv, logger: logger}
}

// SaveTokens persists the token triple for a role. A grant without a refresh
// token or expiry drops the stored values: the previous session's refresh
// token would not pair with the new access token.
func (s *CredentialStore) SaveTokens(role domain.Role, accessToken, refreshToken string, expiresAt time.Time) error {
	slug := role.Slug()
	if err := s.kv.Set(slug+keyToken, accessToken); err != nil {
		return err
	}
	if refreshToken == "" {
		if err := s.kv.Delete(slug + keyRefreshToken); err != nil {
			return err
		}
	} else if err := s.kv.Set(slug+keyRefreshToken, refreshToken); err != nil {
		return err
	}
	if expiresAt.IsZero() {
		return s.kv.Delete(slug + keyExpireAt)
	}
	return s.kv.Set(slug+keyExpireAt, strconv.FormatInt(expiresAt.Unix(), 10))
}

// SaveProfile persists the profile snapshot for a role.
func (s *CredentialStore) SaveProfile(role domain.Role, profile domain.ProfileSnapshot) error {
	slug := role.Slug()
	data, err := json.Marshal(profile)
	if err != nil {
		return err
	}
	if err := s.kv.Set(slug+keyUserInfo, string(data)); err != nil {
		return err
	}
	if err := s.kv.Set(slug+keyUserID, strconv.FormatInt(profile.UserID, 10)); err != nil {
		return err
	}
	return s.kv.Set(slug+keyUserName, profile.DisplayName)
}

// AccessToken returns the stored access token for a role.
func (s *CredentialStore) AccessToken(role domain.Role) string {
	val, _ := s.kv.Get(role.Slug() + keyToken)
	return val
}

// RefreshToken returns the stored refresh token for a role.
func (s *CredentialStore) RefreshToken(role domain.Role) string {
	val, _ := s.kv.Get(role.Slug() + keyRefreshToken)
	return val
}

// HasToken reports whether a role has a stored access token.
func (s *CredentialStore) HasToken(role domain.Role) bool {
	return s.AccessToken(role) != ""
}

// Load reconstructs the full Credential record for a role.
func (s *CredentialStore) Load(role domain.Role) (domain.Credential, bool) {
	slug := role.Slug()
	cred := domain.Credential{
		AccessToken:  s.AccessToken(role),
		RefreshToken: s.RefreshToken(role),
	}
	if cred.AccessToken == "" {
		return domain.Credential{}, false
	}

	if raw, ok := s.kv.Get(slug + keyExpireAt); ok {
		if unix, err := strconv.ParseInt(raw, 10, 64); err == nil {
			cred.ExpiresAt = time.Unix(unix, 0)
		}
	}
	if raw, ok := s.kv.Get(slug + keyUserInfo); ok {
		if err := json.Unmarshal([]byte(raw), &cred.Profile); err != nil {
			s.logger.Warn("corrupt stored profile", zap.String("role", string(role)), zap.Error(err))
		}
	}
	return cred, true
}

// Clear removes every persisted artifact of the role, including role-scoped
// extras such as cached admin UI filters, by deleting all slug-prefixed keys.
func (s *CredentialStore) Clear(role domain.Role) error {
	for _, key := range s.kv.Keys(role.Slug() + "_") {
		if err := s.kv.Delete(key); err != nil {
			return err
		}
	}
	return nil
}
