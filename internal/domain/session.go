package domain

import "time"

// ProfileSnapshot is the cached account profile for one role.
type ProfileSnapshot struct {
	UserID         int64  `json:"user_id"`
	DisplayName    string `json:"display_name"`
	AvatarRef      string `json:"avatar_ref,omitempty"`
	Email          string `json:"email,omitempty"`
	Phone          string `json:"phone,omitempty"`
	Bio            string `json:"bio,omitempty"`
	Role           Role   `json:"role"`
	AdminShelterID int64  `json:"admin_shelter_id,omitempty"`
}

// Loaded reports whether the snapshot points at a real account.
func (p ProfileSnapshot) Loaded() bool {
	return p.UserID > 0
}

// Credential is the persisted token and profile bundle for one role.
type Credential struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	Profile      ProfileSnapshot
}

// SessionGrant is what the login endpoint hands back on success.
// DeclaredRole is the top-level role claim; Profile carries its own role
// field which takes precedence when the two disagree.
type SessionGrant struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	DeclaredRole Role
	Profile      ProfileSnapshot
}

// TokenGrant is what the refresh endpoint hands back on success.
type TokenGrant struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// Credentials are the fields posted to the login endpoint.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}
