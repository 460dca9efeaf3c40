package server

import (
	"context"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/adoption-client/internal/domain"
)

// Account is the stub API's stored user record. ADMIN accounts carry the
// shelter they administer.
type Account struct {
	ID             int64
	Email          string
	PasswordHash   string
	DisplayName    string
	AvatarRef      string
	Phone          string
	Bio            string
	Role           domain.Role
	AdminShelterID int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Profile converts the account to the wire profile snapshot.
func (a *Account) Profile() domain.ProfileSnapshot {
	return domain.ProfileSnapshot{
		UserID:         a.ID,
		DisplayName:    a.DisplayName,
		AvatarRef:      a.AvatarRef,
		Email:          a.Email,
		Phone:          a.Phone,
		Bio:            a.Bio,
		Role:           a.Role,
		AdminShelterID: a.AdminShelterID,
	}
}

// AccountRepository defines persistence access for accounts.
type AccountRepository interface {
	Create(ctx context.Context, account *Account) error
	GetByEmail(ctx context.Context, email string) (*Account, error)
	GetByID(ctx context.Context, id int64) (*Account, error)
	UpdateProfile(ctx context.Context, account *Account) error
}

// memoryAccountRepository keeps accounts in process memory. It backs tests
// and DSN-less development runs.
type memoryAccountRepository struct {
	mu      sync.RWMutex
	nextID  int64
	byID    map[int64]*Account
	byEmail map[string]int64
}

// NewMemoryAccountRepository returns an in-memory implementation.
func NewMemoryAccountRepository() AccountRepository {
	return &memoryAccountRepository{
		nextID:  1,
		byID:    make(map[int64]*Account),
		byEmail: make(map[string]int64),
	}
}

func (r *memoryAccountRepository) Create(_ context.Context, account *Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	account.ID = r.nextID
	r.nextID++
	now := time.Now()
	account.CreatedAt = now
	account.UpdatedAt = now
	clone := *account
	r.byID[account.ID] = &clone
	r.byEmail[account.Email] = account.ID
	return nil
}

func (r *memoryAccountRepository) GetByEmail(_ context.Context, email string) (*Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byEmail[email]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	clone := *r.byID[id]
	return &clone, nil
}

func (r *memoryAccountRepository) GetByID(_ context.Context, id int64) (*Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	account, ok := r.byID[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	clone := *account
	return &clone, nil
}

func (r *memoryAccountRepository) UpdateProfile(_ context.Context, account *Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.byID[account.ID]
	if !ok {
		return pgx.ErrNoRows
	}
	stored.DisplayName = account.DisplayName
	stored.AvatarRef = account.AvatarRef
	stored.Phone = account.Phone
	stored.Bio = account.Bio
	stored.UpdatedAt = time.Now()
	return nil
}
