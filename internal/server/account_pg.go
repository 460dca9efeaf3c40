package server

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/spec-kit/adoption-client/internal/domain"
)

// pgAccountRepository is the Postgres-backed implementation used when the
// stub API runs with a DSN.
type pgAccountRepository struct {
	pool *pgxpool.Pool
}

// NewPgAccountRepository returns a Postgres-backed implementation.
func NewPgAccountRepository(pool *pgxpool.Pool) AccountRepository {
	return &pgAccountRepository{pool: pool}
}

func (r *pgAccountRepository) Create(ctx context.Context, account *Account) error {
	const query = `
        INSERT INTO accounts (email, password_hash, display_name, avatar_ref, phone, bio, role, admin_shelter_id)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
        RETURNING id, created_at, updated_at`

	return r.pool.QueryRow(ctx, query,
		account.Email,
		account.PasswordHash,
		account.DisplayName,
		account.AvatarRef,
		account.Phone,
		account.Bio,
		account.Role,
		account.AdminShelterID,
	).Scan(&account.ID, &account.CreatedAt, &account.UpdatedAt)
}

func (r *pgAccountRepository) GetByEmail(ctx context.Context, email string) (*Account, error) {
	const query = `
        SELECT id, email, password_hash, display_name, avatar_ref, phone, bio, role, admin_shelter_id, created_at, updated_at
        FROM accounts WHERE email=$1`
	return r.scanOne(r.pool.QueryRow(ctx, query, email))
}

func (r *pgAccountRepository) GetByID(ctx context.Context, id int64) (*Account, error) {
	const query = `
        SELECT id, email, password_hash, display_name, avatar_ref, phone, bio, role, admin_shelter_id, created_at, updated_at
        FROM accounts WHERE id=$1`
	return r.scanOne(r.pool.QueryRow(ctx, query, id))
}

func (r *pgAccountRepository) UpdateProfile(ctx context.Context, account *Account) error {
	const query = `
        UPDATE accounts SET display_name=$1, avatar_ref=$2, phone=$3, bio=$4, updated_at=NOW()
        WHERE id=$5`

	cmd, err := r.pool.Exec(ctx, query,
		account.DisplayName,
		account.AvatarRef,
		account.Phone,
		account.Bio,
		account.ID,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *pgAccountRepository) scanOne(row pgx.Row) (*Account, error) {
	var account Account
	var role string
	err := row.Scan(
		&account.ID,
		&account.Email,
		&account.PasswordHash,
		&account.DisplayName,
		&account.AvatarRef,
		&account.Phone,
		&account.Bio,
		&role,
		&account.AdminShelterID,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if parsed, ok := domain.ParseRole(role); ok {
		account.Role = parsed
	}
	return &account, nil
}

// NewPool establishes a pgx connection pool for the stub API.
func NewPool(ctx context.Context, dsn string, logger *zap.Logger) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	poolCfg.MaxConnIdleTime = 30 * time.Second
	poolCfg.MaxConnLifetime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	logger.Info("connected to postgres")
	return pool, nil
}

// Migrate creates the accounts table when it does not exist yet.
func Migrate(ctx context.Context, pool *pgxpool.Pool, logger *zap.Logger) error {
	const ddl = `
        CREATE TABLE IF NOT EXISTS accounts (
            id BIGSERIAL PRIMARY KEY,
            email TEXT NOT NULL UNIQUE,
            password_hash TEXT NOT NULL,
            display_name TEXT NOT NULL DEFAULT '',
            avatar_ref TEXT NOT NULL DEFAULT '',
            phone TEXT NOT NULL DEFAULT '',
            bio TEXT NOT NULL DEFAULT '',
            role TEXT NOT NULL DEFAULT 'USER',
            admin_shelter_id BIGINT NOT NULL DEFAULT 0,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        )`
	if _, err := pool.Exec(ctx, ddl); err != nil {
		return err
	}
	logger.Info("accounts schema ready")
	return nil
}
