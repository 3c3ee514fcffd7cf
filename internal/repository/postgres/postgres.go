package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/splax/teamroster/internal/domain"
	"github.com/splax/teamroster/internal/repository"
)

// Repository implements persistence interfaces on PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// New constructs a Repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ensure Repository satisfies interfaces.
var (
	_ repository.IdentityRepository = (*Repository)(nil)
	_ repository.DocumentRepository = (*Repository)(nil)
)

const uniqueViolation = "23505"

// CreateIdentity inserts an identity.
func (r *Repository) CreateIdentity(ctx context.Context, identity *domain.Identity) error {
	const query = `INSERT INTO users (id, email, password_hash, role, created_at)
		VALUES ($1, lower($2), $3, $4, $5)`
	_, err := r.pool.Exec(ctx, query, identity.ID, identity.Email, identity.PasswordHash, string(identity.Role), identity.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return repository.ErrConflict
		}
		return err
	}
	return nil
}

// GetIdentityByEmail fetches an identity by email.
func (r *Repository) GetIdentityByEmail(ctx context.Context, email string) (*domain.Identity, error) {
	const query = `SELECT id, email, password_hash, role, created_at FROM users WHERE email = lower($1)`
	return scanIdentity(r.pool.QueryRow(ctx, query, email))
}

// GetIdentityByID retrieves an identity by identifier.
func (r *Repository) GetIdentityByID(ctx context.Context, id string) (*domain.Identity, error) {
	const query = `SELECT id, email, password_hash, role, created_at FROM users WHERE id = $1`
	return scanIdentity(r.pool.QueryRow(ctx, query, id))
}

// DeleteIdentity removes an identity by identifier.
func (r *Repository) DeleteIdentity(ctx context.Context, id string) error {
	const query = `DELETE FROM users WHERE id = $1`
	_, err := r.pool.Exec(ctx, query, id)
	return err
}

func scanIdentity(row pgx.Row) (*domain.Identity, error) {
	var (
		u    domain.Identity
		role string
	)
	if err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &role, &u.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	u.Role = domain.Role(role)
	return &u, nil
}
