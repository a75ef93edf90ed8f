package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/arklim/social-platform-auth/internal/core/domain"
	"github.com/arklim/social-platform-auth/internal/core/port"
	"github.com/arklim/social-platform-auth/internal/repository"
)

// PasskeyRepository implements port.PasskeyRepository backed by PostgreSQL.
type PasskeyRepository struct {
	pool    *pgxpool.Pool
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewPasskeyRepository constructs a repository backed by any executor that satisfies pgExecutor.
func NewPasskeyRepository(exec pgExecutor) *PasskeyRepository {
	repo := &PasskeyRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
	if pool, ok := exec.(*pgxpool.Pool); ok {
		repo.pool = pool
	}
	return repo
}

// Create inserts a new credential row. Duplicate credential ids surface
// repository.ErrDuplicate.
func (r *PasskeyRepository) Create(ctx context.Context, passkey domain.Passkey) error {
	stmt, args, err := r.builder.Insert("auth.passkeys").
		Columns("credential_id", "identity_id", "public_key", "sign_count", "label", "transports", "created_at", "last_used_at").
		Values(
			passkey.CredentialID,
			passkey.IdentityID,
			passkey.PublicKey,
			int64(passkey.SignCount),
			passkey.Label,
			passkey.Transports,
			passkey.CreatedAt,
			passkey.LastUsedAt,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert passkey sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		if isUniqueViolation(err) {
			return repository.ErrDuplicate
		}
		return fmt.Errorf("insert passkey: %w", err)
	}

	return nil
}

func scanPasskey(row pgx.Row) (*domain.Passkey, error) {
	var (
		passkey    domain.Passkey
		signCount  int64
		label      sql.NullString
		lastUsedAt *time.Time
	)

	if err := row.Scan(
		&passkey.CredentialID,
		&passkey.IdentityID,
		&passkey.PublicKey,
		&signCount,
		&label,
		&passkey.Transports,
		&passkey.CreatedAt,
		&lastUsedAt,
	); err != nil {
		if err == pgx.ErrNoRows {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan passkey: %w", err)
	}

	passkey.SignCount = uint32(signCount)
	if label.Valid {
		passkey.Label = label.String
	}
	passkey.LastUsedAt = lastUsedAt

	return &passkey, nil
}

// GetByCredentialID retrieves a passkey by its globally unique credential id.
func (r *PasskeyRepository) GetByCredentialID(ctx context.Context, credentialID []byte) (*domain.Passkey, error) {
	stmt, args, err := r.builder.
		Select("credential_id", "identity_id", "public_key", "sign_count", "label", "transports", "created_at", "last_used_at").
		From("auth.passkeys").
		Where(squirrel.Eq{"credential_id": credentialID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select passkey sql: %w", err)
	}

	return scanPasskey(r.exec.QueryRow(ctx, stmt, args...))
}

// ListByIdentity returns the identity's registered passkeys, oldest first.
func (r *PasskeyRepository) ListByIdentity(ctx context.Context, identityID string) ([]domain.Passkey, error) {
	stmt, args, err := r.builder.
		Select("credential_id", "identity_id", "public_key", "sign_count", "label", "transports", "created_at", "last_used_at").
		From("auth.passkeys").
		Where(squirrel.Eq{"identity_id": identityID}).
		OrderBy("created_at ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list passkeys sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query passkeys: %w", err)
	}
	defer rows.Close()

	passkeys := make([]domain.Passkey, 0)
	for rows.Next() {
		var (
			passkey    domain.Passkey
			signCount  int64
			label      sql.NullString
			lastUsedAt *time.Time
		)
		if err := rows.Scan(
			&passkey.CredentialID,
			&passkey.IdentityID,
			&passkey.PublicKey,
			&signCount,
			&label,
			&passkey.Transports,
			&passkey.CreatedAt,
			&lastUsedAt,
		); err != nil {
			return nil, fmt.Errorf("scan passkey: %w", err)
		}
		passkey.SignCount = uint32(signCount)
		if label.Valid {
			passkey.Label = label.String
		}
		passkey.LastUsedAt = lastUsedAt
		passkeys = append(passkeys, passkey)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate passkeys: %w", err)
	}

	return passkeys, nil
}

// UpdateAssertion persists the verified signature counter and last-use moment.
func (r *PasskeyRepository) UpdateAssertion(ctx context.Context, credentialID []byte, signCount uint32, lastUsedAt time.Time) error {
	stmt, args, err := r.builder.Update("auth.passkeys").
		Set("sign_count", int64(signCount)).
		Set("last_used_at", lastUsedAt).
		Where(squirrel.Eq{"credential_id": credentialID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update assertion sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("update assertion: %w", err)
	}

	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// Delete removes a credential owned by the identity.
func (r *PasskeyRepository) Delete(ctx context.Context, identityID string, credentialID []byte) error {
	stmt, args, err := r.builder.Delete("auth.passkeys").
		Where(squirrel.Eq{"credential_id": credentialID, "identity_id": identityID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete passkey sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("delete passkey: %w", err)
	}

	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

var _ port.PasskeyRepository = (*PasskeyRepository)(nil)
