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

// SessionRepository implements port.SessionRepository backed by PostgreSQL.
type SessionRepository struct {
	pool    *pgxpool.Pool
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewSessionRepository constructs a repository backed by any executor that satisfies pgExecutor.
func NewSessionRepository(exec pgExecutor) *SessionRepository {
	repo := &SessionRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
	if pool, ok := exec.(*pgxpool.Pool); ok {
		repo.pool = pool
	}
	return repo
}

// WithTx returns a repository instance operating within the supplied transaction.
func (r *SessionRepository) WithTx(tx pgx.Tx) *SessionRepository {
	if tx == nil {
		return r
	}
	return &SessionRepository{
		pool:    r.pool,
		exec:    tx,
		builder: r.builder,
	}
}

// Create inserts a new session row.
func (r *SessionRepository) Create(ctx context.Context, session domain.Session) error {
	stmt, args, err := r.builder.Insert("auth.sessions").
		Columns("id", "identity_id", "fingerprint", "ip", "user_agent", "created_at", "last_active").
		Values(
			session.ID,
			session.IdentityID,
			session.Fingerprint,
			session.IP,
			session.UserAgent,
			session.CreatedAt,
			session.LastActive,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert session sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		if isUniqueViolation(err) {
			return repository.ErrDuplicate
		}
		return fmt.Errorf("insert session: %w", err)
	}

	return nil
}

func scanSession(row pgx.Row) (*domain.Session, error) {
	var (
		session   domain.Session
		userAgent sql.NullString
	)

	if err := row.Scan(
		&session.ID,
		&session.IdentityID,
		&session.Fingerprint,
		&session.IP,
		&userAgent,
		&session.CreatedAt,
		&session.LastActive,
	); err != nil {
		if err == pgx.ErrNoRows {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan session: %w", err)
	}

	if userAgent.Valid {
		val := userAgent.String
		session.UserAgent = &val
	}

	return &session, nil
}

// GetByID retrieves a session by identifier.
func (r *SessionRepository) GetByID(ctx context.Context, sessionID string) (*domain.Session, error) {
	stmt, args, err := r.builder.
		Select("id", "identity_id", "fingerprint", "ip", "user_agent", "created_at", "last_active").
		From("auth.sessions").
		Where(squirrel.Eq{"id": sessionID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select session sql: %w", err)
	}

	return scanSession(r.exec.QueryRow(ctx, stmt, args...))
}

// ListByIdentity returns the identity's sessions ordered most recently active first.
func (r *SessionRepository) ListByIdentity(ctx context.Context, identityID string) ([]domain.Session, error) {
	stmt, args, err := r.builder.
		Select("id", "identity_id", "fingerprint", "ip", "user_agent", "created_at", "last_active").
		From("auth.sessions").
		Where(squirrel.Eq{"identity_id": identityID}).
		OrderBy("last_active DESC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list sessions sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	sessions := make([]domain.Session, 0)
	for rows.Next() {
		var (
			session   domain.Session
			userAgent sql.NullString
		)
		if err := rows.Scan(
			&session.ID,
			&session.IdentityID,
			&session.Fingerprint,
			&session.IP,
			&userAgent,
			&session.CreatedAt,
			&session.LastActive,
		); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		if userAgent.Valid {
			val := userAgent.String
			session.UserAgent = &val
		}
		sessions = append(sessions, session)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}

	return sessions, nil
}

// Touch refreshes a session's last-active timestamp.
func (r *SessionRepository) Touch(ctx context.Context, identityID, sessionID string, at time.Time) error {
	stmt, args, err := r.builder.Update("auth.sessions").
		Set("last_active", at).
		Where(squirrel.Eq{"id": sessionID, "identity_id": identityID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build touch session sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("touch session: %w", err)
	}

	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// Delete removes a single session owned by the identity.
func (r *SessionRepository) Delete(ctx context.Context, identityID, sessionID string) error {
	stmt, args, err := r.builder.Delete("auth.sessions").
		Where(squirrel.Eq{"id": sessionID, "identity_id": identityID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete session sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}

	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// DeleteAllExcept removes every session of the identity except the one to keep.
// Returns the number of sessions removed.
func (r *SessionRepository) DeleteAllExcept(ctx context.Context, identityID, keepSessionID string) (int, error) {
	stmt, args, err := r.builder.Delete("auth.sessions").
		Where(squirrel.Eq{"identity_id": identityID}).
		Where(squirrel.NotEq{"id": keepSessionID}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build delete other sessions sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return 0, fmt.Errorf("delete other sessions: %w", err)
	}

	return int(ct.RowsAffected()), nil
}

// DeleteAll removes every session owned by the identity.
func (r *SessionRepository) DeleteAll(ctx context.Context, identityID string) (int, error) {
	stmt, args, err := r.builder.Delete("auth.sessions").
		Where(squirrel.Eq{"identity_id": identityID}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build delete all sessions sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return 0, fmt.Errorf("delete all sessions: %w", err)
	}

	return int(ct.RowsAffected()), nil
}

// DeleteStale removes sessions whose last activity predates the cutoff.
func (r *SessionRepository) DeleteStale(ctx context.Context, identityID string, cutoff time.Time) (int, error) {
	stmt, args, err := r.builder.Delete("auth.sessions").
		Where(squirrel.Eq{"identity_id": identityID}).
		Where(squirrel.Lt{"last_active": cutoff}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build delete stale sessions sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return 0, fmt.Errorf("delete stale sessions: %w", err)
	}

	return int(ct.RowsAffected()), nil
}

var _ port.SessionRepository = (*SessionRepository)(nil)
