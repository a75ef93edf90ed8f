package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/arklim/social-platform-auth/internal/core/domain"
	"github.com/arklim/social-platform-auth/internal/core/port"
	"github.com/arklim/social-platform-auth/internal/repository"
)

// IdentityRepository implements port.IdentityRepository using PostgreSQL.
type IdentityRepository struct {
	pool    *pgxpool.Pool
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewIdentityRepository constructs a repository backed by any executor that satisfies pgExecutor.
func NewIdentityRepository(exec pgExecutor) *IdentityRepository {
	repo := &IdentityRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
	if pool, ok := exec.(*pgxpool.Pool); ok {
		repo.pool = pool
	}
	return repo
}

// WithTx returns a repository instance operating within the supplied transaction.
func (r *IdentityRepository) WithTx(tx pgx.Tx) *IdentityRepository {
	if tx == nil {
		return r
	}
	return &IdentityRepository{
		pool:    r.pool,
		exec:    tx,
		builder: r.builder,
	}
}

const uniqueViolationCode = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode
}

// Create inserts a new identity row.
func (r *IdentityRepository) Create(ctx context.Context, identity domain.Identity) error {
	query := r.builder.Insert("auth.identities").
		Columns(
			"id",
			"email",
			"username",
			"password_hash",
			"birth_date",
			"role",
			"banned",
			"ban_reason",
			"suspended_until",
			"suspended_reason",
			"registered_at",
			"last_login",
		).
		Values(
			identity.ID,
			identity.Email,
			identity.Username,
			identity.PasswordHash,
			identity.BirthDate,
			identity.Role,
			identity.Banned,
			identity.BanReason,
			identity.SuspendedUntil,
			identity.SuspendedReason,
			identity.RegisteredAt,
			identity.LastLogin,
		)

	stmt, args, err := query.ToSql()
	if err != nil {
		return fmt.Errorf("build insert identity sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		if isUniqueViolation(err) {
			return repository.ErrDuplicate
		}
		return fmt.Errorf("insert identity: %w", err)
	}

	return nil
}

var identityColumns = []string{
	"id",
	"email",
	"username",
	"password_hash",
	"birth_date",
	"role",
	"banned",
	"ban_reason",
	"suspended_until",
	"suspended_reason",
	"registered_at",
	"last_login",
}

func scanIdentity(row pgx.Row) (*domain.Identity, error) {
	var (
		identity        domain.Identity
		banReason       sql.NullString
		suspendedUntil  *time.Time
		suspendedReason sql.NullString
		lastLogin       *time.Time
	)

	if err := row.Scan(
		&identity.ID,
		&identity.Email,
		&identity.Username,
		&identity.PasswordHash,
		&identity.BirthDate,
		&identity.Role,
		&identity.Banned,
		&banReason,
		&suspendedUntil,
		&suspendedReason,
		&identity.RegisteredAt,
		&lastLogin,
	); err != nil {
		if err == pgx.ErrNoRows {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan identity: %w", err)
	}

	if banReason.Valid {
		val := banReason.String
		identity.BanReason = &val
	}
	identity.SuspendedUntil = suspendedUntil
	if suspendedReason.Valid {
		val := suspendedReason.String
		identity.SuspendedReason = &val
	}
	identity.LastLogin = lastLogin

	return &identity, nil
}

// GetByID retrieves an identity by identifier.
func (r *IdentityRepository) GetByID(ctx context.Context, id string) (*domain.Identity, error) {
	stmt, args, err := r.builder.
		Select(identityColumns...).
		From("auth.identities").
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select identity sql: %w", err)
	}

	return scanIdentity(r.exec.QueryRow(ctx, stmt, args...))
}

// GetByEmail retrieves an identity by its unique email address.
func (r *IdentityRepository) GetByEmail(ctx context.Context, email string) (*domain.Identity, error) {
	stmt, args, err := r.builder.
		Select(identityColumns...).
		From("auth.identities").
		Where(squirrel.Eq{"email": strings.ToLower(strings.TrimSpace(email))}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select identity by email sql: %w", err)
	}

	return scanIdentity(r.exec.QueryRow(ctx, stmt, args...))
}

// UpdatePassword updates an identity's password hash.
func (r *IdentityRepository) UpdatePassword(ctx context.Context, id string, passwordHash string, changedAt time.Time) error {
	stmt, args, err := r.builder.Update("auth.identities").
		Set("password_hash", passwordHash).
		Set("password_changed_at", changedAt).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update password sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}

	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// SetBanned marks the identity as banned with the supplied reason.
func (r *IdentityRepository) SetBanned(ctx context.Context, id string, reason string) error {
	stmt, args, err := r.builder.Update("auth.identities").
		Set("banned", true).
		Set("ban_reason", reason).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build ban identity sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("ban identity: %w", err)
	}

	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// ClearSuspension lifts an expired suspension.
func (r *IdentityRepository) ClearSuspension(ctx context.Context, id string) error {
	stmt, args, err := r.builder.Update("auth.identities").
		Set("suspended_until", nil).
		Set("suspended_reason", nil).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build clear suspension sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("clear suspension: %w", err)
	}

	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// RecordLogin updates the identity's last-login timestamp.
func (r *IdentityRepository) RecordLogin(ctx context.Context, id string, at time.Time) error {
	stmt, args, err := r.builder.Update("auth.identities").
		Set("last_login", at).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build record login sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("record login: %w", err)
	}

	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// GetTwoFactor loads the TOTP configuration and backup codes for an identity.
func (r *IdentityRepository) GetTwoFactor(ctx context.Context, identityID string) (*domain.TwoFactorConfig, error) {
	stmt, args, err := r.builder.
		Select("enabled", "secret").
		From("auth.two_factor").
		Where(squirrel.Eq{"identity_id": identityID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select two factor sql: %w", err)
	}

	var cfg domain.TwoFactorConfig
	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(&cfg.Enabled, &cfg.Secret); err != nil {
		if err == pgx.ErrNoRows {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan two factor: %w", err)
	}

	codesStmt, codesArgs, err := r.builder.
		Select("code", "used").
		From("auth.backup_codes").
		Where(squirrel.Eq{"identity_id": identityID}).
		OrderBy("position ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select backup codes sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, codesStmt, codesArgs...)
	if err != nil {
		return nil, fmt.Errorf("query backup codes: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var code domain.BackupCode
		if err := rows.Scan(&code.Code, &code.Used); err != nil {
			return nil, fmt.Errorf("scan backup code: %w", err)
		}
		cfg.BackupCodes = append(cfg.BackupCodes, code)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate backup codes: %w", err)
	}

	return &cfg, nil
}

// SaveTwoFactor upserts the TOTP configuration and replaces the backup code set.
func (r *IdentityRepository) SaveTwoFactor(ctx context.Context, identityID string, cfg domain.TwoFactorConfig) error {
	stmt, args, err := r.builder.Insert("auth.two_factor").
		Columns("identity_id", "enabled", "secret").
		Values(identityID, cfg.Enabled, cfg.Secret).
		Suffix("ON CONFLICT (identity_id) DO UPDATE SET enabled = EXCLUDED.enabled, secret = EXCLUDED.secret").
		ToSql()
	if err != nil {
		return fmt.Errorf("build upsert two factor sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("upsert two factor: %w", err)
	}

	delStmt, delArgs, err := r.builder.Delete("auth.backup_codes").
		Where(squirrel.Eq{"identity_id": identityID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete backup codes sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, delStmt, delArgs...); err != nil {
		return fmt.Errorf("delete backup codes: %w", err)
	}

	if len(cfg.BackupCodes) == 0 {
		return nil
	}

	insert := r.builder.Insert("auth.backup_codes").
		Columns("identity_id", "position", "code", "used")
	for i, code := range cfg.BackupCodes {
		insert = insert.Values(identityID, i, code.Code, code.Used)
	}

	insStmt, insArgs, err := insert.ToSql()
	if err != nil {
		return fmt.Errorf("build insert backup codes sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, insStmt, insArgs...); err != nil {
		return fmt.Errorf("insert backup codes: %w", err)
	}

	return nil
}

// DeleteTwoFactor removes the TOTP configuration and all backup codes.
func (r *IdentityRepository) DeleteTwoFactor(ctx context.Context, identityID string) error {
	delCodes, codesArgs, err := r.builder.Delete("auth.backup_codes").
		Where(squirrel.Eq{"identity_id": identityID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete backup codes sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, delCodes, codesArgs...); err != nil {
		return fmt.Errorf("delete backup codes: %w", err)
	}

	stmt, args, err := r.builder.Delete("auth.two_factor").
		Where(squirrel.Eq{"identity_id": identityID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete two factor sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("delete two factor: %w", err)
	}

	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// AppendLoginHistory inserts a login attempt record and trims the history so
// only the newest limit entries are retained.
func (r *IdentityRepository) AppendLoginHistory(ctx context.Context, identityID string, entry domain.LoginHistoryEntry, limit int) error {
	stmt, args, err := r.builder.Insert("auth.login_history").
		Columns("identity_id", "ip", "fingerprint", "succeeded", "failure_reason", "occurred_at").
		Values(identityID, entry.IP, entry.Fingerprint, entry.Succeeded, entry.FailureReason, entry.At).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert login history sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("insert login history: %w", err)
	}

	if limit <= 0 {
		return nil
	}

	trim := `
		DELETE FROM auth.login_history
		 WHERE identity_id = $1
		   AND id NOT IN (
				SELECT id
				  FROM auth.login_history
				 WHERE identity_id = $1
				 ORDER BY occurred_at DESC, id DESC
				 LIMIT $2
		   )
	`

	if _, err := r.exec.Exec(ctx, trim, identityID, limit); err != nil {
		return fmt.Errorf("trim login history: %w", err)
	}

	return nil
}

// ListLoginHistory returns the retained login attempts, oldest first.
func (r *IdentityRepository) ListLoginHistory(ctx context.Context, identityID string) ([]domain.LoginHistoryEntry, error) {
	stmt, args, err := r.builder.
		Select("ip", "fingerprint", "succeeded", "failure_reason", "occurred_at").
		From("auth.login_history").
		Where(squirrel.Eq{"identity_id": identityID}).
		OrderBy("occurred_at ASC", "id ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select login history sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query login history: %w", err)
	}
	defer rows.Close()

	history := make([]domain.LoginHistoryEntry, 0)
	for rows.Next() {
		var (
			entry         domain.LoginHistoryEntry
			failureReason sql.NullString
		)
		if err := rows.Scan(&entry.IP, &entry.Fingerprint, &entry.Succeeded, &failureReason, &entry.At); err != nil {
			return nil, fmt.Errorf("scan login history: %w", err)
		}
		if failureReason.Valid {
			val := failureReason.String
			entry.FailureReason = &val
		}
		history = append(history, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate login history: %w", err)
	}

	return history, nil
}

// AddTrustedDevice records a device fingerprint the identity has vouched for.
func (r *IdentityRepository) AddTrustedDevice(ctx context.Context, identityID string, device domain.TrustedDevice) error {
	stmt, args, err := r.builder.Insert("auth.trusted_devices").
		Columns("identity_id", "fingerprint", "label", "added_at").
		Values(identityID, device.Fingerprint, device.Label, device.AddedAt).
		Suffix("ON CONFLICT (identity_id, fingerprint) DO NOTHING").
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert trusted device sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("insert trusted device: %w", err)
	}

	return nil
}

// ListTrustedDevices returns the identity's trusted devices, oldest first.
func (r *IdentityRepository) ListTrustedDevices(ctx context.Context, identityID string) ([]domain.TrustedDevice, error) {
	stmt, args, err := r.builder.
		Select("fingerprint", "label", "added_at").
		From("auth.trusted_devices").
		Where(squirrel.Eq{"identity_id": identityID}).
		OrderBy("added_at ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select trusted devices sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query trusted devices: %w", err)
	}
	defer rows.Close()

	devices := make([]domain.TrustedDevice, 0)
	for rows.Next() {
		var (
			device domain.TrustedDevice
			label  sql.NullString
		)
		if err := rows.Scan(&device.Fingerprint, &label, &device.AddedAt); err != nil {
			return nil, fmt.Errorf("scan trusted device: %w", err)
		}
		if label.Valid {
			val := label.String
			device.Label = &val
		}
		devices = append(devices, device)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trusted devices: %w", err)
	}

	return devices, nil
}

var _ port.IdentityRepository = (*IdentityRepository)(nil)
