package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	pgxmock "github.com/pashagolub/pgxmock/v2"

	"github.com/arklim/social-platform-auth/internal/core/domain"
	"github.com/arklim/social-platform-auth/internal/repository"
)

func TestIdentityRepository_Create(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewIdentityRepository(mock)

	registeredAt := time.Now().UTC()
	identity := domain.Identity{
		ID:           "identity-1",
		Email:        "ada@example.com",
		Username:     "ada",
		PasswordHash: "$argon2id$v=19$m=65536,t=3,p=2$salt$hash",
		BirthDate:    time.Date(1990, 12, 10, 0, 0, 0, 0, time.UTC),
		Role:         domain.RoleUser,
		RegisteredAt: registeredAt,
	}

	mock.ExpectExec(`INSERT INTO auth\.identities`).
		WithArgs(
			identity.ID,
			identity.Email,
			identity.Username,
			identity.PasswordHash,
			identity.BirthDate,
			identity.Role,
			false,
			(*string)(nil),
			(*time.Time)(nil),
			(*string)(nil),
			identity.RegisteredAt,
			(*time.Time)(nil),
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	if err := repo.Create(context.Background(), identity); err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestIdentityRepository_GetByEmail(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewIdentityRepository(mock)

	now := time.Now().UTC()
	birth := time.Date(2001, 4, 2, 0, 0, 0, 0, time.UTC)

	rows := pgxmock.NewRows([]string{
		"id", "email", "username", "password_hash", "birth_date", "role",
		"banned", "ban_reason", "suspended_until", "suspended_reason", "registered_at", "last_login",
	}).AddRow(
		"identity-1", "ada@example.com", "ada", "hash", birth, domain.RoleUser,
		false, nil, nil, nil, now, nil,
	)

	mock.ExpectQuery(`SELECT .*FROM auth\.identities`).
		WithArgs("ada@example.com").
		WillReturnRows(rows)

	identity, err := repo.GetByEmail(context.Background(), "  Ada@Example.com ")
	if err != nil {
		t.Fatalf("GetByEmail returned error: %v", err)
	}
	if identity.ID != "identity-1" {
		t.Fatalf("expected identity-1, got %s", identity.ID)
	}
	if identity.Banned || identity.BanReason != nil {
		t.Fatalf("expected identity not banned")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestIdentityRepository_GetByEmail_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewIdentityRepository(mock)

	rows := pgxmock.NewRows([]string{
		"id", "email", "username", "password_hash", "birth_date", "role",
		"banned", "ban_reason", "suspended_until", "suspended_reason", "registered_at", "last_login",
	})

	mock.ExpectQuery(`SELECT .*FROM auth\.identities`).
		WithArgs("ghost@example.com").
		WillReturnRows(rows)

	if _, err := repo.GetByEmail(context.Background(), "ghost@example.com"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestIdentityRepository_SetBanned(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewIdentityRepository(mock)

	mock.ExpectExec(`UPDATE auth\.identities`).
		WithArgs(true, domain.BanReasonUnderage, "identity-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	if err := repo.SetBanned(context.Background(), "identity-1", domain.BanReasonUnderage); err != nil {
		t.Fatalf("SetBanned returned error: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestIdentityRepository_SaveTwoFactor(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewIdentityRepository(mock)

	cfg := domain.TwoFactorConfig{
		Enabled: true,
		Secret:  "JBSWY3DPEHPK3PXP",
		BackupCodes: []domain.BackupCode{
			{Code: "AAAAA-BBBBB"},
			{Code: "CCCCC-DDDDD", Used: true},
		},
	}

	mock.ExpectExec(`INSERT INTO auth\.two_factor`).
		WithArgs("identity-1", true, cfg.Secret).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`DELETE FROM auth\.backup_codes`).
		WithArgs("identity-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectExec(`INSERT INTO auth\.backup_codes`).
		WithArgs(
			"identity-1", 0, "AAAAA-BBBBB", false,
			"identity-1", 1, "CCCCC-DDDDD", true,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 2))

	if err := repo.SaveTwoFactor(context.Background(), "identity-1", cfg); err != nil {
		t.Fatalf("SaveTwoFactor returned error: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestIdentityRepository_GetTwoFactor(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewIdentityRepository(mock)

	cfgRows := pgxmock.NewRows([]string{"enabled", "secret"}).
		AddRow(true, "JBSWY3DPEHPK3PXP")
	codeRows := pgxmock.NewRows([]string{"code", "used"}).
		AddRow("AAAAA-BBBBB", false).
		AddRow("CCCCC-DDDDD", true)

	mock.ExpectQuery(`SELECT .*FROM auth\.two_factor`).
		WithArgs("identity-1").
		WillReturnRows(cfgRows)
	mock.ExpectQuery(`SELECT .*FROM auth\.backup_codes`).
		WithArgs("identity-1").
		WillReturnRows(codeRows)

	cfg, err := repo.GetTwoFactor(context.Background(), "identity-1")
	if err != nil {
		t.Fatalf("GetTwoFactor returned error: %v", err)
	}
	if !cfg.Enabled {
		t.Fatalf("expected two factor enabled")
	}
	if len(cfg.BackupCodes) != 2 {
		t.Fatalf("expected two backup codes, got %d", len(cfg.BackupCodes))
	}
	if cfg.RemainingBackupCodes() != 1 {
		t.Fatalf("expected one remaining backup code")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestIdentityRepository_AppendLoginHistory_Trims(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewIdentityRepository(mock)

	at := time.Now().UTC()
	entry := domain.LoginHistoryEntry{
		IP:          "198.51.100.10",
		Fingerprint: "fp-1",
		Succeeded:   true,
		At:          at,
	}

	mock.ExpectExec(`INSERT INTO auth\.login_history`).
		WithArgs("identity-1", entry.IP, entry.Fingerprint, true, (*string)(nil), at).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`DELETE FROM auth\.login_history`).
		WithArgs("identity-1", 20).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))

	if err := repo.AppendLoginHistory(context.Background(), "identity-1", entry, 20); err != nil {
		t.Fatalf("AppendLoginHistory returned error: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
