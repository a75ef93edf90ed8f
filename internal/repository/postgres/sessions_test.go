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

func TestSessionRepository_Create(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewSessionRepository(mock)

	createdAt := time.Now().UTC()
	userAgent := "Mozilla/5.0"
	session := domain.Session{
		ID:          "session-123",
		IdentityID:  "identity-123",
		Fingerprint: "fp-abc",
		IP:          "198.51.100.10",
		UserAgent:   &userAgent,
		CreatedAt:   createdAt,
		LastActive:  createdAt,
	}

	mock.ExpectExec(`INSERT INTO auth\.sessions`).
		WithArgs(
			session.ID,
			session.IdentityID,
			session.Fingerprint,
			session.IP,
			&userAgent,
			session.CreatedAt,
			session.LastActive,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	if err := repo.Create(context.Background(), session); err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSessionRepository_GetByID(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewSessionRepository(mock)

	now := time.Now().UTC()

	rows := pgxmock.NewRows([]string{
		"id", "identity_id", "fingerprint", "ip", "user_agent", "created_at", "last_active",
	}).AddRow(
		"session-1", "identity-1", "fp-1", "203.0.113.5", "UA", now, now,
	)

	mock.ExpectQuery(`SELECT .*FROM auth\.sessions`).WithArgs("session-1").WillReturnRows(rows)

	session, err := repo.GetByID(context.Background(), "session-1")
	if err != nil {
		t.Fatalf("GetByID returned error: %v", err)
	}
	if session.ID != "session-1" {
		t.Fatalf("expected session id session-1, got %s", session.ID)
	}
	if session.UserAgent == nil || *session.UserAgent != "UA" {
		t.Fatalf("expected user agent pointer populated")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSessionRepository_GetByID_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewSessionRepository(mock)

	rows := pgxmock.NewRows([]string{
		"id", "identity_id", "fingerprint", "ip", "user_agent", "created_at", "last_active",
	})

	mock.ExpectQuery(`SELECT .*FROM auth\.sessions`).WithArgs("missing").WillReturnRows(rows)

	if _, err := repo.GetByID(context.Background(), "missing"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSessionRepository_ListByIdentity(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewSessionRepository(mock)

	now := time.Now().UTC()

	rows := pgxmock.NewRows([]string{
		"id", "identity_id", "fingerprint", "ip", "user_agent", "created_at", "last_active",
	}).AddRow(
		"session-2", "identity-1", "fp-2", "203.0.113.5", nil, now, now,
	).AddRow(
		"session-1", "identity-1", "fp-1", "203.0.113.6", nil, now.Add(-time.Hour), now.Add(-time.Hour),
	)

	mock.ExpectQuery(`SELECT .*FROM auth\.sessions`).WithArgs("identity-1").WillReturnRows(rows)

	sessions, err := repo.ListByIdentity(context.Background(), "identity-1")
	if err != nil {
		t.Fatalf("ListByIdentity returned error: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("expected two sessions, got %d", len(sessions))
	}
	if sessions[0].ID != "session-2" || sessions[1].ID != "session-1" {
		t.Fatalf("unexpected session order: %+v", sessions)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSessionRepository_Touch(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewSessionRepository(mock)

	at := time.Now().UTC()

	mock.ExpectExec(`UPDATE auth\.sessions`).
		WithArgs(at, "session-5", "identity-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	if err := repo.Touch(context.Background(), "identity-1", "session-5", at); err != nil {
		t.Fatalf("Touch returned error: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSessionRepository_Touch_Missing(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewSessionRepository(mock)

	mock.ExpectExec(`UPDATE auth\.sessions`).
		WithArgs(pgxmock.AnyArg(), "session-9", "identity-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err = repo.Touch(context.Background(), "identity-1", "session-9", time.Now().UTC())
	if !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSessionRepository_DeleteAllExcept(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewSessionRepository(mock)

	mock.ExpectExec(`DELETE FROM auth\.sessions`).
		WithArgs("identity-1", "session-keep").
		WillReturnResult(pgxmock.NewResult("DELETE", 3))

	removed, err := repo.DeleteAllExcept(context.Background(), "identity-1", "session-keep")
	if err != nil {
		t.Fatalf("DeleteAllExcept returned error: %v", err)
	}
	if removed != 3 {
		t.Fatalf("expected 3 removed sessions, got %d", removed)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSessionRepository_DeleteStale(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewSessionRepository(mock)

	cutoff := time.Now().UTC().Add(-30 * 24 * time.Hour)

	mock.ExpectExec(`DELETE FROM auth\.sessions`).
		WithArgs("identity-1", cutoff).
		WillReturnResult(pgxmock.NewResult("DELETE", 2))

	removed, err := repo.DeleteStale(context.Background(), "identity-1", cutoff)
	if err != nil {
		t.Fatalf("DeleteStale returned error: %v", err)
	}
	if removed != 2 {
		t.Fatalf("expected 2 removed sessions, got %d", removed)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
