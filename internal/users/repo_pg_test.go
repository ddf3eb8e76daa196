package users

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
)

func TestPGRepoCreateMapsUniqueViolation(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	now := time.Now().UTC()
	user := User{ID: "u1", Email: "a@x.com", PasswordHash: "hash", CreatedAt: now, UpdatedAt: now}

	mock.ExpectExec("INSERT INTO users").
		WithArgs(user.ID, user.Email, user.PasswordHash, now, now).
		WillReturnError(&pgconn.PgError{Code: "23505"})

	repo := &PGRepo{DB: db}
	if err := repo.Create(context.Background(), user); !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGRepoGetByEmail(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{"id", "email", "password_hash", "created_at", "updated_at"}).
		AddRow("u1", "a@x.com", "hash", now, now)
	mock.ExpectQuery(`WHERE lower\(email\) = lower\(\$1\)`).
		WithArgs("a@x.com").
		WillReturnRows(rows)
	mock.ExpectQuery("FROM users").
		WithArgs("missing@x.com").
		WillReturnError(sql.ErrNoRows)

	repo := &PGRepo{DB: db}
	user, err := repo.GetByEmail(context.Background(), "a@x.com")
	if err != nil {
		t.Fatalf("GetByEmail: %v", err)
	}
	if user.ID != "u1" || user.PasswordHash != "hash" {
		t.Fatalf("unexpected user %+v", user)
	}
	if _, err := repo.GetByEmail(context.Background(), "missing@x.com"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}
