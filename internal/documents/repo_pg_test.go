package documents

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestPGRepoUpdateBuildsSetFromProvidedFields(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	now := time.Now().UTC()
	name := "Renamed"
	rows := sqlmock.NewRows([]string{"id", "user_id", "name", "description", "created_at", "updated_at"}).
		AddRow("doc-1", "user-1", name, nil, now, now)

	mock.ExpectQuery(regexp.QuoteMeta("SET name = $1, updated_at = $2\nWHERE id = $3 AND user_id = $4")).
		WithArgs(name, now, "doc-1", "user-1").
		WillReturnRows(rows)

	repo := &PGRepo{DB: db}
	doc, err := repo.Update(context.Background(), "user-1", "doc-1", Patch{Name: &name}, now)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if doc.Name != name || doc.Description != nil {
		t.Fatalf("unexpected document %+v", doc)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGRepoUpdateMissingRowIsNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	desc := ""
	now := time.Now().UTC()
	mock.ExpectQuery(regexp.QuoteMeta("SET description = $1, updated_at = $2")).
		WithArgs(nil, now, "doc-1", "user-2").
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "name", "description", "created_at", "updated_at"}))

	repo := &PGRepo{DB: db}
	if _, err := repo.Update(context.Background(), "user-2", "doc-1", Patch{Description: &desc}, now); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPGRepoDeleteScopedByOwner(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM documents WHERE id = $1 AND user_id = $2")).
		WithArgs("doc-1", "user-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	repo := &PGRepo{DB: db}
	if err := repo.Delete(context.Background(), "user-1", "doc-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGRepoListOrdersByUpdatedAt(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{"id", "user_id", "name", "description", "created_at", "updated_at"}).
		AddRow("doc-2", "user-1", "B", "desc", now, now).
		AddRow("doc-1", "user-1", "A", nil, now, now.Add(-time.Hour))
	mock.ExpectQuery("ORDER BY updated_at DESC").WithArgs("user-1").WillReturnRows(rows)

	repo := &PGRepo{DB: db}
	docs, err := repo.ListByUser(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("ListByUser: %v", err)
	}
	if len(docs) != 2 || docs[0].ID != "doc-2" || docs[0].Description == nil || *docs[0].Description != "desc" {
		t.Fatalf("unexpected documents %+v", docs)
	}
}
