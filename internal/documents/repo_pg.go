package documents

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"time"

	"knowledge-hub/internal/shared/storage/db"
)

const documentColumns = `id, user_id, name, description, created_at, updated_at`

// PGRepo implements Repo using Postgres.
type PGRepo struct {
	DB *sql.DB
}

func (r *PGRepo) Create(ctx context.Context, doc Document) error {
	const query = `
INSERT INTO documents (id, user_id, name, description, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := r.DB.ExecContext(ctx, query,
		doc.ID,
		doc.UserID,
		doc.Name,
		nullableString(doc.Description),
		doc.CreatedAt,
		doc.UpdatedAt,
	)
	return err
}

func (r *PGRepo) ListByUser(ctx context.Context, userID string) ([]Document, error) {
	const query = `
SELECT ` + documentColumns + `
FROM documents
WHERE user_id = $1
ORDER BY updated_at DESC, id DESC`
	rows, err := r.DB.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	docs := make([]Document, 0)
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return docs, nil
}

func (r *PGRepo) Get(ctx context.Context, userID, documentID string) (Document, error) {
	const query = `
SELECT ` + documentColumns + `
FROM documents
WHERE id = $1 AND user_id = $2
LIMIT 1`
	doc, err := scanDocument(r.DB.QueryRowContext(ctx, query, documentID, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return Document{}, ErrNotFound
	}
	return doc, err
}

// Update writes only the fields present in patch, plus updated_at.
func (r *PGRepo) Update(ctx context.Context, userID, documentID string, patch Patch, updatedAt time.Time) (Document, error) {
	var set []db.Assignment
	if patch.Name != nil {
		set = append(set, db.Assignment{Column: "name", Value: *patch.Name})
	}
	if patch.Description != nil {
		set = append(set, db.Assignment{Column: "description", Value: nullableString(patch.Description)})
	}
	set = append(set, db.Assignment{Column: "updated_at", Value: updatedAt})

	clause, args := db.SetClause(set, 1)
	n := len(args)
	query := `
UPDATE documents
SET ` + clause + `
WHERE id = $` + strconv.Itoa(n+1) + ` AND user_id = $` + strconv.Itoa(n+2) + `
RETURNING ` + documentColumns
	args = append(args, documentID, userID)

	doc, err := scanDocument(r.DB.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return Document{}, ErrNotFound
	}
	return doc, err
}

func (r *PGRepo) Delete(ctx context.Context, userID, documentID string) error {
	const query = `DELETE FROM documents WHERE id = $1 AND user_id = $2`
	res, err := r.DB.ExecContext(ctx, query, documentID, userID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (Document, error) {
	var doc Document
	var description sql.NullString
	if err := row.Scan(
		&doc.ID,
		&doc.UserID,
		&doc.Name,
		&description,
		&doc.CreatedAt,
		&doc.UpdatedAt,
	); err != nil {
		return Document{}, err
	}
	if description.Valid {
		d := description.String
		doc.Description = &d
	}
	return doc, nil
}

func nullableString(value *string) any {
	if value == nil || *value == "" {
		return nil
	}
	return *value
}
