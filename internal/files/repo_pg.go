package files

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"time"

	"knowledge-hub/internal/shared/storage/db"
)

const fileColumns = `f.id, f.document_id, f.source_type, f.file_name, f.source_location, f.file_size,
  f.file_type, f.processing_status, f.error_message, f.created_at, f.updated_at`

// PGRepo implements Repo using Postgres.
type PGRepo struct {
	DB *sql.DB
}

func (r *PGRepo) Create(ctx context.Context, file File) error {
	const query = `
INSERT INTO files (
    id,
    document_id,
    source_type,
    file_name,
    source_location,
    file_size,
    file_type,
    processing_status,
    error_message,
    created_at,
    updated_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	_, err := r.DB.ExecContext(ctx, query,
		file.ID,
		file.DocumentID,
		string(file.SourceType),
		file.FileName,
		file.SourceLocation,
		file.FileSize,
		file.FileType,
		string(file.ProcessingStatus),
		nullableString(file.ErrorMessage),
		file.CreatedAt,
		file.UpdatedAt,
	)
	return err
}

func (r *PGRepo) GetByID(ctx context.Context, fileID string) (File, error) {
	const query = `
SELECT ` + fileColumns + `
FROM files f
WHERE f.id = $1
LIMIT 1`
	return scanOne(r.DB.QueryRowContext(ctx, query, fileID))
}

func (r *PGRepo) GetForUser(ctx context.Context, userID, fileID string) (File, error) {
	const query = `
SELECT ` + fileColumns + `
FROM files f
JOIN documents d ON d.id = f.document_id
WHERE f.id = $1 AND d.user_id = $2
LIMIT 1`
	return scanOne(r.DB.QueryRowContext(ctx, query, fileID, userID))
}

func (r *PGRepo) ListByDocumentID(ctx context.Context, documentID string) ([]File, error) {
	const query = `
SELECT ` + fileColumns + `
FROM files f
WHERE f.document_id = $1
ORDER BY f.created_at DESC, f.id DESC`
	return r.list(ctx, query, documentID)
}

func (r *PGRepo) ListByUserID(ctx context.Context, userID string) ([]File, error) {
	const query = `
SELECT ` + fileColumns + `
FROM files f
JOIN documents d ON d.id = f.document_id
WHERE d.user_id = $1
ORDER BY f.created_at DESC, f.id DESC`
	return r.list(ctx, query, userID)
}

// Update writes only the patched columns, in a fixed order, plus updated_at.
func (r *PGRepo) Update(ctx context.Context, fileID string, patch Patch, updatedAt time.Time) (File, error) {
	var set []db.Assignment
	if patch.FileName != nil {
		set = append(set, db.Assignment{Column: "file_name", Value: *patch.FileName})
	}
	if patch.SourceLocation != nil {
		set = append(set, db.Assignment{Column: "source_location", Value: *patch.SourceLocation})
	}
	if patch.FileSize != nil {
		set = append(set, db.Assignment{Column: "file_size", Value: *patch.FileSize})
	}
	if patch.FileType != nil {
		set = append(set, db.Assignment{Column: "file_type", Value: *patch.FileType})
	}
	if patch.ProcessingStatus != nil {
		set = append(set, db.Assignment{Column: "processing_status", Value: string(*patch.ProcessingStatus)})
	}
	if patch.ErrorMessage != nil {
		set = append(set, db.Assignment{Column: "error_message", Value: nullableString(patch.ErrorMessage)})
	}
	set = append(set, db.Assignment{Column: "updated_at", Value: updatedAt})

	clause, args := db.SetClause(set, 1)
	query := `
UPDATE files f
SET ` + clause + `
WHERE f.id = $` + strconv.Itoa(len(args)+1) + `
RETURNING ` + fileColumns
	args = append(args, fileID)

	return scanOne(r.DB.QueryRowContext(ctx, query, args...))
}

func (r *PGRepo) DeleteByID(ctx context.Context, fileID string) error {
	_, err := r.DB.ExecContext(ctx, `DELETE FROM files WHERE id = $1`, fileID)
	return err
}

func (r *PGRepo) DeleteByDocumentID(ctx context.Context, documentID string) error {
	_, err := r.DB.ExecContext(ctx, `DELETE FROM files WHERE document_id = $1`, documentID)
	return err
}

func (r *PGRepo) DeleteAllByUserID(ctx context.Context, userID string) error {
	const query = `
DELETE FROM files
WHERE document_id IN (SELECT id FROM documents WHERE user_id = $1)`
	_, err := r.DB.ExecContext(ctx, query, userID)
	return err
}

func (r *PGRepo) list(ctx context.Context, query string, arg any) ([]File, error) {
	rows, err := r.DB.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]File, 0)
	for rows.Next() {
		file, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, file)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOne(row rowScanner) (File, error) {
	file, err := scanFile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return File{}, ErrNotFound
	}
	return file, err
}

func scanFile(row rowScanner) (File, error) {
	var file File
	var sourceType, status string
	var errorMessage sql.NullString
	if err := row.Scan(
		&file.ID,
		&file.DocumentID,
		&sourceType,
		&file.FileName,
		&file.SourceLocation,
		&file.FileSize,
		&file.FileType,
		&status,
		&errorMessage,
		&file.CreatedAt,
		&file.UpdatedAt,
	); err != nil {
		return File{}, err
	}
	file.SourceType = SourceType(sourceType)
	file.ProcessingStatus = Status(status)
	if errorMessage.Valid {
		msg := errorMessage.String
		file.ErrorMessage = &msg
	}
	return file, nil
}

func nullableString(value *string) any {
	if value == nil || *value == "" {
		return nil
	}
	return *value
}
