package files

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("file not found")

// Repo persists file records. Files have no user column; user scoped
// operations resolve ownership through the owning document.
type Repo interface {
	Create(ctx context.Context, file File) error
	GetByID(ctx context.Context, fileID string) (File, error)
	GetForUser(ctx context.Context, userID, fileID string) (File, error)
	ListByDocumentID(ctx context.Context, documentID string) ([]File, error)
	ListByUserID(ctx context.Context, userID string) ([]File, error)
	Update(ctx context.Context, fileID string, patch Patch, updatedAt time.Time) (File, error)
	DeleteByID(ctx context.Context, fileID string) error
	DeleteByDocumentID(ctx context.Context, documentID string) error
	DeleteAllByUserID(ctx context.Context, userID string) error
}
