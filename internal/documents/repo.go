package documents

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("document not found")

// Repo persists documents. Every lookup is scoped by owner; a foreign id
// behaves exactly like a missing one.
type Repo interface {
	Create(ctx context.Context, doc Document) error
	ListByUser(ctx context.Context, userID string) ([]Document, error)
	Get(ctx context.Context, userID, documentID string) (Document, error)
	Update(ctx context.Context, userID, documentID string, patch Patch, updatedAt time.Time) (Document, error)
	Delete(ctx context.Context, userID, documentID string) error
}
