package documents

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepo is an in-memory Repo for local runs and tests.
type MemoryRepo struct {
	mu   sync.RWMutex
	docs map[string]Document
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{docs: make(map[string]Document)}
}

func (r *MemoryRepo) Create(ctx context.Context, doc Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.docs[doc.ID] = cloneDocument(doc)
	return nil
}

func (r *MemoryRepo) ListByUser(ctx context.Context, userID string) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Document, 0)
	for _, doc := range r.docs {
		if doc.UserID == userID {
			out = append(out, cloneDocument(doc))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out, nil
}

func (r *MemoryRepo) Get(ctx context.Context, userID, documentID string) (Document, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	doc, ok := r.docs[documentID]
	if !ok || doc.UserID != userID {
		return Document{}, ErrNotFound
	}
	return cloneDocument(doc), nil
}

func (r *MemoryRepo) Update(ctx context.Context, userID, documentID string, patch Patch, updatedAt time.Time) (Document, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.docs[documentID]
	if !ok || doc.UserID != userID {
		return Document{}, ErrNotFound
	}
	if patch.Name != nil {
		doc.Name = *patch.Name
	}
	if patch.Description != nil {
		if *patch.Description == "" {
			doc.Description = nil
		} else {
			d := *patch.Description
			doc.Description = &d
		}
	}
	doc.UpdatedAt = updatedAt
	r.docs[documentID] = doc
	return cloneDocument(doc), nil
}

func (r *MemoryRepo) Delete(ctx context.Context, userID, documentID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.docs[documentID]
	if !ok || doc.UserID != userID {
		return ErrNotFound
	}
	delete(r.docs, documentID)
	return nil
}

// OwnerOf returns the owning user of a document. The in-memory file store
// uses it to resolve per-user cascades.
func (r *MemoryRepo) OwnerOf(ctx context.Context, documentID string) (string, bool) {
	if ctx.Err() != nil {
		return "", false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	doc, ok := r.docs[documentID]
	if !ok {
		return "", false
	}
	return doc.UserID, true
}

func cloneDocument(doc Document) Document {
	if doc.Description != nil {
		d := *doc.Description
		doc.Description = &d
	}
	return doc
}
