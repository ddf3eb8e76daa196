package files

import (
	"context"
	"sort"
	"sync"
	"time"
)

// OwnerLookup resolves the user that owns a document.
type OwnerLookup interface {
	OwnerOf(ctx context.Context, documentID string) (string, bool)
}

// MemoryRepo is an in-memory Repo for local runs and tests.
type MemoryRepo struct {
	mu     sync.RWMutex
	files  map[string]File
	owners OwnerLookup
}

func NewMemoryRepo(owners OwnerLookup) *MemoryRepo {
	return &MemoryRepo{files: make(map[string]File), owners: owners}
}

func (r *MemoryRepo) Create(ctx context.Context, file File) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.files[file.ID] = cloneFile(file)
	return nil
}

func (r *MemoryRepo) GetByID(ctx context.Context, fileID string) (File, error) {
	if err := ctx.Err(); err != nil {
		return File{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	file, ok := r.files[fileID]
	if !ok {
		return File{}, ErrNotFound
	}
	return cloneFile(file), nil
}

func (r *MemoryRepo) GetForUser(ctx context.Context, userID, fileID string) (File, error) {
	file, err := r.GetByID(ctx, fileID)
	if err != nil {
		return File{}, err
	}
	if !r.ownedBy(ctx, file.DocumentID, userID) {
		return File{}, ErrNotFound
	}
	return file, nil
}

func (r *MemoryRepo) ListByDocumentID(ctx context.Context, documentID string) ([]File, error) {
	return r.list(ctx, func(f File) bool { return f.DocumentID == documentID })
}

func (r *MemoryRepo) ListByUserID(ctx context.Context, userID string) ([]File, error) {
	return r.list(ctx, func(f File) bool { return r.ownedBy(ctx, f.DocumentID, userID) })
}

func (r *MemoryRepo) Update(ctx context.Context, fileID string, patch Patch, updatedAt time.Time) (File, error) {
	if err := ctx.Err(); err != nil {
		return File{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	file, ok := r.files[fileID]
	if !ok {
		return File{}, ErrNotFound
	}
	file = patch.Apply(file, updatedAt)
	r.files[fileID] = file
	return cloneFile(file), nil
}

func (r *MemoryRepo) DeleteByID(ctx context.Context, fileID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.files, fileID)
	return nil
}

func (r *MemoryRepo) DeleteByDocumentID(ctx context.Context, documentID string) error {
	return r.deleteWhere(ctx, func(f File) bool { return f.DocumentID == documentID })
}

func (r *MemoryRepo) DeleteAllByUserID(ctx context.Context, userID string) error {
	return r.deleteWhere(ctx, func(f File) bool { return r.ownedBy(ctx, f.DocumentID, userID) })
}

func (r *MemoryRepo) list(ctx context.Context, keep func(File) bool) ([]File, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]File, 0)
	for _, file := range r.files {
		if keep(file) {
			out = append(out, cloneFile(file))
		}
	}
	sortNewestFirst(out)
	return out, nil
}

func (r *MemoryRepo) deleteWhere(ctx context.Context, match func(File) bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, file := range r.files {
		if match(file) {
			delete(r.files, id)
		}
	}
	return nil
}

// ownedBy must not take r.mu; callers may already hold it.
func (r *MemoryRepo) ownedBy(ctx context.Context, documentID, userID string) bool {
	if r.owners == nil {
		return false
	}
	owner, ok := r.owners.OwnerOf(ctx, documentID)
	return ok && owner == userID
}

func sortNewestFirst(files []File) {
	sort.Slice(files, func(i, j int) bool {
		if files[i].CreatedAt.Equal(files[j].CreatedAt) {
			return files[i].ID > files[j].ID
		}
		return files[i].CreatedAt.After(files[j].CreatedAt)
	})
}

func cloneFile(f File) File {
	if f.ErrorMessage != nil {
		msg := *f.ErrorMessage
		f.ErrorMessage = &msg
	}
	return f
}
