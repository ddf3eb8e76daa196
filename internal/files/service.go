package files

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"knowledge-hub/internal/shared/apperr"
	"knowledge-hub/internal/shared/storage/object"
	"knowledge-hub/internal/shared/telemetry"
)

const (
	maxFileNameLen    = 255
	blobDeleteWorkers = 4
)

// Authorizer checks document ownership. documents.Service implements it.
type Authorizer interface {
	Authorize(ctx context.Context, userID, documentID string) error
}

// BlobDeleter removes stored upload bytes.
type BlobDeleter interface {
	Delete(ctx context.Context, key string) error
}

// Service contains business logic for file records.
type Service struct {
	Repo  Repo
	Docs  Authorizer
	Blobs BlobDeleter
	now   func() time.Time
}

func NewService(repo Repo, docs Authorizer, blobs BlobDeleter) *Service {
	return &Service{Repo: repo, Docs: docs, Blobs: blobs, now: time.Now}
}

// Create records a new file. ID and timestamps are assigned here.
func (s *Service) Create(ctx context.Context, file File) (File, error) {
	if file.ProcessingStatus == "" {
		file.ProcessingStatus = StatusPending
	}
	if err := file.Validate(); err != nil {
		return File{}, err
	}
	now := s.now().UTC()
	file.ID = uuid.NewString()
	file.CreatedAt = now
	file.UpdatedAt = now
	if err := s.Repo.Create(ctx, file); err != nil {
		return File{}, apperr.Database("create file", err)
	}
	return file, nil
}

// FindByID loads a file without an ownership check. Only the status
// callback uses it.
func (s *Service) FindByID(ctx context.Context, fileID string) (File, error) {
	if !validID(fileID) {
		return File{}, notFound()
	}
	file, err := s.Repo.GetByID(ctx, fileID)
	if err != nil {
		return File{}, translate("get file", err)
	}
	return file, nil
}

// Get loads a file whose document belongs to userID.
func (s *Service) Get(ctx context.Context, userID, fileID string) (File, error) {
	if !validID(fileID) {
		return File{}, notFound()
	}
	file, err := s.Repo.GetForUser(ctx, userID, fileID)
	if err != nil {
		return File{}, translate("get file", err)
	}
	return file, nil
}

// ListByDocument returns the files of a document owned by userID.
func (s *Service) ListByDocument(ctx context.Context, userID, documentID string) ([]File, error) {
	if err := s.Docs.Authorize(ctx, userID, documentID); err != nil {
		return nil, err
	}
	out, err := s.Repo.ListByDocumentID(ctx, documentID)
	if err != nil {
		return nil, apperr.Database("list files", err)
	}
	return out, nil
}

// Rename changes the display name of a file owned by userID.
func (s *Service) Rename(ctx context.Context, userID, fileID, fileName string) (File, error) {
	fileName = strings.TrimSpace(fileName)
	if fileName == "" {
		return File{}, apperr.Validation("fileName is required")
	}
	if utf8.RuneCountInString(fileName) > maxFileNameLen {
		return File{}, apperr.Validation("fileName must be at most 255 characters")
	}
	if _, err := s.Get(ctx, userID, fileID); err != nil {
		return File{}, err
	}
	return s.UpdatePartial(ctx, fileID, Patch{FileName: &fileName})
}

// UpdatePartial writes only the fields set in patch.
func (s *Service) UpdatePartial(ctx context.Context, fileID string, patch Patch) (File, error) {
	if patch.IsEmpty() {
		return File{}, apperr.Validation("no updatable fields")
	}
	if !validID(fileID) {
		return File{}, notFound()
	}
	file, err := s.Repo.Update(ctx, fileID, patch, s.now().UTC())
	if err != nil {
		return File{}, translate("update file", err)
	}
	return file, nil
}

// Delete removes one file owned by userID. Unknown and foreign ids succeed
// without touching anything.
func (s *Service) Delete(ctx context.Context, userID, fileID string) error {
	file, err := s.Get(ctx, userID, fileID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil
		}
		return err
	}
	if err := s.Repo.DeleteByID(ctx, file.ID); err != nil {
		return apperr.Database("delete file", err)
	}
	s.removeBlobs(ctx, []File{file})
	return nil
}

// DeleteForDocument removes every file of a document owned by userID.
func (s *Service) DeleteForDocument(ctx context.Context, userID, documentID string) error {
	if err := s.Docs.Authorize(ctx, userID, documentID); err != nil {
		return err
	}
	return s.DeleteByDocumentID(ctx, documentID)
}

// DeleteByDocumentID removes every file of a document. Callers have already
// checked ownership; the documents service uses it as its cascade.
func (s *Service) DeleteByDocumentID(ctx context.Context, documentID string) error {
	existing, err := s.Repo.ListByDocumentID(ctx, documentID)
	if err != nil {
		return apperr.Database("list files", err)
	}
	if err := s.Repo.DeleteByDocumentID(ctx, documentID); err != nil {
		return apperr.Database("delete document files", err)
	}
	s.removeBlobs(ctx, existing)
	return nil
}

// DeleteAllForUser removes every file across the documents of userID.
func (s *Service) DeleteAllForUser(ctx context.Context, userID string) error {
	existing, err := s.Repo.ListByUserID(ctx, userID)
	if err != nil {
		return apperr.Database("list user files", err)
	}
	if err := s.Repo.DeleteAllByUserID(ctx, userID); err != nil {
		return apperr.Database("delete user files", err)
	}
	s.removeBlobs(ctx, existing)
	telemetry.Info("files.deleted_for_user", map[string]any{"user_id": userID, "count": len(existing)})
	return nil
}

// removeBlobs deletes upload bytes after their records are gone. Failures
// are logged and never surface to the caller.
func (s *Service) removeBlobs(ctx context.Context, list []File) {
	if s.Blobs == nil {
		return
	}
	var g errgroup.Group
	g.SetLimit(blobDeleteWorkers)
	for _, file := range list {
		if file.SourceType != SourceUpload {
			continue
		}
		file := file
		g.Go(func() error {
			if err := s.Blobs.Delete(ctx, file.SourceLocation); err != nil && !errors.Is(err, object.ErrNotFound) {
				telemetry.Warn("files.blob_delete_failed", map[string]any{
					"file_id": file.ID,
					"key":     file.SourceLocation,
					"error":   err,
				})
			}
			return nil
		})
	}
	_ = g.Wait()
}

func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func notFound() error {
	return apperr.NotFound("file not found")
}

func translate(op string, err error) error {
	if errors.Is(err, ErrNotFound) {
		return notFound()
	}
	return apperr.Database(op, err)
}
