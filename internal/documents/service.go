package documents

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"knowledge-hub/internal/shared/apperr"
	"knowledge-hub/internal/shared/telemetry"
)

const maxNameLen = 200

// FileCascade removes every file attached to a document. The files service
// implements it.
type FileCascade interface {
	DeleteByDocumentID(ctx context.Context, documentID string) error
}

// Service contains business logic for documents.
type Service struct {
	Repo  Repo
	Files FileCascade
	now   func() time.Time
}

func NewService(repo Repo, files FileCascade) *Service {
	return &Service{Repo: repo, Files: files, now: time.Now}
}

// Create stores a new document owned by userID.
func (s *Service) Create(ctx context.Context, userID, name string, description *string) (Document, error) {
	name = strings.TrimSpace(name)
	if err := validateName(name); err != nil {
		return Document{}, err
	}
	now := s.now().UTC()
	doc := Document{
		ID:          uuid.NewString(),
		UserID:      userID,
		Name:        name,
		Description: trimOptional(description),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.Repo.Create(ctx, doc); err != nil {
		return Document{}, apperr.Database("create document", err)
	}
	return doc, nil
}

// List returns the caller's documents, most recently updated first.
func (s *Service) List(ctx context.Context, userID string) ([]Document, error) {
	docs, err := s.Repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, apperr.Database("list documents", err)
	}
	return docs, nil
}

// Get returns a document owned by userID.
func (s *Service) Get(ctx context.Context, userID, documentID string) (Document, error) {
	if !validID(documentID) {
		return Document{}, notFound()
	}
	doc, err := s.Repo.Get(ctx, userID, documentID)
	if err != nil {
		return Document{}, translate("get document", err)
	}
	return doc, nil
}

// Authorize succeeds only when documentID exists and belongs to userID.
func (s *Service) Authorize(ctx context.Context, userID, documentID string) error {
	_, err := s.Get(ctx, userID, documentID)
	return err
}

// Update applies patch to a document owned by userID.
func (s *Service) Update(ctx context.Context, userID, documentID string, patch Patch) (Document, error) {
	if patch.IsEmpty() {
		return Document{}, apperr.Validation("no updatable fields")
	}
	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if err := validateName(name); err != nil {
			return Document{}, err
		}
		patch.Name = &name
	}
	if patch.Description != nil {
		d := strings.TrimSpace(*patch.Description)
		patch.Description = &d
	}
	if !validID(documentID) {
		return Document{}, notFound()
	}
	doc, err := s.Repo.Update(ctx, userID, documentID, patch, s.now().UTC())
	if err != nil {
		return Document{}, translate("update document", err)
	}
	return doc, nil
}

// Delete removes a document after its files. A failed file cascade leaves
// the document in place so the delete can be retried.
func (s *Service) Delete(ctx context.Context, userID, documentID string) error {
	if err := s.Authorize(ctx, userID, documentID); err != nil {
		return err
	}
	if s.Files != nil {
		if err := s.Files.DeleteByDocumentID(ctx, documentID); err != nil {
			return err
		}
	}
	if err := s.Repo.Delete(ctx, userID, documentID); err != nil {
		return translate("delete document", err)
	}
	telemetry.Info("document.deleted", map[string]any{"user_id": userID, "document_id": documentID})
	return nil
}

func validateName(name string) error {
	if name == "" {
		return apperr.Validation("name is required")
	}
	if utf8.RuneCountInString(name) > maxNameLen {
		return apperr.Validation("name must be at most 200 characters")
	}
	return nil
}

func trimOptional(value *string) *string {
	if value == nil {
		return nil
	}
	v := strings.TrimSpace(*value)
	if v == "" {
		return nil
	}
	return &v
}

func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func notFound() error {
	return apperr.NotFound("document not found")
}

func translate(op string, err error) error {
	if errors.Is(err, ErrNotFound) {
		return notFound()
	}
	return apperr.Database(op, err)
}
