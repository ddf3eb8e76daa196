package documents

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"knowledge-hub/internal/shared/apperr"
)

type cascadeStub struct {
	calls []string
	err   error
}

func (c *cascadeStub) DeleteByDocumentID(ctx context.Context, documentID string) error {
	c.calls = append(c.calls, documentID)
	return c.err
}

func strPtr(s string) *string { return &s }

func TestCreateGetRoundTrip(t *testing.T) {
	svc := NewService(NewMemoryRepo(), &cascadeStub{})
	created, err := svc.Create(context.Background(), "user-a", "N", strPtr("D"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	got, err := svc.Get(context.Background(), "user-a", created.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Name != "N" || got.Description == nil || *got.Description != "D" {
		t.Fatalf("expected name N description D, got %+v", got)
	}
}

func TestCreateRequiresName(t *testing.T) {
	svc := NewService(NewMemoryRepo(), nil)
	for _, name := range []string{"", "   "} {
		if _, err := svc.Create(context.Background(), "user-a", name, nil); !errors.Is(err, apperr.ErrValidation) {
			t.Fatalf("expected validation error for %q, got %v", name, err)
		}
	}
}

func TestOwnershipIsolation(t *testing.T) {
	svc := NewService(NewMemoryRepo(), &cascadeStub{})
	doc, err := svc.Create(context.Background(), "user-a", "Research", nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	_, getErr := svc.Get(context.Background(), "user-b", doc.ID)
	_, missingErr := svc.Get(context.Background(), "user-b", uuid.NewString())
	_, updateErr := svc.Update(context.Background(), "user-b", doc.ID, Patch{Name: strPtr("mine")})
	deleteErr := svc.Delete(context.Background(), "user-b", doc.ID)

	for _, err := range []error{getErr, missingErr, updateErr, deleteErr} {
		if !errors.Is(err, apperr.ErrNotFound) {
			t.Fatalf("expected not found, got %v", err)
		}
		if apperr.PublicMessage(err, "") != "document not found" {
			t.Fatalf("expected identical message, got %q", apperr.PublicMessage(err, ""))
		}
	}

	still, err := svc.Get(context.Background(), "user-a", doc.ID)
	if err != nil || still.Name != "Research" {
		t.Fatalf("owner document changed: %+v %v", still, err)
	}
}

func TestMalformedIDIsNotFound(t *testing.T) {
	svc := NewService(NewMemoryRepo(), nil)
	if _, err := svc.Get(context.Background(), "user-a", "not-a-uuid"); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestUpdatePartial(t *testing.T) {
	svc := NewService(NewMemoryRepo(), nil)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return base }
	doc, err := svc.Create(context.Background(), "user-a", "N", strPtr("D"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	svc.now = func() time.Time { return base.Add(time.Minute) }
	updated, err := svc.Update(context.Background(), "user-a", doc.ID, Patch{Name: strPtr(" Renamed ")})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Name != "Renamed" || updated.Description == nil || *updated.Description != "D" {
		t.Fatalf("unexpected update result %+v", updated)
	}
	if !updated.UpdatedAt.After(doc.UpdatedAt) {
		t.Fatalf("expected updated_at to advance")
	}

	cleared, err := svc.Update(context.Background(), "user-a", doc.ID, Patch{Description: strPtr("")})
	if err != nil {
		t.Fatalf("clear description: %v", err)
	}
	if cleared.Description != nil {
		t.Fatalf("expected description cleared, got %q", *cleared.Description)
	}

	if _, err := svc.Update(context.Background(), "user-a", doc.ID, Patch{}); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected validation error for empty patch, got %v", err)
	}
	if _, err := svc.Update(context.Background(), "user-a", doc.ID, Patch{Name: strPtr(" ")}); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected validation error for blank name, got %v", err)
	}
}

func TestListNewestFirst(t *testing.T) {
	svc := NewService(NewMemoryRepo(), nil)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	names := []string{"first", "second", "third"}
	ids := make([]string, 0, len(names))
	for i, name := range names {
		offset := time.Duration(i) * time.Minute
		svc.now = func() time.Time { return base.Add(offset) }
		doc, err := svc.Create(context.Background(), "user-a", name, nil)
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		ids = append(ids, doc.ID)
	}
	svc.now = func() time.Time { return base.Add(time.Hour) }
	if _, err := svc.Update(context.Background(), "user-a", ids[0], Patch{Name: strPtr("first again")}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if _, err := svc.Create(context.Background(), "user-b", "other", nil); err != nil {
		t.Fatalf("create other: %v", err)
	}

	docs, err := svc.List(context.Background(), "user-a")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(docs) != 3 {
		t.Fatalf("expected 3 documents, got %d", len(docs))
	}
	if docs[0].Name != "first again" || docs[1].Name != "third" || docs[2].Name != "second" {
		t.Fatalf("unexpected order: %s, %s, %s", docs[0].Name, docs[1].Name, docs[2].Name)
	}

	empty, err := svc.List(context.Background(), "nobody")
	if err != nil || empty == nil || len(empty) != 0 {
		t.Fatalf("expected empty non-nil list, got %v %v", empty, err)
	}
}

func TestDeleteCascadesFilesFirst(t *testing.T) {
	cascade := &cascadeStub{}
	svc := NewService(NewMemoryRepo(), cascade)
	doc, err := svc.Create(context.Background(), "user-a", "N", nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := svc.Delete(context.Background(), "user-a", doc.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if len(cascade.calls) != 1 || cascade.calls[0] != doc.ID {
		t.Fatalf("expected cascade for %s, got %v", doc.ID, cascade.calls)
	}
	if _, err := svc.Get(context.Background(), "user-a", doc.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected document gone, got %v", err)
	}
}

func TestDeleteKeepsDocumentWhenCascadeFails(t *testing.T) {
	cascade := &cascadeStub{err: apperr.Database("delete files", errors.New("boom"))}
	svc := NewService(NewMemoryRepo(), cascade)
	doc, err := svc.Create(context.Background(), "user-a", "N", nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := svc.Delete(context.Background(), "user-a", doc.ID); !errors.Is(err, apperr.ErrDatabase) {
		t.Fatalf("expected database error, got %v", err)
	}
	if _, err := svc.Get(context.Background(), "user-a", doc.ID); err != nil {
		t.Fatalf("expected document kept, got %v", err)
	}
}
