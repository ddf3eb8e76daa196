package query

import (
	"context"
	"encoding/json"
	"strings"
	"unicode/utf8"

	"knowledge-hub/internal/aiservice"
	"knowledge-hub/internal/shared/apperr"
	"knowledge-hub/internal/shared/telemetry"
)

const maxQuestionLen = 4000

// Authorizer checks document ownership. documents.Service implements it.
type Authorizer interface {
	Authorize(ctx context.Context, userID, documentID string) error
}

// Asker forwards a question to the AI service. aiservice.Client implements it.
type Asker interface {
	Query(ctx context.Context, req aiservice.QueryRequest) (json.RawMessage, error)
}

// Service relays questions about a document to the AI service.
type Service struct {
	Docs Authorizer
	AI   Asker
}

func NewService(docs Authorizer, ai Asker) *Service {
	return &Service{Docs: docs, AI: ai}
}

// Ask returns the upstream answer body unmodified.
func (s *Service) Ask(ctx context.Context, userID, documentID, question string) (json.RawMessage, error) {
	question = strings.TrimSpace(question)
	documentID = strings.TrimSpace(documentID)
	if question == "" {
		return nil, apperr.Validation("question is required")
	}
	if utf8.RuneCountInString(question) > maxQuestionLen {
		return nil, apperr.Validation("question must be at most 4000 characters")
	}
	if documentID == "" {
		return nil, apperr.Validation("documentId is required")
	}
	if err := s.Docs.Authorize(ctx, userID, documentID); err != nil {
		return nil, err
	}

	answer, err := s.AI.Query(ctx, aiservice.QueryRequest{
		UserID:      userID,
		DocumentID:  documentID,
		DocumentIDs: []string{documentID},
		Question:    question,
	})
	if err != nil {
		return nil, err
	}
	telemetry.Info("query.answered", map[string]any{
		"user_id":     userID,
		"document_id": documentID,
		"bytes":       len(answer),
	})
	return answer, nil
}
