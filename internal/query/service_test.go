package query

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"knowledge-hub/internal/aiservice"
	"knowledge-hub/internal/shared/apperr"
	"knowledge-hub/internal/shared/auth"
	"knowledge-hub/internal/shared/server/middleware"
)

type ownerOnly struct {
	userID, documentID string
}

func (o ownerOnly) Authorize(ctx context.Context, userID, documentID string) error {
	if userID != o.userID || documentID != o.documentID {
		return apperr.NotFound("document not found")
	}
	return nil
}

type stubAsker struct {
	answer json.RawMessage
	err    error
	calls  []aiservice.QueryRequest
}

func (s *stubAsker) Query(ctx context.Context, req aiservice.QueryRequest) (json.RawMessage, error) {
	s.calls = append(s.calls, req)
	return s.answer, s.err
}

func TestAskValidatesBeforeCallingUpstream(t *testing.T) {
	ai := &stubAsker{answer: json.RawMessage(`{}`)}
	svc := NewService(ownerOnly{"u1", "d1"}, ai)

	tests := []struct {
		name            string
		documentID, ask string
		kind            error
	}{
		{name: "empty question", documentID: "d1", ask: "   ", kind: apperr.ErrValidation},
		{name: "missing document", documentID: "", ask: "what?", kind: apperr.ErrValidation},
		{name: "long question", documentID: "d1", ask: strings.Repeat("x", maxQuestionLen+1), kind: apperr.ErrValidation},
		{name: "foreign document", documentID: "d2", ask: "what?", kind: apperr.ErrNotFound},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.Ask(context.Background(), "u1", tt.documentID, tt.ask); !errors.Is(err, tt.kind) {
				t.Fatalf("expected %v, got %v", tt.kind, err)
			}
		})
	}
	if len(ai.calls) != 0 {
		t.Fatalf("expected no upstream calls, got %d", len(ai.calls))
	}
}

func TestAskHandlerRelaysUpstream(t *testing.T) {
	gin.SetMode(gin.TestMode)
	const answer = `{"answer":"Paris","sources":[{"fileId":"f1","fileName":"geo.pdf","snippet":"capital"}],"extra":1}`
	ai := &stubAsker{answer: json.RawMessage(answer)}
	issuer := auth.NewIssuer("secret", time.Hour)
	token, _ := issuer.Issue("u1", "u1@x.com")

	r := gin.New()
	api := r.Group("/api/v1")
	api.Use(middleware.Auth(issuer, "access_token"))
	NewHandler(NewService(ownerOnly{"u1", "d1"}, ai)).RegisterRoutes(api)

	send := func(body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/query", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+token)
		resp := httptest.NewRecorder()
		r.ServeHTTP(resp, req)
		return resp
	}

	resp := send(`{"question":" capital of France? ","documentId":"d1"}`)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if resp.Body.String() != answer {
		t.Fatalf("expected upstream body verbatim, got %s", resp.Body.String())
	}
	if ai.calls[0].Question != "capital of France?" || ai.calls[0].UserID != "u1" || ai.calls[0].DocumentIDs[0] != "d1" {
		t.Fatalf("unexpected upstream request %+v", ai.calls[0])
	}

	ai.err = &apperr.DispatchError{Operation: "ai.query", StatusCode: http.StatusServiceUnavailable}
	if resp := send(`{"question":"again","documentId":"d1"}`); resp.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected upstream 503 preserved, got %d", resp.Code)
	}
	if resp := send(`{"question":"","documentId":"d1"}`); resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
	if resp := send(`{"question":"hi","documentId":"d9"}`); resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}
}
