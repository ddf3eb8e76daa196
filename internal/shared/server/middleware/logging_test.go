package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"knowledge-hub/internal/shared/telemetry"
)

func TestLoggingIncludesRequiredFields(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var buf bytes.Buffer
	restore := telemetry.SetOutput(&buf)
	defer restore()

	router := gin.New()
	router.Use(RequestID(), func(c *gin.Context) {
		c.Set(userIDKey, "user-1")
		c.Next()
	}, Logging())
	router.GET("/api/v1/documents/:id/files", func(c *gin.Context) {
		c.Set(DocumentIDKey, "doc-1")
		c.Set(FileIDKey, "file-1")
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/documents/doc-1/files", nil)
	req.Header.Set("X-Request-Id", "req-123")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	last := lines[len(lines)-1]
	var payload map[string]any
	if err := json.Unmarshal([]byte(last), &payload); err != nil {
		t.Fatalf("decode log json: %v", err)
	}

	required := []string{"request_id", "user_id", "document_id", "file_id", "duration_ms", "status", "route"}
	for _, key := range required {
		if _, ok := payload[key]; !ok {
			t.Fatalf("missing log field: %s", key)
		}
	}
	if payload["msg"] != "request.complete" {
		t.Fatalf("unexpected msg: %v", payload["msg"])
	}
	if payload["request_id"] != "req-123" {
		t.Fatalf("unexpected request_id: %v", payload["request_id"])
	}
	if payload["route"] != "/api/v1/documents/:id/files" {
		t.Fatalf("unexpected route: %v", payload["route"])
	}
	if payload["document_id"] != "doc-1" {
		t.Fatalf("unexpected document_id: %v", payload["document_id"])
	}
}

func TestRequestIDGeneratedWhenMissingOrOversized(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RequestID())
	router.GET("/x", func(c *gin.Context) { c.String(http.StatusOK, RequestIDFromContext(c)) })

	for _, inbound := range []string{"", strings.Repeat("a", 200)} {
		req := httptest.NewRequest(http.MethodGet, "/x", nil)
		if inbound != "" {
			req.Header.Set("X-Request-Id", inbound)
		}
		resp := httptest.NewRecorder()
		router.ServeHTTP(resp, req)

		got := resp.Header().Get("X-Request-Id")
		if got == "" || got == inbound {
			t.Fatalf("expected generated id, got %q", got)
		}
		if resp.Body.String() != got {
			t.Fatalf("context id %q does not match header %q", resp.Body.String(), got)
		}
	}
}
