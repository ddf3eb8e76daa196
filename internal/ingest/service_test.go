package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"knowledge-hub/internal/aiservice"
	"knowledge-hub/internal/files"
	"knowledge-hub/internal/shared/apperr"
	"knowledge-hub/internal/shared/storage/object"
)

type docOwners map[string]string

func (o docOwners) OwnerOf(ctx context.Context, documentID string) (string, bool) {
	user, ok := o[documentID]
	return user, ok
}

func (o docOwners) Authorize(ctx context.Context, userID, documentID string) error {
	if o[documentID] != userID {
		return apperr.NotFound("document not found")
	}
	return nil
}

type memoryBlobs struct {
	mu       sync.Mutex
	objects  map[string][]byte
	putErr   error
	signErr  error
	deleted  []string
	signTTLs []time.Duration
}

func newMemoryBlobs() *memoryBlobs {
	return &memoryBlobs{objects: make(map[string][]byte)}
}

func (b *memoryBlobs) Put(ctx context.Context, key, contentType string, r io.Reader) (int64, error) {
	if b.putErr != nil {
		return 0, b.putErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return 0, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.objects[key] = data
	return int64(len(data)), nil
}

func (b *memoryBlobs) SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.signTTLs = append(b.signTTLs, ttl)
	if b.signErr != nil {
		return "", b.signErr
	}
	if _, ok := b.objects[key]; !ok {
		return "", object.ErrNotFound
	}
	return "https://blobs.example/" + key + "?sig=1", nil
}

func (b *memoryBlobs) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.objects[key]
	if !ok {
		return nil, object.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (b *memoryBlobs) Delete(ctx context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.deleted = append(b.deleted, key)
	delete(b.objects, key)
	return nil
}

type stubProcessor struct {
	requests []aiservice.ProcessRequest
	ctxErrs  []error
	err      error
}

func (p *stubProcessor) Process(ctx context.Context, req aiservice.ProcessRequest) error {
	p.requests = append(p.requests, req)
	p.ctxErrs = append(p.ctxErrs, ctx.Err())
	return p.err
}

// cancelAfterCreate ends the caller's context as soon as a record is saved.
type cancelAfterCreate struct {
	Records
	cancel context.CancelFunc
}

func (r cancelAfterCreate) Create(ctx context.Context, file files.File) (files.File, error) {
	created, err := r.Records.Create(ctx, file)
	if err == nil {
		r.cancel()
	}
	return created, err
}

type failingRecords struct {
	Records
}

func (failingRecords) Create(ctx context.Context, file files.File) (files.File, error) {
	return files.File{}, apperr.Database("create file", errors.New("connection refused"))
}

type counts struct {
	submissions []string
	callbacks   []string
}

func (c *counts) IncSubmission(sourceType, outcome string) {
	c.submissions = append(c.submissions, sourceType+":"+outcome)
}

func (c *counts) IncCallback(status, outcome string) {
	c.callbacks = append(c.callbacks, status+":"+outcome)
}

type harness struct {
	svc     *Service
	records *files.Service
	blobs   *memoryBlobs
	ai      *stubProcessor
	counts  *counts
	docID   string
}

func newHarness() harness {
	docID := uuid.NewString()
	owners := docOwners{docID: "user-1"}
	records := files.NewService(files.NewMemoryRepo(owners), owners, nil)
	blobs := newMemoryBlobs()
	ai := &stubProcessor{}
	c := &counts{}
	svc := NewService(owners, records, blobs, ai, c, Options{WebhookBaseURL: "http://api.local/", MaxUploadBytes: 1 << 20})
	svc.now = func() time.Time { return time.UnixMilli(1700000000000) }
	return harness{svc: svc, records: records, blobs: blobs, ai: ai, counts: c, docID: docID}
}

// minimalPDF builds a one-page document with a correct xref table.
func minimalPDF() []byte {
	objects := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] >>",
	}
	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(objects)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)
	return buf.Bytes()
}

func TestSubmitUploadStoresRecordsThenDispatches(t *testing.T) {
	h := newHarness()
	pdfBytes := minimalPDF()

	file, err := h.svc.SubmitSource(context.Background(), "user-1", h.docID, UploadSource{
		FileName:    "../../Quarterly Report.pdf",
		ContentType: "application/pdf",
		Size:        int64(len(pdfBytes)),
		Body:        bytes.NewReader(pdfBytes),
	})
	if err != nil {
		t.Fatalf("SubmitSource: %v", err)
	}
	if file.ProcessingStatus != files.StatusPending || file.SourceType != files.SourceUpload {
		t.Fatalf("unexpected file %+v", file)
	}
	wantKey := file.SourceLocation
	if !strings.HasPrefix(wantKey, "user-1/1700000000000_") || !strings.HasSuffix(wantKey, "_Quarterly_Report.pdf") {
		t.Fatalf("unexpected key %s", wantKey)
	}
	if file.FileSize != int64(len(pdfBytes)) || file.FileType != "application/pdf" {
		t.Fatalf("unexpected size/type %d %s", file.FileSize, file.FileType)
	}
	if _, ok := h.blobs.objects[wantKey]; !ok {
		t.Fatalf("expected bytes stored under %s", wantKey)
	}

	if len(h.ai.requests) != 1 {
		t.Fatalf("expected one dispatch, got %d", len(h.ai.requests))
	}
	req := h.ai.requests[0]
	if req.FileID != file.ID || req.UserID != "user-1" || req.DocumentID != h.docID || req.SourceType != "upload" {
		t.Fatalf("unexpected dispatch %+v", req)
	}
	if !strings.HasPrefix(req.SourceLocation, "https://blobs.example/") {
		t.Fatalf("expected signed url, got %s", req.SourceLocation)
	}
	if req.WebhookURL != "http://api.local/api/v1/internal/files/status" {
		t.Fatalf("unexpected webhook url %s", req.WebhookURL)
	}
	if h.blobs.signTTLs[0] != 300*time.Second {
		t.Fatalf("expected 300s signed url ttl, got %s", h.blobs.signTTLs[0])
	}
	if h.counts.submissions[0] != "upload:accepted" {
		t.Fatalf("unexpected submission outcome %v", h.counts.submissions)
	}
}

func TestSubmitURLSkipsStorage(t *testing.T) {
	h := newHarness()
	file, err := h.svc.SubmitSource(context.Background(), "user-1", h.docID, URLSource{URL: " https://example.com/article "})
	if err != nil {
		t.Fatalf("SubmitSource: %v", err)
	}
	if file.SourceType != files.SourceURL || file.FileSize != 0 || file.FileType != "text/html" {
		t.Fatalf("unexpected file %+v", file)
	}
	if file.SourceLocation != "https://example.com/article" {
		t.Fatalf("unexpected location %s", file.SourceLocation)
	}
	if len(h.blobs.objects) != 0 {
		t.Fatalf("url sources must not touch storage")
	}
	if h.ai.requests[0].SourceLocation != "https://example.com/article" || h.ai.requests[0].SourceType != "url" {
		t.Fatalf("unexpected dispatch %+v", h.ai.requests[0])
	}
}

func TestSubmitValidationHasNoSideEffects(t *testing.T) {
	tests := []struct {
		name   string
		userID string
		docID  string
		src    Source
		kind   error
	}{
		{name: "missing user", userID: "", src: URLSource{URL: "https://example.com"}, kind: apperr.ErrUnauthorized},
		{name: "missing document", userID: "user-1", docID: " ", src: URLSource{URL: "https://example.com"}, kind: apperr.ErrValidation},
		{name: "nil source", userID: "user-1", src: nil, kind: apperr.ErrValidation},
		{name: "bad scheme", userID: "user-1", src: URLSource{URL: "ftp://example.com/x"}, kind: apperr.ErrValidation},
		{name: "relative url", userID: "user-1", src: URLSource{URL: "/just/a/path"}, kind: apperr.ErrValidation},
		{name: "empty upload", userID: "user-1", src: UploadSource{FileName: "a.txt", Body: strings.NewReader("")}, kind: apperr.ErrValidation},
		{name: "missing body", userID: "user-1", src: UploadSource{FileName: "a.txt"}, kind: apperr.ErrValidation},
		{name: "bad name", userID: "user-1", src: UploadSource{FileName: "...", Body: strings.NewReader("hi")}, kind: apperr.ErrValidation},
		{name: "unreadable pdf", userID: "user-1", src: UploadSource{FileName: "a.pdf", ContentType: "application/pdf", Body: strings.NewReader("not a pdf at all")}, kind: apperr.ErrValidation},
		{name: "too large", userID: "user-1", src: UploadSource{FileName: "a.txt", Body: bytes.NewReader(make([]byte, (1<<20)+1))}, kind: apperr.ErrValidation},
		{name: "foreign document", userID: "user-2", src: URLSource{URL: "https://example.com"}, kind: apperr.ErrNotFound},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness()
			docID := tt.docID
			if docID == "" {
				docID = h.docID
			}
			_, err := h.svc.SubmitSource(context.Background(), tt.userID, docID, tt.src)
			if !errors.Is(err, tt.kind) {
				t.Fatalf("expected %v, got %v", tt.kind, err)
			}
			if len(h.blobs.objects) != 0 || len(h.ai.requests) != 0 {
				t.Fatalf("expected no side effects")
			}
			list, _ := h.records.ListByDocument(context.Background(), "user-1", h.docID)
			if len(list) != 0 {
				t.Fatalf("expected no file records, got %d", len(list))
			}
		})
	}
}

func TestStorageFailureCreatesNoRecord(t *testing.T) {
	h := newHarness()
	h.blobs.putErr = errors.New("403 access denied")
	_, err := h.svc.SubmitSource(context.Background(), "user-1", h.docID, UploadSource{FileName: "notes.txt", Body: strings.NewReader("hello")})
	if !errors.Is(err, apperr.ErrStorage) {
		t.Fatalf("expected storage error, got %v", err)
	}
	list, _ := h.records.ListByDocument(context.Background(), "user-1", h.docID)
	if len(list) != 0 || len(h.ai.requests) != 0 {
		t.Fatalf("expected no record and no dispatch")
	}
	if h.counts.submissions[0] != "upload:storage_failed" {
		t.Fatalf("unexpected outcome %v", h.counts.submissions)
	}
}

func TestRecordFailureRemovesStoredBytes(t *testing.T) {
	h := newHarness()
	h.svc.Files = failingRecords{}
	_, err := h.svc.SubmitSource(context.Background(), "user-1", h.docID, UploadSource{FileName: "notes.txt", Body: strings.NewReader("hello")})
	if !errors.Is(err, apperr.ErrDatabase) {
		t.Fatalf("expected database error, got %v", err)
	}
	if len(h.blobs.objects) != 0 || len(h.blobs.deleted) != 1 {
		t.Fatalf("expected orphaned blob removed, got objects=%d deleted=%v", len(h.blobs.objects), h.blobs.deleted)
	}
}

func TestDispatchFailureKeepsPendingRecord(t *testing.T) {
	h := newHarness()
	h.ai.err = &apperr.DispatchError{Operation: "ai.process", StatusCode: 503}
	file, err := h.svc.SubmitSource(context.Background(), "user-1", h.docID, UploadSource{FileName: "notes.txt", Body: strings.NewReader("hello")})
	var dispatchErr *apperr.DispatchError
	if !errors.As(err, &dispatchErr) || dispatchErr.HTTPStatus() != 503 {
		t.Fatalf("expected dispatch error with 503, got %v", err)
	}
	if file.ID == "" {
		t.Fatalf("expected the created record to be returned")
	}
	stored, err := h.records.Get(context.Background(), "user-1", file.ID)
	if err != nil {
		t.Fatalf("record should remain: %v", err)
	}
	if stored.ProcessingStatus != files.StatusPending {
		t.Fatalf("expected PENDING, got %s", stored.ProcessingStatus)
	}

	h.ai.err = errors.New("plain failure")
	_, err = h.svc.SubmitSource(context.Background(), "user-1", h.docID, URLSource{URL: "https://example.com"})
	if !errors.As(err, &dispatchErr) {
		t.Fatalf("expected unclassified failures wrapped as DispatchError, got %v", err)
	}
}

func TestDispatchSurvivesCallerCancellation(t *testing.T) {
	sources := map[string]Source{
		"upload": UploadSource{FileName: "notes.txt", Body: strings.NewReader("hello")},
		"url":    URLSource{URL: "https://example.com/a"},
	}
	for name, src := range sources {
		src := src
		t.Run(name, func(t *testing.T) {
			h := newHarness()
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			h.svc.Files = cancelAfterCreate{Records: h.records, cancel: cancel}

			file, err := h.svc.SubmitSource(ctx, "user-1", h.docID, src)
			if err != nil {
				t.Fatalf("SubmitSource: %v", err)
			}
			if ctx.Err() == nil {
				t.Fatalf("expected caller context cancelled after create")
			}
			if len(h.ai.requests) != 1 || h.ai.requests[0].FileID != file.ID {
				t.Fatalf("expected dispatch for %s, got %+v", file.ID, h.ai.requests)
			}
			if h.ai.ctxErrs[0] != nil {
				t.Fatalf("expected live dispatch context, got %v", h.ai.ctxErrs[0])
			}
		})
	}
}

func TestSignedURLFailureKeepsRecord(t *testing.T) {
	h := newHarness()
	h.blobs.signErr = errors.New("presign failed")
	file, err := h.svc.SubmitSource(context.Background(), "user-1", h.docID, UploadSource{FileName: "notes.txt", Body: strings.NewReader("hello")})
	if !errors.Is(err, apperr.ErrStorage) {
		t.Fatalf("expected storage error, got %v", err)
	}
	if _, err := h.records.Get(context.Background(), "user-1", file.ID); err != nil {
		t.Fatalf("record should remain PENDING: %v", err)
	}
	if len(h.ai.requests) != 0 {
		t.Fatalf("expected no dispatch without a signed url")
	}
}

func TestSameNameUploadsKeepSeparateBlobs(t *testing.T) {
	h := newHarness()
	h.records.Blobs = h.blobs
	first, err := h.svc.SubmitSource(context.Background(), "user-1", h.docID, UploadSource{FileName: "notes.txt", Body: strings.NewReader("first")})
	if err != nil {
		t.Fatalf("first SubmitSource: %v", err)
	}
	second, err := h.svc.SubmitSource(context.Background(), "user-1", h.docID, UploadSource{FileName: "notes.txt", Body: strings.NewReader("second")})
	if err != nil {
		t.Fatalf("second SubmitSource: %v", err)
	}
	if first.SourceLocation == second.SourceLocation {
		t.Fatalf("expected distinct keys, both got %s", first.SourceLocation)
	}

	if err := h.records.Delete(context.Background(), "user-1", first.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok := h.blobs.objects[first.SourceLocation]; ok {
		t.Fatalf("expected first blob removed")
	}
	if got := string(h.blobs.objects[second.SourceLocation]); got != "second" {
		t.Fatalf("expected second blob intact, got %q", got)
	}
}

func TestUploadSniffsMissingContentType(t *testing.T) {
	h := newHarness()
	file, err := h.svc.SubmitSource(context.Background(), "user-1", h.docID, UploadSource{FileName: "notes", Body: strings.NewReader("plain words here")})
	if err != nil {
		t.Fatalf("SubmitSource: %v", err)
	}
	if file.FileType != "text/plain" {
		t.Fatalf("expected sniffed text/plain, got %s", file.FileType)
	}
}

func TestStatusCallbackStateMachine(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	file, err := h.svc.SubmitSource(ctx, "user-1", h.docID, URLSource{URL: "https://example.com"})
	if err != nil {
		t.Fatalf("SubmitSource: %v", err)
	}

	steps := []struct {
		status string
		want   files.Status
	}{
		{"processing", files.StatusProcessing},
		{"READY", files.StatusReady},
	}
	for _, step := range steps {
		ack, err := h.svc.HandleStatusCallback(ctx, file.ID, step.status, nil)
		if err != nil {
			t.Fatalf("callback %s: %v", step.status, err)
		}
		if !ack.Success || ack.Message != "status acknowledged" {
			t.Fatalf("unexpected ack %+v", ack)
		}
		got, _ := h.records.Get(ctx, "user-1", file.ID)
		if got.ProcessingStatus != step.want {
			t.Fatalf("expected %s, got %s", step.want, got.ProcessingStatus)
		}
	}

	msg := "  parse failed  "
	if _, err := h.svc.HandleStatusCallback(ctx, file.ID, "ERROR", &msg); err != nil {
		t.Fatalf("error callback: %v", err)
	}
	got, _ := h.records.Get(ctx, "user-1", file.ID)
	if got.ProcessingStatus != files.StatusError || got.ErrorMessage == nil || *got.ErrorMessage != "parse failed" {
		t.Fatalf("expected ERROR with message, got %+v", got)
	}

	// Last write wins even against the usual order; the message is cleared.
	if _, err := h.svc.HandleStatusCallback(ctx, file.ID, "READY", &msg); err != nil {
		t.Fatalf("ready callback: %v", err)
	}
	got, _ = h.records.Get(ctx, "user-1", file.ID)
	if got.ProcessingStatus != files.StatusReady || got.ErrorMessage != nil {
		t.Fatalf("expected READY without message, got %+v", got)
	}
}

func TestStatusCallbackUnknownFileIsAcknowledged(t *testing.T) {
	h := newHarness()
	for _, id := range []string{uuid.NewString(), "not-a-uuid"} {
		ack, err := h.svc.HandleStatusCallback(context.Background(), id, "READY", nil)
		if err != nil {
			t.Fatalf("expected ack for unknown id, got %v", err)
		}
		if ack != statusAck {
			t.Fatalf("unexpected ack %+v", ack)
		}
	}
	if h.counts.callbacks[0] != "READY:unknown_file" {
		t.Fatalf("unexpected callback outcome %v", h.counts.callbacks)
	}
}

func TestStatusCallbackRejectsBadInput(t *testing.T) {
	h := newHarness()
	file, _ := h.svc.SubmitSource(context.Background(), "user-1", h.docID, URLSource{URL: "https://example.com"})

	tests := []struct{ fileID, status string }{
		{"", "READY"},
		{file.ID, ""},
		{file.ID, "DONE"},
	}
	for _, tt := range tests {
		if _, err := h.svc.HandleStatusCallback(context.Background(), tt.fileID, tt.status, nil); !errors.Is(err, apperr.ErrValidation) {
			t.Fatalf("fileId=%q status=%q: expected validation error, got %v", tt.fileID, tt.status, err)
		}
	}
	got, _ := h.records.Get(context.Background(), "user-1", file.ID)
	if got.ProcessingStatus != files.StatusPending {
		t.Fatalf("rejected callbacks must not mutate, got %s", got.ProcessingStatus)
	}
}
