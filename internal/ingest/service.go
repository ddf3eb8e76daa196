package ingest

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"time"

	"knowledge-hub/internal/aiservice"
	"knowledge-hub/internal/files"
	"knowledge-hub/internal/shared/apperr"
	"knowledge-hub/internal/shared/storage/object"
	"knowledge-hub/internal/shared/telemetry"
)

// CallbackPath is where the AI service reports processing status.
const CallbackPath = "/api/v1/internal/files/status"

const (
	defaultSignedURLTTL    = 300 * time.Second
	defaultDispatchTimeout = 2 * time.Minute
	maxErrorMessageLen     = 2000
)

// Authorizer checks document ownership. documents.Service implements it.
type Authorizer interface {
	Authorize(ctx context.Context, userID, documentID string) error
}

// Records is the subset of files.Service the dispatcher needs.
type Records interface {
	Create(ctx context.Context, file files.File) (files.File, error)
	FindByID(ctx context.Context, fileID string) (files.File, error)
	UpdatePartial(ctx context.Context, fileID string, patch files.Patch) (files.File, error)
}

// Processor hands a file to the AI service. aiservice.Client implements it.
type Processor interface {
	Process(ctx context.Context, req aiservice.ProcessRequest) error
}

// Counter records dispatcher outcomes. metrics.Registry implements it.
type Counter interface {
	IncSubmission(sourceType, outcome string)
	IncCallback(status, outcome string)
}

// Options tunes the dispatcher.
type Options struct {
	WebhookBaseURL string
	SignedURLTTL   time.Duration
	MaxUploadBytes int64

	// DispatchTimeout bounds the steps that run after the record exists.
	DispatchTimeout time.Duration
}

// Ack is the reply to every accepted status callback.
type Ack struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

var statusAck = Ack{Success: true, Message: "status acknowledged"}

// Service sequences storage, record creation and dispatch for new sources,
// and applies status callbacks.
type Service struct {
	Docs    Authorizer
	Files   Records
	Blobs   object.Store
	AI      Processor
	Metrics Counter

	webhookURL      string
	signedTTL       time.Duration
	maxUpload       int64
	dispatchTimeout time.Duration
	now             func() time.Time
}

func NewService(docs Authorizer, records Records, blobs object.Store, ai Processor, metrics Counter, opts Options) *Service {
	ttl := opts.SignedURLTTL
	if ttl <= 0 {
		ttl = defaultSignedURLTTL
	}
	maxUpload := opts.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = DefaultMaxUpload
	}
	dispatchTimeout := opts.DispatchTimeout
	if dispatchTimeout <= 0 {
		dispatchTimeout = defaultDispatchTimeout
	}
	return &Service{
		Docs:       docs,
		Files:      records,
		Blobs:      blobs,
		AI:         ai,
		Metrics:    metrics,
		webhookURL:      strings.TrimRight(opts.WebhookBaseURL, "/") + CallbackPath,
		signedTTL:       ttl,
		maxUpload:       maxUpload,
		dispatchTimeout: dispatchTimeout,
		now:             time.Now,
	}
}

// MaxUploadBytes is the largest upload SubmitSource accepts.
func (s *Service) MaxUploadBytes() int64 {
	return s.maxUpload
}

// SubmitSource stores and records a new source, then asks the AI service to
// process it. Once the record exists it is returned even when a later step
// fails; the record stays PENDING in that case. Steps after record creation
// do not stop when ctx is cancelled.
func (s *Service) SubmitSource(ctx context.Context, userID, documentID string, src Source) (files.File, error) {
	if strings.TrimSpace(userID) == "" {
		return files.File{}, apperr.Unauthorized("missing or invalid token")
	}
	if strings.TrimSpace(documentID) == "" {
		return files.File{}, apperr.Validation("document id is required")
	}
	if src == nil {
		return files.File{}, apperr.Validation("source is required")
	}
	kind := src.sourceType()

	var (
		file files.File
		err  error
	)
	switch v := src.(type) {
	case UploadSource:
		file, err = s.submitUpload(ctx, userID, documentID, v)
	case URLSource:
		file, err = s.submitURL(ctx, userID, documentID, v)
	default:
		err = apperr.Validation("unsupported source")
	}
	if err != nil {
		s.countSubmission(kind, outcomeFor(err))
		return file, err
	}
	s.countSubmission(kind, "accepted")
	telemetry.Info("ingest.submitted", map[string]any{
		"user_id":     userID,
		"document_id": documentID,
		"file_id":     file.ID,
		"source_type": kind,
	})
	return file, nil
}

func (s *Service) submitUpload(ctx context.Context, userID, documentID string, src UploadSource) (files.File, error) {
	upload, err := inspectUpload(src, s.maxUpload)
	if err != nil {
		return files.File{}, err
	}
	if err := s.Docs.Authorize(ctx, userID, documentID); err != nil {
		return files.File{}, err
	}

	key, err := object.BuildKey(userID, s.now(), upload.storageName)
	if err != nil {
		return files.File{}, apperr.Validation("file name is invalid")
	}
	size, err := s.Blobs.Put(ctx, key, upload.contentType, bytes.NewReader(upload.data))
	if err != nil {
		telemetry.Error("ingest.storage_failed", map[string]any{
			"user_id":     userID,
			"document_id": documentID,
			"key":         key,
			"error":       err.Error(),
		})
		return files.File{}, apperr.Storage("object.put", err)
	}

	file, err := s.Files.Create(ctx, files.File{
		DocumentID:     documentID,
		SourceType:     files.SourceUpload,
		FileName:       upload.name,
		SourceLocation: key,
		FileSize:       size,
		FileType:       upload.contentType,
	})
	if err != nil {
		cleanupCtx, cancel := s.detach(ctx)
		defer cancel()
		if delErr := s.Blobs.Delete(cleanupCtx, key); delErr != nil {
			telemetry.Warn("ingest.orphan_blob", map[string]any{"key": key, "error": delErr.Error()})
		}
		return files.File{}, err
	}
	if upload.pages > 0 {
		telemetry.Info("ingest.pdf_inspected", map[string]any{"file_id": file.ID, "pages": upload.pages})
	}

	ctx, cancel := s.detach(ctx)
	defer cancel()
	signed, err := s.Blobs.SignedURL(ctx, key, s.signedTTL)
	if err != nil {
		telemetry.Error("ingest.signed_url_failed", map[string]any{
			"file_id": file.ID,
			"key":     key,
			"error":   err.Error(),
		})
		return file, apperr.Storage("object.signed_url", err)
	}
	return file, s.dispatch(ctx, userID, file, signed)
}

func (s *Service) submitURL(ctx context.Context, userID, documentID string, src URLSource) (files.File, error) {
	sourceURL, err := validateSourceURL(src.URL)
	if err != nil {
		return files.File{}, err
	}
	if err := s.Docs.Authorize(ctx, userID, documentID); err != nil {
		return files.File{}, err
	}
	file, err := s.Files.Create(ctx, files.File{
		DocumentID:     documentID,
		SourceType:     files.SourceURL,
		FileName:       sourceURL,
		SourceLocation: sourceURL,
		FileType:       mimeHTML,
	})
	if err != nil {
		return files.File{}, err
	}
	ctx, cancel := s.detach(ctx)
	defer cancel()
	return file, s.dispatch(ctx, userID, file, sourceURL)
}

// detach drops the caller's cancellation and applies dispatchTimeout instead.
func (s *Service) detach(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), s.dispatchTimeout)
}

func (s *Service) dispatch(ctx context.Context, userID string, file files.File, location string) error {
	err := s.AI.Process(ctx, aiservice.ProcessRequest{
		FileID:         file.ID,
		UserID:         userID,
		DocumentID:     file.DocumentID,
		SourceType:     string(file.SourceType),
		SourceLocation: location,
		WebhookURL:     s.webhookURL,
	})
	if err != nil {
		telemetry.Error("ingest.dispatch_failed", map[string]any{
			"file_id":     file.ID,
			"document_id": file.DocumentID,
			"error":       err.Error(),
		})
		var dispatchErr *apperr.DispatchError
		if !errors.As(err, &dispatchErr) {
			err = &apperr.DispatchError{Operation: "ai.process", Err: err}
		}
		return err
	}
	return nil
}

// HandleStatusCallback applies a status report from the AI service. Unknown
// file ids are acknowledged without effect.
func (s *Service) HandleStatusCallback(ctx context.Context, fileID, rawStatus string, errorMessage *string) (Ack, error) {
	fileID = strings.TrimSpace(fileID)
	if fileID == "" {
		s.countCallback("", "rejected")
		return Ack{}, apperr.Validation("fileId is required")
	}
	if strings.TrimSpace(rawStatus) == "" {
		s.countCallback("", "rejected")
		return Ack{}, apperr.Validation("status is required")
	}
	status, ok := files.ParseStatus(rawStatus)
	if !ok {
		s.countCallback("", "rejected")
		return Ack{}, apperr.Validation("status must be one of PENDING, PROCESSING, READY, ERROR")
	}

	current, err := s.Files.FindByID(ctx, fileID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			s.unknownFile(fileID, status)
			return statusAck, nil
		}
		s.countCallback(string(status), "failed")
		return Ack{}, err
	}
	if !current.ProcessingStatus.IsForward(status) {
		telemetry.Warn("callback.non_forward_transition", map[string]any{
			"file_id": fileID,
			"from":    string(current.ProcessingStatus),
			"to":      string(status),
		})
	}

	message := ""
	if status == files.StatusError && errorMessage != nil {
		message = truncateRunes(strings.TrimSpace(*errorMessage), maxErrorMessageLen)
	}
	updated, err := s.Files.UpdatePartial(ctx, fileID, files.Patch{
		ProcessingStatus: &status,
		ErrorMessage:     &message,
	})
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			s.unknownFile(fileID, status)
			return statusAck, nil
		}
		s.countCallback(string(status), "failed")
		return Ack{}, err
	}

	s.countCallback(string(status), "applied")
	telemetry.Info("callback.applied", map[string]any{
		"file_id":     updated.ID,
		"document_id": updated.DocumentID,
		"from":        string(current.ProcessingStatus),
		"status":      string(updated.ProcessingStatus),
	})
	return statusAck, nil
}

func (s *Service) unknownFile(fileID string, status files.Status) {
	s.countCallback(string(status), "unknown_file")
	telemetry.Warn("callback.unknown_file", map[string]any{"file_id": fileID, "status": string(status)})
}

func (s *Service) countSubmission(kind, outcome string) {
	if s.Metrics != nil {
		s.Metrics.IncSubmission(kind, outcome)
	}
}

func (s *Service) countCallback(status, outcome string) {
	if s.Metrics != nil {
		s.Metrics.IncCallback(status, outcome)
	}
}

func outcomeFor(err error) string {
	switch {
	case errors.Is(err, apperr.ErrValidation):
		return "rejected"
	case errors.Is(err, apperr.ErrNotFound), errors.Is(err, apperr.ErrUnauthorized):
		return "forbidden"
	case errors.Is(err, apperr.ErrStorage):
		return "storage_failed"
	case errors.Is(err, apperr.ErrDispatch):
		return "dispatch_failed"
	default:
		return "failed"
	}
}

func truncateRunes(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
