package files

import (
	"strings"
	"time"

	"knowledge-hub/internal/shared/apperr"
)

type SourceType string

const (
	SourceUpload SourceType = "upload"
	SourceURL    SourceType = "url"
)

// Status is the processing stage of a file as reported by the AI service.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusProcessing Status = "PROCESSING"
	StatusReady      Status = "READY"
	StatusError      Status = "ERROR"
)

// ParseStatus accepts any casing of a known status.
func ParseStatus(raw string) (Status, bool) {
	switch s := Status(strings.ToUpper(strings.TrimSpace(raw))); s {
	case StatusPending, StatusProcessing, StatusReady, StatusError:
		return s, true
	default:
		return "", false
	}
}

// Terminal reports whether s ends processing.
func (s Status) Terminal() bool {
	return s == StatusReady || s == StatusError
}

// IsForward reports whether moving from s to next follows
// PENDING -> PROCESSING -> READY, or goes to ERROR from a non-terminal state.
func (s Status) IsForward(next Status) bool {
	if s.Terminal() {
		return false
	}
	switch next {
	case StatusError:
		return true
	case StatusProcessing:
		return s == StatusPending
	case StatusReady:
		return s == StatusPending || s == StatusProcessing
	default:
		return false
	}
}

// File is one ingested source attached to a document.
type File struct {
	ID               string
	DocumentID       string
	SourceType       SourceType
	FileName         string
	SourceLocation   string
	FileSize         int64
	FileType         string
	ProcessingStatus Status
	ErrorMessage     *string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Validate checks that every required field of a new record is present.
func (f File) Validate() error {
	switch {
	case strings.TrimSpace(f.DocumentID) == "":
		return apperr.Validation("document id is required")
	case f.SourceType != SourceUpload && f.SourceType != SourceURL:
		return apperr.Validation("source type must be upload or url")
	case strings.TrimSpace(f.FileName) == "":
		return apperr.Validation("file name is required")
	case strings.TrimSpace(f.SourceLocation) == "":
		return apperr.Validation("source location is required")
	case strings.TrimSpace(f.FileType) == "":
		return apperr.Validation("file type is required")
	case f.FileSize < 0, f.SourceType == SourceUpload && f.FileSize == 0:
		return apperr.Validation("file size must be positive for uploads")
	}
	if _, ok := ParseStatus(string(f.ProcessingStatus)); !ok {
		return apperr.Validation("invalid processing status")
	}
	return nil
}

// Patch is the allow-list of mutable columns. Nil fields are left untouched;
// an empty ErrorMessage clears the column.
type Patch struct {
	FileName         *string
	SourceLocation   *string
	FileSize         *int64
	FileType         *string
	ProcessingStatus *Status
	ErrorMessage     *string
}

func (p Patch) IsEmpty() bool {
	return p.FileName == nil &&
		p.SourceLocation == nil &&
		p.FileSize == nil &&
		p.FileType == nil &&
		p.ProcessingStatus == nil &&
		p.ErrorMessage == nil
}

// Apply returns f with the patch applied. Memory repositories share it.
func (p Patch) Apply(f File, updatedAt time.Time) File {
	if p.FileName != nil {
		f.FileName = *p.FileName
	}
	if p.SourceLocation != nil {
		f.SourceLocation = *p.SourceLocation
	}
	if p.FileSize != nil {
		f.FileSize = *p.FileSize
	}
	if p.FileType != nil {
		f.FileType = *p.FileType
	}
	if p.ProcessingStatus != nil {
		f.ProcessingStatus = *p.ProcessingStatus
	}
	if p.ErrorMessage != nil {
		if *p.ErrorMessage == "" {
			f.ErrorMessage = nil
		} else {
			msg := *p.ErrorMessage
			f.ErrorMessage = &msg
		}
	}
	f.UpdatedAt = updatedAt
	return f
}
