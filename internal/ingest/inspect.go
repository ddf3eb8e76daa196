package ingest

import (
	"bytes"
	"fmt"
	"io"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/ledongthuc/pdf"

	"knowledge-hub/internal/shared/apperr"
	"knowledge-hub/internal/shared/util"
)

// DefaultMaxUpload applies when no upload limit is configured.
const DefaultMaxUpload = 10 << 20

const (
	mimePDF      = "application/pdf"
	mimeHTML     = "text/html"
	mimeOctet    = "application/octet-stream"
	maxURLLength = 2048
)

type inspectedUpload struct {
	data        []byte
	name        string
	storageName string
	contentType string
	pages       int
}

// inspectUpload reads the upload fully, bounded by maxBytes, and checks
// that it is something the AI service can process.
func inspectUpload(src UploadSource, maxBytes int64) (inspectedUpload, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxUpload
	}
	if src.Body == nil {
		return inspectedUpload{}, apperr.Validation("file is required")
	}
	if src.Size > maxBytes {
		return inspectedUpload{}, tooLargeError(maxBytes)
	}

	name := strings.TrimSpace(filepath.Base(strings.ReplaceAll(src.FileName, `\`, "/")))
	storageName, err := util.SanitizeFileName(name)
	if err != nil {
		return inspectedUpload{}, apperr.Validation("file name is invalid")
	}

	data, err := io.ReadAll(io.LimitReader(src.Body, maxBytes+1))
	if err != nil {
		return inspectedUpload{}, apperr.Validation("could not read uploaded file")
	}
	if len(data) == 0 {
		return inspectedUpload{}, apperr.Validation("file is empty")
	}
	if int64(len(data)) > maxBytes {
		return inspectedUpload{}, tooLargeError(maxBytes)
	}

	contentType := normalizeContentType(src.ContentType)
	if contentType == "" || contentType == mimeOctet {
		contentType = normalizeContentType(mimetype.Detect(data).String())
	}

	out := inspectedUpload{data: data, name: name, storageName: storageName, contentType: contentType}
	if contentType == mimePDF || strings.EqualFold(filepath.Ext(name), ".pdf") {
		pages, err := countPDFPages(data)
		if err != nil {
			return inspectedUpload{}, apperr.Validation("file is not a readable PDF")
		}
		out.contentType = mimePDF
		out.pages = pages
	}
	return out, nil
}

// countPDFPages opens the document the same way the extractor downstream
// does. The parser panics on some malformed inputs.
func countPDFPages(data []byte) (pages int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pdf parse panic: %v", r)
		}
	}()
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return 0, err
	}
	pages = reader.NumPage()
	if pages == 0 {
		return 0, fmt.Errorf("pdf has no pages")
	}
	return pages, nil
}

// validateSourceURL accepts absolute http(s) URLs with a host.
func validateSourceURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", apperr.Validation("sourceUrl is required")
	}
	if len(raw) > maxURLLength {
		return "", apperr.Validation("sourceUrl is too long")
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return "", apperr.Validation("sourceUrl must be an absolute http or https URL")
	}
	return u.String(), nil
}

func normalizeContentType(raw string) string {
	mediaType, _, _ := strings.Cut(strings.TrimSpace(raw), ";")
	return strings.ToLower(strings.TrimSpace(mediaType))
}

func tooLargeError(maxBytes int64) error {
	return apperr.Validation(fmt.Sprintf("file exceeds maximum upload size of %d bytes", maxBytes))
}
