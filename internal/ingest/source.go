package ingest

import "io"

// Source is what a user submits for processing: an uploaded file or a URL.
type Source interface {
	sourceType() string
}

// UploadSource carries the bytes of a multipart upload. Size is what the
// client declared; the stored size is measured from Body.
type UploadSource struct {
	FileName    string
	ContentType string
	Size        int64
	Body        io.Reader
}

// URLSource points at a web page the AI service fetches itself.
type URLSource struct {
	URL string
}

func (UploadSource) sourceType() string { return "upload" }
func (URLSource) sourceType() string    { return "url" }
