package files

import "time"

type renameRequest struct {
	FileName string `json:"fileName"`
}

// FileResponse is the outward-facing representation of a file.
type FileResponse struct {
	ID               string    `json:"id"`
	DocumentID       string    `json:"document_id"`
	SourceType       string    `json:"source_type"`
	FileName         string    `json:"file_name"`
	SourceLocation   string    `json:"source_location"`
	FileSize         int64     `json:"file_size"`
	FileType         string    `json:"file_type"`
	ProcessingStatus string    `json:"processing_status"`
	ErrorMessage     *string   `json:"error_message"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// ToResponse maps a File onto its JSON shape.
func ToResponse(f File) FileResponse {
	return FileResponse{
		ID:               f.ID,
		DocumentID:       f.DocumentID,
		SourceType:       string(f.SourceType),
		FileName:         f.FileName,
		SourceLocation:   f.SourceLocation,
		FileSize:         f.FileSize,
		FileType:         f.FileType,
		ProcessingStatus: string(f.ProcessingStatus),
		ErrorMessage:     f.ErrorMessage,
		CreatedAt:        f.CreatedAt,
		UpdatedAt:        f.UpdatedAt,
	}
}
