package documents

import "time"

type createRequest struct {
	Name        string  `json:"name"`
	Description *string `json:"description"`
}

type updateRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
}

// DocumentResponse is the outward-facing representation of a document.
type DocumentResponse struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Name        string    `json:"name"`
	Description *string   `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func toResponse(doc Document) DocumentResponse {
	return DocumentResponse{
		ID:          doc.ID,
		UserID:      doc.UserID,
		Name:        doc.Name,
		Description: doc.Description,
		CreatedAt:   doc.CreatedAt,
		UpdatedAt:   doc.UpdatedAt,
	}
}
