package documents

import "time"

// Document is a named collection of sources owned by one user.
type Document struct {
	ID          string
	UserID      string
	Name        string
	Description *string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Patch lists the updatable fields. Nil means unchanged; an empty
// Description clears it.
type Patch struct {
	Name        *string
	Description *string
}

func (p Patch) IsEmpty() bool {
	return p.Name == nil && p.Description == nil
}
