package users

import "time"

// User is an account. PasswordHash never leaves the package boundary in responses.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
