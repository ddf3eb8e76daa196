package users

import "time"

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// ProfileResponse is the public view of a user.
type ProfileResponse struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

type tokenResponse struct {
	Token string `json:"token"`
}

func toProfile(user User) ProfileResponse {
	return ProfileResponse{
		ID:        user.ID,
		Email:     user.Email,
		CreatedAt: user.CreatedAt,
	}
}
