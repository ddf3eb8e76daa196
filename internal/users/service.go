package users

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"knowledge-hub/internal/shared/apperr"
	"knowledge-hub/internal/shared/auth"
	"knowledge-hub/internal/shared/telemetry"
)

const (
	minPasswordLen   = 8
	maxPasswordBytes = 72 // bcrypt input limit
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// TokenIssuer is satisfied by *auth.Issuer.
type TokenIssuer interface {
	Issue(userID, email string) (string, error)
}

type Service struct {
	Repo   Repo
	Tokens TokenIssuer
	now    func() time.Time
}

func NewService(repo Repo, tokens TokenIssuer) *Service {
	return &Service{Repo: repo, Tokens: tokens, now: time.Now}
}

// Register creates an account and returns it with a fresh session token.
func (s *Service) Register(ctx context.Context, email, password string) (User, string, error) {
	email = normalizeEmail(email)
	if !emailPattern.MatchString(email) {
		return User{}, "", apperr.Validation("a valid email is required")
	}
	if utf8.RuneCountInString(password) < minPasswordLen {
		return User{}, "", apperr.Validation("password must be at least 8 characters")
	}
	if len(password) > maxPasswordBytes {
		return User{}, "", apperr.Validation("password is too long")
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return User{}, "", apperr.Database("hash password", err)
	}
	now := s.now().UTC()
	user := User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.Repo.Create(ctx, user); err != nil {
		if errors.Is(err, ErrEmailTaken) {
			return User{}, "", apperr.Conflict("email already in use")
		}
		return User{}, "", apperr.Database("create user", err)
	}

	token, err := s.Tokens.Issue(user.ID, user.Email)
	if err != nil {
		return User{}, "", apperr.Database("issue token", err)
	}
	telemetry.Info("user.registered", map[string]any{"user_id": user.ID})
	return user, token, nil
}

// Login checks credentials. Unknown email and wrong password are the same error.
func (s *Service) Login(ctx context.Context, email, password string) (User, string, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return User{}, "", apperr.Validation("email and password are required")
	}

	user, err := s.Repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			// Spend the same bcrypt time as a real mismatch.
			auth.CheckPassword(placeholderHash(), password)
			return User{}, "", apperr.Unauthorized("invalid credentials")
		}
		return User{}, "", apperr.Database("find user", err)
	}
	if !auth.CheckPassword(user.PasswordHash, password) {
		telemetry.Info("user.login_failed", map[string]any{"user_id": user.ID})
		return User{}, "", apperr.Unauthorized("invalid credentials")
	}

	token, err := s.Tokens.Issue(user.ID, user.Email)
	if err != nil {
		return User{}, "", apperr.Database("issue token", err)
	}
	return user, token, nil
}

// Me loads the profile of the authenticated user.
func (s *Service) Me(ctx context.Context, userID string) (User, error) {
	if strings.TrimSpace(userID) == "" {
		return User{}, apperr.Unauthorized("missing or invalid token")
	}
	user, err := s.Repo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return User{}, apperr.NotFound("user not found")
		}
		return User{}, apperr.Database("get user", err)
	}
	return user, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

var (
	placeholderOnce sync.Once
	placeholder     string
)

func placeholderHash() string {
	placeholderOnce.Do(func() {
		placeholder, _ = auth.HashPassword(uuid.NewString())
	})
	return placeholder
}
