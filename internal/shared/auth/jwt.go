package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMissingSecret = errors.New("jwt secret not configured")
	ErrInvalidToken  = errors.New("invalid token")
)

// DefaultTTL is the session lifetime when none is configured.
const DefaultTTL = time.Hour

// Claims represents the identity contained in a session token.
type Claims struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}

// Identity is the verified subject of a token.
type Identity struct {
	UserID string
	Email  string
}

// Issuer signs and verifies HS256 session tokens with a process-wide secret.
type Issuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewIssuer builds an Issuer. An empty secret is accepted here so that the
// failure surfaces on every Issue/Verify call instead of being defaulted.
func NewIssuer(secret string, ttl time.Duration) *Issuer {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Issuer{
		secret: []byte(strings.TrimSpace(secret)),
		ttl:    ttl,
		now:    time.Now,
	}
}

// TTL returns the token lifetime.
func (i *Issuer) TTL() time.Duration {
	return i.ttl
}

// Issue signs a token for the given user.
func (i *Issuer) Issue(userID, email string) (string, error) {
	if len(i.secret) == 0 {
		return "", ErrMissingSecret
	}
	if strings.TrimSpace(userID) == "" {
		return "", errors.New("user id is required")
	}
	now := i.now().UTC()
	claims := Claims{
		UserID: userID,
		Email:  email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify checks signature and expiry. Every failure reason is wrapped in
// ErrInvalidToken; the reason is only meant for logs.
func (i *Issuer) Verify(tokenString string) (Identity, error) {
	if len(i.secret) == 0 {
		return Identity{}, ErrMissingSecret
	}
	tokenString = strings.TrimSpace(tokenString)
	if tokenString == "" {
		return Identity{}, fmt.Errorf("%w: empty", ErrInvalidToken)
	}

	var claims Claims
	_, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (any, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	// Scoped download tokens carry only sub; they must never pass as sessions.
	if claims.UserID == "" {
		return Identity{}, fmt.Errorf("%w: missing userId", ErrInvalidToken)
	}
	return Identity{UserID: claims.UserID, Email: claims.Email}, nil
}

// SignScoped signs a short-lived token bound to an arbitrary subject and audience.
// The local object store uses it for signed download links.
func (i *Issuer) SignScoped(subject, audience string, ttl time.Duration) (string, time.Time, error) {
	if len(i.secret) == 0 {
		return "", time.Time{}, ErrMissingSecret
	}
	now := i.now().UTC()
	expires := now.Add(ttl)
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		Audience:  jwt.ClaimStrings{audience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expires),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign scoped token: %w", err)
	}
	return signed, expires, nil
}

// VerifyScoped returns the subject of a token minted by SignScoped for audience.
func (i *Issuer) VerifyScoped(tokenString, audience string) (string, error) {
	if len(i.secret) == 0 {
		return "", ErrMissingSecret
	}
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (any, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithAudience(audience),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return claims.Subject, nil
}
