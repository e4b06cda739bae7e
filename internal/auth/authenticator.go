package auth

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Authenticator checks credentials and issues access tokens.
type Authenticator struct {
	users  UserRepository
	secret string
	ttl    time.Duration
}

// NewAuthenticator creates an Authenticator signing with secret.
// A non-positive ttl selects DefaultTokenTTL.
func NewAuthenticator(users UserRepository, secret string, ttl time.Duration) *Authenticator {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &Authenticator{users: users, secret: secret, ttl: ttl}
}

// Session is the result of a successful login.
type Session struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresIn   int       `json:"expires_in"`
	User        *User     `json:"user"`
}

// Login verifies username and password. Unknown users and wrong
// passwords both yield ErrInvalidCredentials.
func (a *Authenticator) Login(ctx context.Context, username, password string) (*Session, error) {
	user, err := a.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	ok, err := VerifyPassword(password, user.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("verifying password: %w", err)
	}
	if !ok {
		return nil, ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, ErrUserInactive
	}

	token, err := IssueToken(user, a.secret, a.ttl)
	if err != nil {
		return nil, err
	}
	return &Session{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   int(a.ttl.Seconds()),
		User:        user,
	}, nil
}

// Verify parses an access token and confirms the account is still active.
func (a *Authenticator) Verify(ctx context.Context, token string) (*User, error) {
	claims, err := ParseToken(token, a.secret)
	if err != nil {
		return nil, err
	}
	user, err := a.users.GetByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, fmt.Errorf("%w: unknown subject", ErrTokenInvalid)
		}
		return nil, err
	}
	if !user.IsActive {
		return nil, ErrUserInactive
	}
	return user, nil
}
