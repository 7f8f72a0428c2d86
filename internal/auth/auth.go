// Package auth authenticates administrators for the management API.
// Passwords are stored as bcrypt hashes; a successful login yields a signed
// short-lived bearer token.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
	"golang.org/x/crypto/bcrypt"

	"github.com/requestline/intake-bot/internal/serviceerr"
)

const tokenIssuer = "intake-bot"

// User is one administrator account.
type User struct {
	Username     string
	PasswordHash string
	CreatedAt    time.Time
}

type UserStore interface {
	GetUser(ctx context.Context, username string) (User, error)
	UpsertUser(ctx context.Context, user User) error
}

type Service struct {
	users    UserStore
	secret   []byte
	tokenTTL time.Duration

	now func() time.Time
}

type Option func(*Service)

// WithNow replaces the clock, for tests.
func WithNow(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

func NewService(users UserStore, secret []byte, tokenTTL time.Duration, opts ...Option) (*Service, error) {
	if len(secret) == 0 {
		return nil, errors.New("token secret must not be empty")
	}

	s := &Service{
		users:    users,
		secret:   secret,
		tokenTTL: tokenTTL,
		now:      time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	return s, nil
}

// Login verifies the credentials and issues a bearer token. Unknown users
// and wrong passwords are indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, username, password string) (string, error) {
	user, err := s.users.GetUser(ctx, username)
	if err != nil {
		if errors.Is(err, serviceerr.ErrNotFound) {
			return "", serviceerr.ErrUnauthorized
		}

		return "", fmt.Errorf("getting user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return "", serviceerr.ErrUnauthorized
	}

	return s.issueToken(user.Username)
}

// Verify checks the token signature and expiry and returns the username it
// was issued for.
func (s *Service) Verify(token string) (string, error) {
	parsed, err := jwt.ParseSigned(token, []jose.SignatureAlgorithm{jose.HS256})
	if err != nil {
		return "", serviceerr.ErrUnauthorized
	}

	var claims jwt.Claims
	if err := parsed.Claims(s.secret, &claims); err != nil {
		return "", serviceerr.ErrUnauthorized
	}

	if err := claims.Validate(jwt.Expected{Issuer: tokenIssuer, Time: s.now()}); err != nil {
		return "", serviceerr.ErrUnauthorized
	}

	return claims.Subject, nil
}

// SetPassword creates the account or replaces its password hash.
func (s *Service) SetPassword(ctx context.Context, username, password string) error {
	hash, err := HashPassword(password)
	if err != nil {
		return err
	}

	return s.users.UpsertUser(ctx, User{
		Username:     username,
		PasswordHash: hash,
		CreatedAt:    s.now(),
	})
}

func (s *Service) issueToken(username string) (string, error) {
	signer, err := jose.NewSigner(
		jose.SigningKey{Algorithm: jose.HS256, Key: s.secret},
		(&jose.SignerOptions{}).WithType("JWT"),
	)
	if err != nil {
		return "", fmt.Errorf("creating signer: %w", err)
	}

	now := s.now()
	claims := jwt.Claims{
		Issuer:   tokenIssuer,
		Subject:  username,
		IssuedAt: jwt.NewNumericDate(now),
		Expiry:   jwt.NewNumericDate(now.Add(s.tokenTTL)),
	}

	token, err := jwt.Signed(signer).Claims(claims).Serialize()
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}

	return token, nil
}

func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hashing password: %w", err)
	}

	return string(hash), nil
}
