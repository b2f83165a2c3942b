package user

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const (
	issuer         = "go-gemini-chat"
	minPasswordLen = 8
)

// Revocations remembers logged-out token ids until they would have expired anyway.
type Revocations interface {
	Revoke(ctx context.Context, tokenID string, ttl time.Duration) error
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

type Service struct {
	repo        *Repository
	revocations Revocations
	jwtSecret   []byte
	sessionTTL  time.Duration
	now         func() time.Time
}

type SessionClaims struct {
	UserID uint   `json:"id"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}

func NewService(repo *Repository, revocations Revocations, secret string, sessionTTL time.Duration) *Service {
	return &Service{
		repo:        repo,
		revocations: revocations,
		jwtSecret:   []byte(secret),
		sessionTTL:  sessionTTL,
		now:         time.Now,
	}
}

// SessionTTL is how long issued tokens (and the cookie carrying them) live.
func (s *Service) SessionTTL() time.Duration {
	return s.sessionTTL
}

func (s *Service) Register(ctx context.Context, req *SignUpRequest) (*User, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, fmt.Errorf("%w: email is not valid", ErrInvalidInput)
	}
	if len(req.Password) < minPasswordLen {
		return nil, fmt.Errorf("%w: password must be at least %d characters", ErrInvalidInput, minPasswordLen)
	}

	exists, err := s.repo.EmailExists(ctx, email)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrEmailTaken
	}

	hashedPwd, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	u := &User{
		Email:        email,
		Name:         strings.TrimSpace(req.Name),
		PasswordHash: string(hashedPwd),
	}
	return s.repo.CreateUser(ctx, u)
}

func (s *Service) Login(ctx context.Context, req *LoginRequest) (*LoginResponse, error) {
	u, err := s.repo.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(req.Email)))
	if err != nil {
		return nil, ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(req.Password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	now := s.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, SessionClaims{
		UserID: u.ID,
		Email:  u.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.sessionTTL)),
		},
	})

	ss, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return nil, err
	}

	return &LoginResponse{User: u, Token: ss}, nil
}

func (s *Service) parse(tokenString string) (*SessionClaims, error) {
	claims := &SessionClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return s.jwtSecret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// ValidateToken checks signature, expiry and revocation. A failed revocation
// lookup is returned as-is so callers can tell it apart from a bad token.
func (s *Service) ValidateToken(ctx context.Context, tokenString string) (uint, string, error) {
	claims, err := s.parse(tokenString)
	if err != nil {
		return 0, "", err
	}

	revoked, err := s.revocations.IsRevoked(ctx, claims.ID)
	if err != nil {
		return 0, "", fmt.Errorf("revocation lookup: %w", err)
	}
	if revoked {
		return 0, "", ErrInvalidToken
	}

	return claims.UserID, claims.Email, nil
}

// Logout revokes the token for the rest of its lifetime.
func (s *Service) Logout(ctx context.Context, tokenString string) error {
	claims, err := s.parse(tokenString)
	if err != nil {
		return err
	}
	ttl := claims.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return nil
	}
	return s.revocations.Revoke(ctx, claims.ID, ttl)
}

func (s *Service) GetUser(ctx context.Context, id uint) (*User, error) {
	return s.repo.GetUserByID(ctx, id)
}
