// Package token issues and validates signed, time-limited access tokens.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt"
)

var (
	ErrExpiredToken   = errors.New("token has expired")
	ErrMalformedToken = errors.New("invalid token")
	ErrMissingClaim   = errors.New("token is missing the user_id claim")
)

// Claims is the identity carried by an access token.
type Claims struct {
	UserID int64
}

type jwtClaims struct {
	UserID *int64 `json:"user_id"`
	jwt.StandardClaims
}

// Valid defers expiry checks to Service.Validate so they run on the service clock.
func (c *jwtClaims) Valid() error {
	return nil
}

type Service struct {
	secret []byte
	method *jwt.SigningMethodHMAC
	ttl    time.Duration
	now    func() time.Time
}

type Option func(*Service)

// WithClock replaces time.Now for issuing and expiry checks.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// NewService accepts the HMAC algorithms HS256, HS384 and HS512.
func NewService(secret, algorithm string, ttl time.Duration, opts ...Option) (*Service, error) {
	if secret == "" {
		return nil, errors.New("token secret must not be empty")
	}
	if ttl <= 0 {
		return nil, errors.New("token ttl must be positive")
	}

	method, ok := jwt.GetSigningMethod(algorithm).(*jwt.SigningMethodHMAC)
	if !ok {
		return nil, fmt.Errorf("unsupported signing algorithm %q", algorithm)
	}

	s := &Service{
		secret: []byte(secret),
		method: method,
		ttl:    ttl,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Service) TTL() time.Duration {
	return s.ttl
}

func (s *Service) Issue(claims Claims) (string, error) {
	now := s.now()
	userID := claims.UserID

	token := jwt.NewWithClaims(s.method, &jwtClaims{
		UserID: &userID,
		StandardClaims: jwt.StandardClaims{
			IssuedAt:  now.Unix(),
			ExpiresAt: now.Add(s.ttl).Unix(),
		},
	})

	tokenString, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return tokenString, nil
}

func (s *Service) Validate(tokenString string) (Claims, error) {
	var claims jwtClaims

	token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (interface{}, error) {
		if token.Method.Alg() != s.method.Alg() {
			return nil, jwt.ErrSignatureInvalid
		}
		return s.secret, nil
	})
	if err != nil || !token.Valid {
		return Claims{}, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}

	if claims.ExpiresAt == 0 {
		return Claims{}, fmt.Errorf("%w: no expiry", ErrMalformedToken)
	}
	if s.now().Unix() > claims.ExpiresAt {
		return Claims{}, ErrExpiredToken
	}
	if claims.UserID == nil {
		return Claims{}, ErrMissingClaim
	}

	return Claims{UserID: *claims.UserID}, nil
}
