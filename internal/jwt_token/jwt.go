// Package jwttoken issues and verifies the HS256 access tokens owners and
// operators present on /v1/vaults and /v1/admin routes.
package jwttoken

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	id "keepsake/pkg/domain"
	dErrors "keepsake/pkg/domain-errors"
)

// Claims carries the caller's role next to the registered claims. Subject is
// an OwnerID; operators are owners whose role is admin.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

var (
	errExpired = dErrors.New(dErrors.CodeUnauthorized, "token has expired")
	errInvalid = dErrors.New(dErrors.CodeUnauthorized, "invalid token")
)

type JWTService struct {
	signingKey []byte
	issuer     string
	audience   string
	now        func() time.Time
}

func NewJWTService(signingKey, issuer, audience string) *JWTService {
	return &JWTService{
		signingKey: []byte(signingKey),
		issuer:     issuer,
		audience:   audience,
		now:        time.Now,
	}
}

// WithClock swaps the time source for both issuing and validating.
func (s *JWTService) WithClock(now func() time.Time) *JWTService {
	s.now = now
	return s
}

// GenerateAccessToken signs a token for subject that expires after ttl.
func (s *JWTService) GenerateAccessToken(subject id.OwnerID, role string, ttl time.Duration) (string, error) {
	issued := s.now()
	claims := Claims{Role: role}
	claims.Subject = subject.String()
	claims.Issuer = s.issuer
	claims.Audience = jwt.ClaimStrings{s.audience}
	claims.IssuedAt = jwt.NewNumericDate(issued)
	claims.ExpiresAt = jwt.NewNumericDate(issued.Add(ttl))
	claims.ID = uuid.NewString()

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.signingKey)
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}
	return signed, nil
}

// ValidateToken checks signature, issuer, audience and expiry. Every failure
// is an unauthorized domain error; only expiry is told apart.
func (s *JWTService) ValidateToken(raw string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, s.key,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithAudience(s.audience),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	)
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, errExpired
	case err != nil:
		return nil, errInvalid
	}
	return claims, nil
}

func (s *JWTService) key(*jwt.Token) (any, error) {
	return s.signingKey, nil
}
