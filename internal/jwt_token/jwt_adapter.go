package jwttoken

import (
	authmw "keepsake/pkg/platform/middleware/auth"
)

// JWTServiceAdapter lets the auth middleware validate tokens without knowing
// about jwt.RegisteredClaims.
type JWTServiceAdapter struct {
	service *JWTService
}

func NewJWTServiceAdapter(service *JWTService) *JWTServiceAdapter {
	return &JWTServiceAdapter{service: service}
}

func (a *JWTServiceAdapter) ValidateToken(raw string) (*authmw.JWTClaims, error) {
	c, err := a.service.ValidateToken(raw)
	if err != nil {
		return nil, err
	}
	return &authmw.JWTClaims{Subject: c.Subject, Role: c.Role, JTI: c.ID}, nil
}
