package services

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/bespoken/bespoken-backend/internal/config"
	"github.com/bespoken/bespoken-backend/internal/logger"
)

// Identity is the verified caller of a request.
type Identity struct {
	UserID string
	Email  string
	Name   string
}

// IdentityService verifies bearer tokens and extracts the caller identity.
type IdentityService interface {
	VerifyToken(tokenString string) (*Identity, error)
}

type identityService struct {
	log    *logger.Logger
	secret []byte
}

func NewIdentityService(log *logger.Logger, cfg *config.Config) (IdentityService, error) {
	if cfg.JWTSecretKey == "" {
		return nil, errors.New("JWT secret key is not configured")
	}
	return &identityService{
		log:    log.With("service", "IdentityService"),
		secret: []byte(cfg.JWTSecretKey),
	}, nil
}

func (is *identityService) VerifyToken(tokenString string) (*Identity, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return is.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token claims")
	}

	sub, _ := claims["sub"].(string)
	if sub == "" {
		return nil, errors.New("token missing subject claim")
	}

	id := &Identity{UserID: sub}
	if email, ok := claims["email"].(string); ok {
		id.Email = email
	}
	if name, ok := claims["name"].(string); ok {
		id.Name = name
	}
	return id, nil
}
