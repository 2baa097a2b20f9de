package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt"

	"github.com/rocketscienceinc/kamisado-backend/internal/apperror"
)

var errUnexpectedSigningMethod = errors.New("unexpected signing method")

// AuthService - issues and verifies player identity tokens.
type AuthService interface {
	GenerateToken(playerID string) (string, error)
	ParseToken(token string) (string, error)
}

type authServiceImpl struct {
	secretKey string
	ttl       time.Duration
}

func NewAuthService(secretKey string, ttl time.Duration) AuthService {
	return &authServiceImpl{
		secretKey: secretKey,
		ttl:       ttl,
	}
}

func (that *authServiceImpl) GenerateToken(playerID string) (string, error) {
	claims := jwt.StandardClaims{
		Subject:   playerID,
		IssuedAt:  jwt.TimeFunc().Unix(),
		ExpiresAt: jwt.TimeFunc().Add(that.ttl).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	tokenString, err := token.SignedString([]byte(that.secretKey))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return tokenString, nil
}

// ParseToken - returns the player id carried by a valid token.
func (that *authServiceImpl) ParseToken(tokenString string) (string, error) {
	claims := &jwt.StandardClaims{}

	_, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("%w: %v", errUnexpectedSigningMethod, token.Header["alg"])
		}

		return []byte(that.secretKey), nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %w", apperror.ErrUnauthenticated, err)
	}

	if claims.Subject == "" {
		return "", fmt.Errorf("%w: token has no subject", apperror.ErrUnauthenticated)
	}

	return claims.Subject, nil
}
