package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/rcfaria/go-whatsapp-session-api/pkg/env"
)

// JWTSecretKey for signing API tokens.
// REQUIRED: Application will panic if not set
var JWTSecretKey string

var tokenTTL time.Duration

func init() {
	// JWT_SECRET_KEY is REQUIRED - app will panic if not configured
	JWTSecretKey = env.MustGetEnvString("JWT_SECRET_KEY")
	tokenTTL = env.GetEnvDurationOrDefault("JWT_TOKEN_TTL", 24*time.Hour)
}

// TokenClaims represents the claims in an API token
type TokenClaims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// GenerateToken creates a signed JWT for an authenticated user
func GenerateToken(username string) (string, error) {
	if JWTSecretKey == "" {
		return "", errors.New("JWT_SECRET_KEY not configured")
	}

	claims := TokenClaims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			NotBefore: jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(tokenTTL)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(JWTSecretKey))
}

// ValidateToken validates a JWT and returns its claims
func ValidateToken(tokenString string) (*TokenClaims, error) {
	if JWTSecretKey == "" {
		return nil, errors.New("JWT_SECRET_KEY not configured")
	}

	token, err := jwt.ParseWithClaims(tokenString, &TokenClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return []byte(JWTSecretKey), nil
	})

	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*TokenClaims); ok && token.Valid {
		return claims, nil
	}

	return nil, errors.New("invalid token claims")
}
