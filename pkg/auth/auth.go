package auth

import (
	"crypto/subtle"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/rcfaria/go-whatsapp-session-api/pkg/env"
	"github.com/rcfaria/go-whatsapp-session-api/pkg/router"
)

// Login credentials checked by the /auth/login endpoint.
var (
	Username string
	Password string
)

func init() {
	Username, _ = env.GetEnvString("AUTH_USERNAME")
	Password, _ = env.GetEnvString("AUTH_PASSWORD")
}

// CheckCredentials compares login credentials in constant time.
func CheckCredentials(username string, password string) bool {
	if Username == "" || Password == "" {
		return false
	}
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(Username)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(password), []byte(Password)) == 1
	return userOK && passOK
}

// BearerAuth validates the JWT token from the Authorization header.
// Token format: "Bearer <jwt_token>". Validation is stateless.
func BearerAuth() fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return router.ResponseUnauthorized(c, "Missing Authorization header")
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			return router.ResponseUnauthorized(c, "Invalid Authorization header format. Use: Bearer <token>")
		}

		tokenString := parts[1]
		if tokenString == "" {
			return router.ResponseUnauthorized(c, "Missing token")
		}

		claims, err := ValidateToken(tokenString)
		if err != nil {
			return router.ResponseUnauthorized(c, "Invalid or expired token")
		}

		c.Locals("username", claims.Username)

		return c.Next()
	}
}
