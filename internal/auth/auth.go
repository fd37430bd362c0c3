package auth

import (
	"github.com/gofiber/fiber/v2"

	typApp "github.com/rcfaria/go-whatsapp-session-api/internal/types"
	pkgAuth "github.com/rcfaria/go-whatsapp-session-api/pkg/auth"
	"github.com/rcfaria/go-whatsapp-session-api/pkg/router"
)

// Login
// @Summary     Login
// @Description Exchange the configured credentials for a bearer token.
// @Tags        Auth
// @Accept      json
// @Produce     json
// @Param       body body types.RequestLogin true "Credentials"
// @Success     200 {object} router.Response
// @Failure     401 {object} router.Response
// @Router      /auth/login [post]
func Login(c *fiber.Ctx) error {
	var req typApp.RequestLogin
	if err := c.BodyParser(&req); err != nil {
		return router.ResponseBadRequest(c, "Failed parse body request")
	}

	if !pkgAuth.CheckCredentials(req.Username, req.Password) {
		return router.ResponseUnauthorized(c, "Invalid credentials")
	}

	token, err := pkgAuth.GenerateToken(req.Username)
	if err != nil {
		return router.ResponseInternalError(c, "Failed to issue token")
	}

	return router.ResponseSuccessWithData(c, typApp.ResponseLogin{Token: token})
}
