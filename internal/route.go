package internal

import (
	"github.com/gofiber/fiber/v2"
	swagger "github.com/gofiber/swagger"

	"github.com/rcfaria/go-whatsapp-session-api/pkg/auth"
	"github.com/rcfaria/go-whatsapp-session-api/pkg/router"

	ctlAuth "github.com/rcfaria/go-whatsapp-session-api/internal/auth"
	ctlIndex "github.com/rcfaria/go-whatsapp-session-api/internal/index"
	ctlSessions "github.com/rcfaria/go-whatsapp-session-api/internal/sessions"
	ctlWebhooks "github.com/rcfaria/go-whatsapp-session-api/internal/webhooks"
)

// Routes wires every endpoint onto the fiber app.
func Routes(app *fiber.App, sessions *ctlSessions.Controller, webhooks *ctlWebhooks.Controller) {
	swaggerHandler := swagger.New(swagger.Config{
		URL: router.BaseURL + "/docs/swagger.json",
	})

	// Route for Index
	// ---------------------------------------------
	if router.BaseURL == "" {
		app.Get("/", ctlIndex.Index)
	} else {
		app.Get(router.BaseURL, ctlIndex.Index)
		app.Get(router.BaseURL+"/", ctlIndex.Index)
	}

	// Route for OpenAPI / Swagger
	// ---------------------------------------------
	app.Get(router.BaseURL+"/docs/swagger.json", func(c *fiber.Ctx) error {
		return c.SendFile("docs/swagger.json")
	})
	app.Get(router.BaseURL+"/docs/*", swaggerHandler)

	// Route for Auth
	// ---------------------------------------------
	app.Post(router.BaseURL+"/auth/login", ctlAuth.Login)

	// Routes for Sessions
	// ---------------------------------------------
	guard := auth.BearerAuth()

	app.Get(router.BaseURL+"/sessions", guard, sessions.List)
	app.Post(router.BaseURL+"/sessions/:session_id", guard, sessions.Create)
	app.Get(router.BaseURL+"/sessions/:session_id", guard, sessions.Get)
	app.Delete(router.BaseURL+"/sessions/:session_id/disconnect", guard, sessions.Disconnect)
	app.Delete(router.BaseURL+"/sessions/:session_id", guard, sessions.Delete)
	app.Post(router.BaseURL+"/sessions/:session_id/send", guard, sessions.Send)

	// Routes for Webhooks
	// ---------------------------------------------
	app.Get(router.BaseURL+"/webhooks/session/:session_id", guard, webhooks.ListBySession)
	app.Post(router.BaseURL+"/webhooks/session/:session_id", guard, webhooks.Create)
	app.Get(router.BaseURL+"/webhooks/session/:session_id/:webhook_id", guard, webhooks.Get)
	app.Patch(router.BaseURL+"/webhooks/session/:session_id/:webhook_id", guard, webhooks.Update)
	app.Delete(router.BaseURL+"/webhooks/session/:session_id/:webhook_id", guard, webhooks.Delete)
	app.Get(router.BaseURL+"/webhooks/session/:session_id/:webhook_id/deliveries", guard, webhooks.Deliveries)
}
