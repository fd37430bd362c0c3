package webhooks

import (
	"context"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/rcfaria/go-whatsapp-session-api/internal/webhook"
	typApp "github.com/rcfaria/go-whatsapp-session-api/internal/types"
	"github.com/rcfaria/go-whatsapp-session-api/pkg/router"
)

// Controller manages webhook subscriptions over HTTP.
type Controller struct {
	store *webhook.Store
}

func NewController(store *webhook.Store) *Controller {
	return &Controller{store: store}
}

func requestContext(c *fiber.Ctx) context.Context {
	ctx := c.UserContext()
	if ctx == nil {
		ctx = context.Background()
	}
	return ctx
}

func parseEvents(raw []string) ([]webhook.EventType, error) {
	events := make([]webhook.EventType, 0, len(raw))
	for _, name := range raw {
		e := webhook.EventType(strings.TrimSpace(name))
		if !webhook.IsKnownEventType(e) {
			return nil, errors.New("unknown event type: " + string(e))
		}
		events = append(events, e)
	}
	return events, nil
}

// @Summary     Create Webhook
// @Description Subscribe an HTTPS endpoint to a session's events.
// @Tags        Webhooks
// @Accept      json
// @Produce     json
// @Param       session_id path string true "Session identifier"
// @Param       body body types.RequestWebhook true "Webhook subscription"
// @Success     200 {object} router.Response
// @Failure     400 {object} router.Response
// @Router      /webhooks/session/{session_id} [post]
func (ctl *Controller) Create(c *fiber.Ctx) error {
	sessionID := strings.TrimSpace(c.Params("session_id"))

	var req typApp.RequestWebhook
	if err := c.BodyParser(&req); err != nil {
		return router.ResponseBadRequest(c, "Failed parse body request")
	}

	if err := webhook.ValidateEndpointURL(req.URL); err != nil {
		return router.ResponseBadRequest(c, err.Error())
	}
	if req.Secret == "" {
		return router.ResponseBadRequest(c, "Secret is required")
	}

	events, err := parseEvents(req.Events)
	if err != nil {
		return router.ResponseBadRequest(c, err.Error())
	}

	id, err := ctl.store.CreateWebhook(requestContext(c), sessionID, req.URL, req.Secret, events)
	if err != nil {
		return router.ResponseInternalError(c, err.Error())
	}

	created, err := ctl.store.GetWebhook(requestContext(c), id, sessionID)
	if err != nil {
		return router.ResponseInternalError(c, err.Error())
	}

	return router.ResponseSuccessWithData(c, created)
}

// @Summary     List Session Webhooks
// @Description List every webhook subscribed to a session.
// @Tags        Webhooks
// @Produce     json
// @Param       session_id path string true "Session identifier"
// @Success     200 {object} router.Response
// @Router      /webhooks/session/{session_id} [get]
func (ctl *Controller) ListBySession(c *fiber.Ctx) error {
	sessionID := strings.TrimSpace(c.Params("session_id"))

	webhooks, err := ctl.store.GetAllWebhooks(requestContext(c), sessionID)
	if err != nil {
		return router.ResponseInternalError(c, err.Error())
	}

	return router.ResponseSuccessWithData(c, webhooks)
}

// @Summary     Get Webhook
// @Description Get one webhook subscription.
// @Tags        Webhooks
// @Produce     json
// @Param       session_id path string true "Session identifier"
// @Param       webhook_id path string true "Webhook identifier"
// @Success     200 {object} router.Response
// @Failure     404 {object} router.Response
// @Router      /webhooks/session/{session_id}/{webhook_id} [get]
func (ctl *Controller) Get(c *fiber.Ctx) error {
	sessionID := strings.TrimSpace(c.Params("session_id"))
	webhookID := strings.TrimSpace(c.Params("webhook_id"))

	hook, err := ctl.store.GetWebhook(requestContext(c), webhookID, sessionID)
	if errors.Is(err, webhook.ErrWebhookNotFound) {
		return router.ResponseNotFound(c, "Webhook not found")
	}
	if err != nil {
		return router.ResponseInternalError(c, err.Error())
	}

	return router.ResponseSuccessWithData(c, hook)
}

// @Summary     Update Webhook
// @Description Update a webhook's endpoint, subscribed events or active flag.
// @Tags        Webhooks
// @Accept      json
// @Produce     json
// @Param       session_id path string true "Session identifier"
// @Param       webhook_id path string true "Webhook identifier"
// @Param       body body types.RequestWebhook true "Webhook subscription"
// @Success     200 {object} router.Response
// @Failure     400 {object} router.Response
// @Failure     404 {object} router.Response
// @Router      /webhooks/session/{session_id}/{webhook_id} [patch]
func (ctl *Controller) Update(c *fiber.Ctx) error {
	sessionID := strings.TrimSpace(c.Params("session_id"))
	webhookID := strings.TrimSpace(c.Params("webhook_id"))

	current, err := ctl.store.GetWebhook(requestContext(c), webhookID, sessionID)
	if errors.Is(err, webhook.ErrWebhookNotFound) {
		return router.ResponseNotFound(c, "Webhook not found")
	}
	if err != nil {
		return router.ResponseInternalError(c, err.Error())
	}

	var req typApp.RequestWebhook
	if err := c.BodyParser(&req); err != nil {
		return router.ResponseBadRequest(c, "Failed parse body request")
	}

	url := current.URL
	if req.URL != "" {
		if err := webhook.ValidateEndpointURL(req.URL); err != nil {
			return router.ResponseBadRequest(c, err.Error())
		}
		url = req.URL
	}

	secret := current.Secret
	if req.Secret != "" {
		secret = req.Secret
	}

	events := current.Events
	if req.Events != nil {
		events, err = parseEvents(req.Events)
		if err != nil {
			return router.ResponseBadRequest(c, err.Error())
		}
	}

	active := current.Active
	if req.Active != nil {
		active = *req.Active
	}

	if err := ctl.store.UpdateWebhook(requestContext(c), webhookID, sessionID, url, secret, events, active); err != nil {
		return router.ResponseInternalError(c, err.Error())
	}

	updated, err := ctl.store.GetWebhook(requestContext(c), webhookID, sessionID)
	if err != nil {
		return router.ResponseInternalError(c, err.Error())
	}

	return router.ResponseSuccessWithData(c, updated)
}

// @Summary     Delete Webhook
// @Description Remove a webhook subscription.
// @Tags        Webhooks
// @Produce     json
// @Param       session_id path string true "Session identifier"
// @Param       webhook_id path string true "Webhook identifier"
// @Success     200 {object} router.Response
// @Failure     404 {object} router.Response
// @Router      /webhooks/session/{session_id}/{webhook_id} [delete]
func (ctl *Controller) Delete(c *fiber.Ctx) error {
	sessionID := strings.TrimSpace(c.Params("session_id"))
	webhookID := strings.TrimSpace(c.Params("webhook_id"))

	err := ctl.store.DeleteWebhook(requestContext(c), webhookID, sessionID)
	if errors.Is(err, webhook.ErrWebhookNotFound) {
		return router.ResponseNotFound(c, "Webhook not found")
	}
	if err != nil {
		return router.ResponseInternalError(c, err.Error())
	}

	return router.ResponseSuccess(c, "Webhook deleted")
}

// @Summary     Webhook Delivery Logs
// @Description List recent delivery attempts for a webhook.
// @Tags        Webhooks
// @Produce     json
// @Param       session_id path string true "Session identifier"
// @Param       webhook_id path string true "Webhook identifier"
// @Success     200 {object} router.Response
// @Failure     404 {object} router.Response
// @Router      /webhooks/session/{session_id}/{webhook_id}/deliveries [get]
func (ctl *Controller) Deliveries(c *fiber.Ctx) error {
	sessionID := strings.TrimSpace(c.Params("session_id"))
	webhookID := strings.TrimSpace(c.Params("webhook_id"))

	if _, err := ctl.store.GetWebhook(requestContext(c), webhookID, sessionID); err != nil {
		if errors.Is(err, webhook.ErrWebhookNotFound) {
			return router.ResponseNotFound(c, "Webhook not found")
		}
		return router.ResponseInternalError(c, err.Error())
	}

	limit := c.QueryInt("limit", 50)
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	logs, err := ctl.store.GetDeliveryLogs(requestContext(c), webhookID, limit)
	if err != nil {
		return router.ResponseInternalError(c, err.Error())
	}

	return router.ResponseSuccessWithData(c, logs)
}
