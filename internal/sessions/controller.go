package sessions

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/rcfaria/go-whatsapp-session-api/internal/session"
	typApp "github.com/rcfaria/go-whatsapp-session-api/internal/types"
	"github.com/rcfaria/go-whatsapp-session-api/pkg/router"
)

// Controller exposes the session facade over HTTP.
type Controller struct {
	manager *session.Manager
}

func NewController(manager *session.Manager) *Controller {
	return &Controller{manager: manager}
}

func requestContext(c *fiber.Ctx) context.Context {
	ctx := c.UserContext()
	if ctx == nil {
		ctx = context.Background()
	}
	return ctx
}

// @Summary     Create Session
// @Description Create a session and start connecting it. The QR code shows up on the session status once issued.
// @Tags        Sessions
// @Produce     json
// @Param       session_id path string true "Session identifier"
// @Success     200 {object} router.Response
// @Failure     400 {object} router.Response
// @Router      /sessions/{session_id} [post]
func (ctl *Controller) Create(c *fiber.Ctx) error {
	sessionID := strings.TrimSpace(c.Params("session_id"))

	status, err := ctl.manager.CreateSession(requestContext(c), sessionID)
	if err != nil {
		return ctl.facadeError(c, err)
	}

	return router.ResponseSuccessWithData(c, status)
}

// @Summary     List Sessions
// @Description List the status of every known session.
// @Tags        Sessions
// @Produce     json
// @Success     200 {object} router.Response
// @Router      /sessions [get]
func (ctl *Controller) List(c *fiber.Ctx) error {
	return router.ResponseSuccessWithData(c, ctl.manager.Sessions())
}

// @Summary     Get Session
// @Description Get the status of one session.
// @Tags        Sessions
// @Produce     json
// @Param       session_id path string true "Session identifier"
// @Success     200 {object} router.Response
// @Failure     404 {object} router.Response
// @Router      /sessions/{session_id} [get]
func (ctl *Controller) Get(c *fiber.Ctx) error {
	sessionID := strings.TrimSpace(c.Params("session_id"))

	status, err := ctl.manager.SessionInfo(sessionID)
	if err != nil {
		return router.ResponseNotFound(c, "Session not found")
	}

	return router.ResponseSuccessWithData(c, status)
}

// @Summary     Disconnect Session
// @Description Log the session out of its connection. The session record stays and reports disconnected.
// @Tags        Sessions
// @Produce     json
// @Param       session_id path string true "Session identifier"
// @Success     200 {object} router.Response
// @Failure     400 {object} router.Response
// @Router      /sessions/{session_id}/disconnect [delete]
func (ctl *Controller) Disconnect(c *fiber.Ctx) error {
	sessionID := strings.TrimSpace(c.Params("session_id"))

	if err := ctl.manager.DisconnectSession(requestContext(c), sessionID); err != nil {
		return ctl.facadeError(c, err)
	}

	return router.ResponseSuccess(c, "Session disconnected")
}

// @Summary     Delete Session
// @Description Remove the session and its credentials. Deleting an unknown session succeeds.
// @Tags        Sessions
// @Produce     json
// @Param       session_id path string true "Session identifier"
// @Success     200 {object} router.Response
// @Failure     400 {object} router.Response
// @Router      /sessions/{session_id} [delete]
func (ctl *Controller) Delete(c *fiber.Ctx) error {
	sessionID := strings.TrimSpace(c.Params("session_id"))

	if err := ctl.manager.DeleteSession(requestContext(c), sessionID); err != nil {
		return ctl.facadeError(c, err)
	}

	return router.ResponseSuccess(c, "Session deleted")
}

// @Summary     Send Message
// @Description Send a message through a connected session.
// @Tags        Sessions
// @Accept      json
// @Produce     json
// @Param       session_id path string true "Session identifier"
// @Param       body body types.RequestSendMessage true "Message payload"
// @Success     200 {object} router.Response
// @Failure     400 {object} router.Response
// @Router      /sessions/{session_id}/send [post]
func (ctl *Controller) Send(c *fiber.Ctx) error {
	sessionID := strings.TrimSpace(c.Params("session_id"))

	var req typApp.RequestSendMessage
	if err := c.BodyParser(&req); err != nil {
		return router.ResponseBadRequest(c, "Failed parse body request")
	}

	sendReq := normalizeSendRequest(req)
	if err := ctl.manager.SendMessage(requestContext(c), sessionID, sendReq); err != nil {
		return ctl.facadeError(c, err)
	}

	return router.ResponseSuccess(c, "Message sent")
}

// normalizeSendRequest maps the wire payload onto the facade request,
// folding the legacy phoneNumber/message pair into a text send.
func normalizeSendRequest(req typApp.RequestSendMessage) session.SendRequest {
	to := strings.TrimSpace(req.To)
	if to == "" {
		to = strings.TrimSpace(req.PhoneNumber)
	}

	kind := session.MessageKind(strings.ToLower(strings.TrimSpace(req.Type)))
	if kind == "" {
		kind = session.KindText
	}

	content := req.Content
	if content == "" && req.Message != "" {
		content = req.Message
	}

	return session.SendRequest{
		To:       to,
		Kind:     kind,
		Content:  content,
		MediaURL: strings.TrimSpace(req.MediaURL),
		FileName: strings.TrimSpace(req.FileName),
	}
}

// facadeError maps every facade failure, transport failures included, onto
// a 400 response so callers always get the envelope with a message.
func (ctl *Controller) facadeError(c *fiber.Ctx, err error) error {
	return router.ResponseBadRequest(c, err.Error())
}
