package handler

import (
	"medviewer-be/internal/pkg/logger"
	"medviewer-be/internal/pkg/serverutils"
	"medviewer-be/internal/service"
	internalWS "medviewer-be/internal/websocket"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

type ViewerWsHandler struct {
	service service.IViewerService
	hub     *internalWS.Hub
	logger  logger.ILogger
}

func NewViewerWsHandler(service service.IViewerService, hub *internalWS.Hub, log logger.ILogger) *ViewerWsHandler {
	return &ViewerWsHandler{
		service: service,
		hub:     hub,
		logger:  log,
	}
}

// ServeWs attaches a browser to one viewer session. Browsers cannot set
// headers on a websocket handshake, so the token usually comes as ?token=.
func (h *ViewerWsHandler) ServeWs(c *fiber.Ctx) error {
	tokenStr := serverutils.BearerToken(c)
	if tokenStr == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(serverutils.ErrorResponse(fiber.StatusUnauthorized, "Missing token (Query 'token' or Header 'Authorization')"))
	}

	userID, err := serverutils.ParseUserID(tokenStr)
	if err != nil {
		h.logger.Warn("ViewerWsHandler", "Invalid token in WS handshake", map[string]interface{}{"error": err.Error()})
		return c.Status(fiber.StatusUnauthorized).JSON(serverutils.ErrorResponse(fiber.StatusUnauthorized, "Invalid token"))
	}

	sessionID := c.Params("id")
	if err := h.service.Authorize(userID, sessionID); err != nil {
		return err
	}

	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}
	return websocket.New(func(conn *websocket.Conn) {
		h.logger.Info("ViewerWsHandler", "Starting WebSocket session", map[string]interface{}{"session_id": sessionID, "user_id": userID})
		internalWS.ServeWs(h.hub, conn, sessionID, userID)
		h.logger.Info("ViewerWsHandler", "WebSocket session ended", map[string]interface{}{"session_id": sessionID, "user_id": userID})
	})(c)
}

func (h *ViewerWsHandler) RegisterRoutes(router fiber.Router) {
	router.Get("/viewer/sessions/:id/ws", h.ServeWs)
}
