package ws

import (
	"net/http"

	"github.com/fleamarket-app/backend/internal/service"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

// Handler upgrades chat websocket connections. Some transports cannot set
// headers during the handshake, so the credential may arrive as a `token`
// query parameter; an invalid or absent one still completes the upgrade and
// the connection stays identity-less until an auth frame succeeds.
type Handler struct {
	hub      *Hub
	svc      service.ChatService
	verifier TokenVerifier
	upgrader websocket.Upgrader
}

func NewHandler(hub *Hub, svc service.ChatService, verifier TokenVerifier) *Handler {
	return &Handler{
		hub:      hub,
		svc:      svc,
		verifier: verifier,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

func (h *Handler) Serve(c echo.Context) error {
	uid := ""
	if token := c.QueryParam("token"); token != "" {
		if id, err := h.verifier.Verify(c.Request().Context(), token); err == nil {
			uid = id
		}
	}
	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	client := newClient(h.hub, conn, h.svc, h.verifier, uid)
	go client.writePump()
	go client.readPump()
	return nil
}
