package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/fleamarket-app/backend/internal/authctx"
	"github.com/fleamarket-app/backend/internal/service"
	"github.com/labstack/echo/v4"
)

type ChatHandler struct {
	svc service.ChatService
}

func NewChatHandler(svc service.ChatService) *ChatHandler {
	return &ChatHandler{svc: svc}
}

type SendMessageRequest struct {
	Content string `json:"content"`
}

func (h *ChatHandler) OpenRoom(c echo.Context) error {
	uid := authctx.UID(c.Request().Context())
	if uid == "" {
		return c.JSON(http.StatusUnauthorized, NewErrorResponse("unauthorized", "missing uid"))
	}
	listingID, err := strconv.ParseUint(c.QueryParam("listingId"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("bad_request", "invalid listing id"))
	}
	res, err := h.svc.OpenOrGetRoom(c.Request().Context(), listingID, uid)
	if err != nil {
		return chatError(c, err, "listing not found")
	}
	return c.JSON(http.StatusOK, res)
}

func (h *ChatHandler) OpenDirectRoom(c echo.Context) error {
	uid := authctx.UID(c.Request().Context())
	if uid == "" {
		return c.JSON(http.StatusUnauthorized, NewErrorResponse("unauthorized", "missing uid"))
	}
	other := c.QueryParam("memberId")
	if other == "" {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("bad_request", "memberId is required"))
	}
	res, err := h.svc.OpenDirectRoom(c.Request().Context(), uid, other)
	if err != nil {
		return chatError(c, err, "member not found")
	}
	return c.JSON(http.StatusOK, res)
}

func (h *ChatHandler) MyRooms(c echo.Context) error {
	uid := authctx.UID(c.Request().Context())
	if uid == "" {
		return c.JSON(http.StatusUnauthorized, NewErrorResponse("unauthorized", "missing uid"))
	}
	rooms, err := h.svc.ListMyRooms(c.Request().Context(), uid)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, NewErrorResponse("internal_error", "failed to fetch rooms"))
	}
	return c.JSON(http.StatusOK, rooms)
}

func (h *ChatHandler) RoomDetail(c echo.Context) error {
	uid := authctx.UID(c.Request().Context())
	if uid == "" {
		return c.JSON(http.StatusUnauthorized, NewErrorResponse("unauthorized", "missing uid"))
	}
	roomID, err := parseRoomID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("bad_request", "invalid room id"))
	}
	detail, err := h.svc.RoomDetail(c.Request().Context(), roomID, uid)
	if err != nil {
		return chatError(c, err, "room not found")
	}
	return c.JSON(http.StatusOK, detail)
}

func (h *ChatHandler) ListMessages(c echo.Context) error {
	uid := authctx.UID(c.Request().Context())
	if uid == "" {
		return c.JSON(http.StatusUnauthorized, NewErrorResponse("unauthorized", "missing uid"))
	}
	roomID, err := parseRoomID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("bad_request", "invalid room id"))
	}
	beforeID, err := optionalID(c.QueryParam("beforeId"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("bad_request", "invalid beforeId"))
	}
	afterID, err := optionalID(c.QueryParam("afterId"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("bad_request", "invalid afterId"))
	}
	limit := 0
	if raw := c.QueryParam("limit"); raw != "" {
		limit, _ = strconv.Atoi(raw)
	}
	msgs, err := h.svc.ListMessages(c.Request().Context(), roomID, uid, beforeID, afterID, limit)
	if err != nil {
		return chatError(c, err, "room not found")
	}
	return c.JSON(http.StatusOK, msgs)
}

func (h *ChatHandler) SendMessage(c echo.Context) error {
	uid := authctx.UID(c.Request().Context())
	if uid == "" {
		return c.JSON(http.StatusUnauthorized, NewErrorResponse("unauthorized", "missing uid"))
	}
	roomID, err := parseRoomID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("bad_request", "invalid room id"))
	}
	var req SendMessageRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("bad_request", "invalid json"))
	}
	msg, err := h.svc.SendMessage(c.Request().Context(), roomID, uid, req.Content)
	if err != nil {
		return chatError(c, err, "room not found")
	}
	return c.JSON(http.StatusCreated, msg)
}

func (h *ChatHandler) MarkRead(c echo.Context) error {
	uid := authctx.UID(c.Request().Context())
	if uid == "" {
		return c.JSON(http.StatusUnauthorized, NewErrorResponse("unauthorized", "missing uid"))
	}
	roomID, err := parseRoomID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("bad_request", "invalid room id"))
	}
	lastMessageID, err := optionalID(c.QueryParam("lastMessageId"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("bad_request", "invalid lastMessageId"))
	}
	if err := h.svc.MarkRead(c.Request().Context(), roomID, uid, lastMessageID); err != nil {
		return c.JSON(http.StatusInternalServerError, NewErrorResponse("internal_error", "failed to mark read"))
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (h *ChatHandler) DeleteRoom(c echo.Context) error {
	uid := authctx.UID(c.Request().Context())
	if uid == "" {
		return c.JSON(http.StatusUnauthorized, NewErrorResponse("unauthorized", "missing uid"))
	}
	roomID, err := parseRoomID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("bad_request", "invalid room id"))
	}
	if err := h.svc.DeleteRoom(c.Request().Context(), roomID, uid); err != nil {
		return chatError(c, err, "room not found")
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func parseRoomID(c echo.Context) (uint64, error) {
	return strconv.ParseUint(c.Param("id"), 10, 64)
}

func optionalID(raw string) (*uint64, error) {
	if raw == "" {
		return nil, nil
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

func chatError(c echo.Context, err error, notFoundMsg string) error {
	switch {
	case errors.Is(err, service.ErrNotFound):
		return c.JSON(http.StatusNotFound, NewErrorResponse("not_found", notFoundMsg))
	case errors.Is(err, service.ErrForbidden):
		return c.JSON(http.StatusForbidden, NewErrorResponse("forbidden", "not a participant"))
	case errors.Is(err, service.ErrSelfChat), errors.Is(err, service.ErrEmptyContent):
		return c.JSON(http.StatusBadRequest, NewErrorResponse("bad_request", err.Error()))
	default:
		return c.JSON(http.StatusInternalServerError, NewErrorResponse("internal_error", "chat operation failed"))
	}
}
