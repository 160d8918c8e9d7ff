package handler

import (
	"net/http"
	"strconv"

	"github.com/fleamarket-app/backend/internal/authctx"
	"github.com/fleamarket-app/backend/internal/model"
	"github.com/fleamarket-app/backend/internal/service"
	"github.com/labstack/echo/v4"
)

type NotificationHandler struct {
	svc service.NotificationService
}

func NewNotificationHandler(svc service.NotificationService) *NotificationHandler {
	return &NotificationHandler{svc: svc}
}

type NotificationListResponse struct {
	Items       []model.Notification `json:"items"`
	UnreadCount int64                `json:"unreadCount"`
}

func (h *NotificationHandler) List(c echo.Context) error {
	uid := authctx.UID(c.Request().Context())
	if uid == "" {
		return c.JSON(http.StatusUnauthorized, NewErrorResponse("unauthorized", "missing uid"))
	}
	unreadOnly := c.QueryParam("unreadOnly") == "true"
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	items, unread, err := h.svc.List(c.Request().Context(), uid, unreadOnly, limit)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, NewErrorResponse("internal_error", "failed to fetch notifications"))
	}
	if items == nil {
		items = []model.Notification{}
	}
	return c.JSON(http.StatusOK, NotificationListResponse{Items: items, UnreadCount: unread})
}

func (h *NotificationHandler) MarkAllRead(c echo.Context) error {
	uid := authctx.UID(c.Request().Context())
	if uid == "" {
		return c.JSON(http.StatusUnauthorized, NewErrorResponse("unauthorized", "missing uid"))
	}
	if err := h.svc.MarkAllRead(c.Request().Context(), uid); err != nil {
		return c.JSON(http.StatusInternalServerError, NewErrorResponse("internal_error", "failed to mark read"))
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}
