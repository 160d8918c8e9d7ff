package handler

import (
	"net/http"

	"github.com/fleamarket-app/backend/internal/service"
	"github.com/labstack/echo/v4"
)

type UserHandler struct {
	members service.MemberDirectory
}

func NewUserHandler(members service.MemberDirectory) *UserHandler {
	return &UserHandler{members: members}
}

type PublicUserResponse struct {
	UID         string  `json:"uid"`
	DisplayName string  `json:"displayName"`
	PhotoURL    *string `json:"photoURL"`
}

func (h *UserHandler) GetPublic(c echo.Context) error {
	uid := c.Param("uid")
	if uid == "" {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("bad_request", "invalid uid"))
	}
	display, ok := h.members.Display(c.Request().Context(), uid)
	if !ok {
		return c.JSON(http.StatusNotFound, NewErrorResponse("not_found", "user not found"))
	}
	return c.JSON(http.StatusOK, PublicUserResponse{
		UID:         display.UID,
		DisplayName: display.Nickname,
		PhotoURL:    display.AvatarURL,
	})
}
