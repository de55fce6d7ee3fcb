package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/maheshrc27/postflow/internal/service"
)

type UserHandler struct {
	s          service.UserService
	cookieName string
}

func NewUserHandler(service service.UserService, cookieName string) *UserHandler {
	return &UserHandler{s: service, cookieName: cookieName}
}

func (h *UserHandler) GetUserInfo(c *fiber.Ctx) error {
	userInfo, err := h.s.GetUserInfo(c.Context(), GetUserID(c))
	if err != nil {
		return ErrorResponse(c, err)
	}

	return c.JSON(userInfo)
}

func (h *UserHandler) RemoveUser(c *fiber.Ctx) error {
	if err := h.s.RemoveUser(c.Context(), GetUserID(c)); err != nil {
		return ErrorResponse(c, err)
	}

	c.Cookie(&fiber.Cookie{
		Name:   h.cookieName,
		Value:  "",
		Path:   "/",
		MaxAge: -1,
	})
	return c.SendStatus(fiber.StatusOK)
}
