package handlers

import (
	"fmt"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/service"
)

type PlatformHandler struct {
	ps          service.PlatformService
	frontendURL string
}

func NewPlatformHandler(ps service.PlatformService, frontendURL string) *PlatformHandler {
	return &PlatformHandler{ps: ps, frontendURL: frontendURL}
}

// AddSocialAccount redirects the signed-in user to the platform's consent
// page.
func (h *PlatformHandler) AddSocialAccount(c *fiber.Ctx) error {
	authURL, err := h.ps.GetAuthURL(c.Context(), c.Params("platform"), GetUserID(c))
	if err != nil {
		return ErrorResponse(c, err)
	}
	return c.Redirect(authURL)
}

func (h *PlatformHandler) CallbackHandler(c *fiber.Ctx) error {
	if errMsg := c.Query("error"); errMsg != "" {
		slog.Info("authorization denied", "platform", c.Params("platform"), "error", errMsg)
		return ErrorResponse(c, models.NewUnauthorizedError("authorization was denied"))
	}

	_, err := h.ps.Callback(c.Context(), c.Params("platform"), c.Query("code"), c.Query("state"))
	if err != nil {
		return ErrorResponse(c, err)
	}

	redirectURL := fmt.Sprintf("%s/dashboard/accounts", h.frontendURL)
	return c.Redirect(redirectURL, fiber.StatusTemporaryRedirect)
}

func (h *PlatformHandler) ListSocialAccounts(c *fiber.Ctx) error {
	accountList, err := h.ps.List(c.Context(), GetUserID(c))
	if err != nil {
		return ErrorResponse(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(accountList)
}

func (h *PlatformHandler) DeleteSocialAccount(c *fiber.Ctx) error {
	accountID := c.Query("id")
	if accountID == "" {
		return ErrorResponse(c, models.NewValidationError("id is required"))
	}

	if err := h.ps.Delete(c.Context(), GetUserID(c), accountID); err != nil {
		return ErrorResponse(c, err)
	}

	return c.SendStatus(fiber.StatusOK)
}
