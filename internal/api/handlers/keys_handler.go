package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/service"
)

type ApiKeyHandler struct {
	s service.ApiKeyService
}

func NewApiKeyHandler(service service.ApiKeyService) *ApiKeyHandler {
	return &ApiKeyHandler{s: service}
}

type apiKeyRequest struct {
	Name string `json:"name"`
}

func (h *ApiKeyHandler) CreateApiKey(c *fiber.Ctx) error {
	var body apiKeyRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&body); err != nil {
			return ErrorResponse(c, models.NewValidationError("Unable to parse request body"))
		}
	}

	key, err := h.s.Create(c.Context(), GetUserID(c), body.Name)
	if err != nil {
		return ErrorResponse(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(key)
}

func (h *ApiKeyHandler) ListKeys(c *fiber.Ctx) error {
	keys, err := h.s.List(c.Context(), GetUserID(c))
	if err != nil {
		return ErrorResponse(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(keys)
}

func (h *ApiKeyHandler) RemoveAPIKey(c *fiber.Ctx) error {
	keyID := c.Query("id")
	if keyID == "" {
		return ErrorResponse(c, models.NewValidationError("id is required"))
	}

	if err := h.s.RemoveAPIKey(c.Context(), GetUserID(c), keyID); err != nil {
		return ErrorResponse(c, err)
	}

	return c.SendStatus(fiber.StatusOK)
}
