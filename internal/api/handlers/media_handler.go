package handlers

import (
	"io"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/service"
)

type MediaHandler struct {
	s service.StorageService
}

func NewMediaHandler(service service.StorageService) *MediaHandler {
	return &MediaHandler{s: service}
}

// UploadURL hands out a presigned PUT URL so large videos go straight to the
// bucket.
func (h *MediaHandler) UploadURL(c *fiber.Ctx) error {
	upload, err := h.s.UploadURL(c.Context(), c.Query("ext"))
	if err != nil {
		return ErrorResponse(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(upload)
}

func (h *MediaHandler) Upload(c *fiber.Ctx) error {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		slog.Info(err.Error())
		return ErrorResponse(c, models.NewValidationError("No file selected"))
	}

	file, err := fileHeader.Open()
	if err != nil {
		return ErrorResponse(c, models.NewInternalServerError("unable to open upload", err))
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		return ErrorResponse(c, models.NewInternalServerError("unable to read upload", err))
	}

	key, err := h.s.Upload(c.Context(), content)
	if err != nil {
		return ErrorResponse(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"file_name":  key,
		"public_url": h.s.PublicURL(key),
	})
}
