package handlers

import (
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/maheshrc27/postflow/internal/models"
)

func GetUserID(c *fiber.Ctx) string {
	userID, _ := c.Locals("user_id").(string)
	return userID
}

// ErrorResponse writes err as {"error", "code"} with the status its kind maps
// to. Internal details are logged, not returned.
func ErrorResponse(c *fiber.Ctx, err error) error {
	status := models.StatusCode(err)
	message := err.Error()

	var appErr *models.AppError
	if errors.As(err, &appErr) {
		message = appErr.Message
	} else if status == fiber.StatusInternalServerError {
		message = "something went wrong"
	}

	if status >= fiber.StatusInternalServerError {
		slog.Error(err.Error(), "path", c.Path())
	}

	return c.Status(status).JSON(fiber.Map{
		"error": message,
		"code":  models.ErrorCode(err),
	})
}

// ErrorHandler is the fiber fallback for errors no handler mapped, such as
// unknown routes or oversized bodies.
func ErrorHandler(c *fiber.Ctx, err error) error {
	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return c.Status(fiberErr.Code).JSON(fiber.Map{
			"error": fiberErr.Message,
		})
	}
	return ErrorResponse(c, err)
}
