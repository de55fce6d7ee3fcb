package handlers

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/service"
	"github.com/maheshrc27/postflow/internal/transfer"
)

type PostHandler struct {
	s service.PostService
}

func NewPostHandler(service service.PostService) *PostHandler {
	return &PostHandler{s: service}
}

func (h *PostHandler) CreatePost(c *fiber.Ctx) error {
	userID := GetUserID(c)

	var body transfer.PostCreation
	if err := c.BodyParser(&body); err != nil {
		slog.Info(err.Error())
		return ErrorResponse(c, models.NewValidationError("Unable to parse request body"))
	}

	created, err := h.s.CreatePost(c.Context(), userID, &body)
	if err != nil {
		return ErrorResponse(c, err)
	}

	message := "Post published"
	if body.Scheduled {
		message = "Post scheduled successfully"
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"message": message,
		"post":    created.Post,
		"results": created.Results,
	})
}

func (h *PostHandler) UpdatePost(c *fiber.Ctx) error {
	userID := GetUserID(c)

	var body transfer.PostUpdate
	if err := c.BodyParser(&body); err != nil {
		slog.Info(err.Error())
		return ErrorResponse(c, models.NewValidationError("Unable to parse request body"))
	}

	post, err := h.s.EditPost(c.Context(), userID, &body)
	if err != nil {
		return ErrorResponse(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(post)
}

func (h *PostHandler) ListPosts(c *fiber.Ctx) error {
	userID := GetUserID(c)

	if postID := c.Query("id"); postID != "" {
		post, err := h.s.PostInfo(c.Context(), postID, userID)
		if err != nil {
			return ErrorResponse(c, err)
		}
		return c.Status(fiber.StatusOK).JSON(post)
	}

	posts, err := h.s.List(c.Context(), userID)
	if err != nil {
		return ErrorResponse(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(posts)
}

func (h *PostHandler) RemovePost(c *fiber.Ctx) error {
	userID := GetUserID(c)
	postID := c.Query("id")
	if postID == "" {
		return ErrorResponse(c, models.NewValidationError("id is required"))
	}

	if err := h.s.Remove(c.Context(), userID, postID); err != nil {
		return ErrorResponse(c, err)
	}

	return c.SendStatus(fiber.StatusOK)
}
