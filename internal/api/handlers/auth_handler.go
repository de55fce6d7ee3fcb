package handlers

import (
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	gonanoid "github.com/matoous/go-nanoid/v2"
	config "github.com/maheshrc27/postflow/configs"
	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/service"
	"github.com/maheshrc27/postflow/pkg/utils"
)

const (
	stateCookie   = "oauth_state"
	sessionLength = 24 * time.Hour
)

type AuthHandler struct {
	s   service.AuthService
	cfg *config.Config
}

func NewAuthHandler(cfg *config.Config, service service.AuthService) *AuthHandler {
	return &AuthHandler{s: service, cfg: cfg}
}

func (h *AuthHandler) Login(c *fiber.Ctx) error {
	state, err := gonanoid.New()
	if err != nil {
		return ErrorResponse(c, models.NewInternalServerError("unable to start login", err))
	}

	c.Cookie(&fiber.Cookie{
		Name:     stateCookie,
		Value:    state,
		HTTPOnly: true,
		Path:     "/login",
		Expires:  time.Now().Add(10 * time.Minute),
	})

	return c.Redirect(h.s.LoginURL(state))
}

func (h *AuthHandler) LoginCallbackHandler(c *fiber.Ctx) error {
	state := c.Cookies(stateCookie)
	if state == "" || state != c.Query("state") {
		return ErrorResponse(c, models.NewUnauthorizedError("invalid login state"))
	}

	userID, err := h.s.LoginCallback(c.Context(), c.Query("code"))
	if err != nil {
		slog.Info(err.Error())
		return ErrorResponse(c, err)
	}

	token, err := utils.GenerateToken(h.cfg.SecretKey, userID, sessionLength)
	if err != nil {
		return ErrorResponse(c, models.NewInternalServerError("unable to create session", err))
	}

	c.ClearCookie(stateCookie)
	c.Cookie(&fiber.Cookie{
		Name:     h.cfg.CookieName,
		Value:    token,
		HTTPOnly: true,
		Secure:   false,
		SameSite: fiber.CookieSameSiteNoneMode,
		Path:     "/",
		Expires:  time.Now().Add(sessionLength),
	})

	return c.Redirect(h.cfg.FrontendURL, fiber.StatusTemporaryRedirect)
}

func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	c.Cookie(&fiber.Cookie{
		Name:   h.cfg.CookieName,
		Value:  "",
		Path:   "/",
		MaxAge: -1,
	})
	return c.SendStatus(fiber.StatusOK)
}
