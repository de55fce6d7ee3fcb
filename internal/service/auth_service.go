package service

import (
	"context"
	"log"
	"log/slog"

	config "github.com/maheshrc27/postflow/configs"
	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/repository"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	googleoauth "google.golang.org/api/oauth2/v2"
	"google.golang.org/api/option"
)

type AuthService interface {
	LoginURL(state string) string
	LoginCallback(ctx context.Context, code string) (string, error)
}

type authService struct {
	oauth2Config *oauth2.Config
	u            repository.UserRepository
}

func NewAuthService(cfg *config.Config, u repository.UserRepository) AuthService {
	return &authService{
		oauth2Config: &oauth2.Config{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RedirectURL:  cfg.GoogleRedirectURI,
			Scopes:       []string{googleoauth.UserinfoEmailScope, googleoauth.UserinfoProfileScope},
			Endpoint:     google.Endpoint,
		},
		u: u,
	}
}

func (s *authService) LoginURL(state string) string {
	return s.oauth2Config.AuthCodeURL(state)
}

// LoginCallback signs in the Google user behind code, creating the user on
// first login, and returns the user id.
func (s *authService) LoginCallback(ctx context.Context, code string) (string, error) {
	if code == "" {
		err := models.NewValidationError("code is empty")
		slog.Info(err.Error())
		return "", err
	}

	if s.oauth2Config.ClientID == "" || s.oauth2Config.ClientSecret == "" || s.oauth2Config.RedirectURL == "" {
		err := models.NewInternalServerError("OAuth2 configuration is incomplete", nil)
		slog.Info(err.Error())
		return "", err
	}

	token, err := s.oauth2Config.Exchange(ctx, code)
	if err != nil {
		slog.Info(err.Error())
		return "", models.NewUnauthorizedError("failed to exchange login code")
	}

	svc, err := googleoauth.NewService(ctx, option.WithTokenSource(s.oauth2Config.TokenSource(ctx, token)))
	if err != nil {
		slog.Info(err.Error())
		return "", models.NewInternalServerError("failed to create userinfo client", err)
	}

	userInfo, err := svc.Userinfo.Get().Context(ctx).Do()
	if err != nil {
		slog.Info(err.Error())
		return "", models.NewInternalServerError("error fetching user info", err)
	}

	return s.findOrCreate(ctx, &models.User{
		GoogleID:       userInfo.Id,
		Email:          userInfo.Email,
		Name:           userInfo.Name,
		ProfilePicture: userInfo.Picture,
	})
}

func (s *authService) findOrCreate(ctx context.Context, info *models.User) (string, error) {
	user, isExist, err := s.u.GetByEmail(ctx, info.Email)
	if err != nil {
		return "", models.NewInternalServerError("error getting user", err)
	}

	if !isExist {
		userID, err := s.u.Create(ctx, nil, info)
		if err != nil {
			slog.Info(err.Error())
			return "", models.NewInternalServerError("error creating user", err)
		}
		log.Printf("Created user %s", userID)
		return userID, nil
	}

	if user.GoogleID == "" {
		user.GoogleID = info.GoogleID
		user.Name = info.Name
		user.ProfilePicture = info.ProfilePicture
		if err := s.u.Update(ctx, user); err != nil {
			return "", models.NewInternalServerError("error updating user", err)
		}
	}
	return user.ID, nil
}
