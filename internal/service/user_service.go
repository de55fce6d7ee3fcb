package service

import (
	"context"
	"log/slog"

	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/repository"
)

type UserService interface {
	GetUserInfo(ctx context.Context, id string) (*models.User, error)
	RemoveUser(ctx context.Context, userID string) error
}

type userService struct {
	u repository.UserRepository
}

func NewUserService(u repository.UserRepository) UserService {
	return &userService{
		u: u,
	}
}

func (s *userService) GetUserInfo(ctx context.Context, id string) (*models.User, error) {
	user, isExist, err := s.u.GetByID(ctx, id)
	if err != nil {
		return nil, models.NewInternalServerError("error getting user info", err)
	}

	if !isExist {
		err := models.NewNotFoundError("user")
		slog.Info(err.Error())
		return nil, err
	}

	return user, nil
}

func (s *userService) RemoveUser(ctx context.Context, userID string) error {
	return s.u.Remove(ctx, userID)
}
