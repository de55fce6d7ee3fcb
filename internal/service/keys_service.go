package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/repository"
	"github.com/maheshrc27/postflow/pkg/utils"
)

const MaxApiKeys = 5

type ApiKeyService interface {
	Create(ctx context.Context, userID, name string) (*models.ApiKey, error)
	List(ctx context.Context, userID string) ([]*models.ApiKey, error)
	GetUserID(ctx context.Context, apiKey string) (string, error)
	RemoveAPIKey(ctx context.Context, userID, keyID string) error
}

type apiKeyService struct {
	k repository.ApiKeyRepository
}

func NewApiKeyService(k repository.ApiKeyRepository) ApiKeyService {
	return &apiKeyService{
		k: k,
	}
}

func (s *apiKeyService) Create(ctx context.Context, userID, name string) (*models.ApiKey, error) {
	keys, err := s.k.GetByUserID(ctx, userID)
	if err != nil {
		return nil, models.NewInternalServerError("error getting API keys", err)
	}

	if len(keys) >= MaxApiKeys {
		err := models.NewValidationError(fmt.Sprintf("only %d API keys can be created", MaxApiKeys))
		slog.Info(err.Error())
		return nil, err
	}

	key, err := utils.GenerateAPIKey()
	if err != nil {
		slog.Info(err.Error())
		return nil, models.NewInternalServerError("error generating API key", err)
	}

	apiKey := &models.ApiKey{
		UserID: userID,
		Name:   name,
		ApiKey: key,
	}

	if _, err = s.k.Create(ctx, apiKey); err != nil {
		return nil, models.NewInternalServerError("error saving API key", err)
	}
	return apiKey, nil
}

func (s *apiKeyService) GetUserID(ctx context.Context, apiKey string) (string, error) {
	userID, isExist, err := s.k.GetByKey(ctx, apiKey)
	if err != nil {
		return "", err
	}

	if !isExist {
		return "", models.NewUnauthorizedError("invalid API key")
	}

	return userID, nil
}

func (s *apiKeyService) List(ctx context.Context, userID string) ([]*models.ApiKey, error) {
	apiKeys, err := s.k.GetByUserID(ctx, userID)
	if err != nil {
		return nil, models.NewInternalServerError("error getting API keys", err)
	}
	return apiKeys, nil
}

func (s *apiKeyService) RemoveAPIKey(ctx context.Context, userID, keyID string) error {
	if keyID == "" {
		err := models.NewValidationError("key id is required")
		slog.Info(err.Error())
		return err
	}

	isValid, err := s.k.CheckByUserID(ctx, keyID, userID)
	if err != nil {
		return err
	}

	if !isValid {
		err := models.NewNotFoundError("API key")
		slog.Info(err.Error())
		return err
	}

	return s.k.Remove(ctx, keyID)
}
