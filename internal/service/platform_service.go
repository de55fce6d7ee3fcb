package service

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"time"

	"github.com/lib/pq"
	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/repository"
	"github.com/maheshrc27/postflow/pkg/utils"
)

// stateTTL bounds how long an OAuth consent screen may stay open.
const stateTTL = 10 * time.Minute

type PlatformService interface {
	GetAuthURL(ctx context.Context, platform, userID string) (string, error)
	Callback(ctx context.Context, platform, code, state string) (*models.Account, error)
	List(ctx context.Context, userID string) ([]*models.Account, error)
	Delete(ctx context.Context, userID, accountID string) error
}

type platformService struct {
	secretKey string
	linker    AccountLinker
	ar        repository.AccountRepository
}

func NewPlatformService(secretKey string, linker AccountLinker, ar repository.AccountRepository) PlatformService {
	return &platformService{
		secretKey: secretKey,
		linker:    linker,
		ar:        ar,
	}
}

// GetAuthURL returns the consent URL for platform. The OAuth state is a
// short-lived token naming the user, so the callback needs no session.
func (s *platformService) GetAuthURL(ctx context.Context, platform, userID string) (string, error) {
	state, err := utils.GenerateToken(s.secretKey, userID, stateTTL)
	if err != nil {
		slog.Info(err.Error())
		return "", models.NewInternalServerError("failed to create oauth state", err)
	}
	return s.linker.AuthURL(platform, state)
}

func (s *platformService) Callback(ctx context.Context, platform, code, state string) (*models.Account, error) {
	if code == "" || state == "" {
		err := models.NewValidationError("code or state is empty")
		slog.Info(err.Error())
		return nil, err
	}

	claims, err := utils.ValidateToken(s.secretKey, state)
	if err != nil {
		slog.Info(err.Error())
		return nil, models.NewUnauthorizedError("invalid oauth state")
	}

	acc, err := s.linker.Link(ctx, platform, code)
	if err != nil {
		return nil, err
	}
	acc.UserID = claims.UserID

	if _, err := s.ar.Upsert(ctx, nil, acc); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return nil, models.NewValidationError("this account is already linked to another user")
		}
		return nil, models.NewInternalServerError("error saving account", err)
	}

	log.Printf("User %s linked %s account %s", acc.UserID, platform, acc.ProviderAccountID)
	return acc, nil
}

func (s *platformService) List(ctx context.Context, userID string) ([]*models.Account, error) {
	accounts, err := s.ar.ListByUserID(ctx, userID)
	if err != nil {
		return nil, models.NewInternalServerError("error getting linked accounts", err)
	}
	return accounts, nil
}

func (s *platformService) Delete(ctx context.Context, userID, accountID string) error {
	if accountID == "" {
		err := models.NewValidationError("account id is required")
		slog.Info(err.Error())
		return err
	}

	isValid, err := s.ar.CheckByUserID(ctx, accountID, userID)
	if err != nil {
		return err
	}

	if !isValid {
		err := models.NewNotFoundError("account")
		slog.Info(err.Error())
		return err
	}

	if err := s.ar.Remove(ctx, accountID); err != nil {
		return models.NewInternalServerError("error removing account", err)
	}
	return nil
}
