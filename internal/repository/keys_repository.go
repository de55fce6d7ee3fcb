package repository

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/google/uuid"
	"github.com/maheshrc27/postflow/internal/models"
)

type ApiKeyRepository interface {
	GetByKey(ctx context.Context, apiKey string) (string, bool, error)
	GetByUserID(ctx context.Context, userID string) ([]*models.ApiKey, error)
	Create(ctx context.Context, apiKey *models.ApiKey) (string, error)
	CheckByUserID(ctx context.Context, keyID, userID string) (bool, error)
	Remove(ctx context.Context, id string) error
}

type apiKeyRepository struct {
	db *sql.DB
}

func NewApiKeyRepository(db *sql.DB) ApiKeyRepository {
	return &apiKeyRepository{db: db}
}

// GetByKey returns the owner of apiKey.
func (r *apiKeyRepository) GetByKey(ctx context.Context, apiKey string) (string, bool, error) {
	var userID string
	query := "SELECT user_id FROM api_keys WHERE api_key = $1"
	err := r.db.QueryRowContext(ctx, query, apiKey).Scan(&userID)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", false, nil
		}
		slog.Info(err.Error())
		return "", false, err
	}
	return userID, true, nil
}

func (r *apiKeyRepository) GetByUserID(ctx context.Context, userID string) ([]*models.ApiKey, error) {
	query := `SELECT id, user_id, name, api_key, created_at FROM api_keys WHERE user_id = $1 ORDER BY created_at`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var apiKeys []*models.ApiKey
	for rows.Next() {
		var apiKey models.ApiKey
		err := rows.Scan(&apiKey.ID, &apiKey.UserID, &apiKey.Name, &apiKey.ApiKey, &apiKey.CreatedAt)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		apiKeys = append(apiKeys, &apiKey)
	}
	return apiKeys, rows.Err()
}

func (r *apiKeyRepository) Create(ctx context.Context, apiKey *models.ApiKey) (string, error) {
	if apiKey.ID == "" {
		apiKey.ID = uuid.NewString()
	}
	query := "INSERT INTO api_keys (id, user_id, name, api_key) VALUES ($1, $2, $3, $4) RETURNING created_at"
	err := r.db.QueryRowContext(ctx, query, apiKey.ID, apiKey.UserID, apiKey.Name, apiKey.ApiKey).Scan(&apiKey.CreatedAt)
	if err != nil {
		slog.Info(err.Error())
		return "", err
	}
	return apiKey.ID, nil
}

func (r *apiKeyRepository) CheckByUserID(ctx context.Context, keyID, userID string) (bool, error) {
	query := "SELECT 1 FROM api_keys WHERE id = $1 AND user_id = $2"

	var result int
	err := r.db.QueryRowContext(ctx, query, keyID, userID).Scan(&result)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		slog.Info(err.Error())
		return false, err
	}

	return result == 1, nil
}

func (r *apiKeyRepository) Remove(ctx context.Context, id string) error {
	query := `DELETE FROM api_keys WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}
