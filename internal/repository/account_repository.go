package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/pkg/utils"
)

// AccountRepository stores linked platform accounts. Tokens are encrypted
// on the way in and decrypted on the way out; callers only see plaintext.
type AccountRepository interface {
	Upsert(ctx context.Context, tx *sql.Tx, acc *models.Account) (string, error)
	GetByID(ctx context.Context, id string) (*models.Account, error)
	GetByProvider(ctx context.Context, provider, providerAccountID string) (*models.Account, error)
	ListByUserID(ctx context.Context, userID string) ([]*models.Account, error)
	ListExpiring(ctx context.Context, before int64) ([]*models.Account, error)
	CheckByUserID(ctx context.Context, accountID, userID string) (bool, error)
	SetToken(ctx context.Context, acc *models.Account, oldAccessToken string) error
	Remove(ctx context.Context, id string) error
}

type accountRepository struct {
	db     *sql.DB
	cipher *utils.TokenCipher
}

func NewAccountRepository(db *sql.DB, cipher *utils.TokenCipher) AccountRepository {
	return &accountRepository{db: db, cipher: cipher}
}

const accountColumns = `id, user_id, provider, provider_account_id, username, avatar_url,
	access_token, refresh_token, expires_at, refresh_expires_at, token_type, scope, created_at, updated_at`

// Upsert links acc to its user, replacing any earlier account the user had
// for the same provider.
func (r *accountRepository) Upsert(ctx context.Context, tx *sql.Tx, acc *models.Account) (string, error) {
	accessToken, refreshToken, err := r.seal(acc)
	if err != nil {
		return "", err
	}

	if acc.ID == "" {
		acc.ID = uuid.NewString()
	}

	query := `
		INSERT INTO accounts (
			id,
			user_id,
			provider,
			provider_account_id,
			username,
			avatar_url,
			access_token,
			refresh_token,
			expires_at,
			refresh_expires_at,
			token_type,
			scope
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (user_id, provider) DO UPDATE SET
			provider_account_id = EXCLUDED.provider_account_id,
			username = EXCLUDED.username,
			avatar_url = EXCLUDED.avatar_url,
			access_token = EXCLUDED.access_token,
			refresh_token = EXCLUDED.refresh_token,
			expires_at = EXCLUDED.expires_at,
			refresh_expires_at = EXCLUDED.refresh_expires_at,
			token_type = EXCLUDED.token_type,
			scope = EXCLUDED.scope,
			updated_at = NOW()
		RETURNING id
	`

	var id string
	err = conn(r.db, tx).QueryRowContext(ctx, query,
		acc.ID,
		acc.UserID,
		acc.Provider,
		acc.ProviderAccountID,
		acc.Username,
		acc.AvatarURL,
		accessToken,
		refreshToken,
		acc.ExpiresAt,
		acc.RefreshExpiresAt,
		acc.TokenType,
		acc.Scope,
	).Scan(&id)
	if err != nil {
		slog.Info(err.Error())
		return "", err
	}

	acc.ID = id
	return id, nil
}

func (r *accountRepository) GetByID(ctx context.Context, id string) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`
	return r.getOne(ctx, query, id)
}

func (r *accountRepository) GetByProvider(ctx context.Context, provider, providerAccountID string) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE provider = $1 AND provider_account_id = $2`
	return r.getOne(ctx, query, provider, providerAccountID)
}

func (r *accountRepository) getOne(ctx context.Context, query string, args ...interface{}) (*models.Account, error) {
	acc, err := r.scan(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}
	return acc, nil
}

func (r *accountRepository) ListByUserID(ctx context.Context, userID string) ([]*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE user_id = $1 ORDER BY provider`
	return r.list(ctx, query, userID)
}

// ListExpiring returns accounts whose access token expires before the given
// epoch second, including those with no known expiry.
func (r *accountRepository) ListExpiring(ctx context.Context, before int64) ([]*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE expires_at < $1 ORDER BY expires_at`
	return r.list(ctx, query, before)
}

func (r *accountRepository) list(ctx context.Context, query string, args ...interface{}) ([]*models.Account, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var accounts []*models.Account
	for rows.Next() {
		acc, err := r.scan(rows)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		accounts = append(accounts, acc)
	}

	if err := rows.Err(); err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	return accounts, nil
}

func (r *accountRepository) CheckByUserID(ctx context.Context, accountID, userID string) (bool, error) {
	query := "SELECT 1 FROM accounts WHERE id = $1 AND user_id = $2"

	var result int
	err := r.db.QueryRowContext(ctx, query, accountID, userID).Scan(&result)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		slog.Info(err.Error())
		return false, err
	}

	return result == 1, nil
}

// SetToken writes the refreshed token fields of acc, but only if the stored
// access token is still oldAccessToken. Ciphertexts are salted, so the
// comparison happens on the decrypted value under a row lock.
func (r *accountRepository) SetToken(ctx context.Context, acc *models.Account, oldAccessToken string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	defer tx.Rollback()

	var stored string
	err = tx.QueryRowContext(ctx, `SELECT access_token FROM accounts WHERE id = $1 FOR UPDATE`, acc.ID).Scan(&stored)
	if err != nil {
		if err == sql.ErrNoRows {
			return models.NewNotFoundError("account")
		}
		slog.Info(err.Error())
		return err
	}

	current, err := r.cipher.Decrypt(stored)
	if err != nil {
		return fmt.Errorf("failed to decrypt stored token: %w", err)
	}
	if current != oldAccessToken {
		slog.Info("access token changed before refresh was saved", "account_id", acc.ID)
		return ErrConflict
	}

	accessToken, refreshToken, err := r.seal(acc)
	if err != nil {
		return err
	}

	updateTokenQuery := `
		UPDATE accounts
		SET
			access_token = $1,
			refresh_token = COALESCE(NULLIF($2, ''), refresh_token),
			expires_at = $3,
			refresh_expires_at = COALESCE(NULLIF($4, 0), refresh_expires_at),
			updated_at = NOW()
		WHERE id = $5
	`
	_, err = tx.ExecContext(ctx, updateTokenQuery, accessToken, refreshToken, acc.ExpiresAt, acc.RefreshExpiresAt, acc.ID)
	if err != nil {
		slog.Info(err.Error())
		return err
	}

	if err = tx.Commit(); err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *accountRepository) Remove(ctx context.Context, id string) error {
	query := `DELETE FROM accounts WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *accountRepository) seal(acc *models.Account) (string, string, error) {
	accessToken, err := r.cipher.Encrypt(acc.AccessToken)
	if err != nil {
		return "", "", fmt.Errorf("failed to encrypt access token: %w", err)
	}
	refreshToken, err := r.cipher.Encrypt(acc.RefreshToken)
	if err != nil {
		return "", "", fmt.Errorf("failed to encrypt refresh token: %w", err)
	}
	return accessToken, refreshToken, nil
}

func (r *accountRepository) scan(row scanner) (*models.Account, error) {
	var acc models.Account
	var accessToken, refreshToken string
	err := row.Scan(&acc.ID, &acc.UserID, &acc.Provider, &acc.ProviderAccountID, &acc.Username, &acc.AvatarURL,
		&accessToken, &refreshToken, &acc.ExpiresAt, &acc.RefreshExpiresAt, &acc.TokenType, &acc.Scope,
		&acc.CreatedAt, &acc.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if acc.AccessToken, err = r.cipher.Decrypt(accessToken); err != nil {
		return nil, fmt.Errorf("failed to decrypt access token: %w", err)
	}
	if acc.RefreshToken, err = r.cipher.Decrypt(refreshToken); err != nil {
		return nil, fmt.Errorf("failed to decrypt refresh token: %w", err)
	}
	return &acc, nil
}
