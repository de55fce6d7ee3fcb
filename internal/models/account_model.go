package models

import (
	"time"
)

const (
	ProviderInstagram = "instagram"
	ProviderTiktok    = "tiktok"
)

// Providers lists the platforms a post can target, in publishing order.
var Providers = []string{ProviderInstagram, ProviderTiktok}

func IsProvider(name string) bool {
	for _, p := range Providers {
		if p == name {
			return true
		}
	}
	return false
}

// Account is one linked platform identity. ExpiresAt and RefreshExpiresAt
// are epoch seconds; zero means unknown.
type Account struct {
	ID                string    `db:"id" json:"id"`
	UserID            string    `db:"user_id" json:"user_id"`
	Provider          string    `db:"provider" json:"provider"`
	ProviderAccountID string    `db:"provider_account_id" json:"provider_account_id"`
	Username          string    `db:"username" json:"username"`
	AvatarURL         string    `db:"avatar_url" json:"avatar_url"`
	AccessToken       string    `db:"access_token" json:"-"`
	RefreshToken      string    `db:"refresh_token" json:"-"`
	ExpiresAt         int64     `db:"expires_at" json:"expires_at"`
	RefreshExpiresAt  int64     `db:"refresh_expires_at" json:"refresh_expires_at"`
	TokenType         string    `db:"token_type" json:"-"`
	Scope             string    `db:"scope" json:"scope"`
	CreatedAt         time.Time `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time `db:"updated_at" json:"updated_at"`
}

// FindAccount returns the first account linked for provider.
func FindAccount(accounts []*Account, provider string) *Account {
	for _, acc := range accounts {
		if acc != nil && acc.Provider == provider {
			return acc
		}
	}
	return nil
}
