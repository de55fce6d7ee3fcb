package transfer

import (
	"time"

	"github.com/maheshrc27/postflow/internal/models"
)

// PostCreation is the body of POST /api/posts/create.
type PostCreation struct {
	Type      string    `json:"type"`
	FileNames []string  `json:"file_names"`
	Caption   string    `json:"caption"`
	Platforms []string  `json:"platforms"`
	Scheduled bool      `json:"scheduled"`
	Datetime  time.Time `json:"datetime"`
}

// PostUpdate is the body of PUT /api/posts/update. Nil fields are left as is.
type PostUpdate struct {
	PostID   string     `json:"post_id"`
	Caption  *string    `json:"caption"`
	PostedAt *time.Time `json:"posted_at"`
}

type PostCreated struct {
	Post    *models.Post            `json:"post"`
	Results []models.PlatformResult `json:"results"`
}

type UploadURL struct {
	URL       string `json:"url"`
	FileName  string `json:"file_name"`
	PublicURL string `json:"public_url"`
}
