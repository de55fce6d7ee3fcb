package transfer

// InstagramTokenResponse covers the short-lived, long-lived and refresh
// token endpoints. Only the fields each endpoint returns are populated.
type InstagramTokenResponse struct {
	AccessToken string `json:"access_token"`
	UserID      int64  `json:"user_id"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
	Permissions string `json:"permissions"`
}

type InstagramUserInfo struct {
	ID             string `json:"id"`
	UserID         string `json:"user_id"`
	Username       string `json:"username"`
	Name           string `json:"name"`
	ProfilePicture string `json:"profile_picture_url"`
}

// InstagramContainerRequest is the body of POST /{user}/media.
type InstagramContainerRequest struct {
	AccessToken    string   `json:"access_token"`
	ImageURL       string   `json:"image_url,omitempty"`
	VideoURL       string   `json:"video_url,omitempty"`
	MediaType      string   `json:"media_type,omitempty"`
	IsCarouselItem bool     `json:"is_carousel_item,omitempty"`
	Caption        string   `json:"caption,omitempty"`
	Children       []string `json:"children,omitempty"`
}

type InstagramPublishRequest struct {
	AccessToken string `json:"access_token"`
	CreationID  string `json:"creation_id"`
}

type InstagramMediaResponse struct {
	ID string `json:"id"`
}

type InstagramContainerStatus struct {
	ID         string `json:"id"`
	StatusCode string `json:"status_code"`
	Status     string `json:"status"`
}

type InstagramError struct {
	Message        string `json:"message"`
	Type           string `json:"type"`
	Code           int    `json:"code"`
	ErrorSubcode   int    `json:"error_subcode"`
	IsTransient    bool   `json:"is_transient"`
	ErrorUserTitle string `json:"error_user_title"`
	ErrorUserMsg   string `json:"error_user_msg"`
	FbtraceID      string `json:"fbtrace_id"`
}

type InstagramErrorResponse struct {
	Error *InstagramError `json:"error"`
}
