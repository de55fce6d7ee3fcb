package utils

import (
	gonanoid "github.com/matoous/go-nanoid/v2"
)

const apiKeyPrefix = "pf_"

// GenerateAPIKey returns a url-safe key suitable for the api_key query param.
func GenerateAPIKey() (string, error) {
	id, err := gonanoid.New(32)
	if err != nil {
		return "", err
	}
	return apiKeyPrefix + id, nil
}

// GenerateObjectKey names an uploaded media object. ext must include the dot.
func GenerateObjectKey(ext string) (string, error) {
	id, err := gonanoid.New()
	if err != nil {
		return "", err
	}
	return id + ext, nil
}
