package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/caretrail/visit-pipeline/internal/domain/providers"
	"github.com/caretrail/visit-pipeline/pkg/config"
	apperrors "github.com/caretrail/visit-pipeline/pkg/errors"
)

// HTTPAudioStore fetches source audio from the object storage gateway by key.
// The audio bytes are opaque to the pipeline.
type HTTPAudioStore struct {
	httpClient *resty.Client
}

// NewHTTPAudioStore creates a new audio store client
func NewHTTPAudioStore(cfg *config.AudioStoreConfig) providers.AudioStore {
	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(2 * time.Minute)
	if cfg.APIKey != "" {
		client.SetAuthToken(cfg.APIKey)
	}

	return &HTTPAudioStore{httpClient: client}
}

// Fetch retrieves the audio object stored under key
func (s *HTTPAudioStore) Fetch(ctx context.Context, key string) ([]byte, error) {
	resp, err := s.httpClient.R().
		SetContext(ctx).
		Get(fmt.Sprintf("/objects/%s", key))
	if err != nil {
		return nil, apperrors.NewExternalError("failed to fetch audio object", err)
	}
	if resp.StatusCode() == 404 {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("audio object %s not found", key))
	}
	if resp.IsError() {
		return nil, apperrors.NewExternalError(fmt.Sprintf("object store returned %d for key %s", resp.StatusCode(), key), nil)
	}

	return resp.Body(), nil
}
