package transcription

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"

	"github.com/caretrail/visit-pipeline/internal/domain/providers"
	apperrors "github.com/caretrail/visit-pipeline/pkg/errors"
)

// whisperSegment mirrors the ASR service response span
type whisperSegment struct {
	StartMs    int64    `json:"start_ms"`
	EndMs      int64    `json:"end_ms"`
	Text       string   `json:"text"`
	Confidence *float64 `json:"confidence,omitempty"`
}

type whisperResponse struct {
	Engine   string           `json:"engine"`
	Segments []whisperSegment `json:"segments"`
	Error    string           `json:"error,omitempty"`
}

// WhisperProvider calls an HTTP ASR service exposing a whisper-style
// transcription endpoint.
type WhisperProvider struct {
	httpClient *resty.Client
}

// NewWhisperProvider creates a new HTTP transcription provider
func NewWhisperProvider(baseURL, apiKey string) providers.TranscriptionProvider {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(5 * time.Minute).
		SetHeader("Accept", "application/json")
	if apiKey != "" {
		client.SetAuthToken(apiKey)
	}

	return &WhisperProvider{httpClient: client}
}

// Transcribe submits audio and returns ordered timed segments. Transient
// failures are retried with exponential backoff before the stage sees an
// error.
func (p *WhisperProvider) Transcribe(ctx context.Context, audio []byte) (*providers.TranscriptionResult, error) {
	var result whisperResponse

	operation := func() error {
		resp, err := p.httpClient.R().
			SetContext(ctx).
			SetFileReader("audio", "visit.wav", bytes.NewReader(audio)).
			SetResult(&result).
			Post("/v1/transcribe")
		if err != nil {
			return err
		}
		if resp.IsError() {
			// 4xx responses are not retryable; the payload itself is bad.
			if resp.StatusCode() < 500 {
				return backoff.Permanent(fmt.Errorf("transcription service returned %d: %s", resp.StatusCode(), result.Error))
			}
			return fmt.Errorf("transcription service returned %d", resp.StatusCode())
		}
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 4), ctx)
	if err := backoff.RetryNotify(operation, policy, func(err error, next time.Duration) {
		log.Warn().Err(err).Dur("next_retry", next).Msg("transcription attempt failed, retrying")
	}); err != nil {
		return nil, apperrors.NewExternalError("transcription engine failure", err)
	}

	segments := make([]providers.RawSegment, 0, len(result.Segments))
	for _, seg := range result.Segments {
		segments = append(segments, providers.RawSegment{
			StartMs:    seg.StartMs,
			EndMs:      seg.EndMs,
			Text:       seg.Text,
			Confidence: seg.Confidence,
		})
	}

	engine := result.Engine
	if engine == "" {
		engine = "whisper"
	}

	return &providers.TranscriptionResult{Segments: segments, Engine: engine}, nil
}
