package diarization

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"

	"github.com/caretrail/visit-pipeline/internal/domain/providers"
	apperrors "github.com/caretrail/visit-pipeline/pkg/errors"
)

type pyannoteTurn struct {
	Speaker    string   `json:"speaker"`
	StartMs    int64    `json:"start_ms"`
	EndMs      int64    `json:"end_ms"`
	Confidence *float64 `json:"confidence,omitempty"`
}

type pyannoteResponse struct {
	Engine string         `json:"engine"`
	Turns  []pyannoteTurn `json:"turns"`
	Error  string         `json:"error,omitempty"`
}

// PyannoteProvider calls an HTTP diarization service. Calls run through a
// circuit breaker so a struggling engine sheds load instead of stalling every
// visit's pipeline.
type PyannoteProvider struct {
	httpClient *resty.Client
	breaker    *gobreaker.CircuitBreaker
	fallback   providers.DiarizationProvider
}

// NewPyannoteProvider creates a new HTTP diarization provider. The fallback
// supplies degraded turns when the engine rejects our credentials.
func NewPyannoteProvider(baseURL, token string, fallback providers.DiarizationProvider) providers.DiarizationProvider {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(5 * time.Minute).
		SetHeader("Accept", "application/json")
	if token != "" {
		client.SetAuthToken(token)
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "diarization",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	})

	return &PyannoteProvider{
		httpClient: client,
		breaker:    breaker,
		fallback:   fallback,
	}
}

// Diarize submits audio and returns speaker turns. Auth failures degrade to
// the fallback provider rather than failing the stage; other engine errors
// propagate.
func (p *PyannoteProvider) Diarize(ctx context.Context, audio []byte, minSpeakers, maxSpeakers int) (*providers.DiarizationResult, error) {
	raw, err := p.breaker.Execute(func() (interface{}, error) {
		var result pyannoteResponse
		resp, err := p.httpClient.R().
			SetContext(ctx).
			SetFileReader("audio", "visit.wav", bytes.NewReader(audio)).
			SetFormData(map[string]string{
				"min_speakers": fmt.Sprintf("%d", minSpeakers),
				"max_speakers": fmt.Sprintf("%d", maxSpeakers),
			}).
			SetResult(&result).
			Post("/v1/diarize")
		if err != nil {
			return nil, err
		}
		if resp.StatusCode() == http.StatusUnauthorized || resp.StatusCode() == http.StatusForbidden {
			return nil, apperrors.NewUnauthorizedError("diarization engine rejected credentials")
		}
		if resp.IsError() {
			return nil, fmt.Errorf("diarization service returned %d: %s", resp.StatusCode(), result.Error)
		}
		return &result, nil
	})

	if err != nil {
		if apperrors.TypeOf(err) == apperrors.ErrorTypeUnauthorized && p.fallback != nil {
			log.Warn().Err(err).Msg("diarization auth failed, substituting degraded fallback turns")
			degraded, fbErr := p.fallback.Diarize(ctx, audio, minSpeakers, maxSpeakers)
			if fbErr != nil {
				return nil, fbErr
			}
			degraded.Degraded = true
			return degraded, nil
		}
		return nil, apperrors.NewExternalError("diarization engine failure", err)
	}

	result := raw.(*pyannoteResponse)
	turns := make([]providers.RawTurn, 0, len(result.Turns))
	for _, turn := range result.Turns {
		turns = append(turns, providers.RawTurn{
			Speaker:    turn.Speaker,
			StartMs:    turn.StartMs,
			EndMs:      turn.EndMs,
			Confidence: turn.Confidence,
		})
	}

	engine := result.Engine
	if engine == "" {
		engine = "pyannote"
	}

	return &providers.DiarizationResult{Turns: turns, Engine: engine}, nil
}
