package diarization

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/caretrail/visit-pipeline/pkg/errors"
)

func TestPyannoteProvider_Diarize(t *testing.T) {
	t.Run("maps engine response to turns", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "/v1/diarize", r.URL.Path)
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{
				"engine": "pyannote-3.1",
				"turns": [
					{"speaker": "SPEAKER_00", "start_ms": 0, "end_ms": 4000, "confidence": 0.95},
					{"speaker": "SPEAKER_01", "start_ms": 4000, "end_ms": 9000}
				]
			}`))
		}))
		defer server.Close()

		provider := NewPyannoteProvider(server.URL, "token", nil)
		result, err := provider.Diarize(context.Background(), []byte("audio"), 1, 2)

		require.NoError(t, err)
		assert.Equal(t, "pyannote-3.1", result.Engine)
		assert.False(t, result.Degraded)
		require.Len(t, result.Turns, 2)
		assert.Equal(t, "SPEAKER_00", result.Turns[0].Speaker)
		assert.Equal(t, int64(4000), result.Turns[0].EndMs)
		require.NotNil(t, result.Turns[0].Confidence)
		assert.Nil(t, result.Turns[1].Confidence)
	})

	t.Run("auth failure degrades to fallback turns", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		}))
		defer server.Close()

		provider := NewPyannoteProvider(server.URL, "expired", NewMockDiarizationProvider())
		result, err := provider.Diarize(context.Background(), []byte("audio"), 1, 2)

		require.NoError(t, err)
		assert.True(t, result.Degraded)
		assert.NotEmpty(t, result.Turns)
	})

	t.Run("server errors propagate as external errors", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer server.Close()

		provider := NewPyannoteProvider(server.URL, "token", NewMockDiarizationProvider())
		_, err := provider.Diarize(context.Background(), []byte("audio"), 1, 2)

		require.Error(t, err)
		assert.Equal(t, apperrors.ErrorTypeExternal, apperrors.TypeOf(err))
	})
}

func TestMockDiarizationProvider_Deterministic(t *testing.T) {
	provider := NewMockDiarizationProvider()

	first, err := provider.Diarize(context.Background(), []byte("same audio"), 1, 2)
	require.NoError(t, err)
	second, err := provider.Diarize(context.Background(), []byte("same audio"), 1, 2)
	require.NoError(t, err)

	assert.Equal(t, first.Turns, second.Turns)

	speakers := map[string]bool{}
	for _, turn := range first.Turns {
		speakers[turn.Speaker] = true
	}
	assert.True(t, speakers["SPEAKER_00"])
	assert.True(t, speakers["SPEAKER_01"])
}
