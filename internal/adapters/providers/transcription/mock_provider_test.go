package transcription

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockTranscriptionProvider(t *testing.T) {
	provider := NewMockTranscriptionProvider()

	t.Run("same audio yields identical segments", func(t *testing.T) {
		first, err := provider.Transcribe(context.Background(), []byte("recording"))
		require.NoError(t, err)
		second, err := provider.Transcribe(context.Background(), []byte("recording"))
		require.NoError(t, err)

		assert.Equal(t, first.Segments, second.Segments)
		assert.Equal(t, "mock", first.Engine)
	})

	t.Run("segments are contiguous and ordered", func(t *testing.T) {
		result, err := provider.Transcribe(context.Background(), []byte("recording"))
		require.NoError(t, err)
		require.NotEmpty(t, result.Segments)

		assert.Equal(t, int64(0), result.Segments[0].StartMs)
		for i := 1; i < len(result.Segments); i++ {
			assert.Equal(t, result.Segments[i-1].EndMs, result.Segments[i].StartMs)
		}
	})
}
