package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoad_PipelineConfig(t *testing.T) {
	// Setup environment variables
	os.Setenv("ALIGNMENT_OVERLAP_THRESHOLD", "0.65")
	os.Setenv("BILLING_MIN_BLOCK_MINUTES", "10")
	os.Setenv("BILLING_MIN_GAP_MS", "90000")
	defer func() {
		os.Unsetenv("ALIGNMENT_OVERLAP_THRESHOLD")
		os.Unsetenv("BILLING_MIN_BLOCK_MINUTES")
		os.Unsetenv("BILLING_MIN_GAP_MS")
	}()

	cfg, err := Load()
	assert.NoError(t, err)

	assert.Equal(t, 0.65, cfg.Pipeline.OverlapThreshold)
	assert.Equal(t, 10, cfg.Pipeline.MinBlockMinutes)
	assert.Equal(t, int64(90000), cfg.Pipeline.MinGapMs)
}

func TestLoad_Defaults(t *testing.T) {
	os.Unsetenv("ALIGNMENT_OVERLAP_THRESHOLD")
	os.Unsetenv("BILLING_MIN_BLOCK_MINUTES")
	os.Unsetenv("TRANSCRIPTION_PROVIDER")
	os.Unsetenv("DIARIZATION_PROVIDER")

	cfg, err := Load()
	assert.NoError(t, err)

	assert.Equal(t, 0.5, cfg.Pipeline.OverlapThreshold)
	assert.Equal(t, "Speaker A", cfg.Pipeline.DefaultSpeaker)
	assert.Equal(t, 5, cfg.Pipeline.MinBlockMinutes)
	assert.Equal(t, int64(120000), cfg.Pipeline.MinGapMs)
	assert.Equal(t, "mock", cfg.Engines.TranscriptionProvider)
	assert.Equal(t, "mock", cfg.Engines.DiarizationProvider)
	assert.Equal(t, 1, cfg.Engines.MinSpeakers)
	assert.Equal(t, 2, cfg.Engines.MaxSpeakers)
}

func TestDatabaseDSN(t *testing.T) {
	cfg := DatabaseConfig{
		Host:     "db.internal",
		Port:     5433,
		User:     "pipeline",
		Password: "secret",
		Database: "visits",
		SSLMode:  "require",
	}

	assert.Equal(t,
		"host=db.internal port=5433 user=pipeline password=secret dbname=visits sslmode=require",
		cfg.DatabaseDSN(),
	)
}
