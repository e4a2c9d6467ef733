package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"payment-reconciliation/internal/domain"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "data/reconciliation.db", cfg.Store.Path)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.Equal(t, 1, cfg.Rematch.Workers)

	settings, err := cfg.Settings()
	require.NoError(t, err)
	defaults := domain.DefaultSettings()
	assert.Equal(t, defaults.Collections, settings.Collections)
	assert.Equal(t, defaults.Weights, settings.Weights)
	assert.Equal(t, defaults.MinConfidence, settings.MinConfidence)
	assert.Equal(t, defaults.CheckpointEvery, settings.CheckpointEvery)
	assert.Equal(t, "0.1", settings.AmountTolerance.Absolute.String())
	assert.True(t, settings.AmountTolerance.Relative.IsZero())
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
store:
  driver: memory
  path: /tmp/snapshot.json
logging:
  level: debug
  format: json
collections:
  quarantine: quarantined_payments
matching:
  weights:
    email: 7
  amount_tolerance: "0.05"
  amount_relative_tolerance: "0.01"
  min_confidence: 60
rematch:
  workers: 4
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "memory", cfg.Store.Driver)
	assert.Equal(t, "/tmp/snapshot.json", cfg.Store.Path)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, 4, cfg.Rematch.Workers)

	settings, err := cfg.Settings()
	require.NoError(t, err)
	assert.Equal(t, "quarantined_payments", settings.Collections.Quarantine)
	assert.Equal(t, "payments", settings.Collections.Payments)
	assert.Equal(t, 7, settings.Weights.Email)
	assert.Equal(t, 50, settings.Weights.PaymentID)
	assert.Equal(t, "0.05", settings.AmountTolerance.Absolute.String())
	assert.Equal(t, "0.01", settings.AmountTolerance.Relative.String())
	assert.Equal(t, 60, settings.MinConfidence)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("RECON_STORE_DRIVER", "memory")
	t.Setenv("RECON_LOGGING_LEVEL", "warn")
	t.Setenv("RECON_MATCHING_MIN_CONFIDENCE", "75")

	path := writeConfig(t, "logging:\n  level: debug\n")
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "memory", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, 75, cfg.Matching.MinConfidence)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"unknown driver", "store:\n  driver: mongo\n"},
		{"confidence above maximum", "matching:\n  min_confidence: 101\n"},
		{"no workers", "rematch:\n  workers: 0\n"},
		{"negative tolerance", "matching:\n  amount_tolerance: \"-0.10\"\n"},
		{"malformed tolerance", "matching:\n  fee_tolerance: ten cents\n"},
		{"malformed yaml", "store: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}

	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
		assert.Error(t, err)
	})
}
