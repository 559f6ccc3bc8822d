package common

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	v, err := NewViper("")
	require.NoError(t, err)

	cfg := LoadConfig(v)
	assert.Equal(t, ":5000", cfg.Server.HTTPAddr)
	assert.Equal(t, ":8080", cfg.Server.GRPCAddr)
	assert.InDelta(t, 0.85, cfg.Classifier.ConfidenceThreshold, 1e-9)
	assert.Equal(t, 300, cfg.OCR.DPI)
	assert.Equal(t, 10, cfg.OCR.MinTextLength)
	assert.Equal(t, 60*time.Second, cfg.OCR.PageTimeout)
	assert.Equal(t, "tesseract", cfg.OCR.Engine)
	assert.Empty(t, cfg.Database.DSN)
	require.NoError(t, cfg.Validate())
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Setenv("CONFIDENCE_THRESHOLD", "0.7")
	t.Setenv("OCR_DPI", "200")
	t.Setenv("OCR_MIN_TEXT_LENGTH", "25")
	t.Setenv("OCR_PAGE_TIMEOUT", "15s")
	t.Setenv("DB_URL", "postgres://u:p@localhost:5432/docs")
	t.Setenv("PORT", "9090")

	v, err := NewViper("")
	require.NoError(t, err)
	cfg := LoadConfig(v)

	assert.InDelta(t, 0.7, cfg.Classifier.ConfidenceThreshold, 1e-9)
	assert.Equal(t, 200, cfg.OCR.DPI)
	assert.Equal(t, 25, cfg.OCR.MinTextLength)
	assert.Equal(t, 15*time.Second, cfg.OCR.PageTimeout)
	assert.Equal(t, "postgres://u:p@localhost:5432/docs", cfg.Database.DSN)
	assert.Equal(t, ":9090", cfg.Server.HTTPAddr)
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("ocr:\n  dpi: 250\nclassifier:\n  workers: 2\n"), 0o600))

	v, err := NewViper(path)
	require.NoError(t, err)
	cfg := LoadConfig(v)

	assert.Equal(t, 250, cfg.OCR.DPI)
	assert.Equal(t, 2, cfg.Classifier.Workers)
}

func TestValidate(t *testing.T) {
	v, err := NewViper("")
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"threshold above one", func(c *Config) { c.Classifier.ConfidenceThreshold = 1.5 }, "CONFIDENCE_THRESHOLD"},
		{"no workers", func(c *Config) { c.Classifier.Workers = 0 }, "CLASSIFIER_WORKERS"},
		{"bad engine", func(c *Config) { c.OCR.Engine = "paddle" }, "OCR_ENGINE"},
		{"missing model", func(c *Config) { c.Model.Path = " " }, "MODEL_PATH"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := LoadConfig(v)
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
			assert.True(t, errors.Is(err, ErrInvalidInput))

			var appErr *AppError
			require.ErrorAs(t, err, &appErr)
			assert.Equal(t, "CONFIG_ERROR", appErr.Code)
		})
	}
}
