package common

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidatorCollectsErrors(t *testing.T) {
	v := NewValidator().
		Field("file", "scan.tiff", Required, Extension(".pdf")).
		Field("size", int64(2048), MaxBytes(1024)).
		Field("threshold", 0.5, InRange(0, 1)).
		Field("job_id", "not-a-uuid", UUID)

	require.True(t, v.HasErrors())
	assert.Len(t, v.Errors(), 3)

	err := ValidateAndReturnError(v)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.Contains(t, err.Error(), "must be a .pdf file")
	assert.Contains(t, err.Error(), "must be at most 1024 bytes")
	assert.Contains(t, err.Error(), "must be a valid UUID")
}

func TestValidatorPasses(t *testing.T) {
	v := NewValidator().
		Field("file", "Loan Package.PDF", Required, Extension(".pdf")).
		Field("workers", 4, Positive).
		Field("min_text", 0, NonNegative).
		Field("engine", "Tesseract", OneOf("tesseract", "gosseract"))

	assert.False(t, v.HasErrors())
	assert.NoError(t, v.Error())
	assert.NoError(t, ValidateAndReturnError(v))
}

func TestInRange(t *testing.T) {
	tests := []struct {
		name  string
		value interface{}
		ok    bool
	}{
		{"lower bound", 0.0, true},
		{"upper bound", 1.0, true},
		{"int inside", 1, true},
		{"above", 1.01, false},
		{"below", -0.5, false},
		{"nan", math.NaN(), false},
		{"not a number", "0.5", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verr := InRange(0, 1)("threshold", tt.value)
			if tt.ok {
				assert.Nil(t, verr)
			} else {
				assert.NotNil(t, verr)
			}
		})
	}
}
