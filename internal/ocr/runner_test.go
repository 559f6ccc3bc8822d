package ocr

import (
	"bytes"
	"context"
	"log/slog"
	"os/exec"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogArgsMasksPasswords(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"user password", []string{"-r", "300", "-upw", "s3cret-pw", "in.pdf"}, "-r 300 -upw [REDACTED] in.pdf"},
		{"owner password", []string{"-opw", "owner", "in.pdf", "-"}, "-opw [REDACTED] in.pdf -"},
		{"no secrets", []string{"-layout", "in.pdf", "-"}, "-layout in.pdf -"},
		{"trailing flag", []string{"in.pdf", "-upw"}, "in.pdf -upw"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, logArgs(tt.args))
		})
	}
}

func TestExecRunnerFailureLogOmitsPassword(t *testing.T) {
	bin, err := exec.LookPath("false")
	if err != nil {
		t.Skip("false not installed")
	}
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	_, _, err = NewExecRunner(logger).Run(context.Background(), bin, "-r", "300", "-png", "-upw", "s3cret-pw", "in.pdf", "page")
	require.Error(t, err)

	out := buf.String()
	assert.Contains(t, out, "exec failed")
	assert.Contains(t, out, "-upw [REDACTED]")
	assert.NotContains(t, out, "s3cret-pw")
}
