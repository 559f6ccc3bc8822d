package testpdf

import (
	"bytes"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildXrefOffsets(t *testing.T) {
	pdf := Build("PROMISSORY NOTE (FIXED RATE)", "")

	i := bytes.LastIndex(pdf, []byte("startxref\n"))
	require.Positive(t, i)
	rest := pdf[i+len("startxref\n"):]
	off, err := strconv.Atoi(string(rest[:bytes.IndexByte(rest, '\n')]))
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(pdf[off:], []byte("xref\n0 8\n")))

	assert.Contains(t, string(pdf), `(PROMISSORY NOTE \(FIXED RATE\)) Tj`)
	assert.Contains(t, string(pdf), "/Count 2")
}

func TestEncrypt(t *testing.T) {
	enc, err := Encrypt(Build("ALLONGE"), "pw")
	require.NoError(t, err)
	assert.Contains(t, string(enc), "/Encrypt")
	assert.NotContains(t, string(enc), "(ALLONGE) Tj")
}
