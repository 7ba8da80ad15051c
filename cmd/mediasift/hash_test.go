package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/mediasift/internal/grouping"
	"github.com/steveyegge/mediasift/internal/testsupport"
)

func TestPrintHashes(t *testing.T) {
	dir := t.TempDir()
	a := testsupport.WriteImage(t, dir, "a.png", testsupport.NoiseImage(1, 64))
	b := testsupport.WriteImage(t, dir, "b.png", testsupport.NoiseImage(1, 64))

	var buf bytes.Buffer
	require.NoError(t, printHashes(&buf, grouping.DefaultConfig(), []string{a, b}))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 6)
	for i, prefix := range []string{"average:", "difference:", "frequency:"} {
		fieldsA := strings.Split(lines[i], "\t")
		fieldsB := strings.Split(lines[i+3], "\t")
		require.Len(t, fieldsA, 2)
		assert.Equal(t, a, fieldsA[0])
		assert.True(t, strings.HasPrefix(fieldsA[1], prefix), fieldsA[1])
		// 64-bit fingerprints are 16 hex digits
		assert.Len(t, strings.TrimPrefix(fieldsA[1], prefix), 16)
		assert.Equal(t, fieldsA[1], fieldsB[1], "identical images hash identically")
	}
}

func TestPrintHashesHashSize(t *testing.T) {
	path := testsupport.WriteImage(t, t.TempDir(), "a.png", testsupport.NoiseImage(1, 64))
	cfg := grouping.DefaultConfig()
	cfg.HashSize = 16

	var buf bytes.Buffer
	require.NoError(t, printHashes(&buf, cfg, []string{path}))
	first := strings.Split(strings.Split(buf.String(), "\n")[0], "\t")[1]
	assert.Len(t, strings.TrimPrefix(first, "average:"), 64)
}

func TestPrintHashesReportsFailures(t *testing.T) {
	dir := t.TempDir()
	good := testsupport.WriteImage(t, dir, "a.png", testsupport.NoiseImage(1, 64))
	bad := filepath.Join(dir, "bad.png")
	require.NoError(t, os.WriteFile(bad, []byte("garbage"), 0644))
	missing := filepath.Join(dir, "missing.png")

	var buf bytes.Buffer
	err := printHashes(&buf, grouping.DefaultConfig(), []string{good, bad, missing})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "2 of 3")
	assert.Contains(t, buf.String(), bad+": could not be fingerprinted")
	assert.Contains(t, buf.String(), missing+":")
}

func TestPrintHashesInvalidCodec(t *testing.T) {
	cfg := grouping.DefaultConfig()
	cfg.HashSize = 1
	assert.Error(t, printHashes(&bytes.Buffer{}, cfg, []string{"a.png"}))
}
