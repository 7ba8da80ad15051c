package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/mediasift/internal/config"
	"github.com/steveyegge/mediasift/internal/grouping"
)

func TestRunGroup(t *testing.T) {
	dir := writeBatch(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.png"), []byte("not an image"), 0644))

	var buf bytes.Buffer
	require.NoError(t, runGroup(context.Background(), &buf, dir, config.Default(), false))
	out := buf.String()

	assert.Contains(t, out, "* copy-0.png")
	assert.Contains(t, out, "copy-1.png 1.000")
	assert.Contains(t, out, "forced singleton")
	assert.Contains(t, out, "Items:             6")
	assert.Contains(t, out, "Groups:            4 (3 singletons)")
	assert.Contains(t, out, "Forced singletons: 1")
	assert.Contains(t, out, "Calls avoided:     2 (est. $0.0040 at cheap rates)")
}

func TestRunGroupJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, runGroup(context.Background(), &buf, writeBatch(t), config.Default(), true))

	var result grouping.Result
	require.NoError(t, json.Unmarshal(buf.Bytes(), &result))
	require.Len(t, result.Groups, 3)
	assert.Equal(t, []string{"copy-0.png", "copy-1.png", "copy-2.png"}, result.Groups[0].Members)
	assert.Equal(t, 5, result.Stats.Items)
	assert.Equal(t, 2, result.Stats.CallsAvoided())
}

func TestRunGroupMissingDir(t *testing.T) {
	err := runGroup(context.Background(), &bytes.Buffer{}, filepath.Join(t.TempDir(), "nope"), config.Default(), false)
	assert.Error(t, err)
}
