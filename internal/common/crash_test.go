package common

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteCrashFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "crash")
	InstallCrashHandler(dir)
	t.Cleanup(func() { InstallCrashHandler("./logs") })

	path := WriteCrashFile("boom", "main.go:1")
	require.NotEmpty(t, path)
	assert.Equal(t, dir, filepath.Dir(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	report := string(data)
	assert.True(t, strings.HasPrefix(report, "=== VALUESCREEN CRASH REPORT ==="))
	assert.Contains(t, report, "boom")
	assert.Contains(t, report, "main.go:1")
	assert.Contains(t, report, "=== ALL GOROUTINES ===")
}
