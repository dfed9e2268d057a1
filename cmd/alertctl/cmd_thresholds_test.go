package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runThresholds(t *testing.T, args ...string) error {
	t.Helper()
	cmd := newThresholdsCmd()
	cmd.SetArgs(append([]string{"validate"}, args...))
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true
	return cmd.Execute()
}

func TestThresholdsValidate(t *testing.T) {
	dir := t.TempDir()

	valid := filepath.Join(dir, "valid.yaml")
	require.NoError(t, os.WriteFile(valid, []byte(`thresholds:
  - metric: forecast_accuracy
    target: 92
    warning: 88
    critical: 80
    direction: higherIsBetter
`), 0644))
	assert.NoError(t, runThresholds(t, valid))

	inverted := filepath.Join(dir, "inverted.yaml")
	require.NoError(t, os.WriteFile(inverted, []byte(`thresholds:
  - metric: forecast_accuracy
    target: 92
    warning: 80
    critical: 88
    direction: higherIsBetter
`), 0644))
	assert.Error(t, runThresholds(t, inverted))

	assert.Error(t, runThresholds(t, filepath.Join(dir, "missing.yaml")))
}
