package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetVersion(t *testing.T) {
	origVersion, origCommit := Version, GitCommit
	t.Cleanup(func() { Version, GitCommit = origVersion, origCommit })

	Version, GitCommit = "dev", "0123456789abcdef"
	assert.Equal(t, "dev-01234567", GetVersion())

	GitCommit = "abc"
	assert.Equal(t, "dev-abc", GetVersion())

	GitCommit = ""
	assert.Equal(t, "dev-unknown", GetVersion())

	Version = "1.4.0"
	assert.Equal(t, "1.4.0", GetVersion())
	assert.Equal(t, "1.4.0", GetBuildInfo().Version)
	assert.Contains(t, GetFullVersion(), Name+" 1.4.0")
}
