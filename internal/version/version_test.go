package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestString(t *testing.T) {
	prevV, prevSHA, prevT := Version, GitSHA, BuildTime
	t.Cleanup(func() { Version, GitSHA, BuildTime = prevV, prevSHA, prevT })

	assert.Equal(t, "desk dev (git unknown, built unknown)", String())

	Version, GitSHA, BuildTime = "1.2.0", "abc1234", "2026-03-02T09:00:00Z"
	assert.Equal(t, "desk 1.2.0 (git abc1234, built 2026-03-02T09:00:00Z)", String())
}
