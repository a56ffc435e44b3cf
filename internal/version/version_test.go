package version

import (
	"runtime/debug"
	"testing"

	"github.com/stretchr/testify/assert"
)

func restore(t *testing.T) {
	v, c, d := Version, Commit, Date
	t.Cleanup(func() { Version, Commit, Date = v, c, d })
}

func TestInfo(t *testing.T) {
	restore(t)
	Version, Commit, Date = "1.2.3", "abc1234567890", "2026-01-15"

	assert.Regexp(t, `^dankbot 1\.2\.3 \(commit: abc1234, built: 2026-01-15, \w+/\w+\)$`, Info())
}

func TestFromBuildInfo(t *testing.T) {
	restore(t)
	Commit, Date = "unknown", "unknown"

	fromBuildInfo([]debug.BuildSetting{
		{Key: "vcs.revision", Value: "deadbeefcafe"},
		{Key: "vcs.time", Value: "2026-03-01T10:00:00Z"},
	})
	assert.Equal(t, "deadbeefcafe", Commit)
	assert.Equal(t, "2026-03-01T10:00:00Z", Date)
}

func TestFromBuildInfo_LdflagsWin(t *testing.T) {
	restore(t)
	Commit = "fromldflags"

	fromBuildInfo([]debug.BuildSetting{{Key: "vcs.revision", Value: "deadbeef"}})
	assert.Equal(t, "fromldflags", Commit)
}
