package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVersionCompare(t *testing.T) {
	assert.True(t, IsVersionGreaterThan("0.4.0", "0.3.9"))
	assert.True(t, IsVersionGreaterThan("v1.0.0", "0.9.0"))
	assert.False(t, IsVersionGreaterThan("0.3.0", "0.3.0"))
	assert.True(t, IsVersionGreaterOrEqualThan("0.3.0", "0.3.0"))
	assert.False(t, IsVersionGreaterOrEqualThan("0.2.1", "0.3.0"))
}

func TestString(t *testing.T) {
	orig := GitCommit
	t.Cleanup(func() { GitCommit = orig })

	GitCommit = "unknown"
	assert.Equal(t, Version, String())

	GitCommit = "0123456789abcdef"
	assert.Equal(t, Version+"-01234567", String())
	assert.Contains(t, StringFull(), "Version="+Version+"-01234567")
}
