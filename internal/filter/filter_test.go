package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmptyChainIncludesAll(t *testing.T) {
	c := NewChain()
	assert.True(t, c.Empty())
	assert.True(t, c.Match("any/file", false))
	assert.True(t, c.Match("dir", true))
}

func TestExcludeLeafPattern(t *testing.T) {
	c := NewChain()
	require.NoError(t, c.AddExclude("*.bak"))
	assert.False(t, c.Match("old.bak", false))
	assert.False(t, c.Match("deep/dir/old.bak", false))
	assert.True(t, c.Match("keep.txt", false))
}

func TestFirstMatchWins(t *testing.T) {
	c := NewChain()
	require.NoError(t, c.AddInclude("keep.bak"))
	require.NoError(t, c.AddExclude("*.bak"))
	assert.True(t, c.Match("keep.bak", false))
	assert.False(t, c.Match("toss.bak", false))
}

func TestPathPatternMatchesWholePath(t *testing.T) {
	c := NewChain()
	require.NoError(t, c.AddExclude("System/*"))
	assert.False(t, c.Match("System/Finder", false))
	assert.True(t, c.Match("Apps/Finder", false))
}

func TestDirectoryPrefixSelectsContents(t *testing.T) {
	c := NewChain()
	require.NoError(t, c.AddExclude("Trash"))
	assert.False(t, c.Match("Trash", true))
	assert.False(t, c.Match("Trash/old/file", false))
	assert.True(t, c.Match("Trashy", false))
}

func TestBadPatternRejected(t *testing.T) {
	c := NewChain()
	assert.Error(t, c.AddExclude("[unclosed"))
}
