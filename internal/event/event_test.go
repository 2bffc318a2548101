package event

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReasonNames(t *testing.T) {
	assert.Equal(t, "Progress", Progress.String())
	assert.Equal(t, "FileNameExists", FileNameExists.String())
	assert.Equal(t, "PathTooLong", PathTooLong.String())
	assert.Equal(t, "Unknown", Reason(99).String())
}

func TestResultNames(t *testing.T) {
	assert.Equal(t, "Proceed", Proceed.String())
	assert.Equal(t, "Cancel", Cancel.String())
	assert.Equal(t, "Unknown", Result(0).String())
}

func TestAskNilCallbackProceeds(t *testing.T) {
	assert.Equal(t, Proceed, Ask(nil, Facts{Reason: QueryCancel}))
}

func TestAskForwardsFacts(t *testing.T) {
	var got Facts
	cb := func(f Facts) Result {
		got = f
		return Skip
	}
	res := Ask(cb, Facts{Reason: FileNameExists, NewPath: "dir/file"})
	assert.Equal(t, Skip, res)
	assert.Equal(t, FileNameExists, got.Reason)
	assert.Equal(t, "dir/file", got.NewPath)
}
