package ui

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"appleport/internal/event"
)

func TestPlainVerboseProgress(t *testing.T) {
	var out strings.Builder
	p := NewPresenter(Config{Writer: &out, ErrWriter: &out, Verbose: true})
	cb := p.Callback()

	cb(event.Facts{Reason: event.Progress, NewPath: "a/b"})
	cb(event.Facts{Reason: event.Progress, NewPath: "a/b"}) // same file, second fork
	cb(event.Facts{Reason: event.Progress, NewPath: "a/c"})

	assert.Equal(t, "a/b\na/c\n", out.String())
}

func TestPlainOverwritePolicies(t *testing.T) {
	facts := event.Facts{Reason: event.FileNameExists, NewPath: "x"}

	var out strings.Builder
	always := NewPresenter(Config{Writer: &out, ErrWriter: &out, Overwrite: OverwriteAlways})
	assert.Equal(t, event.Overwrite, always.Callback()(facts))

	never := NewPresenter(Config{Writer: &out, ErrWriter: &out, Overwrite: OverwriteNever})
	assert.Equal(t, event.Skip, never.Callback()(facts))

	// Ask without a terminal degrades to skip.
	ask := NewPresenter(Config{Writer: &out, ErrWriter: &out, Overwrite: OverwriteAsk})
	assert.Equal(t, event.Skip, ask.Callback()(facts))
}

func TestPromptOverwriteAllPromotesPolicy(t *testing.T) {
	var out strings.Builder
	in := strings.NewReader("a\n")
	p := &plainPresenter{
		w: &out, errW: &out,
		in: in, isTTY: true,
		policy: OverwriteAsk,
	}
	got := p.handle(event.Facts{Reason: event.FileNameExists, NewPath: "x"})
	assert.Equal(t, event.Overwrite, got)
	assert.Equal(t, OverwriteAlways, p.policy)

	// Subsequent conflicts no longer prompt.
	got = p.handle(event.Facts{Reason: event.FileNameExists, NewPath: "y"})
	assert.Equal(t, event.Overwrite, got)
}

func TestPromptCancel(t *testing.T) {
	var out strings.Builder
	p := &plainPresenter{
		w: &out, errW: &out,
		in: strings.NewReader("c\n"), isTTY: true,
	}
	got := p.handle(event.Facts{Reason: event.FileNameExists, NewPath: "x"})
	assert.Equal(t, event.Cancel, got)
}

func TestParseOverwritePolicy(t *testing.T) {
	p, ok := ParseOverwritePolicy("always")
	require.True(t, ok)
	assert.Equal(t, OverwriteAlways, p)

	_, ok = ParseOverwritePolicy("maybe")
	assert.False(t, ok)
}
