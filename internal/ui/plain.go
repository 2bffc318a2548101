package ui

import (
	"fmt"
	"io"

	"appleport/internal/event"
	"appleport/internal/stats"
)

// plainPresenter emits one line per noteworthy callback on stdout and
// conflict prompts on stderr.
type plainPresenter struct {
	w       io.Writer
	errW    io.Writer
	in      io.Reader
	isTTY   bool
	verbose bool
	policy  OverwritePolicy

	lastPath string
}

func (p *plainPresenter) Callback() event.Callback {
	return p.handle
}

func (p *plainPresenter) handle(f event.Facts) event.Result {
	switch f.Reason {
	case event.Progress:
		if p.verbose && f.NewPath != "" && f.NewPath != p.lastPath {
			p.lastPath = f.NewPath
			fmt.Fprintf(p.w, "%s\n", f.NewPath)
		}
		return event.Proceed

	case event.QueryCancel:
		return event.Proceed

	case event.Failure:
		fmt.Fprintf(p.errW, "error: %s: %s\n", displayPath(f), f.Message)
		return event.Proceed

	case event.FileNameExists:
		return p.resolveExists(f)

	case event.PathTooLong:
		fmt.Fprintf(p.errW, "skipping %s: name too long for destination\n", f.NewPath)
		return event.Skip

	case event.ResourceForkIgnored:
		fmt.Fprintf(p.errW, "note: %s: %s\n", f.OrigPath, f.Message)
		return event.Proceed
	}
	return event.Proceed
}

func (p *plainPresenter) resolveExists(f event.Facts) event.Result {
	switch p.policy {
	case OverwriteAlways:
		return event.Overwrite
	case OverwriteNever:
		fmt.Fprintf(p.errW, "skipping %s: already exists\n", f.NewPath)
		return event.Skip
	}
	if !p.isTTY || p.in == nil {
		// No terminal to ask: keep the batch moving without destroying
		// anything.
		fmt.Fprintf(p.errW, "skipping %s: already exists (no terminal to ask)\n", f.NewPath)
		return event.Skip
	}
	return promptExists(p.in, p.errW, f.NewPath, &p.policy)
}

func (p *plainPresenter) Summary(snap stats.Snapshot) string {
	return snap.Summary()
}

func displayPath(f event.Facts) string {
	if f.NewPath != "" {
		return f.NewPath
	}
	return f.OrigPath
}
