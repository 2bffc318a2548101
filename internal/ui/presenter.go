// Package ui turns engine callbacks into terminal output and turns name
// conflicts into answers, either from a fixed policy or by prompting a
// person at a real terminal.
package ui

import (
	"io"

	"appleport/internal/event"
	"appleport/internal/stats"
)

// Presenter answers engine callbacks and renders output.
type Presenter interface {
	// Callback returns the callback handed to the engine.
	Callback() event.Callback
	// Summary returns the final summary line, empty to suppress it.
	Summary(stats.Snapshot) string
}

// OverwritePolicy decides FileNameExists conflicts that are not asked
// interactively.
type OverwritePolicy int

const (
	OverwriteAsk OverwritePolicy = iota
	OverwriteAlways
	OverwriteNever
)

// ParseOverwritePolicy converts a flag value to a policy.
func ParseOverwritePolicy(s string) (OverwritePolicy, bool) {
	switch s {
	case "ask":
		return OverwriteAsk, true
	case "always":
		return OverwriteAlways, true
	case "never":
		return OverwriteNever, true
	}
	return OverwriteAsk, false
}

// Config configures a Presenter.
type Config struct {
	Writer    io.Writer
	ErrWriter io.Writer
	Input     io.Reader // conflict prompt source, usually stdin
	IsTTY     bool      // Input is a terminal, prompting is possible
	Quiet     bool
	Verbose   bool
	Overwrite OverwritePolicy
}

// NewPresenter creates the appropriate presenter based on configuration.
//
//nolint:ireturn // factory function returns interface by design
func NewPresenter(cfg Config) Presenter {
	if cfg.Quiet {
		return &quietPresenter{policy: cfg.Overwrite}
	}
	return &plainPresenter{
		w:       cfg.Writer,
		errW:    cfg.ErrWriter,
		in:      cfg.Input,
		isTTY:   cfg.IsTTY,
		verbose: cfg.Verbose,
		policy:  cfg.Overwrite,
	}
}
