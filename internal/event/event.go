// Package event defines the callback protocol between the transfer engine
// and its caller. The engine is synchronous: every callback is answered
// before the engine moves on, which makes the callback the caller's only
// channel for progress display, cancellation, and conflict resolution.
package event

import (
	"time"

	"appleport/internal/medium"
)

// Reason identifies why the engine is calling back.
type Reason int

const (
	Progress Reason = iota + 1
	QueryCancel
	Failure
	FileNameExists
	ResourceForkIgnored
	PathTooLong
)

var reasonNames = [...]string{
	Progress:            "Progress",
	QueryCancel:         "QueryCancel",
	Failure:             "Failure",
	FileNameExists:      "FileNameExists",
	ResourceForkIgnored: "ResourceForkIgnored",
	PathTooLong:         "PathTooLong",
}

func (r Reason) String() string {
	if r > 0 && int(r) < len(reasonNames) {
		return reasonNames[r]
	}
	return "Unknown"
}

// Result is the caller's answer to a callback.
type Result int

const (
	Proceed Result = iota + 1
	Skip
	Overwrite
	Cancel
)

var resultNames = [...]string{
	Proceed:   "Proceed",
	Skip:      "Skip",
	Overwrite: "Overwrite",
	Cancel:    "Cancel",
}

func (r Result) String() string {
	if r > 0 && int(r) < len(resultNames) {
		return resultNames[r]
	}
	return "Unknown"
}

// Facts carries everything the caller may want to show or act on. Which
// fields are meaningful depends on Reason.
type Facts struct {
	Reason   Reason
	OrigPath string // source-side pathname
	NewPath  string // destination-side pathname
	DirSep   byte   // separator used in NewPath
	ModWhen  time.Time
	Percent  int // 0-100, Progress only
	Part     medium.Fork
	Message  string // Failure and notice text
}

// Callback answers one engine question. Conflicts (FileNameExists,
// PathTooLong) expect Skip, Overwrite, or Cancel; Progress and the notices
// expect Proceed or Cancel; QueryCancel expects Proceed or Cancel.
type Callback func(Facts) Result

// Ask invokes cb if non-nil; a nil callback always proceeds.
func Ask(cb Callback, f Facts) Result {
	if cb == nil {
		return Proceed
	}
	return cb(f)
}
