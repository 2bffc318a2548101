package ui

import (
	"appleport/internal/event"
	"appleport/internal/stats"
)

// quietPresenter produces no output. Conflicts still resolve through the
// policy; ask degrades to skip because there is nobody to ask.
type quietPresenter struct {
	policy OverwritePolicy
}

func (p *quietPresenter) Callback() event.Callback {
	return func(f event.Facts) event.Result {
		if f.Reason == event.FileNameExists && p.policy == OverwriteAlways {
			return event.Overwrite
		}
		if f.Reason == event.FileNameExists || f.Reason == event.PathTooLong {
			return event.Skip
		}
		return event.Proceed
	}
}

func (p *quietPresenter) Summary(stats.Snapshot) string { return "" }
