package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"appleport/internal/event"
	"appleport/internal/medium"
	"appleport/internal/stats"
)

// Delete removes entries from an endpoint, deepest paths first so
// directories are already empty when their turn comes. The callback sees
// the same progress and cancellation protocol as Execute.
func Delete(ctx context.Context, cfg Config, entries []medium.Entry) error {
	if cfg.Dst.IsZero() {
		return errors.New("no destination endpoint")
	}
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	st := cfg.Stats
	if st == nil {
		st = stats.NewCollector()
	}
	chars := cfg.Dst.Characteristics()
	if chars.ReadOnly {
		return fmt.Errorf("destination %s is read-only", chars.Name)
	}

	ordered := make([]medium.Entry, len(entries))
	copy(ordered, entries)
	sep := string(chars.DirSep)
	sort.SliceStable(ordered, func(i, j int) bool {
		di := strings.Count(ordered[i].Pathname(), sep)
		dj := strings.Count(ordered[j].Pathname(), sep)
		if di != dj {
			return di > dj
		}
		return ordered[i].Pathname() > ordered[j].Pathname()
	})

	for n, e := range ordered {
		if ctx.Err() != nil {
			return ErrCancelled
		}
		facts := event.Facts{
			OrigPath: e.Pathname(),
			DirSep:   chars.DirSep,
		}
		facts.Reason = event.QueryCancel
		if event.Ask(cfg.Callback, facts) == event.Cancel {
			return ErrCancelled
		}
		facts.Reason = event.Progress
		facts.Percent = n * 100 / len(ordered)
		if event.Ask(cfg.Callback, facts) == event.Cancel {
			return ErrCancelled
		}

		var err error
		if cfg.Dst.IsArchive() {
			err = cfg.Dst.Archive().DeleteRecord(e)
		} else {
			err = cfg.Dst.Filesystem().Delete(e)
		}
		if err != nil {
			st.AddFailed()
			event.Ask(cfg.Callback, event.Facts{
				Reason:   event.Failure,
				OrigPath: e.Pathname(),
				DirSep:   chars.DirSep,
				Message:  err.Error(),
			})
			return fmt.Errorf("delete %s: %w", e.Pathname(), err)
		}
		st.AddDeleted()
		log.Debug("deleted", "path", e.Pathname())
	}
	return nil
}
