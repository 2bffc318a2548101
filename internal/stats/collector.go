// Package stats tracks transfer counters for progress reporting and the
// end-of-run summary.
package stats

import (
	"fmt"
	"sync/atomic"
	"time"
)

// Collector accumulates counters for one transfer batch. The engine is
// single-threaded, but presenters may read from another goroutine, so the
// counters are atomic.
type Collector struct {
	filesWritten atomic.Int64
	dirsCreated  atomic.Int64
	forksWritten atomic.Int64
	bytesWritten atomic.Int64
	skipped      atomic.Int64
	failed       atomic.Int64
	deleted      atomic.Int64
	startTime    time.Time
}

// NewCollector creates a Collector with the start time set to now.
func NewCollector() *Collector {
	return &Collector{startTime: time.Now()}
}

func (c *Collector) AddFileWritten()        { c.filesWritten.Add(1) }
func (c *Collector) AddDirCreated()         { c.dirsCreated.Add(1) }
func (c *Collector) AddForkWritten()        { c.forksWritten.Add(1) }
func (c *Collector) AddBytesWritten(n int64) { c.bytesWritten.Add(n) }
func (c *Collector) AddSkipped()            { c.skipped.Add(1) }
func (c *Collector) AddFailed()             { c.failed.Add(1) }
func (c *Collector) AddDeleted()            { c.deleted.Add(1) }

// Snapshot is a point-in-time read of all counters.
type Snapshot struct {
	FilesWritten int64
	DirsCreated  int64
	ForksWritten int64
	BytesWritten int64
	Skipped      int64
	Failed       int64
	Deleted      int64
	Elapsed      time.Duration
}

// Snapshot returns a consistent view of the counters.
func (c *Collector) Snapshot() Snapshot {
	return Snapshot{
		FilesWritten: c.filesWritten.Load(),
		DirsCreated:  c.dirsCreated.Load(),
		ForksWritten: c.forksWritten.Load(),
		BytesWritten: c.bytesWritten.Load(),
		Skipped:      c.skipped.Load(),
		Failed:       c.failed.Load(),
		Deleted:      c.deleted.Load(),
		Elapsed:      time.Since(c.startTime),
	}
}

// Summary renders a one-line human-readable account of the batch.
func (s Snapshot) Summary() string {
	out := fmt.Sprintf("%d files (%d forks, %s) in %s",
		s.FilesWritten, s.ForksWritten, formatBytes(s.BytesWritten),
		s.Elapsed.Round(time.Millisecond))
	if s.Skipped > 0 {
		out += fmt.Sprintf(", %d skipped", s.Skipped)
	}
	if s.Failed > 0 {
		out += fmt.Sprintf(", %d failed", s.Failed)
	}
	if s.Deleted > 0 {
		out += fmt.Sprintf(", %d deleted", s.Deleted)
	}
	return out
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGT"[exp])
}
