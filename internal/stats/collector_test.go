package stats

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCollectorCounts(t *testing.T) {
	c := NewCollector()
	c.AddFileWritten()
	c.AddFileWritten()
	c.AddDirCreated()
	c.AddForkWritten()
	c.AddBytesWritten(1536)
	c.AddSkipped()
	c.AddFailed()
	c.AddDeleted()

	snap := c.Snapshot()
	assert.Equal(t, int64(2), snap.FilesWritten)
	assert.Equal(t, int64(1), snap.DirsCreated)
	assert.Equal(t, int64(1), snap.ForksWritten)
	assert.Equal(t, int64(1536), snap.BytesWritten)
	assert.Equal(t, int64(1), snap.Skipped)
	assert.Equal(t, int64(1), snap.Failed)
	assert.Equal(t, int64(1), snap.Deleted)
	assert.NotEmpty(t, snap.Summary())
}

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "512 B", formatBytes(512))
	assert.Equal(t, "1.5 KiB", formatBytes(1536))
	assert.Equal(t, "2.0 MiB", formatBytes(2<<20))
}
