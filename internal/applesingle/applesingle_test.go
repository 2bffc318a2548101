package applesingle

import (
	"bytes"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parseBytes(t *testing.T, b []byte) *Container {
	t.Helper()
	c, err := Parse(bytes.NewReader(b), int64(len(b)))
	require.NoError(t, err)
	return c
}

func TestRejectsForeignBytes(t *testing.T) {
	_, err := Parse(bytes.NewReader([]byte("not a container at all, honest")), 30)
	assert.ErrorIs(t, err, ErrNotContainer)

	_, err = Parse(bytes.NewReader([]byte{0, 5}), 2)
	assert.ErrorIs(t, err, ErrNotContainer)
}

func TestSingleRoundTrip(t *testing.T) {
	mod := time.Date(1987, 6, 15, 12, 0, 0, 0, time.UTC)
	info := FileInfo{
		RealName:   "My Document",
		ProType:    0x04,
		ProAux:     0x0000,
		Access:     0xC3,
		HFSType:    0x54455854,
		HFSCreator: 0x74747874,
		ModWhen:    mod,
	}
	data := []byte("data fork payload")
	rsrc := []byte("rsrc")

	var buf bytes.Buffer
	require.NoError(t, WriteSingle(&buf, info, data, rsrc))

	c := parseBytes(t, buf.Bytes())
	assert.False(t, c.IsDouble)
	assert.Equal(t, "My Document", c.RealName)
	assert.Equal(t, byte(0x04), c.ProType)
	assert.Equal(t, byte(0xC3), c.Access)
	assert.Equal(t, uint32(0x54455854), c.HFSType)
	assert.True(t, c.HasDates)
	assert.True(t, mod.Equal(c.ModWhen))

	require.True(t, c.HasData)
	got, err := io.ReadAll(c.DataReader(bytes.NewReader(buf.Bytes())))
	require.NoError(t, err)
	assert.Equal(t, data, got)

	require.True(t, c.HasRsrc)
	assert.Equal(t, int64(len(rsrc)), c.RsrcLen)
}

func TestDoubleHeaderDeclaredValues(t *testing.T) {
	rsrc := bytes.Repeat([]byte{0xAB}, 300)
	var buf bytes.Buffer
	require.NoError(t, WriteDouble(&buf, FileInfo{ProType: 0x06, ProAux: 0x2000}, rsrc))

	c := parseBytes(t, buf.Bytes())
	assert.True(t, c.IsDouble)
	assert.False(t, c.HasData) // data fork rides outside the container
	require.True(t, c.HasRsrc)
	assert.Equal(t, int64(300), c.RsrcLen)
	assert.Equal(t, byte(0x06), c.ProType)
	assert.Equal(t, uint16(0x2000), c.ProAux)

	got, err := io.ReadAll(c.RsrcReader(bytes.NewReader(buf.Bytes())))
	require.NoError(t, err)
	assert.Equal(t, rsrc, got)
}

func TestNoDate(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteDouble(&buf, FileInfo{ProType: 0x06}, nil))

	c := parseBytes(t, buf.Bytes())
	assert.False(t, c.HasDates)
	assert.True(t, c.ModWhen.IsZero())
}

func TestTruncatedExtentFails(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteDouble(&buf, FileInfo{ProType: 0x06}, []byte("abcdef")))

	b := buf.Bytes()[:buf.Len()-3]
	_, err := Parse(bytes.NewReader(b), int64(len(b)))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotContainer)
}
