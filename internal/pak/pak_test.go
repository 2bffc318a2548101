package pak

import (
	"bytes"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"appleport/internal/medium"
)

func fill(t *testing.T, arc *medium.MemArchive, name string, data, rsrc []byte, attrs medium.Attributes) {
	t.Helper()
	attrs.Name = name
	rec, err := arc.CreateRecord(attrs)
	require.NoError(t, err)
	for fork, b := range map[medium.Fork][]byte{medium.DataFork: data, medium.RsrcFork: rsrc} {
		if b == nil {
			continue
		}
		w, err := arc.CreateFork(rec, fork, medium.CompressNone)
		require.NoError(t, err)
		_, err = w.Write(b)
		require.NoError(t, err)
		require.NoError(t, w.Close())
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	src := New(Forked)
	mod := time.Date(1993, 11, 2, 3, 4, 5, 0, time.UTC)
	fill(t, src, "Games/Moria", []byte("data bytes"), []byte("rsrc bytes"), medium.Attributes{
		ProType: 0x06, ProAux: 0x2000, Access: medium.AccessLocked, ModWhen: mod,
	})
	fill(t, src, "Games/ReadMe", []byte("plain"), nil, medium.Attributes{ProType: 0x04})

	var buf bytes.Buffer
	require.NoError(t, Save(&buf, src, MethodStore))

	got, err := Load(&buf)
	require.NoError(t, err)
	require.Len(t, got.Entries(), 2)

	rec, ok := got.FindEntry("Games/Moria")
	require.True(t, ok)
	a := rec.Attributes()
	assert.Equal(t, byte(0x06), a.ProType)
	assert.Equal(t, uint16(0x2000), a.ProAux)
	assert.True(t, a.Locked())
	assert.Equal(t, mod, a.ModWhen)

	r, err := got.OpenFork(rec, medium.RsrcFork)
	require.NoError(t, err)
	b, err := io.ReadAll(r)
	require.NoError(t, err)
	r.Close()
	assert.Equal(t, []byte("rsrc bytes"), b)
}

func TestLZ4Method(t *testing.T) {
	src := New(Forked)
	fill(t, src, "big", bytes.Repeat([]byte("squeeze me "), 500), nil, medium.Attributes{})

	var plain, packed bytes.Buffer
	require.NoError(t, Save(&plain, src, MethodStore))
	require.NoError(t, Save(&packed, src, MethodLZ4))
	assert.Less(t, packed.Len(), plain.Len())

	got, err := Load(&packed)
	require.NoError(t, err)
	rec, ok := got.FindEntry("big")
	require.True(t, ok)
	r, err := got.OpenFork(rec, medium.DataFork)
	require.NoError(t, err)
	b, err := io.ReadAll(r)
	require.NoError(t, err)
	r.Close()
	assert.Equal(t, bytes.Repeat([]byte("squeeze me "), 500), b)
}

func TestFlatFlavor(t *testing.T) {
	flat := New(Flat)
	chars := flat.Characteristics()
	assert.False(t, chars.HasRsrcForks)
	assert.True(t, chars.DualMeta)

	fill(t, flat, "doc", []byte("data"), nil, medium.Attributes{})
	var buf bytes.Buffer
	require.NoError(t, Save(&buf, flat, MethodStore))

	got, err := Load(&buf)
	require.NoError(t, err)
	assert.True(t, got.Characteristics().DualMeta, "flavor survives the round trip")
}

func TestLoadRejectsJunk(t *testing.T) {
	_, err := Load(bytes.NewReader([]byte("PK\x03\x04 not a pak at all")))
	assert.ErrorIs(t, err, ErrNotPak)
}

func TestSaveFileAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.pak")

	src := New(Forked)
	fill(t, src, "one", []byte("1"), nil, medium.Attributes{})
	require.NoError(t, SaveFile(path, src, MethodStore))

	got, err := LoadFile(path)
	require.NoError(t, err)
	assert.Len(t, got.Entries(), 1)
}
