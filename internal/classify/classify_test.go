package classify

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"appleport/internal/applesingle"
)

func allRules() Options {
	return Options{UseADF: true, UseAS: true, UseNAPS: true}
}

func writeDouble(t *testing.T, path string, info applesingle.FileInfo, rsrc []byte) {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, applesingle.WriteDouble(&buf, info, rsrc))
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
}

func classifyDir(t *testing.T, opts Options, paths ...string) []*Record {
	t.Helper()
	c := New(opts)
	require.NoError(t, c.AddPaths(paths))
	return c.Records()
}

func TestPlainFallback(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "readme.txt")
	require.NoError(t, os.WriteFile(path, []byte("hi"), 0o644))

	recs := classifyDir(t, allRules(), path)
	require.Len(t, recs, 1)
	rec := recs[0]
	assert.Equal(t, "readme.txt", rec.Attrs.Name)
	require.NotNil(t, rec.Data)
	assert.Equal(t, Plain, rec.Data.Kind)
	assert.Equal(t, int64(2), rec.Data.Len)
	assert.Nil(t, rec.Rsrc)
	assert.False(t, rec.FromHeader)
	assert.False(t, rec.Attrs.ModWhen.IsZero())
}

func TestAppleDoubleCoalesces(t *testing.T) {
	dir := t.TempDir()
	mod := time.Date(1992, 3, 1, 9, 30, 0, 0, time.UTC)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "doc"), []byte("data fork"), 0o644))
	writeDouble(t, filepath.Join(dir, "._doc"),
		applesingle.FileInfo{ProType: 0x04, ProAux: 0x1234, ModWhen: mod},
		[]byte("resource"))

	recs := classifyDir(t, allRules(), dir)
	// Header file and data file coalesce into one record.
	require.Len(t, recs, 1)
	rec := recs[0]

	assert.Equal(t, "doc", rec.Attrs.Name)
	assert.True(t, rec.FromHeader)
	assert.Equal(t, byte(0x04), rec.Attrs.ProType)
	assert.Equal(t, uint16(0x1234), rec.Attrs.ProAux)
	assert.True(t, mod.Equal(rec.Attrs.ModWhen))

	require.NotNil(t, rec.Data)
	assert.Equal(t, Plain, rec.Data.Kind)
	require.NotNil(t, rec.Rsrc)
	assert.Equal(t, AppleDouble, rec.Rsrc.Kind)
	assert.Equal(t, int64(len("resource")), rec.Rsrc.Len)
}

func TestAppleDoubleDeclaredLengthsMatch(t *testing.T) {
	dir := t.TempDir()
	rsrc := bytes.Repeat([]byte{0x42}, 517)
	writeDouble(t, filepath.Join(dir, "._orphan"),
		applesingle.FileInfo{HFSType: 0x464f4e54, HFSCreator: 0x464f4e44}, rsrc)

	recs := classifyDir(t, allRules(), filepath.Join(dir, "._orphan"))
	require.Len(t, recs, 1)
	rec := recs[0]
	require.NotNil(t, rec.Rsrc)
	assert.Equal(t, int64(517), rec.Rsrc.Len)
	assert.Equal(t, uint32(0x464f4e54), rec.Attrs.HFSType)
	assert.Equal(t, uint32(0x464f4e44), rec.Attrs.HFSCreator)
	assert.Nil(t, rec.Data)
}

func TestADFPrefixWithoutMagicFallsThrough(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "._notadouble")
	require.NoError(t, os.WriteFile(path, []byte("just text, no magic here"), 0o644))

	recs := classifyDir(t, allRules(), path)
	require.Len(t, recs, 1)
	// Fell through to the plain rule, keeping the literal name.
	assert.Equal(t, "._notadouble", recs[0].Attrs.Name)
	assert.Equal(t, Plain, recs[0].Data.Kind)
	assert.False(t, recs[0].FromHeader)
}

func TestAppleSinglePrefersStoredName(t *testing.T) {
	dir := t.TempDir()
	var buf bytes.Buffer
	require.NoError(t, applesingle.WriteSingle(&buf,
		applesingle.FileInfo{RealName: "Real Name", ProType: 0x06},
		[]byte("D"), []byte("R")))
	path := filepath.Join(dir, "host-name.as")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))

	recs := classifyDir(t, allRules(), path)
	require.Len(t, recs, 1)
	rec := recs[0]
	assert.Equal(t, "Real Name", rec.Attrs.Name)
	require.NotNil(t, rec.Data)
	require.NotNil(t, rec.Rsrc)
	assert.Equal(t, AppleSingle, rec.Data.Kind)
	assert.Equal(t, AppleSingle, rec.Rsrc.Kind)
}

func TestAppleSingleFallsBackToStrippedHostName(t *testing.T) {
	dir := t.TempDir()
	var buf bytes.Buffer
	require.NoError(t, applesingle.WriteSingle(&buf,
		applesingle.FileInfo{ProType: 0x06}, []byte("D"), nil))
	path := filepath.Join(dir, "prog.AS")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))

	recs := classifyDir(t, allRules(), path)
	require.Len(t, recs, 1)
	assert.Equal(t, "prog", recs[0].Attrs.Name)
}

func TestNAPSRoundTrip(t *testing.T) {
	dir := t.TempDir()
	data := filepath.Join(dir, "game#062000")
	rsrc := filepath.Join(dir, "game#062000r")
	require.NoError(t, os.WriteFile(data, []byte("code"), 0o644))
	require.NoError(t, os.WriteFile(rsrc, []byte("res"), 0o644))

	recs := classifyDir(t, allRules(), dir)
	require.Len(t, recs, 1)
	rec := recs[0]
	assert.Equal(t, "game", rec.Attrs.Name)
	assert.Equal(t, byte(0x06), rec.Attrs.ProType)
	assert.Equal(t, uint16(0x2000), rec.Attrs.ProAux)
	require.NotNil(t, rec.Data)
	require.NotNil(t, rec.Rsrc)
	assert.Equal(t, data, rec.Data.Path)
	assert.Equal(t, rsrc, rec.Rsrc.Path)
}

func TestNAPSDiskImageSkipped(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "boot#060000i")
	require.NoError(t, os.WriteFile(path, []byte("img"), 0o644))

	recs := classifyDir(t, allRules(), path)
	assert.Empty(t, recs)
}

func TestMissingExplicitPathAborts(t *testing.T) {
	c := New(allRules())
	err := c.AddPaths([]string{filepath.Join(t.TempDir(), "nope")})
	require.Error(t, err)
}

func TestImportOverridesEverything(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tagged#062000r")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	opts := allRules()
	opts.Import = passthroughConverter{}
	recs := classifyDir(t, opts, path)
	require.Len(t, recs, 1)
	// The NAPS tag is ignored; the file is raw import input.
	assert.Equal(t, "tagged#062000r", recs[0].Attrs.Name)
	assert.Equal(t, Import, recs[0].Data.Kind)
	assert.Nil(t, recs[0].Rsrc)
}

func TestCompanionProbeFindsUnlistedHeader(t *testing.T) {
	dir := t.TempDir()
	plain := filepath.Join(dir, "doc")
	require.NoError(t, os.WriteFile(plain, []byte("data"), 0o644))
	writeDouble(t, filepath.Join(dir, "._doc"),
		applesingle.FileInfo{ProType: 0x04}, []byte("rsrc"))

	opts := allRules()
	opts.ProbeCompanions = true
	// List only the plain file; the companion is discovered by the probe.
	recs := classifyDir(t, opts, plain)
	require.Len(t, recs, 1)
	rec := recs[0]
	assert.True(t, rec.FromHeader)
	assert.Equal(t, byte(0x04), rec.Attrs.ProType)
	require.NotNil(t, rec.Rsrc)
	assert.Equal(t, AppleDouble, rec.Rsrc.Kind)
}

func TestLaterForkSourceWins(t *testing.T) {
	dir := t.TempDir()
	// Two NAPS files decoding to the same record and fork.
	first := filepath.Join(dir, "app#060000")
	second := filepath.Join(dir, "app#062000.bin")
	require.NoError(t, os.WriteFile(first, []byte("one"), 0o644))
	require.NoError(t, os.WriteFile(second, []byte("three"), 0o644))

	recs := classifyDir(t, allRules(), dir)
	require.Len(t, recs, 1)
	rec := recs[0]
	require.NotNil(t, rec.Data)
	assert.Equal(t, second, rec.Data.Path)
	assert.Equal(t, int64(5), rec.Data.Len)
}

func TestDirectoriesAreZeroForkRecords(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "Sub")
	require.NoError(t, os.Mkdir(sub, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(sub, "f"), []byte("x"), 0o644))

	recs := classifyDir(t, allRules(), dir)
	require.Len(t, recs, 2) // Sub and Sub/f; the listed root is the boundary
	assert.True(t, recs[0].Attrs.IsDir)
	assert.Nil(t, recs[0].Data)
	assert.Equal(t, "", recs[0].StorageDir)

	file := recs[1]
	require.NotNil(t, file.Data)
	assert.Equal(t, "Sub", file.StorageDir)
}

type passthroughConverter struct{}

func (passthroughConverter) Name() string { return "passthrough" }

func (passthroughConverter) Convert(dst io.Writer, src io.Reader) error {
	_, err := io.Copy(dst, src)
	return err
}
