package preserve

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMode(t *testing.T) {
	m, err := ParseMode("NAPS")
	require.NoError(t, err)
	assert.Equal(t, NAPS, m)

	_, err = ParseMode("zip")
	assert.Error(t, err)
}

func TestADFPrefix(t *testing.T) {
	assert.True(t, HasADFPrefix("._file"))
	assert.False(t, HasADFPrefix("file"))
	assert.False(t, HasADFPrefix("._")) // marker with no name is not a header file
	assert.Equal(t, "file", StripADFPrefix("._file"))
}

func TestASExtension(t *testing.T) {
	assert.True(t, HasASExtension("file.as"))
	assert.True(t, HasASExtension("FILE.AS"))
	assert.False(t, HasASExtension(".as"))
	assert.False(t, HasASExtension("file.txt"))
	assert.Equal(t, "file", StripASExtension("file.As"))
}

func TestMacZipNameRoundTrip(t *testing.T) {
	assert.Equal(t, "__MACOSX/dir/._file", MacZipName("dir/file", '/'))
	assert.Equal(t, "__MACOSX/._file", MacZipName("file", '/'))

	orig, ok := FromMacZipName("__MACOSX/dir/._file", '/')
	require.True(t, ok)
	assert.Equal(t, "dir/file", orig)

	orig, ok = FromMacZipName("__MACOSX/._file", '/')
	require.True(t, ok)
	assert.Equal(t, "file", orig)

	_, ok = FromMacZipName("dir/._file", '/')
	assert.False(t, ok)
	_, ok = FromMacZipName("__MACOSX/dir/file", '/')
	assert.False(t, ok)
}

func TestDecodeNAPSProDOS(t *testing.T) {
	tag, ok := DecodeNAPS("LETTER#042000")
	require.True(t, ok)
	assert.Equal(t, "LETTER", tag.BaseName)
	assert.Equal(t, byte(0x04), tag.ProType)
	assert.Equal(t, uint16(0x2000), tag.ProAux)
	assert.False(t, tag.IsHFS)
	assert.Equal(t, NAPSData, tag.Fork)
}

func TestDecodeNAPSForkLetters(t *testing.T) {
	tag, ok := DecodeNAPS("icon#069280r")
	require.True(t, ok)
	assert.Equal(t, NAPSRsrc, tag.Fork)

	tag, ok = DecodeNAPS("prog#ff2000d.sys")
	require.True(t, ok)
	assert.Equal(t, NAPSData, tag.Fork)
	assert.Equal(t, "prog", tag.BaseName)

	tag, ok = DecodeNAPS("disk#060000i")
	require.True(t, ok)
	assert.Equal(t, NAPSImage, tag.Fork)

	tag, ok = DecodeNAPS("odd#062000x")
	require.True(t, ok)
	assert.Equal(t, NAPSBad, tag.Fork)
}

func TestDecodeNAPSHFS(t *testing.T) {
	tag, ok := DecodeNAPS("doc#54455854744558540.txt")
	assert.False(t, ok) // 17 hex digits is not a tag

	tag, ok = DecodeNAPS("doc#5445585474455854.txt")
	require.True(t, ok)
	assert.True(t, tag.IsHFS)
	assert.Equal(t, uint32(0x54455854), tag.HFSType)
	assert.Equal(t, uint32(0x74455854), tag.HFSCreator)
	assert.Equal(t, "doc", tag.BaseName)
}

func TestDecodeNAPSRejects(t *testing.T) {
	for _, name := range []string{
		"plain",
		"short#0620",
		"trail#062000rr",
		"none#",
		"#062000", // no base name is still a tag
	} {
		_, ok := DecodeNAPS(name)
		if name == "#062000" {
			assert.True(t, ok, name)
		} else {
			assert.False(t, ok, name)
		}
	}
}

func TestEncodeNAPSRoundTrip(t *testing.T) {
	in := NAPSTag{ProType: 0x06, ProAux: 0x0800}
	name := EscapeNAPS("my/prog") + EncodeNAPS(in, NAPSData, false) + ConvenienceExt(in)
	assert.Equal(t, "my%2fprog#060800.bin", name)

	out, ok := DecodeNAPS(name)
	require.True(t, ok)
	assert.Equal(t, "my/prog", out.BaseName)
	assert.Equal(t, in.ProType, out.ProType)
	assert.Equal(t, in.ProAux, out.ProAux)
	assert.Equal(t, NAPSData, out.Fork)
}

func TestEncodeNAPSRsrc(t *testing.T) {
	in := NAPSTag{IsHFS: true, HFSType: 0x54455854, HFSCreator: 0x4b414854}
	suffix := EncodeNAPS(in, NAPSRsrc, false)
	assert.Equal(t, "#544558544b414854r", suffix)
}

func TestSubstituteIllegal(t *testing.T) {
	assert.Equal(t, "a_b_c", SubstituteIllegal("a/b:c"))
	assert.Equal(t, "plain", SubstituteIllegal("plain"))
}
