package fcb

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dosk/codepage"
	"dosk/memview"
)

func TestParseFcbPlainName(t *testing.T) {
	mem := memview.New(1 << 16)
	r := ParseFCB(mem, 0, "readme.txt", 0x100)
	assert.False(t, r.HadWildcard)
	assert.False(t, r.InvalidDrive)
	assert.EqualValues(t, 0, mem.ReadU8(0x100)) // default drive
	assert.Equal(t, []byte("README  "), mem.ReadBytes(0x101, 8))
	assert.Equal(t, []byte("TXT"), mem.ReadBytes(0x109, 3))
}

func TestParseFcbDriveLetter(t *testing.T) {
	mem := memview.New(1 << 16)
	ParseFCB(mem, 0, "a:game.dat", 0x100)
	assert.EqualValues(t, 1, mem.ReadU8(0x100))

	r := ParseFCB(mem, 0, "!:game.dat", 0x200)
	assert.True(t, r.InvalidDrive)
}

func TestParseFcbStarPadsWithQuestionMarks(t *testing.T) {
	mem := memview.New(1 << 16)
	r := ParseFCB(mem, 0, "AB*.T*", 0x100)
	assert.True(t, r.HadWildcard)
	assert.Equal(t, []byte("AB??????"), mem.ReadBytes(0x101, 8))
	assert.Equal(t, []byte("T??"), mem.ReadBytes(0x109, 3))
}

func TestParseFcbPreservesFieldsOnRequest(t *testing.T) {
	mem := memview.New(1 << 16)
	ParseFCB(mem, 0, "b:old.bin", 0x100)
	ParseFCB(mem, CtrlPreserveDrive|CtrlPreserveExt, "new.txt", 0x100)

	assert.EqualValues(t, 2, mem.ReadU8(0x100)) // drive kept
	assert.Equal(t, []byte("NEW     "), mem.ReadBytes(0x101, 8))
	assert.Equal(t, []byte("BIN"), mem.ReadBytes(0x109, 3)) // extension kept
}

func TestParseFcbSkipsLeadingSeparators(t *testing.T) {
	mem := memview.New(1 << 16)
	r := ParseFCB(mem, CtrlSkipSeparators, " ;=run.com", 0x100)
	assert.False(t, r.HadWildcard)
	assert.Equal(t, []byte("RUN     "), mem.ReadBytes(0x101, 8))
}

func TestFindStateWalksMatchesLazily(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/A.TXT", []byte("a"), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/B.TXT", []byte("b"), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/C.DOC", []byte("c"), 0o644))

	st, err := NewFindState(fs, "", "/", "*.TXT", 0)
	require.NoError(t, err)

	var names []string
	for {
		name, ok := st.Next()
		if !ok {
			break
		}
		names = append(names, name)
	}
	assert.ElementsMatch(t, []string{"A.TXT", "B.TXT"}, names)
}

func TestDtaEntryRoundTrip(t *testing.T) {
	mem := memview.New(1 << 16)
	codec := codepage.New()

	WriteEntry(mem, codec, 0x500, 0x20, 0x1234, 0x5678, 42, "A.TXT")
	e := ReadEntry(mem, codec, 0x500)

	assert.EqualValues(t, 0x20, e.Attr)
	assert.EqualValues(t, 0x1234, e.Date)
	assert.EqualValues(t, 0x5678, e.Time)
	assert.EqualValues(t, 42, e.FileSize)
	assert.Equal(t, "A.TXT", e.Name)
}
