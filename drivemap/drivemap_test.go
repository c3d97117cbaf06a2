package drivemap

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dosk/dos"
)

func newMountedC(t *testing.T) *Map {
	t.Helper()
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("/Game/Data", 0o755))
	require.NoError(t, afero.WriteFile(fs, "/Game/Data/Hello.txt", []byte("hi"), 0o644))

	m := New()
	m.Mount('C', fs)
	return m
}

func TestResolveRecoversHostCase(t *testing.T) {
	m := newMountedC(t)
	fs, hostPath, res := m.Resolve(`C:\GAME\DATA\HELLO.TXT`, false)
	require.True(t, res.OK())
	assert.Equal(t, "/Game/Data/Hello.txt", hostPath)

	ok, err := afero.Exists(fs, hostPath)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestResolveMissingFileNotFound(t *testing.T) {
	m := newMountedC(t)
	_, _, res := m.Resolve(`C:\GAME\DATA\NOPE.TXT`, false)
	assert.Equal(t, dos.FileNotFound, res.Code)
}

func TestResolveMissingParentPathNotFound(t *testing.T) {
	m := newMountedC(t)
	_, _, res := m.Resolve(`C:\NOPE\DATA.TXT`, false)
	assert.Equal(t, dos.PathNotFound, res.Code)
}

func TestResolveForCreationAppendsVerbatim(t *testing.T) {
	m := newMountedC(t)
	_, hostPath, res := m.Resolve(`C:\GAME\DATA\NEW.TXT`, true)
	require.True(t, res.OK())
	assert.Equal(t, "/Game/Data/NEW.TXT", hostPath)
}

func TestUnmountedDriveIsInvalid(t *testing.T) {
	m := newMountedC(t)
	_, _, res := m.Resolve(`D:\X.TXT`, false)
	assert.Equal(t, dos.InvalidDrive, res.Code)
}

func TestSetCurrentDrive(t *testing.T) {
	m := newMountedC(t)
	assert.True(t, m.SetCurrent('C').OK())
	assert.Equal(t, byte('C'), m.Current())
	assert.False(t, m.SetCurrent('Q').OK())
}

func TestScratchZHasAutoexec(t *testing.T) {
	fs := NewScratchZ()
	data, err := afero.ReadFile(fs, "/AUTOEXEC.BAT")
	require.NoError(t, err)
	assert.Contains(t, string(data), "@ECHO OFF")
	assert.Contains(t, string(data), `SET PATH=Z:\;C:\`)
}
