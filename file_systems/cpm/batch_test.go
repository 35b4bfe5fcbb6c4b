package cpm

import (
	"bytes"
	"fmt"
	"io"
	"testing"

	"github.com/cpmtools/altairdisk/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type closingBuffer struct {
	bytes.Buffer
	closed bool
}

func (buffer *closingBuffer) Close() error {
	buffer.closed = true
	return nil
}

// hostFiles is an in-memory stand-in for a directory on the host.
type hostFiles map[string]*closingBuffer

func (files hostFiles) create(hostName string) (io.WriteCloser, error) {
	if hostName == "READONLY.TXT" {
		return nil, fmt.Errorf("permission denied")
	}
	buffer := &closingBuffer{}
	files[hostName] = buffer
	return buffer, nil
}

func (files hostFiles) open(hostPath string) (io.ReadCloser, error) {
	buffer, ok := files[hostPath]
	if !ok {
		return nil, fmt.Errorf("%s: no such file", hostPath)
	}
	return io.NopCloser(bytes.NewReader(buffer.Bytes())), nil
}

func hostFile(contents string) *closingBuffer {
	buffer := &closingBuffer{}
	buffer.WriteString(contents)
	return buffer
}

func TestGetFiles(t *testing.T) {
	driver := newFormattedDriver(t, "FDD_TAR")
	writeBytes(t, driver, "ASM.COM", 0, []byte{0xC3, 1, 2})
	writeBytes(t, driver, "PIP.COM", 0, []byte{0xC3, 3, 4})
	writeBytes(t, driver, "README.TXT", 0, []byte("hello"))

	host := hostFiles{}
	err := driver.GetFiles([]string{"*.COM", "*.TXT"}, AllUsers, ModeAuto, host.create)
	require.NoError(t, err)

	require.Len(t, host, 3)
	assert.Equal(t, "hello", host["README.TXT"].String())
	assert.EqualValues(t, 128, host["ASM.COM"].Len())
	for name, buffer := range host {
		assert.True(t, buffer.closed, "%s wasn't closed", name)
	}
}

func TestGetFiles__ContinuesAfterErrors(t *testing.T) {
	driver := newFormattedDriver(t, "FDD_TAR")
	writeBytes(t, driver, "READONLY.TXT", 0, []byte("locked"))
	writeBytes(t, driver, "OPEN.TXT", 0, []byte("fine"))

	host := hostFiles{}
	err := driver.GetFiles(
		[]string{"NOPE.*", "READONLY.TXT", "OPEN.TXT"}, 0, ModeText, host.create)

	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrNotFound)
	assert.ErrorIs(t, err, errors.ErrNotPermitted)
	assert.Equal(t, "fine", host["OPEN.TXT"].String(), "batch stopped at the first error")
}

func TestGetFiles__UserSuffix(t *testing.T) {
	driver := newFormattedDriver(t, "FDD_TAR")
	writeBytes(t, driver, "STAT.COM", 0, []byte("zero"))
	writeBytes(t, driver, "STAT.COM", 3, []byte("three"))
	writeBytes(t, driver, "ONLY.COM", 3, []byte("only"))

	host := hostFiles{}
	require.NoError(t, driver.GetFiles([]string{"*.*"}, AllUsers, ModeText, host.create))

	assert.Equal(t, "zero", host["STAT.COM"].String())
	assert.Equal(t, "three", host["STAT.COM_3"].String())
	assert.Equal(t, "only", host["ONLY.COM"].String())
}

func TestPutFiles(t *testing.T) {
	driver := newFormattedDriver(t, "FDD_8IN")
	host := hostFiles{
		"/tmp/src/asm.com": hostFile("assembler"),
		"notes.txt":        hostFile("some notes"),
	}

	err := driver.PutFiles(
		[]string{"/tmp/src/asm.com", "missing.txt", "notes.txt"}, 2, host.open)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrNotFound)

	assert.Equal(t, []byte("assembler"), readBack(t, driver, "ASM.COM", 2, ModeText))
	assert.Equal(t, []byte("some notes"), readBack(t, driver, "NOTES.TXT", 2, ModeText))
}

func TestPutFiles__Exists(t *testing.T) {
	driver := newFormattedDriver(t, "FDD_8IN")
	writeBytes(t, driver, "ASM.COM", 0, []byte("old"))

	host := hostFiles{"asm.com": hostFile("new"), "pip.com": hostFile("pip")}
	err := driver.PutFiles([]string{"asm.com", "pip.com"}, 0, host.open)
	assert.ErrorIs(t, err, errors.ErrExists)

	assert.Equal(t, []byte("old"), readBack(t, driver, "ASM.COM", 0, ModeText))
	assert.Equal(t, []byte("pip"), readBack(t, driver, "PIP.COM", 0, ModeText))
}

func TestEraseFiles(t *testing.T) {
	driver := newFormattedDriver(t, "FDD_TAR")
	writeBytes(t, driver, "A.COM", 0, []byte("a"))
	writeBytes(t, driver, "B.COM", 0, []byte("b"))
	writeBytes(t, driver, "C.TXT", 0, []byte("c"))
	writeBytes(t, driver, "D.COM", 1, []byte("d"))

	err := driver.EraseFiles([]string{"*.COM", "*.BAK"}, 0)
	assert.ErrorIs(t, err, errors.ErrNotFound)

	files := driver.Files()
	require.Len(t, files, 2)
	assert.Equal(t, "C.TXT", files[0].FullName())
	assert.Equal(t, "D.COM", files[1].FullName())

	driver = remount(t, driver)
	assert.Len(t, driver.Files(), 2)
}
