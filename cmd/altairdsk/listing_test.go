package main

import (
	"bytes"
	"strings"
	"testing"

	c "github.com/cpmtools/altairdisk/file_systems/common"
	"github.com/cpmtools/altairdisk/file_systems/cpm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrintDirectory(t *testing.T) {
	infos := []cpm.FileInfo{
		{Name: "ASM", Type: "COM", User: 0, Attributes: "W ", Size: 24 * 137, KiloBytes: 4},
		{Name: "README", Type: "", User: 3, Attributes: "RS", Size: 137, KiloBytes: 2},
	}
	summary := cpm.Summary{Files: 2, UsedKB: 6, TotalKB: 296, FreeEntries: 62, FreeKB: 290}

	var output bytes.Buffer
	printDirectory(&output, infos, summary)

	expected := "Name     Ext   Length Used U At\n" +
		"ASM      COM    3288B   4K 0 W \n" +
		"README" + strings.Repeat(" ", 11) + "137B   2K 3 RS\n" +
		"2 file(s), occupying 6K of 296K total capacity\n" +
		"62 directory entries and 290K bytes remain\n"
	assert.Equal(t, expected, output.String())
}

func TestPrintRawDirectory(t *testing.T) {
	entries := []cpm.RawEntry{
		{
			Index:          5,
			User:           1,
			Name:           "PIP     ",
			Type:           "COM",
			Attributes:     "W ",
			Extent:         0,
			Records:        58,
			AllocationList: "2,3,4,5,0,0,0,0",
		},
	}
	free := make([]c.AllocationUnit, 0, 20)
	for i := 6; i < 26; i++ {
		free = append(free, c.AllocationUnit(i))
	}

	var output bytes.Buffer
	printRawDirectory(&output, entries, free)

	lines := strings.Split(output.String(), "\n")
	require.GreaterOrEqual(t, len(lines), 5)
	assert.Equal(t, "IDX:U:FILENAME:TYP:AT:EXT:REC:[ALLOCATIONS]", lines[0])
	assert.Equal(t, "005:1:PIP     :COM:W :000:058:[2,3,4,5,0,0,0,0]", lines[1])
	assert.Equal(t, "FREE ALLOCATIONS:", lines[2])
	assert.Equal(t, "006 007 008 009 010 011 012 013 014 015 016 017 018 019 020 021 ", lines[3])
	assert.Equal(t, "022 023 024 025 ", lines[4])
}

func TestPrintRawDirectoryCSV(t *testing.T) {
	entries := []cpm.RawEntry{
		{Index: 0, User: 0, Name: "ASM     ", Type: "COM", Attributes: "W ", Records: 64,
			AllocationList: "2,3,4,5"},
	}

	var output bytes.Buffer
	require.NoError(t, printRawDirectoryCSV(&output, entries))

	lines := strings.Split(strings.TrimSpace(output.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "index,user,name,type,attributes,extent,records,allocations", lines[0])
	assert.Equal(t, `0,0,ASM,COM,W ,0,64,"2,3,4,5"`, lines[1])
}
