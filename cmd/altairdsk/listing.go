package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/cpmtools/altairdisk/disks"
	c "github.com/cpmtools/altairdisk/file_systems/common"
	"github.com/cpmtools/altairdisk/file_systems/cpm"
	"github.com/gocarina/gocsv"
)

func printDirectory(output io.Writer, infos []cpm.FileInfo, summary cpm.Summary) {
	fmt.Fprintln(output, "Name     Ext   Length Used U At")
	for _, info := range infos {
		fmt.Fprintf(
			output,
			"%-8s %-3s %7dB %3dK %d %s\n",
			info.Name,
			info.Type,
			info.Size,
			info.KiloBytes,
			info.User,
			info.Attributes,
		)
	}
	fmt.Fprintf(
		output,
		"%d file(s), occupying %dK of %dK total capacity\n",
		summary.Files,
		summary.UsedKB,
		summary.TotalKB,
	)
	fmt.Fprintf(
		output,
		"%d directory entries and %dK bytes remain\n",
		summary.FreeEntries,
		summary.FreeKB,
	)
}

func printRawDirectory(output io.Writer, entries []cpm.RawEntry, free []c.AllocationUnit) {
	fmt.Fprintln(output, "IDX:U:FILENAME:TYP:AT:EXT:REC:[ALLOCATIONS]")
	for _, entry := range entries {
		fmt.Fprintf(
			output,
			"%03d:%d:%s:%s:%s:%03d:%03d:[%s]\n",
			entry.Index,
			entry.User,
			entry.Name,
			entry.Type,
			entry.Attributes,
			entry.Extent,
			entry.Records,
			entry.AllocationList,
		)
	}

	fmt.Fprintln(output, "FREE ALLOCATIONS:")
	for i, unit := range free {
		fmt.Fprintf(output, "%03d ", unit)
		if (i+1)%16 == 0 {
			fmt.Fprintln(output)
		}
	}
	fmt.Fprintln(output)
}

func printRawDirectoryCSV(output io.Writer, entries []cpm.RawEntry) error {
	// Names are space-padded for the fixed-width listing only.
	trimmed := make([]cpm.RawEntry, len(entries))
	for i, entry := range entries {
		entry.Name = strings.TrimRight(entry.Name, " ")
		entry.Type = strings.TrimRight(entry.Type, " ")
		trimmed[i] = entry
	}
	return gocsv.Marshal(trimmed, output)
}

func printDiskTypes(output io.Writer) {
	for _, geometry := range disks.AllGeometries() {
		detect := ""
		if !geometry.AutoDetect {
			detect = " (never auto-detected)"
		}
		fmt.Fprintf(
			output,
			"%-12s %s, %d bytes%s\n",
			geometry.Slug,
			geometry.Name,
			geometry.ImageSize,
			detect,
		)
		if geometry.Notes != "" {
			fmt.Fprintf(output, "%-12s %s\n", "", geometry.Notes)
		}
	}
}
