package cpm

import (
	"fmt"
	"sort"

	"github.com/cpmtools/altairdisk/disks"
	c "github.com/cpmtools/altairdisk/file_systems/common"
)

// File is a file on the image: every valid extent sharing a filename and user
// number, in ascending extent order.
type File struct {
	Extents []*Dirent
}

func (file *File) first() *Dirent {
	return file.Extents[0]
}

func (file *File) Name() string {
	return file.first().Name
}

func (file *File) Type() string {
	return file.first().Type
}

// FullName gives the filename in "NAME.TYP" form.
func (file *File) FullName() string {
	return file.first().FullName()
}

func (file *File) User() uint8 {
	return file.first().User
}

// Attributes gives the attribute string of the first extent. See
// [Dirent.Attributes].
func (file *File) Attributes() string {
	return file.first().Attributes()
}

// TotalRecords is the number of records recorded across all extents.
func (file *File) TotalRecords(geometry disks.DiskGeometry) uint {
	total := uint(0)
	for _, extent := range file.Extents {
		total += extent.EffectiveRecords(geometry)
	}
	return total
}

// TotalAllocations is the number of allocation blocks used by all extents.
func (file *File) TotalAllocations() uint {
	total := uint(0)
	for _, extent := range file.Extents {
		total += uint(len(extent.Allocations))
	}
	return total
}

////////////////////////////////////////////////////////////////////////////////

// directory is the in-memory copy of the directory table.
type directory struct {
	geometry disks.DiskGeometry
	// entries are ordered by their position on disk.
	entries []*Dirent
	// sorted holds the same entries as `entries`, in search order. See
	// [sortDirents].
	sorted []*Dirent
	files  []*File
}

func newDirectory(geometry disks.DiskGeometry) *directory {
	return &directory{
		geometry: geometry,
		entries:  make([]*Dirent, geometry.DirectoryEntries),
	}
}

// direntLocation gives the block and record holding the sector that
// directory entry `index` is in.
func (dir *directory) direntLocation(index uint) (c.AllocationUnit, uint) {
	sectorNumber := index / dir.geometry.DirentsPerSector()
	recordsPerAlloc := dir.geometry.RecordsPerAllocation()
	return c.AllocationUnit(sectorNumber / recordsPerAlloc), sectorNumber % recordsPerAlloc
}

// sectorCount is the number of sectors the directory table occupies.
func (dir *directory) sectorCount() uint {
	return dir.geometry.DirectoryEntries / dir.geometry.DirentsPerSector()
}

// decodeSector replaces the entries for directory sector `sectorNumber` with
// the ones decoded from `data`.
func (dir *directory) decodeSector(sectorNumber uint, data []byte) []*Dirent {
	perSector := dir.geometry.DirentsPerSector()
	decoded := make([]*Dirent, 0, perSector)

	for i := uint(0); i < perSector; i++ {
		index := sectorNumber*perSector + i
		raw := DecodeRawDirent(data[i*disks.DirentSize:])
		dirent := decodeDirent(index, raw, dir.geometry)
		dir.entries[index] = dirent
		decoded = append(decoded, dirent)
	}
	return decoded
}

// encodeSector serializes the directory sector containing entry `index`.
func (dir *directory) encodeSector(index uint) []byte {
	perSector := dir.geometry.DirentsPerSector()
	start := index / perSector * perSector
	data := make([]byte, dir.geometry.DataLength)

	for i := uint(0); i < perSector; i++ {
		dir.entries[start+i].Raw.Encode(data[i*disks.DirentSize:])
	}
	return data
}

// setRaw replaces an entry with a new raw value and decodes it. The caller
// must call relink afterwards.
func (dir *directory) setRaw(index uint, raw RawDirent) *Dirent {
	dirent := decodeDirent(index, raw, dir.geometry)
	dir.entries[index] = dirent
	return dirent
}

// claimFree returns the index of the first unused directory entry.
func (dir *directory) claimFree() (uint, bool) {
	for _, dirent := range dir.entries {
		if !dirent.Valid {
			return dirent.Index, true
		}
	}
	return 0, false
}

// countValid gives the number of entries in use, across all users.
func (dir *directory) countValid() uint {
	count := uint(0)
	for _, dirent := range dir.entries {
		if dirent.Valid {
			count++
		}
	}
	return count
}

// sortDirents orders entries valid first, then by filename, user number, and
// extent number. Invalid entries keep their on-disk order.
func sortDirents(entries []*Dirent) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.Valid != b.Valid {
			return a.Valid
		}
		if !a.Valid {
			return false
		}
		if a.FullName() != b.FullName() {
			return a.FullName() < b.FullName()
		}
		if a.User != b.User {
			return a.User < b.User
		}
		return a.Extent < b.Extent
	})
}

// relink rebuilds the search order and groups consecutive entries with the
// same filename and user into files. Any two such entries are linked, even if
// the lower extent isn't full.
func (dir *directory) relink() {
	dir.sorted = make([]*Dirent, len(dir.entries))
	copy(dir.sorted, dir.entries)
	sortDirents(dir.sorted)

	dir.files = nil
	var current *File
	for _, dirent := range dir.sorted {
		dirent.file = nil
		if !dirent.Valid {
			continue
		}

		if current != nil &&
			current.FullName() == dirent.FullName() &&
			current.User() == dirent.User {
			current.Extents = append(current.Extents, dirent)
		} else {
			current = &File{Extents: []*Dirent{dirent}}
			dir.files = append(dir.files, current)
		}
		dirent.file = current
	}
}

// userMatches returns true if a user number passes a filter, which is either a
// user number or [AllUsers].
func userMatches(filter int, user uint8) bool {
	return filter == AllUsers || filter == int(user)
}

// find returns every file with a first extent matching `pattern`, in the order
// the first extents appear on disk.
func (dir *directory) find(pattern string, user int, wildcards bool) []*File {
	found := []*File{}
	for _, dirent := range dir.entries {
		if !dirent.Valid || !dirent.IsFirstExtent(dir.geometry) {
			continue
		}
		// Only report a file once, from the extent its chain starts at.
		if dirent.file == nil || dirent.file.first() != dirent {
			continue
		}
		if userMatches(user, dirent.User) && MatchFilename(pattern, dirent.FullName(), wildcards) {
			found = append(found, dirent.file)
		}
	}
	return found
}

// existsForOtherUsers returns true if another user has a file with the same
// name as `file`.
func (dir *directory) existsForOtherUsers(file *File) bool {
	for _, other := range dir.files {
		if other != file &&
			other.User() != file.User() &&
			other.first().IsFirstExtent(dir.geometry) &&
			MatchFilename(file.FullName(), other.FullName(), false) {
			return true
		}
	}
	return false
}

func (dir *directory) String() string {
	return fmt.Sprintf(
		"%s directory: %d of %d entries used, %d files",
		dir.geometry.Slug,
		dir.countValid(),
		len(dir.entries),
		len(dir.files),
	)
}
