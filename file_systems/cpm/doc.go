/*
Package cpm implements the CP/M 2.2 file system as it appears on disk images for
the MITS Altair and its clones: 8" floppies from the MITS and Tarbell
controllers, the MITS 5MB hard disk, and the large "floppies" supported by the
FDC+ controller.

CP/M has no directories, timestamps, or on-disk free list. A volume is a fixed
table of 32-byte directory entries ("extents") followed by a data area divided
into allocation blocks. Every extent names a file, the user area (0-15) it
belongs to, and up to 16 allocation blocks holding its data. Files too big for
one extent use several, distinguished by their extent numbers.

The directory starts in allocation block 0, right after the reserved tracks
that hold the boot image. Which blocks are free is worked out when the image is
mounted, by collecting every block referenced from a live directory entry.

Reference for the on-disk format: http://www.gaby.de/cpm/manuals/archive/cpm22htm/ch6.htm
*/

package cpm
