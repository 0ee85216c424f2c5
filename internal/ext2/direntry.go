package ext2

import (
	"bytes"
	"fmt"
)

// DirEntry is the in-memory projection of one variable-length directory
// record (component F).
type DirEntry struct {
	Ino      Ino
	RecLen   uint16
	NameLen  uint8
	FileType FileType
	Name     []byte
}

// Byte layout, chained in on-disk order: inode, rec_len, name_len,
// file_type, name.
const (
	direntInoStart      = 0
	direntInoSize       = 4
	direntRecLenStart   = direntInoStart + direntInoSize
	direntRecLenSize    = 2
	direntNameLenStart  = direntRecLenStart + direntRecLenSize
	direntNameLenSize   = 1
	direntFileTypeStart = direntNameLenStart + direntNameLenSize
	direntFileTypeSize  = 1

	DirEntryHeaderSize Byte = direntFileTypeStart + direntFileTypeSize // 8
)

func EncodeDirEntryHeader(entry *DirEntry, b *[DirEntryHeaderSize]byte) {
	p := b[:]
	EncodeUint32(uint32(entry.Ino), p[direntInoStart:])
	EncodeUint16(entry.RecLen, p[direntRecLenStart:])
	p[direntNameLenStart] = entry.NameLen
	p[direntFileTypeStart] = uint8(entry.FileType)
}

func DecodeDirEntryHeader(entry *DirEntry, b *[DirEntryHeaderSize]byte) {
	p := b[:]
	entry.Ino = Ino(DecodeUint32(p[0], p[1], p[2], p[3]))
	entry.RecLen = DecodeUint16(p[direntRecLenStart], p[direntRecLenStart+1])
	entry.NameLen = p[direntNameLenStart]
	// NB: not validated here — a zeroed/tombstoned entry has an invalid
	// file type byte and that's fine; callers validate if they care.
	entry.FileType = FileType(p[direntFileTypeStart])
}

// align4 rounds x up to the next multiple of 4, ext2's directory-record
// alignment.
func align4(x Byte) Byte {
	return (x + 0b11) &^ 0b11
}

// RecordLen returns the 4-byte-aligned on-disk length of a directory record
// with the given name length.
func RecordLen(nameLen int) uint16 {
	return uint16(align4(DirEntryHeaderSize + Byte(nameLen)))
}

// ParseDirEntries walks a directory block buffer (component F parse),
// invoking visit(name, childIno, fileType) for every live entry (Ino != 0).
// visit returning false stops the walk early without error. A zero or
// overflowing rec_len is reported as CorruptErr.
func ParseDirEntries(
	buf []byte,
	visit func(name []byte, child Ino, fileType FileType) bool,
) error {
	var offset Byte
	end := Byte(len(buf))
	for offset < end {
		if offset+DirEntryHeaderSize > end {
			return fmt.Errorf(
				"parsing directory entries at offset `%d`: %w",
				offset,
				CorruptErr,
			)
		}
		var entry DirEntry
		DecodeDirEntryHeader(&entry, (*[DirEntryHeaderSize]byte)(buf[offset:offset+DirEntryHeaderSize]))

		if entry.RecLen == 0 || offset+Byte(entry.RecLen) > end {
			return fmt.Errorf(
				"parsing directory entry at offset `%d` with rec_len `%d`: %w",
				offset,
				entry.RecLen,
				CorruptErr,
			)
		}

		nameEnd := offset + DirEntryHeaderSize + Byte(entry.NameLen)
		if nameEnd > end || nameEnd > offset+Byte(entry.RecLen) {
			return fmt.Errorf(
				"parsing directory entry at offset `%d`: name overruns record: %w",
				offset,
				CorruptErr,
			)
		}

		if entry.Ino != InoNil {
			name := buf[offset+DirEntryHeaderSize : nameEnd]
			if !visit(name, entry.Ino, entry.FileType) {
				return nil
			}
		}

		offset += Byte(entry.RecLen)
	}
	return nil
}

// LocateDirEntry finds the byte offset of the live entry named name within a
// directory block buffer, without otherwise interpreting the chain (used by
// in-place removal, which must zero one entry's inode field without
// disturbing rec_len bookkeeping for its neighbors).
func LocateDirEntry(buf []byte, name []byte) (offset Byte, found bool, err error) {
	var cur Byte
	end := Byte(len(buf))
	for cur < end {
		if cur+DirEntryHeaderSize > end {
			return 0, false, fmt.Errorf(
				"locating directory entry at offset `%d`: %w",
				cur,
				CorruptErr,
			)
		}
		var entry DirEntry
		DecodeDirEntryHeader(&entry, (*[DirEntryHeaderSize]byte)(buf[cur:cur+DirEntryHeaderSize]))

		if entry.RecLen == 0 || cur+Byte(entry.RecLen) > end {
			return 0, false, fmt.Errorf(
				"locating directory entry at offset `%d` with rec_len `%d`: %w",
				cur,
				entry.RecLen,
				CorruptErr,
			)
		}

		nameEnd := cur + DirEntryHeaderSize + Byte(entry.NameLen)
		if entry.Ino != InoNil && nameEnd <= end && bytes.Equal(buf[cur+DirEntryHeaderSize:nameEnd], name) {
			return cur, true, nil
		}

		cur += Byte(entry.RecLen)
	}
	return 0, false, nil
}

// DirEntryInput is one entry to serialize, in insertion order.
type DirEntryInput struct {
	Name     []byte
	Child    Ino
	FileType FileType
}

// SerializeDirEntries builds a directory's full data buffer (component F
// serialize): each record occupies align4(8+name_len) bytes, the whole
// buffer is padded up to a multiple of blockSize, and the final record's
// rec_len is extended to absorb all trailing padding within its block so a
// parser walking the buffer stops cleanly at the end.
func SerializeDirEntries(entries []DirEntryInput, blockSize Byte) ([]byte, error) {
	size, err := minDirEntriesSize(entries)
	if err != nil {
		return nil, err
	}

	totalSize := divRoundUpByte(size, blockSize) * blockSize
	if totalSize == 0 {
		totalSize = blockSize
	}
	return serializeDirEntriesFixedSize(entries, totalSize)
}

func minDirEntriesSize(entries []DirEntryInput) (Byte, error) {
	var size Byte
	for _, e := range entries {
		if len(e.Name) > 255 {
			return 0, fmt.Errorf("serializing directory entry `%s`: %w", e.Name, NameTooLongErr)
		}
		size += Byte(RecordLen(len(e.Name)))
	}
	return size, nil
}

// serializeDirEntriesFixedSize is SerializeDirEntries's core, but the output
// buffer size is given directly rather than derived from blockSize. Used by
// AppendEntry, which re-serializes a directory's full entry list across its
// current (possibly just-grown) block count.
func serializeDirEntriesFixedSize(entries []DirEntryInput, totalSize Byte) ([]byte, error) {
	buf := make([]byte, totalSize)
	if len(entries) == 0 {
		// No live entries: one tombstone record (ino 0) spans the whole
		// buffer so ParseDirEntries can still walk it.
		var filler DirEntry
		filler.RecLen = uint16(totalSize)
		EncodeDirEntryHeader(&filler, (*[DirEntryHeaderSize]byte)(buf[0:DirEntryHeaderSize]))
		return buf, nil
	}

	var offset Byte
	for i, e := range entries {
		recLen := RecordLen(len(e.Name))
		if i == len(entries)-1 {
			// Last record's rec_len spans the rest of the directory,
			// including trailing padding, so parsers stop at block end.
			recLen = uint16(totalSize - offset)
		}

		entry := DirEntry{
			Ino:      e.Child,
			RecLen:   recLen,
			NameLen:  uint8(len(e.Name)),
			FileType: e.FileType,
		}
		EncodeDirEntryHeader(&entry, (*[DirEntryHeaderSize]byte)(buf[offset:offset+DirEntryHeaderSize]))
		copy(buf[offset+DirEntryHeaderSize:], e.Name)

		offset += Byte(RecordLen(len(e.Name)))
	}

	return buf, nil
}

func divRoundUpByte(a, b Byte) Byte {
	if a%b == 0 {
		return a / b
	}
	return a/b + 1
}
