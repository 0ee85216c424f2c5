package ext2

import "fmt"

// FileType is the one-byte file-type tag ext2 stores inline in a directory
// entry (component F), independent of (but derived from) the inode mode's
// type nibble (component D). Values match the on-disk dirent convention so
// this engine interoperates with other ext2 tools.
type FileType uint8

const (
	FileTypeUnknown  FileType = 0
	FileTypeRegular  FileType = 1
	FileTypeDir      FileType = 2
	FileTypeCharDev  FileType = 3
	FileTypeBlockDev FileType = 4
	FileTypeFifo     FileType = 5
	FileTypeSocket   FileType = 6
	FileTypeSymlink  FileType = 7

	InodeBufferSize Byte = 128
)

func (fileType FileType) String() string {
	switch fileType {
	case FileTypeUnknown:
		return "unknown"
	case FileTypeRegular:
		return "regular"
	case FileTypeDir:
		return "dir"
	case FileTypeCharDev:
		return "chardev"
	case FileTypeBlockDev:
		return "blockdev"
	case FileTypeFifo:
		return "fifo"
	case FileTypeSocket:
		return "socket"
	case FileTypeSymlink:
		return "symlink"
	default:
		return fmt.Sprintf("filetype(%d)", uint8(fileType))
	}
}

// Validate rejects file type bytes this engine doesn't recognize. Zero (the
// "unknown" tag) is valid on its own — it's what a freshly zeroed/tombstoned
// directory entry carries — callers that need a "real" type check that
// separately.
func (fileType FileType) Validate() error {
	if fileType > FileTypeSymlink {
		return fmt.Errorf("%w: file type byte %d", InvalidFileTypeErr, uint8(fileType))
	}
	return nil
}

// modeTypeNibble maps a FileType to the ext2 inode mode's high nibble
// (S_IFREG, S_IFDIR, ...), the bit-exact values defined by the format.
var modeTypeNibble = map[FileType]uint16{
	FileTypeFifo:     1,
	FileTypeCharDev:  2,
	FileTypeDir:      4,
	FileTypeBlockDev: 6,
	FileTypeRegular:  8,
	FileTypeSymlink:  10,
	FileTypeSocket:   12,
}

var nibbleModeType = func() map[uint16]FileType {
	out := make(map[uint16]FileType, len(modeTypeNibble))
	for ft, nibble := range modeTypeNibble {
		out[nibble] = ft
	}
	return out
}()
