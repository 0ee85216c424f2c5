package ext2

import "fmt"

// inodeLocation computes where inode i's on-disk record lives (component
// D): which group, which block within the inode table, and the byte offset
// within that block.
func (fs *FileSystem) inodeLocation(i Ino) (groupIdx int, block Block, offsetInBlock Byte, err error) {
	if i == InoNil {
		return 0, 0, 0, fmt.Errorf("locating inode `%d`: %w", i, NotFoundErr)
	}
	if i != InoRoot && uint32(i) < fs.sb.FirstIno {
		return 0, 0, 0, fmt.Errorf("locating inode `%d`: %w", i, NotFoundErr)
	}
	if uint32(i) > fs.sb.InodesCount {
		return 0, 0, 0, fmt.Errorf("locating inode `%d`: %w", i, NotFoundErr)
	}

	groupIdx = int((uint32(i) - 1) / fs.sb.InodesPerGroup)
	indexInGroup := Byte((uint32(i) - 1) % fs.sb.InodesPerGroup)
	byteOffset := indexInGroup * Byte(fs.sb.InodeSize)

	if groupIdx < 0 || groupIdx >= len(fs.groups) {
		return 0, 0, 0, fmt.Errorf("locating inode `%d`: %w", i, NotFoundErr)
	}

	block = fs.groups[groupIdx].desc.InodeTable + Block(byteOffset/fs.sb.BlockSize())
	offsetInBlock = byteOffset % fs.sb.BlockSize()
	return groupIdx, block, offsetInBlock, nil
}

// ReadInode reads and decodes the on-disk inode record at index i
// (component D).
func (fs *FileSystem) ReadInode(i Ino) (*Inode, error) {
	_, block, offset, err := fs.inodeLocation(i)
	if err != nil {
		return nil, err
	}

	blockBytes, err := fs.ReadBlock(block)
	if err != nil {
		return nil, fmt.Errorf("reading inode `%d`: %w", i, err)
	}

	buf := (*[InodeBufferSize]byte)(blockBytes[offset : offset+InodeBufferSize])
	inode, err := DecodeInode(i, fs.sb.RevLevel, buf)
	if err != nil {
		return nil, fmt.Errorf("reading inode `%d`: %w", i, err)
	}
	return &inode, nil
}

// WriteInode read-modify-writes the block holding inode i's on-disk record
// (component D). Callers that hold a LiveInode for i already own the
// authoritative in-memory raw under their own per-inode lock and mutate it
// before calling WriteInode; WriteInode never touches the inode cache
// itself, so it never needs to acquire the cache lock out of order.
func (fs *FileSystem) WriteInode(i Ino, raw *Inode) error {
	_, block, offset, err := fs.inodeLocation(i)
	if err != nil {
		return err
	}

	blockBytes, err := fs.ReadBlock(block)
	if err != nil {
		return fmt.Errorf("writing inode `%d`: %w", i, err)
	}

	buf := (*[InodeBufferSize]byte)(blockBytes[offset : offset+InodeBufferSize])
	if err := raw.Encode(fs.sb.RevLevel, buf); err != nil {
		return fmt.Errorf("writing inode `%d`: %w", i, err)
	}

	if err := fs.WriteBlock(block, blockBytes); err != nil {
		return fmt.Errorf("writing inode `%d`: %w", i, err)
	}
	return nil
}
